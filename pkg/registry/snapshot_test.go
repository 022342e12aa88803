package registry

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()

	err := Write(fs, []string{"fib", "echo"}, 12345)
	require.NoError(t, err)

	snap, err := Read(fs)
	require.NoError(t, err)
	assert.Equal(t, []string{"fib", "echo"}, snap.Functions)
	assert.Equal(t, int64(12345), snap.TakenMs)
}

func TestConfigCreateFsMemoryDefault(t *testing.T) {
	cfg := Config{}
	fs, err := cfg.CreateFs()
	require.NoError(t, err)
	require.NoError(t, Write(fs, []string{"fib"}, 1))
}

func TestConfigCreateFsInvalidStorageType(t *testing.T) {
	cfg := Config{StorageType: "bogus"}
	_, err := cfg.CreateFs()
	assert.Error(t, err)
}

func TestConfigCreateFsDiskRequiresPath(t *testing.T) {
	cfg := Config{StorageType: "disk"}
	_, err := cfg.CreateFs()
	assert.Error(t, err)
}
