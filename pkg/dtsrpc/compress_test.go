package dtsrpc

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, payload []byte) []byte {
	t.Helper()
	c := thresholdGzipCompressor{}

	var wire bytes.Buffer
	wc, err := c.Compress(&wire)
	require.NoError(t, err)
	_, err = wc.Write(payload)
	require.NoError(t, err)
	require.NoError(t, wc.Close())

	r, err := c.Decompress(&wire)
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return out
}

func TestThresholdCompressorRoundTripsSmallPayload(t *testing.T) {
	payload := []byte(`{"task_id":"t1","state":"SUCCESS"}`)
	require.Less(t, len(payload), compressThreshold)
	assert.Equal(t, payload, roundTrip(t, payload))
}

func TestThresholdCompressorRoundTripsLargePayload(t *testing.T) {
	payload := []byte(strings.Repeat("x", compressThreshold*4))
	assert.Equal(t, payload, roundTrip(t, payload))
}

func TestThresholdCompressorNameMatchesRegisteredName(t *testing.T) {
	assert.Equal(t, "dts-gzip", thresholdGzipCompressor{}.Name())
}
