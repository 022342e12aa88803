// Package registry persists a point-in-time view of a function registry's
// names for operator introspection. It never touches the handlers
// themselves, only the Names() enumerator pkg/protocol.FunctionRegistry
// exposes.
package registry

import (
	"encoding/json"
	"fmt"

	"github.com/dts/scheduler/pkg/log"
	"github.com/dts/scheduler/pkg/utils"
	"github.com/spf13/afero"
)

const snapshotFile = "registry-snapshot.json"

// Snapshot is the on-disk shape of a registry dump.
type Snapshot struct {
	Functions []string `json:"functions"`
	TakenMs   int64    `json:"taken_ms"`
}

// Config selects where a Snapshot is stored, mirroring the teacher's
// LogStashConfig storage-type switch.
type Config struct {
	StorageType string `mapstructure:"storage"`
	Path        string `mapstructure:"path"`
}

// CreateFs builds the filesystem Config points at: a disk-backed afero Fs
// rooted at Path for StorageType "disk" (an error if Path is empty), or an
// in-memory one for StorageType "memory" or "".
func (c *Config) CreateFs() (utils.Fs, error) {
	switch c.StorageType {
	case "disk":
		if c.Path == "" {
			return nil, fmt.Errorf("registry: no path configured for disk storage")
		}
		fs := afero.NewBasePathFs(afero.NewOsFs(), c.Path)
		if err := fs.MkdirAll(c.Path, 0777); err != nil {
			return nil, err
		}
		log.Info("registry: snapshots stored at", c.Path)
		return fs, nil

	case "", "memory":
		log.Info("registry: snapshots stored in memory")
		return afero.NewMemMapFs(), nil

	default:
		return nil, fmt.Errorf("registry: invalid storage type configured: %s", c.StorageType)
	}
}

// Write serializes a Snapshot of names, taken at nowMs, to fs.
func Write(fs utils.Fs, names []string, nowMs int64) error {
	snap := Snapshot{Functions: names, TakenMs: nowMs}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(afero.Fs(fs), snapshotFile, data, 0666)
}

// Read deserializes the most recently written Snapshot from fs.
func Read(fs utils.Fs) (*Snapshot, error) {
	data, err := afero.ReadFile(afero.Fs(fs), snapshotFile)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
