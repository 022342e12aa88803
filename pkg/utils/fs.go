package utils

import "github.com/spf13/afero"

// Fs is the filesystem seam injected into anything that persists to disk,
// so tests can swap in afero's in-memory filesystem instead of the real one.
type Fs afero.Fs

// File is the corresponding open-file seam.
type File afero.File
