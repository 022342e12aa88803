//go:build !linux

package utils

func DisableTHP() {
	// No-op on non-Linux platforms.
}
