//go:build !linux

package platform

// newRangeBackend falls back to streaming where copy_file_range is missing.
func newRangeBackend() Backend { return StreamBackend{} }
