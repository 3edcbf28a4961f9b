//go:build !linux

package platform

// IOURingBackend is a no-op stub on non-Linux platforms.
type IOURingBackend struct {
	StreamBackend
}

// NewIOURingBackend always returns (nil, nil) on non-Linux platforms.
func NewIOURingBackend(_ uint) (*IOURingBackend, error) {
	return nil, nil
}

// KernelSupportsIOURing always returns false on non-Linux platforms.
func KernelSupportsIOURing() bool {
	return false
}
