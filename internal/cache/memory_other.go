//go:build !linux

package cache

// SystemMemory is unavailable on this platform
type SystemMemory struct{}

func (SystemMemory) Available() (uint64, error) {
	return 0, ErrMemoryProbeUnsupported
}
