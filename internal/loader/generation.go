package loader

import "sync/atomic"

// Generation identifies the current navigation target. Every task captures
// the value at submission and gives up once it is no longer current.
type Generation struct {
	value atomic.Uint64
}

// Bump starts a new generation and returns it
func (g *Generation) Bump() uint64 {
	return g.value.Add(1)
}

func (g *Generation) Current() uint64 {
	return g.value.Load()
}

func (g *Generation) IsCurrent(gen uint64) bool {
	return g.value.Load() == gen
}
