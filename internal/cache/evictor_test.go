package cache

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type fakeProbe struct {
	available atomic.Uint64
	err       error
	calls     atomic.Int32
}

func (p *fakeProbe) Available() (uint64, error) {
	p.calls.Add(1)
	return p.available.Load(), p.err
}

func TestEvictor_MemoryPressureKeepsLastEntry(t *testing.T) {
	log := zaptest.NewLogger(t)
	probe := &fakeProbe{}
	probe.available.Store(10)

	c := NewMemoryCache(NewEvictor(10, 1<<30, probe, log), log)
	for i := 0; i < 5; i++ {
		c.Put(testKey(fmt.Sprint(i)), testEntry("x", TierFinal))
	}

	assert.Equal(t, 1, c.Len())
	assert.True(t, cached(c, testKey("4")), "most recently written entry survives")
}

func TestEvictor_MemoryPressureCoversDeficit(t *testing.T) {
	log := zaptest.NewLogger(t)
	probe := &fakeProbe{}
	probe.available.Store(1 << 30)

	c := NewMemoryCache(NewEvictor(10, 1000, probe, log), log)
	for i := 0; i < 4; i++ {
		c.Put(testKey(fmt.Sprint(i)), &Entry{Data: make([]byte, 100), Tier: TierFinal})
	}
	assert.Equal(t, 4, c.Len())

	// 150 bytes short: two 100-byte entries must go
	probe.available.Store(850)
	c.Put(testKey("4"), &Entry{Data: make([]byte, 100), Tier: TierFinal})

	assert.Equal(t, 3, c.Len())
	assert.False(t, cached(c, testKey("0")))
	assert.False(t, cached(c, testKey("1")))
	assert.True(t, cached(c, testKey("4")))
}

func TestEvictor_UnsupportedProbeDisablesPolicy(t *testing.T) {
	log := zaptest.NewLogger(t)
	probe := &fakeProbe{err: fmt.Errorf("probe: %w", ErrMemoryProbeUnsupported)}

	c := NewMemoryCache(NewEvictor(10, 1000, probe, log), log)
	c.Put(testKey("a"), testEntry("a", TierFinal))
	c.Put(testKey("b"), testEntry("b", TierFinal))
	c.Put(testKey("c"), testEntry("c", TierFinal))

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, int32(1), probe.calls.Load(), "probe is not consulted after reporting unsupported")
}

func TestEvictor_ProbeErrorIsIgnored(t *testing.T) {
	log := zaptest.NewLogger(t)
	probe := &fakeProbe{err: errors.New("transient")}

	c := NewMemoryCache(NewEvictor(10, 1000, probe, log), log)
	c.Put(testKey("a"), testEntry("a", TierFinal))
	c.Put(testKey("b"), testEntry("b", TierFinal))
	c.Put(testKey("c"), testEntry("c", TierFinal))

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, int32(2), probe.calls.Load())
}

func TestEvictor_CapacityClamp(t *testing.T) {
	e := NewEvictor(0, 0, nil, nil)
	assert.Equal(t, 1, e.capacity)
}

func TestSystemMemory(t *testing.T) {
	avail, err := SystemMemory{}.Available()
	if errors.Is(err, ErrMemoryProbeUnsupported) {
		t.Skip("memory probe unsupported on this platform")
	}
	assert.NoError(t, err)
	assert.Greater(t, avail, uint64(0))
}
