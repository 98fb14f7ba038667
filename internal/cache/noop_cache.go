package cache

// NoopCache never stores anything; every task decodes from scratch
type NoopCache struct{}

func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (c *NoopCache) Get(key RequestKey) (*Entry, bool) {
	return nil, false
}

func (c *NoopCache) Peek(key RequestKey) (*Entry, bool) {
	return nil, false
}

func (c *NoopCache) Put(key RequestKey, entry *Entry) bool {
	return true
}

func (c *NoopCache) Len() int {
	return 0
}

func (c *NoopCache) Stats() Stats {
	return Stats{}
}
