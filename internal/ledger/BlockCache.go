package ledger

import (
	"context"
	"sync"
	"time"
)

// BlockCache memoizes the current block for ttl. Concurrent callers share one fetch.
type BlockCache struct {
	ttl   time.Duration
	fetch func(ctx context.Context) (uint64, error)
	now   func() time.Time

	mu     sync.Mutex
	value  uint64
	expiry time.Time
	valid  bool
}

func NewBlockCache(ttl time.Duration, fetch func(ctx context.Context) (uint64, error)) *BlockCache {
	return &BlockCache{ttl: ttl, fetch: fetch, now: time.Now}
}

// Get returns the cached block, refetching once the ttl has passed. A failed fetch leaves the
// previous value in place and is returned to the caller.
func (c *BlockCache) Get(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.valid && now.Before(c.expiry) {
		return c.value, nil
	}

	block, err := c.fetch(ctx)
	if err != nil {
		return 0, err
	}
	c.value = block
	c.expiry = now.Add(c.ttl)
	c.valid = true
	return block, nil
}

// Invalidate forces the next Get to hit the ledger.
func (c *BlockCache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}
