package util

import "sync"

// Clock reports the current block height of the host chain.
// The core never sleeps or waits; deadlines (e.g. proposal voting
// periods) are expressed purely as height comparisons.
type Clock interface {
	CurrentBlock() int64
}

// ChainClock is the reference Clock implementation, advanced by the host
// once per committed block. Heights are monotonic.
type ChainClock struct {
	mu     sync.RWMutex
	height int64
}

func NewChainClock(start int64) *ChainClock {
	return &ChainClock{height: start}
}

func (c *ChainClock) CurrentBlock() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

// Advance moves the clock forward by n blocks. Negative advances are ignored.
func (c *ChainClock) Advance(n int64) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	c.height += n
	c.mu.Unlock()
}
