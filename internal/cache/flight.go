package cache

import "context"

// Flight is an in-progress render of one key owned by another goroutine.
type Flight struct {
	done chan struct{}
}

// Wait blocks until the owner settles the flight or ctx is done.
func (f *Flight) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Claim splits keys into those the caller now owns and must render, and
// those already being rendered elsewhere. Owned keys must be released with
// Settle once their outcome is recorded, even on failure. Keys that already
// have an artifact or a failure are neither owned nor pending.
func (c *Cache) Claim(keys []string) (owned []string, pending map[string]*Flight) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending = make(map[string]*Flight)
	for _, k := range keys {
		if _, ok := c.entries[k]; ok {
			continue
		}
		if _, ok := c.failed[k]; ok {
			continue
		}
		if f, ok := c.flights[k]; ok {
			pending[k] = f
			continue
		}
		c.flights[k] = &Flight{done: make(chan struct{})}
		owned = append(owned, k)
	}
	return owned, pending
}

// Settle releases an owned key and wakes every waiter. Settling a key that is
// not in flight is a no-op.
func (c *Cache) Settle(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if f, ok := c.flights[k]; ok {
			close(f.done)
			delete(c.flights, k)
		}
	}
}
