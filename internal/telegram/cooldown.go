package telegram

import (
	"sync"
	"time"
)

// cooldownSweepSize is the map size above which expired entries are dropped.
const cooldownSweepSize = 1024

// cooldown limits each user to one generated reply per window. A zero
// window disables it.
type cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

func newCooldown(window time.Duration) *cooldown {
	return &cooldown{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// allow reports whether userID may trigger a reply now and, if so, starts a
// new window for the user.
func (c *cooldown) allow(userID string) bool {
	if c.window <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if last, ok := c.last[userID]; ok && now.Sub(last) < c.window {
		return false
	}
	c.last[userID] = now

	if len(c.last) > cooldownSweepSize {
		for id, t := range c.last {
			if now.Sub(t) >= c.window {
				delete(c.last, id)
			}
		}
	}
	return true
}
