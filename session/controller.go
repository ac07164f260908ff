package session

import (
	"sync"
	"sync/atomic"
)

// Controller owns the single "session valid" flag of the application. Only the
// engine mutates it; everything else reads or subscribes.
type Controller struct {
	valid atomic.Bool

	mu     sync.Mutex
	subs   map[uint64]chan bool
	nextID uint64
}

// NewController returns a controller whose flag starts at valid.
func NewController(valid bool) *Controller {
	c := &Controller{subs: make(map[uint64]chan bool)}
	c.valid.Store(valid)
	return c
}

// IsValid reports the current flag. Safe for concurrent use.
func (c *Controller) IsValid() bool {
	return c != nil && c.valid.Load()
}

// Subscribe returns a channel that receives the current flag immediately and then
// every later value. Delivery is latest-value: a slow reader may miss intermediate
// flips but always observes the final state. Call cancel to stop and close the
// channel.
func (c *Controller) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 1)

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	ch <- c.valid.Load()
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Logout marks the session invalid. It is idempotent and reports whether this call
// performed the transition.
func (c *Controller) Logout() bool {
	return c.set(false)
}

// Reset marks the session valid again after a fresh login.
func (c *Controller) Reset() bool {
	return c.set(true)
}

func (c *Controller) set(v bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.valid.CompareAndSwap(!v, v) {
		return false
	}
	for _, ch := range c.subs {
		publish(ch, v)
	}
	return true
}

// publish replaces any unread value so the buffer always holds the newest state.
// Callers hold c.mu, which is the only sender.
func publish(ch chan bool, v bool) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
