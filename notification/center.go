package notification

import (
	"sync"

	"go.uber.org/zap"
)

// Center is an in-process Notifier keeping the currently visible notifications
// and a history of everything opened. Safe for concurrent use.
type Center struct {
	logger *zap.Logger

	mu      sync.RWMutex
	active  map[string]Descriptor
	order   []string // visible keys in first-open order
	history []Descriptor
}

// NewCenter creates a Center. logger may be nil.
func NewCenter(logger *zap.Logger) *Center {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Center{
		logger: logger.Named("notifications"),
		active: make(map[string]Descriptor),
	}
}

// Open implements Notifier. An equal key replaces the visible descriptor in
// place, keeping its original position.
func (c *Center) Open(d Descriptor) {
	c.mu.Lock()
	if _, visible := c.active[d.Key]; !visible {
		c.order = append(c.order, d.Key)
	}
	c.active[d.Key] = d
	c.history = append(c.history, d)
	c.mu.Unlock()

	c.logger.Debug("notification opened",
		zap.String("key", d.Key),
		zap.String("kind", string(d.Kind)),
		zap.String("message", d.Message),
	)
}

// Close implements Notifier.
func (c *Center) Close(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, visible := c.active[key]; !visible {
		return
	}
	delete(c.active, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Active returns the visible notifications in first-open order.
func (c *Center) Active() []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Descriptor, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.active[k])
	}
	return out
}

// History returns every descriptor ever opened, in open order.
func (c *Center) History() []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Descriptor, len(c.history))
	copy(out, c.history)
	return out
}
