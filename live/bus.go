package live

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Bus is an in-process Broker. Handlers for a channel are invoked
// synchronously in registration order; subscriptions on the wildcard channel
// "*" receive every event. Safe for concurrent use.
type Bus struct {
	logger *zap.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]*busSubscription
}

// NewBus creates a Bus. logger may be nil.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger: logger.Named("live"),
		subs:   make(map[string]map[int]*busSubscription),
	}
}

type busSubscription struct {
	bus     *Bus
	channel string
	id      int
	types   []EventType
	onEvent func(Event)

	closeOnce sync.Once
}

// Close implements Subscription.
func (s *busSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if handlers, ok := s.bus.subs[s.channel]; ok {
			delete(handlers, s.id)
			if len(handlers) == 0 {
				delete(s.bus.subs, s.channel)
			}
		}
	})
	return nil
}

// Subscribe implements Broker.
func (b *Bus) Subscribe(p SubscribeParams) (Subscription, error) {
	if p.Channel == "" {
		return nil, fmt.Errorf("live: subscribe: channel is empty")
	}
	if p.OnEvent == nil {
		return nil, fmt.Errorf("live: subscribe: OnEvent is nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &busSubscription{
		bus:     b,
		channel: p.Channel,
		id:      b.nextID,
		types:   p.Types,
		onEvent: p.OnEvent,
	}
	if b.subs[p.Channel] == nil {
		b.subs[p.Channel] = make(map[int]*busSubscription)
	}
	b.subs[p.Channel][sub.id] = sub
	return sub, nil
}

// Publish delivers an event to all matching subscribers. Handlers are copied
// under the read lock and invoked without it, so a handler may subscribe or
// unsubscribe.
func (b *Bus) Publish(event Event) {
	if event.Date.IsZero() {
		event.Date = time.Now()
	}

	b.mu.RLock()
	matched := make([]*busSubscription, 0, len(b.subs[event.Channel])+len(b.subs["*"]))
	for _, sub := range b.subs[event.Channel] {
		matched = append(matched, sub)
	}
	for _, sub := range b.subs["*"] {
		matched = append(matched, sub)
	}
	b.mu.RUnlock()

	// Stable delivery order: ascending registration id.
	sortSubscriptions(matched)

	b.logger.Debug("publishing live event",
		zap.String("channel", event.Channel),
		zap.String("type", string(event.Type)),
		zap.Strings("ids", event.IDs),
	)

	for _, sub := range matched {
		if matchesType(sub.types, event.Type) {
			sub.onEvent(event)
		}
	}
}

// SubscriberCount returns the number of active subscriptions on a channel.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

func sortSubscriptions(subs []*busSubscription) {
	for i := 1; i < len(subs); i++ {
		for j := i; j > 0 && subs[j].id < subs[j-1].id; j-- {
			subs[j], subs[j-1] = subs[j-1], subs[j]
		}
	}
}
