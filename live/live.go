// Package live defines the real-time change-event contract used to keep
// cached resource data fresh, plus an in-process Bus implementation. Remote
// transports (see the redisbus subpackage) implement the same Broker
// interface.
package live

import "time"

// EventType classifies a change event.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"

	// EventWildcard in a subscription's Types matches every event type.
	EventWildcard EventType = "*"
)

// Mode controls how received events are applied by the consumer.
type Mode string

const (
	// ModeAuto applies events immediately (the default: mark cache stale).
	ModeAuto Mode = "auto"
	// ModeManual hands events to the caller without any default behavior.
	ModeManual Mode = "manual"
)

// Event is one change notification delivered on a channel.
type Event struct {
	Channel string         `json:"channel"`
	Type    EventType      `json:"type"`
	IDs     []string       `json:"ids,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
	Date    time.Time      `json:"date"`
}

// SubscriptionParams scope a subscription to particular records and carry the
// query metadata the subscription was registered with.
type SubscriptionParams struct {
	IDs  []string
	ID   string
	Meta map[string]any

	// Kind names the operation this subscription backs ("one", "many", "list").
	Kind string

	// Extra holds transport-specific parameters forwarded verbatim.
	Extra map[string]any
}

// SubscribeParams describe one registration with a Broker.
type SubscribeParams struct {
	// Channel is the event channel, conventionally "resources/{resourceName}".
	Channel string

	// Types filters delivered events; EventWildcard matches all.
	Types []EventType

	Params SubscriptionParams
	Mode   Mode

	// OnEvent receives every matching event. Must be non-nil.
	OnEvent func(Event)
}

// Subscription is one active registration. Close is idempotent.
type Subscription interface {
	Close() error
}

// Broker delivers change events to subscribers.
type Broker interface {
	Subscribe(p SubscribeParams) (Subscription, error)
}

// Channel builds the conventional channel name for a resource.
func Channel(resourceName string) string {
	return "resources/" + resourceName
}

// matchesType reports whether a subscription's type filter accepts an event.
func matchesType(types []EventType, t EventType) bool {
	if len(types) == 0 {
		return true
	}
	for _, candidate := range types {
		if candidate == EventWildcard || candidate == t {
			return true
		}
	}
	return false
}
