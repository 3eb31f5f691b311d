// Package notification defines the user-facing notification contract consumed
// by the fetch orchestrators, plus an in-process Center implementation.
//
// Descriptors with equal keys replace a currently visible notification rather
// than stacking, so repeated failures on the same key surface exactly once.
package notification

// Kind classifies a notification for rendering.
type Kind string

const (
	KindSuccess  Kind = "success"
	KindError    Kind = "error"
	KindProgress Kind = "progress"
)

// Descriptor is one renderable notification. Key is the deduplication handle.
type Descriptor struct {
	Key         string
	Message     string
	Description string
	Kind        Kind
}

// Notifier renders and dismisses user-visible notifications.
type Notifier interface {
	// Open shows the notification, replacing any visible one with the same key.
	Open(d Descriptor)

	// Close dismisses the notification with the given key, if visible.
	Close(key string)
}

// NopNotifier discards everything. Used when no renderer is wired.
type NopNotifier struct{}

func (NopNotifier) Open(Descriptor) {}
func (NopNotifier) Close(string)    {}
