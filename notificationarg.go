package refine

import (
	"github.com/malekhnovich/refine/dataprovider"
	"github.com/malekhnovich/refine/notification"
	"github.com/malekhnovich/refine/resource"
)

// NotificationContext carries the call-site values a computed notification
// receives alongside the outcome: the record id and the combined metadata.
type NotificationContext struct {
	ID   ID
	Meta map[string]any
}

// SuccessNotificationFunc computes a success descriptor from the fetched
// payload. Returning nil means no notification.
type SuccessNotificationFunc func(resp *dataprovider.GetOneResponse, ctx NotificationContext, identity resource.Identity) *notification.Descriptor

// ErrorNotificationFunc computes an error descriptor from the failure.
// Returning nil falls back to the synthesized default.
type ErrorNotificationFunc func(err error, ctx NotificationContext, identity resource.Identity) *notification.Descriptor

// SuccessNotification selects what to show when a fetch succeeds. Exactly one
// of Static and Compute should be set; a nil SuccessNotification means no
// success notification at all.
type SuccessNotification struct {
	Static  *notification.Descriptor
	Compute SuccessNotificationFunc
}

func (n *SuccessNotification) resolve(resp *dataprovider.GetOneResponse, ctx NotificationContext, identity resource.Identity) *notification.Descriptor {
	if n == nil {
		return nil
	}
	if n.Compute != nil {
		return n.Compute(resp, ctx, identity)
	}
	return n.Static
}

// ErrorNotification selects what to show when a fetch fails. A nil
// ErrorNotification, or a Compute returning nil, falls back to the
// synthesized default descriptor; Disabled suppresses the notification
// entirely.
type ErrorNotification struct {
	Static   *notification.Descriptor
	Compute  ErrorNotificationFunc
	Disabled bool
}

// resolve returns the descriptor to dispatch and whether the default should
// be synthesized in its place.
func (n *ErrorNotification) resolve(err error, ctx NotificationContext, identity resource.Identity) (desc *notification.Descriptor, useDefault bool) {
	if n == nil {
		return nil, true
	}
	if n.Disabled {
		return nil, false
	}
	if n.Compute != nil {
		d := n.Compute(err, ctx, identity)
		return d, d == nil
	}
	return n.Static, n.Static == nil
}
