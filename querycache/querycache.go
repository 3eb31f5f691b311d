// Package querycache implements the generic async query cache behind the
// fetch orchestrators: key-based memoization of asynchronous fetches, with
// per-key deduplication, staleness marking, retry, and settle fan-out to all
// subscribers of a key.
package querycache

import (
	"context"
	"time"

	"github.com/malekhnovich/refine/querykey"
)

// Default option values applied by engines.
const (
	DefaultKeepUnused   = 5 * time.Minute
	DefaultRetryBackoff = 100 * time.Millisecond
)

// Fetcher performs the actual backend call for a key. The context is canceled
// when the fetch is superseded or the last subscriber goes away; fetchers
// must honor it as the abort signal.
type Fetcher func(ctx context.Context) (any, error)

// Observer receives every state change of a subscribed key: a result with
// Fetching set when a fetch starts, then a settled result. Observers for one
// key are invoked in registration order.
type Observer func(Result)

// Result is the observable state of one cached query.
type Result struct {
	// Data is the last successful payload, nil before the first success.
	Data any

	// Err is the settle error, nil on success.
	Err error

	// Fetching reports an in-flight fetch.
	Fetching bool

	// Settled reports that at least one fetch has completed.
	Settled bool

	// Stale marks a settled result that should be refetched on next observe.
	Stale bool

	// UpdatedAt is the time of the last settle.
	UpdatedAt time.Time

	// Generation identifies the fetch a result belongs to. It increases with
	// every started fetch; the Fetching notification and the settle of one
	// fetch share the same generation, letting consumers deduplicate
	// repeated or out-of-order notifications.
	Generation uint64
}

// Options tune one subscription's fetch behavior. Retry policy lives here, in
// the cache engine, never in the orchestrators that consume it.
type Options struct {
	// Enabled gates fetching. A disabled subscription still registers, in a
	// dormant state, so enabling it later does not require remounting.
	Enabled bool

	// StaleAfter marks a settled entry stale once this much time has passed
	// since its last settle. Zero means fresh until invalidated.
	StaleAfter time.Duration

	// KeepUnused is how long a settled entry outlives its last subscriber.
	// Zero means DefaultKeepUnused.
	KeepUnused time.Duration

	// Retries is the number of re-attempts after a failed fetch.
	Retries int

	// RetryBackoff is the initial delay between attempts, doubling each
	// retry. Zero means DefaultRetryBackoff.
	RetryBackoff time.Duration
}

// Subscription is one consumer's registration on a cached key.
type Subscription interface {
	// Snapshot returns the current result.
	Snapshot() Result

	// Refetch forces a new fetch. A refetch requested while one is already
	// in flight runs after it settles.
	Refetch()

	// SetEnabled toggles the dormant state.
	SetEnabled(enabled bool)

	// Close unregisters the subscription. When the last subscription on a
	// key closes, any in-flight fetch is aborted.
	Close()
}

// Engine is the cache contract the orchestrators consume.
type Engine interface {
	// Subscribe registers an observer on a key, fetching through fetch when
	// the entry is missing, stale or invalidated. At most one fetch per key
	// is in flight at any time, shared by all subscribers.
	Subscribe(key querykey.Key, fetch Fetcher, opts Options, observer Observer) Subscription

	// Invalidate marks the exact key stale, refetching immediately while the
	// key is observed.
	Invalidate(key querykey.Key)

	// InvalidatePrefix invalidates every key sharing the prefix.
	InvalidatePrefix(prefix querykey.Key)
}
