package refine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/malekhnovich/refine/dataprovider"
	"github.com/malekhnovich/refine/live"
	"github.com/malekhnovich/refine/metrics"
	"github.com/malekhnovich/refine/notification"
	"github.com/malekhnovich/refine/querycache"
	"github.com/malekhnovich/refine/querykey"
	"github.com/malekhnovich/refine/resource"
	"github.com/malekhnovich/refine/stall"
	"github.com/malekhnovich/refine/tracing"
)

// QueryOptions are passed through to the cache engine. Retry policy lives in
// the engine, the orchestrator itself never retries.
type QueryOptions struct {
	StaleAfter   time.Duration
	KeepUnused   time.Duration
	Retries      int
	RetryBackoff time.Duration
}

// LiveOptions tune the query's live-update subscription.
type LiveOptions struct {
	// Enabled overrides the default, which subscribes whenever the resource
	// name is known and the record id is present.
	Enabled *bool

	// Mode selects how events apply. ModeAuto (the default) invalidates the
	// cache key on every event; ModeManual only hands events to OnEvent.
	Mode live.Mode

	// OnEvent replaces the default invalidation handler.
	OnEvent func(live.Event)

	// Params are extra transport-specific subscription parameters.
	Params map[string]any
}

// GetOneOptions describe one single-record query.
type GetOneOptions struct {
	// Resource is the resource name. Empty falls back to the ambient route.
	Resource string

	// ID names the record. A zero ID keeps the query dormant.
	ID ID

	// Meta is explicit query metadata, highest merge precedence.
	Meta map[string]any

	// MetaData is accepted for call-site compatibility and merged beneath
	// Meta.
	//
	// Deprecated: use Meta.
	MetaData map[string]any

	// DataProvider selects the backend by name, overriding the resource's
	// routing metadata.
	DataProvider string

	// Enabled forces the fetch gate. Unset derives it from resource and ID
	// presence; forcing true with a zero ID fails fast with a precondition
	// error instead of calling the provider.
	Enabled *bool

	Query QueryOptions
	Live  LiveOptions

	// SuccessNotification selects the descriptor shown on success; nil shows
	// nothing.
	SuccessNotification *SuccessNotification

	// ErrorNotification selects the descriptor shown on failure; nil
	// synthesizes the default.
	ErrorNotification *ErrorNotification

	// OnSuccess runs once per successful settle, before the notification.
	OnSuccess func(resp *dataprovider.GetOneResponse)

	// OnError runs once per failed settle, after auth escalation and before
	// the notification.
	OnError func(err error)

	// StallInterval overrides the client's watchdog tick interval.
	StallInterval time.Duration

	// OnStall runs on every watchdog tick while a fetch is pending.
	OnStall func(elapsed time.Duration)

	// Route overrides the client's ambient route context for this query.
	Route *resource.RouteContext
}

// QueryResult is the observable outcome of a mounted query.
type QueryResult struct {
	// Response is the last successful provider response, nil before the
	// first success.
	Response *dataprovider.GetOneResponse

	// Err is the last settle error, nil on success.
	Err error

	// Fetching reports an in-flight fetch.
	Fetching bool

	// Settled reports that at least one fetch has completed.
	Settled bool
}

// Data returns the decoded record of the last successful response.
func (r QueryResult) Data() Record {
	if r.Response == nil {
		return nil
	}
	return r.Response.Data
}

// GetOneQuery is a mounted single-record query. It stays registered on the
// cache and the live broker until Close, tracking invalidations as they
// happen. Safe for concurrent use.
type GetOneQuery struct {
	client *Client
	opts   GetOneOptions

	watchdog     *stall.Watchdog
	resourceName atomic.Value // string label for stall metrics

	// lifecycle serializes mount transitions (initial mount, SetID,
	// SetEnabled, Close) so subscriptions never overlap across key versions.
	lifecycle sync.Mutex

	// Internal state, guarded by mu.
	mu          sync.Mutex
	closed      bool
	id          ID
	forced      *bool
	keyGen      uint64
	lastSettled uint64
	key         querykey.Key
	cacheSub    querycache.Subscription
	liveSub     live.Subscription
}

// GetOne mounts a single-record query. The returned handle is live
// immediately: if the resource resolves and the ID is present, the fetch is
// already issued (or served from cache) when GetOne returns.
func (c *Client) GetOne(opts GetOneOptions) *GetOneQuery {
	q := &GetOneQuery{
		client: c,
		opts:   opts,
		id:     opts.ID,
		forced: opts.Enabled,
	}
	interval := opts.StallInterval
	if interval <= 0 {
		interval = c.stallEvery
	}
	q.resourceName.Store(opts.Resource)
	q.watchdog = stall.New(interval, func(elapsed time.Duration) {
		if elapsed == interval {
			name, _ := q.resourceName.Load().(string)
			metrics.StalledFetches.WithLabelValues(name).Inc()
		}
		if opts.OnStall != nil {
			opts.OnStall(elapsed)
		}
	})
	metrics.ActiveQueries.Inc()
	q.mount()
	return q
}

// mount resolves the query inputs, tears down the previous key version and
// registers the live subscription followed by the cache subscription. The
// live registration always precedes the cache subscribe, and the old live
// subscription is closed strictly before the new one is opened.
func (q *GetOneQuery) mount() {
	q.lifecycle.Lock()
	defer q.lifecycle.Unlock()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	id := q.id
	forced := q.forced
	oldLive, oldCache := q.liveSub, q.cacheSub
	q.liveSub, q.cacheSub = nil, nil
	q.keyGen++
	keyGen := q.keyGen
	// Generations restart with the new cache entry.
	q.lastSettled = 0
	q.mu.Unlock()

	if oldLive != nil {
		_ = oldLive.Close()
	}
	if oldCache != nil {
		oldCache.Close()
	}
	q.watchdog.SetPending(false)

	c := q.client
	route := c.route
	if q.opts.Route != nil {
		route = *q.opts.Route
	}
	res := c.resources.Resolve(q.opts.Resource, route)
	identity := res.Identity()
	var resourceMeta map[string]any
	if res.Resource != nil {
		resourceMeta = res.Resource.Meta
	}
	meta := CombineMeta(resourceMeta, q.opts.MetaData, q.opts.Meta)
	provider := q.providerName(res, meta)
	enabled := identity.Name != "" && res.Resource != nil && !id.IsZero()
	if forced != nil {
		enabled = *forced
	}
	key := querykey.New(c.scope, identity.Identifier, provider, meta).Detail(id.String())
	q.resourceName.Store(identity.Name)

	var liveSub live.Subscription
	if c.live != nil && q.liveEnabled(identity, id) {
		liveSub = q.subscribeLive(identity, id, meta, key)
	}

	fetch := q.fetcher(res, identity, id, meta, provider, key)
	cacheSub := c.cache.Subscribe(key, fetch, querycache.Options{
		Enabled:      enabled,
		StaleAfter:   q.opts.Query.StaleAfter,
		KeepUnused:   q.opts.Query.KeepUnused,
		Retries:      q.opts.Query.Retries,
		RetryBackoff: q.opts.Query.RetryBackoff,
	}, func(r querycache.Result) { q.onResult(keyGen, id, meta, identity, r) })

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		if liveSub != nil {
			_ = liveSub.Close()
		}
		cacheSub.Close()
		return
	}
	q.key = key
	q.liveSub = liveSub
	q.cacheSub = cacheSub
	q.mu.Unlock()
}

func (q *GetOneQuery) providerName(res resource.Resolution, meta map[string]any) string {
	if q.opts.DataProvider != "" {
		return q.opts.DataProvider
	}
	if name, ok := meta["dataProviderName"].(string); ok && name != "" {
		return name
	}
	if res.Resource != nil && res.Resource.Provider != "" {
		return res.Resource.Provider
	}
	return dataprovider.DefaultName
}

func (q *GetOneQuery) liveEnabled(identity resource.Identity, id ID) bool {
	if q.opts.Live.Enabled != nil {
		return *q.opts.Live.Enabled
	}
	return identity.Name != "" && !id.IsZero()
}

func (q *GetOneQuery) subscribeLive(identity resource.Identity, id ID, meta map[string]any, key querykey.Key) live.Subscription {
	c := q.client
	channel := live.Channel(identity.Name)
	mode := q.opts.Live.Mode
	if mode == "" {
		mode = live.ModeAuto
	}
	handler := q.opts.Live.OnEvent
	if handler == nil {
		if mode == live.ModeAuto {
			handler = func(live.Event) { c.cache.Invalidate(key) }
		} else {
			handler = func(live.Event) {}
		}
	}
	sub, err := c.live.Subscribe(live.SubscribeParams{
		Channel: channel,
		Types:   []live.EventType{live.EventWildcard},
		Params: live.SubscriptionParams{
			IDs:   []string{id.String()},
			ID:    id.String(),
			Meta:  meta,
			Kind:  querykey.OpOne,
			Extra: q.opts.Live.Params,
		},
		Mode: mode,
		OnEvent: func(e live.Event) {
			metrics.LiveEvents.WithLabelValues(channel).Inc()
			handler(e)
		},
	})
	if err != nil {
		c.logger.Warn("live subscription failed",
			zap.String("channel", channel),
			zap.Error(err))
		return nil
	}
	return sub
}

// fetcher builds the cache-engine fetcher over an immutable snapshot of the
// resolved inputs. Precondition failures surface here, before any provider
// call, so a forced-enabled query with missing inputs still settles with an
// error instead of hitting the backend.
func (q *GetOneQuery) fetcher(res resource.Resolution, identity resource.Identity, id ID, meta map[string]any, provider string, key querykey.Key) querycache.Fetcher {
	c := q.client
	return func(ctx context.Context) (_ any, err error) {
		ctx, span := c.tracer.StartGetOne(ctx, identity.Name, identity.Identifier, provider, id.String())
		defer func() { tracing.EndSpan(span, err) }()

		if id.IsZero() {
			return nil, errMissingID(identity.Name)
		}
		if res.Resource == nil {
			return nil, &UnknownResourceError{Name: identity.Name}
		}
		p, err := c.providers.Get(provider)
		if err != nil {
			return nil, err
		}

		callCtx, callSpan := c.tracer.StartProviderCall(ctx, identity.Name, provider, id.String(), key.String())
		start := time.Now()
		resp, err := p.GetOne(callCtx, dataprovider.GetOneRequest{
			Resource: identity.Name,
			ID:       id,
			Meta:     meta,
			Query:    dataprovider.QueryContext{Key: key},
		})
		metrics.FetchLatency.WithLabelValues(identity.Name, provider).Observe(time.Since(start).Seconds())
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		metrics.FetchTotal.WithLabelValues(identity.Name, provider, outcome).Inc()
		tracing.EndSpan(callSpan, err)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
}

// onResult is the cache observer. Results from a superseded key version and
// repeated notifications of an already-handled settle are discarded, so the
// callback and notification pipeline runs at most once per settle. The
// dispatch context (id, meta, identity) is the snapshot the observer was
// mounted with; a settle can arrive before mount finishes writing the struct
// fields, so they are never read back here.
func (q *GetOneQuery) onResult(keyGen uint64, id ID, meta map[string]any, identity resource.Identity, r querycache.Result) {
	q.mu.Lock()
	if q.closed || keyGen != q.keyGen || r.Generation <= q.lastSettled {
		q.mu.Unlock()
		return
	}
	if r.Fetching {
		q.mu.Unlock()
		q.watchdog.SetPending(true)
		return
	}
	if !r.Settled {
		q.mu.Unlock()
		return
	}
	q.lastSettled = r.Generation
	q.mu.Unlock()

	q.watchdog.SetPending(false)
	if r.Err != nil {
		q.dispatchError(r.Err, id, meta, identity)
		return
	}
	resp, _ := r.Data.(*dataprovider.GetOneResponse)
	q.dispatchSuccess(resp, id, meta, identity)
}

func (q *GetOneQuery) dispatchSuccess(resp *dataprovider.GetOneResponse, id ID, meta map[string]any, identity resource.Identity) {
	if q.opts.OnSuccess != nil {
		q.opts.OnSuccess(resp)
	}
	nctx := NotificationContext{ID: id, Meta: meta}
	if d := q.opts.SuccessNotification.resolve(resp, nctx, identity); d != nil {
		q.openNotification(*d)
	}
}

// dispatchError runs the error pipeline in its fixed order: auth escalation,
// caller callback, notification.
func (q *GetOneQuery) dispatchError(err error, id ID, meta map[string]any, identity resource.Identity) {
	c := q.client
	if c.classifier.IsAuthError(err) {
		metrics.AuthEscalations.Inc()
		if c.reporter != nil {
			c.reporter.ReportError(err)
		}
	}
	if q.opts.OnError != nil {
		q.opts.OnError(err)
	}
	nctx := NotificationContext{ID: id, Meta: meta}
	d, useDefault := q.opts.ErrorNotification.resolve(err, nctx, identity)
	if d == nil && useDefault {
		d = q.defaultErrorNotification(err, id, identity)
	}
	if d != nil {
		q.openNotification(*d)
	}
	c.logger.Debug("fetch settled with error",
		zap.String("resource", identity.Name),
		zap.String("id", id.String()),
		zap.Error(err))
}

// defaultErrorNotification synthesizes the fallback descriptor shown for
// otherwise unhandled failures. The key is deterministic per record and
// resource, so repeated failures replace the visible notification.
func (q *GetOneQuery) defaultErrorNotification(err error, id ID, identity resource.Identity) *notification.Descriptor {
	statusCode, _ := dataprovider.ErrorStatus(err)
	message := q.client.translator.Translate("notifications.error",
		map[string]any{"statusCode": statusCode},
		fmt.Sprintf("Error (status code: %d)", statusCode))
	description := err.Error()
	var typed *dataprovider.Error
	if errors.As(err, &typed) && typed.Message != "" {
		description = typed.Message
	}
	return &notification.Descriptor{
		Key:         fmt.Sprintf("%s-%s-getOne-notification", id, identity.Identifier),
		Message:     message,
		Description: description,
		Kind:        notification.KindError,
	}
}

func (q *GetOneQuery) openNotification(d notification.Descriptor) {
	metrics.NotificationsOpened.WithLabelValues(string(d.Kind)).Inc()
	q.client.notifier.Open(d)
}

// Snapshot returns the query's current observable state.
func (q *GetOneQuery) Snapshot() QueryResult {
	q.mu.Lock()
	sub := q.cacheSub
	q.mu.Unlock()
	if sub == nil {
		return QueryResult{}
	}
	r := sub.Snapshot()
	out := QueryResult{Err: r.Err, Fetching: r.Fetching, Settled: r.Settled}
	if resp, ok := r.Data.(*dataprovider.GetOneResponse); ok {
		out.Response = resp
	}
	return out
}

// Key returns the cache key of the current key version.
func (q *GetOneQuery) Key() querykey.Key {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.key
}

// Elapsed returns how long the current fetch has been pending, in whole
// watchdog intervals. Zero when no fetch is pending.
func (q *GetOneQuery) Elapsed() time.Duration {
	return q.watchdog.Elapsed()
}

// Refetch forces a new fetch on the current key.
func (q *GetOneQuery) Refetch() {
	q.mu.Lock()
	sub := q.cacheSub
	closed := q.closed
	q.mu.Unlock()
	if sub != nil && !closed {
		sub.Refetch()
	}
}

// SetID switches the query to another record. The old key version's live
// subscription and cache registration are torn down before the new ones are
// opened; a settle still in flight for the old key is discarded.
func (q *GetOneQuery) SetID(id ID) {
	q.mu.Lock()
	if q.closed || q.id == id {
		q.mu.Unlock()
		return
	}
	q.id = id
	q.mu.Unlock()
	q.mount()
}

// SetEnabled forces the fetch gate, overriding the derived default from this
// point on.
func (q *GetOneQuery) SetEnabled(enabled bool) {
	q.mu.Lock()
	if q.closed || (q.forced != nil && *q.forced == enabled) {
		q.mu.Unlock()
		return
	}
	q.forced = &enabled
	q.mu.Unlock()
	q.mount()
}

// Close unmounts the query, tearing down the live subscription, the cache
// registration and the watchdog. Idempotent.
func (q *GetOneQuery) Close() {
	q.lifecycle.Lock()
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.lifecycle.Unlock()
		return
	}
	q.closed = true
	liveSub, cacheSub := q.liveSub, q.cacheSub
	q.liveSub, q.cacheSub = nil, nil
	q.mu.Unlock()
	q.lifecycle.Unlock()

	if liveSub != nil {
		_ = liveSub.Close()
	}
	if cacheSub != nil {
		cacheSub.Close()
	}
	q.watchdog.Close()
	metrics.ActiveQueries.Dec()
}
