package querycache

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/malekhnovich/refine/metrics"
	"github.com/malekhnovich/refine/querykey"
)

// DefaultMaxRetained bounds how many unobserved settled entries the memory
// engine keeps around for rehydration.
const DefaultMaxRetained = 1024

// MemoryConfig configures the in-process engine.
type MemoryConfig struct {
	// MaxRetained caps the retention store for unobserved entries.
	// Zero means DefaultMaxRetained.
	MaxRetained int

	// Logger receives engine-level debug logs. Nil means zap.NewNop().
	Logger *zap.Logger
}

// Memory is the in-process reference Engine. All state lives behind one
// mutex; fetches run on their own goroutines and re-enter under the lock to
// settle.
type Memory struct {
	logger *zap.Logger

	mu       sync.Mutex
	entries  map[string]*entry
	retained *lru.Cache // key string -> retainedResult
}

type retainedResult struct {
	result Result
	keptAt time.Time
	keep   time.Duration
}

type entry struct {
	key  querykey.Key
	skey string

	fetch Fetcher
	opts  Options

	subs    map[int]*memorySub
	nextSub int

	result Result

	// gen counts started fetches. A settle arriving with an older gen was
	// superseded by an invalidation or refetch and is discarded.
	gen uint64

	cancel        context.CancelFunc
	refetchQueued bool
}

type memorySub struct {
	owner    *Memory
	entry    *entry
	id       int
	enabled  bool
	observer Observer
	closed   bool
}

// delivery is a batch of observer invocations collected under the lock and
// run after it is released, so observers may call back into the engine.
type delivery struct {
	observers []Observer
	result    Result
}

// NewMemory builds an in-process engine.
func NewMemory(cfg MemoryConfig) (*Memory, error) {
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = DefaultMaxRetained
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	retained, err := lru.New(cfg.MaxRetained)
	if err != nil {
		return nil, err
	}
	return &Memory{
		logger:   cfg.Logger.Named("querycache"),
		entries:  make(map[string]*entry),
		retained: retained,
	}, nil
}

// Subscribe implements Engine.
func (m *Memory) Subscribe(key querykey.Key, fetch Fetcher, opts Options, observer Observer) Subscription {
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	if opts.KeepUnused <= 0 {
		opts.KeepUnused = DefaultKeepUnused
	}

	m.mu.Lock()
	skey := key.String()
	e := m.entries[skey]
	if e == nil {
		e = &entry{key: key, skey: skey, subs: make(map[int]*memorySub)}
		if rv, ok := m.retained.Get(skey); ok {
			m.retained.Remove(skey)
			r := rv.(retainedResult)
			if time.Since(r.keptAt) < r.keep {
				e.result = r.result
				e.gen = r.result.Generation
			}
		}
		m.entries[skey] = e
		metrics.CacheEntries.Inc()
	}
	// Latest subscriber wins on fetch and options; all subscribers of a key
	// are expected to agree on them.
	e.fetch = fetch
	e.opts = opts

	sub := &memorySub{owner: m, entry: e, id: e.nextSub, enabled: opts.Enabled, observer: observer}
	e.nextSub++
	e.subs[sub.id] = sub

	var deliveries []delivery
	if sub.enabled {
		if m.needsFetchLocked(e) {
			metrics.CacheMisses.Inc()
			deliveries = m.startFetchLocked(e, deliveries)
		} else if e.result.Fetching {
			// A fetch is already in flight for this key; the joiner shares
			// its settle but must still observe the pending state now.
			if observer != nil {
				deliveries = append(deliveries, delivery{
					observers: []Observer{observer},
					result:    e.result,
				})
			}
		} else if e.result.Settled {
			metrics.CacheHits.Inc()
		}
	}
	m.mu.Unlock()

	m.deliver(deliveries)
	return sub
}

// needsFetchLocked reports whether an observed entry requires a fetch.
func (m *Memory) needsFetchLocked(e *entry) bool {
	if e.result.Fetching {
		return false
	}
	if !e.result.Settled || e.result.Stale {
		return true
	}
	if e.opts.StaleAfter > 0 && time.Since(e.result.UpdatedAt) >= e.opts.StaleAfter {
		return true
	}
	return false
}

// startFetchLocked begins a new fetch generation, canceling any superseded
// in-flight fetch, and appends the Fetching notification to deliveries.
func (m *Memory) startFetchLocked(e *entry, deliveries []delivery) []delivery {
	if e.cancel != nil {
		e.cancel()
	}
	e.gen++
	gen := e.gen
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.result.Fetching = true
	e.result.Stale = false
	// The Fetching notification carries the generation of the fetch it
	// announces, matching the settle that follows it.
	e.result.Generation = gen
	deliveries = append(deliveries, m.snapshotLocked(e))

	fetch := e.fetch
	opts := e.opts
	go m.runFetch(ctx, e, gen, fetch, opts)
	return deliveries
}

func (m *Memory) runFetch(ctx context.Context, e *entry, gen uint64, fetch Fetcher, opts Options) {
	data, err := attemptFetch(ctx, fetch, opts)

	m.mu.Lock()
	if m.entries[e.skey] != e || gen != e.gen {
		// Entry was dropped or the fetch was superseded; discard the settle.
		m.mu.Unlock()
		return
	}
	if ctx.Err() != nil && err == nil {
		err = ctx.Err()
	}
	e.cancel = nil
	e.result = Result{
		Data:       data,
		Err:        err,
		Settled:    true,
		UpdatedAt:  time.Now(),
		Generation: gen,
	}
	if err != nil && e.result.Data == nil {
		m.logger.Debug("fetch settled with error",
			zap.String("key", e.skey),
			zap.Uint64("generation", gen),
			zap.Error(err))
	}
	deliveries := []delivery{m.snapshotLocked(e)}
	if e.refetchQueued {
		e.refetchQueued = false
		if anyEnabled(e) {
			deliveries = m.startFetchLocked(e, deliveries)
		}
	}
	m.mu.Unlock()

	m.deliver(deliveries)
}

// attemptFetch runs the fetcher with the entry's retry policy, doubling the
// backoff between attempts. A canceled context stops retrying.
func attemptFetch(ctx context.Context, fetch Fetcher, opts Options) (any, error) {
	backoff := opts.RetryBackoff
	var (
		data any
		err  error
	)
	for attempt := 0; ; attempt++ {
		data, err = fetch(ctx)
		if err == nil || attempt >= opts.Retries || ctx.Err() != nil {
			return data, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// snapshotLocked captures the result and the observers of enabled
// subscriptions in registration order.
func (m *Memory) snapshotLocked(e *entry) delivery {
	d := delivery{result: e.result}
	ids := make([]int, 0, len(e.subs))
	for id := range e.subs {
		ids = append(ids, id)
	}
	// Registration ids are small and few; insertion sort keeps this
	// allocation-free beyond the two slices.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	for _, id := range ids {
		if s := e.subs[id]; s.enabled && s.observer != nil {
			d.observers = append(d.observers, s.observer)
		}
	}
	return d
}

func (m *Memory) deliver(deliveries []delivery) {
	for _, d := range deliveries {
		for _, obs := range d.observers {
			obs(d.result)
		}
	}
}

func anyEnabled(e *entry) bool {
	for _, s := range e.subs {
		if s.enabled {
			return true
		}
	}
	return false
}

// Invalidate implements Engine.
func (m *Memory) Invalidate(key querykey.Key) {
	m.mu.Lock()
	deliveries := m.invalidateLocked(key.String(), nil)
	m.mu.Unlock()
	m.deliver(deliveries)
}

// InvalidatePrefix implements Engine.
func (m *Memory) InvalidatePrefix(prefix querykey.Key) {
	m.mu.Lock()
	var deliveries []delivery
	p := prefix.String()
	for skey := range m.entries {
		if hasKeyPrefix(skey, p) {
			deliveries = m.invalidateLocked(skey, deliveries)
		}
	}
	for _, kv := range m.retained.Keys() {
		if skey, ok := kv.(string); ok && hasKeyPrefix(skey, p) {
			m.retained.Remove(skey)
		}
	}
	m.mu.Unlock()
	m.deliver(deliveries)
}

func (m *Memory) invalidateLocked(skey string, deliveries []delivery) []delivery {
	m.retained.Remove(skey)
	e := m.entries[skey]
	if e == nil {
		return deliveries
	}
	if anyEnabled(e) {
		if e.result.Fetching {
			e.refetchQueued = true
			return deliveries
		}
		return m.startFetchLocked(e, deliveries)
	}
	e.result.Stale = true
	return deliveries
}

func hasKeyPrefix(skey, prefix string) bool {
	if prefix == "" {
		return true
	}
	return skey == prefix || strings.HasPrefix(skey, prefix+querykey.Separator)
}

// Snapshot implements Subscription.
func (s *memorySub) Snapshot() Result {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	return s.entry.result
}

// Refetch implements Subscription.
func (s *memorySub) Refetch() {
	s.owner.mu.Lock()
	if s.closed {
		s.owner.mu.Unlock()
		return
	}
	e := s.entry
	var deliveries []delivery
	if e.result.Fetching {
		e.refetchQueued = true
	} else {
		deliveries = s.owner.startFetchLocked(e, nil)
	}
	s.owner.mu.Unlock()
	s.owner.deliver(deliveries)
}

// SetEnabled implements Subscription.
func (s *memorySub) SetEnabled(enabled bool) {
	s.owner.mu.Lock()
	if s.closed || s.enabled == enabled {
		s.owner.mu.Unlock()
		return
	}
	s.enabled = enabled
	e := s.entry
	var deliveries []delivery
	if enabled {
		if s.owner.needsFetchLocked(e) {
			deliveries = s.owner.startFetchLocked(e, nil)
		}
	} else if !anyEnabled(e) && e.cancel != nil {
		// Last enabled subscriber went dormant; abort the in-flight fetch.
		e.cancel()
		e.cancel = nil
		e.gen++
		e.result.Fetching = false
		e.refetchQueued = false
	}
	s.owner.mu.Unlock()
	s.owner.deliver(deliveries)
}

// Close implements Subscription.
func (s *memorySub) Close() {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	e := s.entry
	delete(e.subs, s.id)
	if len(e.subs) > 0 {
		return
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
		e.gen++
	}
	delete(s.owner.entries, e.skey)
	metrics.CacheEntries.Dec()
	if e.result.Settled {
		r := e.result
		r.Fetching = false
		s.owner.retained.Add(e.skey, retainedResult{
			result: r,
			keptAt: time.Now(),
			keep:   e.opts.KeepUnused,
		})
	}
}
