// Package refine is a resource-data-access layer: given a named resource
// behind a pluggable backend, it fetches records, keeps them fresh through a
// key-based query cache and live change events, and dispatches user-facing
// notifications, with authentication failures escalated out of band.
//
// The entry point is Client. Client.GetOne mounts a long-lived single-record
// query whose snapshot tracks the cache; subpackages hold the collaborators
// (resource, querykey, querycache, dataprovider, live, notification,
// translate, auth, stall).
package refine

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/malekhnovich/refine/auth"
	"github.com/malekhnovich/refine/dataprovider"
	"github.com/malekhnovich/refine/live"
	"github.com/malekhnovich/refine/notification"
	"github.com/malekhnovich/refine/querycache"
	"github.com/malekhnovich/refine/resource"
	"github.com/malekhnovich/refine/stall"
	"github.com/malekhnovich/refine/tracing"
	"github.com/malekhnovich/refine/translate"
)

// ID aliases the provider-level record identifier so call sites need only
// this package.
type ID = dataprovider.ID

// Record aliases the decoded record type.
type Record = dataprovider.Record

// StringID builds an ID from a string record key.
func StringID(s string) ID { return ID(s) }

// IntID builds an ID from an integer record key.
func IntID(i int64) ID { return dataprovider.IntID(i) }

// Config assembles a Client from its collaborators. Providers is the only
// required field; every other collaborator has a self-contained default.
type Config struct {
	// Providers is the registry of named backend adapters.
	Providers *dataprovider.Registry

	// Resources maps resource names to routing metadata. Defaults to an
	// empty registry, in which case unresolved names stay dormant.
	Resources *resource.Registry

	// Cache is the query cache engine. Defaults to an in-process engine.
	Cache querycache.Engine

	// Live delivers change events. Nil disables live updates.
	Live live.Broker

	// Notifier renders notifications. Defaults to a no-op notifier.
	Notifier notification.Notifier

	// Translator localizes notification messages. Defaults to fallback
	// passthrough.
	Translator translate.Translator

	// AuthReporter is the out-of-band escalation channel for classified
	// authentication failures. Nil disables escalation, classification still
	// runs for metrics.
	AuthReporter auth.Reporter

	// Classifier decides which failures escalate. Defaults to status 401.
	Classifier *auth.Classifier

	// Route is the ambient routing context used when a call site omits the
	// resource name.
	Route resource.RouteContext

	// Scope prefixes every cache key, isolating multiple Clients sharing one
	// cache engine.
	Scope string

	// StallInterval is the default tick interval for the per-query stall
	// watchdog. Zero means stall.DefaultInterval.
	StallInterval time.Duration

	// TraceEnabled turns on OpenTelemetry spans around fetches.
	TraceEnabled bool

	// Logger receives orchestration logs. Nil means zap.NewNop().
	Logger *zap.Logger
}

// Client orchestrates resource fetches. Safe for concurrent use; one Client
// serves any number of mounted queries.
type Client struct {
	providers  *dataprovider.Registry
	resources  *resource.Registry
	cache      querycache.Engine
	live       live.Broker
	notifier   notification.Notifier
	translator translate.Translator
	reporter   auth.Reporter
	classifier *auth.Classifier
	route      resource.RouteContext
	scope      string
	stallEvery time.Duration
	tracer     *tracing.Tracer
	logger     *zap.Logger
}

// New builds a Client, applying defaults for absent collaborators.
func New(cfg Config) (*Client, error) {
	if cfg.Providers == nil {
		return nil, errors.New("refine: config requires a provider registry")
	}
	if cfg.Resources == nil {
		cfg.Resources = resource.NewRegistry()
	}
	if cfg.Cache == nil {
		engine, err := querycache.NewMemory(querycache.MemoryConfig{Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
		cfg.Cache = engine
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notification.NopNotifier{}
	}
	if cfg.Translator == nil {
		cfg.Translator = translate.Noop{}
	}
	if cfg.Classifier == nil {
		cfg.Classifier = auth.NewClassifier()
	}
	if cfg.StallInterval <= 0 {
		cfg.StallInterval = stall.DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		providers:  cfg.Providers,
		resources:  cfg.Resources,
		cache:      cfg.Cache,
		live:       cfg.Live,
		notifier:   cfg.Notifier,
		translator: cfg.Translator,
		reporter:   cfg.AuthReporter,
		classifier: cfg.Classifier,
		route:      cfg.Route,
		scope:      cfg.Scope,
		stallEvery: cfg.StallInterval,
		tracer:     tracing.NewTracer(cfg.TraceEnabled),
		logger:     cfg.Logger.Named("refine"),
	}, nil
}

// Cache exposes the client's query cache engine, for invalidation from
// mutation paths.
func (c *Client) Cache() querycache.Engine { return c.cache }

// Resources exposes the resource registry.
func (c *Client) Resources() *resource.Registry { return c.resources }
