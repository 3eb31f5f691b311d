// Package dataprovider defines the backend adapter contract for resource
// record access and a registry of named provider instances. Concrete
// providers live in subpackages (rest, sqlds, redisds, consulds, memds).
package dataprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/malekhnovich/refine/querykey"
)

// DefaultName is the provider name used when a resource does not select one.
const DefaultName = "default"

// ID is an opaque record identifier within a resource. The zero value means
// "no record", in which case no fetch may execute.
type ID string

// IntID builds an ID from an integer record key.
func IntID(i int64) ID {
	return ID(strconv.FormatInt(i, 10))
}

// IsZero reports whether the ID is absent.
func (id ID) IsZero() bool { return id == "" }

func (id ID) String() string { return string(id) }

// Record is one decoded resource record.
type Record = map[string]any

// QueryContext carries engine-provided request context to providers that need
// it: the cache key identifying the logical operation and an optional
// pagination hint. Cancellation travels on the call's context.Context.
type QueryContext struct {
	Key       querykey.Key
	PageParam any
}

// GetOneRequest asks a provider for a single record.
type GetOneRequest struct {
	// Resource is the resource name as routed to this provider.
	Resource string

	// ID names the record. Providers must reject a zero ID.
	ID ID

	// Meta is the combined query metadata, forwarded verbatim.
	Meta map[string]any

	// Query is the engine-provided request context bundle.
	Query QueryContext
}

// GetOneResponse is a provider's successful single-record result.
type GetOneResponse struct {
	// Data is the decoded record.
	Data Record

	// Raw is the full raw response envelope as received from the backend.
	Raw json.RawMessage
}

// GetOner fetches single records. It is the minimal contract the fetch
// orchestrator requires.
type GetOner interface {
	GetOne(ctx context.Context, req GetOneRequest) (*GetOneResponse, error)
}

// DataProvider is a full backend adapter. Today it equals GetOner; companion
// operations are added here as they are orchestrated.
type DataProvider interface {
	GetOner
}

// Registry stores named provider instances. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]DataProvider
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]DataProvider)}
}

// Register adds a provider under a name. An empty name registers the default
// provider. Duplicate names are rejected.
func (r *Registry) Register(name string, p DataProvider) error {
	if p == nil {
		return fmt.Errorf("dataprovider: register %q: provider is nil", name)
	}
	if name == "" {
		name = DefaultName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("dataprovider: duplicate provider %q", name)
	}
	r.providers[name] = p
	return nil
}

// MustRegister panics on registration error; intended for bootstrap code paths.
func (r *Registry) MustRegister(name string, p DataProvider) {
	if err := r.Register(name, p); err != nil {
		panic(err)
	}
}

// Get returns the provider registered under name; an empty name selects the
// default provider.
func (r *Registry) Get(name string) (DataProvider, error) {
	if name == "" {
		name = DefaultName
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("dataprovider: provider %q not registered", name)
	}
	return p, nil
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
