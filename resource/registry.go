package resource

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Registry holds the declared resource definitions. The definition set is
// swapped atomically on reload, so resolutions observe a consistent snapshot.
// Safe for concurrent use.
type Registry struct {
	logger *zap.Logger

	mu   sync.RWMutex
	defs []Definition
}

// NewRegistry creates a Registry with the given definitions. Identifiers
// default to the resource name.
func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{logger: zap.NewNop()}
	r.Replace(defs)
	return r
}

// SetLogger attaches a logger for reload diagnostics.
func (r *Registry) SetLogger(logger *zap.Logger) {
	if logger != nil {
		r.logger = logger.Named("resources")
	}
}

// Replace swaps the whole definition set.
func (r *Registry) Replace(defs []Definition) {
	normalized := make([]Definition, len(defs))
	copy(normalized, defs)
	for i := range normalized {
		if normalized[i].Identifier == "" {
			normalized[i].Identifier = normalized[i].Name
		}
	}
	r.mu.Lock()
	r.defs = normalized
	r.mu.Unlock()
}

// Add appends one definition.
func (r *Registry) Add(def Definition) {
	if def.Identifier == "" {
		def.Identifier = def.Name
	}
	r.mu.Lock()
	r.defs = append(r.defs, def)
	r.mu.Unlock()
}

// Definitions returns a snapshot of the declared resources.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Resolve maps a resource name to its definition. An empty explicitName falls
// back to the ambient route context. Resolution is pure given the registry
// snapshot: no match yields a nil Resource, never an error.
func (r *Registry) Resolve(explicitName string, route RouteContext) Resolution {
	name := explicitName
	if name == "" {
		name = route.Resource
	}

	defs := r.Definitions()
	resolution := Resolution{Resources: defs, Identifier: name}
	for i := range defs {
		if defs[i].Name == name {
			resolution.Resource = &defs[i]
			resolution.Identifier = defs[i].Identifier
			break
		}
	}
	return resolution
}

// resourceFile is the YAML document shape for LoadFile.
type resourceFile struct {
	Resources []Definition `yaml:"resources"`
}

// ParseFile parses a YAML resource declaration document.
func ParseFile(data []byte) ([]Definition, error) {
	var doc resourceFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("resource: parse declarations: %w", err)
	}
	for i, def := range doc.Resources {
		if def.Name == "" {
			return nil, fmt.Errorf("resource: declaration %d has no name", i)
		}
	}
	return doc.Resources, nil
}

// LoadFile replaces the definition set from a YAML file.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("resource: read %s: %w", path, err)
	}
	defs, err := ParseFile(data)
	if err != nil {
		return err
	}
	r.Replace(defs)
	r.logger.Info("resource declarations loaded",
		zap.String("path", path),
		zap.Int("resources", len(defs)),
	)
	return nil
}
