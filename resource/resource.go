// Package resource maps resource names to routing metadata: which data
// provider serves a resource, its default query metadata, and the identifier
// that disambiguates resources sharing a name. Definitions are held in a
// Registry that can be populated programmatically or loaded from a YAML file
// with hot reload.
package resource

// Definition declares one resource.
type Definition struct {
	// Name is the resource name used at call sites and in live channels.
	Name string `yaml:"name"`

	// Identifier disambiguates resources sharing a name under different
	// routing scopes. Defaults to Name.
	Identifier string `yaml:"identifier,omitempty"`

	// Provider selects the data provider instance serving this resource.
	// Empty means the default provider.
	Provider string `yaml:"provider,omitempty"`

	// Meta is resource-level default query metadata, lowest precedence in
	// metadata merging.
	Meta map[string]any `yaml:"meta,omitempty"`
}

// Identity returns the resource's identity pair.
func (d Definition) Identity() Identity {
	return Identity{Name: d.Name, Identifier: d.Identifier}
}

// Identity names one resolved resource.
type Identity struct {
	Name       string
	Identifier string
}

// RouteContext is the ambient routing context a front end derives from its
// current location. It is injected explicitly so resolution stays pure.
type RouteContext struct {
	// Resource is the resource name inferred from the route, used when a
	// call site omits an explicit name.
	Resource string
}

// Resolution is the outcome of resolving a resource name.
type Resolution struct {
	// Resources is the full definition set at resolution time.
	Resources []Definition

	// Resource is the matched definition, nil when nothing matched.
	// A nil Resource means "cannot fetch", not an error.
	Resource *Definition

	// Identifier is the effective resource identifier: the matched
	// definition's identifier, else the requested name itself.
	Identifier string
}

// Identity returns the resolved identity; for an unmatched name it carries
// the requested name in both fields.
func (r Resolution) Identity() Identity {
	if r.Resource != nil {
		return r.Resource.Identity()
	}
	return Identity{Name: r.Identifier, Identifier: r.Identifier}
}
