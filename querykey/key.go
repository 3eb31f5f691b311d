// Package querykey builds deterministic hierarchical cache keys for resource
// queries. Two fetches are the same logical operation exactly when their keys
// are structurally equal; the query cache uses that equality for memoization
// and the live-update path uses it for invalidation targeting.
package querykey

import (
	"encoding/json"
	"strings"
)

// Operation kinds appended by the Family refinements.
const (
	OpOne  = "one"
	OpMany = "many"
	OpList = "list"
)

// Separator joins key segments in the string form used by cache maps.
const Separator = "/"

// Key is an ordered sequence of segments:
// [scope, resource identifier, provider name, operation, record key, meta fingerprint].
type Key struct {
	segs []string
}

// Segments returns a copy of the key's ordered segments.
func (k Key) Segments() []string {
	out := make([]string, len(k.segs))
	copy(out, k.segs)
	return out
}

// String joins the segments for use as a map or storage key.
func (k Key) String() string {
	return strings.Join(k.segs, Separator)
}

// IsZero reports whether the key has no segments.
func (k Key) IsZero() bool {
	return len(k.segs) == 0
}

// Equal reports structural equality of two keys.
func (k Key) Equal(other Key) bool {
	if len(k.segs) != len(other.segs) {
		return false
	}
	for i := range k.segs {
		if k.segs[i] != other.segs[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether the leading segments of k equal prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix.segs) > len(k.segs) {
		return false
	}
	for i := range prefix.segs {
		if k.segs[i] != prefix.segs[i] {
			return false
		}
	}
	return true
}

// Family is the shared stem of all keys for one (scope, resource, provider,
// metadata) combination. Refinements append the operation kind and operation
// arguments, keeping the metadata fingerprint as the final segment.
type Family struct {
	scope       string
	identifier  string
	provider    string
	fingerprint string
}

// New derives a key family. Deep-equal meta always yields the same family;
// any metadata change yields a different fingerprint segment.
func New(scope, identifier, provider string, meta map[string]any) Family {
	return Family{
		scope:       scope,
		identifier:  identifier,
		provider:    provider,
		fingerprint: Fingerprint(meta),
	}
}

// Prefix returns the key prefix shared by every operation of this family,
// without the metadata fingerprint. Useful for prefix invalidation of all
// cached operations on one resource.
func (f Family) Prefix() Key {
	return Key{segs: []string{f.scope, f.identifier, f.provider}}
}

// Detail refines the family into the key for a single-record fetch.
func (f Family) Detail(id string) Key {
	return Key{segs: []string{f.scope, f.identifier, f.provider, OpOne, id, f.fingerprint}}
}

// Many refines the family into the key for a multi-record fetch.
func (f Family) Many(ids ...string) Key {
	return Key{segs: []string{f.scope, f.identifier, f.provider, OpMany, strings.Join(ids, ","), f.fingerprint}}
}

// List refines the family into the key for a list fetch.
func (f Family) List() Key {
	return Key{segs: []string{f.scope, f.identifier, f.provider, OpList, "", f.fingerprint}}
}

// Fingerprint returns the canonical fingerprint of a metadata map. It relies
// on encoding/json emitting map keys in sorted order at every nesting level,
// so deep-equal maps produce identical output and any field change produces a
// different one. Nil and empty maps share the empty-object fingerprint.
func Fingerprint(meta map[string]any) string {
	if len(meta) == 0 {
		return "{}"
	}
	b, err := json.Marshal(meta)
	if err != nil {
		// Non-serializable metadata cannot round-trip through providers either;
		// fall back to the empty fingerprint rather than failing key derivation.
		return "{}"
	}
	return string(b)
}
