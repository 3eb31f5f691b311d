// Package translate defines the string-lookup contract used for user-facing
// messages, plus a small map-backed implementation.
package translate

import (
	"fmt"
	"strings"
)

// Translator resolves a message key to a localized string. When the key is
// unknown the fallback is returned as-is.
type Translator interface {
	Translate(key string, params map[string]any, fallback string) string
}

// Noop always returns the fallback. It is the behavior callers get when no
// translator is configured.
type Noop struct{}

// Translate implements Translator.
func (Noop) Translate(_ string, _ map[string]any, fallback string) string {
	return fallback
}

// Map is a Translator backed by a key -> template map. Templates interpolate
// {{name}} placeholders from params.
type Map map[string]string

// Translate implements Translator.
func (m Map) Translate(key string, params map[string]any, fallback string) string {
	tmpl, ok := m[key]
	if !ok {
		return fallback
	}
	return Interpolate(tmpl, params)
}

// Interpolate replaces {{name}} placeholders in tmpl with the corresponding
// param values. Unknown placeholders are left untouched.
func Interpolate(tmpl string, params map[string]any) string {
	if len(params) == 0 || !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	out := tmpl
	for name, value := range params {
		out = strings.ReplaceAll(out, "{{"+name+"}}", fmt.Sprintf("%v", value))
	}
	return out
}
