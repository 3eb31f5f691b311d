package translate

import "testing"

func TestMapTranslate(t *testing.T) {
	tr := Map{
		"notifications.error": "Request failed (status {{statusCode}})",
		"greeting":            "Hello",
	}

	tests := []struct {
		name     string
		key      string
		params   map[string]any
		fallback string
		want     string
	}{
		{"known key with params", "notifications.error", map[string]any{"statusCode": 404}, "x", "Request failed (status 404)"},
		{"known key no params", "greeting", nil, "x", "Hello"},
		{"unknown key", "missing", map[string]any{"statusCode": 1}, "fallback text", "fallback text"},
		{"unknown placeholder kept", "notifications.error", map[string]any{"other": 1}, "x", "Request failed (status {{statusCode}})"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tr.Translate(tt.key, tt.params, tt.fallback); got != tt.want {
				t.Errorf("Translate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNoop(t *testing.T) {
	if got := (Noop{}).Translate("anything", nil, "fb"); got != "fb" {
		t.Errorf("Noop.Translate() = %q, want %q", got, "fb")
	}
}
