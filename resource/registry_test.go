package resource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestResolve(t *testing.T) {
	r := NewRegistry(
		Definition{Name: "posts", Provider: "rest", Meta: map[string]any{"locale": "en"}},
		Definition{Name: "users", Identifier: "admin/users"},
	)

	tests := []struct {
		name           string
		explicit       string
		route          RouteContext
		wantMatch      bool
		wantIdentifier string
	}{
		{"explicit match", "posts", RouteContext{}, true, "posts"},
		{"explicit with identifier", "users", RouteContext{}, true, "admin/users"},
		{"ambient fallback", "", RouteContext{Resource: "posts"}, true, "posts"},
		{"explicit wins over ambient", "users", RouteContext{Resource: "posts"}, true, "admin/users"},
		{"no match", "comments", RouteContext{}, false, "comments"},
		{"nothing to resolve", "", RouteContext{}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(tt.explicit, tt.route)
			if (res.Resource != nil) != tt.wantMatch {
				t.Fatalf("match = %v, want %v", res.Resource != nil, tt.wantMatch)
			}
			if res.Identifier != tt.wantIdentifier {
				t.Errorf("identifier = %q, want %q", res.Identifier, tt.wantIdentifier)
			}
			if len(res.Resources) != 2 {
				t.Errorf("resolution should carry the full definition set, got %d", len(res.Resources))
			}
		})
	}
}

func TestResolutionIsSnapshot(t *testing.T) {
	r := NewRegistry(Definition{Name: "posts"})
	res := r.Resolve("posts", RouteContext{})

	r.Replace([]Definition{{Name: "users"}})

	if res.Resource == nil || res.Resource.Name != "posts" {
		t.Error("resolution must not observe later registry mutations")
	}
}

func TestParseFile(t *testing.T) {
	defs, err := ParseFile([]byte(`
resources:
  - name: posts
    provider: rest
    meta:
      locale: en
  - name: users
    identifier: admin/users
`))
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("got %d definitions, want 2", len(defs))
	}
	if defs[0].Provider != "rest" || defs[0].Meta["locale"] != "en" {
		t.Errorf("posts definition = %+v", defs[0])
	}

	if _, err := ParseFile([]byte("resources:\n  - provider: rest\n")); err == nil {
		t.Error("nameless declaration should be rejected")
	}
	if _, err := ParseFile([]byte("{{nonsense")); err == nil {
		t.Error("malformed YAML should be rejected")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resources.yaml")
	if err := os.WriteFile(path, []byte("resources:\n  - name: posts\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	r := NewRegistry()
	if err := r.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if res := r.Resolve("posts", RouteContext{}); res.Resource == nil {
		t.Error("loaded resource not resolvable")
	}
}

func TestWatchReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resources.yaml")
	if err := os.WriteFile(path, []byte("resources:\n  - name: posts\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRegistry()
	done, err := r.Watch(ctx, path)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("watch goroutine did not exit after cancel")
		}
	}()

	if err := os.WriteFile(path, []byte("resources:\n  - name: posts\n  - name: users\n"), 0o600); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if res := r.Resolve("users", RouteContext{}); res.Resource != nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("registry did not pick up file change")
}

func TestWatchMissingFile(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Watch(context.Background(), filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Watch on a missing file should fail")
	}
}

func TestWatchStopsReloadingAfterCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resources.yaml")
	if err := os.WriteFile(path, []byte("resources:\n  - name: posts\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRegistry()
	done, err := r.Watch(ctx, path)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	// Cancel right after a change event so any queued debounce fires after
	// cancellation; the reload must not land.
	if err := os.WriteFile(path, []byte("resources:\n  - name: posts\n  - name: users\n"), 0o600); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch goroutine did not exit after cancel")
	}

	time.Sleep(300 * time.Millisecond)
	if res := r.Resolve("users", RouteContext{}); res.Resource != nil {
		t.Error("reload ran after cancellation")
	}
}

func TestIdentityDefaults(t *testing.T) {
	r := NewRegistry(Definition{Name: "posts"})
	res := r.Resolve("posts", RouteContext{})
	id := res.Identity()
	if id.Name != "posts" || id.Identifier != "posts" {
		t.Errorf("identity = %+v, want posts/posts", id)
	}
}
