package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/malekhnovich/refine/dataprovider"
	"github.com/malekhnovich/refine/querykey"
)

func TestGetOne(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/posts/5" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("locale"); got != "en" {
			t.Errorf("meta query param locale = %q, want en", got)
		}
		if got := r.Header.Get("X-Tenant"); got != "acme" {
			t.Errorf("X-Tenant header = %q, want acme", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":5,"title":"Hello"}}`))
	}))
	defer server.Close()

	p, err := New(Config{
		BaseURL: server.URL,
		Headers: map[string]string{"X-Tenant": "acme"},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	resp, err := p.GetOne(context.Background(), dataprovider.GetOneRequest{
		Resource: "posts",
		ID:       dataprovider.IntID(5),
		Meta:     map[string]any{"locale": "en"},
	})
	if err != nil {
		t.Fatalf("GetOne failed: %v", err)
	}
	if resp.Data["title"] != "Hello" {
		t.Errorf("title = %v, want Hello", resp.Data["title"])
	}
	var envelope map[string]any
	if err := json.Unmarshal(resp.Raw, &envelope); err != nil {
		t.Fatalf("Raw is not valid JSON: %v", err)
	}
	if _, ok := envelope["data"]; !ok {
		t.Error("Raw should preserve the full response envelope")
	}
}

func TestGetOneBareRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":5,"title":"Hello"}`))
	}))
	defer server.Close()

	p, err := New(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	resp, err := p.GetOne(context.Background(), dataprovider.GetOneRequest{Resource: "posts", ID: "5"})
	if err != nil {
		t.Fatalf("GetOne failed: %v", err)
	}
	if resp.Data["title"] != "Hello" {
		t.Errorf("title = %v, want Hello", resp.Data["title"])
	}
}

func TestGetOneTypedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	}))
	defer server.Close()

	p, err := New(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = p.GetOne(context.Background(), dataprovider.GetOneRequest{Resource: "posts", ID: "5"})
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	code, ok := dataprovider.ErrorStatus(err)
	if !ok || code != http.StatusNotFound {
		t.Errorf("status = %d (typed=%v), want 404", code, ok)
	}
}

func TestGetOneFieldErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"validation failed","errors":{"title":["too short"]}}`))
	}))
	defer server.Close()

	p, _ := New(Config{BaseURL: server.URL})
	_, err := p.GetOne(context.Background(), dataprovider.GetOneRequest{Resource: "posts", ID: "5"})

	var provErr *dataprovider.Error
	if !errors.As(err, &provErr) {
		t.Fatalf("expected *dataprovider.Error, got %T", err)
	}
	if len(provErr.Errors["title"]) != 1 || provErr.Errors["title"][0] != "too short" {
		t.Errorf("field errors = %v", provErr.Errors)
	}
}

func TestGetOneMissingID(t *testing.T) {
	p, _ := New(Config{BaseURL: "http://unreachable.invalid"})
	_, err := p.GetOne(context.Background(), dataprovider.GetOneRequest{Resource: "posts"})
	if !dataprovider.IsStatus(err, http.StatusBadRequest) {
		t.Errorf("zero id should fail fast with 400, got %v", err)
	}
}

func TestGetOneCoalescing(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"id":5}`))
	}))
	defer server.Close()

	p, _ := New(Config{BaseURL: server.URL, Timeout: 5 * time.Second})
	key := querykey.New("data", "posts", "default", nil).Detail("5")
	req := dataprovider.GetOneRequest{
		Resource: "posts",
		ID:       "5",
		Query:    dataprovider.QueryContext{Key: key},
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.GetOne(context.Background(), req); err != nil {
				t.Errorf("GetOne failed: %v", err)
			}
		}()
	}
	// Let all goroutines reach the singleflight barrier, then release.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("backend called %d times, want 1 (coalesced)", got)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New without BaseURL should fail")
	}
}
