package consulds

import (
	"context"
	"os"
	"testing"

	"github.com/hashicorp/consul/api"

	"github.com/malekhnovich/refine/dataprovider"
)

// TestProviderIntegration exercises the provider against a real Consul agent.
// Set CONSUL_TEST_ADDR to run it.
func TestProviderIntegration(t *testing.T) {
	addr := os.Getenv("CONSUL_TEST_ADDR")
	if addr == "" {
		t.Skip("CONSUL_TEST_ADDR not set, skipping integration test")
	}

	cfg := api.DefaultConfig()
	cfg.Address = addr
	client, err := api.NewClient(cfg)
	if err != nil {
		t.Fatalf("consul client failed: %v", err)
	}

	const prefix = "refine/test/data/"
	if _, err := client.KV().DeleteTree(prefix, nil); err != nil {
		t.Fatalf("DeleteTree failed: %v", err)
	}
	defer func() { _, _ = client.KV().DeleteTree(prefix, nil) }()

	if _, err := client.KV().Put(&api.KVPair{
		Key:   prefix + "posts/5",
		Value: []byte(`{"id":5,"title":"Hello"}`),
	}, nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	p, err := New(Config{Client: client, KeyPrefix: prefix})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	resp, err := p.GetOne(ctx, dataprovider.GetOneRequest{Resource: "posts", ID: dataprovider.IntID(5)})
	if err != nil {
		t.Fatalf("GetOne failed: %v", err)
	}
	if resp.Data["title"] != "Hello" {
		t.Errorf("title = %v, want Hello", resp.Data["title"])
	}

	_, err = p.GetOne(ctx, dataprovider.GetOneRequest{Resource: "posts", ID: "404"})
	if !dataprovider.IsStatus(err, 404) {
		t.Errorf("missing key should yield 404, got %v", err)
	}
}

func TestKeyLayout(t *testing.T) {
	p, err := New(Config{Address: "localhost:8500", KeyPrefix: "x/"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got := p.Key("posts", "5"); got != "x/posts/5" {
		t.Errorf("Key = %q, want x/posts/5", got)
	}
}

func TestGetOneMissingID(t *testing.T) {
	p, err := New(Config{Address: "localhost:8500"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, err = p.GetOne(context.Background(), dataprovider.GetOneRequest{Resource: "posts"})
	if !dataprovider.IsStatus(err, 400) {
		t.Errorf("zero id should fail fast with 400, got %v", err)
	}
}
