package redisds

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/malekhnovich/refine/dataprovider"
)

// TestProviderIntegration exercises the provider against a real Redis.
// Set REDIS_TEST_ADDR to run it.
func TestProviderIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping integration test")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = client.Close() }()

	const prefix = "refine:test:data:"
	keys, err := client.Keys(ctx, prefix+"*").Result()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) > 0 {
		if err := client.Del(ctx, keys...).Err(); err != nil {
			t.Fatalf("Del failed: %v", err)
		}
	}
	defer func() {
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			_ = client.Del(ctx, keys...).Err()
		}
	}()

	if err := client.Set(ctx, prefix+"posts:5", `{"id":5,"title":"Hello"}`, time.Minute).Err(); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	p, err := New(Config{Client: client, KeyPrefix: prefix})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

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

func TestGetOneMissingID(t *testing.T) {
	p, err := New(Config{Client: redis.NewClient(&redis.Options{Addr: "localhost:1"})})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, err = p.GetOne(context.Background(), dataprovider.GetOneRequest{Resource: "posts"})
	if !dataprovider.IsStatus(err, 400) {
		t.Errorf("zero id should fail fast with 400, got %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New without Addr or Client should fail")
	}
}
