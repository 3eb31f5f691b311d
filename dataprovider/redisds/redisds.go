// Package redisds implements a dataprovider over Redis: each record is a JSON
// value stored under "{prefix}{resource}:{id}".
package redisds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/malekhnovich/refine/dataprovider"
)

// DefaultKeyPrefix namespaces record keys. Default: "refine:data:".
const DefaultKeyPrefix = "refine:data:"

// Config configures a Provider.
type Config struct {
	// Addr is the Redis server address. Ignored when Client is set.
	Addr string

	// Password for Redis authentication.
	Password string

	// DB is the Redis database number.
	DB int

	// Client overrides Addr/Password/DB with a preconfigured client.
	Client redis.UniversalClient

	// KeyPrefix prepends every record key. Default: "refine:data:".
	KeyPrefix string

	// DialTimeout is the timeout for establishing connection. Default: 5s.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for read operations. Default: 2s.
	ReadTimeout time.Duration

	Logger *zap.Logger
}

// Provider fetches JSON records from Redis.
type Provider struct {
	client    redis.UniversalClient
	ownClient bool
	prefix    string
	logger    *zap.Logger
}

// New creates a Provider, connecting to Redis unless cfg.Client is supplied.
func New(cfg Config) (*Provider, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	client := cfg.Client
	ownClient := false
	if client == nil {
		if cfg.Addr == "" {
			return nil, fmt.Errorf("redisds: either Addr or Client is required")
		}
		dialTimeout := cfg.DialTimeout
		if dialTimeout == 0 {
			dialTimeout = 5 * time.Second
		}
		readTimeout := cfg.ReadTimeout
		if readTimeout == 0 {
			readTimeout = 2 * time.Second
		}
		client = redis.NewClient(&redis.Options{
			Addr:        cfg.Addr,
			Password:    cfg.Password,
			DB:          cfg.DB,
			DialTimeout: dialTimeout,
			ReadTimeout: readTimeout,
		})
		ownClient = true
	}

	return &Provider{
		client:    client,
		ownClient: ownClient,
		prefix:    prefix,
		logger:    logger.Named("redisds"),
	}, nil
}

// Close releases the Redis client if the provider owns it.
func (p *Provider) Close() error {
	if p.ownClient {
		return p.client.Close()
	}
	return nil
}

// Key returns the Redis key for a resource record.
func (p *Provider) Key(resource string, id dataprovider.ID) string {
	return p.prefix + resource + ":" + id.String()
}

// GetOne implements dataprovider.GetOner.
func (p *Provider) GetOne(ctx context.Context, req dataprovider.GetOneRequest) (*dataprovider.GetOneResponse, error) {
	if req.ID.IsZero() {
		return nil, dataprovider.NewError(http.StatusBadRequest, "record id is required")
	}

	start := time.Now()
	payload, err := p.client.Get(ctx, p.Key(req.Resource, req.ID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, dataprovider.NotFound(req.Resource, req.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("redisds: get %s/%s: %w", req.Resource, req.ID, err)
	}

	var record dataprovider.Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("redisds: decode %s/%s: %w", req.Resource, req.ID, err)
	}

	p.logger.Debug("fetched record",
		zap.String("resource", req.Resource),
		zap.String("id", req.ID.String()),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &dataprovider.GetOneResponse{Data: record, Raw: payload}, nil
}
