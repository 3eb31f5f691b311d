// Package consulds implements a dataprovider over Consul KV: each record is a
// JSON value stored under "{prefix}{resource}/{id}".
package consulds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"

	"github.com/malekhnovich/refine/dataprovider"
)

// DefaultKeyPrefix namespaces record keys. Default: "refine/data/".
const DefaultKeyPrefix = "refine/data/"

// Config configures a Provider.
type Config struct {
	// Address is the Consul agent address. Default: "localhost:8500".
	Address string

	// Scheme is the URI scheme (http or https). Default: "http".
	Scheme string

	// Datacenter is the datacenter to query.
	Datacenter string

	// Token is the ACL token for authentication.
	Token string

	// Client overrides the connection settings with a preconfigured client.
	Client *api.Client

	// KeyPrefix prepends every record key. Default: "refine/data/".
	KeyPrefix string

	Logger *zap.Logger
}

// Provider fetches JSON records from Consul KV.
type Provider struct {
	kv     *api.KV
	prefix string
	logger *zap.Logger
}

// New creates a Provider, connecting to Consul unless cfg.Client is supplied.
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
	if client == nil {
		apiCfg := api.DefaultConfig()
		if cfg.Address != "" {
			apiCfg.Address = cfg.Address
		}
		if cfg.Scheme != "" {
			apiCfg.Scheme = cfg.Scheme
		}
		if cfg.Datacenter != "" {
			apiCfg.Datacenter = cfg.Datacenter
		}
		if cfg.Token != "" {
			apiCfg.Token = cfg.Token
		}
		created, err := api.NewClient(apiCfg)
		if err != nil {
			return nil, fmt.Errorf("consulds: create client: %w", err)
		}
		client = created
	}

	return &Provider{
		kv:     client.KV(),
		prefix: prefix,
		logger: logger.Named("consulds"),
	}, nil
}

// Key returns the Consul KV key for a resource record.
func (p *Provider) Key(resource string, id dataprovider.ID) string {
	return p.prefix + resource + "/" + id.String()
}

// GetOne implements dataprovider.GetOner.
func (p *Provider) GetOne(ctx context.Context, req dataprovider.GetOneRequest) (*dataprovider.GetOneResponse, error) {
	if req.ID.IsZero() {
		return nil, dataprovider.NewError(http.StatusBadRequest, "record id is required")
	}

	start := time.Now()
	pair, _, err := p.kv.Get(p.Key(req.Resource, req.ID), (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("consulds: get %s/%s: %w", req.Resource, req.ID, err)
	}
	if pair == nil {
		return nil, dataprovider.NotFound(req.Resource, req.ID)
	}

	var record dataprovider.Record
	if err := json.Unmarshal(pair.Value, &record); err != nil {
		return nil, fmt.Errorf("consulds: decode %s/%s: %w", req.Resource, req.ID, err)
	}

	p.logger.Debug("fetched record",
		zap.String("resource", req.Resource),
		zap.String("id", req.ID.String()),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &dataprovider.GetOneResponse{Data: record, Raw: pair.Value}, nil
}
