// Package memds provides an in-memory data provider. It backs tests and
// examples, and can publish live change events so the full fetch/invalidate
// cycle is observable without external infrastructure.
package memds

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/malekhnovich/refine/dataprovider"
	"github.com/malekhnovich/refine/live"
)

// Provider is a map-backed dataprovider.DataProvider. Safe for concurrent use.
type Provider struct {
	// Bus, when set, receives a live event for every mutation.
	Bus *live.Bus

	// Latency delays every GetOne, for exercising slow-fetch behavior.
	Latency time.Duration

	mu      sync.RWMutex
	records map[string]map[dataprovider.ID]dataprovider.Record
	calls   map[string]int
}

// New creates an empty Provider.
func New() *Provider {
	return &Provider{
		records: make(map[string]map[dataprovider.ID]dataprovider.Record),
		calls:   make(map[string]int),
	}
}

// Set stores a record and publishes an updated/created event when a bus is
// attached.
func (p *Provider) Set(resource string, id dataprovider.ID, record dataprovider.Record) {
	p.mu.Lock()
	if p.records[resource] == nil {
		p.records[resource] = make(map[dataprovider.ID]dataprovider.Record)
	}
	_, existed := p.records[resource][id]
	p.records[resource][id] = record
	p.mu.Unlock()

	if p.Bus != nil {
		eventType := live.EventCreated
		if existed {
			eventType = live.EventUpdated
		}
		p.Bus.Publish(live.Event{
			Channel: live.Channel(resource),
			Type:    eventType,
			IDs:     []string{id.String()},
			Date:    time.Now(),
		})
	}
}

// Delete removes a record and publishes a deleted event when a bus is attached.
func (p *Provider) Delete(resource string, id dataprovider.ID) {
	p.mu.Lock()
	delete(p.records[resource], id)
	p.mu.Unlock()

	if p.Bus != nil {
		p.Bus.Publish(live.Event{
			Channel: live.Channel(resource),
			Type:    live.EventDeleted,
			IDs:     []string{id.String()},
			Date:    time.Now(),
		})
	}
}

// GetOne implements dataprovider.GetOner.
func (p *Provider) GetOne(ctx context.Context, req dataprovider.GetOneRequest) (*dataprovider.GetOneResponse, error) {
	if p.Latency > 0 {
		select {
		case <-time.After(p.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.ID.IsZero() {
		return nil, dataprovider.NewError(400, "record id is required")
	}

	p.mu.Lock()
	p.calls[req.Resource+"/"+req.ID.String()]++
	record, ok := p.records[req.Resource][req.ID]
	p.mu.Unlock()

	if !ok {
		return nil, dataprovider.NotFound(req.Resource, req.ID)
	}

	raw, err := json.Marshal(map[string]any{"data": record})
	if err != nil {
		return nil, err
	}
	return &dataprovider.GetOneResponse{Data: cloneRecord(record), Raw: raw}, nil
}

// Calls reports how many GetOne calls were made for a resource/id pair.
func (p *Provider) Calls(resource string, id dataprovider.ID) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.calls[resource+"/"+id.String()]
}

func cloneRecord(r dataprovider.Record) dataprovider.Record {
	out := make(dataprovider.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
