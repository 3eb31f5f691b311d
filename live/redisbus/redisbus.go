// Package redisbus implements live.Broker over Redis pub/sub, letting several
// application instances observe the same resource change events.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/malekhnovich/refine/live"
)

// DefaultChannelPrefix namespaces resource channels in the Redis keyspace.
const DefaultChannelPrefix = "refine:live:"

// Config configures a Broker.
type Config struct {
	// Addr is the Redis server address. Ignored when Client is set.
	Addr string

	// Password for Redis authentication.
	Password string

	// DB is the Redis database number.
	DB int

	// Client overrides Addr/Password/DB with a preconfigured client.
	Client redis.UniversalClient

	// ChannelPrefix prepends every live channel name.
	// Default: "refine:live:".
	ChannelPrefix string

	Logger *zap.Logger
}

// Broker delivers live events through Redis pub/sub channels.
type Broker struct {
	client    redis.UniversalClient
	ownClient bool
	prefix    string
	logger    *zap.Logger
}

// New creates a Broker, connecting to Redis unless cfg.Client is supplied.
func New(cfg Config) (*Broker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}

	client := cfg.Client
	ownClient := false
	if client == nil {
		if cfg.Addr == "" {
			return nil, fmt.Errorf("redisbus: either Addr or Client is required")
		}
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		ownClient = true
	}

	return &Broker{
		client:    client,
		ownClient: ownClient,
		prefix:    prefix,
		logger:    logger.Named("redisbus"),
	}, nil
}

// Close releases the Redis client if the broker owns it.
func (b *Broker) Close() error {
	if b.ownClient {
		return b.client.Close()
	}
	return nil
}

// Publish broadcasts an event on its channel.
func (b *Broker) Publish(ctx context.Context, event live.Event) error {
	if event.Date.IsZero() {
		event.Date = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redisbus: encode event: %w", err)
	}
	if err := b.client.Publish(ctx, b.prefix+event.Channel, payload).Err(); err != nil {
		return fmt.Errorf("redisbus: publish: %w", err)
	}
	return nil
}

// Subscribe implements live.Broker. A goroutine drains the pub/sub connection
// until the subscription is closed; go-redis reconnects the underlying
// connection on transient errors.
func (b *Broker) Subscribe(p live.SubscribeParams) (live.Subscription, error) {
	if p.Channel == "" {
		return nil, fmt.Errorf("redisbus: subscribe: channel is empty")
	}
	if p.OnEvent == nil {
		return nil, fmt.Errorf("redisbus: subscribe: OnEvent is nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	pubsub := b.client.Subscribe(ctx, b.prefix+p.Channel)

	sub := &subscription{
		pubsub: pubsub,
		cancel: cancel,
	}
	sub.wg.Add(1)
	go b.receiveLoop(ctx, pubsub, p, &sub.wg)
	return sub, nil
}

func (b *Broker) receiveLoop(ctx context.Context, pubsub *redis.PubSub, p live.SubscribeParams, wg *sync.WaitGroup) {
	defer wg.Done()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event live.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("dropping malformed live event",
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
				continue
			}
			if !typeMatches(p.Types, event.Type) {
				continue
			}
			p.OnEvent(event)
		}
	}
}

type subscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// Close implements live.Subscription.
func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.pubsub.Close()
		s.wg.Wait()
	})
	return s.closeErr
}

func typeMatches(types []live.EventType, t live.EventType) bool {
	if len(types) == 0 {
		return true
	}
	for _, candidate := range types {
		if candidate == live.EventWildcard || candidate == t {
			return true
		}
	}
	return false
}
