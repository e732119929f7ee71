package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lalith-99/threadline/internal/cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher is what write paths call after a successful change.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LocalBroker dispatches straight into the hub. Used when redis is off,
// which limits delivery to clients connected to this instance.
type LocalBroker struct {
	hub *Hub
}

func NewLocalBroker(hub *Hub) *LocalBroker {
	return &LocalBroker{hub: hub}
}

func (b *LocalBroker) Publish(_ context.Context, e Event) error {
	b.hub.Dispatch(e)
	return nil
}

// ChannelPrefix namespaces the per-thread pub/sub channels.
const ChannelPrefix = "threadline:events:"

// Channel is the redis channel carrying a thread's events.
func Channel(e Event) string {
	return ChannelPrefix + cache.Keys.Thread(e.ThreadID)
}

// RedisBroker publishes every event to redis. Run feeds what comes back,
// from this and every other instance, into the local hub.
type RedisBroker struct {
	rdb    *redis.Client
	hub    *Hub
	logger *zap.Logger
}

func NewRedisBroker(rdb *redis.Client, hub *Hub, logger *zap.Logger) *RedisBroker {
	return &RedisBroker{rdb: rdb, hub: hub, logger: logger}
}

func (b *RedisBroker) Publish(ctx context.Context, e Event) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.rdb.Publish(ctx, Channel(e), raw).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Run subscribes to every thread channel and blocks until ctx is done.
// It returns early only if the subscription can't be established.
func (b *RedisBroker) Run(ctx context.Context) error {
	sub := b.rdb.PSubscribe(ctx, ChannelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal([]byte(m.Payload), &e); err != nil {
				b.logger.Warn("bad event payload", zap.String("channel", m.Channel), zap.Error(err))
				continue
			}
			if !strings.HasSuffix(m.Channel, e.ThreadID.String()) {
				b.logger.Warn("event on foreign channel", zap.String("channel", m.Channel))
				continue
			}
			b.hub.Dispatch(e)
		}
	}
}
