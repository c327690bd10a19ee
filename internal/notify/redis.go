// Package notify bridges session events to Redis pub/sub so other processes
// signed in as the same owner can follow along.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/audiolibrelab/micmagic/internal/config"
)

const publishTimeout = 5 * time.Second

// Message is one decoded event received from a channel.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    int64           `json:"at"`
}

type pubsubClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
	Close() error
}

// Redis publishes and subscribes to per-owner event channels.
type Redis struct {
	client pubsubClient
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

// NewRedis connects to the configured Redis server and pings it.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newRedis(client, cfg.ChannelPrefix, logger), nil
}

func newRedis(client pubsubClient, prefix string, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, prefix: prefix, now: time.Now, logger: logger}
}

// Channel returns the channel name for an owner.
func (r *Redis) Channel(ownerID string) string {
	if r.prefix == "" {
		return ownerID
	}
	return r.prefix + ":" + ownerID
}

// Encode builds the wire payload for an event.
func Encode(event string, data any, at time.Time) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	return json.Marshal(Message{Event: event, Data: raw, At: at.Unix()})
}

// Publish sends an event to the owner's channel.
func (r *Redis) Publish(ctx context.Context, ownerID, event string, data any) error {
	body, err := Encode(event, data, r.now())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.Channel(ownerID), body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// Subscribe calls handler for each message on the owner's channel until the
// returned cancel func is called or ctx ends. Undecodable messages are skipped.
func (r *Redis) Subscribe(ctx context.Context, ownerID string, handler func(Message)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(ctx)
	pubsub := r.client.Subscribe(ctx, r.Channel(ownerID))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var m Message
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					r.logger.Warn("Dropping undecodable event", "channel", msg.Channel, "error", err)
					continue
				}
				handler(m)
			}
		}
	}()
	return cancelCtx, nil
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
