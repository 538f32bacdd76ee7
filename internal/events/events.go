/*
Package events carries sync progress out of the process.

A sync publishes one Event per completed action to a Redis channel; the
event-server command subscribes to that channel and fans the events out to
websocket clients through a Hub.
*/
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis channel sync events are published on.
const DefaultChannel = "b2:sync:events"

// Event describes one sync action.
type Event struct {
	Action      string    `json:"action"`
	File        string    `json:"file"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	OldVersion  bool      `json:"oldVersion,omitempty"`
	DryRun      bool      `json:"dryRun,omitempty"`
	Time        time.Time `json:"time"`
}

// Publisher receives sync events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// RedisPublisher publishes events as JSON on a Redis channel.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisPublisher connects lazily to the Redis server at addr.
func NewRedisPublisher(addr, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{
		rdb:     redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
	}
}

// Ping checks that the server is reachable.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	if err := p.rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrapf(err, "redis ping %s", p.rdb.Options().Addr)
	}
	return nil
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return errors.Wrapf(err, "publish to %s", p.channel)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// Subscribe returns the payloads published on channel. The returned channel
// is closed once ctx ends or the subscription fails.
func Subscribe(ctx context.Context, addr, channel string) (<-chan []byte, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	pubsub := rdb.Subscribe(ctx, channel)
	// Wait for the confirmation so a bad address fails here rather than
	// silently producing nothing.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "subscribe to %s on %s", channel, addr)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer rdb.Close()
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
