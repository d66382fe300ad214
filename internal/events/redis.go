package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"rps_wager/internal/domain"
)

// RedisPublisher pushes events onto a per-match pub/sub channel so that
// every instance serving the match room can relay them.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = "rps"
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// Channel names the pub/sub channel of a match.
func (p *RedisPublisher) Channel(matchID string) string {
	return p.prefix + ":events:" + matchID
}

// Pattern matches every match channel.
func (p *RedisPublisher) Pattern() string {
	return p.prefix + ":events:*"
}

func (p *RedisPublisher) Publish(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.Channel(ev.MatchID), data).Err()
}

// Subscribe relays raw event payloads for all matches to fn until ctx ends.
func (p *RedisPublisher) Subscribe(ctx context.Context, fn func(matchID string, payload []byte)) error {
	sub := p.client.PSubscribe(ctx, p.Pattern())
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	offset := len(p.prefix + ":events:")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn(msg.Channel[offset:], []byte(msg.Payload))
		}
	}
}
