package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultChannelPrefix prefixes the per-battle channel name.
const DefaultChannelPrefix = "battle:"

// DialRedis connects to the server at url and checks it answers.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("redis url required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Redis publishes events on one channel per battle so every instance can
// forward them to its own watchers.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis creates a Redis notifier. An empty prefix uses
// DefaultChannelPrefix.
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

// Channel returns the channel name for a battle id.
func (r *Redis) Channel(battleID string) string {
	return r.prefix + battleID
}

func (r *Redis) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.Channel(ev.BattleID.String()), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.BattleID, err)
	}
	return nil
}

// Relay subscribes to every battle channel and hands decoded events to dst
// until ctx is done. ready, when not nil, is closed once the subscription is
// active.
func (r *Redis) Relay(ctx context.Context, dst Notifier, ready chan<- struct{}) error {
	sub := r.rdb.PSubscribe(ctx, r.prefix+"*")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if ready != nil {
		close(ready)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("Dropping malformed battle event")
				continue
			}
			if err := dst.Publish(ctx, ev); err != nil {
				log.Warn().Err(err).Str("battle_id", ev.BattleID.String()).Msg("Failed to relay battle event")
			}
		}
	}
}
