package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultChannel = "gamification:events"
	inboxSize      = 50
	inboxTTL       = 30 * 24 * time.Hour
)

// InboxKey is the list holding an account's latest events.
func InboxKey(accountID string) string {
	return "notifications:" + accountID
}

// RedisSink publishes every event on a channel for realtime consumers and keeps
// a capped per-account inbox for the in-app notification list.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	if channel == "" {
		channel = defaultChannel
	}
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Deliver(ctx context.Context, ev *Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	key := InboxKey(ev.AccountID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, b)
	pipe.LTrim(ctx, key, 0, inboxSize-1)
	pipe.Expire(ctx, key, inboxTTL)
	pipe.Publish(ctx, s.channel, b)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis deliver %s: %w", ev.ID, err)
	}
	return nil
}

// Inbox returns up to limit of the account's latest events, newest first.
func (s *RedisSink) Inbox(ctx context.Context, accountID string, limit int) ([]Event, error) {
	if limit <= 0 || limit > inboxSize {
		limit = inboxSize
	}
	raw, err := s.client.LRange(ctx, InboxKey(accountID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(raw))
	for _, r := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
