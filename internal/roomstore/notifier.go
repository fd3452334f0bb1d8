package roomstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ChannelPattern matches every room change channel.
const ChannelPattern = "room:*:changes"

// ChannelFor is the Redis channel that carries change signals for one room.
func ChannelFor(code string) string {
	return "room:" + code + ":changes"
}

// CodeFromChannel extracts the room code from a change channel name.
func CodeFromChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, "room:") || !strings.HasSuffix(channel, ":changes") {
		return "", false
	}
	code := strings.TrimSuffix(strings.TrimPrefix(channel, "room:"), ":changes")
	if code == "" || strings.Contains(code, ":") {
		return "", false
	}
	return code, true
}

// Notifier publishes and receives payload-less room change signals over Redis Pub/Sub.
type Notifier struct {
	redis  *redis.Client
	logger zerolog.Logger
}

func NewNotifier(client *redis.Client, logger zerolog.Logger) *Notifier {
	return &Notifier{
		redis:  client,
		logger: logger.With().Str("component", "room_notifier").Logger(),
	}
}

// Publish signals that the room changed.
func (n *Notifier) Publish(ctx context.Context, code string) error {
	if err := n.redis.Publish(ctx, ChannelFor(code), "changed").Err(); err != nil {
		return fmt.Errorf("publish room change: %w", err)
	}
	return nil
}

// Subscribe calls onChange for each signal until the subscription is closed.
func (n *Notifier) Subscribe(ctx context.Context, code string, onChange func()) (Subscription, error) {
	sub := n.redis.Subscribe(ctx, ChannelFor(code))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe room changes: %w", err)
	}

	done := make(chan struct{})
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-done:
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				onChange()
			}
		}
	}()

	var once sync.Once
	return SubscriptionFunc(func() {
		once.Do(func() {
			close(done)
			if err := sub.Close(); err != nil {
				n.logger.Debug().Err(err).Str("room_code", code).Msg("close room subscription")
			}
		})
	}), nil
}
