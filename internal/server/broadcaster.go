package server

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/wager-quiz/internal/roomstore"
	ws "github.com/gokatarajesh/wager-quiz/pkg/http/ws"
)

// Broadcaster listens for room change signals on Redis Pub/Sub and forwards them
// to the websockets of the affected room.
type Broadcaster struct {
	redis  *redis.Client
	hub    *ws.Hub
	logger zerolog.Logger
}

func NewBroadcaster(redis *redis.Client, hub *ws.Hub, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		redis:  redis,
		hub:    hub,
		logger: logger.With().Str("component", "room_broadcaster").Logger(),
	}
}

// Run subscribes to every room change channel and blocks until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	if b.redis == nil || b.hub == nil {
		return nil
	}

	sub := b.redis.PSubscribe(ctx, roomstore.ChannelPattern)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.forward(msg.Channel)
		}
	}
}

func (b *Broadcaster) forward(channel string) int {
	code, ok := roomstore.CodeFromChannel(channel)
	if !ok {
		b.logger.Warn().Str("channel", channel).Msg("ignoring signal on unexpected channel")
		return 0
	}
	feedSignals.Inc()
	n := b.hub.BroadcastToRoom(code, ws.RoomChanged(code))
	feedDeliveries.Add(float64(n))
	return n
}
