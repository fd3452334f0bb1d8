package roomstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/gokatarajesh/wager-quiz/internal/match"
)

var (
	ErrDuplicateCode = errors.New("room code already in use")
	ErrRoomNotFound  = errors.New("room not found")
	ErrNotConfigured = errors.New("remote room store not configured")
	ErrUnauthorized  = errors.New("room token rejected")
)

// MaxCreateAttempts bounds how many fresh codes CreateWithRetry tries.
const MaxCreateAttempts = 5

// Store is the authoritative, row-oriented room record shared by every client.
// Writes are last-write-wins per column; change notifications carry no payload.
type Store interface {
	CreateRoom(ctx context.Context, code string, host match.Player, settings match.GameSettings) (*match.Room, error)
	JoinRoom(ctx context.Context, code string, player match.Player) (*match.Room, error)
	FetchRoomState(ctx context.Context, code string) (*match.Room, error)
	LeaveRoom(ctx context.Context, code, playerID string) error
	UpdatePlayerState(ctx context.Context, code, playerID string, patch match.PlayerPatch) error
	UpdateRoom(ctx context.Context, code string, patch match.RoomPatch) error
	// Subscribe invokes onChange at least once after every change to the room or its players.
	Subscribe(ctx context.Context, code string, onChange func()) (Subscription, error)
}

// Subscription is a live change feed. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() { f() }

// CreateWithRetry creates a room under a freshly generated code, retrying duplicate codes.
// When every attempt fails the last error is returned together with the code it was for.
func CreateWithRetry(ctx context.Context, store Store, host match.Player, settings match.GameSettings, generate func() string) (*match.Room, error) {
	if generate == nil {
		generate = match.GenerateRoomCode
	}
	var (
		code    string
		lastErr error
	)
	for attempt := 1; attempt <= MaxCreateAttempts; attempt++ {
		code = generate()
		room, err := store.CreateRoom(ctx, code, host, settings)
		if err == nil {
			return room, nil
		}
		lastErr = err
		if !errors.Is(err, ErrDuplicateCode) {
			break
		}
	}
	return nil, fmt.Errorf("create room with code %s: %w", code, lastErr)
}
