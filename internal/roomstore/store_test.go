package roomstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/wager-quiz/internal/match"
)

// failingCreates rejects CreateRoom with err until it has been called failures times.
type failingCreates struct {
	*MemoryStore
	err      error
	failures int
	calls    int
}

func (f *failingCreates) CreateRoom(ctx context.Context, code string, host match.Player, settings match.GameSettings) (*match.Room, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, fmt.Errorf("%w: %s", f.err, code)
	}
	return f.MemoryStore.CreateRoom(ctx, code, host, settings)
}

func sequence(codes ...string) func() string {
	i := 0
	return func() string {
		code := codes[i%len(codes)]
		i++
		return code
	}
}

func TestCreateWithRetry_RetriesDuplicateCodes(t *testing.T) {
	store := &failingCreates{MemoryStore: NewMemoryStore(), err: ErrDuplicateCode, failures: 2}
	host := match.NewPlayer("host", "Host", "en", false)

	room, err := CreateWithRetry(context.Background(), store, host, match.DefaultSettings(), sequence("000001", "000002", "000003"))
	require.NoError(t, err)
	assert.Equal(t, "000003", room.RoomCode)
	assert.Equal(t, 3, store.calls)
}

func TestCreateWithRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	store := &failingCreates{MemoryStore: NewMemoryStore(), err: ErrDuplicateCode, failures: 100}
	host := match.NewPlayer("host", "Host", "en", false)

	_, err := CreateWithRetry(context.Background(), store, host, match.DefaultSettings(), sequence("111111", "222222", "333333", "444444", "555555", "666666"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateCode)
	assert.Contains(t, err.Error(), "555555")
	assert.Equal(t, MaxCreateAttempts, store.calls)
}

func TestCreateWithRetry_StopsOnOtherErrors(t *testing.T) {
	boom := errors.New("connection refused")
	store := &failingCreates{MemoryStore: NewMemoryStore(), err: boom, failures: 100}
	host := match.NewPlayer("host", "Host", "en", false)

	_, err := CreateWithRetry(context.Background(), store, host, match.DefaultSettings(), sequence("123456"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, store.calls)
}

func TestCreateWithRetry_DefaultGeneratorMakesSixDigitCodes(t *testing.T) {
	store := NewMemoryStore()
	host := match.NewPlayer("host", "Host", "en", false)

	room, err := CreateWithRetry(context.Background(), store, host, match.DefaultSettings(), nil)
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9]{6}$`, room.RoomCode)
}
