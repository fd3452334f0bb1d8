package roomstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/wager-quiz/internal/match"
)

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	host := match.NewPlayer("host", "Hosty", "en", true)
	_, err := store.CreateRoom(context.Background(), "123456", host, match.DefaultSettings())
	require.NoError(t, err)
	return store
}

func TestMemoryStore_CreateRejectsDuplicateCode(t *testing.T) {
	store := seededStore(t)

	_, err := store.CreateRoom(context.Background(), "123456", match.NewPlayer("other", "Other", "en", false), match.DefaultSettings())
	assert.ErrorIs(t, err, ErrDuplicateCode)
}

func TestMemoryStore_JoinUnknownRoom(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.JoinRoom(context.Background(), "ABCDEF", match.NewPlayer("p", "P", "en", false))
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestMemoryStore_JoinKeepsHostFirst(t *testing.T) {
	store := seededStore(t)

	room, err := store.JoinRoom(context.Background(), "123456", match.NewPlayer("guest", "Guest", "fr", false))
	require.NoError(t, err)
	require.Len(t, room.Players, 2)
	assert.Equal(t, "host", room.Players[0].ID)
	assert.True(t, room.Players[0].IsHost)
	assert.False(t, room.Players[1].IsHost)
}

func TestMemoryStore_FetchReturnsCopies(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	first, err := store.FetchRoomState(ctx, "123456")
	require.NoError(t, err)
	first.Players[0].Score = 99
	first.Players[0].UsedBets = append(first.Players[0].UsedBets, 3)

	second, err := store.FetchRoomState(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Players[0].Score)
	assert.Empty(t, second.Players[0].UsedBets)
}

func TestMemoryStore_UpdatePlayerState(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	err := store.UpdatePlayerState(ctx, "123456", "host", match.PlayerPatch{
		Score:      match.IntPtr(4),
		CurrentBet: match.IntPtr(4),
		UsedBets:   []int{4},
	})
	require.NoError(t, err)

	room, err := store.FetchRoomState(ctx, "123456")
	require.NoError(t, err)
	host := room.FindPlayer("host")
	require.NotNil(t, host)
	assert.Equal(t, 4, host.Score)
	require.NotNil(t, host.CurrentBet)
	assert.Equal(t, 4, *host.CurrentBet)
	assert.Equal(t, []int{4}, host.UsedBets)

	err = store.UpdatePlayerState(ctx, "123456", "ghost", match.PlayerPatch{Score: match.IntPtr(1)})
	assert.ErrorIs(t, err, match.ErrPlayerNotFound)
}

func TestMemoryStore_UpdateRoom(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	err := store.UpdateRoom(ctx, "123456", match.RoomPatch{
		Phase:         match.PhasePtr(match.RoomPhaseQuestion),
		QuestionIndex: match.IntPtr(2),
	})
	require.NoError(t, err)

	room, err := store.FetchRoomState(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, match.RoomPhaseQuestion, room.Phase)
	assert.Equal(t, 2, room.QuestionIndex)

	assert.ErrorIs(t, store.UpdateRoom(ctx, "654321", match.RoomPatch{}), ErrRoomNotFound)
}

func TestMemoryStore_LeaveDropsEmptyRoom(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()
	_, err := store.JoinRoom(ctx, "123456", match.NewPlayer("guest", "Guest", "en", false))
	require.NoError(t, err)

	require.NoError(t, store.LeaveRoom(ctx, "123456", "guest"))
	room, err := store.FetchRoomState(ctx, "123456")
	require.NoError(t, err)
	assert.Len(t, room.Players, 1)

	require.NoError(t, store.LeaveRoom(ctx, "123456", "host"))
	_, err = store.FetchRoomState(ctx, "123456")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestMemoryStore_SubscribeNotifiesUntilUnsubscribed(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	calls := 0
	sub, err := store.Subscribe(ctx, "123456", func() { calls++ })
	require.NoError(t, err)
	assert.Equal(t, 1, store.ListenerCount("123456"))

	require.NoError(t, store.UpdatePlayerState(ctx, "123456", "host", match.PlayerPatch{IsReady: match.BoolPtr(true)}))
	assert.Equal(t, 1, calls)

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, store.ListenerCount("123456"))

	require.NoError(t, store.UpdatePlayerState(ctx, "123456", "host", match.PlayerPatch{IsReady: match.BoolPtr(false)}))
	assert.Equal(t, 1, calls)
}
