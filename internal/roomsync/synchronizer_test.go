package roomsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/wager-quiz/internal/match"
	"github.com/gokatarajesh/wager-quiz/internal/roomstore"
)

const (
	testDebounce = 20 * time.Millisecond
	settle       = 150 * time.Millisecond
	waitFor      = 2 * time.Second
	tick         = 5 * time.Millisecond
)

// countingStore counts fetches and can fail or hold them.
type countingStore struct {
	*roomstore.MemoryStore
	fetches atomic.Int32

	mu   sync.Mutex
	err  error
	gate chan struct{}
}

func (c *countingStore) FetchRoomState(ctx context.Context, code string) (*match.Room, error) {
	c.fetches.Add(1)
	c.mu.Lock()
	err, gate := c.err, c.gate
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}
	if err != nil {
		return nil, err
	}
	return c.MemoryStore.FetchRoomState(context.Background(), code)
}

func (c *countingStore) failWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *countingStore) hold() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gate = make(chan struct{})
	return c.gate
}

func (c *countingStore) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gate != nil {
		close(c.gate)
		c.gate = nil
	}
}

type recorder struct {
	mu        sync.Mutex
	rooms     []*match.Room
	navigated []*match.Room
	statuses  []Status
	lastErr   error
}

func (r *recorder) handler() Handler {
	return Handler{
		OnRoom: func(room *match.Room) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.rooms = append(r.rooms, room)
		},
		OnNavigate: func(room *match.Room) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.navigated = append(r.navigated, room)
		},
		OnStatus: func(status Status, err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.statuses = append(r.statuses, status)
			r.lastErr = err
		},
	}
}

func (r *recorder) roomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *recorder) navigationCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.navigated)
}

func (r *recorder) lastStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return ""
	}
	return r.statuses[len(r.statuses)-1]
}

func newFixture(t *testing.T, poll time.Duration) (*countingStore, *Synchronizer, *recorder) {
	t.Helper()
	store := &countingStore{MemoryStore: roomstore.NewMemoryStore()}
	_, err := store.CreateRoom(context.Background(), "123456", match.NewPlayer("host", "Host", "en", true), match.DefaultSettings())
	require.NoError(t, err)

	rec := &recorder{}
	s := New(store, Config{Debounce: testDebounce, PollInterval: poll}, rec.handler(), zerolog.Nop())
	t.Cleanup(s.Stop)
	return store, s, rec
}

func startAndSettle(t *testing.T, store *countingStore, s *Synchronizer, rec *recorder) {
	t.Helper()
	require.NoError(t, s.Start(context.Background(), "123456", nil))
	require.Eventually(t, func() bool { return store.fetches.Load() == 1 && rec.lastStatus() == StatusConnected }, waitFor, tick)
}

func TestDebounceFor(t *testing.T) {
	assert.Equal(t, 150*time.Millisecond, DebounceFor(PlatformNative))
	assert.Equal(t, 400*time.Millisecond, DebounceFor(PlatformWeb))
	assert.Equal(t, NativeDebounce, DebounceFor(""))
}

func TestSynchronizer_CoalescesRequestsWithinDebounce(t *testing.T) {
	store, s, rec := newFixture(t, time.Hour)
	startAndSettle(t, store, s, rec)

	for i := 0; i < 5; i++ {
		s.Request()
	}
	require.Eventually(t, func() bool { return store.fetches.Load() == 2 }, waitFor, tick)
	time.Sleep(settle)
	assert.Equal(t, int32(2), store.fetches.Load())
}

func TestSynchronizer_SchedulesOneFollowUpDuringFlight(t *testing.T) {
	store, s, rec := newFixture(t, time.Hour)
	startAndSettle(t, store, s, rec)

	store.hold()
	s.Request()
	require.Eventually(t, func() bool { return store.fetches.Load() == 2 }, waitFor, tick)

	// in flight: every request folds into a single follow-up
	for i := 0; i < 4; i++ {
		s.Request()
	}
	store.release()

	require.Eventually(t, func() bool { return store.fetches.Load() == 3 }, waitFor, tick)
	time.Sleep(settle)
	assert.Equal(t, int32(3), store.fetches.Load())
}

func TestSynchronizer_IdenticalSnapshotIsNotReapplied(t *testing.T) {
	store, s, rec := newFixture(t, time.Hour)
	startAndSettle(t, store, s, rec)
	require.Equal(t, 1, rec.roomCount())
	before := s.Room()

	store.failWith(errors.New("network down"))
	s.Request()
	require.Eventually(t, func() bool { return rec.lastStatus() == StatusError }, waitFor, tick)
	status, err := s.Status()
	assert.Equal(t, StatusError, status)
	assert.EqualError(t, err, "network down")
	assert.Equal(t, before, s.Room(), "a failed refresh keeps the cached room")

	store.failWith(nil)
	s.Request()
	require.Eventually(t, func() bool { return rec.lastStatus() == StatusConnected }, waitFor, tick)
	assert.Equal(t, 1, rec.roomCount(), "same payload must not be applied twice")
	assert.Equal(t, 0, rec.navigationCount())
}

func TestSynchronizer_PushSignalTriggersRefresh(t *testing.T) {
	store, s, rec := newFixture(t, time.Hour)
	startAndSettle(t, store, s, rec)
	assert.Equal(t, 1, store.ListenerCount("123456"))

	require.NoError(t, store.UpdatePlayerState(context.Background(), "123456", "host", match.PlayerPatch{IsReady: match.BoolPtr(true)}))

	require.Eventually(t, func() bool { return rec.roomCount() == 2 }, waitFor, tick)
	assert.True(t, s.Room().Players[0].IsReady)
}

func TestSynchronizer_PollsOnInterval(t *testing.T) {
	store, s, rec := newFixture(t, 30*time.Millisecond)
	startAndSettle(t, store, s, rec)

	require.Eventually(t, func() bool { return store.fetches.Load() >= 3 }, waitFor, tick)
}

func TestSynchronizer_NavigatesOncePerSubscription(t *testing.T) {
	store, s, rec := newFixture(t, time.Hour)
	startAndSettle(t, store, s, rec)
	ctx := context.Background()

	require.NoError(t, store.UpdateRoom(ctx, "123456", match.RoomPatch{Phase: match.PhasePtr(match.RoomPhaseQuestion)}))
	require.Eventually(t, func() bool { return rec.navigationCount() == 1 }, waitFor, tick)

	require.NoError(t, store.UpdatePlayerState(ctx, "123456", "host", match.PlayerPatch{Score: match.IntPtr(3)}))
	require.Eventually(t, func() bool { return rec.roomCount() == 3 }, waitFor, tick)
	assert.Equal(t, 1, rec.navigationCount())

	// re-subscribing resets the one-shot flag
	require.NoError(t, s.Start(ctx, "123456", nil))
	require.Eventually(t, func() bool { return rec.navigationCount() == 2 }, waitFor, tick)
}

func TestSynchronizer_InitialRoomIsAppliedImmediately(t *testing.T) {
	store, s, rec := newFixture(t, time.Hour)
	initial, err := store.MemoryStore.FetchRoomState(context.Background(), "123456")
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background(), "123456", initial))
	assert.Equal(t, 1, rec.roomCount())
	assert.Equal(t, "123456", s.Room().RoomCode)

	require.Eventually(t, func() bool { return store.fetches.Load() == 1 }, waitFor, tick)
	time.Sleep(settle)
	assert.Equal(t, 1, rec.roomCount(), "the first fetch matches the initial room")
}

func TestSynchronizer_ApplyLocalIsOverwrittenByAuthoritativeRow(t *testing.T) {
	store, s, rec := newFixture(t, time.Hour)
	startAndSettle(t, store, s, rec)

	local := s.ApplyLocal(func(room *match.Room) { room.Players[0].Score = 42 })
	require.NotNil(t, local)
	assert.Equal(t, 42, local.Players[0].Score)
	assert.Equal(t, 42, s.Room().Players[0].Score)

	require.Eventually(t, func() bool { return rec.roomCount() == 2 }, waitFor, tick)
	assert.Equal(t, 0, s.Room().Players[0].Score)
}

func TestSynchronizer_ApplyLocalWithoutRoom(t *testing.T) {
	_, s, _ := newFixture(t, time.Hour)
	assert.Nil(t, s.ApplyLocal(func(*match.Room) { t.Fatal("mutate must not run") }))
}

func TestSynchronizer_StopDiscardsLateResultsAndReleasesResources(t *testing.T) {
	store, s, rec := newFixture(t, 20*time.Millisecond)
	startAndSettle(t, store, s, rec)

	store.hold()
	require.NoError(t, store.UpdatePlayerState(context.Background(), "123456", "host", match.PlayerPatch{Score: match.IntPtr(9)}))
	require.Eventually(t, func() bool { return store.fetches.Load() >= 2 }, waitFor, tick)

	s.Stop()
	store.release()

	assert.Equal(t, 1, rec.roomCount(), "the held fetch completed after Stop")
	assert.Equal(t, 0, store.ListenerCount("123456"))
	assert.Empty(t, s.Code())

	fetches := store.fetches.Load()
	time.Sleep(settle)
	assert.Equal(t, fetches, store.fetches.Load(), "no poller or timer outlives Stop")
}
