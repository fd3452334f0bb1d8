// Package roomsync keeps a client's cached room consistent with the remote store.
//
// Three sources request a refresh: a poll ticker, the store's push subscription
// and local optimistic writes. Requests are debounced and at most one fetch runs
// at a time; a request arriving during a fetch schedules exactly one follow-up.
// A fetched room is applied only when its fingerprint differs from the last one.
package roomsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/wager-quiz/internal/match"
	"github.com/gokatarajesh/wager-quiz/internal/roomstore"
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusError      Status = "error"
)

type Platform string

const (
	PlatformNative Platform = "native"
	PlatformWeb    Platform = "web"
)

const (
	NativeDebounce      = 150 * time.Millisecond
	WebDebounce         = 400 * time.Millisecond
	DefaultPollInterval = 3 * time.Second
)

// DebounceFor returns the refresh debounce of a platform.
func DebounceFor(p Platform) time.Duration {
	if p == PlatformWeb {
		return WebDebounce
	}
	return NativeDebounce
}

type Config struct {
	Platform     Platform
	Debounce     time.Duration // overrides the platform default when > 0
	PollInterval time.Duration
}

// Handler receives synchronizer events. Nil funcs are skipped. Callbacks run
// outside the synchronizer lock and never concurrently with each other; they
// must not call Start or Stop.
type Handler struct {
	// OnRoom is called with a copy of every room whose fingerprint changed.
	OnRoom func(room *match.Room)
	// OnNavigate fires once per subscription when the phase first leaves lobby.
	OnNavigate func(room *match.Room)
	// OnStatus is called after every refresh, successful or not.
	OnStatus func(status Status, err error)
}

type Synchronizer struct {
	store    roomstore.Store
	handler  Handler
	debounce time.Duration
	poll     time.Duration
	logger   zerolog.Logger

	mu sync.Mutex

	// scheduler
	timer    *time.Timer
	inFlight bool
	followUp bool

	// subscription lifetime
	code       string
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc
	sub        roomstore.Subscription
	navigated  bool

	// cache
	lastSnapshot string
	room         *match.Room
	status       Status
	lastErr      error

	callbacks sync.Mutex
	wg        sync.WaitGroup
}

func New(store roomstore.Store, cfg Config, handler Handler, logger zerolog.Logger) *Synchronizer {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DebounceFor(cfg.Platform)
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Synchronizer{
		store:    store,
		handler:  handler,
		debounce: debounce,
		poll:     poll,
		logger:   logger.With().Str("component", "room_sync").Logger(),
		status:   StatusIdle,
	}
}

// Start follows a room: it subscribes to change signals, starts polling and
// requests an immediate refresh. initial, when non-nil, is applied first.
// Any previous subscription is stopped.
func (s *Synchronizer) Start(ctx context.Context, code string, initial *match.Room) error {
	s.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.code = code
	s.generation++
	gen := s.generation
	s.ctx = runCtx
	s.cancel = cancel
	s.status = StatusConnecting
	s.mu.Unlock()

	if initial != nil {
		s.deliver(gen, initial.Clone(), nil)
	}

	sub, err := s.store.Subscribe(runCtx, code, s.Request)
	switch {
	case errors.Is(err, roomstore.ErrNotConfigured):
		s.logger.Debug().Str("room_code", code).Msg("push unavailable, polling only")
	case err != nil:
		s.logger.Warn().Err(err).Str("room_code", code).Msg("room subscription failed, polling only")
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		if sub != nil {
			sub.Unsubscribe()
		}
		return nil
	}
	s.sub = sub
	s.wg.Add(1)
	s.mu.Unlock()

	go s.pollLoop(runCtx)
	s.Request()
	return nil
}

// Stop cancels timers, the poller and the subscription and resets the
// scheduler flags. Fetches still running are discarded when they return.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	s.generation++
	if s.timer != nil && s.timer.Stop() {
		s.wg.Done()
	}
	s.timer = nil
	s.inFlight = false
	s.followUp = false
	s.navigated = false
	s.lastSnapshot = ""
	s.code = ""
	s.status = StatusIdle
	cancel := s.cancel
	sub := s.sub
	s.cancel = nil
	s.sub = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Unsubscribe()
	}
	s.wg.Wait()
}

// Request schedules a debounced refresh. Requests within the debounce window
// coalesce; a request during a fetch queues one follow-up.
func (s *Synchronizer) Request() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.code == "" {
		return
	}
	if s.inFlight {
		s.followUp = true
		return
	}
	if s.timer != nil {
		return
	}
	s.scheduleLocked()
}

// ApplyLocal mutates the cached room optimistically and requests a refresh so
// the authoritative row wins. It returns the mutated copy, or nil without a room.
func (s *Synchronizer) ApplyLocal(mutate func(room *match.Room)) *match.Room {
	s.mu.Lock()
	if s.room == nil || s.code == "" {
		s.mu.Unlock()
		return nil
	}
	mutate(s.room)
	s.lastSnapshot = ""
	out := s.room.Clone()
	s.mu.Unlock()

	s.Request()
	return out
}

// Room returns a copy of the cached room. It survives failed refreshes.
func (s *Synchronizer) Room() *match.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room.Clone()
}

func (s *Synchronizer) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.lastErr
}

func (s *Synchronizer) Code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// Forget drops the cached room, e.g. after leaving it.
func (s *Synchronizer) Forget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = nil
	s.lastErr = nil
}

func (s *Synchronizer) scheduleLocked() {
	gen := s.generation
	s.wg.Add(1)
	s.timer = time.AfterFunc(s.debounce, func() {
		defer s.wg.Done()
		s.refresh(gen)
	})
}

func (s *Synchronizer) pollLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Request()
		}
	}
}

func (s *Synchronizer) refresh(gen uint64) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.inFlight = true
	ctx, code := s.ctx, s.code
	s.mu.Unlock()

	room, err := s.store.FetchRoomState(ctx, code)
	s.deliver(gen, room, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	s.inFlight = false
	if s.followUp {
		s.followUp = false
		s.scheduleLocked()
	}
}

// deliver folds one fetch result into the cache and runs the callbacks.
func (s *Synchronizer) deliver(gen uint64, room *match.Room, err error) {
	s.callbacks.Lock()
	defer s.callbacks.Unlock()

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	var changed, navigate *match.Room
	if err != nil {
		s.status = StatusError
		s.lastErr = err
	} else {
		s.status = StatusConnected
		s.lastErr = nil
		if fp := Fingerprint(room); fp != s.lastSnapshot {
			s.lastSnapshot = fp
			s.room = room
			changed = room.Clone()
			if !s.navigated && room.Phase != match.RoomPhaseLobby {
				s.navigated = true
				navigate = room.Clone()
			}
		}
	}
	status, lastErr := s.status, s.lastErr
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn().Err(err).Msg("room refresh failed")
	}
	if changed != nil && s.handler.OnRoom != nil {
		s.handler.OnRoom(changed)
	}
	if navigate != nil && s.handler.OnNavigate != nil {
		s.handler.OnNavigate(navigate)
	}
	if s.handler.OnStatus != nil {
		s.handler.OnStatus(status, lastErr)
	}
}
