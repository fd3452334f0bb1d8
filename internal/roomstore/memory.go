package roomstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/gokatarajesh/wager-quiz/internal/match"
)

// MemoryStore keeps rooms in process. Listeners are invoked synchronously after each write.
type MemoryStore struct {
	mu        sync.RWMutex
	rooms     map[string]*match.Room
	listeners map[string]map[uint64]func()
	nextID    uint64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:     make(map[string]*match.Room),
		listeners: make(map[string]map[uint64]func()),
	}
}

func (s *MemoryStore) CreateRoom(_ context.Context, code string, host match.Player, settings match.GameSettings) (*match.Room, error) {
	s.mu.Lock()
	if _, exists := s.rooms[code]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, code)
	}
	room := match.NewRoom(code, host.Clone(), settings)
	s.rooms[code] = room
	out := room.Clone()
	s.mu.Unlock()

	s.notify(code)
	return out, nil
}

func (s *MemoryStore) JoinRoom(_ context.Context, code string, player match.Player) (*match.Room, error) {
	s.mu.Lock()
	room, ok := s.rooms[code]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	room.AddPlayer(player.Clone())
	out := room.Clone()
	s.mu.Unlock()

	s.notify(code)
	return out, nil
}

func (s *MemoryStore) FetchRoomState(_ context.Context, code string) (*match.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	return room.Clone(), nil
}

// LeaveRoom removes the player; the room is discarded with its last player.
func (s *MemoryStore) LeaveRoom(_ context.Context, code, playerID string) error {
	s.mu.Lock()
	room, ok := s.rooms[code]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	room.RemovePlayer(playerID)
	if len(room.Players) == 0 {
		delete(s.rooms, code)
	}
	s.mu.Unlock()

	s.notify(code)
	return nil
}

func (s *MemoryStore) UpdatePlayerState(_ context.Context, code, playerID string, patch match.PlayerPatch) error {
	s.mu.Lock()
	room, ok := s.rooms[code]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	p := room.FindPlayer(playerID)
	if p == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", match.ErrPlayerNotFound, playerID)
	}
	p.Apply(patch)
	s.mu.Unlock()

	s.notify(code)
	return nil
}

func (s *MemoryStore) UpdateRoom(_ context.Context, code string, patch match.RoomPatch) error {
	s.mu.Lock()
	room, ok := s.rooms[code]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	room.Apply(patch)
	s.mu.Unlock()

	s.notify(code)
	return nil
}

func (s *MemoryStore) Subscribe(_ context.Context, code string, onChange func()) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	if s.listeners[code] == nil {
		s.listeners[code] = make(map[uint64]func())
	}
	s.listeners[code][id] = onChange

	var once sync.Once
	return SubscriptionFunc(func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners[code], id)
			if len(s.listeners[code]) == 0 {
				delete(s.listeners, code)
			}
		})
	}), nil
}

// ListenerCount reports the live subscriptions for a room.
func (s *MemoryStore) ListenerCount(code string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners[code])
}

func (s *MemoryStore) notify(code string) {
	s.mu.RLock()
	fns := make([]func(), 0, len(s.listeners[code]))
	for _, fn := range s.listeners[code] {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}
