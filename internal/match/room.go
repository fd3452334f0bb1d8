package match

import (
	"fmt"
	"math/rand"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// RoomCodeLength is the exact length of every room code.
const RoomCodeLength = 6

// GenerateRoomCode returns a random zero-padded 6-digit code.
func GenerateRoomCode() string {
	return fmt.Sprintf("%06d", rand.Intn(1_000_000))
}

// NormalizeRoomCode trims and uppercases a user-entered code and checks its length.
func NormalizeRoomCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if utf8.RuneCountInString(code) != RoomCodeLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoomCode, raw)
	}
	return code, nil
}

// NewPlayer builds a fresh participant. An empty id gets a random one.
func NewPlayer(id, name, language string, hasAPIKey bool) Player {
	if id == "" {
		id = uuid.NewString()
	}
	return Player{
		ID:        id,
		Name:      strings.TrimSpace(name),
		Language:  language,
		HasAPIKey: hasAPIKey,
		UsedBets:  []int{},
	}
}

// NewRoom builds a lobby room owned by host.
func NewRoom(code string, host Player, settings GameSettings) *Room {
	host.IsHost = true
	return &Room{
		RoomCode: code,
		HostID:   host.ID,
		Phase:    RoomPhaseLobby,
		Settings: settings,
		Players:  []Player{host},
	}
}

// AddPlayer appends a guest, or refreshes the row of a player rejoining with the same id.
func (r *Room) AddPlayer(p Player) {
	p.IsHost = p.ID == r.HostID
	if existing := r.FindPlayer(p.ID); existing != nil {
		existing.Name = p.Name
		existing.Language = p.Language
		existing.HasAPIKey = p.HasAPIKey
		return
	}
	if p.UsedBets == nil {
		p.UsedBets = []int{}
	}
	r.Players = append(r.Players, p)
}

// RemovePlayer drops a player. It reports whether the player was present.
func (r *Room) RemovePlayer(id string) bool {
	for i := range r.Players {
		if r.Players[i].ID == id {
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			return true
		}
	}
	return false
}

// MatchStartPatch resets a player for a new match: score 0, no bets, no answer.
func MatchStartPatch() PlayerPatch {
	return PlayerPatch{
		Score:       IntPtr(0),
		ClearBet:    true,
		ResetBets:   true,
		ClearAnswer: true,
	}
}

// AdvancePatch clears the per-question transient fields of a player.
func AdvancePatch() PlayerPatch {
	return PlayerPatch{ClearBet: true, ClearAnswer: true}
}
