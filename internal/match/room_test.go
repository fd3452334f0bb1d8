package match

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRoomCode(t *testing.T) {
	digits := regexp.MustCompile(`^[0-9]{6}$`)
	for i := 0; i < 200; i++ {
		assert.Regexp(t, digits, GenerateRoomCode())
	}
}

func TestNormalizeRoomCode(t *testing.T) {
	code, err := NormalizeRoomCode("  ab12cd ")
	require.NoError(t, err)
	assert.Equal(t, "AB12CD", code)

	_, err = NormalizeRoomCode("12345")
	assert.ErrorIs(t, err, ErrInvalidRoomCode)
	_, err = NormalizeRoomCode("1234567")
	assert.ErrorIs(t, err, ErrInvalidRoomCode)
}

func TestRoomRoster(t *testing.T) {
	room := NewRoom("000042", NewPlayer("h", "Host", "en", true), DefaultSettings())
	assert.Equal(t, RoomPhaseLobby, room.Phase)
	assert.True(t, room.Players[0].IsHost)

	room.AddPlayer(NewPlayer("g", "Guest", "fr", false))
	room.AddPlayer(NewPlayer("g", "Guest Renamed", "fr", true))
	require.Len(t, room.Players, 2)
	assert.Equal(t, "Guest Renamed", room.FindPlayer("g").Name)
	assert.False(t, room.FindPlayer("g").IsHost)
	assert.False(t, room.AllReady())

	for _, p := range room.PlayerPointers() {
		p.IsReady = true
	}
	assert.True(t, room.AllReady())

	assert.True(t, room.RemovePlayer("g"))
	assert.False(t, room.RemovePlayer("g"))
	assert.Equal(t, "h", room.Host().ID)
}

func TestRoomCloneIsDeep(t *testing.T) {
	room := NewRoom("000042", NewPlayer("h", "Host", "en", true), DefaultSettings())
	room.Players[0].UsedBets = []int{1}
	room.Players[0].CurrentBet = IntPtr(1)

	cp := room.Clone()
	cp.Players[0].UsedBets[0] = 9
	*cp.Players[0].CurrentBet = 9

	assert.Equal(t, []int{1}, room.Players[0].UsedBets)
	assert.Equal(t, 1, *room.Players[0].CurrentBet)
}

func TestPatches(t *testing.T) {
	p := NewPlayer("p", "P", "en", false)
	p.Score = 12
	p.UsedBets = []int{2, 3}
	p.CurrentBet = IntPtr(3)
	p.Answer = StringPtr("x")

	p.Apply(MatchStartPatch())
	assert.Zero(t, p.Score)
	assert.Empty(t, p.UsedBets)
	assert.Nil(t, p.CurrentBet)
	assert.Nil(t, p.Answer)

	p.Apply(PlayerPatch{CurrentBet: IntPtr(4), UsedBets: []int{4}, Answer: StringPtr("y")})
	p.Apply(AdvancePatch())
	assert.Nil(t, p.CurrentBet)
	assert.Nil(t, p.Answer)
	assert.Equal(t, []int{4}, p.UsedBets, "advancing never shrinks used bets")

	room := NewRoom("000001", NewPlayer("h", "Host", "en", true), DefaultSettings())
	room.Apply(RoomPatch{Phase: PhasePtr(RoomPhaseQuestion), QuestionIndex: IntPtr(3)})
	assert.Equal(t, RoomPhaseQuestion, room.Phase)
	assert.Equal(t, 3, room.QuestionIndex)
}

func TestSettingsValidate(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())

	s.NumberOfQuestions = 4
	assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)

	s = DefaultSettings()
	s.TimePerQuestion = 61
	assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)

	s = DefaultSettings()
	s.QuestionType = "essay"
	assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)

	s = GameSettings{Difficulty: DifficultyMixed, NumberOfQuestions: 5, TimePerQuestion: 10, QuestionType: "true-false", CustomTheme: "80s movies"}
	require.NoError(t, s.Validate())
	assert.Equal(t, FinalModeShared, s.FinalMode)
	assert.Equal(t, "80s movies", s.GenerateRequest().Theme)
}

func TestPlayerJSONKeepsEmptyUsedBets(t *testing.T) {
	data, err := json.Marshal(NewPlayer("p", "P", "en", false))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"used_bets":[]`)
}
