package match

import (
	"errors"
	"fmt"

	"github.com/gokatarajesh/wager-quiz/internal/question"
)

// RoomPhase is the coarse lifecycle stage stored on the room row.
type RoomPhase string

const (
	RoomPhaseLobby    RoomPhase = "lobby"
	RoomPhaseQuestion RoomPhase = "question"
	RoomPhaseFinal    RoomPhase = "final"
	RoomPhaseResults  RoomPhase = "results"
)

func (p RoomPhase) Valid() bool {
	switch p {
	case RoomPhaseLobby, RoomPhaseQuestion, RoomPhaseFinal, RoomPhaseResults:
		return true
	}
	return false
}

// Difficulty levels accepted in settings.
const (
	DifficultyEasy   = question.DifficultyEasy
	DifficultyMedium = question.DifficultyMedium
	DifficultyHard   = question.DifficultyHard
	DifficultyMixed  = question.DifficultyMixed
)

// FinalMode decides where the final question comes from.
type FinalMode string

const (
	FinalModeShared       FinalMode = "shared"
	FinalModePersonalized FinalMode = "personalized"
)

// Settings bounds.
const (
	MinQuestions       = 5
	MaxQuestions       = 20
	MinSecondsPerRound = 10
	MaxSecondsPerRound = 60
)

// Final round stakes.
var FinalWagers = []int{0, 10, 20}

// Player is one participant of a room. Score can go negative after the final round.
type Player struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Score      int     `json:"score"`
	IsHost     bool    `json:"is_host"`
	IsReady    bool    `json:"is_ready"`
	CurrentBet *int    `json:"current_bet,omitempty"`
	UsedBets   []int   `json:"used_bets"`
	HasAPIKey  bool    `json:"has_api_key"`
	Language   string  `json:"language"`
	Answer     *string `json:"answer,omitempty"`
}

// GameSettings is configured by the host in the lobby.
type GameSettings struct {
	Theme             string    `json:"theme"`
	CustomTheme       string    `json:"custom_theme,omitempty"`
	Difficulty        string    `json:"difficulty"`
	NumberOfQuestions int       `json:"number_of_questions"`
	TimePerQuestion   int       `json:"time_per_question"`
	QuestionType      string    `json:"question_type"`
	Language          string    `json:"language"`
	HintsEnabled      bool      `json:"hints_enabled"`
	FinalMode         FinalMode `json:"final_mode"`
}

// Room is the cached copy of the authoritative room record.
type Room struct {
	RoomCode      string              `json:"room_code"`
	HostID        string              `json:"host_id"`
	Phase         RoomPhase           `json:"phase"`
	Settings      GameSettings        `json:"settings"`
	Players       []Player            `json:"players"`
	Questions     []question.Question `json:"questions,omitempty"`
	QuestionIndex int                 `json:"question_index"`
	FinalQuestion *question.Question  `json:"final_question,omitempty"`
}

// PlayerPatch is a partial update of one player row. Nil fields are left untouched.
type PlayerPatch struct {
	Name        *string `json:"name,omitempty"`
	Score       *int    `json:"score,omitempty"`
	IsReady     *bool   `json:"is_ready,omitempty"`
	CurrentBet  *int    `json:"current_bet,omitempty"`
	ClearBet    bool    `json:"clear_bet,omitempty"`
	UsedBets    []int   `json:"used_bets,omitempty"`
	ResetBets   bool    `json:"reset_bets,omitempty"`
	HasAPIKey   *bool   `json:"has_api_key,omitempty"`
	Language    *string `json:"language,omitempty"`
	Answer      *string `json:"answer,omitempty"`
	ClearAnswer bool    `json:"clear_answer,omitempty"`
}

// RoomPatch is a partial update of the room row.
type RoomPatch struct {
	Phase              *RoomPhase          `json:"phase,omitempty"`
	Settings           *GameSettings       `json:"settings,omitempty"`
	Questions          []question.Question `json:"questions,omitempty"`
	QuestionIndex      *int                `json:"question_index,omitempty"`
	FinalQuestion      *question.Question  `json:"final_question,omitempty"`
	ClearFinalQuestion bool                `json:"clear_final_question,omitempty"`
}

var (
	ErrInvalidSettings   = errors.New("invalid game settings")
	ErrInvalidTransition = errors.New("invalid phase transition")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrInvalidRoomCode   = errors.New("room code must be exactly 6 characters")
	ErrNoQuestions       = errors.New("no questions loaded")
	ErrEmptyAnswer       = errors.New("answer is empty")
	ErrNoAnswer          = errors.New("player has not answered")
	ErrInvalidWager      = errors.New("final wager must be 0, 10 or 20")
	ErrWagerRequired     = errors.New("final wager not selected")
	ErrMissingCredential = errors.New("missing provider credential")
)

// ScoreChange reports a score written by ApplyScores.
type ScoreChange struct {
	PlayerID string
	Delta    int
	Score    int
}

// DefaultSettings returns the lobby defaults.
func DefaultSettings() GameSettings {
	return GameSettings{
		Theme:             "general",
		Difficulty:        DifficultyMedium,
		NumberOfQuestions: 10,
		TimePerQuestion:   30,
		QuestionType:      question.TypeMultipleChoice,
		Language:          "en",
		HintsEnabled:      false,
		FinalMode:         FinalModeShared,
	}
}

// Validate checks ranges and enums, filling zero values with defaults.
func (s *GameSettings) Validate() error {
	def := DefaultSettings()
	if s.Theme == "" && s.CustomTheme == "" {
		s.Theme = def.Theme
	}
	if s.Language == "" {
		s.Language = def.Language
	}
	if s.FinalMode == "" {
		s.FinalMode = def.FinalMode
	}

	switch s.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyMixed:
	default:
		return fmt.Errorf("%w: difficulty %q", ErrInvalidSettings, s.Difficulty)
	}
	switch s.QuestionType {
	case question.TypeMultipleChoice, question.TypeOpenEnded, question.TypeTrueFalse:
	default:
		return fmt.Errorf("%w: question type %q", ErrInvalidSettings, s.QuestionType)
	}
	switch s.FinalMode {
	case FinalModeShared, FinalModePersonalized:
	default:
		return fmt.Errorf("%w: final mode %q", ErrInvalidSettings, s.FinalMode)
	}
	if s.NumberOfQuestions < MinQuestions || s.NumberOfQuestions > MaxQuestions {
		return fmt.Errorf("%w: number of questions must be within [%d,%d]", ErrInvalidSettings, MinQuestions, MaxQuestions)
	}
	if s.TimePerQuestion < MinSecondsPerRound || s.TimePerQuestion > MaxSecondsPerRound {
		return fmt.Errorf("%w: time per question must be within [%d,%d]", ErrInvalidSettings, MinSecondsPerRound, MaxSecondsPerRound)
	}
	return nil
}

// EffectiveTheme prefers the custom theme when the host typed one.
func (s GameSettings) EffectiveTheme() string {
	if s.CustomTheme != "" {
		return s.CustomTheme
	}
	return s.Theme
}

// GenerateRequest maps settings onto a provider request.
func (s GameSettings) GenerateRequest() question.GenerateRequest {
	return question.GenerateRequest{
		Theme:        s.EffectiveTheme(),
		Difficulty:   s.Difficulty,
		Count:        s.NumberOfQuestions,
		Type:         s.QuestionType,
		Language:     s.Language,
		HintsEnabled: s.HintsEnabled,
	}
}

// FindPlayer returns a pointer into r.Players.
func (r *Room) FindPlayer(id string) *Player {
	for i := range r.Players {
		if r.Players[i].ID == id {
			return &r.Players[i]
		}
	}
	return nil
}

// Host returns the host player, if present.
func (r *Room) Host() *Player {
	return r.FindPlayer(r.HostID)
}

// AllReady reports whether every player toggled ready. Empty rooms are never ready.
func (r *Room) AllReady() bool {
	if len(r.Players) == 0 {
		return false
	}
	for _, p := range r.Players {
		if !p.IsReady {
			return false
		}
	}
	return true
}

// PlayerPointers exposes the roster for engines that mutate players in place.
func (r *Room) PlayerPointers() []*Player {
	out := make([]*Player, len(r.Players))
	for i := range r.Players {
		out[i] = &r.Players[i]
	}
	return out
}

// Clone deep-copies the room so cached snapshots are never shared with callers.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Players = make([]Player, len(r.Players))
	for i, p := range r.Players {
		cp.Players[i] = p.Clone()
	}
	if r.Questions != nil {
		cp.Questions = make([]question.Question, len(r.Questions))
		for i, q := range r.Questions {
			cp.Questions[i] = q.Clone()
		}
	}
	if r.FinalQuestion != nil {
		fq := r.FinalQuestion.Clone()
		cp.FinalQuestion = &fq
	}
	return &cp
}

// Clone deep-copies a player.
func (p Player) Clone() Player {
	cp := p
	if p.CurrentBet != nil {
		v := *p.CurrentBet
		cp.CurrentBet = &v
	}
	if p.Answer != nil {
		v := *p.Answer
		cp.Answer = &v
	}
	cp.UsedBets = append([]int{}, p.UsedBets...)
	return cp
}

// HasUsed reports whether the player already spent a wager value.
func (p Player) HasUsed(value int) bool {
	for _, v := range p.UsedBets {
		if v == value {
			return true
		}
	}
	return false
}

// Apply merges a patch into the player.
func (p *Player) Apply(patch PlayerPatch) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Score != nil {
		p.Score = *patch.Score
	}
	if patch.IsReady != nil {
		p.IsReady = *patch.IsReady
	}
	if patch.ClearBet {
		p.CurrentBet = nil
	}
	if patch.CurrentBet != nil {
		v := *patch.CurrentBet
		p.CurrentBet = &v
	}
	if patch.ResetBets {
		p.UsedBets = []int{}
	}
	if patch.UsedBets != nil {
		p.UsedBets = append([]int(nil), patch.UsedBets...)
	}
	if patch.HasAPIKey != nil {
		p.HasAPIKey = *patch.HasAPIKey
	}
	if patch.Language != nil {
		p.Language = *patch.Language
	}
	if patch.ClearAnswer {
		p.Answer = nil
	}
	if patch.Answer != nil {
		v := *patch.Answer
		p.Answer = &v
	}
}

// Apply merges a patch into the room.
func (r *Room) Apply(patch RoomPatch) {
	if patch.Phase != nil {
		r.Phase = *patch.Phase
	}
	if patch.Settings != nil {
		r.Settings = *patch.Settings
	}
	if patch.Questions != nil {
		r.Questions = patch.Questions
	}
	if patch.QuestionIndex != nil {
		r.QuestionIndex = *patch.QuestionIndex
	}
	if patch.ClearFinalQuestion {
		r.FinalQuestion = nil
	}
	if patch.FinalQuestion != nil {
		fq := *patch.FinalQuestion
		r.FinalQuestion = &fq
	}
}

// IntPtr, StringPtr, BoolPtr and PhasePtr build patch fields inline.
func IntPtr(v int) *int               { return &v }
func StringPtr(v string) *string      { return &v }
func BoolPtr(v bool) *bool            { return &v }
func PhasePtr(v RoomPhase) *RoomPhase { return &v }
