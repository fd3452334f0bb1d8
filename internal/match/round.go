package match

import (
	"fmt"
	"strings"
	"time"

	"github.com/gokatarajesh/wager-quiz/internal/match/scoring"
	"github.com/gokatarajesh/wager-quiz/internal/question"
)

// RoundPhase is the viewer's stage within one regular question.
type RoundPhase string

const (
	RoundBetting    RoundPhase = "betting"
	RoundQuestion   RoundPhase = "question"
	RoundPreview    RoundPhase = "preview"
	RoundValidation RoundPhase = "validation"
	RoundScoring    RoundPhase = "scoring"
	RoundFinalWager RoundPhase = "final_wager"
)

type transitionTable[P comparable] map[P][]P

func (t transitionTable[P]) allows(from, to P) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

var roundTransitions = transitionTable[RoundPhase]{
	RoundBetting:    {RoundQuestion},
	RoundQuestion:   {RoundPreview},
	RoundPreview:    {RoundValidation},
	RoundValidation: {RoundScoring},
	RoundScoring:    {RoundBetting, RoundFinalWager},
}

// RoundEngine drives the regular rounds of a match for one viewer.
// It is not safe for concurrent use; the owning session serializes calls.
type RoundEngine struct {
	viewerID  string
	questions []question.Question
	index     int
	timeLimit time.Duration

	ledger Ledger
	scorer *scoring.Engine
	phase  RoundPhase
	board  *AnswerBoard

	startedAt time.Time
	now       func() time.Time
}

// NewRoundEngine starts in betting on the first question. now may be nil.
func NewRoundEngine(viewerID string, settings GameSettings, questions []question.Question, now func() time.Time) (*RoundEngine, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	if now == nil {
		now = time.Now
	}
	qs := make([]question.Question, len(questions))
	for i, q := range questions {
		qs[i] = q.Clone()
	}
	return &RoundEngine{
		viewerID:  viewerID,
		questions: qs,
		timeLimit: time.Duration(settings.TimePerQuestion) * time.Second,
		ledger:    NewLedger(len(qs)),
		scorer:    scoring.NewEngine(scoring.ModeRegular),
		phase:     RoundBetting,
		board:     NewAnswerBoard(),
		now:       now,
	}, nil
}

func (e *RoundEngine) Phase() RoundPhase   { return e.phase }
func (e *RoundEngine) Index() int          { return e.index }
func (e *RoundEngine) Total() int          { return len(e.questions) }
func (e *RoundEngine) Ledger() Ledger      { return e.ledger }
func (e *RoundEngine) Board() *AnswerBoard { return e.board }

// Question returns the current question.
func (e *RoundEngine) Question() question.Question {
	return e.questions[e.index]
}

// Remaining is the countdown left for the viewer; zero outside the question phase.
func (e *RoundEngine) Remaining(now time.Time) time.Duration {
	if e.phase != RoundQuestion {
		return 0
	}
	left := e.timeLimit - now.Sub(e.startedAt)
	if left < 0 {
		return 0
	}
	return left
}

func (e *RoundEngine) transition(to RoundPhase) error {
	if !roundTransitions.allows(e.phase, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.phase, to)
	}
	e.phase = to
	if to == RoundQuestion {
		e.startedAt = e.now()
	}
	return nil
}

// ConfirmBet claims value on the player through the ledger; an accepted claim starts the question.
func (e *RoundEngine) ConfirmBet(p *Player, value int) (ClaimOutcome, error) {
	if e.phase != RoundBetting {
		return "", fmt.Errorf("%w: confirm bet during %s", ErrInvalidTransition, e.phase)
	}
	outcome := e.ledger.Claim(p, value)
	if outcome != ClaimAccepted {
		return outcome, nil
	}
	return outcome, e.transition(RoundQuestion)
}

// SubmitAnswer records an answer. The viewer's own answer moves question to preview;
// answers of other players are accepted until the board is revealed.
func (e *RoundEngine) SubmitAnswer(playerID, answer string) error {
	if strings.TrimSpace(answer) == "" {
		return ErrEmptyAnswer
	}
	if playerID == e.viewerID {
		if e.phase != RoundQuestion {
			return fmt.Errorf("%w: answer during %s", ErrInvalidTransition, e.phase)
		}
		e.board.Submit(playerID, answer)
		return e.transition(RoundPreview)
	}
	switch e.phase {
	case RoundBetting, RoundQuestion, RoundPreview:
		e.board.Submit(playerID, answer)
		return nil
	default:
		return fmt.Errorf("%w: answer during %s", ErrInvalidTransition, e.phase)
	}
}

// Tick moves question to preview once the time limit elapsed. It reports whether it did.
func (e *RoundEngine) Tick(now time.Time) bool {
	if e.phase != RoundQuestion || now.Sub(e.startedAt) < e.timeLimit {
		return false
	}
	return e.transition(RoundPreview) == nil
}

// Reveal validates every answer against the current question.
func (e *RoundEngine) Reveal() error {
	if err := e.transition(RoundValidation); err != nil {
		return err
	}
	correct := e.Question().CorrectAnswer
	e.board.Reveal(func(string) (string, bool) { return correct, true })
	return nil
}

// Override flips one player's validation before scores are applied.
func (e *RoundEngine) Override(playerID string, correct bool) error {
	if e.phase != RoundValidation {
		return fmt.Errorf("%w: override during %s", ErrInvalidTransition, e.phase)
	}
	return e.board.Override(playerID, correct)
}

// ApplyScores pays out wagers: +wager when correct, nothing otherwise. Every player's
// transient wager is cleared.
func (e *RoundEngine) ApplyScores(players []*Player) ([]ScoreChange, error) {
	if err := e.transition(RoundScoring); err != nil {
		return nil, err
	}
	changes := make([]ScoreChange, 0, len(players))
	for _, p := range players {
		entry, _ := e.board.Entry(p.ID)
		wager := 0
		if p.CurrentBet != nil {
			wager = *p.CurrentBet
		}
		delta := e.scorer.Delta(scoring.Outcome{Wager: wager, Answered: entry.HasAnswered, IsCorrect: entry.IsCorrect})
		p.Score += delta
		p.CurrentBet = nil
		changes = append(changes, ScoreChange{PlayerID: p.ID, Delta: delta, Score: p.Score})
	}
	return changes, nil
}

// Next advances to the following question, or to the final wager when none remain.
func (e *RoundEngine) Next(players []*Player) (RoundPhase, error) {
	if e.index+1 >= len(e.questions) {
		if err := e.transition(RoundFinalWager); err != nil {
			return e.phase, err
		}
		clearTransient(players)
		return e.phase, nil
	}
	if err := e.transition(RoundBetting); err != nil {
		return e.phase, err
	}
	e.index++
	e.board = NewAnswerBoard()
	clearTransient(players)
	return e.phase, nil
}

// SyncRoom adopts remote state written by other viewers: their answers, and a question
// index advanced past ours. It reports whether the engine moved to a new question.
func (e *RoundEngine) SyncRoom(room *Room) bool {
	moved := false
	if room.QuestionIndex > e.index && room.QuestionIndex < len(e.questions) && e.phase != RoundFinalWager {
		e.index = room.QuestionIndex
		e.board = NewAnswerBoard()
		e.phase = RoundBetting
		moved = true
	}
	if e.phase == RoundValidation || e.phase == RoundScoring || e.phase == RoundFinalWager {
		return moved
	}
	// answers in a snapshot taken before the advance belong to the previous question
	if room.QuestionIndex != e.index {
		return moved
	}
	for _, p := range room.Players {
		if p.ID == e.viewerID || p.Answer == nil || e.board.HasAnswered(p.ID) {
			continue
		}
		if strings.TrimSpace(*p.Answer) != "" {
			e.board.Submit(p.ID, *p.Answer)
		}
	}
	return moved
}

func clearTransient(players []*Player) {
	for _, p := range players {
		p.CurrentBet = nil
		p.Answer = nil
	}
}
