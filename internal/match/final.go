package match

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gokatarajesh/wager-quiz/internal/match/scoring"
	"github.com/gokatarajesh/wager-quiz/internal/question"
)

// FinalPhase is the viewer's stage within the final round.
type FinalPhase string

const (
	FinalWager      FinalPhase = "wager"
	FinalQuestion   FinalPhase = "question"
	FinalPreview    FinalPhase = "preview"
	FinalValidation FinalPhase = "validation"
	FinalScoring    FinalPhase = "scoring"
	FinalDone       FinalPhase = "done"
)

var finalTransitions = transitionTable[FinalPhase]{
	FinalWager:      {FinalQuestion},
	FinalQuestion:   {FinalPreview},
	FinalPreview:    {FinalValidation},
	FinalValidation: {FinalScoring},
	FinalScoring:    {FinalDone},
}

// FinalChoice is a player's stake and preferred difficulty for the final question.
type FinalChoice struct {
	Wager      *int
	Difficulty string
}

// QuestionSource produces validated questions. *question.Service satisfies it.
type QuestionSource interface {
	Generate(ctx context.Context, req question.GenerateRequest, credential string) ([]question.Question, error)
}

// Credentials maps player id to that player's provider credential.
type Credentials map[string]string

// FinalEngine drives the single high-stakes final question.
type FinalEngine struct {
	viewerID  string
	settings  GameSettings
	timeLimit time.Duration

	scorer    *scoring.Engine
	phase     FinalPhase
	choices   map[string]FinalChoice
	questions map[string]question.Question
	shared    *question.Question
	board     *AnswerBoard

	startedAt time.Time
	now       func() time.Time
}

func NewFinalEngine(viewerID string, settings GameSettings, now func() time.Time) *FinalEngine {
	if now == nil {
		now = time.Now
	}
	return &FinalEngine{
		viewerID:  viewerID,
		settings:  settings,
		timeLimit: time.Duration(settings.TimePerQuestion) * time.Second,
		scorer:    scoring.NewEngine(scoring.ModeFinal),
		phase:     FinalWager,
		choices:   make(map[string]FinalChoice),
		questions: make(map[string]question.Question),
		board:     NewAnswerBoard(),
		now:       now,
	}
}

func (e *FinalEngine) Phase() FinalPhase   { return e.phase }
func (e *FinalEngine) Mode() FinalMode     { return e.settings.FinalMode }
func (e *FinalEngine) Board() *AnswerBoard { return e.board }

func (e *FinalEngine) transition(to FinalPhase) error {
	if !finalTransitions.allows(e.phase, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.phase, to)
	}
	e.phase = to
	if to == FinalQuestion {
		e.startedAt = e.now()
	}
	return nil
}

// SelectWager records a stake from {0,10,20}. An empty difficulty falls back to the room's.
func (e *FinalEngine) SelectWager(playerID string, wager int, difficulty string) error {
	if e.phase != FinalWager {
		return fmt.Errorf("%w: select wager during %s", ErrInvalidTransition, e.phase)
	}
	if !isFinalWager(wager) {
		return fmt.Errorf("%w: got %d", ErrInvalidWager, wager)
	}
	if difficulty == "" {
		difficulty = e.settings.Difficulty
	}
	switch difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyMixed:
	default:
		return fmt.Errorf("%w: difficulty %q", ErrInvalidSettings, difficulty)
	}
	w := wager
	e.choices[playerID] = FinalChoice{Wager: &w, Difficulty: difficulty}
	return nil
}

// Choice returns the recorded choice of a player.
func (e *FinalEngine) Choice(playerID string) (FinalChoice, bool) {
	c, ok := e.choices[playerID]
	return c, ok
}

// Generate sources the final question and starts it. In personalized mode every listed
// player gets their own question with their own credential and difficulty; in shared mode
// one question is generated with the host's credential once every listed player has
// staked, since publishing it closes the wager phase for the whole room. Preconditions
// are checked for every player before any provider call is made.
func (e *FinalEngine) Generate(ctx context.Context, source QuestionSource, creds Credentials, players []Player) error {
	if e.phase != FinalWager {
		return fmt.Errorf("%w: generate during %s", ErrInvalidTransition, e.phase)
	}

	if e.settings.FinalMode == FinalModeShared {
		host, ok := findHost(players)
		if !ok {
			return ErrPlayerNotFound
		}
		for _, p := range players {
			if _, staked := e.stakeOf(&p); !staked {
				return fmt.Errorf("%w: player %s", ErrWagerRequired, p.ID)
			}
		}
		req, cred, err := e.prepare(host.ID, creds)
		if err != nil {
			return err
		}
		qs, err := source.Generate(ctx, req, cred)
		if err != nil {
			return err
		}
		if len(qs) == 0 {
			return question.NewError(question.CodeInvalidResponse, "no final question returned", nil)
		}
		return e.SetShared(qs[0])
	}

	type job struct {
		playerID string
		req      question.GenerateRequest
		cred     string
	}
	jobs := make([]job, 0, len(players))
	for _, p := range players {
		req, cred, err := e.prepare(p.ID, creds)
		if err != nil {
			return err
		}
		jobs = append(jobs, job{playerID: p.ID, req: req, cred: cred})
	}

	var mu sync.Mutex
	generated := make(map[string]question.Question, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			qs, err := source.Generate(gctx, j.req, j.cred)
			if err != nil {
				return fmt.Errorf("final question for %s: %w", j.playerID, err)
			}
			if len(qs) == 0 {
				return question.NewError(question.CodeInvalidResponse, "no final question returned", nil)
			}
			mu.Lock()
			generated[j.playerID] = qs[0]
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for id, q := range generated {
		e.questions[id] = q
	}
	return e.transition(FinalQuestion)
}

func (e *FinalEngine) prepare(playerID string, creds Credentials) (question.GenerateRequest, string, error) {
	choice, ok := e.choices[playerID]
	if !ok || choice.Wager == nil {
		return question.GenerateRequest{}, "", fmt.Errorf("%w: player %s", ErrWagerRequired, playerID)
	}
	cred := strings.TrimSpace(creds[playerID])
	if cred == "" {
		return question.GenerateRequest{}, "", fmt.Errorf("%w: player %s", ErrMissingCredential, playerID)
	}
	req := e.settings.GenerateRequest()
	req.Count = 1
	req.Difficulty = choice.Difficulty
	return req, cred, nil
}

// SetShared starts the question phase with a question every player answers.
// Viewers that did not generate it adopt it from the room.
func (e *FinalEngine) SetShared(q question.Question) error {
	if err := e.transition(FinalQuestion); err != nil {
		return err
	}
	cp := q.Clone()
	e.shared = &cp
	return nil
}

// Shared returns the shared question, if one is set.
func (e *FinalEngine) Shared() (question.Question, bool) {
	if e.shared == nil {
		return question.Question{}, false
	}
	return *e.shared, true
}

// QuestionFor returns the question a player answers. Personalized questions of other
// devices are not known locally.
func (e *FinalEngine) QuestionFor(playerID string) (question.Question, bool) {
	if e.shared != nil {
		return *e.shared, true
	}
	q, ok := e.questions[playerID]
	return q, ok
}

// SubmitAnswer mirrors RoundEngine.SubmitAnswer.
func (e *FinalEngine) SubmitAnswer(playerID, answer string) error {
	if strings.TrimSpace(answer) == "" {
		return ErrEmptyAnswer
	}
	if playerID == e.viewerID {
		if e.phase != FinalQuestion {
			return fmt.Errorf("%w: answer during %s", ErrInvalidTransition, e.phase)
		}
		e.board.Submit(playerID, answer)
		return e.transition(FinalPreview)
	}
	switch e.phase {
	case FinalWager, FinalQuestion, FinalPreview:
		e.board.Submit(playerID, answer)
		return nil
	default:
		return fmt.Errorf("%w: answer during %s", ErrInvalidTransition, e.phase)
	}
}

func (e *FinalEngine) Tick(now time.Time) bool {
	if e.phase != FinalQuestion || now.Sub(e.startedAt) < e.timeLimit {
		return false
	}
	return e.transition(FinalPreview) == nil
}

// Remaining is the countdown left for the viewer; zero outside the question phase.
func (e *FinalEngine) Remaining(now time.Time) time.Duration {
	if e.phase != FinalQuestion {
		return 0
	}
	left := e.timeLimit - now.Sub(e.startedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Reveal validates each answer against the question that player was asked.
func (e *FinalEngine) Reveal() error {
	if err := e.transition(FinalValidation); err != nil {
		return err
	}
	e.board.Reveal(func(playerID string) (string, bool) {
		q, ok := e.QuestionFor(playerID)
		return q.CorrectAnswer, ok
	})
	return nil
}

func (e *FinalEngine) Override(playerID string, correct bool) error {
	if e.phase != FinalValidation {
		return fmt.Errorf("%w: override during %s", ErrInvalidTransition, e.phase)
	}
	return e.board.Override(playerID, correct)
}

// ApplyScores is symmetric: +wager when correct, -wager when wrong.
func (e *FinalEngine) ApplyScores(players []*Player) ([]ScoreChange, error) {
	if err := e.transition(FinalScoring); err != nil {
		return nil, err
	}
	changes := make([]ScoreChange, 0, len(players))
	for _, p := range players {
		entry, _ := e.board.Entry(p.ID)
		wager, _ := e.stakeOf(p)
		delta := e.scorer.Delta(scoring.Outcome{Wager: wager, Answered: entry.HasAnswered, IsCorrect: entry.IsCorrect})
		p.Score += delta
		p.CurrentBet = nil
		changes = append(changes, ScoreChange{PlayerID: p.ID, Delta: delta, Score: p.Score})
	}
	return changes, nil
}

// stakeOf prefers the stake written on the player row, which is the last one the
// player selected, over a locally recorded choice.
func (e *FinalEngine) stakeOf(p *Player) (int, bool) {
	if p.CurrentBet != nil && isFinalWager(*p.CurrentBet) {
		return *p.CurrentBet, true
	}
	if c, ok := e.choices[p.ID]; ok && c.Wager != nil {
		return *c.Wager, true
	}
	return 0, false
}

// Finish closes the final round.
func (e *FinalEngine) Finish() error {
	return e.transition(FinalDone)
}

// SyncRoom adopts other players' latest stakes and answers, and the shared question
// once the host has written it. It reports whether the engine left the wager phase.
func (e *FinalEngine) SyncRoom(room *Room) bool {
	started := false
	if e.phase == FinalWager && e.settings.FinalMode == FinalModeShared && room.FinalQuestion != nil {
		started = e.SetShared(*room.FinalQuestion) == nil
	}
	if e.phase == FinalValidation || e.phase == FinalScoring || e.phase == FinalDone {
		return started
	}
	for _, p := range room.Players {
		if p.ID == e.viewerID {
			continue
		}
		if p.CurrentBet != nil && isFinalWager(*p.CurrentBet) {
			w := *p.CurrentBet
			choice, ok := e.choices[p.ID]
			if !ok {
				choice.Difficulty = e.settings.Difficulty
			}
			choice.Wager = &w
			e.choices[p.ID] = choice
		}
		if p.Answer != nil && strings.TrimSpace(*p.Answer) != "" && !e.board.HasAnswered(p.ID) {
			e.board.Submit(p.ID, *p.Answer)
		}
	}
	return started
}

func isFinalWager(v int) bool {
	for _, w := range FinalWagers {
		if w == v {
			return true
		}
	}
	return false
}

func findHost(players []Player) (Player, bool) {
	for _, p := range players {
		if p.IsHost {
			return p, true
		}
	}
	return Player{}, false
}
