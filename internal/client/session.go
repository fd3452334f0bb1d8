// Package client composes the room store, the synchronizer, the round engines and
// the question provider into one player's game session.
package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/wager-quiz/internal/device"
	"github.com/gokatarajesh/wager-quiz/internal/match"
	"github.com/gokatarajesh/wager-quiz/internal/question"
	"github.com/gokatarajesh/wager-quiz/internal/roomstore"
	"github.com/gokatarajesh/wager-quiz/internal/roomsync"
)

var (
	ErrNotInRoom    = errors.New("not in a room")
	ErrNotHost      = errors.New("only the host can do this")
	ErrNotAllReady  = errors.New("not every player is ready")
	ErrNotStarted   = errors.New("the match has not started")
	ErrWrongStage   = errors.New("not available in the current stage")
	ErrNoPlayerName = errors.New("player name is empty")
)

// Stage is the coarse screen a session is on.
type Stage string

const (
	StageHome    Stage = "home"
	StageLobby   Stage = "lobby"
	StageRound   Stage = "round"
	StageFinal   Stage = "final"
	StageResults Stage = "results"
)

type EventKind string

const (
	EventRoom     EventKind = "room"
	EventNavigate EventKind = "navigate"
	EventStatus   EventKind = "status"
)

// Event is pushed to the presentation layer. Delivery is best effort.
type Event struct {
	Kind   EventKind
	Room   *match.Room
	Status roomsync.Status
	Err    error
}

// tokenKeeper is implemented by stores that hand out room tokens.
type tokenKeeper interface {
	Token(code string) string
	SetToken(code, token string)
}

type Deps struct {
	Store     roomstore.Store
	Profiles  *device.Store
	Questions match.QuestionSource
	Now       func() time.Time
}

type Config struct {
	Platform     roomsync.Platform
	Debounce     time.Duration
	PollInterval time.Duration
}

// Session is one player's view of one room. All methods are safe for concurrent use.
type Session struct {
	store     roomstore.Store
	profiles  *device.Store
	questions match.QuestionSource
	now       func() time.Time
	syncer    *roomsync.Synchronizer
	events    chan Event
	logger    zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	profile device.Profile
	code    string
	round   *match.RoundEngine
	final   *match.FinalEngine
}

func NewSession(deps Deps, cfg Config, logger zerolog.Logger) (*Session, error) {
	profile, err := deps.Profiles.Load()
	if err != nil {
		return nil, fmt.Errorf("load device profile: %w", err)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		store:     deps.Store,
		profiles:  deps.Profiles,
		questions: deps.Questions,
		now:       now,
		events:    make(chan Event, 64),
		logger:    logger.With().Str("component", "session").Logger(),
		baseCtx:   ctx,
		cancel:    cancel,
		profile:   profile,
	}
	s.syncer = roomsync.New(deps.Store, roomsync.Config{
		Platform:     cfg.Platform,
		Debounce:     cfg.Debounce,
		PollInterval: cfg.PollInterval,
	}, roomsync.Handler{
		OnRoom:     s.onRoom,
		OnNavigate: s.onNavigate,
		OnStatus:   s.onStatus,
	}, logger)
	return s, nil
}

// Events streams room updates, navigation and connection status.
func (s *Session) Events() <-chan Event { return s.events }

// Close stops synchronization without leaving the room.
func (s *Session) Close() {
	s.syncer.Stop()
	s.cancel()
}

func (s *Session) Profile() device.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

func (s *Session) PlayerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.DeviceID
}

// Room returns the cached room, nil outside a room.
func (s *Session) Room() *match.Room {
	return s.syncer.Room()
}

func (s *Session) Status() (roomsync.Status, error) {
	return s.syncer.Status()
}

// SetPlayerName stores the display name used for new rooms.
func (s *Session) SetPlayerName(name string) error {
	p, err := s.profiles.Update(func(p *device.Profile) { p.PlayerName = name })
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
	return nil
}

// SetAPIKey stores the provider credential and republishes hasApiKey when in a room.
func (s *Session) SetAPIKey(ctx context.Context, key string) error {
	p, err := s.profiles.Update(func(p *device.Profile) { p.APIKey = key })
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.profile = p
	code := s.code
	s.mu.Unlock()

	if code == "" {
		return nil
	}
	return s.writePlayer(ctx, code, p.DeviceID, match.PlayerPatch{HasAPIKey: match.BoolPtr(p.HasAPIKey())})
}

// SetToggles persists the hints, sound and haptics switches.
func (s *Session) SetToggles(hints, sound, haptics bool) error {
	p, err := s.profiles.Update(func(p *device.Profile) {
		p.Hints, p.Sound, p.Haptics = hints, sound, haptics
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
	return nil
}

func (s *Session) self() (match.Player, error) {
	if s.profile.PlayerName == "" {
		return match.Player{}, ErrNoPlayerName
	}
	lang := s.profile.Language
	return match.NewPlayer(s.profile.DeviceID, s.profile.PlayerName, lang, s.profile.HasAPIKey()), nil
}

// CreateRoom opens a lobby under a fresh code with this player as host.
func (s *Session) CreateRoom(ctx context.Context, settings match.GameSettings) (*match.Room, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	host, err := s.self()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	room, err := roomstore.CreateWithRetry(ctx, s.store, host, settings, nil)
	if err != nil {
		return nil, err
	}
	return room, s.enter(room)
}

// JoinRoom normalizes a user-entered code and joins that room.
func (s *Session) JoinRoom(ctx context.Context, rawCode string) (*match.Room, error) {
	code, err := match.NormalizeRoomCode(rawCode)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	player, err := s.self()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	room, err := s.store.JoinRoom(ctx, code, player)
	if err != nil {
		return nil, err
	}
	return room, s.enter(room)
}

// Resume rejoins the last room stored on the device, if it still lists this player.
func (s *Session) Resume(ctx context.Context) (*match.Room, error) {
	s.mu.Lock()
	code := s.profile.LastRoomCode
	token := s.profile.RoomTokens[code]
	id := s.profile.DeviceID
	s.mu.Unlock()
	if code == "" {
		return nil, ErrNotInRoom
	}
	if keeper, ok := s.store.(tokenKeeper); ok && token != "" {
		keeper.SetToken(code, token)
	}

	room, err := s.store.FetchRoomState(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.FindPlayer(id) == nil {
		return nil, fmt.Errorf("%w: %s", match.ErrPlayerNotFound, id)
	}
	return room, s.enter(room)
}

func (s *Session) enter(room *match.Room) error {
	s.mu.Lock()
	s.code = room.RoomCode
	s.round, s.final = nil, nil
	token := ""
	if keeper, ok := s.store.(tokenKeeper); ok {
		token = keeper.Token(room.RoomCode)
	}
	s.mu.Unlock()

	p, err := s.profiles.Update(func(p *device.Profile) {
		p.LastRoomCode = room.RoomCode
		if token != "" {
			if p.RoomTokens == nil {
				p.RoomTokens = map[string]string{}
			}
			p.RoomTokens[room.RoomCode] = token
		}
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("profile not saved")
	} else {
		s.mu.Lock()
		s.profile = p
		s.mu.Unlock()
	}

	return s.syncer.Start(s.baseCtx, room.RoomCode, room)
}

// Leave removes this player from the room and stops following it.
// Local state is kept when the store call fails.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	code, id := s.code, s.profile.DeviceID
	s.mu.Unlock()
	if code == "" {
		return ErrNotInRoom
	}
	if err := s.store.LeaveRoom(ctx, code, id); err != nil {
		return err
	}

	s.syncer.Stop()
	s.syncer.Forget()
	s.mu.Lock()
	s.code = ""
	s.round, s.final = nil, nil
	s.mu.Unlock()

	p, err := s.profiles.Update(func(p *device.Profile) {
		p.LastRoomCode = ""
		delete(p.RoomTokens, code)
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
	return nil
}

// Stage derives the current screen from the room phase and local engines.
func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stageLocked()
}

func (s *Session) stageLocked() Stage {
	if s.code == "" {
		return StageHome
	}
	if room := s.syncer.Room(); room != nil && room.Phase == match.RoomPhaseResults {
		return StageResults
	}
	switch {
	case s.final != nil && s.final.Phase() == match.FinalDone:
		return StageResults
	case s.final != nil:
		return StageFinal
	case s.round != nil:
		return StageRound
	}
	return StageLobby
}

// onRoom folds a synchronized room into the engines. Guests create their engines
// here when the host starts the match or moves it to the final round.
func (s *Session) onRoom(room *match.Room) {
	s.mu.Lock()
	if room.RoomCode == s.code {
		s.adoptLocked(room)
	}
	s.mu.Unlock()
	s.emit(Event{Kind: EventRoom, Room: room})
}

func (s *Session) adoptLocked(room *match.Room) {
	id := s.profile.DeviceID
	switch room.Phase {
	case match.RoomPhaseQuestion:
		if s.round == nil && len(room.Questions) > 0 {
			round, err := match.NewRoundEngine(id, room.Settings, room.Questions, s.now)
			if err != nil {
				s.logger.Warn().Err(err).Msg("round not started")
				return
			}
			s.round = round
		}
	case match.RoomPhaseFinal, match.RoomPhaseResults:
		if s.final == nil {
			s.final = match.NewFinalEngine(id, room.Settings, s.now)
		}
	}
	if s.round != nil && room.Phase == match.RoomPhaseQuestion {
		s.round.SyncRoom(room)
	}
	if s.final != nil {
		s.final.SyncRoom(room)
	}
}

func (s *Session) onNavigate(room *match.Room) {
	s.emit(Event{Kind: EventNavigate, Room: room})
}

func (s *Session) onStatus(status roomsync.Status, err error) {
	s.emit(Event{Kind: EventStatus, Status: status, Err: err})
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Debug().Str("kind", string(ev.Kind)).Msg("event dropped")
	}
}

// writePlayer persists a patch and mirrors it into the cached room.
func (s *Session) writePlayer(ctx context.Context, code, playerID string, patch match.PlayerPatch) error {
	if err := s.store.UpdatePlayerState(ctx, code, playerID, patch); err != nil {
		return err
	}
	s.syncer.ApplyLocal(func(room *match.Room) {
		if p := room.FindPlayer(playerID); p != nil {
			p.Apply(patch)
		}
	})
	return nil
}

func (s *Session) writeRoom(ctx context.Context, code string, patch match.RoomPatch) error {
	if err := s.store.UpdateRoom(ctx, code, patch); err != nil {
		return err
	}
	s.syncer.ApplyLocal(func(room *match.Room) { room.Apply(patch) })
	return nil
}

// roomLocked returns the cached room and this player's row in it.
func (s *Session) roomLocked() (*match.Room, *match.Player, error) {
	if s.code == "" {
		return nil, nil, ErrNotInRoom
	}
	room := s.syncer.Room()
	if room == nil {
		return nil, nil, ErrNotInRoom
	}
	me := room.FindPlayer(s.profile.DeviceID)
	if me == nil {
		return nil, nil, fmt.Errorf("%w: %s", match.ErrPlayerNotFound, s.profile.DeviceID)
	}
	return room, me, nil
}

// UpdateSettings lets the host change the lobby settings.
func (s *Session) UpdateSettings(ctx context.Context, settings match.GameSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room, me, err := s.roomLocked()
	if err != nil {
		return err
	}
	if !me.IsHost {
		return ErrNotHost
	}
	if room.Phase != match.RoomPhaseLobby {
		return ErrWrongStage
	}
	return s.writeRoom(ctx, room.RoomCode, match.RoomPatch{Settings: &settings})
}

// ToggleReady flips this player's ready flag and returns the new value.
func (s *Session) ToggleReady(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, me, err := s.roomLocked()
	if err != nil {
		return false, err
	}
	ready := !me.IsReady
	return ready, s.writePlayer(ctx, room.RoomCode, me.ID, match.PlayerPatch{IsReady: match.BoolPtr(ready)})
}

// StartGame generates the question set with the host's credential, resets every
// player for the match and moves the room into the first question.
func (s *Session) StartGame(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, me, err := s.roomLocked()
	if err != nil {
		return err
	}
	if !me.IsHost {
		return ErrNotHost
	}
	if room.Phase != match.RoomPhaseLobby {
		return ErrWrongStage
	}
	if !room.AllReady() {
		return ErrNotAllReady
	}

	qs, err := s.questions.Generate(ctx, room.Settings.GenerateRequest(), s.profile.APIKey)
	if err != nil {
		return err
	}
	round, err := match.NewRoundEngine(me.ID, room.Settings, qs, s.now)
	if err != nil {
		return err
	}

	for _, p := range room.Players {
		if err := s.writePlayer(ctx, room.RoomCode, p.ID, match.MatchStartPatch()); err != nil {
			return fmt.Errorf("reset %s: %w", p.ID, err)
		}
	}
	if err := s.writeRoom(ctx, room.RoomCode, match.RoomPatch{
		Phase:              match.PhasePtr(match.RoomPhaseQuestion),
		Questions:          qs,
		QuestionIndex:      match.IntPtr(0),
		ClearFinalQuestion: true,
	}); err != nil {
		return err
	}
	s.round, s.final = round, nil
	return nil
}

// RoundView is what the presentation layer needs to draw a regular round.
type RoundView struct {
	Phase     match.RoundPhase
	Index     int
	Total     int
	Question  question.Question
	Available []int
	Remaining time.Duration
	Board     map[string]match.AnswerEntry
}

func (s *Session) Round() (RoundView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.round == nil {
		return RoundView{}, ErrNotStarted
	}
	_, me, err := s.roomLocked()
	if err != nil {
		return RoundView{}, err
	}
	view := RoundView{
		Phase:     s.round.Phase(),
		Index:     s.round.Index(),
		Total:     s.round.Total(),
		Question:  s.round.Question(),
		Available: s.round.Ledger().Available(me.UsedBets),
		Remaining: s.round.Remaining(s.now()),
		Board:     map[string]match.AnswerEntry{},
	}
	for _, id := range s.round.Board().Answered() {
		view.Board[id], _ = s.round.Board().Entry(id)
	}
	return view, nil
}

// ConfirmBet claims a wager for this player. A rejected claim is an outcome, not an error.
func (s *Session) ConfirmBet(ctx context.Context, value int) (match.ClaimOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.round == nil {
		return "", ErrNotStarted
	}
	room, me, err := s.roomLocked()
	if err != nil {
		return "", err
	}
	outcome, err := s.round.ConfirmBet(me, value)
	if err != nil || outcome != match.ClaimAccepted {
		return outcome, err
	}
	return outcome, s.writePlayer(ctx, room.RoomCode, me.ID, match.PlayerPatch{
		CurrentBet: match.IntPtr(value),
		UsedBets:   me.UsedBets,
	})
}

// SubmitAnswer records this player's answer in the active round or final.
func (s *Session) SubmitAnswer(ctx context.Context, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, me, err := s.roomLocked()
	if err != nil {
		return err
	}
	switch {
	case s.final != nil:
		err = s.final.SubmitAnswer(me.ID, answer)
	case s.round != nil:
		err = s.round.SubmitAnswer(me.ID, answer)
	default:
		return ErrNotStarted
	}
	if err != nil {
		return err
	}
	return s.writePlayer(ctx, room.RoomCode, me.ID, match.PlayerPatch{Answer: match.StringPtr(answer)})
}

// Tick advances the viewer's countdown. It reports whether the phase changed.
func (s *Session) Tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	switch {
	case s.final != nil:
		return s.final.Tick(now)
	case s.round != nil:
		return s.round.Tick(now)
	}
	return false
}

// Reveal validates every known answer.
func (s *Session) Reveal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.final != nil:
		return s.final.Reveal()
	case s.round != nil:
		return s.round.Reveal()
	}
	return ErrNotStarted
}

// Override flips the validation of one player's answer.
func (s *Session) Override(playerID string, correct bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.final != nil:
		return s.final.Override(playerID, correct)
	case s.round != nil:
		return s.round.Override(playerID, correct)
	}
	return ErrNotStarted
}

// ApplyScores writes the scores of the revealed question. Only players with a stake
// on the table take part, so a second viewer applying the same synced question
// scores nothing. Personalized final questions are only known on their own device,
// so there each viewer scores itself.
func (s *Session) ApplyScores(ctx context.Context) ([]match.ScoreChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, me, err := s.roomLocked()
	if err != nil {
		return nil, err
	}

	staked := make([]*match.Player, 0, len(room.Players))
	for _, p := range room.PlayerPointers() {
		if p.CurrentBet == nil {
			continue
		}
		if s.final != nil && s.final.Mode() == match.FinalModePersonalized && p.ID != me.ID {
			continue
		}
		staked = append(staked, p)
	}

	var changes []match.ScoreChange
	switch {
	case s.final != nil:
		changes, err = s.final.ApplyScores(staked)
	case s.round != nil:
		changes, err = s.round.ApplyScores(staked)
	default:
		return nil, ErrNotStarted
	}
	if err != nil {
		return nil, err
	}

	for _, c := range changes {
		patch := match.PlayerPatch{Score: match.IntPtr(c.Score), ClearBet: true}
		if err := s.writePlayer(ctx, room.RoomCode, c.PlayerID, patch); err != nil {
			return changes, fmt.Errorf("write score of %s: %w", c.PlayerID, err)
		}
	}
	return changes, nil
}

// Next moves every client to the following question, or into the final round.
func (s *Session) Next(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.round == nil || s.final != nil {
		return ErrWrongStage
	}
	room, _, err := s.roomLocked()
	if err != nil {
		return err
	}

	phase, err := s.round.Next(room.PlayerPointers())
	if err != nil {
		return err
	}
	for _, p := range room.Players {
		if err := s.writePlayer(ctx, room.RoomCode, p.ID, match.AdvancePatch()); err != nil {
			return fmt.Errorf("clear %s: %w", p.ID, err)
		}
	}

	if phase == match.RoundFinalWager {
		if err := s.writeRoom(ctx, room.RoomCode, match.RoomPatch{Phase: match.PhasePtr(match.RoomPhaseFinal)}); err != nil {
			return err
		}
		s.final = match.NewFinalEngine(s.profile.DeviceID, room.Settings, s.now)
		return nil
	}
	return s.writeRoom(ctx, room.RoomCode, match.RoomPatch{QuestionIndex: match.IntPtr(s.round.Index())})
}

// FinalView is what the presentation layer needs to draw the final round.
type FinalView struct {
	Phase     match.FinalPhase
	Mode      match.FinalMode
	Choice    match.FinalChoice
	Question  *question.Question
	Remaining time.Duration
	Board     map[string]match.AnswerEntry
}

func (s *Session) Final() (FinalView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.final == nil {
		return FinalView{}, ErrNotStarted
	}
	id := s.profile.DeviceID
	view := FinalView{
		Phase:     s.final.Phase(),
		Mode:      s.final.Mode(),
		Remaining: s.final.Remaining(s.now()),
		Board:     map[string]match.AnswerEntry{},
	}
	view.Choice, _ = s.final.Choice(id)
	if q, ok := s.final.QuestionFor(id); ok {
		view.Question = &q
	}
	for _, pid := range s.final.Board().Answered() {
		view.Board[pid], _ = s.final.Board().Entry(pid)
	}
	return view, nil
}

// SelectFinalWager records this player's 0/10/20 stake and publishes it.
func (s *Session) SelectFinalWager(ctx context.Context, wager int, difficulty string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.final == nil {
		return ErrNotStarted
	}
	room, me, err := s.roomLocked()
	if err != nil {
		return err
	}
	if err := s.final.SelectWager(me.ID, wager, difficulty); err != nil {
		return err
	}
	return s.writePlayer(ctx, room.RoomCode, me.ID, match.PlayerPatch{CurrentBet: match.IntPtr(wager)})
}

// GenerateFinal sources the final question. In shared mode only the host generates
// and publishes it; the other players pick it up from the room.
func (s *Session) GenerateFinal(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.final == nil {
		return ErrNotStarted
	}
	room, me, err := s.roomLocked()
	if err != nil {
		return err
	}
	creds := match.Credentials{me.ID: s.profile.APIKey}

	if s.final.Mode() == match.FinalModePersonalized {
		return s.final.Generate(ctx, s.questions, creds, []match.Player{*me})
	}
	if !me.IsHost {
		return ErrNotHost
	}
	if err := s.final.Generate(ctx, s.questions, creds, room.Players); err != nil {
		return err
	}
	q, _ := s.final.Shared()
	return s.writeRoom(ctx, room.RoomCode, match.RoomPatch{FinalQuestion: &q})
}

// Finish closes the final round and marks the room as finished.
func (s *Session) Finish(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.final == nil {
		return ErrNotStarted
	}
	room, _, err := s.roomLocked()
	if err != nil {
		return err
	}
	if err := s.final.Finish(); err != nil {
		return err
	}
	return s.writeRoom(ctx, room.RoomCode, match.RoomPatch{Phase: match.PhasePtr(match.RoomPhaseResults)})
}

// Standings returns the players ordered by score, highest first.
func (s *Session) Standings() []match.Player {
	room := s.syncer.Room()
	if room == nil {
		return nil
	}
	players := append([]match.Player(nil), room.Players...)
	sort.SliceStable(players, func(i, j int) bool { return players[i].Score > players[j].Score })
	return players
}
