package match

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/wager-quiz/internal/question"
)

type mockSource struct {
	mock.Mock
	mu sync.Mutex
}

func (m *mockSource) Generate(ctx context.Context, req question.GenerateRequest, credential string) ([]question.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called(ctx, req, credential)
	qs, _ := args.Get(0).([]question.Question)
	return qs, args.Error(1)
}

func finalQuestion(id, answer string) []question.Question {
	return []question.Question{{ID: id, Text: "Final?", Type: question.TypeOpenEnded, CorrectAnswer: answer}}
}

func finalRoom(mode FinalMode) *Room {
	room := testRoom()
	room.Settings.FinalMode = mode
	return room
}

func TestFinalWrongAnswerCostsWager(t *testing.T) {
	clock := newClock()
	room := finalRoom(FinalModeShared)
	room.FindPlayer("host").Score = 12
	e := NewFinalEngine("host", room.Settings, clock.Now)

	src := &mockSource{}
	src.On("Generate", mock.Anything, mock.MatchedBy(func(r question.GenerateRequest) bool { return r.Count == 1 }), "host-key").
		Return(finalQuestion("f1", "Everest"), nil).Once()

	require.NoError(t, e.SelectWager("host", 20, ""))
	require.NoError(t, e.SelectWager("guest", 0, ""))
	require.NoError(t, e.Generate(context.Background(), src, Credentials{"host": "host-key"}, room.Players))
	assert.Equal(t, FinalQuestion, e.Phase())

	require.NoError(t, e.SubmitAnswer("host", "K2"))
	require.NoError(t, e.Reveal())
	changes, err := e.ApplyScores(room.PlayerPointers())
	require.NoError(t, err)

	assert.Equal(t, -8, room.FindPlayer("host").Score)
	assert.Equal(t, -20, changes[0].Delta)
	require.NoError(t, e.Finish())
	assert.Equal(t, FinalDone, e.Phase())
	src.AssertExpectations(t)
}

func TestFinalCorrectAnswerPaysWager(t *testing.T) {
	clock := newClock()
	room := finalRoom(FinalModeShared)
	e := NewFinalEngine("host", room.Settings, clock.Now)

	require.NoError(t, e.SelectWager("host", 10, DifficultyHard))
	require.NoError(t, e.SetShared(finalQuestion("f1", "Everest")[0]))
	require.NoError(t, e.SubmitAnswer("host", "everest"))
	require.NoError(t, e.Reveal())
	_, err := e.ApplyScores(room.PlayerPointers())
	require.NoError(t, err)
	assert.Equal(t, 10, room.FindPlayer("host").Score)
}

func TestFinalZeroWagerAndUnansweredKeepScore(t *testing.T) {
	clock := newClock()
	room := finalRoom(FinalModeShared)
	e := NewFinalEngine("host", room.Settings, clock.Now)

	require.NoError(t, e.SelectWager("host", 0, ""))
	require.NoError(t, e.SelectWager("guest", 20, ""))
	require.NoError(t, e.SetShared(finalQuestion("f1", "Everest")[0]))
	require.NoError(t, e.SubmitAnswer("host", "K2"))
	require.NoError(t, e.Reveal())
	_, err := e.ApplyScores(room.PlayerPointers())
	require.NoError(t, err)

	assert.Zero(t, room.FindPlayer("host").Score)
	assert.Zero(t, room.FindPlayer("guest").Score, "guest never answered")
}

func TestFinalSelectWagerValidation(t *testing.T) {
	e := NewFinalEngine("host", DefaultSettings(), nil)

	assert.ErrorIs(t, e.SelectWager("host", 15, ""), ErrInvalidWager)
	assert.ErrorIs(t, e.SelectWager("host", 10, "extreme"), ErrInvalidSettings)
	require.NoError(t, e.SelectWager("host", 10, ""))

	choice, ok := e.Choice("host")
	require.True(t, ok)
	assert.Equal(t, 10, *choice.Wager)
	assert.Equal(t, DifficultyMedium, choice.Difficulty)
}

func TestFinalGenerateRequiresWager(t *testing.T) {
	room := finalRoom(FinalModeShared)
	e := NewFinalEngine("host", room.Settings, nil)
	src := &mockSource{}

	err := e.Generate(context.Background(), src, Credentials{"host": "key"}, room.Players)
	assert.ErrorIs(t, err, ErrWagerRequired)
	assert.Equal(t, FinalWager, e.Phase())
	src.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalGenerateFailsFastWithoutCredential(t *testing.T) {
	room := finalRoom(FinalModePersonalized)
	e := NewFinalEngine("host", room.Settings, nil)
	src := &mockSource{}

	require.NoError(t, e.SelectWager("host", 10, ""))
	require.NoError(t, e.SelectWager("guest", 20, ""))

	err := e.Generate(context.Background(), src, Credentials{"host": "host-key"}, room.Players)
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Equal(t, FinalWager, e.Phase())
	src.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalPersonalizedUsesOwnCredentialAndDifficulty(t *testing.T) {
	clock := newClock()
	room := finalRoom(FinalModePersonalized)
	e := NewFinalEngine("host", room.Settings, clock.Now)

	src := &mockSource{}
	src.On("Generate", mock.Anything, mock.MatchedBy(func(r question.GenerateRequest) bool { return r.Difficulty == DifficultyHard }), "host-key").
		Return(finalQuestion("h", "Everest"), nil).Once()
	src.On("Generate", mock.Anything, mock.MatchedBy(func(r question.GenerateRequest) bool { return r.Difficulty == DifficultyEasy }), "guest-key").
		Return(finalQuestion("g", "Nile"), nil).Once()

	require.NoError(t, e.SelectWager("host", 20, DifficultyHard))
	require.NoError(t, e.SelectWager("guest", 10, DifficultyEasy))
	require.NoError(t, e.Generate(context.Background(), src, Credentials{"host": "host-key", "guest": "guest-key"}, room.Players))
	src.AssertExpectations(t)

	hq, ok := e.QuestionFor("host")
	require.True(t, ok)
	assert.Equal(t, "h", hq.ID)
	gq, ok := e.QuestionFor("guest")
	require.True(t, ok)
	assert.Equal(t, "g", gq.ID)

	require.NoError(t, e.SubmitAnswer("guest", "Nile"))
	require.NoError(t, e.SubmitAnswer("host", "Everest"))
	require.NoError(t, e.Reveal())
	_, err := e.ApplyScores(room.PlayerPointers())
	require.NoError(t, err)
	assert.Equal(t, 20, room.FindPlayer("host").Score)
	assert.Equal(t, 10, room.FindPlayer("guest").Score)
}

func TestFinalGenerateSurfacesProviderError(t *testing.T) {
	room := finalRoom(FinalModeShared)
	e := NewFinalEngine("host", room.Settings, nil)
	src := &mockSource{}
	src.On("Generate", mock.Anything, mock.Anything, "key").
		Return(nil, question.NewError(question.CodeQuotaExceeded, "quota", nil))

	require.NoError(t, e.SelectWager("host", 10, ""))
	require.NoError(t, e.SelectWager("guest", 10, ""))
	err := e.Generate(context.Background(), src, Credentials{"host": "key"}, room.Players)
	assert.Equal(t, question.CodeQuotaExceeded, question.CodeOf(err))
	assert.Equal(t, FinalWager, e.Phase())
}

func TestFinalTimerAndTransitions(t *testing.T) {
	clock := newClock()
	room := finalRoom(FinalModeShared)
	e := NewFinalEngine("host", room.Settings, clock.Now)

	assert.ErrorIs(t, e.Reveal(), ErrInvalidTransition)
	require.NoError(t, e.SetShared(finalQuestion("f", "x")[0]))
	assert.ErrorIs(t, e.SetShared(finalQuestion("f", "x")[0]), ErrInvalidTransition)
	assert.ErrorIs(t, e.SelectWager("host", 10, ""), ErrInvalidTransition)

	assert.False(t, e.Tick(clock.Now().Add(10*time.Second)))
	assert.True(t, e.Tick(clock.Now().Add(20*time.Second)))
	assert.Equal(t, FinalPreview, e.Phase())
	assert.False(t, e.Tick(clock.Now().Add(40*time.Second)))
	assert.Equal(t, FinalPreview, e.Phase())
}

func TestFinalSharedGenerateWaitsForEveryStake(t *testing.T) {
	room := finalRoom(FinalModeShared)
	e := NewFinalEngine("host", room.Settings, nil)
	src := &mockSource{}
	src.On("Generate", mock.Anything, mock.Anything, "host-key").Return(finalQuestion("f1", "Everest"), nil).Once()

	require.NoError(t, e.SelectWager("host", 20, ""))
	err := e.Generate(context.Background(), src, Credentials{"host": "host-key"}, room.Players)
	assert.ErrorIs(t, err, ErrWagerRequired)
	assert.ErrorContains(t, err, "guest")
	assert.Equal(t, FinalWager, e.Phase())
	src.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)

	// a zero stake written on the row counts
	room.FindPlayer("guest").CurrentBet = IntPtr(0)
	require.NoError(t, e.Generate(context.Background(), src, Credentials{"host": "host-key"}, room.Players))
	assert.Equal(t, FinalQuestion, e.Phase())
	src.AssertExpectations(t)
}

func TestFinalSyncRoomFollowsReselectedStake(t *testing.T) {
	room := finalRoom(FinalModeShared)
	e := NewFinalEngine("host", room.Settings, nil)
	require.NoError(t, e.SelectWager("host", 0, ""))

	remote := room.Clone()
	remote.FindPlayer("guest").CurrentBet = IntPtr(10)
	e.SyncRoom(remote)
	remote.FindPlayer("guest").CurrentBet = IntPtr(20)
	e.SyncRoom(remote)

	choice, ok := e.Choice("guest")
	require.True(t, ok)
	assert.Equal(t, 20, *choice.Wager)
	assert.Equal(t, DifficultyMedium, choice.Difficulty)

	require.NoError(t, e.SetShared(finalQuestion("f1", "Everest")[0]))
	remote.FindPlayer("guest").Answer = StringPtr("K2")
	e.SyncRoom(remote)
	require.NoError(t, e.SubmitAnswer("host", "Everest"))
	require.NoError(t, e.Reveal())

	changes, err := e.ApplyScores(remote.PlayerPointers())
	require.NoError(t, err)
	deltas := map[string]int{}
	for _, c := range changes {
		deltas[c.PlayerID] = c.Delta
	}
	assert.Equal(t, -20, deltas["guest"])
	assert.Equal(t, -20, remote.FindPlayer("guest").Score)
}

func TestFinalSyncRoomAdoptsSharedQuestionAndStakes(t *testing.T) {
	room := finalRoom(FinalModeShared)
	e := NewFinalEngine("guest", room.Settings, nil)

	remote := room.Clone()
	remote.FindPlayer("host").CurrentBet = IntPtr(20)
	assert.False(t, e.SyncRoom(remote))
	choice, ok := e.Choice("host")
	require.True(t, ok)
	assert.Equal(t, 20, *choice.Wager)

	fq := finalQuestion("shared", "Everest")[0]
	remote.FinalQuestion = &fq
	remote.FindPlayer("host").Answer = StringPtr("Everest")
	assert.True(t, e.SyncRoom(remote))
	assert.Equal(t, FinalQuestion, e.Phase())
	q, ok := e.Shared()
	require.True(t, ok)
	assert.Equal(t, "shared", q.ID)
	assert.True(t, e.Board().HasAnswered("host"))
}
