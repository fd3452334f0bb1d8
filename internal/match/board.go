package match

import (
	"strings"

	"github.com/gokatarajesh/wager-quiz/internal/question"
)

// AnswerEntry is one player's answer to the current question.
type AnswerEntry struct {
	Answer      string
	IsCorrect   *bool
	HasAnswered bool
}

// AnswerBoard holds the entries of a single question. A fresh board is created per question.
type AnswerBoard struct {
	entries map[string]*AnswerEntry
	order   []string
}

func NewAnswerBoard() *AnswerBoard {
	return &AnswerBoard{entries: make(map[string]*AnswerEntry)}
}

// Submit records an answer; a later submission from the same player replaces it.
func (b *AnswerBoard) Submit(playerID, answer string) {
	e, ok := b.entries[playerID]
	if !ok {
		e = &AnswerEntry{}
		b.entries[playerID] = e
		b.order = append(b.order, playerID)
	}
	e.Answer = strings.TrimSpace(answer)
	e.HasAnswered = true
	e.IsCorrect = nil
}

// Entry returns a copy of the player's entry.
func (b *AnswerBoard) Entry(playerID string) (AnswerEntry, bool) {
	e, ok := b.entries[playerID]
	if !ok {
		return AnswerEntry{}, false
	}
	cp := *e
	if e.IsCorrect != nil {
		v := *e.IsCorrect
		cp.IsCorrect = &v
	}
	return cp, true
}

// HasAnswered reports whether the player submitted an answer for this question.
func (b *AnswerBoard) HasAnswered(playerID string) bool {
	e, ok := b.entries[playerID]
	return ok && e.HasAnswered
}

// Answered returns player ids in submission order.
func (b *AnswerBoard) Answered() []string {
	return append([]string(nil), b.order...)
}

// Reveal marks every answered entry whose correct answer is known.
func (b *AnswerBoard) Reveal(correctFor func(playerID string) (string, bool)) {
	for id, e := range b.entries {
		if !e.HasAnswered {
			continue
		}
		correct, ok := correctFor(id)
		if !ok {
			continue
		}
		v := question.AnswersMatch(e.Answer, correct)
		e.IsCorrect = &v
	}
}

// Override flips the validation of an answered entry.
func (b *AnswerBoard) Override(playerID string, correct bool) error {
	e, ok := b.entries[playerID]
	if !ok || !e.HasAnswered {
		return ErrNoAnswer
	}
	v := correct
	e.IsCorrect = &v
	return nil
}
