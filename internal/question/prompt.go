package question

import (
	"fmt"
	"strings"
)

// BuildPrompt renders the instruction sent to the generative provider.
func BuildPrompt(req GenerateRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Generate %d trivia questions about %q.\n", req.Count, req.Theme)
	if req.Difficulty == DifficultyMixed {
		b.WriteString("Mix easy, medium and hard questions and set \"difficulty\" on each item.\n")
	} else {
		fmt.Fprintf(&b, "Every question must be %s difficulty.\n", req.Difficulty)
	}
	if req.Language != "" {
		fmt.Fprintf(&b, "Write questions and answers in the language with code %q.\n", req.Language)
	}

	switch req.Type {
	case TypeMultipleChoice:
		b.WriteString("Each question has exactly 4 distinct options and \"correctAnswer\" must equal one of them.\n")
	case TypeTrueFalse:
		b.WriteString("Each question is a statement; \"correctAnswer\" is \"True\" or \"False\".\n")
	case TypeOpenEnded:
		b.WriteString("Each question has a short, unambiguous \"correctAnswer\" of a few words.\n")
	}
	if req.HintsEnabled {
		b.WriteString("Add a one-sentence \"hint\" that does not reveal the answer.\n")
	}

	b.WriteString(`Respond with JSON only, no prose, shaped as {"questions":[{"question":"...",`)
	if req.Type == TypeMultipleChoice {
		b.WriteString(`"options":["...","...","...","..."],`)
	}
	b.WriteString(`"correctAnswer":"...","difficulty":"..."`)
	if req.HintsEnabled {
		b.WriteString(`,"hint":"..."`)
	}
	b.WriteString("}]}\n")
	return b.String()
}
