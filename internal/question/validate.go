package question

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var trueTokens = map[string]struct{}{
	"true": {}, "t": {}, "yes": {}, "y": {}, "1": {}, "correct": {},
	"vrai": {}, "oui": {}, "verdadero": {}, "verdadeiro": {}, "sí": {}, "si": {}, "sim": {},
	"wahr": {}, "ja": {}, "vero": {}, "waar": {}, "prawda": {}, "tak": {},
	"да": {}, "правда": {}, "верно": {},
}

var falseTokens = map[string]struct{}{
	"false": {}, "f": {}, "no": {}, "n": {}, "0": {}, "incorrect": {},
	"faux": {}, "non": {}, "falso": {}, "não": {}, "nao": {},
	"falsch": {}, "nein": {}, "onwaar": {}, "nee": {}, "fałsz": {}, "nie": {},
	"нет": {}, "ложь": {}, "неверно": {},
}

// ParseQuestions runs the validation pipeline over a raw provider payload.
// The batch is all-or-nothing: one bad item rejects everything.
func ParseQuestions(raw string, req GenerateRequest) ([]Question, error) {
	var decoded any
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &decoded); err != nil {
		return nil, NewError(CodeParsingError, "provider response is not valid JSON", err)
	}

	items, ok := extractItems(decoded)
	if !ok {
		return nil, NewError(CodeInvalidResponse, "provider response holds no question array", nil)
	}
	if len(items) < req.Count {
		return nil, NewError(CodeInvalidResponse,
			fmt.Sprintf("expected %d questions, got %d", req.Count, len(items)), nil)
	}

	out := make([]Question, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		q, err := normalizeItem(items[i], req)
		if err != nil {
			return nil, NewError(CodeInvalidResponse, fmt.Sprintf("question %d: %s", i+1, err.Error()), nil)
		}
		out = append(out, q)
	}
	return out, nil
}

// NormalizeTrueFalse maps free-form (and localized) true/false tokens onto "True"/"False".
func NormalizeTrueFalse(token string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(token))
	t = strings.TrimRight(t, ".!")
	if _, ok := trueTokens[t]; ok {
		return AnswerTrue, true
	}
	if _, ok := falseTokens[t]; ok {
		return AnswerFalse, true
	}
	return "", false
}

// AnswersMatch is the comparison used when validating answers: trimmed, case-insensitive.
func AnswersMatch(given, correct string) bool {
	return strings.EqualFold(strings.TrimSpace(given), strings.TrimSpace(correct))
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func extractItems(decoded any) ([]any, bool) {
	switch v := decoded.(type) {
	case []any:
		return v, true
	case map[string]any:
		if arr, ok := v["questions"].([]any); ok {
			return arr, true
		}
	}
	return nil, false
}

func normalizeItem(item any, req GenerateRequest) (Question, error) {
	obj, ok := item.(map[string]any)
	if !ok {
		return Question{}, fmt.Errorf("item is not an object")
	}

	text := firstString(obj, "question", "text", "prompt")
	if text == "" {
		return Question{}, fmt.Errorf("missing question text")
	}

	q := Question{
		ID:         firstString(obj, "id"),
		Text:       text,
		Type:       req.Type,
		Difficulty: firstString(obj, "difficulty"),
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Difficulty == "" || req.Difficulty != DifficultyMixed {
		q.Difficulty = req.Difficulty
	}
	if q.Difficulty == DifficultyMixed {
		q.Difficulty = DifficultyMedium
	}
	if req.HintsEnabled {
		q.Hint = firstString(obj, "hint")
	}

	answer := answerField(obj)

	switch req.Type {
	case TypeMultipleChoice:
		options, correct, err := normalizeOptions(obj["options"], answer)
		if err != nil {
			return Question{}, err
		}
		q.Options = options
		q.CorrectAnswer = correct
	case TypeTrueFalse:
		canonical, ok := NormalizeTrueFalse(answer)
		if !ok {
			return Question{}, fmt.Errorf("unrecognized true/false answer %q", answer)
		}
		q.CorrectAnswer = canonical
		q.Options = []string{AnswerTrue, AnswerFalse}
	case TypeOpenEnded:
		if answer == "" {
			return Question{}, fmt.Errorf("missing correct answer")
		}
		q.CorrectAnswer = answer
	default:
		return Question{}, fmt.Errorf("unsupported question type %q", req.Type)
	}
	return q, nil
}

func normalizeOptions(raw any, answer string) ([]string, string, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, "", fmt.Errorf("missing options")
	}
	if answer == "" {
		return nil, "", fmt.Errorf("missing correct answer")
	}

	options := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, o := range list {
		s, ok := o.(string)
		if !ok {
			return nil, "", fmt.Errorf("option is not a string")
		}
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		options = append(options, s)
	}

	correct := ""
	for _, o := range options {
		if AnswersMatch(o, answer) {
			correct = o
			break
		}
	}
	if correct == "" {
		correct = answer
		options = append(options, answer)
	}

	if len(options) != OptionCount {
		return nil, "", fmt.Errorf("expected %d unique options, got %d", OptionCount, len(options))
	}
	return options, correct, nil
}

func answerField(obj map[string]any) string {
	for _, key := range []string{"correctAnswer", "correct_answer", "answer"} {
		switch v := obj[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case bool:
			if v {
				return AnswerTrue
			}
			return AnswerFalse
		}
	}
	return ""
}

func firstString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}
