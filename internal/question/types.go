package question

// Difficulty constants for readability.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
	DifficultyMixed  = "mixed"
)

// Type constants.
const (
	TypeMultipleChoice = "multiple-choice"
	TypeOpenEnded      = "open-ended"
	TypeTrueFalse      = "true-false"
)

// Canonical true/false answers.
const (
	AnswerTrue  = "True"
	AnswerFalse = "False"
)

// OptionCount is the exact number of options a multiple-choice question carries.
const OptionCount = 4

// Question represents the normalized payload shared by every client of a room.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Type          string   `json:"type"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer"`
	Hint          string   `json:"hint,omitempty"`
	Difficulty    string   `json:"difficulty"`
}

// GenerateRequest guides a provider call.
type GenerateRequest struct {
	Theme        string `json:"theme"`
	Difficulty   string `json:"difficulty"`
	Count        int    `json:"count"`
	Type         string `json:"type"`
	Language     string `json:"language"`
	HintsEnabled bool   `json:"hints_enabled"`
}

// Clone deep-copies the options slice.
func (q Question) Clone() Question {
	cp := q
	if q.Options != nil {
		cp.Options = append([]string(nil), q.Options...)
	}
	return cp
}
