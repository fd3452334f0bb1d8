package scoring

// Mode selects how a wrong answer is treated.
type Mode int

const (
	// ModeRegular pays the wager on a correct answer and never takes points away.
	ModeRegular Mode = iota
	// ModeFinal is symmetric: +wager when correct, -wager when wrong.
	ModeFinal
)

func (m Mode) String() string {
	if m == ModeFinal {
		return "final"
	}
	return "regular"
}

// Outcome is what the scorer needs to know about one player for one question.
type Outcome struct {
	Wager     int
	Answered  bool
	IsCorrect *bool
}

// Engine computes score deltas for a round.
type Engine struct {
	mode Mode
}

// NewEngine creates a scoring engine for the given mode.
func NewEngine(mode Mode) *Engine {
	return &Engine{mode: mode}
}

func (e *Engine) Mode() Mode { return e.mode }

// Delta returns the score change for one outcome.
// Unanswered, unvalidated and zero-wager outcomes never move the score.
func (e *Engine) Delta(o Outcome) int {
	if !o.Answered || o.IsCorrect == nil || o.Wager <= 0 {
		return 0
	}
	if *o.IsCorrect {
		return o.Wager
	}
	if e.mode == ModeFinal {
		return -o.Wager
	}
	return 0
}

// Apply returns the new score after applying the outcome.
func (e *Engine) Apply(score int, o Outcome) int {
	return score + e.Delta(o)
}
