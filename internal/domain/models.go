package domain

// Mode selects the termination policy for a play session.
type Mode string

const (
	// ModeDaily is a fixed-length session; it always completes after the
	// configured round count regardless of correctness.
	ModeDaily Mode = "daily"
	// ModeChallenge is open-ended and bounded only by the life budget.
	ModeChallenge Mode = "challenge"
)

// Valid reports whether the mode is one of the known values.
func (m Mode) Valid() bool {
	return m == ModeDaily || m == ModeChallenge
}

// Credentials carries the caller's backend token. It is captured once when a
// session starts and threaded explicitly through every external call; nothing
// reads it from ambient state.
type Credentials struct {
	Token string
}

// Question is an encoded sentence the player has to paraphrase. Immutable
// once fetched, except Meaning which is merged in after the first
// verification that reveals the canonical answer.
type Question struct {
	ID       string `json:"id"`
	Encoded  string `json:"encoded"`
	Category string `json:"category,omitempty"`
	// Meaning is the canonical answer text; empty until revealed.
	Meaning string `json:"meaning,omitempty"`
	// Aggregate stats reported by the question source, if any.
	CorrectCount  int     `json:"correctCount,omitempty"`
	TotalAttempts int     `json:"totalAttempts,omitempty"`
	SuccessRate   float64 `json:"successRate,omitempty"`
}

// QuestionQuery describes one batch fetch from a question source.
type QuestionQuery struct {
	Difficulty int
	Category   string
	Limit      int
	// Daily marks the fetch as part of the shared daily set, which caching
	// layers may serve from a per-day cache. Challenge fetches must stay
	// fresh and bypass such caches.
	Daily bool
}

// Verdict is the answer verifier's judgment of one submission.
type Verdict struct {
	IsCorrect bool `json:"isCorrect"`
	// Similarity is a semantic-closeness score in [0,100].
	Similarity int `json:"similarity"`
	// CorrectAnswer is the canonical meaning; typically present only when
	// the submission was judged incorrect.
	CorrectAnswer string `json:"correctAnswer,omitempty"`
	Feedback      string `json:"feedback,omitempty"`
}

// RoundResult records one completed round. Results are appended in round
// order and never reordered or deduplicated.
type RoundResult struct {
	Round         int      `json:"round"` // 1-based
	Question      Question `json:"question"`
	UserAnswer    string   `json:"userAnswer"`
	CorrectAnswer string   `json:"correctAnswer"`
	IsCorrect     bool     `json:"isCorrect"`
	Similarity    int      `json:"similarity"`
}

// Summary is the frozen snapshot handed to results presentation when a
// session terminates.
type Summary struct {
	Mode         Mode          `json:"mode"`
	Results      []RoundResult `json:"results"`
	CorrectCount int           `json:"correctCount"`
	MaxStreak    int           `json:"maxStreak"`
}

// ClampSimilarity normalizes a similarity score reported by a backend to the
// [0,100] range the rest of the system assumes.
func ClampSimilarity(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
