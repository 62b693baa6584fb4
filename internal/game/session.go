package game

import (
	"sync"
	"time"

	"context-hunter/internal/domain"
)

// Phase is the tagged state of a session. Every operation is valid in exactly
// the phases listed in its doc comment; illegal flag combinations from the
// old flag-per-concern approach are unrepresentable.
type Phase string

const (
	// PhaseLoading covers the initial question fetch.
	PhaseLoading Phase = "loading"
	// PhaseAwaitingAnswer means a question is displayed and input is accepted.
	PhaseAwaitingAnswer Phase = "awaitingAnswer"
	// PhaseSubmitting means a verification request is in flight.
	PhaseSubmitting Phase = "submitting"
	// PhaseShowingFeedback means the current round has a recorded verdict.
	PhaseShowingFeedback Phase = "showingFeedback"
	// PhaseTerminated is terminal; the summary is frozen.
	PhaseTerminated Phase = "terminated"
	// PhaseLoadError is terminal; the initial fetch failed or was empty.
	PhaseLoadError Phase = "loadError"
)

// Feedback is the per-round verdict surfaced to the presentation layer.
type Feedback struct {
	IsCorrect     bool   `json:"isCorrect"`
	Similarity    int    `json:"similarity"`
	UserAnswer    string `json:"userAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
}

// View is a read-only snapshot of a session for presentation.
type View struct {
	SessionID   string           `json:"sessionId"`
	Mode        domain.Mode      `json:"mode"`
	Phase       Phase            `json:"phase"`
	Round       int              `json:"round"`       // 1-based
	TotalRounds int              `json:"totalRounds"` // 0 = unbounded
	Lives       int              `json:"lives"`
	Streak      int              `json:"streak"`
	MaxStreak   int              `json:"maxStreak"`
	Question    *domain.Question `json:"question,omitempty"`
	Feedback    *Feedback        `json:"feedback,omitempty"`
	Error       string           `json:"error,omitempty"`
	Summary     *domain.Summary  `json:"summary,omitempty"`
}

// Session holds the state of one play instance from mode selection to
// termination. All mutation goes through the owning Service; the epoch guards
// against stale async completions (slow verifications, the game-over timer)
// touching a session that was since abandoned or restarted.
type Session struct {
	id         string
	mode       domain.Mode
	difficulty int
	category   string
	creds      domain.Credentials

	mu           sync.Mutex
	phase        Phase
	epoch        uint64
	queue        []domain.Question
	round        int // index into queue of the current question
	results      []domain.RoundResult
	lives        int
	streak       int
	maxStreak    int
	feedback     *Feedback
	replenishing bool
	loadErr      string
	summary      *domain.Summary
	subscribers  map[chan View]struct{}
}

// NewSession is exported for infrastructure layers that need to seed
// sessions; gameplay always goes through Service.Start.
func NewSession(id string) *Session {
	return newSession(id, domain.ModeDaily, 1, "", domain.Credentials{}, 3)
}

func newSession(id string, mode domain.Mode, difficulty int, category string, creds domain.Credentials, lives int) *Session {
	return &Session{
		id:          id,
		mode:        mode,
		difficulty:  difficulty,
		category:    category,
		creds:       creds,
		phase:       PhaseLoading,
		lives:       lives,
		results:     make([]domain.RoundResult, 0, 16),
		subscribers: make(map[chan View]struct{}),
	}
}

// View returns a snapshot of the session.
func (s *Session) View(totalRounds int) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(totalRounds)
}

func (s *Session) viewLocked(totalRounds int) View {
	v := View{
		SessionID: s.id,
		Mode:      s.mode,
		Phase:     s.phase,
		Round:     s.round + 1,
		Lives:     s.lives,
		Streak:    s.streak,
		MaxStreak: s.maxStreak,
		Error:     s.loadErr,
		Summary:   s.summary,
	}
	if s.mode == domain.ModeDaily {
		v.TotalRounds = totalRounds
	}
	if s.phase == PhaseLoading || s.phase == PhaseLoadError || s.phase == PhaseTerminated {
		v.Round = len(s.results)
		if s.phase == PhaseLoading {
			v.Round = 0
		}
	}
	if q := s.currentQuestionLocked(); q != nil {
		// The canonical meaning stays server-side; clients only ever see
		// the encoded prompt.
		v.Question = &domain.Question{ID: q.ID, Encoded: q.Encoded, Category: q.Category}
	}
	if s.feedback != nil {
		fb := *s.feedback
		v.Feedback = &fb
	}
	return v
}

func (s *Session) currentQuestionLocked() *domain.Question {
	switch s.phase {
	case PhaseAwaitingAnswer, PhaseSubmitting, PhaseShowingFeedback:
		if s.round < len(s.queue) {
			return &s.queue[s.round]
		}
	}
	return nil
}

// subscribe returns a channel receiving view snapshots on every state change,
// seeded with the current view. The caller must invoke cancel to avoid leaks.
func (s *Session) subscribe(totalRounds int) (<-chan View, func()) {
	ch := make(chan View, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.viewLocked(totalRounds)
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked(totalRounds int) View {
	v := s.viewLocked(totalRounds)
	for ch := range s.subscribers {
		select {
		case ch <- v:
		default:
			// Drop the oldest pending snapshot so a slow consumer never
			// blocks the session.
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
	return v
}

// completeStart resolves the initial question fetch.
func (s *Session) completeStart(epoch uint64, batch []domain.Question, fetchErr error, totalRounds int) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch || s.phase != PhaseLoading {
		return s.viewLocked(totalRounds)
	}
	switch {
	case fetchErr != nil:
		s.phase = PhaseLoadError
		s.loadErr = domain.ErrQuestionLoad.Error()
	case len(batch) == 0:
		s.phase = PhaseLoadError
		s.loadErr = domain.ErrNoQuestions.Error()
	default:
		s.queue = append(s.queue, batch...)
		s.phase = PhaseAwaitingAnswer
	}
	return s.broadcastLocked(totalRounds)
}

// beginSubmit validates the submission and moves the session to Submitting.
// It returns the question under verification and the epoch the eventual
// completion must present.
func (s *Session) beginSubmit(trimmed string) (domain.Question, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case PhaseTerminated, PhaseLoadError:
		return domain.Question{}, 0, domain.ErrSessionOver
	case PhaseAwaitingAnswer:
	default:
		return domain.Question{}, 0, domain.ErrNotAcceptingAnswers
	}
	if trimmed == "" {
		return domain.Question{}, 0, domain.ErrEmptyAnswer
	}
	q := s.currentQuestionLocked()
	if q == nil {
		return domain.Question{}, 0, domain.ErrQuestionNotFound
	}
	s.phase = PhaseSubmitting
	return *q, s.epoch, nil
}

// failSubmit reverts a failed verification back to AwaitingAnswer. Nothing
// was recorded, so the round stays retryable.
func (s *Session) failSubmit(epoch uint64, totalRounds int) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch == epoch && s.phase == PhaseSubmitting {
		s.phase = PhaseAwaitingAnswer
		s.broadcastLocked(totalRounds)
	}
	return s.viewLocked(totalRounds)
}

// completeSubmit records the round result and applies streak/life updates.
// It reports whether challenge-mode lives just ran out so the caller can
// schedule the delayed termination.
func (s *Session) completeSubmit(epoch uint64, answer string, verdict domain.Verdict, totalRounds int) (View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch || s.phase != PhaseSubmitting {
		// Stale completion: the session was abandoned or restarted while
		// the verifier was slow. Discard.
		return s.viewLocked(totalRounds), false
	}

	verdict.Similarity = domain.ClampSimilarity(verdict.Similarity)
	correct := verdict.CorrectAnswer
	if correct == "" {
		correct = answer
	}

	q := &s.queue[s.round]
	if q.Meaning == "" && verdict.CorrectAnswer != "" {
		q.Meaning = verdict.CorrectAnswer
	}

	s.results = append(s.results, domain.RoundResult{
		Round:         s.round + 1,
		Question:      *q,
		UserAnswer:    answer,
		CorrectAnswer: correct,
		IsCorrect:     verdict.IsCorrect,
		Similarity:    verdict.Similarity,
	})

	livesOut := false
	if verdict.IsCorrect {
		s.streak++
		if s.streak > s.maxStreak {
			s.maxStreak = s.streak
		}
	} else {
		s.streak = 0
		if s.mode == domain.ModeChallenge {
			s.lives--
			livesOut = s.lives == 0
		}
	}

	s.feedback = &Feedback{
		IsCorrect:     verdict.IsCorrect,
		Similarity:    verdict.Similarity,
		UserAnswer:    answer,
		CorrectAnswer: correct,
	}
	s.phase = PhaseShowingFeedback
	return s.broadcastLocked(totalRounds), livesOut
}

// scheduleGameOver terminates the session after the grace delay unless it
// already advanced to Terminated (or was abandoned) in the meantime.
func (s *Session) scheduleGameOver(epoch uint64, delay time.Duration, totalRounds int) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != epoch || s.phase != PhaseShowingFeedback || s.lives != 0 {
			return
		}
		s.terminateLocked()
		s.broadcastLocked(totalRounds)
	})
}

type advanceAction int

const (
	advanceDone advanceAction = iota
	advanceTerminated
	advanceNeedsFetch
)

// beginAdvance decides what the advance needs: immediate advance, session
// termination, or a replenishment fetch first.
func (s *Session) beginAdvance(dailyRounds int) (advanceAction, domain.QuestionQuery, uint64, View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case PhaseTerminated, PhaseLoadError:
		return 0, domain.QuestionQuery{}, 0, s.viewLocked(dailyRounds), domain.ErrSessionOver
	case PhaseShowingFeedback:
	default:
		return 0, domain.QuestionQuery{}, 0, s.viewLocked(dailyRounds), domain.ErrNotShowingFeedback
	}
	if s.replenishing {
		return 0, domain.QuestionQuery{}, 0, s.viewLocked(dailyRounds), domain.ErrNotShowingFeedback
	}

	if s.terminatesNowLocked(dailyRounds) {
		s.terminateLocked()
		return advanceTerminated, domain.QuestionQuery{}, 0, s.broadcastLocked(dailyRounds), nil
	}

	if s.round+1 >= len(s.queue) {
		s.replenishing = true
		query := domain.QuestionQuery{
			Difficulty: s.difficulty,
			Category:   s.category,
			Daily:      s.mode == domain.ModeDaily,
		}
		return advanceNeedsFetch, query, s.epoch, s.viewLocked(dailyRounds), nil
	}

	return advanceDone, domain.QuestionQuery{}, 0, s.advanceLocked(dailyRounds), nil
}

// completeAdvance appends a replenishment batch and advances, or blocks the
// advance (retryable) when the fetch failed or came back empty.
func (s *Session) completeAdvance(epoch uint64, batch []domain.Question, fetchErr error, dailyRounds int) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch || s.phase != PhaseShowingFeedback {
		s.replenishing = false
		return s.viewLocked(dailyRounds), nil
	}
	s.replenishing = false

	if fetchErr != nil || len(batch) == 0 {
		return s.viewLocked(dailyRounds), domain.ErrQuestionReplenish
	}
	// New questions always go after the existing queue, never interleaved.
	s.queue = append(s.queue, batch...)
	return s.advanceLocked(dailyRounds), nil
}

func (s *Session) terminatesNowLocked(dailyRounds int) bool {
	if s.mode == domain.ModeDaily {
		return s.round+1 >= dailyRounds
	}
	return s.lives == 0
}

func (s *Session) advanceLocked(totalRounds int) View {
	s.round++
	s.feedback = nil
	s.phase = PhaseAwaitingAnswer
	return s.broadcastLocked(totalRounds)
}

func (s *Session) terminateLocked() {
	results := make([]domain.RoundResult, len(s.results))
	copy(results, s.results)
	correct := 0
	for _, r := range results {
		if r.IsCorrect {
			correct++
		}
	}
	s.summary = &domain.Summary{
		Mode:         s.mode,
		Results:      results,
		CorrectCount: correct,
		MaxStreak:    s.maxStreak,
	}
	s.feedback = nil
	s.phase = PhaseTerminated
}

// abandon invalidates the session. In-flight completions see the epoch bump
// and discard their results.
func (s *Session) abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	if s.phase != PhaseTerminated && s.phase != PhaseLoadError {
		s.phase = PhaseTerminated
	}
}
