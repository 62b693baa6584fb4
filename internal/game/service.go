package game

import (
	"context"
	"fmt"
	"strings"
	"time"

	"context-hunter/internal/domain"
)

// QuestionSource provides question batches for a difficulty/category. It may
// be called repeatedly mid-session to top up a session's queue.
type QuestionSource interface {
	FetchQuestions(ctx context.Context, creds domain.Credentials, query domain.QuestionQuery) ([]domain.Question, error)
}

// Verifier scores a candidate answer against a question's canonical meaning.
type Verifier interface {
	VerifyAnswer(ctx context.Context, creds domain.Credentials, questionID, answer string) (domain.Verdict, error)
}

// SessionRepository abstracts how live sessions are tracked (in-memory,
// Redis-marked, etc).
type SessionRepository interface {
	Put(sessionID string, s *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
}

// Config holds the tunable game parameters.
type Config struct {
	// DailyRounds is the fixed round count of daily mode.
	DailyRounds int
	// Lives is the challenge-mode life budget.
	Lives int
	// BatchSize is how many questions each fetch asks for.
	BatchSize int
	// GameOverDelay is the grace period between the final feedback and the
	// forced challenge-mode termination.
	GameOverDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.DailyRounds <= 0 {
		c.DailyRounds = 10
	}
	if c.Lives <= 0 {
		c.Lives = 3
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.GameOverDelay <= 0 {
		c.GameOverDelay = 2 * time.Second
	}
	return c
}

// Service drives play sessions from first question to termination.
type Service struct {
	sessions SessionRepository
	source   QuestionSource
	verifier Verifier
	cfg      Config
}

func NewService(sessions SessionRepository, source QuestionSource, verifier Verifier, cfg Config) *Service {
	return &Service{
		sessions: sessions,
		source:   source,
		verifier: verifier,
		cfg:      cfg.withDefaults(),
	}
}

// Start creates a fresh session and loads its initial question batch. Fetch
// failures and empty batches do not return an error; they leave the session
// in the load-error phase, which presentation renders as "no questions
// available".
func (s *Service) Start(ctx context.Context, sessionID string, creds domain.Credentials, mode domain.Mode, difficulty int, category string) (View, error) {
	if !mode.Valid() {
		return View{}, fmt.Errorf("unknown game mode %q", mode)
	}
	if prev, ok := s.sessions.Get(sessionID); ok {
		prev.abandon()
	}

	sess := newSession(sessionID, mode, difficulty, category, creds, s.cfg.Lives)
	s.sessions.Put(sessionID, sess)

	batch, err := s.source.FetchQuestions(ctx, creds, domain.QuestionQuery{
		Difficulty: difficulty,
		Category:   category,
		Limit:      s.cfg.BatchSize,
		Daily:      mode == domain.ModeDaily,
	})
	return sess.completeStart(0, batch, err, s.cfg.DailyRounds), nil
}

// Submit verifies the player's answer for the current round. Exactly one
// verification may be in flight per session; duplicate submissions while one
// is pending are rejected without side effects.
func (s *Service) Submit(ctx context.Context, sessionID, userText string) (View, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return View{}, domain.ErrSessionNotFound
	}

	trimmed := strings.TrimSpace(userText)
	question, epoch, err := sess.beginSubmit(trimmed)
	if err != nil {
		return sess.View(s.cfg.DailyRounds), err
	}

	verdict, verr := s.verifier.VerifyAnswer(ctx, sess.creds, question.ID, trimmed)
	if verr != nil {
		view := sess.failSubmit(epoch, s.cfg.DailyRounds)
		return view, fmt.Errorf("%w: %v", domain.ErrVerificationFailed, verr)
	}

	view, livesOut := sess.completeSubmit(epoch, trimmed, verdict, s.cfg.DailyRounds)
	if livesOut {
		sess.scheduleGameOver(epoch, s.cfg.GameOverDelay, s.cfg.DailyRounds)
	}
	return view, nil
}

// Advance moves the session to the next round, terminating it instead when
// the mode's end condition is met. When the local queue is exhausted it
// fetches more questions of the same difficulty/category first; a failed or
// empty top-up blocks the advance and is retryable.
func (s *Service) Advance(ctx context.Context, sessionID string) (View, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return View{}, domain.ErrSessionNotFound
	}

	action, query, epoch, view, err := sess.beginAdvance(s.cfg.DailyRounds)
	if err != nil || action != advanceNeedsFetch {
		return view, err
	}

	query.Limit = s.cfg.BatchSize
	batch, ferr := s.source.FetchQuestions(ctx, sess.creds, query)
	return sess.completeAdvance(epoch, batch, ferr, s.cfg.DailyRounds)
}

// View returns a snapshot of the session for presentation.
func (s *Service) View(sessionID string) (View, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return View{}, domain.ErrSessionNotFound
	}
	return sess.View(s.cfg.DailyRounds), nil
}

// Subscribe returns a channel receiving a view snapshot on every state
// change, including the asynchronous challenge-mode game-over. The caller
// must invoke the returned cancel function.
func (s *Service) Subscribe(sessionID string) (<-chan View, func(), error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := sess.subscribe(s.cfg.DailyRounds)
	return ch, cancel, nil
}

// Abandon invalidates and removes the session. Any in-flight fetch or
// verification response arriving afterwards is discarded by the epoch guard.
func (s *Service) Abandon(sessionID string) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	sess.abandon()
	s.sessions.Delete(sessionID)
}
