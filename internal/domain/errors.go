package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session exists for the given ID.
	ErrSessionNotFound = errors.New("game session not found")
	// ErrNoQuestions indicates the question source returned an empty batch
	// at session start; the session is unplayable and must be restarted.
	ErrNoQuestions = errors.New("no questions available")
	// ErrQuestionLoad indicates the initial question fetch failed.
	ErrQuestionLoad = errors.New("question load failed")
	// ErrQuestionReplenish indicates a mid-session top-up fetch failed or
	// came back empty; the advance is blocked but retryable.
	ErrQuestionReplenish = errors.New("question replenish failed")
	// ErrVerificationFailed indicates the verifier call failed; the round is
	// retryable and no state was recorded.
	ErrVerificationFailed = errors.New("answer verification failed")
	// ErrEmptyAnswer is returned for empty or whitespace-only submissions.
	ErrEmptyAnswer = errors.New("empty answer")
	// ErrNotAcceptingAnswers is returned when submitAnswer is called outside
	// the awaiting-answer phase, including while a verification is in flight.
	ErrNotAcceptingAnswers = errors.New("session is not accepting answers")
	// ErrNotShowingFeedback is returned when advance is called before a
	// verification result has been recorded for the current round.
	ErrNotShowingFeedback = errors.New("no feedback to advance from")
	// ErrSessionOver is returned for any operation on a terminated session.
	ErrSessionOver = errors.New("session is over")
	// ErrQuestionNotFound indicates a verification referenced an unknown question.
	ErrQuestionNotFound = errors.New("question not found")
)
