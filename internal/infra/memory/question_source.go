package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"context-hunter/internal/domain"
)

// QuestionSource serves questions from an in-process bank keyed by
// difficulty (useful for tests and demos without a backend or database).
type QuestionSource struct {
	mu   sync.Mutex
	bank map[int][]domain.Question
	rnd  *rand.Rand
}

func NewQuestionSource(bank map[int][]domain.Question) *QuestionSource {
	return &QuestionSource{
		bank: bank,
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// FetchQuestions returns up to query.Limit questions for the difficulty in a
// shuffled order so that replenishment batches vary between calls. Fewer than
// Limit (including zero) is a valid response.
func (s *QuestionSource) FetchQuestions(_ context.Context, _ domain.Credentials, query domain.QuestionQuery) ([]domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool := s.bank[query.Difficulty]
	if query.Category != "" {
		filtered := make([]domain.Question, 0, len(pool))
		for _, q := range pool {
			if q.Category == query.Category {
				filtered = append(filtered, q)
			}
		}
		pool = filtered
	}

	batch := make([]domain.Question, len(pool))
	copy(batch, pool)
	s.rnd.Shuffle(len(batch), func(i, j int) {
		batch[i], batch[j] = batch[j], batch[i]
	})
	if query.Limit > 0 && len(batch) > query.Limit {
		batch = batch[:query.Limit]
	}
	// Batches leave the bank without the canonical meaning; it is only
	// revealed through Lookup on the verifier side.
	for i := range batch {
		batch[i].Meaning = ""
	}
	return batch, nil
}

// Lookup resolves a question ID to its full record, canonical meaning
// included.
func (s *QuestionSource) Lookup(_ context.Context, questionID string) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pool := range s.bank {
		for _, q := range pool {
			if q.ID == questionID {
				return q, nil
			}
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}
