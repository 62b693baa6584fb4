package postgres

import (
	"context"
	"fmt"

	"context-hunter/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionBank is the self-hosted question store used when no remote backend
// is configured. It serves random batches by difficulty/category and tracks
// per-question attempt statistics.
type QuestionBank struct {
	pool *pgxpool.Pool
}

func NewQuestionBank(pool *pgxpool.Pool) *QuestionBank {
	return &QuestionBank{pool: pool}
}

// FetchQuestions selects up to query.Limit random questions. The canonical
// meaning is deliberately not loaded here; it only leaves the bank through
// Lookup, which the verifier uses server-side.
func (b *QuestionBank) FetchQuestions(ctx context.Context, _ domain.Credentials, query domain.QuestionQuery) ([]domain.Question, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 10
	}

	sql := `SELECT id, encoded_text, category, correct_count, total_attempts
		FROM questions WHERE difficulty=$1`
	args := []any{query.Difficulty}
	if query.Category != "" {
		sql += ` AND category=$2`
		args = append(args, query.Category)
	}
	sql += fmt.Sprintf(` ORDER BY random() LIMIT %d`, limit)

	rows, err := b.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.Encoded, &q.Category, &q.CorrectCount, &q.TotalAttempts); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if q.TotalAttempts > 0 {
			q.SuccessRate = float64(q.CorrectCount) / float64(q.TotalAttempts)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Lookup loads a single question including its canonical meaning.
func (b *QuestionBank) Lookup(ctx context.Context, questionID string) (domain.Question, error) {
	var q domain.Question
	err := b.pool.QueryRow(ctx,
		`SELECT id, encoded_text, correct_meaning, category, correct_count, total_attempts
		 FROM questions WHERE id=$1`, questionID).
		Scan(&q.ID, &q.Encoded, &q.Meaning, &q.Category, &q.CorrectCount, &q.TotalAttempts)
	if err == pgx.ErrNoRows {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("lookup question: %w", err)
	}
	return q, nil
}

// RecordAttempt bumps the question's attempt counters after a verification.
func (b *QuestionBank) RecordAttempt(ctx context.Context, questionID string, correct bool) error {
	inc := 0
	if correct {
		inc = 1
	}
	_, err := b.pool.Exec(ctx,
		`UPDATE questions SET total_attempts = total_attempts + 1, correct_count = correct_count + $2
		 WHERE id=$1`, questionID, inc)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}
