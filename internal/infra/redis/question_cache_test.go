package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"context-hunter/internal/domain"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingSource struct {
	calls int
	batch []domain.Question
	err   error
}

func (s *countingSource) FetchQuestions(_ context.Context, _ domain.Credentials, _ domain.QuestionQuery) ([]domain.Question, error) {
	s.calls++
	return s.batch, s.err
}

func newCacheForTest(t *testing.T, inner *countingSource) (*QuestionCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewQuestionCache(client, inner, time.Hour), mr
}

func TestDailyBatchesAreCached(t *testing.T) {
	inner := &countingSource{batch: []domain.Question{{ID: "q1", Encoded: "enc1"}}}
	cache, _ := newCacheForTest(t, inner)

	query := domain.QuestionQuery{Difficulty: 1, Limit: 10, Daily: true}
	ctx := context.Background()

	first, err := cache.FetchQuestions(ctx, domain.Credentials{}, query)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := cache.FetchQuestions(ctx, domain.Credentials{}, query)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}

	if inner.calls != 1 {
		t.Fatalf("expected one upstream hit, got %d", inner.calls)
	}
	if len(first) != 1 || len(second) != 1 || second[0].ID != "q1" {
		t.Fatalf("cached batch mismatch: first=%+v second=%+v", first, second)
	}
}

func TestChallengeFetchesBypassCache(t *testing.T) {
	inner := &countingSource{batch: []domain.Question{{ID: "q1"}}}
	cache, mr := newCacheForTest(t, inner)

	query := domain.QuestionQuery{Difficulty: 1, Limit: 10, Daily: false}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := cache.FetchQuestions(ctx, domain.Credentials{}, query); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if inner.calls != 3 {
		t.Fatalf("challenge fetches must stay fresh, upstream hits = %d", inner.calls)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("challenge fetches must not write cache keys, got %v", mr.Keys())
	}
}

func TestUpstreamErrorsAndEmptyBatchesAreNotCached(t *testing.T) {
	inner := &countingSource{err: errors.New("backend down")}
	cache, mr := newCacheForTest(t, inner)

	query := domain.QuestionQuery{Difficulty: 1, Daily: true}
	ctx := context.Background()

	if _, err := cache.FetchQuestions(ctx, domain.Credentials{}, query); err == nil {
		t.Fatalf("expected upstream error to propagate")
	}

	inner.err = nil
	inner.batch = nil
	if batch, err := cache.FetchQuestions(ctx, domain.Credentials{}, query); err != nil || len(batch) != 0 {
		t.Fatalf("empty batch should pass through, got %v %v", batch, err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("failures must not leave cache keys, got %v", mr.Keys())
	}

	// A later healthy batch is served and cached.
	inner.batch = []domain.Question{{ID: "q1"}}
	if _, err := cache.FetchQuestions(ctx, domain.Credentials{}, query); err != nil {
		t.Fatalf("healthy fetch: %v", err)
	}
	if len(mr.Keys()) != 1 {
		t.Fatalf("expected one cache key, got %v", mr.Keys())
	}
}
