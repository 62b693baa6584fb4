package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"context-hunter/internal/domain"
	"context-hunter/internal/game"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionCache serves the shared daily question set from Redis so every
// player gets the same batch with one upstream hit per day. Keys:
//
//	questions:daily:{yyyy-mm-dd}:{difficulty}:{category}
//
// Challenge-mode fetches must return fresh random batches, so they bypass the
// cache entirely and go straight to the inner source.
type QuestionCache struct {
	client *redis.Client
	inner  game.QuestionSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionCache(client *redis.Client, inner game.QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		inner:  inner,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) FetchQuestions(ctx context.Context, creds domain.Credentials, query domain.QuestionQuery) ([]domain.Question, error) {
	if !query.Daily {
		return c.inner.FetchQuestions(ctx, creds, query)
	}

	key := c.key(query)
	if batch, ok := c.load(ctx, key); ok {
		return batch, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another goroutine filled the key.
		if batch, ok := c.load(ctx, key); ok {
			return batch, nil
		}

		batch, err := c.inner.FetchQuestions(ctx, creds, query)
		if err != nil {
			return nil, err
		}
		// Empty batches are not cached; the condition may be transient.
		if len(batch) > 0 {
			if raw, err := json.Marshal(batch); err == nil {
				_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
			}
		}
		return batch, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) load(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var batch []domain.Question
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, false
	}
	return batch, true
}

func (c *QuestionCache) key(query domain.QuestionQuery) string {
	day := c.clock().UTC().Format("2006-01-02")
	return fmt.Sprintf("questions:daily:%s:%s:%s", day, strconv.Itoa(query.Difficulty), query.Category)
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
