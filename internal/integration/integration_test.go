package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"context-hunter/internal/domain"
	"context-hunter/internal/game"
	"context-hunter/internal/infra/memory"
	pgbank "context-hunter/internal/infra/postgres"
	pgmigrations "context-hunter/internal/infra/postgres/migrations"
	infraredis "context-hunter/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestDailyRoundEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuestions(t, ctx, pgURL, []seedQuestion{
		{ID: "q1", Encoded: "liat sih sgaw god eht", Meaning: "the dog wags his tail", Difficulty: 1},
		{ID: "q2", Encoded: "nus eht ni semoc gninrom", Meaning: "morning comes in the sun", Difficulty: 1},
	})

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	bank := pgbank.NewQuestionBank(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	source := infraredis.NewQuestionCache(redisClient, bank, time.Hour)
	sessions := infraredis.NewSessionStore(redisClient, time.Hour)
	verifier := memory.NewNaiveVerifier(bank)
	service := game.NewService(sessions, source, verifier, game.Config{DailyRounds: 2})

	view, err := service.Start(ctx, "player-1", domain.Credentials{}, domain.ModeDaily, 1, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if view.Phase != game.PhaseAwaitingAnswer {
		t.Fatalf("expected awaitingAnswer, got %s (%s)", view.Phase, view.Error)
	}

	// Answer with the exact meaning so the naive verifier judges correct.
	answer := meaningFor(t, ctx, bank, view.Question.ID)
	view, err = service.Submit(ctx, "player-1", answer)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if view.Phase != game.PhaseShowingFeedback || !view.Feedback.IsCorrect {
		t.Fatalf("unexpected feedback state %+v", view)
	}
	if view.Streak != 1 || view.MaxStreak != 1 {
		t.Fatalf("streak not tracked: %+v", view)
	}

	// A second session the same day gets the identical batch from Redis.
	view2, err := service.Start(ctx, "player-2", domain.Credentials{}, domain.ModeDaily, 1, "")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if view2.Question.ID != firstDailyQuestionID(t, ctx, redisClient) {
		t.Fatalf("daily batch not shared: got %s", view2.Question.ID)
	}
}

func TestAttemptStatsRecorded(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, cleanup := startPostgres(t, ctx)
	defer cleanup()

	seedQuestions(t, ctx, pgURL, []seedQuestion{
		{ID: "q1", Encoded: "enc", Meaning: "the meaning", Difficulty: 1},
	})

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	bank := pgbank.NewQuestionBank(pool)

	if err := bank.RecordAttempt(ctx, "q1", true); err != nil {
		t.Fatalf("record correct: %v", err)
	}
	if err := bank.RecordAttempt(ctx, "q1", false); err != nil {
		t.Fatalf("record incorrect: %v", err)
	}

	q, err := bank.Lookup(ctx, "q1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if q.TotalAttempts != 2 || q.CorrectCount != 1 {
		t.Fatalf("stats not recorded: %+v", q)
	}
}

type seedQuestion struct {
	ID         string
	Encoded    string
	Meaning    string
	Difficulty int
	Category   string
}

func seedQuestions(t *testing.T, ctx context.Context, dsn string, questions []seedQuestion) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, q := range questions {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO questions (id, encoded_text, correct_meaning, difficulty, category)
			 VALUES (?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
			q.ID, q.Encoded, q.Meaning, q.Difficulty, q.Category); err != nil {
			t.Fatalf("insert question %s: %v", q.ID, err)
		}
	}
}

func meaningFor(t *testing.T, ctx context.Context, bank *pgbank.QuestionBank, questionID string) string {
	t.Helper()
	q, err := bank.Lookup(ctx, questionID)
	if err != nil {
		t.Fatalf("lookup %s: %v", questionID, err)
	}
	return q.Meaning
}

func firstDailyQuestionID(t *testing.T, ctx context.Context, client *goredis.Client) string {
	t.Helper()
	keys, err := client.Keys(ctx, "questions:daily:*").Result()
	if err != nil || len(keys) == 0 {
		t.Fatalf("expected a daily cache key, got %v (%v)", keys, err)
	}
	raw, err := client.Get(ctx, keys[0]).Result()
	if err != nil {
		t.Fatalf("get cached batch: %v", err)
	}
	var batch []domain.Question
	if err := json.Unmarshal([]byte(raw), &batch); err != nil || len(batch) == 0 {
		t.Fatalf("decode cached batch: %v", err)
	}
	return batch[0].ID
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "hunter", "POSTGRES_PASSWORD": "hunterpass", "POSTGRES_DB": "hunterdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://hunter:hunterpass@%s:%s/hunterdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
