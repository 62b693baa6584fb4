package cli

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"context-hunter/internal/config"
	"context-hunter/internal/domain"
	"context-hunter/internal/game"
	"context-hunter/internal/infra/backendhttp"
	"context-hunter/internal/infra/llm"
	"context-hunter/internal/infra/memory"
	pgbank "context-hunter/internal/infra/postgres"
	redisinfra "context-hunter/internal/infra/redis"
	transport "context-hunter/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	source, verifier := buildGameBackends(cfg, pool)

	if redisClient != nil {
		dailyTTL := config.Duration(cfg.Questions.DailyTTL, 24*time.Hour)
		source = redisinfra.NewQuestionCache(redisClient, source, dailyTTL)
	}

	var sessions game.SessionRepository = memory.NewSessionStore()
	if redisClient != nil {
		sessionTTL := config.Duration(cfg.Redis.TTL, 10*time.Minute)
		sessions = redisinfra.NewSessionStore(redisClient, sessionTTL)
	}

	service := game.NewService(sessions, source, verifier, game.Config{
		DailyRounds:   cfg.Game.DailyRounds,
		Lives:         cfg.Game.Lives,
		BatchSize:     cfg.Game.BatchSize,
		GameOverDelay: config.Duration(cfg.Game.GameOverDelay, 2*time.Second),
	})
	wsHandler := transport.NewWSHandler(service)

	var backendURL *url.URL
	if cfg.Backend.URL != "" {
		backendURL, err = url.Parse(cfg.Backend.URL)
		if err != nil {
			return err
		}
	}
	handler := transport.NewFrontendHandler(cfg.Server.StaticDir, backendURL, http.HandlerFunc(wsHandler.ServeWS))

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting context-hunter on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildGameBackends picks the question source and verifier. Preference
// order: the remote backend when configured, then the local Postgres bank
// (LLM-scored when an API key is present), then the built-in sample set.
func buildGameBackends(cfg config.Config, pool *pgxpool.Pool) (game.QuestionSource, game.Verifier) {
	if cfg.Backend.URL != "" {
		client := backendhttp.New(cfg.Backend.URL, config.Duration(cfg.Backend.Timeout, 0))
		return client, client
	}

	if pool != nil {
		bank := pgbank.NewQuestionBank(pool)
		if cfg.LLM.APIKey != "" {
			return bank, llm.New(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, bank, bank)
		}
		return bank, memory.NewNaiveVerifier(bank)
	}

	sample := memory.NewQuestionSource(sampleQuestions())
	log.Println("no backend or postgres configured, using built-in sample questions")
	return sample, memory.NewNaiveVerifier(sample)
}

// sampleQuestions is a tiny bank so the server is playable out of the box.
func sampleQuestions() map[int][]domain.Question {
	return map[int][]domain.Question{
		1: {
			{ID: "s1", Encoded: "ogd ehts wasg ma", Meaning: "the dog wags his tail", Category: "animals"},
			{ID: "s2", Encoded: "nus eht ni semoc gninrom", Meaning: "morning comes in the sun", Category: "nature"},
			{ID: "s3", Encoded: "daerb skab rekab eht", Meaning: "the baker bakes bread", Category: "daily"},
		},
	}
}
