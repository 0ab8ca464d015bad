package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-runner/internal/config"
	"quiz-runner/internal/devbackend"
	"quiz-runner/internal/domain"
	"quiz-runner/internal/infra/memory"
	pgloader "quiz-runner/internal/infra/postgres"
	redisinfra "quiz-runner/internal/infra/redis"
	transport "quiz-runner/internal/transport/http"
)

// NewServeCmd builds the subcommand that runs the development backend.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the development quiz backend",
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

	var source memory.QuestionSource = memory.NewStaticQuestionSource(sampleQuestionSets())
	if pool != nil {
		source = pgloader.NewQuestionLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	var questionRepo devbackend.QuestionRepository
	if redisClient != nil {
		questionRepo = redisinfra.NewQuestionRepository(redisClient, source, quizTTL)
	} else {
		questionRepo = memory.NewQuestionRepository(source, quizTTL)
	}

	setID := cfg.Quiz.SetID
	if setID == "" {
		setID = "set-1"
	}
	service := devbackend.NewService(questionRepo, setID)
	handler := transport.NewHandler(service)

	mux := http.NewServeMux()
	handler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz backend on :%s", finalPort)
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

// sampleQuestionSets provides demo content; configure Postgres to serve
// real question sets.
func sampleQuestionSets() map[string]domain.QuestionSet {
	return map[string]domain.QuestionSet{
		"set-1": {
			ID: "set-1",
			Questions: []domain.QuizQuestion{
				{
					ID:      "q1",
					Prompt:  "What is 2 + 2?",
					Options: []string{"3", "4", "5"},
					Answer:  "4",
					Points:  1,
				},
				{
					ID:      "q2",
					Prompt:  "Which planet is closest to the sun?",
					Options: []string{"Venus", "Mercury", "Mars"},
					Answer:  "Mercury",
					Points:  1,
				},
				{
					ID:      "q3",
					Prompt:  "How many seconds are in a minute?",
					Options: []string{"60", "100", "3600"},
					Answer:  "60",
					Points:  1,
				},
			},
		},
	}
}
