package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"lms-quiz-service/internal/app"
	"lms-quiz-service/internal/config"
	"lms-quiz-service/internal/domain"
	"lms-quiz-service/internal/infra/memory"
	pginfra "lms-quiz-service/internal/infra/postgres"
	redisinfra "lms-quiz-service/internal/infra/redis"
	transport "lms-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz grading server",
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
		defer pool.Close()
	}

	// Content loader: Postgres when configured, otherwise seeded demo data.
	var loader memory.QuizLoader
	if pool != nil {
		loader = pginfra.NewQuizLoader(pool)
	} else {
		quizzes, err := sampleQuizzes()
		if err != nil {
			return err
		}
		loader = memory.NewStaticQuizLoader(quizzes)
	}

	cacheTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, cacheTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, cacheTTL)
	}

	var modules app.ModuleResolver
	var gradebook app.Gradebook
	if pool != nil {
		modules = pginfra.NewModuleResolver(pool)
		gradebook = pginfra.NewGradebook(pool)
	} else {
		modules = memory.NewStaticModuleResolver(sampleModules())
		memGradebook := memory.NewGradebook()
		for id, username := range sampleUsers() {
			memGradebook.RegisterUser(id, username)
		}
		gradebook = memGradebook
		log.Printf("no postgres configured, serving seeded demo content in memory")
	}

	service := app.NewQuizService(modules, quizRepo, gradebook)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	transport.NewHandler(service).Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz grading service on :%s", finalPort)
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

// sampleQuizzes provides demo content for running without a database. Seeded
// content goes through the same authoring validation as real content.
func sampleQuizzes() (map[string]domain.Quiz, error) {
	limit := 15
	quizzes := map[string]domain.Quiz{
		"quiz-arith": {
			ID:               "quiz-arith",
			Description:      "Quick arithmetic check",
			TimeLimitMinutes: &limit,
			Questions: []domain.Question{
				{
					ID:               "q1",
					Text:             "What is 2 + 2?",
					TimeLimitSeconds: 20,
					Points:           1000,
					Position:         1,
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5"},
					},
				},
				{
					ID:               "q2",
					Text:             "What is 7 * 6?",
					TimeLimitSeconds: 20,
					Points:           500,
					Position:         2,
					Options: []domain.Option{
						{ID: "o4", Text: "42", Correct: true},
						{ID: "o5", Text: "36"},
					},
				},
			},
		},
	}
	for _, quiz := range quizzes {
		if err := quiz.Validate(); err != nil {
			return nil, fmt.Errorf("sample content: %w", err)
		}
	}
	return quizzes, nil
}

func sampleModules() map[string]domain.Module {
	return map[string]domain.Module{
		"mod-arith": {ID: "mod-arith", Type: domain.ModuleTypeQuiz, ContentID: "quiz-arith"},
	}
}

func sampleUsers() map[string]string {
	return map[string]string{
		"u-alice": "Alice",
		"u-bob":   "Bob",
	}
}
