package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
	"github.com/hanningtontech/nurse-connect-app-sub000/internal/repository"
	"github.com/hanningtontech/nurse-connect-app-sub000/pkg/database"
	"github.com/hanningtontech/nurse-connect-app-sub000/pkg/logger"
)

func main() {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	var (
		file         string
		databaseURL  string
		ensureSchema bool
		dryRun       bool
		logLevel     string
		timeout      time.Duration
	)

	flag.StringVarP(&file, "file", "f", "questions.yaml", "YAML question file to load")
	flag.StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection URL (default $DATABASE_URL)")
	flag.BoolVar(&ensureSchema, "ensure-schema", true, "create the quiz_questions table if missing")
	flag.BoolVar(&dryRun, "dry-run", false, "validate the file without touching the database")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.DurationVar(&timeout, "timeout", time.Minute, "overall timeout")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: seed-questions [flags]\n\nLoads a question YAML file into Postgres.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger.Init("development", logLevel)
	defer logger.Sync()

	if err := run(file, databaseURL, ensureSchema, dryRun, timeout); err != nil {
		logger.Error("Seeding failed", "error", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(file, databaseURL string, ensureSchema, dryRun bool, timeout time.Duration) error {
	questions, err := repository.LoadQuestionsFile(file)
	if err != nil {
		return err
	}

	counts := make(map[models.Topic]int)
	for _, q := range questions {
		counts[q.Topic]++
	}
	for topic, n := range counts {
		logger.Info("Topic loaded", "topic", topic.Key(), "questions", n)
	}

	if dryRun {
		logger.Info("Dry run complete", "file", file, "questions", len(questions))
		return nil
	}
	if databaseURL == "" {
		return fmt.Errorf("--database-url or DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 순차 upsert 라 연결 하나로 충분
	opts := database.DefaultPoolOptions()
	opts.MaxOpenConns = 1
	opts.MaxIdleConns = 1
	db, err := database.ConnectWithOptions(ctx, databaseURL, opts)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := repository.NewQuestionRepository(db)
	if ensureSchema {
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	for _, q := range questions {
		if err := repo.Upsert(ctx, q); err != nil {
			return fmt.Errorf("question %s: %w", q.ID, err)
		}
		logger.Debug("Question upserted", "id", q.ID)
	}

	logger.Info("Questions seeded", "file", file, "questions", len(questions))
	return nil
}
