package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreBackendMemory = "memory"
	StoreBackendRedis  = "redis"

	QuestionSourceMemory   = "memory"
	QuestionSourcePostgres = "postgres"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Storage
	StoreBackend   string
	RedisURL       string
	DatabaseURL    string
	QuestionSource string
	QuestionsFile  string

	// JWT
	JWTSecret     string
	JWTExpiration time.Duration

	// CORS
	CORSAllowedOrigins []string

	// Match
	QuestionsPerMatch        int
	AutoAdvanceDelay         time.Duration
	DefaultQuestionTimeLimit time.Duration
	SweepInterval            time.Duration

	// Matchmaking
	MatchmakingTimeout  time.Duration
	QueuePollInterval   time.Duration
	MatchmakingInterval time.Duration
	MaxRankDifference   int

	// Answer rate limit (per player)
	AnswerRateCapacity int
	AnswerRateRefill   int
}

func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                     getEnv("PORT", "8080"),
		Env:                      getEnv("ENV", "development"),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		StoreBackend:             strings.ToLower(getEnv("STORE_BACKEND", StoreBackendMemory)),
		RedisURL:                 getEnv("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		QuestionSource:           strings.ToLower(getEnv("QUESTION_SOURCE", QuestionSourceMemory)),
		QuestionsFile:            getEnv("QUESTIONS_FILE", "questions.yaml"),
		JWTSecret:                getEnv("JWT_SECRET", "your-secret-key"),
		JWTExpiration:            parseDuration(getEnv("JWT_EXPIRATION", "24h"), 24*time.Hour),
		CORSAllowedOrigins:       splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		QuestionsPerMatch:        getInt("QUESTIONS_PER_MATCH", 10),
		AutoAdvanceDelay:         parseDuration(getEnv("AUTO_ADVANCE_DELAY", "15s"), 15*time.Second),
		DefaultQuestionTimeLimit: parseDuration(getEnv("DEFAULT_QUESTION_TIME_LIMIT", "30s"), 30*time.Second),
		SweepInterval:            parseDuration(getEnv("SWEEP_INTERVAL", "5s"), 5*time.Second),
		MatchmakingTimeout:       parseDuration(getEnv("MATCHMAKING_TIMEOUT", "60s"), 60*time.Second),
		QueuePollInterval:        parseDuration(getEnv("QUEUE_POLL_INTERVAL", "1s"), time.Second),
		MatchmakingInterval:      parseDuration(getEnv("MATCHMAKING_INTERVAL", "10s"), 10*time.Second),
		MaxRankDifference:        getInt("MAX_RANK_DIFFERENCE", 0),
		AnswerRateCapacity:       getInt("ANSWER_RATE_CAPACITY", 5),
		AnswerRateRefill:         getInt("ANSWER_RATE_REFILL", 2),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 조합이 불가능한 설정 거부
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case StoreBackendMemory:
	case StoreBackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when STORE_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	switch c.QuestionSource {
	case QuestionSourceMemory:
		if c.QuestionsFile == "" {
			errs = append(errs, errors.New("QUESTIONS_FILE is required when QUESTION_SOURCE=memory"))
		}
	case QuestionSourcePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when QUESTION_SOURCE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown QUESTION_SOURCE %q", c.QuestionSource))
	}

	if c.QuestionsPerMatch <= 0 {
		errs = append(errs, errors.New("QUESTIONS_PER_MATCH must be positive"))
	}
	if c.MaxRankDifference < 0 {
		errs = append(errs, errors.New("MAX_RANK_DIFFERENCE must not be negative"))
	}
	if c.Env == "production" && c.JWTSecret == "your-secret-key" {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
