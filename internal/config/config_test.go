package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"STORE_BACKEND", "QUESTION_SOURCE", "QUESTIONS_PER_MATCH", "AUTO_ADVANCE_DELAY",
		"MATCHMAKING_TIMEOUT", "MAX_RANK_DIFFERENCE", "ENV", "CORS_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreBackendMemory, cfg.StoreBackend)
	assert.Equal(t, QuestionSourceMemory, cfg.QuestionSource)
	assert.Equal(t, 10, cfg.QuestionsPerMatch)
	assert.Equal(t, 15*time.Second, cfg.AutoAdvanceDelay)
	assert.Equal(t, 60*time.Second, cfg.MatchmakingTimeout)
	assert.Equal(t, 0, cfg.MaxRankDifference)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORSAllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("REDIS_URL", "redis://cache:6379/2")
	t.Setenv("QUESTIONS_PER_MATCH", "5")
	t.Setenv("AUTO_ADVANCE_DELAY", "3s")
	t.Setenv("SWEEP_INTERVAL", "garbage")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreBackendRedis, cfg.StoreBackend)
	assert.Equal(t, "redis://cache:6379/2", cfg.RedisURL)
	assert.Equal(t, 5, cfg.QuestionsPerMatch)
	assert.Equal(t, 3*time.Second, cfg.AutoAdvanceDelay)
	assert.Equal(t, 5*time.Second, cfg.SweepInterval, "잘못된 값은 기본값")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Env:               "development",
			StoreBackend:      StoreBackendMemory,
			QuestionSource:    QuestionSourceMemory,
			QuestionsFile:     "questions.yaml",
			QuestionsPerMatch: 10,
			JWTSecret:         "secret",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"기본 설정", func(c *Config) {}, ""},
		{"redis 백엔드 URL 없음", func(c *Config) {
			c.StoreBackend = StoreBackendRedis
			c.RedisURL = ""
		}, "REDIS_URL"},
		{"알 수 없는 백엔드", func(c *Config) { c.StoreBackend = "mongo" }, "STORE_BACKEND"},
		{"postgres 문제 소스 DB 없음", func(c *Config) {
			c.QuestionSource = QuestionSourcePostgres
		}, "DATABASE_URL"},
		{"문제 수 0", func(c *Config) { c.QuestionsPerMatch = 0 }, "QUESTIONS_PER_MATCH"},
		{"음수 랭크 차이", func(c *Config) { c.MaxRankDifference = -1 }, "MAX_RANK_DIFFERENCE"},
		{"프로덕션 기본 시크릿", func(c *Config) {
			c.Env = "production"
			c.JWTSecret = "your-secret-key"
		}, "JWT_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
