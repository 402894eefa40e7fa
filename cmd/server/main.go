package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/api"
	"github.com/hanningtontech/nurse-connect-app-sub000/internal/api/handlers"
	"github.com/hanningtontech/nurse-connect-app-sub000/internal/config"
	"github.com/hanningtontech/nurse-connect-app-sub000/internal/repository"
	"github.com/hanningtontech/nurse-connect-app-sub000/internal/service"
	"github.com/hanningtontech/nurse-connect-app-sub000/internal/websocket"
	"github.com/hanningtontech/nurse-connect-app-sub000/pkg/database"
	"github.com/hanningtontech/nurse-connect-app-sub000/pkg/distributed"
	jwtutil "github.com/hanningtontech/nurse-connect-app-sub000/pkg/jwt"
	"github.com/hanningtontech/nurse-connect-app-sub000/pkg/logger"
	"github.com/hanningtontech/nurse-connect-app-sub000/pkg/ratelimit"
)

const shutdownTimeout = 10 * time.Second

type stores struct {
	matches repository.MatchStore
	tickets repository.TicketStore
	locker  repository.Locker
	checks  map[string]handlers.HealthCheckFunc
	closers []func() error
}

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 로거 초기화
	zapLogger := logger.Init(cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting quiz match server",
		"port", cfg.Port,
		"env", cfg.Env,
		"store", cfg.StoreBackend,
		"questions", cfg.QuestionSource,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zapLogger); err != nil {
		logger.Error("Server exited with error", "error", err)
		logger.Sync()
		os.Exit(1)
	}

	logger.Info("Server exited")
}

func run(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) error {
	clock := clockwork.NewRealClock()

	st, err := openStores(ctx, cfg, zapLogger)
	if err != nil {
		return err
	}
	defer func() {
		for _, closeFn := range st.closers {
			if err := closeFn(); err != nil {
				logger.Warn("Failed to close backend", "error", err)
			}
		}
	}()

	questions, err := openQuestionCatalog(ctx, cfg, st)
	if err != nil {
		return err
	}

	coordinator := service.NewTurnCoordinator(st.matches, questions, clock, zapLogger, service.TurnCoordinatorConfig{
		AutoAdvanceDelay: cfg.AutoAdvanceDelay,
		DefaultTimeLimit: cfg.DefaultQuestionTimeLimit,
		SweepInterval:    cfg.SweepInterval,
	})
	matchService := service.NewMatchService(st.matches, coordinator, clock, zapLogger)
	matchmakingService := service.NewMatchmakingService(
		st.matches,
		st.tickets,
		questions,
		st.locker,
		matchService,
		service.NewRankPolicy(cfg.MaxRankDifference),
		clock,
		zapLogger,
		service.MatchmakingConfig{
			QuestionsPerMatch: cfg.QuestionsPerMatch,
			Timeout:           cfg.MatchmakingTimeout,
			PollInterval:      cfg.QueuePollInterval,
			CleanupInterval:   cfg.MatchmakingInterval,
		},
	)

	if err := coordinator.Start(); err != nil {
		return err
	}
	defer coordinator.Stop()

	if err := matchmakingService.Start(); err != nil {
		return err
	}
	defer matchmakingService.Stop()

	answerLimiter := ratelimit.NewRateLimiter(int64(cfg.AnswerRateCapacity), int64(cfg.AnswerRateRefill), clock)
	defer answerLimiter.Close()
	authLimiter := ratelimit.NewRateLimiter(5, 1, clock)
	defer authLimiter.Close()

	hub := websocket.NewHub(zapLogger)

	router := api.SetupRouter(api.Dependencies{
		Config:        cfg,
		JWT:           jwtutil.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration),
		Matches:       matchService,
		Coordinator:   coordinator,
		Matchmaking:   matchmakingService,
		Hub:           hub,
		AnswerLimiter: answerLimiter,
		AuthLimiter:   authLimiter,
		HealthChecks:  st.checks,
	})

	// 서버 설정. /matchmaking/queue 는 매칭 시간만큼 응답을 붙잡으므로 WriteTimeout 에 여유를 둔다
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.MatchmakingTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	// Graceful shutdown 대기
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func openStores(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) (*stores, error) {
	st := &stores{checks: make(map[string]handlers.HealthCheckFunc)}

	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		client, err := repository.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		logger.Info("Redis connection established")

		st.matches = repository.NewRedisMatchRepository(client, zapLogger)
		st.tickets = repository.NewRedisTicketRepository(client, zapLogger)
		st.locker = distributed.NewRedisLocker(client, "quiz:lock:")
		st.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		st.closers = append(st.closers, client.Close)

	default:
		st.matches = repository.NewMemoryMatchRepository()
		st.tickets = repository.NewMemoryTicketRepository()
		st.locker = distributed.NewLocalLocker()
		logger.Warn("Using in-memory store, state is lost on restart")
	}

	return st, nil
}

func openQuestionCatalog(ctx context.Context, cfg *config.Config, st *stores) (repository.QuestionCatalog, error) {
	switch cfg.QuestionSource {
	case config.QuestionSourcePostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st.checks["postgres"] = db.Healthy
		st.closers = append(st.closers, db.Close)

		questions := repository.NewQuestionRepository(db)
		if err := questions.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return questions, nil

	default:
		loaded, err := repository.LoadQuestionsFile(cfg.QuestionsFile)
		if err != nil {
			return nil, err
		}
		logger.Info("Question catalog loaded", "file", cfg.QuestionsFile, "questions", len(loaded))
		return repository.NewMemoryQuestionRepository(loaded...), nil
	}
}
