package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
	"github.com/hanningtontech/nurse-connect-app-sub000/internal/repository"
	"github.com/hanningtontech/nurse-connect-app-sub000/pkg/distributed"
)

var testTopic = models.Topic{Course: "fundamentals", Unit: "vital-signs", Career: "rn"}

// 모든 테스트 문제의 정답은 1번
const correctOption = 1

type testEnv struct {
	clock       clockwork.Clock
	store       *repository.MemoryMatchRepository
	tickets     *repository.MemoryTicketRepository
	catalog     *repository.MemoryQuestionRepository
	coordinator *TurnCoordinator
	matches     *MatchService
	matchmaking *MatchmakingService
}

type envOption func(*envConfig)

type envConfig struct {
	clock       clockwork.Clock
	questions   int
	matchmaking MatchmakingConfig
	wrapStore   func(repository.MatchStore) repository.MatchStore
}

func withClock(clock clockwork.Clock) envOption {
	return func(c *envConfig) { c.clock = clock }
}

func withQuestions(n int) envOption {
	return func(c *envConfig) { c.questions = n }
}

func withMatchmaking(cfg MatchmakingConfig) envOption {
	return func(c *envConfig) { c.matchmaking = cfg }
}

func withStoreWrapper(wrap func(repository.MatchStore) repository.MatchStore) envOption {
	return func(c *envConfig) { c.wrapStore = wrap }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cfg := envConfig{
		clock:     clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
		questions: 10,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := zaptest.NewLogger(t)
	store := repository.NewMemoryMatchRepository()
	tickets := repository.NewMemoryTicketRepository()
	catalog := repository.NewMemoryQuestionRepository()
	seedQuestions(catalog, testTopic, cfg.questions)

	var matchStore repository.MatchStore = store
	if cfg.wrapStore != nil {
		matchStore = cfg.wrapStore(store)
	}

	coordinator := NewTurnCoordinator(matchStore, catalog, cfg.clock, logger, TurnCoordinatorConfig{
		AutoAdvanceDelay: 15 * time.Second,
		DefaultTimeLimit: 30 * time.Second,
	})
	t.Cleanup(func() { coordinator.Stop() })

	matchService := NewMatchService(matchStore, coordinator, cfg.clock, logger)
	matchmaking := NewMatchmakingService(
		matchStore,
		tickets,
		catalog,
		distributed.NewLocalLocker(),
		matchService,
		AcceptAllRanks{},
		cfg.clock,
		logger,
		cfg.matchmaking,
	)

	return &testEnv{
		clock:       cfg.clock,
		store:       store,
		tickets:     tickets,
		catalog:     catalog,
		coordinator: coordinator,
		matches:     matchService,
		matchmaking: matchmaking,
	}
}

func (e *testEnv) fakeClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	fc, ok := e.clock.(*clockwork.FakeClock)
	require.True(t, ok, "test env is not using a fake clock")
	return fc
}

func seedQuestions(catalog *repository.MemoryQuestionRepository, topic models.Topic, n int) {
	for i := 0; i < n; i++ {
		catalog.Add(&models.Question{
			ID:           fmt.Sprintf("%s-q%02d", topic.Unit, i),
			Topic:        topic,
			Text:         fmt.Sprintf("Question %d", i),
			Options:      []string{"a", "b", "c", "d"},
			CorrectIndex: correctOption,
		})
	}
}

func player(id string) PlayerInfo {
	return PlayerInfo{ID: id, Name: "Player " + id}
}

// startMatch 플레이어 전원을 FindOrCreate 로 입장시켜 시작된 방 반환
func startMatch(t *testing.T, env *testEnv, playerIDs ...string) *models.Match {
	t.Helper()
	ctx := context.Background()

	var m *models.Match
	for _, id := range playerIDs {
		var err error
		m, err = env.matchmaking.FindOrCreate(ctx, FindOrCreateRequest{
			Topic:             testTopic,
			TargetPlayerCount: len(playerIDs),
			Player:            player(id),
		})
		require.NoError(t, err)
	}
	require.Equal(t, models.MatchStatusActive, m.Status)
	return m
}

func getMatch(t *testing.T, env *testEnv, id string) *models.Match {
	t.Helper()
	m, err := env.store.GetMatch(context.Background(), id)
	require.NoError(t, err)
	return m
}

// activationCountingStore waiting → active 커밋 횟수 집계
type activationCountingStore struct {
	repository.MatchStore
	mu          sync.Mutex
	activations int
}

func (s *activationCountingStore) UpdateMatch(ctx context.Context, id string, fn repository.MatchMutator) (*models.Match, error) {
	var before, after models.MatchStatus
	m, err := s.MatchStore.UpdateMatch(ctx, id, func(m *models.Match) error {
		before, after = m.Status, ""
		if err := fn(m); err != nil {
			return err
		}
		after = m.Status
		return nil
	})
	if err == nil && before == models.MatchStatusWaiting && after == models.MatchStatusActive {
		s.mu.Lock()
		s.activations++
		s.mu.Unlock()
	}
	return m, err
}

func (s *activationCountingStore) Activations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activations
}
