package service

import (
	"context"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
	"github.com/hanningtontech/nurse-connect-app-sub000/internal/repository"
)

// PlayerInfo 참가 요청자
type PlayerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Rank int    `json:"rank"`
}

func (p PlayerInfo) validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrInvalidInput
	}
	return nil
}

// MatchService 방 참가, ready gate, 구독, 퇴장
type MatchService struct {
	matches     repository.MatchStore
	coordinator *TurnCoordinator
	clock       clockwork.Clock
	logger      *zap.Logger
}

func NewMatchService(
	matches repository.MatchStore,
	coordinator *TurnCoordinator,
	clock clockwork.Clock,
	logger *zap.Logger,
) *MatchService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchService{
		matches:     matches,
		coordinator: coordinator,
		clock:       clock,
		logger:      logger,
	}
}

// Join 대기 중인 방에 참가. 이미 참가한 플레이어면 현재 문서 반환
func (s *MatchService) Join(ctx context.Context, matchID string, player PlayerInfo) (*models.Match, error) {
	if err := player.validate(); err != nil {
		return nil, err
	}

	updated, err := s.matches.UpdateMatch(ctx, matchID, func(m *models.Match) error {
		if m.HasPlayer(player.ID) {
			return repository.ErrSkipUpdate
		}
		if m.Status != models.MatchStatusWaiting {
			return ErrMatchNotJoinable
		}
		if m.IsFull() {
			return ErrMatchFull
		}

		m.AddPlayer(player.ID, player.Name, player.Rank, s.clock.Now())
		return s.evaluateReadyGate(ctx, m)
	})
	if err != nil {
		return nil, storeError(err, ErrMatchNotFound)
	}

	s.logger.Info("Player joined match",
		zap.String("matchId", matchID),
		zap.String("playerId", player.ID),
		zap.Int("players", len(updated.PlayerIDs)),
		zap.Int("target", updated.TargetPlayerCount))

	s.coordinator.SyncTimers(updated)
	return updated, nil
}

// SetPlayerReady ready 플래그 설정 후 같은 트랜잭션에서 ready gate 평가
func (s *MatchService) SetPlayerReady(ctx context.Context, matchID, playerID string, ready bool) (*models.Match, error) {
	updated, err := s.matches.UpdateMatch(ctx, matchID, func(m *models.Match) error {
		player, ok := m.Players[playerID]
		if !ok {
			return ErrPlayerNotInMatch
		}
		switch m.Status {
		case models.MatchStatusCompleted:
			return ErrMatchCompleted
		case models.MatchStatusWaiting:
		default:
			// 이미 시작된 방에서는 ready 가 의미 없음
			return repository.ErrSkipUpdate
		}

		player.Ready = ready
		return s.evaluateReadyGate(ctx, m)
	})
	if err != nil {
		return nil, storeError(err, ErrMatchNotFound)
	}

	s.coordinator.SyncTimers(updated)
	return updated, nil
}

// evaluateReadyGate 정원이 찼고 모두 ready 면 waiting → active
func (s *MatchService) evaluateReadyGate(ctx context.Context, m *models.Match) error {
	if m.Status != models.MatchStatusWaiting || !m.AllReady() {
		return nil
	}
	if len(m.QuestionIDs) == 0 {
		s.logger.Error("Refusing to start match without questions", zap.String("matchId", m.ID))
		return ErrEmptyQuestionSequence
	}

	now := s.clock.Now()
	m.StartTime = &now
	if err := s.coordinator.startQuestion(ctx, m, 0, now); err != nil {
		return err
	}

	s.logger.Info("Match started",
		zap.String("matchId", m.ID),
		zap.Int("players", len(m.PlayerIDs)),
		zap.Int("questions", len(m.QuestionIDs)))
	return nil
}

// GetMatch ID로 조회
func (s *MatchService) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	m, err := s.matches.GetMatch(ctx, matchID)
	if err != nil {
		return nil, storeError(err, ErrMatchNotFound)
	}
	return m, nil
}

// LeaveMatch 대기 중이면 제거, 진행 중이면 기권 처리. 남은 참가자가 2명 미만이면 경기 종료
func (s *MatchService) LeaveMatch(ctx context.Context, matchID, playerID string) (*models.Match, error) {
	updated, err := s.matches.UpdateMatch(ctx, matchID, func(m *models.Match) error {
		player, ok := m.Players[playerID]
		if !ok {
			return ErrPlayerNotInMatch
		}

		now := s.clock.Now()
		switch m.Status {
		case models.MatchStatusCompleted:
			return ErrMatchCompleted
		case models.MatchStatusWaiting:
			m.RemovePlayer(playerID)
			return nil
		}

		if player.Forfeited {
			return repository.ErrSkipUpdate
		}
		player.Forfeited = true

		if len(m.ActivePlayerIDs()) < MinActivePlayers {
			endMatch(m, now)
			return nil
		}
		if m.Status == models.MatchStatusQuestionCompleted && m.AllPressedNext() {
			return s.coordinator.advance(ctx, m, now)
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, ErrMatchNotFound)
	}

	s.logger.Info("Player left match",
		zap.String("matchId", matchID),
		zap.String("playerId", playerID),
		zap.String("status", string(updated.Status)))

	s.coordinator.SyncTimers(updated)
	return updated, nil
}

// MinActivePlayers 진행 중인 경기가 유지되는 최소 인원
const MinActivePlayers = 2

// ListenToMatch 방 변경 구독. 반드시 Close 로 해제
func (s *MatchService) ListenToMatch(ctx context.Context, matchID string) (*MatchListener, error) {
	sub, err := s.matches.WatchMatch(ctx, matchID)
	if err != nil {
		return nil, storeError(err, ErrMatchNotFound)
	}
	return newMatchListener(sub), nil
}

// MatchListener 명시적 구독 핸들
//
// Updates 는 커밋된 문서를 현재 문서부터 전달하고, completed 문서를 한 번 전달한 뒤 닫힌다.
type MatchListener struct {
	sub     repository.MatchSubscription
	updates chan *models.Match
	done    chan struct{}
	once    sync.Once
}

func newMatchListener(sub repository.MatchSubscription) *MatchListener {
	l := &MatchListener{
		sub:     sub,
		updates: make(chan *models.Match),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *MatchListener) run() {
	defer close(l.updates)

	for {
		select {
		case m, ok := <-l.sub.Updates():
			if !ok {
				return
			}
			select {
			case l.updates <- m:
			case <-l.done:
				return
			}
			if m.Status == models.MatchStatusCompleted {
				l.sub.Close()
				return
			}
		case <-l.done:
			return
		}
	}
}

// Updates 문서 스트림
func (l *MatchListener) Updates() <-chan *models.Match {
	return l.updates
}

// Close 구독 해제 (여러 번 호출해도 안전)
func (l *MatchListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.sub.Close()
	})
	return err
}
