package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
	"github.com/hanningtontech/nurse-connect-app-sub000/internal/repository"
)

const (
	DefaultQuestionsPerMatch   = 10
	DefaultMatchmakingTimeout  = 60 * time.Second
	DefaultQueuePollInterval   = time.Second
	DefaultMatchmakingInterval = 10 * time.Second

	candidateLimit = 50
)

// MatchmakingConfig 매칭 설정
type MatchmakingConfig struct {
	QuestionsPerMatch int
	Timeout           time.Duration
	PollInterval      time.Duration
	CleanupInterval   time.Duration
}

// FindOrCreateRequest 매칭 요청
type FindOrCreateRequest struct {
	Topic             models.Topic `json:"topic"`
	TargetPlayerCount int          `json:"targetPlayerCount"`
	Player            PlayerInfo   `json:"player"`
}

// Validate 토픽과 인원수 확인
func (r FindOrCreateRequest) Validate() error {
	if err := ValidateTopicTarget(r.Topic, r.TargetPlayerCount); err != nil {
		return err
	}
	return r.Player.validate()
}

// ValidateTopicTarget 토픽 필드와 목표 인원 범위 확인
func ValidateTopicTarget(topic models.Topic, targetPlayerCount int) error {
	if err := topic.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if targetPlayerCount < models.MinPlayersPerMatch || targetPlayerCount > models.MaxPlayersPerMatch {
		return fmt.Errorf("%w: targetPlayerCount must be between %d and %d",
			ErrInvalidInput, models.MinPlayersPerMatch, models.MaxPlayersPerMatch)
	}
	return nil
}

type MatchmakingService struct {
	matches      repository.MatchStore
	tickets      repository.TicketStore
	questions    repository.QuestionCatalog
	locker       repository.Locker
	matchService *MatchService
	rankPolicy   RankPolicy
	clock        clockwork.Clock
	logger       *zap.Logger
	cfg          MatchmakingConfig

	scheduler gocron.Scheduler
	running   bool
	mu        sync.Mutex
}

func NewMatchmakingService(
	matches repository.MatchStore,
	tickets repository.TicketStore,
	questions repository.QuestionCatalog,
	locker repository.Locker,
	matchService *MatchService,
	rankPolicy RankPolicy,
	clock clockwork.Clock,
	logger *zap.Logger,
	cfg MatchmakingConfig,
) *MatchmakingService {
	if rankPolicy == nil {
		rankPolicy = AcceptAllRanks{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QuestionsPerMatch <= 0 {
		cfg.QuestionsPerMatch = DefaultQuestionsPerMatch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultMatchmakingTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultQueuePollInterval
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultMatchmakingInterval
	}

	return &MatchmakingService{
		matches:      matches,
		tickets:      tickets,
		questions:    questions,
		locker:       locker,
		matchService: matchService,
		rankPolicy:   rankPolicy,
		clock:        clock,
		logger:       logger,
		cfg:          cfg,
	}
}

// FindOrCreate 참가 가능한 방에 들어가고, 없으면 새 방 생성
//
// 토픽 락 안에서 조회와 생성을 수행하므로 빈 토픽에 동시에 들어온 요청은 방 하나를 공유한다.
func (s *MatchmakingService) FindOrCreate(ctx context.Context, req FindOrCreateRequest) (*models.Match, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	unlock, err := s.lockTopic(ctx, req.Topic, req.TargetPlayerCount)
	if err != nil {
		return nil, err
	}
	defer unlock()

	candidates, err := s.FindAvailableMatches(ctx, req.Topic, req.TargetPlayerCount, req.Player.Rank)
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		m, err := s.matchService.Join(ctx, candidate.ID, req.Player)
		if err == nil {
			return m, nil
		}
		if errors.Is(err, ErrMatchFull) || errors.Is(err, ErrMatchNotJoinable) || errors.Is(err, ErrMatchNotFound) {
			s.logger.Debug("Candidate no longer joinable",
				zap.String("matchId", candidate.ID),
				zap.Error(err))
			continue
		}
		return nil, err
	}

	return s.createMatch(ctx, uuid.New().String(), req.Topic, req.TargetPlayerCount, []PlayerInfo{req.Player})
}

// FindAvailableMatches 자리가 남은 대기 방. 인원이 적은 방, 오래된 방 순
func (s *MatchmakingService) FindAvailableMatches(ctx context.Context, topic models.Topic, targetPlayerCount, playerRank int) ([]*models.Match, error) {
	open, err := s.matches.FindOpenMatches(ctx, topic, targetPlayerCount, candidateLimit)
	if err != nil {
		return nil, storeError(err, nil)
	}

	candidates := make([]*models.Match, 0, len(open))
	for _, m := range open {
		if m.Status != models.MatchStatusWaiting || m.IsFull() {
			continue
		}
		if !s.rankPolicy.Accept(m, playerRank) {
			continue
		}
		candidates = append(candidates, m)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if len(candidates[i].PlayerIDs) != len(candidates[j].PlayerIDs) {
			return len(candidates[i].PlayerIDs) < len(candidates[j].PlayerIDs)
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	return candidates, nil
}

// JoinExistingMatch 지정한 방에 참가
func (s *MatchmakingService) JoinExistingMatch(ctx context.Context, matchID string, player PlayerInfo) (*models.Match, error) {
	return s.matchService.Join(ctx, matchID, player)
}

// CreateMatchAndWait 참가 가능한 방이 있으면 참가, 없으면 대기열에서 상대를 기다림
func (s *MatchmakingService) CreateMatchAndWait(ctx context.Context, req FindOrCreateRequest) (*models.Match, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	candidates, err := s.FindAvailableMatches(ctx, req.Topic, req.TargetPlayerCount, req.Player.Rank)
	if err != nil {
		return nil, err
	}
	for _, candidate := range candidates {
		m, err := s.matchService.Join(ctx, candidate.ID, req.Player)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, ErrValidation) && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	ticket, err := s.Enqueue(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.WaitForMatch(ctx, ticket.ID)
}

// Enqueue 대기열 항목 생성
func (s *MatchmakingService) Enqueue(ctx context.Context, req FindOrCreateRequest) (*models.MatchmakingTicket, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ticket := &models.MatchmakingTicket{
		ID:                uuid.New().String(),
		PlayerID:          req.Player.ID,
		PlayerName:        req.Player.Name,
		PlayerRank:        req.Player.Rank,
		Topic:             req.Topic,
		TargetPlayerCount: req.TargetPlayerCount,
		Status:            models.QueueStatusWaiting,
		CreatedAt:         s.clock.Now(),
	}

	if err := s.tickets.CreateTicket(ctx, ticket); err != nil {
		return nil, storeError(err, nil)
	}

	s.logger.Info("Player queued",
		zap.String("ticketId", ticket.ID),
		zap.String("playerId", ticket.PlayerID),
		zap.String("topic", req.Topic.Key()),
		zap.Int("target", req.TargetPlayerCount))

	return ticket, nil
}

// WaitForMatch 티켓이 매칭되거나 만료될 때까지 대기. ctx 가 끝나면 티켓을 만료 처리
func (s *MatchmakingService) WaitForMatch(ctx context.Context, ticketID string) (*models.Match, error) {
	m, err := s.pollTicket(ctx, ticketID)
	if err != nil && ctx.Err() != nil {
		s.abandonTicket(ticketID)
		return nil, ctx.Err()
	}
	return m, err
}

func (s *MatchmakingService) pollTicket(ctx context.Context, ticketID string) (*models.Match, error) {
	ticker := s.clock.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		ticket, err := s.tickets.GetTicket(ctx, ticketID)
		if err != nil {
			return nil, storeError(err, ErrTicketNotFound)
		}

		switch ticket.Status {
		case models.QueueStatusMatched:
			return s.collectMatch(ctx, ticket)
		case models.QueueStatusExpired:
			return nil, ErrMatchmakingTimeout
		}

		if ticket.Expired(s.clock.Now(), s.cfg.Timeout) {
			if err := s.expireTicket(ctx, ticket.ID); err != nil {
				return nil, err
			}
			// 만료 직전에 매칭됐을 수 있으므로 다시 읽음
			continue
		}

		created, err := s.promoteTopic(ctx, ticket.Topic, ticket.TargetPlayerCount)
		if err != nil {
			s.logger.Warn("Failed to promote queue",
				zap.String("topic", ticket.Topic.Key()),
				zap.Error(err))
		}
		if created {
			continue
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.Chan():
		}
	}
}

// GetTicket 본인 티켓 조회
func (s *MatchmakingService) GetTicket(ctx context.Context, ticketID, playerID string) (*models.MatchmakingTicket, error) {
	ticket, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, storeError(err, ErrTicketNotFound)
	}
	if ticket.PlayerID != playerID {
		return nil, ErrUnauthorized
	}
	return ticket, nil
}

// CancelTicket 대기 취소 (본인 티켓만)
func (s *MatchmakingService) CancelTicket(ctx context.Context, ticketID, playerID string) error {
	_, err := s.tickets.UpdateTicket(ctx, ticketID, func(t *models.MatchmakingTicket) error {
		if t.PlayerID != playerID {
			return ErrUnauthorized
		}
		if t.Status != models.QueueStatusWaiting {
			return ErrTicketNotWaiting
		}
		t.Status = models.QueueStatusExpired
		return nil
	})
	if err != nil {
		return storeError(err, ErrTicketNotFound)
	}

	s.logger.Info("Ticket cancelled", zap.String("ticketId", ticketID), zap.String("playerId", playerID))
	return nil
}

// promoteTopic 대기 티켓이 목표 인원만큼 모이면 한 방으로 묶음
func (s *MatchmakingService) promoteTopic(ctx context.Context, topic models.Topic, targetPlayerCount int) (bool, error) {
	unlock, err := s.lockTopic(ctx, topic, targetPlayerCount)
	if err != nil {
		return false, err
	}
	defer unlock()

	waiting, err := s.tickets.FindWaitingTickets(ctx, topic, targetPlayerCount, 0)
	if err != nil {
		return false, storeError(err, nil)
	}

	now := s.clock.Now()
	seen := make(map[string]bool, len(waiting))
	eligible := make([]*models.MatchmakingTicket, 0, len(waiting))
	for _, t := range waiting {
		if t.Expired(now, s.cfg.Timeout) || seen[t.PlayerID] {
			continue
		}
		seen[t.PlayerID] = true
		eligible = append(eligible, t)
	}
	if len(eligible) < targetPlayerCount {
		return false, nil
	}

	matchID := uuid.New().String()
	claimed := make([]*models.MatchmakingTicket, 0, targetPlayerCount)
	for _, t := range eligible {
		if len(claimed) == targetPlayerCount {
			break
		}
		updated, err := s.tickets.UpdateTicket(ctx, t.ID, func(t *models.MatchmakingTicket) error {
			if t.Status != models.QueueStatusWaiting {
				return ErrTicketNotWaiting
			}
			t.Status = models.QueueStatusMatched
			t.MatchID = &matchID
			t.MatchedAt = &now
			return nil
		})
		if err != nil {
			continue
		}
		claimed = append(claimed, updated)
	}

	if len(claimed) < targetPlayerCount {
		s.releaseClaims(ctx, claimed, matchID)
		return false, nil
	}

	players := make([]PlayerInfo, len(claimed))
	for i, t := range claimed {
		players[i] = PlayerInfo{ID: t.PlayerID, Name: t.PlayerName, Rank: t.PlayerRank}
	}

	if _, err := s.createMatch(ctx, matchID, topic, targetPlayerCount, players); err != nil {
		s.releaseClaims(ctx, claimed, matchID)
		return false, err
	}
	return true, nil
}

// releaseClaims 방 생성에 실패한 티켓을 다시 대기 상태로
func (s *MatchmakingService) releaseClaims(ctx context.Context, claimed []*models.MatchmakingTicket, matchID string) {
	for _, t := range claimed {
		_, err := s.tickets.UpdateTicket(ctx, t.ID, func(t *models.MatchmakingTicket) error {
			if t.Status != models.QueueStatusMatched || t.MatchID == nil || *t.MatchID != matchID {
				return repository.ErrSkipUpdate
			}
			t.Status = models.QueueStatusWaiting
			t.MatchID = nil
			t.MatchedAt = nil
			return nil
		})
		if err != nil {
			s.logger.Warn("Failed to release ticket claim", zap.String("ticketId", t.ID), zap.Error(err))
		}
	}
}

// createMatch 문제를 뽑아 방 생성. 참가자가 목표 인원이면 바로 시작
func (s *MatchmakingService) createMatch(ctx context.Context, matchID string, topic models.Topic, targetPlayerCount int, players []PlayerInfo) (*models.Match, error) {
	questions, err := s.questions.Draw(ctx, topic, s.cfg.QuestionsPerMatch)
	if err != nil {
		return nil, storeError(err, nil)
	}

	questionIDs := make([]string, len(questions))
	for i, q := range questions {
		questionIDs[i] = q.ID
	}
	if len(questionIDs) == 0 {
		s.logger.Warn("No questions available for topic",
			zap.String("matchId", matchID),
			zap.String("topic", topic.Key()))
	}

	now := s.clock.Now()
	m := models.NewMatch(matchID, topic, targetPlayerCount, questionIDs, now)
	for _, p := range players {
		m.AddPlayer(p.ID, p.Name, p.Rank, now)
	}
	if err := s.matchService.evaluateReadyGate(ctx, m); err != nil {
		return nil, err
	}

	if err := s.matches.CreateMatch(ctx, m); err != nil {
		return nil, storeError(err, nil)
	}

	s.logger.Info("Match created",
		zap.String("matchId", m.ID),
		zap.String("topic", topic.Key()),
		zap.Int("players", len(m.PlayerIDs)),
		zap.Int("target", targetPlayerCount),
		zap.Int("questions", len(questionIDs)))

	s.matchService.coordinator.SyncTimers(m)
	return m, nil
}

// collectMatch 매칭된 티켓의 방을 읽고 티켓 정리
func (s *MatchmakingService) collectMatch(ctx context.Context, ticket *models.MatchmakingTicket) (*models.Match, error) {
	if ticket.MatchID == nil {
		return nil, fmt.Errorf("%w: matched ticket %s has no match", ErrInvariantViolation, ticket.ID)
	}

	m, err := s.matches.GetMatch(ctx, *ticket.MatchID)
	if err != nil {
		return nil, storeError(err, ErrMatchNotFound)
	}

	if err := s.tickets.DeleteTicket(ctx, ticket.ID); err != nil {
		s.logger.Warn("Failed to delete matched ticket", zap.String("ticketId", ticket.ID), zap.Error(err))
	}
	return m, nil
}

// expireTicket waiting → expired (이미 매칭됐으면 그대로)
func (s *MatchmakingService) expireTicket(ctx context.Context, ticketID string) error {
	_, err := s.tickets.UpdateTicket(ctx, ticketID, func(t *models.MatchmakingTicket) error {
		if t.Status != models.QueueStatusWaiting {
			return repository.ErrSkipUpdate
		}
		t.Status = models.QueueStatusExpired
		return nil
	})
	return storeError(err, ErrTicketNotFound)
}

// abandonTicket 요청이 취소된 대기자의 티켓을 만료 처리
func (s *MatchmakingService) abandonTicket(ticketID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.expireTicket(ctx, ticketID); err != nil {
		s.logger.Warn("Failed to expire abandoned ticket", zap.String("ticketId", ticketID), zap.Error(err))
	}
}

// CleanupQueue 오래된 대기 티켓 만료, 처리가 끝난 티켓 삭제
func (s *MatchmakingService) CleanupQueue(ctx context.Context) (expired, deleted int, err error) {
	now := s.clock.Now()

	waiting, err := s.tickets.ListTickets(ctx, models.QueueStatusWaiting, 0)
	if err != nil {
		return 0, 0, storeError(err, nil)
	}
	for _, t := range waiting {
		if !t.Expired(now, s.cfg.Timeout) {
			continue
		}
		if err := s.expireTicket(ctx, t.ID); err != nil {
			s.logger.Warn("Failed to expire ticket", zap.String("ticketId", t.ID), zap.Error(err))
			continue
		}
		expired++
	}

	for _, status := range []models.MatchmakingQueueStatus{models.QueueStatusExpired, models.QueueStatusMatched} {
		tickets, err := s.tickets.ListTickets(ctx, status, 0)
		if err != nil {
			return expired, deleted, storeError(err, nil)
		}
		for _, t := range tickets {
			since := t.CreatedAt
			if t.MatchedAt != nil {
				since = *t.MatchedAt
			}
			if now.Sub(since) < s.cfg.Timeout {
				continue
			}
			if err := s.tickets.DeleteTicket(ctx, t.ID); err != nil {
				s.logger.Warn("Failed to delete ticket", zap.String("ticketId", t.ID), zap.Error(err))
				continue
			}
			deleted++
		}
	}

	return expired, deleted, nil
}

// Start 대기열 정리 작업 시작
func (s *MatchmakingService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	scheduler, err := gocron.NewScheduler(gocron.WithClock(s.clock))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(s.cfg.CleanupInterval),
		gocron.NewTask(s.runCleanup),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		scheduler.Shutdown()
		return fmt.Errorf("failed to schedule queue cleanup: %w", err)
	}

	scheduler.Start()
	s.scheduler = scheduler
	s.running = true

	s.logger.Info("Starting MatchmakingService", zap.Duration("interval", s.cfg.CleanupInterval))
	return nil
}

// Stop 대기열 정리 작업 중지
func (s *MatchmakingService) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	scheduler := s.scheduler
	s.scheduler = nil
	s.mu.Unlock()

	s.logger.Info("Stopping MatchmakingService")
	if err := scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	s.logger.Info("MatchmakingService stopped")
	return nil
}

func (s *MatchmakingService) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CleanupInterval)
	defer cancel()

	expired, deleted, err := s.CleanupQueue(ctx)
	if err != nil {
		s.logger.Error("Failed to cleanup matchmaking queue", zap.Error(err))
		return
	}
	if expired > 0 || deleted > 0 {
		s.logger.Info("Matchmaking queue cleaned",
			zap.Int("expired", expired),
			zap.Int("deleted", deleted))
	}
}

func (s *MatchmakingService) lockTopic(ctx context.Context, topic models.Topic, targetPlayerCount int) (func(), error) {
	unlock, err := s.locker.Lock(ctx, topic.Key()+":"+strconv.Itoa(targetPlayerCount))
	if err != nil {
		return nil, storeError(err, nil)
	}
	return unlock, nil
}
