package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
	"github.com/hanningtontech/nurse-connect-app-sub000/internal/repository"
)

const (
	DefaultAutoAdvanceDelay = 15 * time.Second
	DefaultSweepInterval    = 5 * time.Second

	timerCallbackTimeout = 10 * time.Second
)

// TurnCoordinatorConfig 문제 진행 설정
type TurnCoordinatorConfig struct {
	AutoAdvanceDelay time.Duration
	DefaultTimeLimit time.Duration
	SweepInterval    time.Duration
}

// AnswerResult 오답은 에러가 아니라 결과 값
type AnswerResult struct {
	Correct bool          `json:"correct"`
	Scored  bool          `json:"scored"`
	Message string        `json:"message"`
	Match   *models.Match `json:"match"`
}

// matchTimers 방 하나에 걸린 타이머. revision 보다 오래된 문서로는 갱신하지 않음
type matchTimers struct {
	revision int64
	advance  clockwork.Timer
	deadline clockwork.Timer
}

// TurnCoordinator 답안 판정, 다음 문제 진행, 자동 진행 타이머
type TurnCoordinator struct {
	matches   repository.MatchStore
	questions repository.QuestionCatalog
	clock     clockwork.Clock
	logger    *zap.Logger
	cfg       TurnCoordinatorConfig

	questionCache sync.Map // id -> *models.Question

	mu        sync.Mutex
	timers    map[string]*matchTimers
	scheduler gocron.Scheduler
	running   bool
}

func NewTurnCoordinator(
	matches repository.MatchStore,
	questions repository.QuestionCatalog,
	clock clockwork.Clock,
	logger *zap.Logger,
	cfg TurnCoordinatorConfig,
) *TurnCoordinator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AutoAdvanceDelay <= 0 {
		cfg.AutoAdvanceDelay = DefaultAutoAdvanceDelay
	}
	if cfg.DefaultTimeLimit <= 0 {
		cfg.DefaultTimeLimit = models.DefaultQuestionTimeLimit
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	return &TurnCoordinator{
		matches:   matches,
		questions: questions,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
		timers:    make(map[string]*matchTimers),
	}
}

// SubmitAnswer 한 트랜잭션으로 답안 판정. 첫 정답자만 점수를 얻음
func (c *TurnCoordinator) SubmitAnswer(ctx context.Context, matchID, playerID string, option int) (*AnswerResult, error) {
	var result AnswerResult

	updated, err := c.matches.UpdateMatch(ctx, matchID, func(m *models.Match) error {
		result = AnswerResult{}

		if !m.InPlay() {
			return ErrMatchNotActive
		}
		if len(m.QuestionIDs) == 0 {
			return ErrEmptyQuestionSequence
		}
		if m.CurrentQuestionIndex < 0 || m.CurrentQuestionIndex >= len(m.QuestionIDs) {
			return ErrQuestionIndexOutOfRange
		}

		player, ok := m.Players[playerID]
		if !ok || player.Forfeited {
			return ErrPlayerNotInMatch
		}

		question, err := c.question(ctx, m.CurrentQuestionID)
		if err != nil {
			return err
		}
		if !question.ValidOption(option) {
			return ErrInvalidOption
		}
		if player.Answered {
			return ErrAlreadyAnswered
		}

		if !question.IsCorrect(option) {
			if m.CurrentQuestionCompleted {
				return ErrQuestionCompleted
			}
			result.Message = "Incorrect answer, try again"
			return repository.ErrSkipUpdate
		}

		player.Answered = true
		result.Correct = true
		result.Message = "Correct answer"

		if m.CurrentQuestionAnsweredBy == nil {
			player.Score++
			answeredBy := playerID
			m.CurrentQuestionAnsweredBy = &answeredBy
			m.CurrentQuestionCompleted = true
			result.Scored = true
		} else {
			result.Message = "Correct answer, but another player was faster"
		}

		if m.Status == models.MatchStatusActive && (m.AllAnswered() || m.CurrentQuestionCompleted) {
			c.completeQuestion(m, c.clock.Now())
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, ErrMatchNotFound)
	}

	if result.Scored {
		c.logger.Info("Question won",
			zap.String("matchId", matchID),
			zap.String("playerId", playerID),
			zap.Int("questionIndex", updated.CurrentQuestionIndex))
	}

	c.SyncTimers(updated)
	result.Match = updated
	return &result, nil
}

// AdvanceToNextQuestion 다음 문제 투표. 남은 참가자 전원이 투표하면 같은 트랜잭션에서 진행
func (c *TurnCoordinator) AdvanceToNextQuestion(ctx context.Context, matchID, playerID string) (*models.Match, error) {
	updated, err := c.matches.UpdateMatch(ctx, matchID, func(m *models.Match) error {
		switch m.Status {
		case models.MatchStatusCompleted:
			return ErrMatchCompleted
		case models.MatchStatusQuestionCompleted:
		default:
			return ErrQuestionNotCompleted
		}

		player, ok := m.Players[playerID]
		if !ok || player.Forfeited {
			return ErrPlayerNotInMatch
		}
		if player.PressedNext {
			return repository.ErrSkipUpdate
		}
		player.PressedNext = true

		if m.AllPressedNext() {
			return c.advance(ctx, m, c.clock.Now())
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, ErrMatchNotFound)
	}

	c.SyncTimers(updated)
	return updated, nil
}

// CurrentQuestion 진행 중인 문제 (정답 제외)
func (c *TurnCoordinator) CurrentQuestion(ctx context.Context, matchID string) (*models.QuestionView, error) {
	m, err := c.matches.GetMatch(ctx, matchID)
	if err != nil {
		return nil, storeError(err, ErrMatchNotFound)
	}
	if !m.InPlay() {
		return nil, ErrMatchNotActive
	}
	if len(m.QuestionIDs) == 0 {
		return nil, ErrEmptyQuestionSequence
	}

	question, err := c.question(ctx, m.CurrentQuestionID)
	if err != nil {
		return nil, err
	}

	view := question.Public(m.CurrentQuestionIndex, len(m.QuestionIDs))
	if view.TimeLimitSeconds == 0 {
		view.TimeLimitSeconds = int(question.TimeLimit(c.cfg.DefaultTimeLimit) / time.Second)
	}
	return &view, nil
}

// startQuestion index 번째 문제 시작 (트랜잭션 안에서 호출)
func (c *TurnCoordinator) startQuestion(ctx context.Context, m *models.Match, index int, now time.Time) error {
	if len(m.QuestionIDs) == 0 {
		return ErrEmptyQuestionSequence
	}
	if index < 0 || index >= len(m.QuestionIDs) {
		return ErrQuestionIndexOutOfRange
	}

	m.CurrentQuestionIndex = index
	m.CurrentQuestionID = m.QuestionIDs[index]
	m.ResetQuestionState()
	m.Status = models.MatchStatusActive

	deadline := now.Add(c.timeLimit(ctx, m.CurrentQuestionID))
	m.QuestionStartTime = &now
	m.QuestionDeadline = &deadline
	return nil
}

// advance 다음 문제로, 마지막 문제였으면 경기 종료
func (c *TurnCoordinator) advance(ctx context.Context, m *models.Match, now time.Time) error {
	next := m.CurrentQuestionIndex + 1
	if next < len(m.QuestionIDs) {
		return c.startQuestion(ctx, m, next, now)
	}
	endMatch(m, now)
	return nil
}

// completeQuestion question_completed 전환
func (c *TurnCoordinator) completeQuestion(m *models.Match, now time.Time) {
	m.Status = models.MatchStatusQuestionCompleted
	m.CurrentQuestionCompleted = true
	m.NextQuestionReadyTime = &now
	m.QuestionDeadline = nil
}

// SyncTimers 커밋된 문서 상태에 맞춰 타이머 설정
//
//	active              문제 제한 시간 타이머
//	question_completed  자동 진행 타이머
//	completed           모든 타이머 해제
func (c *TurnCoordinator) SyncTimers(m *models.Match) {
	if m == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.timers[m.ID]
	if ok && m.Revision <= t.revision {
		return
	}
	if !ok {
		t = &matchTimers{}
	}
	t.revision = m.Revision

	switch m.Status {
	case models.MatchStatusActive:
		stopTimer(&t.advance)
		stopTimer(&t.deadline)
		if m.QuestionDeadline != nil {
			matchID, index := m.ID, m.CurrentQuestionIndex
			t.deadline = c.clock.AfterFunc(c.until(*m.QuestionDeadline), func() {
				c.onQuestionDeadline(matchID, index)
			})
		}
		c.timers[m.ID] = t

	case models.MatchStatusQuestionCompleted:
		stopTimer(&t.deadline)
		stopTimer(&t.advance)
		readyAt := c.clock.Now()
		if m.NextQuestionReadyTime != nil {
			readyAt = *m.NextQuestionReadyTime
		}
		matchID, index := m.ID, m.CurrentQuestionIndex
		t.advance = c.clock.AfterFunc(c.until(readyAt.Add(c.cfg.AutoAdvanceDelay)), func() {
			c.onAutoAdvance(matchID, index)
		})
		c.timers[m.ID] = t

	case models.MatchStatusCompleted:
		stopTimer(&t.advance)
		stopTimer(&t.deadline)
		delete(c.timers, m.ID)

	default:
		c.timers[m.ID] = t
	}
}

// ArmedTimers 타이머가 걸린 방 수
func (c *TurnCoordinator) ArmedTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if t.advance != nil || t.deadline != nil {
			n++
		}
	}
	return n
}

func (c *TurnCoordinator) onAutoAdvance(matchID string, index int) {
	ctx, cancel := context.WithTimeout(context.Background(), timerCallbackTimeout)
	defer cancel()

	if _, err := c.autoAdvance(ctx, matchID, index); err != nil {
		c.logger.Error("Auto-advance failed",
			zap.String("matchId", matchID),
			zap.Int("questionIndex", index),
			zap.Error(err))
	}
}

func (c *TurnCoordinator) onQuestionDeadline(matchID string, index int) {
	ctx, cancel := context.WithTimeout(context.Background(), timerCallbackTimeout)
	defer cancel()

	if _, err := c.expireQuestion(ctx, matchID, index); err != nil {
		c.logger.Error("Question timeout failed",
			zap.String("matchId", matchID),
			zap.Int("questionIndex", index),
			zap.Error(err))
	}
}

// autoAdvance 같은 문제에서 아직 question_completed 일 때만 진행 (수동 진행이 먼저 끝났으면 no-op)
func (c *TurnCoordinator) autoAdvance(ctx context.Context, matchID string, index int) (bool, error) {
	advanced := false

	updated, err := c.matches.UpdateMatch(ctx, matchID, func(m *models.Match) error {
		advanced = false
		if m.Status != models.MatchStatusQuestionCompleted || m.CurrentQuestionIndex != index {
			return repository.ErrSkipUpdate
		}
		advanced = true
		return c.advance(ctx, m, c.clock.Now())
	})
	if err != nil {
		return false, storeError(err, ErrMatchNotFound)
	}

	if advanced {
		c.logger.Info("Auto-advanced match",
			zap.String("matchId", matchID),
			zap.Int("fromIndex", index),
			zap.String("status", string(updated.Status)))
	}
	c.SyncTimers(updated)
	return advanced, nil
}

// expireQuestion 제한 시간이 지난 문제를 승자 없이 종료
func (c *TurnCoordinator) expireQuestion(ctx context.Context, matchID string, index int) (bool, error) {
	expired := false

	updated, err := c.matches.UpdateMatch(ctx, matchID, func(m *models.Match) error {
		expired = false
		if m.Status != models.MatchStatusActive || m.CurrentQuestionIndex != index {
			return repository.ErrSkipUpdate
		}
		now := c.clock.Now()
		if m.QuestionDeadline != nil && now.Before(*m.QuestionDeadline) {
			return repository.ErrSkipUpdate
		}
		expired = true
		m.CurrentQuestionAnsweredBy = nil
		c.completeQuestion(m, now)
		return nil
	})
	if err != nil {
		return false, storeError(err, ErrMatchNotFound)
	}

	if expired {
		c.logger.Info("Question timed out",
			zap.String("matchId", matchID),
			zap.Int("questionIndex", index))
	}
	c.SyncTimers(updated)
	return expired, nil
}

// SweepStalled 타이머를 잃어버린 방 (인스턴스 재시작 등) 진행
func (c *TurnCoordinator) SweepStalled(ctx context.Context) (int, error) {
	now := c.clock.Now()
	progressed := 0

	completed, err := c.matches.ListMatchesByStatus(ctx, models.MatchStatusQuestionCompleted, 0)
	if err != nil {
		return 0, storeError(err, nil)
	}
	for _, m := range completed {
		if m.NextQuestionReadyTime != nil && now.Before(m.NextQuestionReadyTime.Add(c.cfg.AutoAdvanceDelay)) {
			continue
		}
		ok, err := c.autoAdvance(ctx, m.ID, m.CurrentQuestionIndex)
		if err != nil {
			c.logger.Warn("Sweep auto-advance failed", zap.String("matchId", m.ID), zap.Error(err))
			continue
		}
		if ok {
			progressed++
		}
	}

	active, err := c.matches.ListMatchesByStatus(ctx, models.MatchStatusActive, 0)
	if err != nil {
		return progressed, storeError(err, nil)
	}
	for _, m := range active {
		if len(m.QuestionIDs) == 0 {
			c.logger.Error("Active match has no questions", zap.String("matchId", m.ID))
			continue
		}
		if m.QuestionDeadline == nil || now.Before(*m.QuestionDeadline) {
			continue
		}
		ok, err := c.expireQuestion(ctx, m.ID, m.CurrentQuestionIndex)
		if err != nil {
			c.logger.Warn("Sweep question timeout failed", zap.String("matchId", m.ID), zap.Error(err))
			continue
		}
		if ok {
			progressed++
		}
	}

	return progressed, nil
}

// Start 멈춘 방 정리 작업 시작
func (c *TurnCoordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	scheduler, err := gocron.NewScheduler(gocron.WithClock(c.clock))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(c.cfg.SweepInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SweepInterval)
			defer cancel()

			n, err := c.SweepStalled(ctx)
			if err != nil {
				c.logger.Error("Failed to sweep stalled matches", zap.Error(err))
				return
			}
			if n > 0 {
				c.logger.Info("Swept stalled matches", zap.Int("count", n))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		scheduler.Shutdown()
		return fmt.Errorf("failed to schedule sweeper: %w", err)
	}

	scheduler.Start()
	c.scheduler = scheduler
	c.running = true

	c.logger.Info("Starting TurnCoordinator", zap.Duration("sweepInterval", c.cfg.SweepInterval))
	return nil
}

// Stop 스케줄러와 모든 타이머 정지
func (c *TurnCoordinator) Stop() error {
	c.mu.Lock()
	for id, t := range c.timers {
		stopTimer(&t.advance)
		stopTimer(&t.deadline)
		delete(c.timers, id)
	}

	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	scheduler := c.scheduler
	c.scheduler = nil
	c.mu.Unlock()

	// 실행 중인 sweep 이 SyncTimers 를 호출할 수 있으므로 락 밖에서 종료
	c.logger.Info("Stopping TurnCoordinator")
	if err := scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	return nil
}

// question 문제는 읽기 전용이라 캐시
func (c *TurnCoordinator) question(ctx context.Context, id string) (*models.Question, error) {
	if q, ok := c.questionCache.Load(id); ok {
		return q.(*models.Question), nil
	}

	q, err := c.questions.FindQuestion(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrQuestionNotFound, id)
		}
		return nil, storeError(err, nil)
	}

	c.questionCache.Store(id, q)
	return q, nil
}

func (c *TurnCoordinator) timeLimit(ctx context.Context, questionID string) time.Duration {
	q, err := c.question(ctx, questionID)
	if err != nil {
		c.logger.Warn("Using default time limit",
			zap.String("questionId", questionID),
			zap.Error(err))
		return c.cfg.DefaultTimeLimit
	}
	return q.TimeLimit(c.cfg.DefaultTimeLimit)
}

func (c *TurnCoordinator) until(t time.Time) time.Duration {
	d := t.Sub(c.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

func stopTimer(t *clockwork.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
