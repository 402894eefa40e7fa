package repository

import (
	"context"
	"errors"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
)

// Collections
const (
	CollectionMatches   = "quiz_matches"
	CollectionQueue     = "matchmaking_queue"
	CollectionQuestions = "quiz_questions"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	ErrConflict      = errors.New("transaction conflict, retries exhausted")

	// ErrSkipUpdate mutator가 반환하면 쓰기 없이 현재 문서를 그대로 반환
	ErrSkipUpdate = errors.New("skip update")
)

// MatchMutator 트랜잭션 안에서 문서를 변경. 에러를 반환하면 아무것도 저장되지 않음
type MatchMutator func(m *models.Match) error

// TicketMutator 대기열 항목 변경 함수
type TicketMutator func(t *models.MatchmakingTicket) error

// MatchStore quiz_matches 컬렉션 계약
//
// UpdateMatch 는 단일 문서에 대한 compare-and-swap 트랜잭션이어야 하며,
// 커밋된 모든 revision 은 WatchMatch 구독자에게 전체 문서로 전달되어야 한다.
type MatchStore interface {
	CreateMatch(ctx context.Context, m *models.Match) error
	GetMatch(ctx context.Context, id string) (*models.Match, error)
	UpdateMatch(ctx context.Context, id string, fn MatchMutator) (*models.Match, error)
	FindOpenMatches(ctx context.Context, topic models.Topic, targetPlayerCount, limit int) ([]*models.Match, error)
	ListMatchesByStatus(ctx context.Context, status models.MatchStatus, limit int) ([]*models.Match, error)
	WatchMatch(ctx context.Context, id string) (MatchSubscription, error)
}

// MatchSubscription 문서 변경 구독 핸들. 사용이 끝나면 반드시 Close
type MatchSubscription interface {
	Updates() <-chan *models.Match
	Close() error
}

// TicketStore matchmaking_queue 컬렉션 계약
type TicketStore interface {
	CreateTicket(ctx context.Context, t *models.MatchmakingTicket) error
	GetTicket(ctx context.Context, id string) (*models.MatchmakingTicket, error)
	UpdateTicket(ctx context.Context, id string, fn TicketMutator) (*models.MatchmakingTicket, error)
	// FindWaitingTickets 생성 순서(오래된 것부터)로 정렬
	FindWaitingTickets(ctx context.Context, topic models.Topic, targetPlayerCount, limit int) ([]*models.MatchmakingTicket, error)
	ListTickets(ctx context.Context, status models.MatchmakingQueueStatus, limit int) ([]*models.MatchmakingTicket, error)
	DeleteTicket(ctx context.Context, id string) error
}

// QuestionCatalog quiz_questions 읽기 전용 계약
type QuestionCatalog interface {
	Draw(ctx context.Context, topic models.Topic, count int) ([]*models.Question, error)
	FindQuestion(ctx context.Context, id string) (*models.Question, error)
}

// Locker 키 단위 상호 배제 (토픽별 방 생성 직렬화). 반환된 unlock 은 반드시 호출
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
