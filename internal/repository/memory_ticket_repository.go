package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
)

// MemoryTicketRepository 단일 프로세스용 TicketStore
type MemoryTicketRepository struct {
	mu      sync.Mutex
	tickets map[string]*models.MatchmakingTicket
}

func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{
		tickets: make(map[string]*models.MatchmakingTicket),
	}
}

// CreateTicket 대기열에 추가
func (r *MemoryTicketRepository) CreateTicket(ctx context.Context, t *models.MatchmakingTicket) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tickets[t.ID]; exists {
		return ErrAlreadyExists
	}
	r.tickets[t.ID] = t.Clone()
	return nil
}

// GetTicket ID로 조회
func (r *MemoryTicketRepository) GetTicket(ctx context.Context, id string) (*models.MatchmakingTicket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

// UpdateTicket read-modify-write
func (r *MemoryTicketRepository) UpdateTicket(ctx context.Context, id string, fn TicketMutator) (*models.MatchmakingTicket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		if errors.Is(err, ErrSkipUpdate) {
			return current.Clone(), nil
		}
		return nil, err
	}
	working.ID = current.ID
	r.tickets[id] = working
	return working.Clone(), nil
}

// FindWaitingTickets 토픽과 인원수가 같은 대기 항목 (오래된 순)
func (r *MemoryTicketRepository) FindWaitingTickets(ctx context.Context, topic models.Topic, targetPlayerCount, limit int) ([]*models.MatchmakingTicket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*models.MatchmakingTicket
	for _, t := range r.tickets {
		if t.Status == models.QueueStatusWaiting && t.Topic == topic && t.TargetPlayerCount == targetPlayerCount {
			result = append(result, t.Clone())
		}
	}
	sortTickets(result)
	return truncateTickets(result, limit), nil
}

// ListTickets 상태별 조회
func (r *MemoryTicketRepository) ListTickets(ctx context.Context, status models.MatchmakingQueueStatus, limit int) ([]*models.MatchmakingTicket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*models.MatchmakingTicket
	for _, t := range r.tickets {
		if t.Status == status {
			result = append(result, t.Clone())
		}
	}
	sortTickets(result)
	return truncateTickets(result, limit), nil
}

// DeleteTicket 없는 항목 삭제는 no-op
func (r *MemoryTicketRepository) DeleteTicket(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tickets, id)
	return nil
}

func sortTickets(tickets []*models.MatchmakingTicket) {
	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].ID < tickets[j].ID
		}
		return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
	})
}

func truncateTickets(tickets []*models.MatchmakingTicket, limit int) []*models.MatchmakingTicket {
	if limit > 0 && len(tickets) > limit {
		return tickets[:limit]
	}
	return tickets
}
