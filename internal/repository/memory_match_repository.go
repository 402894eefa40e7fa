package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
)

// MemoryMatchRepository 단일 프로세스용 MatchStore (테스트, 로컬 개발)
type MemoryMatchRepository struct {
	mu          sync.Mutex
	matches     map[string]*models.Match
	subscribers map[string]map[*latestMatchChannel]struct{}
}

func NewMemoryMatchRepository() *MemoryMatchRepository {
	return &MemoryMatchRepository{
		matches:     make(map[string]*models.Match),
		subscribers: make(map[string]map[*latestMatchChannel]struct{}),
	}
}

// CreateMatch 새 방 저장
func (r *MemoryMatchRepository) CreateMatch(ctx context.Context, m *models.Match) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.matches[m.ID]; exists {
		return ErrAlreadyExists
	}
	stored := m.Clone()
	stored.Revision = 1
	m.Revision = 1
	r.matches[m.ID] = stored
	r.publishLocked(stored)
	return nil
}

// GetMatch ID로 조회
func (r *MemoryMatchRepository) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

// UpdateMatch 뮤텍스로 직렬화된 read-modify-write
func (r *MemoryMatchRepository) UpdateMatch(ctx context.Context, id string, fn MatchMutator) (*models.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.matches[id]
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
	working.Revision = current.Revision + 1
	r.matches[id] = working
	r.publishLocked(working)
	return working.Clone(), nil
}

// FindOpenMatches 같은 토픽의 대기 중이고 자리가 남은 방
func (r *MemoryMatchRepository) FindOpenMatches(ctx context.Context, topic models.Topic, targetPlayerCount, limit int) ([]*models.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*models.Match
	for _, m := range r.matches {
		if m.Status != models.MatchStatusWaiting || m.Topic != topic {
			continue
		}
		if m.TargetPlayerCount != targetPlayerCount || m.IsFull() {
			continue
		}
		result = append(result, m.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return truncateMatches(result, limit), nil
}

// ListMatchesByStatus 상태별 조회 (sweeper 용)
func (r *MemoryMatchRepository) ListMatchesByStatus(ctx context.Context, status models.MatchStatus, limit int) ([]*models.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*models.Match
	for _, m := range r.matches {
		if m.Status == status {
			result = append(result, m.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return truncateMatches(result, limit), nil
}

// WatchMatch 현재 문서를 먼저 전달하고 이후 모든 커밋을 push
func (r *MemoryMatchRepository) WatchMatch(ctx context.Context, id string) (MatchSubscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.matches[id]
	if !ok {
		return nil, ErrNotFound
	}

	var sub *latestMatchChannel
	sub = newLatestMatchChannel(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if subs, ok := r.subscribers[id]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(r.subscribers, id)
			}
		}
	})
	if r.subscribers[id] == nil {
		r.subscribers[id] = make(map[*latestMatchChannel]struct{})
	}
	r.subscribers[id][sub] = struct{}{}
	sub.offer(current.Clone())

	sub.closeOnDone(ctx.Done())

	return sub, nil
}

// SubscriberCount 구독자 수 (리소스 해제 확인용)
func (r *MemoryMatchRepository) SubscriberCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers[id])
}

func (r *MemoryMatchRepository) publishLocked(m *models.Match) {
	for sub := range r.subscribers[m.ID] {
		sub.offer(m.Clone())
	}
}

func truncateMatches(matches []*models.Match, limit int) []*models.Match {
	if limit > 0 && len(matches) > limit {
		return matches[:limit]
	}
	return matches
}
