package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
	"github.com/hanningtontech/nurse-connect-app-sub000/pkg/distributed"
)

// RedisMatchRepository 문서는 JSON 문자열, 조회용 인덱스는 Set, 변경 알림은 Pub/Sub
//
//	quiz_matches:{id}                        문서
//	quiz_matches:open:{topic}:{target}       자리가 남은 대기 방
//	quiz_matches:status:{status}             상태별 방
//	quiz_matches:changes:{id}                변경 알림 채널
type RedisMatchRepository struct {
	client  *redis.Client
	feed    *distributed.ChangeFeed
	logger  *zap.Logger
	retries int
}

func NewRedisMatchRepository(client *redis.Client, logger *zap.Logger) *RedisMatchRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisMatchRepository{
		client:  client,
		feed:    distributed.NewChangeFeed(client, CollectionMatches+":changes:", logger),
		logger:  logger,
		retries: defaultTxRetries,
	}
}

func (r *RedisMatchRepository) matchKey(id string) string {
	return CollectionMatches + ":" + id
}

func (r *RedisMatchRepository) openKey(topic models.Topic, target int) string {
	return CollectionMatches + ":open:" + topic.Key() + ":" + strconv.Itoa(target)
}

func (r *RedisMatchRepository) statusKey(status models.MatchStatus) string {
	return CollectionMatches + ":status:" + string(status)
}

// CreateMatch 문서와 인덱스를 한 트랜잭션으로 저장
func (r *RedisMatchRepository) CreateMatch(ctx context.Context, m *models.Match) error {
	key := r.matchKey(m.ID)
	stored := m.Clone()
	stored.Revision = 1

	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal match: %w", err)
	}

	err = runOptimistic(ctx, r.client, key, r.retries, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return ErrAlreadyExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			r.reindex(ctx, pipe, nil, stored)
			pipe.Publish(ctx, r.feed.Channel(m.ID), payload)
			return nil
		})
		return err
	})
	if err != nil {
		return err
	}

	m.Revision = stored.Revision
	return nil
}

// GetMatch ID로 조회
func (r *RedisMatchRepository) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	data, err := r.client.Get(ctx, r.matchKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return decodeMatch(data)
}

// UpdateMatch WATCH 기반 compare-and-swap. 커밋과 같은 MULTI 안에서 변경 알림 발행
func (r *RedisMatchRepository) UpdateMatch(ctx context.Context, id string, fn MatchMutator) (*models.Match, error) {
	key := r.matchKey(id)
	var result *models.Match

	err := runOptimistic(ctx, r.client, key, r.retries, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		current, err := decodeMatch(data)
		if err != nil {
			return err
		}

		working := current.Clone()
		if err := fn(working); err != nil {
			if errors.Is(err, ErrSkipUpdate) {
				result = current
				return nil
			}
			return err
		}
		working.ID = current.ID
		working.Revision = current.Revision + 1

		payload, err := json.Marshal(working)
		if err != nil {
			return fmt.Errorf("failed to marshal match: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			r.reindex(ctx, pipe, current, working)
			pipe.Publish(ctx, r.feed.Channel(id), payload)
			return nil
		})
		if err != nil {
			return err
		}
		result = working
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FindOpenMatches 대기 방 인덱스 조회
func (r *RedisMatchRepository) FindOpenMatches(ctx context.Context, topic models.Topic, targetPlayerCount, limit int) ([]*models.Match, error) {
	openKey := r.openKey(topic, targetPlayerCount)
	matches, err := r.loadIndex(ctx, openKey)
	if err != nil {
		return nil, err
	}

	var result []*models.Match
	for _, m := range matches {
		if m.Status != models.MatchStatusWaiting || m.IsFull() {
			continue
		}
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return truncateMatches(result, limit), nil
}

// ListMatchesByStatus 상태 인덱스 조회
func (r *RedisMatchRepository) ListMatchesByStatus(ctx context.Context, status models.MatchStatus, limit int) ([]*models.Match, error) {
	matches, err := r.loadIndex(ctx, r.statusKey(status))
	if err != nil {
		return nil, err
	}

	var result []*models.Match
	for _, m := range matches {
		if m.Status == status {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return truncateMatches(result, limit), nil
}

// WatchMatch 구독을 먼저 확인한 뒤 현재 문서를 전달 (중간 커밋 누락 방지)
func (r *RedisMatchRepository) WatchMatch(ctx context.Context, id string) (MatchSubscription, error) {
	var listener *distributed.FeedListener
	sub := newLatestMatchChannel(func() {
		if listener != nil {
			listener.Close()
		}
	})

	listener, err := r.feed.Listen(ctx, id, func(payload []byte) {
		m, err := decodeMatch(payload)
		if err != nil {
			r.logger.Error("Failed to decode match change", zap.String("matchId", id), zap.Error(err))
			return
		}
		sub.offer(m)
	})
	if err != nil {
		return nil, err
	}

	current, err := r.GetMatch(ctx, id)
	if err != nil {
		listener.Close()
		return nil, err
	}
	sub.offer(current)
	sub.closeOnDone(listener.Done())

	return sub, nil
}

func (r *RedisMatchRepository) reindex(ctx context.Context, pipe redis.Pipeliner, before, after *models.Match) {
	if before != nil {
		if before.Status != after.Status {
			pipe.SRem(ctx, r.statusKey(before.Status), after.ID)
		}
		if before.Status == models.MatchStatusWaiting {
			pipe.SRem(ctx, r.openKey(before.Topic, before.TargetPlayerCount), after.ID)
		}
	}

	pipe.SAdd(ctx, r.statusKey(after.Status), after.ID)
	if after.Status == models.MatchStatusWaiting && !after.IsFull() {
		pipe.SAdd(ctx, r.openKey(after.Topic, after.TargetPlayerCount), after.ID)
	}
}

func (r *RedisMatchRepository) loadIndex(ctx context.Context, indexKey string) ([]*models.Match, error) {
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.matchKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load matches: %w", err)
	}

	matches := make([]*models.Match, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// 문서 없는 인덱스 항목 정리
			r.client.SRem(ctx, indexKey, ids[i])
			continue
		}
		m, err := decodeMatch([]byte(s))
		if err != nil {
			r.logger.Warn("Skipping undecodable match", zap.String("matchId", ids[i]), zap.Error(err))
			continue
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func decodeMatch(data []byte) (*models.Match, error) {
	var m models.Match
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match: %w", err)
	}
	if m.Players == nil {
		m.Players = make(map[string]*models.PlayerState)
	}
	return &m, nil
}
