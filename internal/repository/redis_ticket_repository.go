package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
)

// RedisTicketRepository 대기열 항목 저장소
//
//	matchmaking_queue:{id}                         항목
//	matchmaking_queue:waiting:{topic}:{target}     ZSET (score = 생성 시각, 오래된 순)
//	matchmaking_queue:status:{status}              ZSET
type RedisTicketRepository struct {
	client  *redis.Client
	logger  *zap.Logger
	retries int
}

func NewRedisTicketRepository(client *redis.Client, logger *zap.Logger) *RedisTicketRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisTicketRepository{
		client:  client,
		logger:  logger,
		retries: defaultTxRetries,
	}
}

func (r *RedisTicketRepository) ticketKey(id string) string {
	return CollectionQueue + ":" + id
}

func (r *RedisTicketRepository) waitingKey(topic models.Topic, target int) string {
	return CollectionQueue + ":waiting:" + topic.Key() + ":" + strconv.Itoa(target)
}

func (r *RedisTicketRepository) statusKey(status models.MatchmakingQueueStatus) string {
	return CollectionQueue + ":status:" + string(status)
}

// CreateTicket 대기열에 추가
func (r *RedisTicketRepository) CreateTicket(ctx context.Context, t *models.MatchmakingTicket) error {
	key := r.ticketKey(t.ID)
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}

	return runOptimistic(ctx, r.client, key, r.retries, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return ErrAlreadyExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			r.reindex(ctx, pipe, nil, t)
			return nil
		})
		return err
	})
}

// GetTicket ID로 조회
func (r *RedisTicketRepository) GetTicket(ctx context.Context, id string) (*models.MatchmakingTicket, error) {
	data, err := r.client.Get(ctx, r.ticketKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return decodeTicket(data)
}

// UpdateTicket WATCH 기반 compare-and-swap
func (r *RedisTicketRepository) UpdateTicket(ctx context.Context, id string, fn TicketMutator) (*models.MatchmakingTicket, error) {
	key := r.ticketKey(id)
	var result *models.MatchmakingTicket

	err := runOptimistic(ctx, r.client, key, r.retries, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		current, err := decodeTicket(data)
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

		payload, err := json.Marshal(working)
		if err != nil {
			return fmt.Errorf("failed to marshal ticket: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			r.reindex(ctx, pipe, current, working)
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

// FindWaitingTickets 토픽과 인원수가 같은 대기 항목 (오래된 순)
func (r *RedisTicketRepository) FindWaitingTickets(ctx context.Context, topic models.Topic, targetPlayerCount, limit int) ([]*models.MatchmakingTicket, error) {
	tickets, err := r.loadIndex(ctx, r.waitingKey(topic, targetPlayerCount), limit)
	if err != nil {
		return nil, err
	}

	result := tickets[:0]
	for _, t := range tickets {
		if t.Status == models.QueueStatusWaiting {
			result = append(result, t)
		}
	}
	return result, nil
}

// ListTickets 상태별 조회
func (r *RedisTicketRepository) ListTickets(ctx context.Context, status models.MatchmakingQueueStatus, limit int) ([]*models.MatchmakingTicket, error) {
	tickets, err := r.loadIndex(ctx, r.statusKey(status), limit)
	if err != nil {
		return nil, err
	}

	result := tickets[:0]
	for _, t := range tickets {
		if t.Status == status {
			result = append(result, t)
		}
	}
	return result, nil
}

// DeleteTicket 없는 항목 삭제는 no-op
func (r *RedisTicketRepository) DeleteTicket(ctx context.Context, id string) error {
	key := r.ticketKey(id)

	return runOptimistic(ctx, r.client, key, r.retries, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}

		current, err := decodeTicket(data)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, r.statusKey(current.Status), id)
			pipe.ZRem(ctx, r.waitingKey(current.Topic, current.TargetPlayerCount), id)
			return nil
		})
		return err
	})
}

func (r *RedisTicketRepository) reindex(ctx context.Context, pipe redis.Pipeliner, before, after *models.MatchmakingTicket) {
	score := float64(after.CreatedAt.UnixNano())

	if before != nil && before.Status != after.Status {
		pipe.ZRem(ctx, r.statusKey(before.Status), after.ID)
		if before.Status == models.QueueStatusWaiting {
			pipe.ZRem(ctx, r.waitingKey(before.Topic, before.TargetPlayerCount), after.ID)
		}
	}

	pipe.ZAdd(ctx, r.statusKey(after.Status), redis.Z{Score: score, Member: after.ID})
	if after.Status == models.QueueStatusWaiting {
		pipe.ZAdd(ctx, r.waitingKey(after.Topic, after.TargetPlayerCount), redis.Z{Score: score, Member: after.ID})
	}
}

func (r *RedisTicketRepository) loadIndex(ctx context.Context, indexKey string, limit int) ([]*models.MatchmakingTicket, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := r.client.ZRange(ctx, indexKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.ticketKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load tickets: %w", err)
	}

	tickets := make([]*models.MatchmakingTicket, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			r.client.ZRem(ctx, indexKey, ids[i])
			continue
		}
		t, err := decodeTicket([]byte(s))
		if err != nil {
			r.logger.Warn("Skipping undecodable ticket", zap.String("ticketId", ids[i]), zap.Error(err))
			continue
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

func decodeTicket(data []byte) (*models.MatchmakingTicket, error) {
	var t models.MatchmakingTicket
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ticket: %w", err)
	}
	return &t, nil
}
