package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
)

var testTopic = models.Topic{Course: "fundamentals", Unit: "vital-signs", Career: "rn"}

func setupRedisClient(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // 테스트용 DB
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available:", err)
	}

	// 테스트 전 DB 초기화
	client.FlushDB(ctx)
	t.Cleanup(func() { client.Close() })

	return client
}

func newTestMatch(id string, target int, createdAt time.Time) *models.Match {
	return models.NewMatch(id, testTopic, target, []string{"q1", "q2"}, createdAt)
}

func matchStores(t *testing.T) map[string]func(t *testing.T) MatchStore {
	return map[string]func(t *testing.T) MatchStore{
		"memory": func(t *testing.T) MatchStore {
			return NewMemoryMatchRepository()
		},
		"redis": func(t *testing.T) MatchStore {
			return NewRedisMatchRepository(setupRedisClient(t), zaptest.NewLogger(t))
		},
	}
}

func TestMatchStore_CreateAndGet(t *testing.T) {
	for name, newStore := range matchStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()

			m := newTestMatch("match-1", 2, time.Now())
			require.NoError(t, store.CreateMatch(ctx, m))
			assert.Equal(t, int64(1), m.Revision)

			err := store.CreateMatch(ctx, m)
			assert.ErrorIs(t, err, ErrAlreadyExists)

			got, err := store.GetMatch(ctx, "match-1")
			require.NoError(t, err)
			assert.Equal(t, models.MatchStatusWaiting, got.Status)
			assert.Equal(t, []string{"q1", "q2"}, got.QuestionIDs)

			_, err = store.GetMatch(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMatchStore_UpdateMatch(t *testing.T) {
	for name, newStore := range matchStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()
			now := time.Now()

			require.NoError(t, store.CreateMatch(ctx, newTestMatch("match-1", 2, now)))

			updated, err := store.UpdateMatch(ctx, "match-1", func(m *models.Match) error {
				m.AddPlayer("p1", "Alice", 0, now)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, int64(2), updated.Revision)
			assert.True(t, updated.HasPlayer("p1"))

			// mutator 에러는 아무것도 저장하지 않음
			boom := errors.New("boom")
			_, err = store.UpdateMatch(ctx, "match-1", func(m *models.Match) error {
				m.AddPlayer("p2", "Bob", 0, now)
				return boom
			})
			assert.ErrorIs(t, err, boom)

			// skip 은 현재 문서 반환
			skipped, err := store.UpdateMatch(ctx, "match-1", func(m *models.Match) error {
				return ErrSkipUpdate
			})
			require.NoError(t, err)
			assert.Equal(t, int64(2), skipped.Revision)
			assert.False(t, skipped.HasPlayer("p2"))

			_, err = store.UpdateMatch(ctx, "missing", func(m *models.Match) error { return nil })
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMatchStore_ConcurrentUpdatesAreSerialized(t *testing.T) {
	for name, newStore := range matchStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()
			now := time.Now()

			m := newTestMatch("match-1", 5, now)
			m.AddPlayer("p1", "Alice", 0, now)
			require.NoError(t, store.CreateMatch(ctx, m))

			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := store.UpdateMatch(ctx, "match-1", func(m *models.Match) error {
						m.Players["p1"].Score++
						return nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			got, err := store.GetMatch(ctx, "match-1")
			require.NoError(t, err)
			assert.Equal(t, 10, got.Players["p1"].Score)
			assert.Equal(t, int64(11), got.Revision)
		})
	}
}

func TestMatchStore_FindOpenMatches(t *testing.T) {
	for name, newStore := range matchStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()
			base := time.Now()

			older := newTestMatch("older", 3, base)
			newer := newTestMatch("newer", 3, base.Add(time.Second))
			otherSize := newTestMatch("other-size", 2, base)
			full := newTestMatch("full", 2, base)
			full.AddPlayer("p1", "A", 0, base)
			full.AddPlayer("p2", "B", 0, base)

			otherTopic := models.NewMatch("other-topic", models.Topic{Course: "x", Unit: "y", Career: "z"}, 3, nil, base)

			for _, m := range []*models.Match{newer, older, otherSize, full, otherTopic} {
				require.NoError(t, store.CreateMatch(ctx, m))
			}

			open, err := store.FindOpenMatches(ctx, testTopic, 3, 10)
			require.NoError(t, err)
			require.Len(t, open, 2)
			assert.Equal(t, "older", open[0].ID)
			assert.Equal(t, "newer", open[1].ID)

			limited, err := store.FindOpenMatches(ctx, testTopic, 3, 1)
			require.NoError(t, err)
			assert.Len(t, limited, 1)

			// 시작된 방은 목록에서 빠짐
			_, err = store.UpdateMatch(ctx, "older", func(m *models.Match) error {
				m.Status = models.MatchStatusActive
				return nil
			})
			require.NoError(t, err)

			open, err = store.FindOpenMatches(ctx, testTopic, 3, 10)
			require.NoError(t, err)
			require.Len(t, open, 1)
			assert.Equal(t, "newer", open[0].ID)

			active, err := store.ListMatchesByStatus(ctx, models.MatchStatusActive, 0)
			require.NoError(t, err)
			require.Len(t, active, 1)
			assert.Equal(t, "older", active[0].ID)
		})
	}
}

func TestMatchStore_WatchMatch(t *testing.T) {
	for name, newStore := range matchStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()
			now := time.Now()

			require.NoError(t, store.CreateMatch(ctx, newTestMatch("match-1", 2, now)))

			sub, err := store.WatchMatch(ctx, "match-1")
			require.NoError(t, err)
			defer sub.Close()

			// 첫 전달은 현재 문서
			first := receiveMatch(t, sub)
			assert.Equal(t, int64(1), first.Revision)

			_, err = store.UpdateMatch(ctx, "match-1", func(m *models.Match) error {
				m.AddPlayer("p1", "Alice", 0, now)
				return nil
			})
			require.NoError(t, err)

			second := receiveMatch(t, sub)
			assert.Equal(t, int64(2), second.Revision)
			assert.True(t, second.HasPlayer("p1"))

			require.NoError(t, sub.Close())
			require.NoError(t, sub.Close())

			_, open := <-sub.Updates()
			assert.False(t, open)

			_, err = store.WatchMatch(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMatchStore_WatchMatchSkipsToLatest(t *testing.T) {
	for name, newStore := range matchStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()
			now := time.Now()

			require.NoError(t, store.CreateMatch(ctx, newTestMatch("match-1", 5, now)))

			sub, err := store.WatchMatch(ctx, "match-1")
			require.NoError(t, err)
			defer sub.Close()

			for i := 0; i < 4; i++ {
				id := fmt.Sprintf("p%d", i)
				_, err := store.UpdateMatch(ctx, "match-1", func(m *models.Match) error {
					m.AddPlayer(id, id, 0, now)
					return nil
				})
				require.NoError(t, err)
			}

			// 느린 소비자도 결국 최신 revision 을 받음
			var last *models.Match
			require.Eventually(t, func() bool {
				select {
				case m := <-sub.Updates():
					last = m
				default:
				}
				return last != nil && last.Revision == 5
			}, 2*time.Second, 10*time.Millisecond)
			assert.Len(t, last.PlayerIDs, 4)
		})
	}
}

func TestMatchStore_WatchMatchClosesOnContextCancel(t *testing.T) {
	for name, newStore := range matchStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.CreateMatch(context.Background(), newTestMatch("match-1", 2, time.Now())))

			ctx, cancel := context.WithCancel(context.Background())
			sub, err := store.WatchMatch(ctx, "match-1")
			require.NoError(t, err)

			receiveMatch(t, sub)
			cancel()

			require.Eventually(t, func() bool {
				select {
				case _, open := <-sub.Updates():
					return !open
				default:
					return false
				}
			}, 2*time.Second, 10*time.Millisecond)
		})
	}
}

func TestMemoryMatchRepository_SubscriberCleanup(t *testing.T) {
	store := NewMemoryMatchRepository()
	ctx := context.Background()
	require.NoError(t, store.CreateMatch(ctx, newTestMatch("match-1", 2, time.Now())))

	sub, err := store.WatchMatch(ctx, "match-1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.SubscriberCount("match-1"))

	require.NoError(t, sub.Close())
	assert.Equal(t, 0, store.SubscriberCount("match-1"))
}

func receiveMatch(t *testing.T, sub MatchSubscription) *models.Match {
	t.Helper()
	select {
	case m, ok := <-sub.Updates():
		require.True(t, ok, "subscription closed")
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for match update")
		return nil
	}
}
