package distributed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

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

	return client
}

func TestRedisLocker_TryAcquireAndRelease(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	locker := NewRedisLocker(client, "test:lock:")
	ctx := context.Background()

	lease, err := locker.TryAcquire(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, lease)

	// 같은 키는 해제 전까지 획득 불가
	second, err := locker.TryAcquire(ctx, "a")
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.Nil(t, second)

	require.NoError(t, lease.Release(ctx))
	assert.ErrorIs(t, lease.Release(ctx), ErrLockNotHeld)

	third, err := locker.TryAcquire(ctx, "a")
	require.NoError(t, err)
	defer third.Release(ctx)
}

func TestRedisLocker_ExpiredLeaseCannotRelease(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	locker := NewRedisLocker(client, "test:safe:", WithLeaseTTL(300*time.Millisecond))
	ctx := context.Background()

	stale, err := locker.TryAcquire(ctx, "a")
	require.NoError(t, err)

	time.Sleep(400 * time.Millisecond)

	current, err := locker.TryAcquire(ctx, "a")
	require.NoError(t, err)
	defer current.Release(ctx)

	// 만료된 lease 의 주인은 다른 인스턴스의 lease 를 건드릴 수 없음
	assert.ErrorIs(t, stale.Release(ctx), ErrLockNotHeld)
	assert.ErrorIs(t, stale.Extend(ctx), ErrLockNotHeld)

	held, err := current.Held(ctx)
	require.NoError(t, err)
	assert.True(t, held)
}

func TestRedisLocker_LockKeepsLeaseAlive(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	locker := NewRedisLocker(client, "test:keepalive:", WithLeaseTTL(300*time.Millisecond))
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "a")
	require.NoError(t, err)

	// TTL 을 넘겨도 보유 중이면 연장된다
	time.Sleep(700 * time.Millisecond)
	_, err = locker.TryAcquire(ctx, "a")
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	unlock()
	unlock()

	lease, err := locker.TryAcquire(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
}

func TestRedisLocker_LockHonorsContext(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	locker := NewRedisLocker(client, "test:ctx:", WithRetryInterval(10*time.Millisecond))
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlock()

	timeoutCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(timeoutCtx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisLocker_SerializesTopic(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	locker := NewRedisLocker(client, "test:topic:")
	ctx := context.Background()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "nursing|1|rn")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside, "only one holder at a time")
}

func TestLocalLocker(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "a")
	require.NoError(t, err)

	t.Run("다른 키는 독립적", func(t *testing.T) {
		unlockB, err := locker.Lock(ctx, "b")
		require.NoError(t, err)
		unlockB()
	})

	t.Run("같은 키는 ctx 만료까지 대기", func(t *testing.T) {
		timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err := locker.Lock(timeoutCtx, "a")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	unlock()

	unlockAgain, err := locker.Lock(ctx, "a")
	require.NoError(t, err)
	unlockAgain()
}

func TestChangeFeed_PublishListen(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	feed := NewChangeFeed(client, "test:changes:", zap.NewNop())
	ctx := context.Background()

	received := make(chan string, 10)
	listener, err := feed.Listen(ctx, "match-1", func(payload []byte) {
		received <- string(payload)
	})
	require.NoError(t, err)
	defer listener.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, feed.Publish(ctx, "match-1", []byte(fmt.Sprintf("rev-%d", i))))
	}
	// 다른 문서 채널은 수신하지 않음
	require.NoError(t, feed.Publish(ctx, "match-2", []byte("other")))

	for i := 0; i < 3; i++ {
		select {
		case msg := <-received:
			assert.Equal(t, fmt.Sprintf("rev-%d", i), msg)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for rev-%d", i)
		}
	}

	require.NoError(t, listener.Close())
	select {
	case <-listener.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("listener loop did not stop")
	}
}
