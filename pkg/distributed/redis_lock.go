package distributed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

// token 이 일치할 때만 삭제
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// token 이 일치할 때만 PEXPIRE
var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	end
	return 0
`)

// Lease 한 번의 락 획득. 만료 후에는 다른 인스턴스가 같은 키를 가질 수 있다
type Lease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// Release 자신의 lease 만 해제
func (l *Lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend TTL 을 처음 값으로 되돌림
func (l *Lease) Extend(ctx context.Context) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Held 아직 이 lease 가 키를 소유하는지
func (l *Lease) Held(ctx context.Context) (bool, error) {
	value, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == l.token, nil
}

// RedisLocker 토픽 단위 임계 구역 (여러 인스턴스가 같은 토픽에 방을 중복 생성하지 않도록)
type RedisLocker struct {
	client        *redis.Client
	prefix        string
	ttl           time.Duration
	retryInterval time.Duration
	clock         clockwork.Clock
}

// RedisLockerOption NewRedisLocker 옵션
type RedisLockerOption func(*RedisLocker)

// WithLeaseTTL lease 만료 시간. 보유 중에는 ttl/3 마다 연장된다
func WithLeaseTTL(ttl time.Duration) RedisLockerOption {
	return func(l *RedisLocker) { l.ttl = ttl }
}

// WithRetryInterval 경합 시 재시도 간격
func WithRetryInterval(d time.Duration) RedisLockerOption {
	return func(l *RedisLocker) { l.retryInterval = d }
}

// NewRedisLocker 기본값: TTL 5초, 50ms 간격 재시도
func NewRedisLocker(client *redis.Client, prefix string, opts ...RedisLockerOption) *RedisLocker {
	l := &RedisLocker{
		client:        client,
		prefix:        prefix,
		ttl:           5 * time.Second,
		retryInterval: 50 * time.Millisecond,
		clock:         clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryAcquire SET NX 한 번 시도
func (l *RedisLocker) TryAcquire(ctx context.Context, key string) (*Lease, error) {
	lease := &Lease{
		client: l.client,
		key:    l.prefix + key,
		token:  uuid.NewString(),
		ttl:    l.ttl,
	}

	ok, err := l.client.SetNX(ctx, lease.key, lease.token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", lease.key, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return lease, nil
}

// Lock ctx 가 끝날 때까지 재시도. 반환된 해제 함수를 부를 때까지 lease 를 연장한다
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	for {
		lease, err := l.TryAcquire(ctx, key)
		if err == nil {
			return l.hold(lease), nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.clock.After(l.retryInterval):
		}
	}
}

func (l *RedisLocker) hold(lease *Lease) func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := l.clock.NewTicker(l.ttl / 3)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
				err := lease.Extend(ctx)
				cancel()
				if errors.Is(err, ErrLockNotHeld) {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = lease.Release(ctx)
		})
	}
}

// LocalLocker 단일 프로세스용 키별 뮤텍스
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

// Lock ctx 취소를 존중하는 키별 락
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
