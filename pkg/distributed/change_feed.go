package distributed

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ChangeFeed Redis Pub/Sub 기반 문서 변경 알림. 채널 하나당 문서 하나
type ChangeFeed struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewChangeFeed prefix 예: "quiz_matches:changes:"
func NewChangeFeed(client *redis.Client, prefix string, logger *zap.Logger) *ChangeFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeFeed{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Channel 문서 ID 의 채널 이름 (트랜잭션 안에서 PUBLISH 할 때 사용)
func (f *ChangeFeed) Channel(id string) string {
	return f.prefix + id
}

// Publish 변경 알림 발행
func (f *ChangeFeed) Publish(ctx context.Context, id string, payload []byte) error {
	if err := f.client.Publish(ctx, f.Channel(id), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}
	return nil
}

// FeedListener 구독 핸들
type FeedListener struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Listen 구독이 확인된 뒤 반환. handler 는 수신 고루틴에서 순서대로 호출됨
func (f *ChangeFeed) Listen(ctx context.Context, id string, handler func(payload []byte)) (*FeedListener, error) {
	subCtx, cancel := context.WithCancel(ctx)
	pubsub := f.client.Subscribe(subCtx, f.Channel(id))

	// 구독 확인
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	l := &FeedListener{
		pubsub: pubsub,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	f.logger.Debug("Change feed subscribed", zap.String("channel", f.Channel(id)))

	go func() {
		defer close(l.done)
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg == nil {
					continue
				}
				handler([]byte(msg.Payload))
			case <-subCtx.Done():
				return
			}
		}
	}()

	return l, nil
}

// Done 수신 루프 종료 시 닫힘
func (l *FeedListener) Done() <-chan struct{} {
	return l.done
}

// Close 구독 해제
func (l *FeedListener) Close() error {
	var err error
	l.once.Do(func() {
		l.cancel()
		err = l.pubsub.Close()
	})
	return err
}
