package repository

import (
	"sync"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
)

// latestMatchChannel 느린 소비자는 중간 revision 을 건너뛰지만 항상 최신 문서를 받는다
type latestMatchChannel struct {
	mu        sync.Mutex
	ch        chan *models.Match
	closed    bool
	delivered bool
	revision  int64
	done      chan struct{}
	onClose   func()
}

func newLatestMatchChannel(onClose func()) *latestMatchChannel {
	return &latestMatchChannel{
		ch:      make(chan *models.Match, 1),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// offer 최신 문서 전달 (오래된 revision 은 버림)
func (l *latestMatchChannel) offer(m *models.Match) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if l.delivered && m.Revision <= l.revision {
		return
	}
	l.delivered = true
	l.revision = m.Revision

	select {
	case l.ch <- m:
	default:
		// 아직 읽히지 않은 이전 revision 교체
		select {
		case <-l.ch:
		default:
		}
		l.ch <- m
	}
}

func (l *latestMatchChannel) Updates() <-chan *models.Match {
	return l.ch
}

func (l *latestMatchChannel) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.ch)
	close(l.done)
	l.mu.Unlock()

	if l.onClose != nil {
		l.onClose()
	}
	return nil
}

// closeOnDone ctx 가 취소되면 구독 해제
func (l *latestMatchChannel) closeOnDone(done <-chan struct{}) {
	go func() {
		select {
		case <-done:
			l.Close()
		case <-l.done:
		}
	}()
}
