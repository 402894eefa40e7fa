package websocket

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
)

// Message types pushed to clients
const (
	MessageMatchUpdated   = "match_updated"
	MessageMatchCompleted = "match_completed"
	MessageClosed         = "subscription_closed"
)

// Message WebSocket 메시지
type Message struct {
	Type    string        `json:"type"`
	MatchID string        `json:"matchId"`
	Match   *models.Match `json:"match,omitempty"`

	// 전송 후 연결 종료
	final bool
}

// MatchListener 방 변경 스트림. Updates 는 구독이 끝나면 닫힌다
type MatchListener interface {
	Updates() <-chan *models.Match
	Close() error
}

// Hub 방별 WebSocket 연결 관리
type Hub struct {
	// matchID -> 연결된 클라이언트
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}

	logger *zap.Logger
}

// NewHub Hub 생성
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		logger:     logger,
	}
}

// Run ctx 가 끝날 때까지 등록/해제 처리. 종료 시 모든 클라이언트를 닫는다
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// registerClient 클라이언트 등록
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.clients[client.matchID]
	if !ok {
		room = make(map[*Client]struct{})
		h.clients[client.matchID] = room
	}
	room[client] = struct{}{}

	h.logger.Info("WebSocket client registered",
		zap.String("matchId", client.matchID),
		zap.String("playerId", client.playerID),
		zap.Int("roomClients", len(room)))
}

// unregisterClient 클라이언트 해제 및 구독 정리
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	room, exists := h.clients[client.matchID]
	if exists {
		if _, ok := room[client]; ok {
			delete(room, client)
			if len(room) == 0 {
				delete(h.clients, client.matchID)
			}
		}
	}
	h.mu.Unlock()

	client.shutdown()

	h.logger.Info("WebSocket client unregistered",
		zap.String("matchId", client.matchID),
		zap.String("playerId", client.playerID))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for _, room := range all {
		for client := range room {
			client.shutdown()
		}
	}
}

// add 등록 요청. Hub 가 멈췄으면 false
func (h *Hub) add(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.stopped:
		return false
	}
}

// remove 해제 요청. Hub 가 멈췄으면 직접 정리
func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
		client.shutdown()
	}
}

// ClientCount 방에 연결된 클라이언트 수
func (h *Hub) ClientCount(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[matchID])
}

// TotalClients 전체 연결 수
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, room := range h.clients {
		total += len(room)
	}
	return total
}
