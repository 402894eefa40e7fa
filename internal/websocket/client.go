package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	sendBuffer = 16
)

var ErrHubStopped = errors.New("websocket hub is stopped")

// NewUpgrader origins 가 비어 있거나 "*" 를 포함하면 모든 origin 허용
func NewUpgrader(origins []string) *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	_, allowAll := allowed["*"]

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll || len(allowed) == 0 {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// Client 한 방을 구독하는 WebSocket 클라이언트
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan *Message
	done     chan struct{}
	once     sync.Once
	listener MatchListener
	matchID  string
	playerID string
	logger   *zap.Logger
}

// NewClient 클라이언트 생성
func NewClient(hub *Hub, conn *websocket.Conn, listener MatchListener, matchID, playerID string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan *Message, sendBuffer),
		done:     make(chan struct{}),
		listener: listener,
		matchID:  matchID,
		playerID: playerID,
		logger:   hub.logger,
	}
}

// shutdown 구독 해제 후 write 루프 종료 (여러 번 호출해도 안전)
func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		if err := c.listener.Close(); err != nil {
			c.logger.Warn("Failed to close match listener",
				zap.String("matchId", c.matchID),
				zap.Error(err))
		}
	})
}

// forwardUpdates 방 문서를 메시지로 변환해 전송 큐에 넣는다
func (c *Client) forwardUpdates() {
	completed := false
	for m := range c.listener.Updates() {
		if !c.enqueue(&Message{Type: MessageMatchUpdated, MatchID: c.matchID, Match: m}) {
			return
		}
		if m.Status == models.MatchStatusCompleted {
			completed = true
		}
	}

	if completed {
		c.enqueue(&Message{Type: MessageMatchCompleted, MatchID: c.matchID, final: true})
		return
	}
	c.enqueue(&Message{Type: MessageClosed, MatchID: c.matchID, final: true})
}

func (c *Client) enqueue(msg *Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	}
}

// readPump 클라이언트로부터 메시지 읽기 (핑/퐁 유지)
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error",
					zap.String("matchId", c.matchID),
					zap.String("playerId", c.playerID),
					zap.Error(err))
			}
			break
		}
		// 클라이언트로부터 메시지는 무시 (단방향 통신)
	}
}

// writePump 전송 큐의 메시지를 클라이언트에게 전송
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			data, err := json.Marshal(message)
			if err != nil {
				c.logger.Error("Failed to marshal message",
					zap.String("matchId", c.matchID),
					zap.Error(err))
				continue
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("Failed to write message",
					zap.String("matchId", c.matchID),
					zap.String("playerId", c.playerID),
					zap.Error(err))
				return
			}

			if message.final {
				c.writeClose()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.writeClose()
			return
		}
	}
}

func (c *Client) writeClose() {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// ServeWs WebSocket 연결 업그레이드 후 구독 시작. listener 소유권은 Hub 로 넘어간다
func ServeWs(hub *Hub, upgrader *websocket.Upgrader, listener MatchListener, w http.ResponseWriter, r *http.Request, matchID, playerID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		listener.Close()
		hub.logger.Warn("Failed to upgrade WebSocket connection",
			zap.String("matchId", matchID),
			zap.Error(err))
		return err
	}

	client := NewClient(hub, conn, listener, matchID, playerID)
	if !hub.add(client) {
		client.shutdown()
		conn.Close()
		return ErrHubStopped
	}

	go client.writePump()
	go client.readPump()
	go client.forwardUpdates()
	return nil
}
