package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/api/middleware"
	"github.com/hanningtontech/nurse-connect-app-sub000/internal/service"
	"github.com/hanningtontech/nurse-connect-app-sub000/internal/websocket"
)

// WebSocketHandler 방 구독 WebSocket 연결 처리
type WebSocketHandler struct {
	hub      *websocket.Hub
	matches  *service.MatchService
	upgrader *gorillaws.Upgrader
}

// NewWebSocketHandler WebSocketHandler 생성
func NewWebSocketHandler(hub *websocket.Hub, matches *service.MatchService, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		matches:  matches,
		upgrader: websocket.NewUpgrader(allowedOrigins),
	}
}

// HandleWebSocket 방 변경을 푸시하는 WebSocket 엔드포인트
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	playerID, ok := middleware.PlayerID(c)
	if !ok {
		unauthorized(c)
		return
	}
	matchID := c.Param("id")

	// 업그레이드 후에는 요청 ctx 가 끝나므로 구독은 Close 로만 해제
	listener, err := h.matches.ListenToMatch(context.WithoutCancel(c.Request.Context()), matchID)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := websocket.ServeWs(h.hub, h.upgrader, listener, c.Writer, c.Request, matchID, playerID); err != nil {
		_ = c.Error(err)
	}
}
