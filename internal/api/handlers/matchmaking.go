package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/api/middleware"
	"github.com/hanningtontech/nurse-connect-app-sub000/internal/models"
	"github.com/hanningtontech/nurse-connect-app-sub000/internal/service"
)

type MatchmakingHandler struct {
	matchmaking *service.MatchmakingService
}

func NewMatchmakingHandler(matchmaking *service.MatchmakingService) *MatchmakingHandler {
	return &MatchmakingHandler{matchmaking: matchmaking}
}

// FindMatchRequest 매칭 요청 본문. 플레이어 정보는 토큰에서 가져온다
type FindMatchRequest struct {
	Course  string `json:"course" binding:"required"`
	Unit    string `json:"unit" binding:"required"`
	Career  string `json:"career" binding:"required"`
	Players int    `json:"players" binding:"required"`
	Rank    int    `json:"rank"`
}

func (h *MatchmakingHandler) request(c *gin.Context) (service.FindOrCreateRequest, bool) {
	var req FindMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return service.FindOrCreateRequest{}, false
	}
	playerID, ok := middleware.PlayerID(c)
	if !ok {
		unauthorized(c)
		return service.FindOrCreateRequest{}, false
	}

	return service.FindOrCreateRequest{
		Topic:             models.Topic{Course: req.Course, Unit: req.Unit, Career: req.Career},
		TargetPlayerCount: req.Players,
		Player: service.PlayerInfo{
			ID:   playerID,
			Name: middleware.PlayerName(c),
			Rank: req.Rank,
		},
	}, true
}

// Find 열린 방에 참가하거나 새 방 생성
func (h *MatchmakingHandler) Find(c *gin.Context) {
	req, ok := h.request(c)
	if !ok {
		return
	}

	match, err := h.matchmaking.FindOrCreate(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"match": match})
}

// Available 참가 가능한 방 목록
func (h *MatchmakingHandler) Available(c *gin.Context) {
	topic := models.Topic{
		Course: c.Query("course"),
		Unit:   c.Query("unit"),
		Career: c.Query("career"),
	}
	players, err := strconv.Atoi(c.Query("players"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "players must be a number"})
		return
	}
	rank, _ := strconv.Atoi(c.DefaultQuery("rank", "0"))

	if err := service.ValidateTopicTarget(topic, players); err != nil {
		respondError(c, err)
		return
	}

	matches, err := h.matchmaking.FindAvailableMatches(c.Request.Context(), topic, players, rank)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"matches": matches,
		"total":   len(matches),
	})
}

// Queue 열린 방이 없으면 대기열에서 상대를 기다림 (timeout 시 408)
func (h *MatchmakingHandler) Queue(c *gin.Context) {
	req, ok := h.request(c)
	if !ok {
		return
	}

	match, err := h.matchmaking.CreateMatchAndWait(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"match": match})
}

// CreateTicket 대기열 등록만 하고 즉시 반환
func (h *MatchmakingHandler) CreateTicket(c *gin.Context) {
	req, ok := h.request(c)
	if !ok {
		return
	}

	ticket, err := h.matchmaking.Enqueue(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"ticket": ticket})
}

// WaitTicket 본인 티켓의 매칭 결과를 기다림
func (h *MatchmakingHandler) WaitTicket(c *gin.Context) {
	playerID, ok := middleware.PlayerID(c)
	if !ok {
		unauthorized(c)
		return
	}

	ticketID := c.Param("ticketId")
	if _, err := h.matchmaking.GetTicket(c.Request.Context(), ticketID, playerID); err != nil {
		respondError(c, err)
		return
	}

	match, err := h.matchmaking.WaitForMatch(c.Request.Context(), ticketID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"match": match})
}

// CancelTicket 대기 취소
func (h *MatchmakingHandler) CancelTicket(c *gin.Context) {
	playerID, ok := middleware.PlayerID(c)
	if !ok {
		unauthorized(c)
		return
	}

	if err := h.matchmaking.CancelTicket(c.Request.Context(), c.Param("ticketId"), playerID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Ticket cancelled"})
}
