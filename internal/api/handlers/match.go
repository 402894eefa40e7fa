package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/api/middleware"
	"github.com/hanningtontech/nurse-connect-app-sub000/internal/service"
)

type MatchHandler struct {
	matches     *service.MatchService
	coordinator *service.TurnCoordinator
}

func NewMatchHandler(matches *service.MatchService, coordinator *service.TurnCoordinator) *MatchHandler {
	return &MatchHandler{
		matches:     matches,
		coordinator: coordinator,
	}
}

type JoinRequest struct {
	Rank int `json:"rank"`
}

type ReadyRequest struct {
	Ready *bool `json:"ready" binding:"required"`
}

type AnswerRequest struct {
	OptionIndex *int `json:"optionIndex" binding:"required"`
}

// GetMatch 방 상태 조회
func (h *MatchHandler) GetMatch(c *gin.Context) {
	match, err := h.matches.GetMatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"match": match})
}

// Join 지정한 방에 참가
func (h *MatchHandler) Join(c *gin.Context) {
	playerID, ok := middleware.PlayerID(c)
	if !ok {
		unauthorized(c)
		return
	}

	var req JoinRequest
	// 본문은 선택
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	match, err := h.matches.Join(c.Request.Context(), c.Param("id"), service.PlayerInfo{
		ID:   playerID,
		Name: middleware.PlayerName(c),
		Rank: req.Rank,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"match": match})
}

// Ready ready 상태 변경
func (h *MatchHandler) Ready(c *gin.Context) {
	playerID, ok := middleware.PlayerID(c)
	if !ok {
		unauthorized(c)
		return
	}

	var req ReadyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	match, err := h.matches.SetPlayerReady(c.Request.Context(), c.Param("id"), playerID, *req.Ready)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"match": match})
}

// Answer 현재 문제 답안 제출. 오답도 200 으로 결과를 돌려준다
func (h *MatchHandler) Answer(c *gin.Context) {
	playerID, ok := middleware.PlayerID(c)
	if !ok {
		unauthorized(c)
		return
	}

	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.coordinator.SubmitAnswer(c.Request.Context(), c.Param("id"), playerID, *req.OptionIndex)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Next 다음 문제 투표
func (h *MatchHandler) Next(c *gin.Context) {
	playerID, ok := middleware.PlayerID(c)
	if !ok {
		unauthorized(c)
		return
	}

	match, err := h.coordinator.AdvanceToNextQuestion(c.Request.Context(), c.Param("id"), playerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"match": match})
}

// Leave 방 나가기 (진행 중이면 기권)
func (h *MatchHandler) Leave(c *gin.Context) {
	playerID, ok := middleware.PlayerID(c)
	if !ok {
		unauthorized(c)
		return
	}

	match, err := h.matches.LeaveMatch(c.Request.Context(), c.Param("id"), playerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"match": match})
}

// Question 현재 문제 (정답 제외)
func (h *MatchHandler) Question(c *gin.Context) {
	view, err := h.coordinator.CurrentQuestion(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"question": view})
}
