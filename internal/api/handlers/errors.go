package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hanningtontech/nurse-connect-app-sub000/internal/service"
)

// 상태 충돌 (요청 자체는 올바르지만 현재 상태와 맞지 않음)
var conflictErrors = []error{
	service.ErrMatchFull,
	service.ErrMatchNotJoinable,
	service.ErrMatchNotActive,
	service.ErrMatchCompleted,
	service.ErrQuestionCompleted,
	service.ErrQuestionNotCompleted,
	service.ErrAlreadyAnswered,
	service.ErrTicketNotWaiting,
}

// statusFor 서비스 에러 → HTTP 상태 코드
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrMatchmakingTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden
	case isConflict(err):
		return http.StatusConflict
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func isConflict(err error) bool {
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// respondError 에러 응답. 5xx 는 내부 메시지를 숨김
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	body := gin.H{"error": err.Error()}
	switch status {
	case http.StatusServiceUnavailable:
		body = gin.H{"error": "Backend temporarily unavailable", "retryable": true}
	case http.StatusInternalServerError:
		body = gin.H{"error": "Internal server error"}
	case http.StatusRequestTimeout:
		body = gin.H{"error": "Matchmaking timed out", "retryable": true}
	}

	c.AbortWithStatusJSON(status, body)
}

func bindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Player not authenticated"})
}
