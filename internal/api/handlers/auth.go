package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	jwtutil "github.com/hanningtontech/nurse-connect-app-sub000/pkg/jwt"
	"github.com/hanningtontech/nurse-connect-app-sub000/pkg/logger"
)

type AuthHandler struct {
	jwtManager *jwtutil.JWTManager
}

func NewAuthHandler(jwtManager *jwtutil.JWTManager) *AuthHandler {
	return &AuthHandler{jwtManager: jwtManager}
}

type GuestRequest struct {
	Name string `json:"name" binding:"required,max=40"`
}

type AuthResponse struct {
	Token      string `json:"token"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

// Guest 익명 플레이어 토큰 발급
func (h *AuthHandler) Guest(c *gin.Context) {
	var req GuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	token, claims, err := h.jwtManager.GenerateGuest(req.Name)
	if err != nil {
		if errors.Is(err, jwtutil.ErrEmptyName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Failed to generate token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	logger.Info("Guest player issued", "playerId", claims.PlayerID)

	c.JSON(http.StatusOK, AuthResponse{
		Token:      token,
		PlayerID:   claims.PlayerID,
		PlayerName: claims.PlayerName,
	})
}
