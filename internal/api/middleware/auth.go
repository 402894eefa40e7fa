package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	jwtutil "github.com/hanningtontech/nurse-connect-app-sub000/pkg/jwt"
)

// Context keys set by Auth
const (
	ContextPlayerID   = "playerId"
	ContextPlayerName = "playerName"
)

// Auth JWT 인증 미들웨어. 브라우저 WebSocket 은 헤더를 못 붙이므로 ?token= 도 허용
func Auth(jwtManager *jwtutil.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			return
		}

		claims, err := jwtManager.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		c.Set(ContextPlayerID, claims.PlayerID)
		c.Set(ContextPlayerName, claims.PlayerName)

		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		// "Bearer <token>" 형식 파싱
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

// PlayerID 인증된 플레이어 ID
func PlayerID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextPlayerID)
	return id, id != ""
}

// PlayerName 인증된 플레이어 이름
func PlayerName(c *gin.Context) string {
	return c.GetString(ContextPlayerName)
}
