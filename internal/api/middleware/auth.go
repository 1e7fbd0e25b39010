package middleware

import (
	"net/http"
	"strings"

	jwtutil "github.com/PubNubDevelopers/SBMM-Engine/pkg/jwt"
	"github.com/gin-gonic/gin"
)

// PlayerIDKey gin context key set by Auth
const PlayerIDKey = "playerId"

// Auth JWT 인증 미들웨어. manager 가 nil 이면 인증 없이 통과 (개발 모드).
func Auth(manager *jwtutil.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if manager == nil {
			c.Next()
			return
		}

		// Authorization 헤더, 없으면 ?token= (웹소켓 핸드셰이크용)
		token := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error": "Invalid authorization header format",
				})
				c.Abort()
				return
			}
			token = parts[1]
		}

		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			c.Abort()
			return
		}

		claims, err := manager.Verify(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set(PlayerIDKey, claims.PlayerID)
		c.Next()
	}
}

// AuthenticatedPlayer 인증된 플레이어 id (인증 비활성이면 false)
func AuthenticatedPlayer(c *gin.Context) (string, bool) {
	id := c.GetString(PlayerIDKey)
	return id, id != ""
}
