package handlers

import (
	"net/http"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/api/middleware"
	"github.com/PubNubDevelopers/SBMM-Engine/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WebSocketHandler WebSocket 연결 처리
type WebSocketHandler struct {
	hub *websocket.Hub
}

// NewWebSocketHandler WebSocketHandler 생성
func NewWebSocketHandler(hub *websocket.Hub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
	}
}

// HandleWebSocket WebSocket 연결 엔드포인트.
// ?monitor=true 이면 모니터 피드를 받는다.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	monitor := c.Query("monitor") == "true"

	playerID, ok := middleware.AuthenticatedPlayer(c)
	if !ok {
		playerID = c.Query("playerId")
	}
	if playerID == "" {
		if !monitor {
			c.JSON(http.StatusBadRequest, gin.H{"error": "playerId is required"})
			return
		}
		playerID = "monitor-" + uuid.NewString()
	}

	websocket.ServeWs(h.hub, c.Writer, c.Request, playerID, monitor)
}
