package handlers

import (
	"net/http"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/service"
	"github.com/gin-gonic/gin"
)

// HealthHandler 헬스 체크
type HealthHandler struct {
	matchmaking *service.MatchmakingService
}

// NewHealthHandler HealthHandler 생성
func NewHealthHandler(matchmaking *service.MatchmakingService) *HealthHandler {
	return &HealthHandler{matchmaking: matchmaking}
}

// HealthCheck godoc
// @Summary Health check
// @Description Scheduler state and per-region queues
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{} "Server is healthy"
// @Failure 503 {object} map[string]interface{} "Scheduler stopped"
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	snapshot := h.matchmaking.Snapshot()

	status, code := "ok", http.StatusOK
	if !snapshot.Running {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"service":   "sbmm-engine",
		"scheduler": snapshot,
	})
}
