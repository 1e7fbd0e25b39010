package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/service"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/logger"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/transport"
	"github.com/gin-gonic/gin"
)

const controlPublishTimeout = 2 * time.Second

// ConstraintHandler 매칭 제약 조회/수정
type ConstraintHandler struct {
	store     *service.ConstraintStore
	transport transport.Transport
}

// NewConstraintHandler ConstraintHandler 생성. tr 이 있으면 수정 사항을 제어 토픽으로도 전파한다.
func NewConstraintHandler(store *service.ConstraintStore, tr transport.Transport) *ConstraintHandler {
	return &ConstraintHandler{store: store, transport: tr}
}

// GetConstraints 현재 스냅샷
func (h *ConstraintHandler) GetConstraints(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"constraints": h.store.Get()})
}

// UpdateConstraints 부분 수정. 잘못된 키/값은 건너뛴다.
func (h *ConstraintHandler) UpdateConstraints(c *gin.Context) {
	var values map[string]float64
	if err := c.ShouldBindJSON(&values); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(values) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no constraint values given"})
		return
	}

	applied, err := h.store.Update(values)
	if len(applied) == 0 {
		message := "no valid constraint values"
		if err != nil {
			message = err.Error()
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": message})
		return
	}

	h.propagate(c.Request.Context(), applied, values)

	response := gin.H{
		"applied":     applied,
		"constraints": h.store.Get(),
	}
	if err != nil {
		response["warning"] = err.Error()
	}
	c.JSON(http.StatusOK, response)
}

// propagate 다른 인스턴스도 같은 값을 받도록 제어 토픽에 발행 (실패해도 로컬 반영은 유지)
func (h *ConstraintHandler) propagate(ctx context.Context, applied []string, values map[string]float64) {
	if h.transport == nil {
		return
	}
	message := make(map[string]float64, len(applied))
	for _, key := range applied {
		message[key] = values[key]
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, controlPublishTimeout)
	defer cancel()
	if err := h.transport.Publish(ctx, transport.ControlTopic, payload); err != nil {
		logger.Warn("Failed to publish constraint update", "error", err)
	}
}
