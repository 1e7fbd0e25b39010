package handlers

import (
	"errors"
	"net/http"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/api/middleware"
	"github.com/PubNubDevelopers/SBMM-Engine/internal/repository"
	"github.com/PubNubDevelopers/SBMM-Engine/internal/service"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/logger"
	"github.com/gin-gonic/gin"
)

// MatchmakingHandler 매칭 요청 / 대기열 / 확인
type MatchmakingHandler struct {
	matchmaking *service.MatchmakingService
}

// NewMatchmakingHandler MatchmakingHandler 생성
func NewMatchmakingHandler(matchmaking *service.MatchmakingService) *MatchmakingHandler {
	return &MatchmakingHandler{matchmaking: matchmaking}
}

type CandidatesRequest struct {
	PlayerID string `json:"playerId"`
}

type QueueRequest struct {
	PlayerID string `json:"playerId"`
	Region   string `json:"region" binding:"required"`
}

type ConfirmRequest struct {
	PlayerID string `json:"playerId"`
}

// resolvePlayer 인증된 플레이어가 있으면 그것을 쓰고, 본문 id 와 다르면 거부
func resolvePlayer(c *gin.Context, requested string) (string, bool) {
	authenticated, ok := middleware.AuthenticatedPlayer(c)
	if !ok {
		if requested == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "playerId is required"})
			return "", false
		}
		return requested, true
	}
	if requested != "" && requested != authenticated {
		c.JSON(http.StatusForbidden, gin.H{"error": "playerId does not match token"})
		return "", false
	}
	return authenticated, true
}

// RequestCandidates 요청자와 가장 잘 맞는 대기자 목록
func (h *MatchmakingHandler) RequestCandidates(c *gin.Context) {
	var req CandidatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	playerID, ok := resolvePlayer(c, req.PlayerID)
	if !ok {
		return
	}

	candidates, err := h.matchmaking.RankCandidates(c.Request.Context(), playerID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPlayerNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Player not found"})
		case errors.Is(err, service.ErrUnknownRegion):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to rank candidates", "playerId", playerID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rank candidates"})
		}
		return
	}

	message := "Matches found"
	if len(candidates) == 0 {
		message = "No suitable players waiting"
	}
	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"players": candidates,
	})
}

// JoinQueue 지역 대기열 참가
func (h *MatchmakingHandler) JoinQueue(c *gin.Context) {
	var req QueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	playerID, ok := resolvePlayer(c, req.PlayerID)
	if !ok {
		return
	}

	queued, err := h.matchmaking.Join(c.Request.Context(), req.Region, playerID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownRegion):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrPlayerNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Player not found"})
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to join queue", "playerId", playerID, "region", req.Region, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join queue"})
		}
		return
	}

	code := http.StatusAccepted
	if !queued {
		// 이미 대기 중 / 매치 중 / 쿨다운
		code = http.StatusOK
	}
	c.JSON(code, gin.H{
		"playerId": playerID,
		"region":   req.Region,
		"queued":   queued,
		"position": h.matchmaking.QueueLen(req.Region),
	})
}

// LeaveQueue 지역 대기열 이탈
func (h *MatchmakingHandler) LeaveQueue(c *gin.Context) {
	region := c.Param("region")
	playerID, ok := resolvePlayer(c, c.Query("playerId"))
	if !ok {
		return
	}

	if err := h.matchmaking.Leave(c.Request.Context(), region, playerID); err != nil {
		if errors.Is(err, service.ErrUnknownRegion) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Failed to leave queue", "playerId", playerID, "region", region, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to leave queue"})
		return
	}

	c.Status(http.StatusNoContent)
}

// GetQueue 지역 대기열 조회
func (h *MatchmakingHandler) GetQueue(c *gin.Context) {
	region := c.Param("region")
	if !h.matchmaking.HasRegion(region) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown region"})
		return
	}

	snapshot := h.matchmaking.Snapshot()
	waiting := snapshot.Queues[region]
	c.JSON(http.StatusOK, gin.H{
		"region":  region,
		"waiting": waiting,
		"total":   len(waiting),
	})
}

// ListRegions 지역별 대기열 길이
func (h *MatchmakingHandler) ListRegions(c *gin.Context) {
	regions := make([]gin.H, 0, len(h.matchmaking.Regions()))
	for _, region := range h.matchmaking.Regions() {
		regions = append(regions, gin.H{
			"region":  region,
			"waiting": h.matchmaking.QueueLen(region),
		})
	}
	c.JSON(http.StatusOK, gin.H{"regions": regions})
}

// ConfirmMatch 매치 확인
func (h *MatchmakingHandler) ConfirmMatch(c *gin.Context) {
	matchID := c.Param("matchId")

	var req ConfirmRequest
	// 인증된 경우 본문은 생략 가능
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	playerID, ok := resolvePlayer(c, req.PlayerID)
	if !ok {
		return
	}

	if err := h.matchmaking.Confirm(c.Request.Context(), matchID, playerID); err != nil {
		switch {
		case errors.Is(err, service.ErrMatchNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Match not found"})
		case errors.Is(err, service.ErrNotInMatch):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to confirm match", "matchId", matchID, "playerId", playerID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to confirm match"})
		}
		return
	}

	state, _ := h.matchmaking.MatchState(matchID)
	c.JSON(http.StatusAccepted, gin.H{
		"matchId":  matchID,
		"playerId": playerID,
		"state":    state.String(),
	})
}
