package handlers

import (
	"errors"
	"net/http"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/models"
	"github.com/PubNubDevelopers/SBMM-Engine/internal/repository"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PlayerHandler 플레이어 레코드
type PlayerHandler struct {
	players repository.PlayerRepository
}

// NewPlayerHandler PlayerHandler 생성
func NewPlayerHandler(players repository.PlayerRepository) *PlayerHandler {
	return &PlayerHandler{players: players}
}

type CreatePlayerRequest struct {
	ID          string               `json:"id"`
	SkillRating float64              `json:"skillRating" binding:"gte=0"`
	Region      string               `json:"region" binding:"required"`
	LatencyMs   int                  `json:"latencyMs" binding:"gte=0"`
	Toxicity    models.ToxicityLevel `json:"toxicityLevel"`
	PlayStyle   models.PlayStyle     `json:"playStyle"`
	HiddenSkill float64              `json:"hiddenSkill" binding:"gte=0,lte=1"`
}

// CreatePlayer 플레이어 생성 (id 가 없으면 발급)
func (h *PlayerHandler) CreatePlayer(c *gin.Context) {
	var req CreatePlayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.SkillRating == 0 {
		req.SkillRating = 1000
	}

	player := models.Player{
		ID:            req.ID,
		SkillRating:   req.SkillRating,
		Region:        req.Region,
		LatencyMs:     req.LatencyMs,
		ToxicityLevel: req.Toxicity,
		PlayStyle:     req.PlayStyle,
		HiddenSkill:   req.HiddenSkill,
	}.WithDefaults()

	if err := h.players.Create(c.Request.Context(), player); err != nil {
		switch {
		case errors.Is(err, repository.ErrPlayerExists):
			c.JSON(http.StatusConflict, gin.H{"error": "Player already exists"})
		case errors.Is(err, repository.ErrInvalidPlayer):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to create player", "playerId", req.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create player"})
		}
		return
	}

	logger.Info("Player created", "playerId", player.ID, "region", player.Region)
	c.JSON(http.StatusCreated, publicPlayer(player))
}

// GetPlayer 플레이어 조회
func (h *PlayerHandler) GetPlayer(c *gin.Context) {
	player, err := h.players.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrPlayerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Player not found"})
			return
		}
		logger.Error("Failed to get player", "playerId", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get player"})
		return
	}
	c.JSON(http.StatusOK, publicPlayer(*player))
}

// publicPlayer 숨은 실력은 노출하지 않는다
func publicPlayer(p models.Player) gin.H {
	return gin.H{
		"id":              p.ID,
		"skillRating":     p.SkillRating,
		"region":          p.Region,
		"latencyMs":       p.LatencyMs,
		"toxicityLevel":   p.ToxicityLevel,
		"playStyle":       p.PlayStyle,
		"consecutiveWins": p.ConsecutiveWins,
		"confirmed":       p.Confirmed,
		"punished":        p.Punished,
		"searching":       p.Searching,
	}
}
