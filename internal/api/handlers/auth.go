package handlers

import (
	"errors"
	"net/http"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/repository"
	jwtutil "github.com/PubNubDevelopers/SBMM-Engine/pkg/jwt"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/logger"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	players    repository.PlayerRepository
	jwtManager *jwtutil.JWTManager
}

// NewAuthHandler jwtManager 가 nil 이면 토큰 발급 비활성
func NewAuthHandler(players repository.PlayerRepository, jwtManager *jwtutil.JWTManager) *AuthHandler {
	return &AuthHandler{
		players:    players,
		jwtManager: jwtManager,
	}
}

type TokenRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
}

type TokenResponse struct {
	Token    string `json:"token"`
	PlayerID string `json:"playerId"`
	Region   string `json:"region"`
}

// IssueToken 등록된 플레이어에게 토큰 발급
func (h *AuthHandler) IssueToken(c *gin.Context) {
	if h.jwtManager == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Authentication is disabled"})
		return
	}

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	player, err := h.players.Get(c.Request.Context(), req.PlayerID)
	if err != nil {
		if errors.Is(err, repository.ErrPlayerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Player not found"})
			return
		}
		logger.Error("Failed to load player", "playerId", req.PlayerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	token, err := h.jwtManager.Generate(player.ID, player.Region)
	if err != nil {
		logger.Error("Failed to generate token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	logger.Info("Token issued", "playerId", player.ID)
	c.JSON(http.StatusOK, TokenResponse{
		Token:    token,
		PlayerID: player.ID,
		Region:   player.Region,
	})
}
