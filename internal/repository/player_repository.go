package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/models"
)

var (
	ErrPlayerNotFound = errors.New("player not found")
	ErrPlayerExists   = errors.New("player already exists")
	ErrInvalidPlayer  = errors.New("invalid player")
)

// PlayerRepository 플레이어 레코드 저장소. MergeUpdate는 전달된 필드만 덮어쓴다.
type PlayerRepository interface {
	Get(ctx context.Context, id string) (*models.Player, error)
	Create(ctx context.Context, player models.Player) error
	MergeUpdate(ctx context.Context, id string, fields models.PlayerFields) error
}

// MemoryPlayerRepository 프로세스 내 저장소 (개발/테스트용)
type MemoryPlayerRepository struct {
	mu      sync.RWMutex
	players map[string]models.Player
}

// NewMemoryPlayerRepository 메모리 저장소 생성
func NewMemoryPlayerRepository() *MemoryPlayerRepository {
	return &MemoryPlayerRepository{players: make(map[string]models.Player)}
}

// Get 플레이어 조회 (복사본 반환)
func (r *MemoryPlayerRepository) Get(ctx context.Context, id string) (*models.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	player, ok := r.players[id]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return &player, nil
}

// Create 플레이어 생성
func (r *MemoryPlayerRepository) Create(ctx context.Context, player models.Player) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if player.ID == "" {
		return ErrInvalidPlayer
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.players[player.ID]; exists {
		return ErrPlayerExists
	}
	r.players[player.ID] = player.WithDefaults()
	return nil
}

// MergeUpdate 변경 필드 병합
func (r *MemoryPlayerRepository) MergeUpdate(ctx context.Context, id string, fields models.PlayerFields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fields.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	player, ok := r.players[id]
	if !ok {
		return ErrPlayerNotFound
	}
	if err := player.Apply(fields); err != nil {
		return err
	}
	r.players[id] = player
	return nil
}
