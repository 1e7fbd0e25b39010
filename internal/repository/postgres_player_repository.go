package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/models"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/database"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// PostgresPlayerRepository 속성을 JSONB 한 컬럼에 저장
// MergeUpdate 는 attributes || patch 로 변경 필드만 덮어쓴다.
type PostgresPlayerRepository struct {
	db *database.DB
}

func NewPostgresPlayerRepository(db *database.DB) *PostgresPlayerRepository {
	return &PostgresPlayerRepository{db: db}
}

// EnsureSchema players 테이블 생성
func (r *PostgresPlayerRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS players (
			id         TEXT PRIMARY KEY,
			attributes JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create players table: %w", err)
	}
	return nil
}

// Get 플레이어 조회
func (r *PostgresPlayerRepository) Get(ctx context.Context, id string) (*models.Player, error) {
	query := `SELECT attributes FROM players WHERE id = $1`

	var raw []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	player := &models.Player{}
	if err := json.Unmarshal(raw, player); err != nil {
		return nil, fmt.Errorf("failed to decode player %s: %w", id, err)
	}
	player.ID = id
	return player, nil
}

// Create 플레이어 생성
func (r *PostgresPlayerRepository) Create(ctx context.Context, player models.Player) error {
	if player.ID == "" {
		return ErrInvalidPlayer
	}

	fields, err := player.WithDefaults().Fields()
	if err != nil {
		return err
	}
	attributes, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode player: %w", err)
	}

	query := `INSERT INTO players (id, attributes) VALUES ($1, $2::jsonb)`
	if _, err := r.db.ExecContext(ctx, query, player.ID, string(attributes)); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrPlayerExists
		}
		return fmt.Errorf("failed to create player: %w", err)
	}
	return nil
}

// MergeUpdate 변경 필드 병합
func (r *PostgresPlayerRepository) MergeUpdate(ctx context.Context, id string, fields models.PlayerFields) error {
	if err := fields.Validate(); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode patch: %w", err)
	}

	query := `
		UPDATE players
		SET attributes = attributes || $2::jsonb,
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, string(patch))
	if err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ErrPlayerNotFound
	}
	return nil
}
