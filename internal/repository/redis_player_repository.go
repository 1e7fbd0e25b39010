package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisPlayerRepository 플레이어당 해시 하나, 필드 값은 JSON 인코딩
// MergeUpdate는 변경 필드만 HSET 한다.
type RedisPlayerRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisPlayerRepository Redis 저장소 생성
func NewRedisPlayerRepository(client *redis.Client) *RedisPlayerRepository {
	return &RedisPlayerRepository{client: client, prefix: "player:"}
}

func (r *RedisPlayerRepository) key(id string) string {
	return r.prefix + id
}

// Get 플레이어 조회
func (r *RedisPlayerRepository) Get(ctx context.Context, id string) (*models.Player, error) {
	raw, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrPlayerNotFound
	}

	fields := models.PlayerFields{}
	for name, encoded := range raw {
		var value interface{}
		if err := json.Unmarshal([]byte(encoded), &value); err != nil {
			return nil, fmt.Errorf("failed to decode field %s: %w", name, err)
		}
		fields[name] = value
	}

	player := &models.Player{ID: id}
	if err := player.Apply(fields); err != nil {
		return nil, fmt.Errorf("failed to load player %s: %w", id, err)
	}
	return player, nil
}

// Create 플레이어 생성 (WATCH 로 중복 생성 방지)
func (r *RedisPlayerRepository) Create(ctx context.Context, player models.Player) error {
	if player.ID == "" {
		return ErrInvalidPlayer
	}

	fields, err := player.WithDefaults().Fields()
	if err != nil {
		return err
	}
	values, err := encodeFields(fields)
	if err != nil {
		return err
	}

	key := r.key(player.ID)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrPlayerExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, values)
			return nil
		})
		return err
	}, key)
	if err == ErrPlayerExists {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to create player: %w", err)
	}
	return nil
}

// MergeUpdate 변경 필드만 기록. 존재하지 않는 플레이어는 생성하지 않는다.
func (r *RedisPlayerRepository) MergeUpdate(ctx context.Context, id string, fields models.PlayerFields) error {
	if err := fields.Validate(); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	values, err := encodeFields(fields)
	if err != nil {
		return err
	}

	key := r.key(id)
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check player: %w", err)
	}
	if n == 0 {
		return ErrPlayerNotFound
	}
	if err := r.client.HSet(ctx, key, values).Err(); err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}
	return nil
}

func encodeFields(fields models.PlayerFields) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(fields))
	for name, value := range fields {
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode field %s: %w", name, err)
		}
		values[name] = string(encoded)
	}
	return values, nil
}
