package distributed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

// 자신이 획득한 락만 해제
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// 자신이 획득한 락만 TTL 연장
var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	end
	return 0
`)

// RedisLock SET NX 로 얻은 분산 락
type RedisLock struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

// RedisLockManager Redis 분산 락 관리자
type RedisLockManager struct {
	client *redis.Client
	prefix string
}

// NewRedisLockManager Redis Lock Manager 생성
func NewRedisLockManager(client *redis.Client) *RedisLockManager {
	return &RedisLockManager{client: client, prefix: "sbmm:lock:"}
}

// AcquireLock 분산 락 획득 시도 (한 번)
func (m *RedisLockManager) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (*RedisLock, error) {
	key := m.prefix + name
	ok, err := m.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &RedisLock{client: m.client, key: key, owner: owner, ttl: ttl}, nil
}

// Release 락 해제
func (l *RedisLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend 락 TTL 연장
func (l *RedisLock) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, l.client, []string{l.key}, l.owner, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	l.ttl = ttl
	return nil
}

// IsHeld 락이 아직 이 소유자 것인지 확인
func (l *RedisLock) IsHeld(ctx context.Context) (bool, error) {
	value, err := l.client.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == l.owner, nil
}

// TickLease 스케줄러 틱을 여러 프로세스 중 하나만 실행하도록 하는 임대
// TTL은 틱이 비정상 종료되었을 때 락이 남지 않도록 하는 상한
type TickLease struct {
	manager *RedisLockManager
	owner   string
	ttl     time.Duration
}

// NewTickLease 인스턴스 고유 소유자 id로 임대 생성
func NewTickLease(client *redis.Client, ttl time.Duration) *TickLease {
	return &TickLease{
		manager: NewRedisLockManager(client),
		owner:   uuid.New().String(),
		ttl:     ttl,
	}
}

// Acquire returns a release func, or ErrLockNotAcquired when another instance holds the lease.
func (l *TickLease) Acquire(ctx context.Context, name string) (func(context.Context) error, error) {
	lock, err := l.manager.AcquireLock(ctx, name, l.owner, l.ttl)
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}
