package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
)

// tokenBucketScript 토큰 버킷 한 번 소비 (원자적)
// KEYS[1] 버킷 해시, ARGV: limit, window(ms), now(ms)
// 반환: {allowed, remaining, reset(ms)}
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])

	local tokens = tonumber(redis.call('HGET', key, 'tokens'))
	local last = tonumber(redis.call('HGET', key, 'ts'))
	if tokens == nil or last == nil then
		tokens = limit
		last = now
	end

	local elapsed = math.max(0, now - last)
	tokens = math.min(limit, tokens + elapsed * limit / window)

	local allowed = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	end

	redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', tostring(now))
	redis.call('PEXPIRE', key, window * 2)

	local reset = now + math.ceil((limit - tokens) * window / limit)
	return {allowed, math.floor(tokens), reset}
`)

// RedisRateLimiter Redis 기반 분산 Rate Limiter (Token Bucket 알고리즘)
type RedisRateLimiter struct {
	client       *redis.Client
	clock        clock.Clock
	keyPrefix    string
	defaultLimit int
	defaultTTL   time.Duration
}

// RedisRateLimiterConfig Redis Rate Limiter 설정
type RedisRateLimiterConfig struct {
	KeyPrefix    string        // 키 접두사 (예: "sbmm:ratelimit:")
	DefaultLimit int           // 기본 요청 제한
	DefaultTTL   time.Duration // 기본 윈도우 크기
	Clock        clock.Clock
}

// RateLimitInfo 응답 헤더용 정보
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetTime time.Time
}

// NewRedisRateLimiter 공유 클라이언트 위에 Rate Limiter 생성
func NewRedisRateLimiter(client *redis.Client, config RedisRateLimiterConfig) *RedisRateLimiter {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "sbmm:ratelimit:"
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 60
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = time.Minute
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}

	return &RedisRateLimiter{
		client:       client,
		clock:        config.Clock,
		keyPrefix:    config.KeyPrefix,
		defaultLimit: config.DefaultLimit,
		defaultTTL:   config.DefaultTTL,
	}
}

// Allow 요청 허용 여부 확인
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	allowed, _, err := r.AllowWithInfo(ctx, key, limit, window)
	return allowed, err
}

// AllowWithInfo 요청 허용 여부와 상세 정보 반환
func (r *RedisRateLimiter) AllowWithInfo(ctx context.Context, key string, limit int, window time.Duration) (bool, *RateLimitInfo, error) {
	if limit <= 0 {
		limit = r.defaultLimit
	}
	if window <= 0 {
		window = r.defaultTTL
	}

	now := r.clock.Now().UnixMilli()
	result, err := tokenBucketScript.Run(ctx, r.client, []string{r.keyPrefix + key}, limit, window.Milliseconds(), now).Int64Slice()
	if err != nil {
		return false, nil, fmt.Errorf("redis script execution failed: %w", err)
	}
	if len(result) < 3 {
		return false, nil, fmt.Errorf("invalid script result: %v", result)
	}

	info := &RateLimitInfo{
		Limit:     limit,
		Remaining: int(result[1]),
		ResetTime: time.UnixMilli(result[2]),
	}
	return result[0] == 1, info, nil
}

// Reset 키 초기화
func (r *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}
