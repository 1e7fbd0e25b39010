package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/models"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

// Backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	// Server
	Port     string `koanf:"port"`
	Env      string `koanf:"env"`
	LogLevel string `koanf:"log_level"`

	// Backends
	Store       string `koanf:"store"`
	Transport   string `koanf:"transport"`
	RedisURL    string `koanf:"redis_url"`
	DatabaseURL string `koanf:"database_url"`

	// JWT (비어 있으면 인증 비활성)
	JWTSecret     string        `koanf:"jwt_secret"`
	JWTExpiration time.Duration `koanf:"jwt_expiration"`

	// Rate limit (초당 요청, 버스트)
	RateLimitPerSecond int64 `koanf:"rate_limit_per_second"`
	RateLimitBurst     int64 `koanf:"rate_limit_burst"`

	// Matchmaking
	Regions          []string      `koanf:"regions"`
	TickInterval     time.Duration `koanf:"tick_interval"`
	ConfirmWindow    time.Duration `koanf:"confirm_window"`
	Cooldown         time.Duration `koanf:"cooldown"`
	PunishCooldown   time.Duration `koanf:"punish_cooldown"`
	MatchDurationMin time.Duration `koanf:"match_duration_min"`
	MatchDurationMax time.Duration `koanf:"match_duration_max"`
	CandidateLimit   int           `koanf:"candidate_limit"`
	TickLeaseTTL     time.Duration `koanf:"tick_lease_ttl"`
	RatingDrift      bool          `koanf:"rating_drift"`

	// Retry / IO
	IOTimeout     time.Duration `koanf:"io_timeout"`
	RetryAttempts uint          `koanf:"retry_attempts"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
	RetryMaxDelay time.Duration `koanf:"retry_max_delay"`

	// Constraint defaults
	MaxSkillGap            float64 `koanf:"max_skill_gap"`
	SkillWeight            float64 `koanf:"skill_weight"`
	RegionPenalty          float64 `koanf:"region_penalty"`
	LatencyWeight          float64 `koanf:"latency_weight"`
	RatingAdjustmentWeight float64 `koanf:"rating_adjustment_weight"`
}

// New 기본값
func New() *Config {
	c := models.DefaultConstraints()
	return &Config{
		Port:                   "8080",
		Env:                    "development",
		LogLevel:               "info",
		Store:                  BackendMemory,
		Transport:              BackendMemory,
		JWTExpiration:          24 * time.Hour,
		RateLimitPerSecond:     10,
		RateLimitBurst:         20,
		Regions:                []string{"us-east-1", "us-west-1", "eu-central-1", "ap-southeast-1"},
		TickInterval:           5 * time.Second,
		ConfirmWindow:          30 * time.Second,
		Cooldown:               30 * time.Second,
		PunishCooldown:         2 * time.Minute,
		MatchDurationMin:       10 * time.Second,
		MatchDurationMax:       45 * time.Second,
		CandidateLimit:         10,
		TickLeaseTTL:           30 * time.Second,
		IOTimeout:              3 * time.Second,
		RetryAttempts:          3,
		RetryDelay:             500 * time.Millisecond,
		RetryMaxDelay:          2 * time.Second,
		MaxSkillGap:            c.MaxSkillGap,
		SkillWeight:            c.SkillWeight,
		RegionPenalty:          c.RegionPenalty,
		LatencyWeight:          c.LatencyWeight,
		RatingAdjustmentWeight: c.RatingAdjustmentWeight,
	}
}

// Load 기본값 → .env → YAML(SBMM_CONFIG) → 환경변수(SBMM_) 순으로 덮어쓴다
func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	k := koanf.New(".")

	if path := os.Getenv("SBMM_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// SBMM_TICK_INTERVAL -> tick_interval, SBMM_REGIONS=a,b -> []string
	envProvider := env.ProviderWithValue("SBMM_", ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(strings.TrimPrefix(key, "SBMM_"))
		switch key {
		case "config":
			return "", nil
		case "regions":
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := New()
	if k.Exists("regions") {
		// 슬라이스는 기본값에 덧씌워지지 않도록 비운다
		cfg.Regions = nil
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 시작 전에 잘못된 설정을 거부
func (c *Config) Validate() error {
	var problems []string

	switch c.Store {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			problems = append(problems, "redis_url is required for the redis store")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, "database_url is required for the postgres store")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store %q", c.Store))
	}

	switch c.Transport {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			problems = append(problems, "redis_url is required for the redis transport")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown transport %q", c.Transport))
	}

	if len(c.Regions) == 0 {
		problems = append(problems, "at least one region is required")
	}
	for name, d := range map[string]time.Duration{
		"tick_interval":  c.TickInterval,
		"confirm_window": c.ConfirmWindow,
		"io_timeout":     c.IOTimeout,
	} {
		if d <= 0 {
			problems = append(problems, name+" must be positive")
		}
	}
	if c.MatchDurationMax < c.MatchDurationMin {
		problems = append(problems, "match_duration_max must not be below match_duration_min")
	}
	if c.RetryAttempts == 0 {
		problems = append(problems, "retry_attempts must be at least 1")
	}
	if _, err := c.Constraints(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Constraints 설정값으로 초기 제약 스냅샷 생성
func (c *Config) Constraints() (models.Constraints, error) {
	out := models.Constraints{}
	var err error
	for key, value := range map[string]float64{
		models.ConstraintMaxSkillGap:            c.MaxSkillGap,
		models.ConstraintSkillWeight:            c.SkillWeight,
		models.ConstraintRegionPenalty:          c.RegionPenalty,
		models.ConstraintLatencyWeight:          c.LatencyWeight,
		models.ConstraintRatingAdjustmentWeight: c.RatingAdjustmentWeight,
	} {
		if out, err = out.With(key, value); err != nil {
			return models.Constraints{}, err
		}
	}
	return out, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// UsesRedis reports whether any backend needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.Store == BackendRedis || c.Transport == BackendRedis
}
