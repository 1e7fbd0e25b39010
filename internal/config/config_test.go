package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SBMM_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.Store)
	assert.Equal(t, 5*time.Second, cfg.TickInterval)
	assert.Equal(t, 30*time.Second, cfg.ConfirmWindow)
	assert.Equal(t, uint(3), cfg.RetryAttempts)
	assert.Len(t, cfg.Regions, 4)

	c, err := cfg.Constraints()
	require.NoError(t, err)
	assert.Equal(t, 200.0, c.MaxSkillGap)
	assert.Equal(t, 1.0, c.SkillWeight)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SBMM_CONFIG", "")
	t.Setenv("SBMM_TICK_INTERVAL", "2s")
	t.Setenv("SBMM_MAX_SKILL_GAP", "350")
	t.Setenv("SBMM_REGIONS", "eu-central-1, ap-southeast-1")
	t.Setenv("SBMM_RETRY_ATTEMPTS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.TickInterval)
	assert.Equal(t, 350.0, cfg.MaxSkillGap)
	assert.Equal(t, []string{"eu-central-1", "ap-southeast-1"}, cfg.Regions)
	assert.Equal(t, uint(5), cfg.RetryAttempts)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sbmm.yaml")
	content := []byte("port: \"9090\"\nconfirm_window: 45s\nregion_penalty: 250\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("SBMM_CONFIG", path)
	t.Setenv("SBMM_PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port, "env wins over file")
	assert.Equal(t, 45*time.Second, cfg.ConfirmWindow)
	assert.Equal(t, 250.0, cfg.RegionPenalty)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "redis store without url", mutate: func(c *Config) { c.Store = BackendRedis }, wantErr: true},
		{name: "redis store with url", mutate: func(c *Config) { c.Store = BackendRedis; c.RedisURL = "redis://localhost:6379" }},
		{name: "postgres without url", mutate: func(c *Config) { c.Store = BackendPostgres }, wantErr: true},
		{name: "unknown transport", mutate: func(c *Config) { c.Transport = "carrier-pigeon" }, wantErr: true},
		{name: "zero tick", mutate: func(c *Config) { c.TickInterval = 0 }, wantErr: true},
		{name: "no regions", mutate: func(c *Config) { c.Regions = nil }, wantErr: true},
		{name: "negative weight", mutate: func(c *Config) { c.SkillWeight = -1 }, wantErr: true},
		{name: "inverted durations", mutate: func(c *Config) { c.MatchDurationMax = time.Second; c.MatchDurationMin = time.Minute }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
