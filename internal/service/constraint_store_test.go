package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/models"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstraintStore_ApplyMessage(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
		check   func(t *testing.T, c models.Constraints)
	}{
		{
			name:    "numeric value",
			payload: `{"max_skill_gap": 350}`,
			check: func(t *testing.T, c models.Constraints) {
				assert.Equal(t, 350.0, c.MaxSkillGap)
			},
		},
		{
			name:    "numeric string with alias",
			payload: `{"MAX_ELO_GAP": "275.5", "LATENCY_WEIGHT": "0"}`,
			check: func(t *testing.T, c models.Constraints) {
				assert.Equal(t, 275.5, c.MaxSkillGap)
				assert.Equal(t, 0.0, c.LatencyWeight)
			},
		},
		{
			name:    "negative rejected, rest applied",
			payload: `{"region_penalty": -5, "skill_gap_weight": 2}`,
			wantErr: models.ErrInvalidConstraint,
			check: func(t *testing.T, c models.Constraints) {
				assert.Equal(t, 100.0, c.RegionPenalty)
				assert.Equal(t, 2.0, c.SkillWeight)
			},
		},
		{
			name:    "unknown key ignored",
			payload: `{"favourite_colour": 3}`,
			wantErr: models.ErrInvalidConstraint,
			check: func(t *testing.T, c models.Constraints) {
				assert.Equal(t, models.DefaultConstraints(), c)
			},
		},
		{
			name:    "non-numeric string ignored",
			payload: `{"max_skill_gap": "wide"}`,
			check: func(t *testing.T, c models.Constraints) {
				assert.Equal(t, models.DefaultConstraints(), c)
			},
		},
		{
			name:    "malformed json",
			payload: `max_skill_gap=1`,
			wantErr: models.ErrMalformedEvent,
			check: func(t *testing.T, c models.Constraints) {
				assert.Equal(t, models.DefaultConstraints(), c)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewConstraintStore(models.DefaultConstraints(), nil)
			err := store.ApplyMessage([]byte(tt.payload))
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
			tt.check(t, store.Get())
		})
	}
}

func TestConstraintStore_SnapshotIsStable(t *testing.T) {
	store := NewConstraintStore(models.DefaultConstraints(), nil)
	before := store.Get()

	_, err := store.Update(map[string]float64{models.ConstraintMaxSkillGap: 999})
	require.NoError(t, err)

	assert.Equal(t, 200.0, before.MaxSkillGap, "snapshots taken earlier must not change")
	assert.Equal(t, 999.0, store.Get().MaxSkillGap)
}

func TestConstraintStore_ConcurrentUpdates(t *testing.T) {
	store := NewConstraintStore(models.DefaultConstraints(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = store.Update(map[string]float64{models.ConstraintSkillWeight: float64(i)})
		}(i)
		go func() {
			defer wg.Done()
			c := store.Get()
			assert.GreaterOrEqual(t, c.SkillWeight, 0.0)
		}()
	}
	wg.Wait()

	_, err := store.Update(map[string]float64{models.ConstraintSkillWeight: 7})
	require.NoError(t, err)
	assert.Equal(t, 7.0, store.Get().SkillWeight)
}

func TestConstraintStore_Subscribe(t *testing.T) {
	broker := transport.NewMemoryBroker(nil)
	store := NewConstraintStore(models.DefaultConstraints(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Subscribe(ctx, broker) }()

	// 구독이 등록될 때까지 반복 발행
	require.Eventually(t, func() bool {
		_ = broker.Publish(ctx, transport.ControlTopic, []byte(`{"max_skill_gap": 420}`))
		return store.Get().MaxSkillGap == 420
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Subscribe did not stop after cancel")
	}
}
