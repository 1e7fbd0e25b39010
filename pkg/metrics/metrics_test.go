package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Counters(t *testing.T) {
	m := NewManager()

	m.SetQueueSize("us-east-1", 4)
	m.IncTick(TickRan)
	m.IncTick(TickSkipped)
	m.IncTick(TickSkipped)
	m.AddPairs(2)
	m.AddUnpaired(1)
	m.AddUnpaired(0)
	m.IncConfirmation("timed_out")
	m.IncPunished()
	m.IncRetry("presence")
	m.ObserveTickDuration(15 * time.Millisecond)
	m.ObserveRatingDelta(-12)
	m.SessionStarted()

	assert.Equal(t, 4.0, testutil.ToFloat64(m.queueSize.WithLabelValues("us-east-1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticks.WithLabelValues(TickSkipped)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.pairsFormed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unpaired))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.confirmations.WithLabelValues("timed_out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.punished))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries.WithLabelValues("presence")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
}

func TestManager_NilIsNoop(t *testing.T) {
	var m *Manager
	assert.NotPanics(t, func() {
		m.SetQueueSize("eu-central-1", 1)
		m.IncTick(TickIdle)
		m.AddPairs(1)
		m.IncConfirmation("confirmed")
		m.ObserveRatingDelta(3)
		m.SessionFinished()
	})
}

func TestManager_Handler(t *testing.T) {
	m := NewManager(WithNamespace("test"))
	m.AddPairs(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "test_matchmaking_pairs_formed_total 3")
}
