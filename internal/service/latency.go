package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/PubNubDevelopers/SBMM-Engine/pkg/transport"
	"go.uber.org/zap"
)

// LatencyReport 클라이언트가 보내는 지연 측정치 (ms)
type LatencyReport struct {
	PlayerID   string             `json:"playerId"`
	LatencyMap map[string]float64 `json:"latencyMap"`
}

// LatencyTable 플레이어 간 최신 지연 측정치
type LatencyTable struct {
	mu      sync.RWMutex
	samples map[string]map[string]float64
	logger  *zap.Logger
}

func NewLatencyTable(logger *zap.Logger) *LatencyTable {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LatencyTable{
		samples: make(map[string]map[string]float64),
		logger:  logger,
	}
}

// Record 보고서 반영. 음수 측정치는 버린다.
func (t *LatencyTable) Record(report LatencyReport) {
	if report.PlayerID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	row := t.samples[report.PlayerID]
	if row == nil {
		row = make(map[string]float64)
		t.samples[report.PlayerID] = row
	}
	for other, ms := range report.LatencyMap {
		if ms < 0 || other == report.PlayerID {
			continue
		}
		row[other] = ms
	}
}

// CrossLatency 양방향 측정치의 평균. 한쪽만 있으면 그 값.
func (t *LatencyTable) CrossLatency(a, b string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ab, okAB := t.samples[a][b]
	ba, okBA := t.samples[b][a]
	switch {
	case okAB && okBA:
		return (ab + ba) / 2, true
	case okAB:
		return ab, true
	case okBA:
		return ba, true
	}
	return 0, false
}

// Run latency-reports 토픽을 소비한다. ctx 가 끝날 때까지 블록.
func (t *LatencyTable) Run(ctx context.Context, tr transport.Transport) error {
	sub, err := tr.Subscribe(ctx, transport.LatencyTopic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to latency reports: %w", err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			var report LatencyReport
			if err := json.Unmarshal(msg.Payload, &report); err != nil {
				t.logger.Warn("Dropping malformed latency report", zap.Error(err))
				continue
			}
			t.Record(report)
		}
	}
}
