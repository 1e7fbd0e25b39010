package service

import (
	"math"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/models"
)

// LatencyProvider 두 플레이어 간 측정된 지연 (없으면 false)
type LatencyProvider interface {
	CrossLatency(a, b string) (float64, bool)
}

// Scorer 두 플레이어의 매칭 비용 계산. 낮을수록 좋고, +Inf 는 매칭 금지.
type Scorer struct {
	latency LatencyProvider
}

// NewScorer latency 가 nil 이면 지연 항은 항상 생략
func NewScorer(latency LatencyProvider) *Scorer {
	return &Scorer{latency: latency}
}

// Score 제약을 적용한 쌍 비용. 대칭이다.
func (s *Scorer) Score(a, b models.Player, c models.Constraints) float64 {
	cost := BaseScore(a, b, c)
	if math.IsInf(cost, 1) || s.latency == nil {
		return cost
	}

	if latency, ok := s.latency.CrossLatency(a.ID, b.ID); ok {
		cost += c.LatencyWeight * latency
	}
	return cost
}

// BaseScore skill gap + region penalty, with the max skill gap as a hard cutoff.
func BaseScore(a, b models.Player, c models.Constraints) float64 {
	gap := math.Abs(a.SkillRating - b.SkillRating)
	if gap > c.MaxSkillGap {
		return math.Inf(1)
	}

	cost := c.SkillWeight * gap
	if a.Region != b.Region {
		cost += c.RegionPenalty
	}
	return cost
}
