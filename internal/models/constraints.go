package models

import (
	"fmt"
	"math"
)

// Constraints 매칭 가중치/임계값 스냅샷. 값으로 다루며 수정하지 않는다.
type Constraints struct {
	MaxSkillGap            float64 `json:"max_skill_gap"`
	SkillWeight            float64 `json:"skill_gap_weight"`
	RegionPenalty          float64 `json:"region_penalty"`
	LatencyWeight          float64 `json:"latency_weight"`
	RatingAdjustmentWeight float64 `json:"elo_adjustment_weight"`
}

// Control feed keys.
const (
	ConstraintMaxSkillGap            = "max_skill_gap"
	ConstraintSkillWeight            = "skill_gap_weight"
	ConstraintRegionPenalty          = "region_penalty"
	ConstraintLatencyWeight          = "latency_weight"
	ConstraintRatingAdjustmentWeight = "elo_adjustment_weight"
)

// constraintAliases maps the upper-case names older dashboards publish.
var constraintAliases = map[string]string{
	"MAX_ELO_GAP":           ConstraintMaxSkillGap,
	"SKILL_GAP_WEIGHT":      ConstraintSkillWeight,
	"ELO_ADJUSTMENT_WEIGHT": ConstraintRatingAdjustmentWeight,
	"LATENCY_WEIGHT":        ConstraintLatencyWeight,
	"REGION_PENALTY":        ConstraintRegionPenalty,
}

// DefaultConstraints 기본값
func DefaultConstraints() Constraints {
	return Constraints{
		MaxSkillGap:            200,
		SkillWeight:            1.0,
		RegionPenalty:          100,
		LatencyWeight:          0.5,
		RatingAdjustmentWeight: 1.0,
	}
}

// CanonicalConstraintKey resolves a control-feed key, reporting false for unknown keys.
func CanonicalConstraintKey(key string) (string, bool) {
	if alias, ok := constraintAliases[key]; ok {
		return alias, true
	}
	switch key {
	case ConstraintMaxSkillGap, ConstraintSkillWeight, ConstraintRegionPenalty,
		ConstraintLatencyWeight, ConstraintRatingAdjustmentWeight:
		return key, true
	}
	return "", false
}

// With returns a copy with one field replaced.
func (c Constraints) With(key string, value float64) (Constraints, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return c, fmt.Errorf("%w: %s=%v", ErrInvalidConstraint, key, value)
	}

	canonical, ok := CanonicalConstraintKey(key)
	if !ok {
		return c, fmt.Errorf("%w: unknown key %q", ErrInvalidConstraint, key)
	}

	switch canonical {
	case ConstraintMaxSkillGap:
		c.MaxSkillGap = value
	case ConstraintSkillWeight:
		c.SkillWeight = value
	case ConstraintRegionPenalty:
		c.RegionPenalty = value
	case ConstraintLatencyWeight:
		c.LatencyWeight = value
	case ConstraintRatingAdjustmentWeight:
		c.RatingAdjustmentWeight = value
	}
	return c, nil
}
