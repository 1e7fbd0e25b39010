package models

import (
	"encoding/json"
	"fmt"
)

type ToxicityLevel string

const (
	ToxicityLow    ToxicityLevel = "Low"
	ToxicityMedium ToxicityLevel = "Medium"
	ToxicityHigh   ToxicityLevel = "High"
)

// Escalate 한 단계 위로 (High에서 멈춤)
func (t ToxicityLevel) Escalate() ToxicityLevel {
	switch t {
	case ToxicityLow:
		return ToxicityMedium
	case ToxicityMedium, ToxicityHigh:
		return ToxicityHigh
	default:
		return ToxicityMedium
	}
}

// Deescalate 한 단계 아래로 (Low에서 멈춤)
func (t ToxicityLevel) Deescalate() ToxicityLevel {
	switch t {
	case ToxicityHigh:
		return ToxicityMedium
	default:
		return ToxicityLow
	}
}

type PlayStyle string

const (
	PlayStyleBalanced   PlayStyle = "Balanced"
	PlayStylePassive    PlayStyle = "Passive"
	PlayStyleAggressive PlayStyle = "Aggressive"
)

// Player 플레이어 레코드 (외부 스토어 소유)
type Player struct {
	ID              string        `json:"id"`
	SkillRating     float64       `json:"skillRating"`
	Region          string        `json:"region"`
	LatencyMs       int           `json:"latencyMs"`
	ToxicityLevel   ToxicityLevel `json:"toxicityLevel"`
	PlayStyle       PlayStyle     `json:"playStyle"`
	ConsecutiveWins int           `json:"consecutiveWins"`
	Confirmed       bool          `json:"confirmed"`
	Punished        bool          `json:"punished"`
	Searching       bool          `json:"searching"`

	// HiddenSkill drives the simulated match outcome. Never shown to clients.
	HiddenSkill float64 `json:"hiddenSkill,omitempty"`
}

// Player record field names used in merge updates.
const (
	FieldSkillRating     = "skillRating"
	FieldRegion          = "region"
	FieldLatencyMs       = "latencyMs"
	FieldToxicityLevel   = "toxicityLevel"
	FieldPlayStyle       = "playStyle"
	FieldConsecutiveWins = "consecutiveWins"
	FieldConfirmed       = "confirmed"
	FieldPunished        = "punished"
	FieldSearching       = "searching"
	FieldHiddenSkill     = "hiddenSkill"
)

var playerFields = map[string]bool{
	FieldSkillRating:     true,
	FieldRegion:          true,
	FieldLatencyMs:       true,
	FieldToxicityLevel:   true,
	FieldPlayStyle:       true,
	FieldConsecutiveWins: true,
	FieldConfirmed:       true,
	FieldPunished:        true,
	FieldSearching:       true,
	FieldHiddenSkill:     true,
}

// PlayerFields 변경된 필드만 담는 부분 업데이트
type PlayerFields map[string]interface{}

// Validate rejects fields that are not part of the player record.
func (f PlayerFields) Validate() error {
	for name := range f {
		if !playerFields[name] {
			return fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
	}
	return nil
}

// Apply 부분 업데이트를 플레이어에 병합
func (p *Player) Apply(fields PlayerFields) error {
	if err := fields.Validate(); err != nil {
		return err
	}

	current, err := p.Fields()
	if err != nil {
		return err
	}
	for name, value := range fields {
		current[name] = value
	}

	data, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("failed to marshal player fields: %w", err)
	}
	merged := Player{}
	if err := json.Unmarshal(data, &merged); err != nil {
		return fmt.Errorf("failed to apply player fields: %w", err)
	}
	merged.ID = p.ID
	*p = merged
	return nil
}

// Fields 플레이어 전체를 필드 맵으로 변환 (id 제외)
func (p Player) Fields() (PlayerFields, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal player: %w", err)
	}
	fields := PlayerFields{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal player: %w", err)
	}
	delete(fields, "id")
	return fields, nil
}

// WithDefaults fills qualitative tags a freshly created record may omit.
func (p Player) WithDefaults() Player {
	if p.ToxicityLevel == "" {
		p.ToxicityLevel = ToxicityLow
	}
	if p.PlayStyle == "" {
		p.PlayStyle = PlayStyleBalanced
	}
	if p.HiddenSkill == 0 {
		p.HiddenSkill = 0.5
	}
	return p
}
