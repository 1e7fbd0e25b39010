package service

import (
	"math"
	"math/rand"
	"sync"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/models"
)

const (
	ratingBaseline     = 1500.0
	ratingReversionDiv = 200.0
	minRatingChange    = 4.0
	maxRatingChange    = 32.0

	toxicMatchChance     = 0.25
	toxicMatchChanceHigh = 0.5
	calmDeescalateChance = 0.1

	aggressiveStreak = 3
)

// RatingUpdate 한 플레이어에 대한 매치 후 변경 필드
type RatingUpdate struct {
	PlayerID string
	Before   float64
	After    float64
	Fields   models.PlayerFields
}

// Delta returns the applied rating change.
func (u RatingUpdate) Delta() float64 {
	return u.After - u.Before
}

// RatingService Elo 레이팅 계산 서비스
// 계산은 순수 함수이고, 독성/플레이스타일 변화만 주입된 난수원을 사용한다.
type RatingService struct {
	baseline  float64
	minChange float64
	maxChange float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRatingService 레이팅 서비스 생성. rng 가 nil이면 고정 시드 사용.
func NewRatingService(rng *rand.Rand) *RatingService {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &RatingService{
		baseline:  ratingBaseline,
		minChange: minRatingChange,
		maxChange: maxRatingChange,
		rng:       rng,
	}
}

// KFactor returns the K-factor band for the player's own rating:
// below 1400 ratings move fast, 2000 and above move slowly.
func (s *RatingService) KFactor(rating float64) float64 {
	switch {
	case rating < 1400:
		return 40
	case rating < 2000:
		return 20
	default:
		return 10
	}
}

// ExpectedScore Elo 기대 승률
func (s *RatingService) ExpectedScore(rating, opponent float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (opponent-rating)/400.0))
}

// Delta 한 플레이어의 레이팅 변화량
// score: 1 승, 0.5 무, 0 패. adjustmentWeight 는 평균 회귀 강도.
func (s *RatingService) Delta(rating, opponent, score, adjustmentWeight float64) float64 {
	raw := s.KFactor(rating) * (score - s.ExpectedScore(rating, opponent))
	if raw == 0 {
		return 0
	}

	sign := math.Copysign(1, raw)
	delta := sign * clamp(math.Abs(raw), s.minChange, s.maxChange)

	adjusted := delta + s.reversion(rating, adjustmentWeight)

	// 회귀가 승패 방향을 뒤집지 않도록
	if score != 0.5 && math.Copysign(1, adjusted) != sign {
		adjusted = sign * s.minChange
	}
	if math.Abs(adjusted) > s.maxChange {
		adjusted = sign * s.maxChange
	}
	return adjusted
}

// reversion pulls ratings toward the baseline; zero at the baseline itself.
func (s *RatingService) reversion(rating, weight float64) float64 {
	distance := rating - s.baseline
	sigmoid := 1.0 / (1.0 + math.Exp(-distance/ratingReversionDiv))
	return -weight * (2*sigmoid - 1)
}

// Apply 두 플레이어에 매치 결과를 반영한 변경 필드 계산
func (s *RatingService) Apply(a, b models.Player, outcome models.Outcome, adjustmentWeight float64) (RatingUpdate, RatingUpdate) {
	scoreA := outcome.Score(a.ID)
	scoreB := outcome.Score(b.ID)

	newA := math.Max(0, math.Round(a.SkillRating+s.Delta(a.SkillRating, b.SkillRating, scoreA, adjustmentWeight)))
	newB := math.Max(0, math.Round(b.SkillRating+s.Delta(b.SkillRating, a.SkillRating, scoreB, adjustmentWeight)))

	toxicA, toxicB := s.driftToxicity(a.ToxicityLevel, b.ToxicityLevel)

	updateA := s.update(a, newA, scoreA, toxicA)
	updateB := s.update(b, newB, scoreB, toxicB)
	return updateA, updateB
}

func (s *RatingService) update(p models.Player, rating, score float64, toxicity models.ToxicityLevel) RatingUpdate {
	streak := 0
	if score == 1 {
		streak = p.ConsecutiveWins + 1
	}

	style := models.PlayStylePassive
	switch {
	case streak >= aggressiveStreak:
		style = models.PlayStyleAggressive
	case rating > p.SkillRating:
		style = models.PlayStyleBalanced
	}

	return RatingUpdate{
		PlayerID: p.ID,
		Before:   p.SkillRating,
		After:    rating,
		Fields: models.PlayerFields{
			models.FieldSkillRating:     rating,
			models.FieldConsecutiveWins: streak,
			models.FieldToxicityLevel:   toxicity,
			models.FieldPlayStyle:       style,
		},
	}
}

// driftToxicity 독성 매치는 양쪽을 한 단계 올리고, 평온한 매치는 가끔 내린다
func (s *RatingService) driftToxicity(a, b models.ToxicityLevel) (models.ToxicityLevel, models.ToxicityLevel) {
	chance := toxicMatchChance
	if a == models.ToxicityHigh || b == models.ToxicityHigh {
		chance = toxicMatchChanceHigh
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rng.Float64() < chance {
		return a.Escalate(), b.Escalate()
	}
	if s.rng.Float64() < calmDeescalateChance {
		a = a.Deescalate()
	}
	if s.rng.Float64() < calmDeescalateChance {
		b = b.Deescalate()
	}
	return a, b
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
