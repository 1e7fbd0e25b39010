package service

import (
	"math"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MatchResult 한 배치의 매칭 결과
type MatchResult struct {
	Pairs     []models.Pair
	Unpaired  []string
	TotalCost float64
}

// Matcher 비용 행렬 + 최대 쌍 수 중 최소 비용 매칭
type Matcher struct {
	scorer *Scorer
	logger *zap.Logger
	newID  func() string
}

func NewMatcher(scorer *Scorer, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{
		scorer: scorer,
		logger: logger,
		newID:  func() string { return uuid.New().String() },
	}
}

// CostMatrix n×n 비용 행렬. 대각선은 +Inf.
func (m *Matcher) CostMatrix(players []models.Player, c models.Constraints) [][]float64 {
	n := len(players)
	cost := make([][]float64, n)
	for i := range cost {
		cost[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		cost[i][i] = math.Inf(1)
		for j := i + 1; j < n; j++ {
			score := m.scorer.Score(players[i], players[j], c)
			cost[i][j] = score
			cost[j][i] = score
		}
	}
	return cost
}

// Match 배치를 쌍으로 나눈다. 합법적인 쌍의 수를 최대로 하고, 그 안에서 총비용을 최소로 한다.
// 짝이 없는 플레이어는 Unpaired.
func (m *Matcher) Match(players []models.Player, c models.Constraints) MatchResult {
	players = m.dedupe(players)

	switch len(players) {
	case 0:
		return MatchResult{}
	case 1:
		return MatchResult{Unpaired: []string{players[0].ID}}
	}

	cost := m.CostMatrix(players, c)

	result := MatchResult{}
	paired := make(map[int]bool, len(players))
	for _, idx := range minCostPairs(cost) {
		i, j := idx[0], idx[1]
		if err := m.validatePair(cost, i, j, paired); err != nil {
			m.logger.Error("Rejecting pairing", zap.Int("i", i), zap.Int("j", j), zap.Error(err))
			continue
		}
		if j < i {
			i, j = j, i
		}
		paired[i], paired[j] = true, true
		result.Pairs = append(result.Pairs, models.Pair{
			MatchID: m.newID(),
			PlayerA: players[i].ID,
			PlayerB: players[j].ID,
			Cost:    cost[i][j],
		})
		result.TotalCost += cost[i][j]
	}

	for i, p := range players {
		if !paired[i] {
			result.Unpaired = append(result.Unpaired, p.ID)
		}
	}

	m.logger.Debug("Matched batch",
		zap.Int("players", len(players)),
		zap.Int("pairs", len(result.Pairs)),
		zap.Int("unpaired", len(result.Unpaired)),
		zap.Float64("totalCost", result.TotalCost))

	return result
}

// validatePair 인덱스 범위와 중복을 확인. 실패하면 두 플레이어 모두 unpaired로 남는다.
func (m *Matcher) validatePair(cost [][]float64, i, j int, paired map[int]bool) error {
	n := len(cost)
	switch {
	case i < 0 || j < 0 || i >= n || j >= n:
		return ErrPairRejected
	case i == j:
		return ErrPairRejected
	case paired[i] || paired[j]:
		return ErrPairRejected
	case !isFinite(cost[i][j]):
		return ErrPairRejected
	}
	return nil
}

func (m *Matcher) dedupe(players []models.Player) []models.Player {
	seen := make(map[string]bool, len(players))
	out := players[:0:0]
	for _, p := range players {
		if seen[p.ID] {
			m.logger.Warn("Duplicate player in batch", zap.String("playerId", p.ID))
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}
