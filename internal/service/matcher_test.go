package service

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func player(id string, skill float64, region string) models.Player {
	return models.Player{ID: id, SkillRating: skill, Region: region}
}

func pairKey(p models.Pair) [2]string {
	ids := []string{p.PlayerA, p.PlayerB}
	sort.Strings(ids)
	return [2]string{ids[0], ids[1]}
}

func pairKeys(pairs []models.Pair) [][2]string {
	keys := make([][2]string, 0, len(pairs))
	for _, p := range pairs {
		keys = append(keys, pairKey(p))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i][0] < keys[j][0] })
	return keys
}

// 모든 쌍은 서로 다른 플레이어, 한 플레이어는 최대 한 번, 비용은 유한
func assertValidMatching(t *testing.T, players []models.Player, result MatchResult) {
	t.Helper()
	seen := map[string]int{}
	for _, p := range result.Pairs {
		assert.NotEqual(t, p.PlayerA, p.PlayerB)
		assert.False(t, math.IsInf(p.Cost, 0))
		assert.NotEmpty(t, p.MatchID)
		seen[p.PlayerA]++
		seen[p.PlayerB]++
	}
	for _, id := range result.Unpaired {
		seen[id]++
	}
	for _, p := range players {
		assert.Equal(t, 1, seen[p.ID], "player %s must appear exactly once", p.ID)
	}
}

func TestScorer_Score(t *testing.T) {
	c := models.DefaultConstraints()
	latency := NewLatencyTable(nil)
	latency.Record(LatencyReport{PlayerID: "a", LatencyMap: map[string]float64{"b": 40}})
	latency.Record(LatencyReport{PlayerID: "b", LatencyMap: map[string]float64{"a": 60}})

	tests := []struct {
		name   string
		scorer *Scorer
		a, b   models.Player
		want   float64
	}{
		{name: "same region", scorer: NewScorer(nil), a: player("a", 1000, "us-east-1"), b: player("b", 1050, "us-east-1"), want: 50},
		{name: "cross region", scorer: NewScorer(nil), a: player("a", 1000, "us-east-1"), b: player("b", 1050, "eu-central-1"), want: 150},
		{name: "gap at limit", scorer: NewScorer(nil), a: player("a", 1000, "x"), b: player("b", 1200, "x"), want: 200},
		{name: "gap over limit", scorer: NewScorer(nil), a: player("a", 1000, "x"), b: player("b", 1201, "x"), want: math.Inf(1)},
		{name: "latency averaged", scorer: NewScorer(latency), a: player("a", 1000, "x"), b: player("b", 1010, "x"), want: 10 + 0.5*50},
		{name: "latency missing falls back", scorer: NewScorer(latency), a: player("a", 1000, "x"), b: player("c", 1010, "x"), want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scorer.Score(tt.a, tt.b, c))
			assert.Equal(t, tt.want, tt.scorer.Score(tt.b, tt.a, c), "score must be symmetric")
		})
	}
}

func TestMatcher_EdgeCases(t *testing.T) {
	m := NewMatcher(NewScorer(nil), nil)
	c := models.DefaultConstraints()

	t.Run("empty batch", func(t *testing.T) {
		result := m.Match(nil, c)
		assert.Empty(t, result.Pairs)
		assert.Empty(t, result.Unpaired)
	})

	t.Run("single player", func(t *testing.T) {
		result := m.Match([]models.Player{player("solo", 1000, "x")}, c)
		assert.Empty(t, result.Pairs)
		assert.Equal(t, []string{"solo"}, result.Unpaired)
	})

	t.Run("all pairs forbidden", func(t *testing.T) {
		players := []models.Player{player("a", 0, "x"), player("b", 1000, "x"), player("c", 2000, "x")}
		result := m.Match(players, c)
		assert.Empty(t, result.Pairs)
		assert.ElementsMatch(t, []string{"a", "b", "c"}, result.Unpaired)
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		players := []models.Player{player("a", 1000, "x"), player("a", 1000, "x"), player("b", 1010, "x")}
		result := m.Match(players, c)
		require.Len(t, result.Pairs, 1)
		assert.Equal(t, [2]string{"a", "b"}, pairKey(result.Pairs[0]))
		assert.Empty(t, result.Unpaired)
	})
}

func TestMatcher_SkillBands(t *testing.T) {
	m := NewMatcher(NewScorer(nil), nil)
	c := models.DefaultConstraints()
	c.SkillWeight = 2

	players := []models.Player{
		player("p1000", 1000, "us-east-1"),
		player("p1900", 1900, "us-east-1"),
		player("p1050", 1050, "us-east-1"),
		player("p1950", 1950, "us-east-1"),
	}

	result := m.Match(players, c)
	assertValidMatching(t, players, result)

	assert.Equal(t, [][2]string{{"p1000", "p1050"}, {"p1900", "p1950"}}, pairKeys(result.Pairs))
	for _, p := range result.Pairs {
		assert.Equal(t, 50*c.SkillWeight, p.Cost)
	}
	assert.Empty(t, result.Unpaired)
}

func TestMatcher_BeatsGreedy(t *testing.T) {
	m := NewMatcher(NewScorer(nil), nil)
	c := models.DefaultConstraints()
	c.MaxSkillGap = 1000

	// 탐욕 선택은 (10,20)=10 + (0,100)=100 = 110, 최적은 (0,10)+(20,100) = 90
	players := []models.Player{
		player("s0", 0, "x"),
		player("s10", 10, "x"),
		player("s20", 20, "x"),
		player("s100", 100, "x"),
	}

	result := m.Match(players, c)
	assertValidMatching(t, players, result)
	assert.Equal(t, 90.0, result.TotalCost)
	assert.Equal(t, [][2]string{{"s0", "s10"}, {"s100", "s20"}}, pairKeys(result.Pairs))
}

func TestMatcher_OddBatch(t *testing.T) {
	m := NewMatcher(NewScorer(nil), nil)
	c := models.DefaultConstraints()

	players := []models.Player{player("a", 1000, "x"), player("b", 1010, "x"), player("c", 1100, "x")}

	result := m.Match(players, c)
	assertValidMatching(t, players, result)
	require.Len(t, result.Pairs, 1)
	assert.Equal(t, [2]string{"a", "b"}, pairKey(result.Pairs[0]))
	assert.Equal(t, []string{"c"}, result.Unpaired)
}

func TestMatcher_ConstraintEnforcement(t *testing.T) {
	m := NewMatcher(NewScorer(nil), nil)
	rng := rand.New(rand.NewSource(99))

	for round := 0; round < 50; round++ {
		c := models.DefaultConstraints()
		c.MaxSkillGap = float64(50 + rng.Intn(300))

		var players []models.Player
		n := 2 + rng.Intn(9)
		for i := 0; i < n; i++ {
			region := []string{"us-east-1", "eu-central-1"}[rng.Intn(2)]
			players = append(players, player(string(rune('a'+i)), float64(800+rng.Intn(1200)), region))
		}

		result := m.Match(players, c)
		assertValidMatching(t, players, result)

		byID := map[string]models.Player{}
		for _, p := range players {
			byID[p.ID] = p
		}
		for _, p := range result.Pairs {
			gap := math.Abs(byID[p.PlayerA].SkillRating - byID[p.PlayerB].SkillRating)
			assert.LessOrEqual(t, gap, c.MaxSkillGap)
		}

		// 남은 플레이어 둘이 서로 합법적이면 안 된다 (짝을 놓친 것)
		for i := 0; i < len(result.Unpaired); i++ {
			for j := i + 1; j < len(result.Unpaired); j++ {
				a, b := byID[result.Unpaired[i]], byID[result.Unpaired[j]]
				assert.True(t, math.IsInf(BaseScore(a, b, c), 1),
					"unpaired %s and %s could have been paired", a.ID, b.ID)
			}
		}
	}
}

func TestMaxWeightMatching(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		edges []weightedEdge
		want  []int
	}{
		{name: "no edges", n: 3, want: []int{-1, -1, -1}},
		{name: "single edge", n: 2, edges: []weightedEdge{{0, 1, 4}}, want: []int{1, 0}},
		{
			// 무게만 보면 (1,2) 하나가 낫지만 쌍 수가 우선
			name:  "cardinality before weight",
			n:     4,
			edges: []weightedEdge{{0, 1, 2}, {1, 2, 10}, {2, 3, 2}},
			want:  []int{1, 0, 3, 2},
		},
		{
			// 홀수 사이클 (0,1,2) 이 블로섬으로 축약되어야 3-4 로 이어진다
			name:  "odd cycle blossom",
			n:     6,
			edges: []weightedEdge{{0, 1, 8}, {1, 2, 9}, {0, 2, 10}, {2, 3, 7}, {3, 4, 6}, {4, 5, 6}},
			want:  []int{1, 0, 3, 2, 5, 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, maxWeightMatching(tt.n, tt.edges))
		})
	}
}

// exhaustiveOptimum 모든 매칭을 열거해 (쌍 수 최대, 비용 최소) 를 구한다
func exhaustiveOptimum(cost [][]float64) (int, float64) {
	n := len(cost)
	used := make([]bool, n)
	var walk func(i int) (int, float64)
	walk = func(i int) (int, float64) {
		for i < n && used[i] {
			i++
		}
		if i >= n {
			return 0, 0
		}
		used[i] = true
		bestPairs, bestCost := walk(i + 1)
		for j := i + 1; j < n; j++ {
			if used[j] || math.IsInf(cost[i][j], 1) {
				continue
			}
			used[j] = true
			pairs, total := walk(i + 1)
			pairs, total = pairs+1, total+cost[i][j]
			if pairs > bestPairs || (pairs == bestPairs && total < bestCost-1e-9) {
				bestPairs, bestCost = pairs, total
			}
			used[j] = false
		}
		used[i] = false
		return bestPairs, bestCost
	}
	return walk(0)
}

func TestMatcher_MatchesExhaustiveOptimum(t *testing.T) {
	m := NewMatcher(NewScorer(nil), nil)

	tests := []struct {
		name      string
		players   []models.Player
		gap       float64
		wantPairs int
		wantCost  float64
	}{
		{
			name: "mixed regions",
			players: []models.Player{
				player("A", 1140, "y"), player("B", 1070, "y"), player("C", 1050, "y"),
				player("D", 1000, "x"), player("E", 1060, "x"), player("F", 1090, "x"),
			},
			gap:       200,
			wantPairs: 3,
			wantCost:  230,
		},
		{
			// (b,c) 가 가장 싸지만 고르면 a, d 가 남는다
			name: "more pairs beat cheaper pairs",
			players: []models.Player{
				player("a", 0, "x"), player("b", 10, "x"), player("c", 11, "x"), player("d", 21, "x"),
			},
			gap:       10,
			wantPairs: 2,
			wantCost:  20,
		},
		{
			name: "odd batch with forbidden edges",
			players: []models.Player{
				player("a", 1000, "x"), player("b", 1150, "y"), player("c", 1300, "x"),
				player("d", 1420, "y"), player("e", 1900, "x"),
			},
			gap:       200,
			wantPairs: 2,
			wantCost:  250 + 220,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := models.DefaultConstraints()
			c.MaxSkillGap = tt.gap

			result := m.Match(tt.players, c)
			assertValidMatching(t, tt.players, result)
			assert.Len(t, result.Pairs, tt.wantPairs)
			assert.InDelta(t, tt.wantCost, result.TotalCost, 1e-6)

			pairs, total := exhaustiveOptimum(m.CostMatrix(tt.players, c))
			assert.Equal(t, pairs, len(result.Pairs))
			assert.InDelta(t, total, result.TotalCost, 1e-6)
		})
	}

	t.Run("random batches", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		regions := []string{"us-east-1", "eu-central-1", "ap-southeast-1"}
		for round := 0; round < 300; round++ {
			c := models.DefaultConstraints()
			c.MaxSkillGap = float64(40 + rng.Intn(260))
			c.RegionPenalty = float64(rng.Intn(150))

			n := 2 + rng.Intn(9)
			players := make([]models.Player, 0, n)
			for i := 0; i < n; i++ {
				players = append(players, player(string(rune('a'+i)), float64(900+rng.Intn(500)), regions[rng.Intn(len(regions))]))
			}

			result := m.Match(players, c)
			assertValidMatching(t, players, result)

			pairs, total := exhaustiveOptimum(m.CostMatrix(players, c))
			require.Equal(t, pairs, len(result.Pairs), "round %d", round)
			require.InDelta(t, total, result.TotalCost, 1e-6, "round %d", round)
		}
	})
}
