package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/models"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/retry"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/transport"
	"go.uber.org/zap"
)

// DefaultCandidateLimit 후보 목록 최대 길이
const DefaultCandidateLimit = 10

// Candidate 후보 한 명과 그 비용
type Candidate struct {
	ID          string  `json:"id"`
	Score       float64 `json:"score"`
	SkillRating float64 `json:"skillRating"`
	Region      string  `json:"region"`
}

// RankCandidates 요청자 지역 토픽에 있는 대기자를 비용 오름차순으로 돌려준다.
// 예약은 하지 않는다. 같은 후보가 다음 틱에서 다른 사람과 짝지어질 수 있다.
func (s *MatchmakingService) RankCandidates(ctx context.Context, playerID string) ([]Candidate, error) {
	requester, err := retry.Value(ctx, s.retry, "get player", func(ctx context.Context) (*models.Player, error) {
		return s.players.Get(ctx, playerID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load player %s: %w", playerID, err)
	}
	if !s.HasRegion(requester.Region) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRegion, requester.Region)
	}

	presence, err := retry.Value(ctx, s.retry, "presence", func(ctx context.Context) ([]string, error) {
		return s.transport.Presence(ctx, transport.MatchmakingTopic(requester.Region))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch presence: %w", err)
	}

	constraints := s.constraints.Get()
	candidates := make([]Candidate, 0, len(presence))
	for _, id := range presence {
		if id == playerID {
			continue
		}
		other, err := retry.Value(ctx, s.retry, "get player", func(ctx context.Context) (*models.Player, error) {
			return s.players.Get(ctx, id)
		})
		if err != nil {
			s.logger.Debug("Skipping candidate", zap.String("playerId", id), zap.Error(err))
			continue
		}

		score := s.matcher.scorer.Score(*requester, *other, constraints)
		if math.IsInf(score, 0) || math.IsNaN(score) {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:          other.ID,
			Score:       score,
			SkillRating: other.SkillRating,
			Region:      other.Region,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score < candidates[j].Score })
	if len(candidates) > s.candidateLimit {
		candidates = candidates[:s.candidateLimit]
	}
	return candidates, nil
}
