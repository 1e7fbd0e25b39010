package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/models"
	"github.com/PubNubDevelopers/SBMM-Engine/internal/repository"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/metrics"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/retry"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/transport"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const (
	drawChance     = 0.05
	defaultHidden  = 0.5
	driftMagnitude = 5.0
)

// GameConfig 시뮬레이션 매치 설정
type GameConfig struct {
	Transport   transport.Transport
	Players     repository.PlayerRepository
	Ratings     *RatingService
	Constraints *ConstraintStore
	Clock       clock.Clock
	Retry       retry.Policy
	Metrics     *metrics.Manager
	Logger      *zap.Logger
	Rand        *rand.Rand

	MinDuration time.Duration
	MaxDuration time.Duration
	// Drift adds a random ±5 nudge to both new ratings.
	Drift bool
}

// GameService 확정된 세션의 경기를 시뮬레이션하고 결과를 반영
type GameService struct {
	players     repository.PlayerRepository
	ratings     *RatingService
	constraints *ConstraintStore
	clock       clock.Clock
	retry       retry.Policy
	metrics     *metrics.Manager
	logger      *zap.Logger
	notify      *notifier

	minDuration time.Duration
	maxDuration time.Duration
	drift       bool

	mu  sync.Mutex
	rng *rand.Rand
}

func NewGameService(cfg GameConfig) *GameService {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Ratings == nil {
		cfg.Ratings = NewRatingService(cfg.Rand)
	}
	if cfg.MaxDuration < cfg.MinDuration {
		cfg.MaxDuration = cfg.MinDuration
	}
	return &GameService{
		players:     cfg.Players,
		ratings:     cfg.Ratings,
		constraints: cfg.Constraints,
		clock:       cfg.Clock,
		retry:       cfg.Retry,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		notify: &notifier{
			transport: cfg.Transport,
			retry:     cfg.Retry,
			clock:     cfg.Clock,
			logger:    cfg.Logger,
		},
		minDuration: cfg.MinDuration,
		maxDuration: cfg.MaxDuration,
		drift:       cfg.Drift,
		rng:         cfg.Rand,
	}
}

// Play 경기 진행 → 결과 결정 → 레이팅 반영 → Finished 발행
func (g *GameService) Play(ctx context.Context, session models.Session) (models.Outcome, error) {
	log := g.logger.With(zap.String("matchId", session.MatchID), zap.String("session", session.Topic))

	g.metrics.SessionStarted()
	defer g.metrics.SessionFinished()

	if err := g.wait(ctx); err != nil {
		return models.Outcome{}, err
	}

	a, err := retry.Value(ctx, g.retry, "get player", func(ctx context.Context) (*models.Player, error) {
		return g.players.Get(ctx, session.PlayerA)
	})
	if err != nil {
		return models.Outcome{}, fmt.Errorf("failed to load player %s: %w", session.PlayerA, err)
	}
	b, err := retry.Value(ctx, g.retry, "get player", func(ctx context.Context) (*models.Player, error) {
		return g.players.Get(ctx, session.PlayerB)
	})
	if err != nil {
		return models.Outcome{}, fmt.Errorf("failed to load player %s: %w", session.PlayerB, err)
	}

	outcome := g.decide(*a, *b)

	weight := models.DefaultConstraints().RatingAdjustmentWeight
	if g.constraints != nil {
		weight = g.constraints.Get().RatingAdjustmentWeight
	}
	updateA, updateB := g.ratings.Apply(*a, *b, outcome, weight)

	outcome.RatingChanges = map[string]float64{}
	for _, u := range []*RatingUpdate{&updateA, &updateB} {
		if g.drift {
			u.After = g.applyDrift(u.After)
			u.Fields[models.FieldSkillRating] = u.After
		}
		u.Fields[models.FieldConfirmed] = false
		outcome.RatingChanges[u.PlayerID] = u.Delta()
		g.metrics.ObserveRatingDelta(u.Delta())

		if err := mergeUpdate(ctx, g.retry, g.players, u.PlayerID, u.Fields); err != nil {
			log.Error("Failed to write match result", zap.String("playerId", u.PlayerID), zap.Error(err))
		}
	}

	finished := models.Event{
		Type:    models.EventFinished,
		MatchID: session.MatchID,
		Players: []string{session.PlayerA, session.PlayerB},
		Topic:   session.Topic,
		Outcome: &outcome,
	}
	_ = g.notify.publish(ctx, finished, session.Topic, transport.PlayerTopic(session.PlayerA), transport.PlayerTopic(session.PlayerB))

	log.Info("Match finished",
		zap.String("winner", outcome.WinnerID),
		zap.Bool("draw", outcome.Draw),
		zap.Float64("deltaA", updateA.Delta()),
		zap.Float64("deltaB", updateB.Delta()))
	return outcome, nil
}

func (g *GameService) wait(ctx context.Context) error {
	d := g.minDuration
	if span := g.maxDuration - g.minDuration; span > 0 {
		g.mu.Lock()
		d += time.Duration(g.rng.Int63n(int64(span) + 1))
		g.mu.Unlock()
	}
	if d <= 0 {
		return nil
	}

	timer := g.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// decide 기대 승률과 숨은 실력을 반반 섞어 승자를 정한다
func (g *GameService) decide(a, b models.Player) models.Outcome {
	hA, hB := a.HiddenSkill, b.HiddenSkill
	if hA <= 0 {
		hA = defaultHidden
	}
	if hB <= 0 {
		hB = defaultHidden
	}
	pA := 0.5*g.ratings.ExpectedScore(a.SkillRating, b.SkillRating) + 0.5*hA/(hA+hB)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rng.Float64() < drawChance {
		return models.Outcome{Draw: true}
	}
	if g.rng.Float64() < pA {
		return models.Outcome{WinnerID: a.ID}
	}
	return models.Outcome{WinnerID: b.ID}
}

func (g *GameService) applyDrift(rating float64) float64 {
	g.mu.Lock()
	nudge := (g.rng.Float64()*2 - 1) * driftMagnitude
	g.mu.Unlock()
	if rating+nudge < 0 {
		return 0
	}
	return rating + nudge
}
