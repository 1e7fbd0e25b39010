package service

import (
	"context"
	"fmt"
	"time"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/models"
	"github.com/PubNubDevelopers/SBMM-Engine/internal/repository"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/metrics"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/retry"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/transport"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// DefaultConfirmWindow 양쪽 확인 제한 시간
const DefaultConfirmWindow = 30 * time.Second

// Confirmation outcomes for metrics.
const (
	confirmOutcomeConfirmed = "confirmed"
	confirmOutcomeTimedOut  = "timed_out"
	confirmOutcomeAborted   = "aborted"
)

// ConfirmationResult 핸드셰이크 결과. Err 가 있으면 핸드셰이크가 중단된 것이고 아무도 벌받지 않는다.
type ConfirmationResult struct {
	Pair      models.Pair
	State     models.ConfirmationState
	Confirmed map[string]bool
	Punished  []string
	Session   *models.Session
	Err       error
}

// ConfirmedBy reports whether playerID confirmed in time.
func (r ConfirmationResult) ConfirmedBy(playerID string) bool {
	return r.Confirmed[playerID]
}

// CoordinatorConfig 코디네이터 설정
type CoordinatorConfig struct {
	Transport transport.Transport
	Players   repository.PlayerRepository
	Clock     clock.Clock
	Window    time.Duration
	Retry     retry.Policy
	Metrics   *metrics.Manager
	Logger    *zap.Logger
}

// Coordinator 쌍마다 확인 핸드셰이크를 진행
type Coordinator struct {
	transport transport.Transport
	players   repository.PlayerRepository
	clock     clock.Clock
	window    time.Duration
	retry     retry.Policy
	metrics   *metrics.Manager
	logger    *zap.Logger
	notify    *notifier
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfirmWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Coordinator{
		transport: cfg.Transport,
		players:   cfg.Players,
		clock:     cfg.Clock,
		window:    cfg.Window,
		retry:     cfg.Retry,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		notify: &notifier{
			transport: cfg.Transport,
			retry:     cfg.Retry,
			clock:     cfg.Clock,
			logger:    cfg.Logger,
		},
	}
}

// Run drives one pair from Created to a terminal state. Blocks until resolved.
func (c *Coordinator) Run(ctx context.Context, pair models.Pair) ConfirmationResult {
	state := models.StateCreated
	result := ConfirmationResult{Pair: pair, State: state, Confirmed: map[string]bool{}}
	pairTopic := transport.PairTopic(pair.PlayerA, pair.PlayerB)
	log := c.logger.With(zap.String("matchId", pair.MatchID), zap.Strings("players", pair.Players()))

	sub, err := retry.Value(ctx, c.retry, "subscribe pair topic", func(ctx context.Context) (*transport.Subscription, error) {
		return c.transport.Subscribe(ctx, pairTopic)
	})
	if err != nil {
		log.Error("Failed to open confirmation channel", zap.Error(err))
		return c.abort(result, fmt.Errorf("failed to subscribe to %s: %w", pairTopic, err))
	}
	defer sub.Close()

	// 타이머는 알림 전에 시작해야 알림 지연이 창을 늘리지 않는다
	timer := c.clock.Timer(c.window)
	defer timer.Stop()

	state = models.StateAwaitingConfirmation
	matched := models.Event{Type: models.EventMatched, MatchID: pair.MatchID, Players: pair.Players(), Topic: pairTopic}
	if err := c.notify.publish(ctx, matched, transport.PlayerTopic(pair.PlayerA), transport.PlayerTopic(pair.PlayerB)); err != nil {
		log.Warn("Match notification partially failed", zap.Error(err))
	}
	log.Info("Awaiting confirmation", zap.Duration("window", c.window))

	for !state.Terminal() {
		select {
		case <-ctx.Done():
			log.Warn("Confirmation aborted", zap.Error(ctx.Err()))
			result.State = models.StateTimedOut
			return c.abort(result, ctx.Err())

		case <-timer.C:
			state = models.StateTimedOut

		case msg, ok := <-sub.Messages():
			if !ok {
				return c.abort(result, transport.ErrClosed)
			}
			if c.handleSignal(ctx, log, pair, msg, result.Confirmed) &&
				result.Confirmed[pair.PlayerA] && result.Confirmed[pair.PlayerB] {
				state = models.StateConfirmed
			}
		}
	}

	result.State = state
	if state == models.StateConfirmed {
		c.resolveConfirmed(ctx, log, &result, pairTopic)
	} else {
		c.resolveTimedOut(ctx, log, &result, pairTopic)
	}
	return result
}

// handleSignal 유효한 새 확인이면 true. 중복/외부인/다른 이벤트는 무시.
func (c *Coordinator) handleSignal(ctx context.Context, log *zap.Logger, pair models.Pair, msg transport.Message, confirmed map[string]bool) bool {
	event, err := models.ParseEvent(msg.Payload)
	if err != nil {
		log.Warn("Dropping malformed confirmation", zap.Error(err))
		return false
	}
	if event.Type == models.EventUnknown {
		log.Debug("Dropping unknown event", zap.String("raw", event.Raw))
		return false
	}
	if event.Type != models.EventConfirmed {
		return false
	}
	if event.MatchID != "" && event.MatchID != pair.MatchID {
		return false
	}
	if !pair.Has(event.PlayerID) {
		log.Warn("Ignoring confirmation from outsider", zap.String("playerId", event.PlayerID))
		return false
	}
	if confirmed[event.PlayerID] {
		return false
	}

	confirmed[event.PlayerID] = true
	log.Info("Player confirmed", zap.String("playerId", event.PlayerID))

	if err := mergeUpdate(ctx, c.retry, c.players, event.PlayerID, models.PlayerFields{models.FieldConfirmed: true}); err != nil {
		log.Warn("Failed to record confirmation", zap.String("playerId", event.PlayerID), zap.Error(err))
	}
	monitor := models.Event{Type: models.EventConfirmed, MatchID: pair.MatchID, PlayerID: event.PlayerID, Players: pair.Players()}
	_ = c.notify.publish(ctx, monitor)
	return true
}

func (c *Coordinator) resolveConfirmed(ctx context.Context, log *zap.Logger, result *ConfirmationResult, pairTopic string) {
	pair := result.Pair
	session := &models.Session{
		MatchID:   pair.MatchID,
		PlayerA:   pair.PlayerA,
		PlayerB:   pair.PlayerB,
		Region:    pair.Region,
		Topic:     transport.SessionTopic(pair.PlayerA, pair.PlayerB),
		StartedAt: c.clock.Now(),
	}
	result.Session = session

	for _, id := range pair.Players() {
		if err := mergeUpdate(ctx, c.retry, c.players, id, models.PlayerFields{models.FieldSearching: false}); err != nil {
			log.Warn("Failed to clear searching flag", zap.String("playerId", id), zap.Error(err))
		}
	}

	inMatch := models.Event{Type: models.EventInMatch, MatchID: pair.MatchID, Players: pair.Players(), Topic: session.Topic}
	_ = c.notify.publish(ctx, inMatch, pairTopic, transport.PlayerTopic(pair.PlayerA), transport.PlayerTopic(pair.PlayerB))

	c.metrics.IncConfirmation(confirmOutcomeConfirmed)
	log.Info("Match confirmed", zap.String("session", session.Topic))
}

func (c *Coordinator) resolveTimedOut(ctx context.Context, log *zap.Logger, result *ConfirmationResult, pairTopic string) {
	pair := result.Pair

	for _, id := range pair.Players() {
		fields := models.PlayerFields{
			models.FieldSearching: false,
			models.FieldConfirmed: false,
			models.FieldPunished:  false,
		}
		if !result.Confirmed[id] {
			fields[models.FieldPunished] = true
			result.Punished = append(result.Punished, id)
			c.metrics.IncPunished()
		}
		if err := mergeUpdate(ctx, c.retry, c.players, id, fields); err != nil {
			log.Warn("Failed to write timeout result", zap.String("playerId", id), zap.Error(err))
		}
	}

	timeout := models.Event{Type: models.EventTimeout, MatchID: pair.MatchID, Players: pair.Players(), Reason: "confirmation window expired"}
	_ = c.notify.publish(ctx, timeout, pairTopic, transport.PlayerTopic(pair.PlayerA), transport.PlayerTopic(pair.PlayerB))

	c.metrics.IncConfirmation(confirmOutcomeTimedOut)
	log.Info("Match timed out", zap.Strings("punished", result.Punished))
}

func (c *Coordinator) abort(result ConfirmationResult, err error) ConfirmationResult {
	result.State = models.StateTimedOut
	result.Err = err
	c.metrics.IncConfirmation(confirmOutcomeAborted)
	return result
}
