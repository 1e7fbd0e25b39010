package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/models"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/retry"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/transport"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// notifier 이벤트를 여러 토픽에 발행 (토픽마다 재시도)
type notifier struct {
	transport transport.Transport
	retry     retry.Policy
	clock     clock.Clock
	logger    *zap.Logger
}

// publish sends event to every topic plus the monitor feed.
// A failed topic does not stop the others; the errors are joined.
func (n *notifier) publish(ctx context.Context, event models.Event, topics ...string) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = n.clock.Now()
	}
	payload, err := event.Marshal()
	if err != nil {
		return err
	}

	all := append(append([]string(nil), topics...), transport.MonitorTopic)

	var errs []error
	for _, topic := range all {
		topic := topic
		err := n.retry.Do(ctx, "publish "+string(event.Type), func(ctx context.Context) error {
			return n.transport.Publish(ctx, topic, payload)
		})
		if err != nil {
			n.logger.Warn("Failed to publish event",
				zap.String("type", string(event.Type)),
				zap.String("topic", topic),
				zap.String("matchId", event.MatchID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("topic %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}

// mergeUpdate 플레이어 부분 업데이트 (재시도)
func mergeUpdate(ctx context.Context, p retry.Policy, players playerWriter, id string, fields models.PlayerFields) error {
	return p.Do(ctx, "merge player "+id, func(ctx context.Context) error {
		return players.MergeUpdate(ctx, id, fields)
	})
}

type playerWriter interface {
	MergeUpdate(ctx context.Context, id string, fields models.PlayerFields) error
}
