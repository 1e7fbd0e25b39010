package distributed

import (
	"context"
	"fmt"
	"time"

	"github.com/PubNubDevelopers/SBMM-Engine/pkg/transport"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const subscriptionBuffer = 256

// RedisTransport Redis Pub/Sub + Sorted Set 기반 presence 전송 계층
// presence:<topic> 는 참여 시각을 score로 가지는 ZSET
type RedisTransport struct {
	client         *redis.Client
	logger         *zap.Logger
	instanceID     string
	presencePrefix string
}

var _ transport.Transport = (*RedisTransport)(nil)

// NewRedisTransport Redis 전송 계층 생성
func NewRedisTransport(client *redis.Client, logger *zap.Logger) *RedisTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisTransport{
		client:         client,
		logger:         logger,
		instanceID:     uuid.New().String(),
		presencePrefix: "presence:",
	}
}

// Publish 메시지 발행
func (t *RedisTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return transport.ErrInvalidTopic
	}
	if err := t.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	t.logger.Debug("Published message",
		zap.String("topic", topic),
		zap.Int("bytes", len(payload)))
	return nil
}

// Subscribe 구독 확인 후 메시지를 전달하는 고루틴 시작
func (t *RedisTransport) Subscribe(ctx context.Context, topic string) (*transport.Subscription, error) {
	if topic == "" {
		return nil, transport.ErrInvalidTopic
	}

	pubsub := t.client.Subscribe(ctx, topic)

	// 구독 확인
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	out := make(chan transport.Message, subscriptionBuffer)
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- transport.Message{Topic: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-stop:
					return
				}
			case <-stop:
				return
			}
		}
	}()

	t.logger.Debug("Subscribed",
		zap.String("instance_id", t.instanceID),
		zap.String("topic", topic))

	return transport.NewSubscription(topic, out, func() {
		close(stop)
		<-done
	}), nil
}

// Presence 참여 순서대로 id 목록
func (t *RedisTransport) Presence(ctx context.Context, topic string) ([]string, error) {
	ids, err := t.client.ZRange(ctx, t.presenceKey(topic), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence of %s: %w", topic, err)
	}
	return ids, nil
}

// Join presence 등록 (NX: 기존 참여 시각 유지)
func (t *RedisTransport) Join(ctx context.Context, topic, playerID string) error {
	member := redis.Z{Score: float64(time.Now().UnixNano()), Member: playerID}
	if err := t.client.ZAddNX(ctx, t.presenceKey(topic), member).Err(); err != nil {
		return fmt.Errorf("failed to join %s: %w", topic, err)
	}
	return nil
}

// Leave presence 해제
func (t *RedisTransport) Leave(ctx context.Context, topic, playerID string) error {
	if err := t.client.ZRem(ctx, t.presenceKey(topic), playerID).Err(); err != nil {
		return fmt.Errorf("failed to leave %s: %w", topic, err)
	}
	return nil
}

func (t *RedisTransport) presenceKey(topic string) string {
	return t.presencePrefix + topic
}
