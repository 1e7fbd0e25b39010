// Package transport is the narrow publish/subscribe + presence surface the
// matchmaking core talks to. Implementations live here (in-process) and in
// pkg/distributed (Redis).
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrClosed       = errors.New("transport closed")
	ErrInvalidTopic = errors.New("invalid topic")
)

// Well-known topics.
const (
	ControlTopic = "SBMM-conditions"
	MonitorTopic = "matchmaking-monitor"
	LatencyTopic = "latency-reports"
)

// MatchmakingTopic presence of this topic is the set of waiting players in region.
func MatchmakingTopic(region string) string {
	return "matchmaking-" + region
}

// PlayerTopic 플레이어별 알림 채널
func PlayerTopic(playerID string) string {
	return "Matchmaking-In-Progress-" + playerID
}

// PairTopic 확인 핸드셰이크 채널
func PairTopic(a, b string) string {
	return fmt.Sprintf("pre-lobby-%s-%s", a, b)
}

// SessionTopic 게임 세션 채널
func SessionTopic(a, b string) string {
	return fmt.Sprintf("game-lobby-%s-%s", a, b)
}

// Message 토픽에서 받은 원본 메시지
type Message struct {
	Topic   string
	Payload []byte
}

// Transport 외부 실시간 기판 인터페이스
type Transport interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
	Presence(ctx context.Context, topic string) ([]string, error)
	Join(ctx context.Context, topic, playerID string) error
	Leave(ctx context.Context, topic, playerID string) error
}

// Subscription 구독 핸들. Close 이후 채널은 닫힌다.
type Subscription struct {
	Topic string

	ch    <-chan Message
	close func()
	once  sync.Once
}

// NewSubscription is used by Transport implementations.
func NewSubscription(topic string, ch <-chan Message, closeFn func()) *Subscription {
	return &Subscription{Topic: topic, ch: ch, close: closeFn}
}

// Messages 수신 채널
func (s *Subscription) Messages() <-chan Message {
	return s.ch
}

// Close 구독 해제 (여러 번 호출해도 안전)
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.close != nil {
			s.close()
		}
	})
}
