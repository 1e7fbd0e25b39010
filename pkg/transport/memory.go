package transport

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const subscriberBuffer = 256

type subscriber struct {
	id int
	ch chan Message
}

// MemoryBroker 프로세스 내 pub/sub + presence 구현
type MemoryBroker struct {
	mu       sync.RWMutex
	subs     map[string]map[int]*subscriber
	presence map[string][]string
	nextID   int
	closed   bool
	logger   *zap.Logger
}

// NewMemoryBroker 메모리 브로커 생성
func NewMemoryBroker(logger *zap.Logger) *MemoryBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryBroker{
		subs:     make(map[string]map[int]*subscriber),
		presence: make(map[string][]string),
		logger:   logger,
	}
}

// Publish 구독자 전체에 전달. 버퍼가 가득 찬 구독자는 메시지를 놓친다.
func (b *MemoryBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	msg := Message{Topic: topic, Payload: append([]byte(nil), payload...)}
	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- msg:
		default:
			b.logger.Warn("Subscriber buffer full, dropping message",
				zap.String("topic", topic))
		}
	}
	return nil
}

// Subscribe 토픽 구독
func (b *MemoryBroker) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	if topic == "" {
		return nil, ErrInvalidTopic
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	b.nextID++
	sub := &subscriber{id: b.nextID, ch: make(chan Message, subscriberBuffer)}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]*subscriber)
	}
	b.subs[topic][sub.id] = sub

	return NewSubscription(topic, sub.ch, func() { b.unsubscribe(topic, sub.id) }), nil
}

func (b *MemoryBroker) unsubscribe(topic string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[topic][id]
	if !ok {
		return
	}
	delete(b.subs[topic], id)
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
	close(sub.ch)
}

// Presence 참여 순서대로 id 목록 반환
func (b *MemoryBroker) Presence(ctx context.Context, topic string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	return append([]string(nil), b.presence[topic]...), nil
}

// Join presence 등록 (이미 있으면 무시)
func (b *MemoryBroker) Join(ctx context.Context, topic, playerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for _, id := range b.presence[topic] {
		if id == playerID {
			return nil
		}
	}
	b.presence[topic] = append(b.presence[topic], playerID)
	return nil
}

// Leave presence 해제
func (b *MemoryBroker) Leave(ctx context.Context, topic, playerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	ids := b.presence[topic]
	for i, id := range ids {
		if id == playerID {
			b.presence[topic] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(b.presence[topic]) == 0 {
		delete(b.presence, topic)
	}
	return nil
}

// Close 모든 구독 종료
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for topic, subs := range b.subs {
		for _, sub := range subs {
			close(sub.ch)
		}
		delete(b.subs, topic)
	}
	return nil
}
