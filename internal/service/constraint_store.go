package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/PubNubDevelopers/SBMM-Engine/internal/models"
	"github.com/PubNubDevelopers/SBMM-Engine/pkg/transport"
	"go.uber.org/zap"
)

// ConstraintStore 현재 제약 스냅샷. 읽기는 락 없이, 쓰기는 새 스냅샷으로 교체.
type ConstraintStore struct {
	current atomic.Pointer[models.Constraints]
	logger  *zap.Logger
}

func NewConstraintStore(initial models.Constraints, logger *zap.Logger) *ConstraintStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ConstraintStore{logger: logger}
	s.current.Store(&initial)
	return s
}

// Get 현재 스냅샷 (복사본)
func (s *ConstraintStore) Get() models.Constraints {
	return *s.current.Load()
}

// Update 알려진 키만 반영. 잘못된 값은 건너뛰고 나머지는 적용한다.
// 반영된 키 목록과 마지막 오류를 돌려준다.
func (s *ConstraintStore) Update(values map[string]float64) ([]string, error) {
	for {
		old := s.current.Load()
		next := *old
		var applied []string
		var lastErr error

		for key, value := range values {
			updated, err := next.With(key, value)
			if err != nil {
				s.logger.Warn("Ignoring constraint update", zap.String("key", key), zap.Float64("value", value), zap.Error(err))
				lastErr = err
				continue
			}
			next = updated
			applied = append(applied, key)
		}

		if len(applied) == 0 {
			return nil, lastErr
		}
		if s.current.CompareAndSwap(old, &next) {
			s.logger.Info("Constraints updated", zap.Strings("keys", applied), zap.Any("constraints", next))
			return applied, lastErr
		}
	}
}

// ApplyMessage 제어 피드 메시지 하나를 반영. 값은 숫자 또는 숫자 문자열.
func (s *ConstraintStore) ApplyMessage(payload []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return fmt.Errorf("%w: %v", models.ErrMalformedEvent, err)
	}

	values := make(map[string]float64, len(raw))
	for key, v := range raw {
		f, ok := toFloat(v)
		if !ok {
			s.logger.Warn("Ignoring non-numeric constraint", zap.String("key", key), zap.Any("value", v))
			continue
		}
		values[key] = f
	}
	if len(values) == 0 {
		return nil
	}

	_, err := s.Update(values)
	return err
}

// Subscribe SBMM-conditions 토픽을 소비한다. ctx 가 끝날 때까지 블록.
func (s *ConstraintStore) Subscribe(ctx context.Context, tr transport.Transport) error {
	sub, err := tr.Subscribe(ctx, transport.ControlTopic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to control feed: %w", err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			if err := s.ApplyMessage(msg.Payload); err != nil {
				s.logger.Warn("Control message not fully applied", zap.Error(err))
			}
		}
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
