// Package retry wraps calls to the presence/record substrate in one reusable
// backoff policy with a transient-error classifier.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	retrygo "github.com/avast/retry-go"
	"go.uber.org/zap"
)

var (
	// ErrTransient marks a failure worth retrying (network blip, 5xx).
	ErrTransient = errors.New("transient failure")
	// ErrExhausted is returned once every attempt failed.
	ErrExhausted = errors.New("retries exhausted")
)

// Classifier decides whether an error should be retried.
type Classifier func(error) bool

// Policy 재시도 정책. 값 타입이라 복사해서 써도 안전하다.
type Policy struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
	// Timeout bounds each individual attempt. Zero disables it.
	Timeout    time.Duration
	Classifier Classifier
	Logger     *zap.Logger
	// OnRetry is called before each retry with the operation name.
	OnRetry func(op string, attempt uint, err error)
}

// DefaultPolicy 3회, 500ms 기본 지연, 최대 2s 백오프, 시도당 3s
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   3,
		Delay:      500 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		Timeout:    3 * time.Second,
		Classifier: IsTransient,
	}
}

// transient is implemented by errors that know their own retry class.
type transient interface {
	Transient() bool
}

type transientError struct {
	err error
}

func (e *transientError) Error() string   { return e.err.Error() }
func (e *transientError) Unwrap() error   { return e.err }
func (e *transientError) Transient() bool { return true }

// MarkTransient tags err so the default classifier retries it.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient 기본 분류기: 명시적 표시, 시도 타임아웃, 네트워크 오류만 재시도
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var t transient
	if errors.As(err, &t) {
		return t.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// Do runs fn until it succeeds, fails permanently, or attempts run out.
// Each attempt gets its own timeout derived from ctx.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	p = p.normalized()

	var attempts uint
	err := retrygo.Do(
		func() error {
			attempts++
			attemptCtx, cancel := p.attemptContext(ctx)
			defer cancel()
			return fn(attemptCtx)
		},
		retrygo.Context(ctx),
		retrygo.Attempts(p.Attempts),
		retrygo.Delay(p.Delay),
		retrygo.MaxDelay(p.MaxDelay),
		retrygo.DelayType(retrygo.BackOffDelay),
		retrygo.LastErrorOnly(true),
		retrygo.RetryIf(func(err error) bool {
			return ctx.Err() == nil && p.Classifier(err)
		}),
		retrygo.OnRetry(func(n uint, err error) {
			p.Logger.Debug("Retrying operation",
				zap.String("op", op),
				zap.Uint("attempt", n+1),
				zap.Error(err))
			if p.OnRetry != nil {
				p.OnRetry(op, n+1, err)
			}
		}),
	)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if attempts >= p.Attempts && p.Classifier(err) {
		p.Logger.Warn("Operation failed after retries",
			zap.String("op", op),
			zap.Uint("attempts", attempts),
			zap.Error(err))
		return fmt.Errorf("%s failed after %d attempts: %w: %w", op, attempts, ErrExhausted, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Value is Do for calls that return a result.
func Value[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func (p Policy) normalized() Policy {
	if p.Attempts == 0 {
		p.Attempts = 1
	}
	if p.Classifier == nil {
		p.Classifier = IsTransient
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return p
}

func (p Policy) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.Timeout)
}
