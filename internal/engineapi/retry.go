package engineapi

import (
	"context"
	"errors"
	"time"

	"github.com/shaiso/Concierge/internal/telemetry"
)

// RetryPolicy — политика повторных попыток вызова engine'а.
//
// Повторяются только transient-ошибки (ErrTransient); отклонение
// engine'ом (ErrRejected) возвращается сразу.
type RetryPolicy struct {
	// MaxAttempts — максимум попыток, включая первую (default: 3).
	MaxAttempts int

	// BaseDelay — задержка перед второй попыткой; далее удваивается
	// (default: 500ms).
	BaseDelay time.Duration
}

// DefaultRetryPolicy возвращает политику по умолчанию: 3 попытки, base 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}
}

// normalized подставляет значения по умолчанию вместо нулевых.
func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	return p
}

// Do выполняет fn с повторами по политике.
//
// Между попытками — экспоненциальная задержка BaseDelay × 2^(n-1),
// прерываемая отменой контекста. Возвращается последняя ошибка.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p = p.normalized()

	var lastErr error
	delay := p.BaseDelay

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, ErrTransient) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		telemetry.EngineRetries.Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return lastErr
}
