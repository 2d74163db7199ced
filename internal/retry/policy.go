// Package retry классифицирует ошибки фулфилмента и вычисляет задержки повторов.
package retry

import (
	"errors"
	"time"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

const (
	defaultBaseDelay   = 1 * time.Minute
	defaultMaxDelay    = 6 * time.Hour
	defaultMaxAttempts = 10
)

// Class — исход классификации ошибки.
type Class int

const (
	// ClassTerminal — повторы бессмысленны, заказ помечается failed.
	ClassTerminal Class = iota
	// ClassRetryable — временная ошибка, заказ уходит в retrying с backoff.
	ClassRetryable
)

// Policy задаёт параметры экспоненциального backoff и лимит попыток.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultPolicy возвращает политику по умолчанию.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
		MaxAttempts: defaultMaxAttempts,
	}
}

// Classify относит ошибку к retryable или terminal.
// Rate-limit, forbidden и 5xx от внешнего сервиса — временные.
// Исчерпание ёмкости — временное: новые места могут появиться позже.
// Всё остальное (ошибки данных, конфигурации, not found) — терминально сразу.
func (p Policy) Classify(err error) Class {
	if err == nil {
		return ClassTerminal
	}

	if errors.Is(err, domain.ErrNoCapacity) {
		return ClassRetryable
	}

	if statusErr, ok := domain.AsStatusError(err); ok {
		switch statusErr.Kind {
		case domain.ErrKindRateLimited, domain.ErrKindForbidden, domain.ErrKindUnavailable:
			return ClassRetryable
		default:
			return ClassTerminal
		}
	}

	return ClassTerminal
}

// NextDelay возвращает задержку перед повтором после attempt неудачных попыток:
// min(MaxDelay, BaseDelay * 2^(attempt-1)). Монотонна по attempt до потолка.
func (p Policy) NextDelay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	if base > maxDelay {
		return maxDelay
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			return maxDelay
		}
		delay *= 2
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// Exhausted сообщает, исчерпан ли лимит попыток.
// После исчерпания заказ терминально failed даже при retryable-ошибке.
func (p Policy) Exhausted(attempts int) bool {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return attempts >= maxAttempts
}
