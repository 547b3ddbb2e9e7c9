package engine

import (
	"context"
	"math"
	"time"

	"github.com/shaiso/Fleet/internal/domain"
)

// DelayFor вычисляет задержку перед повторной попыткой.
//
// attempt — номер повтора, начиная с 1 (задержка перед первой попыткой
// не вычисляется).
//
//   - "fixed": delay = DelayMs
//   - "exponential": delay = DelayMs * 2^(attempt-1)
//
// MaxDelayMs > 0 ограничивает результат сверху.
func DelayFor(policy domain.RetryPolicy, attempt int) time.Duration {
	policy = policy.Normalize()
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(policy.DelayMs) * time.Millisecond

	if policy.Backoff == domain.BackoffExponential {
		for i := 1; i < attempt; i++ {
			if delay > math.MaxInt64/2 {
				delay = math.MaxInt64
				break
			}
			delay *= 2
		}
	}

	if policy.MaxDelayMs > 0 {
		maxDelay := time.Duration(policy.MaxDelayMs) * time.Millisecond
		if delay > maxDelay {
			delay = maxDelay
		}
	}

	return delay
}

// WaitForBackoff ждёт delay или возвращает ошибку при отмене контекста.
func WaitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
