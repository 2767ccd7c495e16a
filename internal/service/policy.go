package service

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/cwrk-planet/tripchat/internal/domain"

	"golang.org/x/time/rate"
)

// Policy проверяет сообщение до сохранения. Ошибка уходит только отправителю.
type Policy interface {
	Check(ctx context.Context, userID, tripID, text string) error
}

type PolicyFunc func(ctx context.Context, userID, tripID, text string) error

func (f PolicyFunc) Check(ctx context.Context, userID, tripID, text string) error {
	return f(ctx, userID, tripID, text)
}

// MaxLength ограничивает длину текста в рунах.
func MaxLength(n int) Policy {
	return PolicyFunc(func(_ context.Context, _, _, text string) error {
		if l := utf8.RuneCountInString(text); l > n {
			return fmt.Errorf("%w: message too long (%d > %d)", domain.ErrPolicyRejected, l, n)
		}
		return nil
	})
}

// RateLimit: token bucket на пользователя.
type RateLimit struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func NewRateLimit(perSecond float64, burst int) *RateLimit {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimit{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (r *RateLimit) Check(_ context.Context, userID, _, _ string) error {
	if !r.limiter(userID).Allow() {
		return fmt.Errorf("%w: rate limit exceeded", domain.ErrPolicyRejected)
	}
	return nil
}

func (r *RateLimit) limiter(userID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[userID]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[userID] = l
	}
	return l
}
