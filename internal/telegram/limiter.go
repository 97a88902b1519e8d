package telegram

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// userLimiter hands out one token bucket per Telegram user.
type userLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[int64]*rate.Limiter
}

// newUserLimiter allows burst requests per user, refilled one per every.
// A non-positive every or burst disables limiting.
func newUserLimiter(every time.Duration, burst int) *userLimiter {
	if every <= 0 || burst <= 0 {
		return nil
	}
	return &userLimiter{
		limit:    rate.Every(every),
		burst:    burst,
		limiters: make(map[int64]*rate.Limiter),
	}
}

// Allow reports whether userID may issue another request now.
func (l *userLimiter) Allow(userID int64) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	limiter, ok := l.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}
