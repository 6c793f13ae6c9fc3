package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/parleychat/parley/internal/models"
)

// DailyPromptLimit is how many prompts a basic-tier user may send per UTC day.
const DailyPromptLimit = 5

// ErrDailyLimitReached is returned by Admit when a basic-tier user has used
// up their daily quota.
var ErrDailyLimitReached = errors.New("daily prompt limit reached")

// Limiter gates prompt submissions per user and UTC calendar day. Pro-tier
// users are never limited. The counter increment is not transactional with
// message creation: two requests racing at the limit boundary are resolved
// by the counter store's atomicity, not by the limiter.
type Limiter struct {
	counter Counter
	limit   int64

	// Now is the clock used to derive the day key and expiry; tests
	// override it to cross day boundaries.
	Now func() time.Time
}

func New(counter Counter) *Limiter {
	return &Limiter{counter: counter, limit: DailyPromptLimit, Now: time.Now}
}

// Admit increments the caller's daily counter and reports whether the
// prompt may proceed. A counter-store failure is returned as an error so
// the limit is never silently bypassed.
func (l *Limiter) Admit(ctx context.Context, userID, tier string) error {
	if strings.EqualFold(tier, models.TierPro) {
		return nil
	}

	now := l.Now().UTC()
	key := fmt.Sprintf("daily_prompts:%s:%s", userID, now.Format("20060102"))

	count, err := l.counter.Increment(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to increment prompt counter: %w", err)
	}

	if count == 1 {
		// First prompt of the day: expire the counter at the next UTC midnight.
		midnight := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		if err := l.counter.ExpireAt(ctx, key, midnight); err != nil {
			return fmt.Errorf("failed to set counter expiry: %w", err)
		}
	}

	if count > l.limit {
		return ErrDailyLimitReached
	}
	return nil
}
