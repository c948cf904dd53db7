package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/crmkit/email-gateway/internal/model"
)

// SentCounter is the slice of the sent-messages store the limiter needs.
type SentCounter interface {
	CountForMailboxSince(ctx context.Context, mailboxID string, since time.Time) (int, error)
}

// Decision is the limiter's admission verdict for one send.
type Decision struct {
	Allowed bool
	Reason  string
}

// RateLimiter enforces per-mailbox rolling hourly and daily send limits by
// counting sent rows in the trailing windows. Counts are re-queried per
// item, never cached across a run: a send during the run changes the count
// for subsequent items on the same mailbox.
type RateLimiter struct {
	counts SentCounter
}

func NewRateLimiter(counts SentCounter) *RateLimiter {
	return &RateLimiter{counts: counts}
}

// Check evaluates both windows at now. A limit of zero or below means the
// window is unlimited.
func (l *RateLimiter) Check(ctx context.Context, mb model.Mailbox, now time.Time) (Decision, error) {
	if mb.HourlyLimit > 0 {
		n, err := l.counts.CountForMailboxSince(ctx, mb.ID, now.Add(-time.Hour))
		if err != nil {
			return Decision{}, fmt.Errorf("hourly count: %w", err)
		}
		if n >= mb.HourlyLimit {
			return Decision{Reason: fmt.Sprintf("hourly limit reached (%d/%d)", n, mb.HourlyLimit)}, nil
		}
	}

	if mb.DailyLimit > 0 {
		n, err := l.counts.CountForMailboxSince(ctx, mb.ID, now.Add(-24*time.Hour))
		if err != nil {
			return Decision{}, fmt.Errorf("daily count: %w", err)
		}
		if n >= mb.DailyLimit {
			return Decision{Reason: fmt.Sprintf("daily limit reached (%d/%d)", n, mb.DailyLimit)}, nil
		}
	}

	return Decision{Allowed: true}, nil
}
