// Package polling drives a status check at a fixed interval until the result
// is terminal, the attempt budget runs out or the context is cancelled.
package polling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/genforge/backend/internal/models"
)

// ErrTimeout is returned when every attempt completed without a terminal result.
var ErrTimeout = errors.New("polling budget exhausted")

type Options struct {
	Interval    time.Duration
	MaxAttempts int
	// GracePeriod is waited once before the first check.
	GracePeriod time.Duration
}

// DefaultGracePeriod is the delay before the first check.
const DefaultGracePeriod = 2 * time.Second

// DefaultOptions returns the polling budget for a media kind.
func DefaultOptions(kind models.Kind) Options {
	switch kind {
	case models.KindVideo:
		return Options{Interval: 15 * time.Second, MaxAttempts: 60, GracePeriod: DefaultGracePeriod}
	case models.KindMusic:
		return Options{Interval: 10 * time.Second, MaxAttempts: 36, GracePeriod: DefaultGracePeriod}
	default:
		return Options{Interval: 5 * time.Second, MaxAttempts: 60, GracePeriod: DefaultGracePeriod}
	}
}

// Poller repeatedly calls Check until Done reports true.
type Poller[T any] struct {
	Options Options
	Check   func(ctx context.Context) (T, error)
	Done    func(T) bool
	// OnProgress, if set, is called after every attempt with the value or
	// the error the attempt produced.
	OnProgress func(attempt int, v T, err error)
}

// Run polls until Done, error on the last attempt, exhaustion or ctx
// cancellation. Errors on earlier attempts are reported to OnProgress and
// treated as "still processing".
func (p *Poller[T]) Run(ctx context.Context) (T, error) {
	var zero T
	maxAttempts := p.Options.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	if err := sleep(ctx, p.Options.GracePeriod); err != nil {
		return zero, err
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, err := p.Check(ctx)
		if p.OnProgress != nil {
			p.OnProgress(attempt, v, err)
		}
		switch {
		case err != nil && ctx.Err() != nil:
			return zero, ctx.Err()
		case err != nil && attempt == maxAttempts:
			return zero, fmt.Errorf("poll attempt %d/%d: %w", attempt, maxAttempts, err)
		case err == nil && p.Done(v):
			return v, nil
		}

		if attempt < maxAttempts {
			if err := sleep(ctx, p.Options.Interval); err != nil {
				return zero, err
			}
		}
	}
	return zero, fmt.Errorf("%w after %d attempts", ErrTimeout, maxAttempts)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
