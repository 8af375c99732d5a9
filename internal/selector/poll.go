package selector

import (
	"context"
	"errors"
	"time"
)

// Outcome is the result of a bounded poll.
type Outcome int

// Poll outcomes. Timeout is distinct from both success and hard failure.
const (
	OutcomeSuccess Outcome = iota
	OutcomeTimeout
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "failed"
	}
}

// ErrHardFailure marks a check error that must stop polling immediately.
var ErrHardFailure = errors.New("hard failure")

// PollConfig bounds a polling loop.
type PollConfig struct {
	Attempts int
	Interval time.Duration
}

// Check is evaluated once per attempt. Errors other than ErrHardFailure are
// treated as transient and retried.
type Check func(ctx context.Context) (bool, error)

// Poll repeats check up to cfg.Attempts times with cfg.Interval between
// attempts.
func Poll(ctx context.Context, cfg PollConfig, check Check) (Outcome, error) {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		done, err := safeCheck(ctx, check)
		switch {
		case err != nil && errors.Is(err, ErrHardFailure):
			return OutcomeFailed, err
		case err != nil:
			lastErr = err
		case done:
			return OutcomeSuccess, nil
		}
		if i == attempts-1 {
			break
		}
		if err := Sleep(ctx, cfg.Interval); err != nil {
			return OutcomeFailed, err
		}
	}
	return OutcomeTimeout, lastErr
}

func safeCheck(ctx context.Context, check Check) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			done = false
			err = errors.New("poll check panicked")
		}
	}()
	if err := ctx.Err(); err != nil {
		return false, errors.Join(ErrHardFailure, err)
	}
	return check(ctx)
}

// Sleep waits for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
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
