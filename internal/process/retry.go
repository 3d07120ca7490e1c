package process

import (
	"context"
	"fmt"
	"time"
)

// Default retry policy for boot steps.
const (
	DefaultRetryAttempts = 5
	DefaultRetryDelay    = 5 * time.Second
)

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RetryPolicy bounds Retry. Zero values select the defaults.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration

	// Logger receives one warning per failed attempt.
	Logger Logger
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultRetryAttempts
	}
	if p.Delay <= 0 {
		p.Delay = DefaultRetryDelay
	}
	if p.Logger == nil {
		p.Logger = noopLogger{}
	}
	return p
}

// Retry runs fn until it succeeds, waiting a fixed delay between attempts.
// When every attempt fails it returns ErrRebootRequired wrapping the last
// error. A cancelled ctx stops the loop and returns ctx.Err().
func Retry(ctx context.Context, name string, policy RetryPolicy, fn func(ctx context.Context) error) error {
	policy = policy.withDefaults()

	var err error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			if attempt > 1 {
				policy.Logger.Info("boot step recovered", "step", name, "attempt", attempt)
			}
			return nil
		}
		policy.Logger.Warn("boot step failed",
			"step", name,
			"attempt", attempt,
			"max_attempts", policy.Attempts,
			"error", err,
		)
		if attempt == policy.Attempts {
			break
		}

		t := time.NewTimer(policy.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("%w: %s failed %d times: %w", ErrRebootRequired, name, policy.Attempts, err)
}
