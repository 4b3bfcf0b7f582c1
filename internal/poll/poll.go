// Package poll implements the bounded retry loop behind every wait in
// kiauto: windows appearing, focus changes, files being written.
//
// The budget is a number of attempts, not a deadline. Until evaluates the
// query at most Attempts(opts) times and sleeps Interval between them.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/regenrek/kiauto/internal/logging"
)

var (
	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("poll: timed out")
	// ErrFatal marks query errors that must stop polling at once.
	ErrFatal = errors.New("poll: fatal")
)

// Options describe one bounded wait.
type Options struct {
	// What names the awaited condition in errors and logs.
	What     string
	Timeout  time.Duration
	Interval time.Duration
}

// Query reports whether the condition holds. A nil error with done=false
// means "not yet". Errors wrapping ErrFatal abort the wait; any other error
// is treated as "not yet" and kept for the timeout report.
type Query[T any] func(ctx context.Context) (T, bool, error)

// TimeoutError is returned when the attempt budget is exhausted.
type TimeoutError struct {
	What     string
	Timeout  time.Duration
	Attempts int
	// Last is the most recent non-fatal query error, if any.
	Last error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out waiting for %s (%s, %d attempts)", e.What, e.Timeout, e.Attempts)
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func (e *TimeoutError) Unwrap() error { return e.Last }

// Attempts returns floor(Timeout/Interval). A non-positive interval or a
// timeout shorter than one interval yields zero.
func Attempts(opts Options) int {
	if opts.Interval <= 0 || opts.Timeout <= 0 {
		return 0
	}
	return int(opts.Timeout / opts.Interval)
}

// Fatal wraps err so that Until stops polling and returns it.
func Fatal(err error) error {
	if err == nil || errors.Is(err, ErrFatal) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

// sleep is replaced in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Until runs query until it reports done, a fatal error occurs, or the
// attempt budget is spent. ctx only interrupts the sleeps between attempts.
func Until[T any](ctx context.Context, opts Options, query Query[T]) (T, error) {
	var zero T
	if query == nil {
		return zero, errors.New("poll: query is required")
	}
	attempts := Attempts(opts)
	progress := logging.NewThrottle(5*time.Second, slog.LevelDebug)
	var last error
	for i := 0; i < attempts; i++ {
		value, done, err := query(ctx)
		if err != nil {
			if errors.Is(err, ErrFatal) {
				return zero, err
			}
			last = err
		} else if done {
			if i > 0 {
				slog.Debug("wait satisfied", slog.String("what", opts.What), slog.Int("attempt", i+1))
			}
			return value, nil
		}
		if i == attempts-1 {
			break
		}
		progress.Log(ctx, "still waiting",
			slog.String("what", opts.What), slog.Int("attempt", i+1), slog.Int("budget", attempts))
		if err := sleep(ctx, opts.Interval); err != nil {
			return zero, fmt.Errorf("waiting for %s: %w", opts.What, err)
		}
	}
	return zero, &TimeoutError{What: opts.What, Timeout: opts.Timeout, Attempts: attempts, Last: last}
}

// Check adapts a boolean condition to a Query.
func Check(fn func(ctx context.Context) (bool, error)) Query[struct{}] {
	return func(ctx context.Context) (struct{}, bool, error) {
		ok, err := fn(ctx)
		return struct{}{}, ok, err
	}
}
