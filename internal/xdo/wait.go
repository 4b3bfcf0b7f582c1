package xdo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/regenrek/kiauto/internal/poll"
	"github.com/regenrek/kiauto/internal/timeouts"
)

// Target describes a window to wait for.
type Target struct {
	// Name is a human readable label for logs and errors.
	Name string
	// Pattern is the title regex handed to xdotool search.
	Pattern string
	Timeout time.Duration
	// Focus requests focusing the window and waiting until it has focus.
	Focus bool
	// Skip holds ids that must not be picked, such as the main window when
	// a dialog shares its title.
	Skip []string
	// Others are title patterns that abort the wait when one shows up.
	Others []string
}

// Match is the outcome of a successful window wait.
type Match struct {
	// ID is the first matching window not listed in Target.Skip.
	ID string
	// All holds every matching id in search order.
	All []string
}

// UnexpectedWindowError reports a window from Target.Others showing up
// while waiting for another one.
type UnexpectedWindowError struct {
	Waiting string
	Pattern string
	ID      string
}

func (e *UnexpectedWindowError) Error() string {
	return fmt.Sprintf("unexpected window %q (%s) while waiting for %s", e.Pattern, e.ID, e.Waiting)
}

func (e *UnexpectedWindowError) Unwrap() error { return poll.ErrFatal }

// WaitForWindow polls until a window matching t.Pattern is visible.
func (c *Client) WaitForWindow(ctx context.Context, t Target) (Match, error) {
	if t.Pattern == "" {
		return Match{}, errors.New("window pattern is required")
	}
	if t.Name == "" {
		t.Name = t.Pattern
	}
	if t.Timeout <= 0 {
		t.Timeout = timeouts.Window
	}
	slog.Info("waiting for window", slog.String("window", t.Name), slog.String("pattern", t.Pattern), slog.Duration("timeout", t.Timeout))
	opts := poll.Options{What: "window " + t.Name, Timeout: t.Timeout, Interval: c.interval}
	match, err := poll.Until(ctx, opts, func(ctx context.Context) (Match, bool, error) {
		ids, err := c.Search(ctx, t.Pattern)
		if err != nil {
			return Match{}, false, err
		}
		if id := pick(ids, t.Skip); id != "" {
			return Match{ID: id, All: ids}, true, nil
		}
		for _, other := range t.Others {
			found, err := c.Search(ctx, other)
			if err != nil || len(found) == 0 {
				continue
			}
			return Match{}, false, &UnexpectedWindowError{Waiting: t.Name, Pattern: other, ID: found[0]}
		}
		return Match{}, false, nil
	})
	if err != nil {
		return Match{}, err
	}
	slog.Debug("found window", slog.String("window", t.Name), slog.String("id", match.ID), slog.Any("all", match.All))
	if !t.Focus {
		return match, nil
	}
	if err := c.Focus(ctx, match.ID); err != nil {
		slog.Debug("windowfocus failed", slog.String("id", match.ID), slog.Any("err", err))
	}
	if err := c.WaitFocused(ctx, match.ID, c.focusBudget()); err != nil {
		return match, err
	}
	return match, nil
}

func (c *Client) focusBudget() time.Duration {
	if c.focusTimeout > 0 {
		return c.focusTimeout
	}
	return timeouts.Focus
}

// WaitFocused waits until id holds keyboard focus.
func (c *Client) WaitFocused(ctx context.Context, id string, timeout time.Duration) error {
	opts := poll.Options{What: "focus on " + id, Timeout: timeout, Interval: c.interval}
	_, err := poll.Until(ctx, opts, poll.Check(func(ctx context.Context) (bool, error) {
		cur, err := c.FocusedWindow(ctx)
		if err != nil {
			return false, err
		}
		return cur == id, nil
	}))
	return err
}

// WaitNotFocused waits until id loses keyboard focus. A failing
// getwindowfocus means nothing is focused, which satisfies the wait.
func (c *Client) WaitNotFocused(ctx context.Context, id string, timeout time.Duration) error {
	opts := poll.Options{What: "focus to leave " + id, Timeout: timeout, Interval: c.interval}
	_, err := poll.Until(ctx, opts, poll.Check(func(ctx context.Context) (bool, error) {
		cur, err := c.FocusedWindow(ctx)
		if err != nil {
			return true, nil
		}
		return cur != id, nil
	}))
	return err
}

// pick returns the first id not present in skip.
func pick(ids, skip []string) string {
	for _, id := range ids {
		if !slices.Contains(skip, id) {
			return id
		}
	}
	return ""
}
