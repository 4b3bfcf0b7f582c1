// Package xdo drives X11 windows through xdotool.
package xdo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/regenrek/kiauto/internal/logging"
	"github.com/regenrek/kiauto/internal/timeouts"
)

// Client runs xdotool commands against the current DISPLAY.
type Client struct {
	bin string
	run func(ctx context.Context, name string, args ...string) *exec.Cmd
	// focusTimeout bounds a single windowfocus --sync call.
	focusTimeout time.Duration
	interval     time.Duration
	keyDelay     time.Duration
}

// NewClient resolves the xdotool binary and returns a Client.
func NewClient(xdotoolPath string) (*Client, error) {
	if xdotoolPath == "" {
		var err error
		xdotoolPath, err = exec.LookPath("xdotool")
		if err != nil {
			return nil, fmt.Errorf("xdotool not found in PATH: %w", err)
		}
	}
	return &Client{bin: xdotoolPath, run: exec.CommandContext, focusTimeout: timeouts.Focus, interval: timeouts.WindowPoll}, nil
}

// WithExec allows tests to override the exec implementation.
func (c *Client) WithExec(fn func(context.Context, string, ...string) *exec.Cmd) {
	c.run = fn
}

func (c *Client) command(ctx context.Context, args ...string) *exec.Cmd {
	slog.Debug("xdotool", slog.String("cmd", logging.CommandLine(c.bin, args...)))
	return c.run(ctx, c.bin, args...)
}

// Tune sets the window poll interval, the focus budget and the pause
// between key chords. Zero values keep the current setting.
func (c *Client) Tune(interval, focus, keyDelay time.Duration) {
	if interval > 0 {
		c.interval = interval
	}
	if focus > 0 {
		c.focusTimeout = focus
	}
	if keyDelay > 0 {
		c.keyDelay = keyDelay
	}
}

// Search lists visible windows whose title matches pattern. No match is
// not an error: xdotool exits 1 and Search returns an empty slice.
func (c *Client) Search(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		return nil, errors.New("search pattern is required")
	}
	cmd := c.command(ctx, "search", "--onlyvisible", "--name", pattern)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && len(strings.TrimSpace(string(out))) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("xdotool search %q: %w", pattern, err)
	}
	return splitIDs(string(out)), nil
}

// FocusedWindow returns the id of the window holding keyboard focus.
func (c *Client) FocusedWindow(ctx context.Context) (string, error) {
	out, err := c.command(ctx, "getwindowfocus").Output()
	if err != nil {
		return "", fmt.Errorf("xdotool getwindowfocus: %w", err)
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		return "", errors.New("xdotool getwindowfocus returned empty id")
	}
	return id, nil
}

// WindowName returns the title of id.
func (c *Client) WindowName(ctx context.Context, id string) (string, error) {
	out, err := c.command(ctx, "getwindowname", id).Output()
	if err != nil {
		return "", fmt.Errorf("xdotool getwindowname %s: %w", id, err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// Focus gives keyboard focus to id and waits for the X server to confirm.
func (c *Client) Focus(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("window id is required")
	}
	if c.focusTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.focusTimeout)
		defer cancel()
	}
	if err := c.command(ctx, "windowfocus", "--sync", id).Run(); err != nil {
		return fmt.Errorf("xdotool windowfocus %s: %w", id, err)
	}
	return nil
}

// Key sends key chords (for example "ctrl+v" or "Return") to the focused window.
func (c *Client) Key(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	args := []string{"key"}
	if c.keyDelay > 0 {
		args = append(args, "--delay", strconv.FormatInt(c.keyDelay.Milliseconds(), 10))
	}
	args = append(args, keys...)
	if err := c.command(ctx, args...).Run(); err != nil {
		return fmt.Errorf("xdotool key %s: %w", strings.Join(keys, " "), err)
	}
	return nil
}

// Type types text literally into the focused window.
func (c *Client) Type(ctx context.Context, text string) error {
	if err := c.command(ctx, "type", "--", text).Run(); err != nil {
		return fmt.Errorf("xdotool type: %w", err)
	}
	return nil
}

func splitIDs(out string) []string {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
