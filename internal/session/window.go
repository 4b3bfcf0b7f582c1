package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/regenrek/kiauto/internal/exitcode"
	"github.com/regenrek/kiauto/internal/xdo"
)

// maxDismiss bounds how many modal dialogs WaitMain clears before giving up.
const maxDismiss = 3

// Dialog is a modal KiCad may show instead of its main window.
type Dialog struct {
	Name    string
	Pattern string
	// Keys dismiss the dialog. A dialog without keys ends the run.
	Keys []string
	// Code is the exit status for a fatal dialog. ErrorCode when zero.
	Code int
}

// WaitMain waits for the main window and focuses it. Known dialogs that
// show up first are dismissed or reported.
func (s *Session) WaitMain(ctx context.Context, title string, timeout time.Duration, dialogs []Dialog) (xdo.Match, error) {
	others := make([]string, 0, len(dialogs))
	for _, d := range dialogs {
		others = append(others, d.Pattern)
	}
	target := xdo.Target{
		Name:    "main " + string(s.Kind) + " window",
		Pattern: title,
		Timeout: timeout,
		Focus:   true,
		Others:  others,
	}
	for dismissed := 0; ; dismissed++ {
		m, err := s.UI.WaitForWindow(ctx, target)
		var unexpected *xdo.UnexpectedWindowError
		if !errors.As(err, &unexpected) {
			return m, s.Fail(err)
		}
		d := findDialog(dialogs, unexpected.Pattern)
		if len(d.Keys) == 0 || dismissed >= maxDismiss {
			code := d.Code
			if code == 0 {
				code = s.ErrorCode()
			}
			return xdo.Match{}, exitcode.Wrap(code, fmt.Errorf("%s dialog: %w", d.Name, err))
		}
		slog.Warn("dismissing "+d.Name+" dialog", slog.String("id", unexpected.ID))
		if err := s.UI.Focus(ctx, unexpected.ID); err != nil {
			slog.Debug("focus dialog failed", slog.Any("err", err))
		}
		if err := s.UI.Key(ctx, d.Keys...); err != nil {
			return xdo.Match{}, s.Fail(err)
		}
	}
}

func findDialog(dialogs []Dialog, pattern string) Dialog {
	for _, d := range dialogs {
		if d.Pattern == pattern {
			return d
		}
	}
	return Dialog{Name: pattern, Pattern: pattern}
}

// WaitWindow waits for a dialog and focuses it. Ids in skip are never
// picked, so a second dialog sharing a title can be told apart.
func (s *Session) WaitWindow(ctx context.Context, name, pattern string, skip ...string) (xdo.Match, error) {
	m, err := s.UI.WaitForWindow(ctx, xdo.Target{
		Name:    name,
		Pattern: pattern,
		Timeout: s.Timeouts.Window.Std(),
		Focus:   true,
		Skip:    skip,
	})
	return m, s.Fail(err)
}

// Keys sends key chords to the focused window.
func (s *Session) Keys(ctx context.Context, keys ...string) error {
	return s.Fail(s.UI.Key(ctx, keys...))
}

// Quit stops app, first politely with keys when given, and waits for it.
func (s *Session) Quit(ctx context.Context, app App, keys ...string) error {
	if len(keys) > 0 {
		if err := s.UI.Key(ctx, keys...); err != nil {
			slog.Debug("quit keys failed", slog.Any("err", err))
		} else if err := app.Wait(s.Timeouts.Close.Std()); err == nil {
			return nil
		}
	}
	return app.Stop()
}
