// Package testkit provides scripted stand-ins for the X11 side of a
// session so the eeschema and pcbnew flows run without a display.
package testkit

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/regenrek/kiauto/internal/config"
	"github.com/regenrek/kiauto/internal/kicad"
	"github.com/regenrek/kiauto/internal/poll"
	"github.com/regenrek/kiauto/internal/session"
	"github.com/regenrek/kiauto/internal/xdo"
)

// UI is a scripted session.UI.
type UI struct {
	mu sync.Mutex
	// Windows maps title patterns to the ids a search reports.
	Windows map[string][]string
	// Popups are patterns from Target.Others that are visible once.
	Popups map[string]string
	// OnKey runs after a Key call whose chords, joined by spaces, match.
	OnKey map[string]func()

	keys    []string
	waits   []xdo.Target
	focused []string
}

// NewUI returns an empty script.
func NewUI() *UI {
	return &UI{Windows: map[string][]string{}, Popups: map[string]string{}, OnKey: map[string]func(){}}
}

func (u *UI) WaitForWindow(_ context.Context, t xdo.Target) (xdo.Match, error) {
	u.mu.Lock()
	u.waits = append(u.waits, t)
	for _, other := range t.Others {
		if id, ok := u.Popups[other]; ok {
			delete(u.Popups, other)
			u.mu.Unlock()
			return xdo.Match{}, &xdo.UnexpectedWindowError{Waiting: t.Name, Pattern: other, ID: id}
		}
	}
	ids := u.Windows[t.Pattern]
	u.mu.Unlock()
	for _, id := range ids {
		if !slices.Contains(t.Skip, id) {
			return xdo.Match{ID: id, All: ids}, nil
		}
	}
	return xdo.Match{}, &poll.TimeoutError{What: "window " + t.Name, Timeout: t.Timeout}
}

func (u *UI) WaitNotFocused(context.Context, string, time.Duration) error { return nil }

func (u *UI) Focus(_ context.Context, id string) error {
	u.mu.Lock()
	u.focused = append(u.focused, id)
	u.mu.Unlock()
	return nil
}

func (u *UI) Key(_ context.Context, keys ...string) error {
	chord := strings.Join(keys, " ")
	u.mu.Lock()
	u.keys = append(u.keys, chord)
	fn := u.OnKey[chord]
	u.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

// Keys returns every Key call, chords joined by spaces.
func (u *UI) Keys() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.keys...)
}

// Waits returns every window wait in call order.
func (u *UI) Waits() []xdo.Target {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]xdo.Target(nil), u.waits...)
}

// Focused returns the ids passed to Focus.
func (u *UI) Focused() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.focused...)
}

// Clipboard keeps text in memory.
type Clipboard struct {
	mu     sync.Mutex
	text   string
	stored []string
}

func (c *Clipboard) Store(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	c.stored = append(c.stored, text)
	return nil
}

func (c *Clipboard) Retrieve() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, nil
}

// Stored returns every stored text.
func (c *Clipboard) Stored() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.stored...)
}

// App is a fake KiCad process.
type App struct {
	mu      sync.Mutex
	open    []string
	stopped int
	// WaitErr is returned by Wait.
	WaitErr error
}

func (a *App) OpenFiles(context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.open...), nil
}

// Hold marks path as open by the process.
func (a *App) Hold(path string) {
	a.mu.Lock()
	a.open = append(a.open, path)
	a.mu.Unlock()
}

func (a *App) Wait(time.Duration) error { return a.WaitErr }

func (a *App) Stop() error {
	a.mu.Lock()
	a.stopped++
	a.mu.Unlock()
	return nil
}

// Stopped reports how many times Stop ran.
func (a *App) Stopped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

// Env bundles a session with its fakes.
type Env struct {
	Session   *session.Session
	UI        *UI
	Clipboard *Clipboard
	App       *App
	Home      string
	// Launched holds the binaries started through the session.
	Launched []string
	// Displays holds the video names passed to StartDisplay.
	Displays []string
}

// New builds a session around input, which must already exist. version
// is a KiCad build string such as "5.1.6".
func New(t testing.TB, kind session.Kind, input, version string) *Env {
	t.Helper()
	v, err := kicad.ParseVersion(version)
	if err != nil {
		t.Fatalf("parse version: %v", err)
	}
	home := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatalf("mkdir output: %v", err)
	}
	ext := filepath.Ext(input)
	timeouts := config.Defaults().Timeouts
	timeouts.File = config.Duration(2 * time.Second)
	timeouts.FilePoll = config.Duration(time.Millisecond)

	env := &Env{UI: NewUI(), Clipboard: &Clipboard{}, App: &App{}, Home: home}
	env.Session = &session.Session{
		Kind:      kind,
		Input:     input,
		OutputDir: out,
		Base:      strings.TrimSuffix(filepath.Base(input), ext),
		Version:   v,
		Paths:     kicad.NewPaths(home, v, ""),
		Timeouts:  timeouts,
		UI:        env.UI,
		Clipboard: env.Clipboard,
		Launch: func(_ context.Context, bin, _ string) (session.App, error) {
			env.Launched = append(env.Launched, bin)
			return env.App, nil
		},
		StartDisplay: func(_ context.Context, video string) (io.Closer, error) {
			env.Displays = append(env.Displays, video)
			return io.NopCloser(nil), nil
		},
	}
	t.Cleanup(func() { _ = env.Session.Close() })
	return env
}

// WriteFile writes data to path, failing the test on error.
func WriteFile(t testing.TB, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
