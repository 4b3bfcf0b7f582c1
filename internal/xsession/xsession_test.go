package xsession

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/regenrek/kiauto/internal/poll"
	"github.com/regenrek/kiauto/internal/runenv"
)

func helperCmd(ctx context.Context, mode string, exit int) *exec.Cmd {
	cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
	cmd.Env = append(os.Environ(),
		"GO_WANT_HELPER_PROCESS=1",
		"XSESSION_HELPER_MODE="+mode,
		"XSESSION_HELPER_EXIT="+strconv.Itoa(exit),
	)
	return cmd
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("XSESSION_HELPER_MODE") {
	case "xvfb":
		f := os.NewFile(3, "displayfd")
		_, _ = fmt.Fprintln(f, "42")
		_ = f.Close()
		time.Sleep(time.Minute)
	case "sleep":
		time.Sleep(time.Minute)
	}
	code, _ := strconv.Atoi(os.Getenv("XSESSION_HELPER_EXIT"))
	os.Exit(code)
}

type fakeX struct {
	mu       sync.Mutex
	calls    [][]string
	failures map[string]int
	// silent makes Xvfb start without reporting a display.
	silent bool
}

func (f *fakeX) run(ctx context.Context, name string, args ...string) *exec.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	switch name {
	case "Xvfb":
		if f.silent {
			return helperCmd(ctx, "sleep", 0)
		}
		return helperCmd(ctx, "xvfb", 0)
	case "fluxbox", "x11vnc", "recordmydesktop":
		return helperCmd(ctx, "sleep", 0)
	}
	if f.failures[name] > 0 {
		f.failures[name]--
		return helperCmd(ctx, "", 1)
	}
	return helperCmd(ctx, "", 0)
}

func (f *fakeX) called(name string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, c := range f.calls {
		if c[0] == name {
			out = append(out, c)
		}
	}
	return out
}

func lookAll(string) (string, error) { return "/usr/bin/true", nil }

func lookNone(string) (string, error) { return "", exec.ErrNotFound }

func TestXvfbArgs(t *testing.T) {
	t.Setenv(runenv.XvfbArgsEnv, `-ac +extension "GLX"`)
	opts := Options{Width: 800, Height: 600, Depth: 24, ExtraArgs: []string{"-nocursor"}}
	got, err := XvfbArgs(opts, 3)
	if err != nil {
		t.Fatalf("XvfbArgs() error: %v", err)
	}
	want := []string{"-displayfd", "3", "-screen", "0", "800x600x24", "-nolisten", "tcp", "-nocursor", "-ac", "+extension", "GLX"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("XvfbArgs() = %v, want %v", got, want)
	}

	t.Setenv(runenv.XvfbArgsEnv, `"unterminated`)
	if _, err := XvfbArgs(opts, 3); err == nil {
		t.Fatalf("expected error for unbalanced quotes")
	}
}

func TestStartAndClose(t *testing.T) {
	t.Setenv(displayEnv, ":5")
	fx := &fakeX{failures: map[string]int{"setxkbmap": 2, "wmctrl": 1}}
	rec := t.TempDir() + "/run.ogv"
	s, err := Start(context.Background(), Options{
		VNC:           true,
		WindowManager: true,
		Record:        rec,
		Run:           fx.run,
		LookPath:      lookAll,
		Interval:      time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if s.Display != ":42" || os.Getenv(displayEnv) != ":42" {
		t.Fatalf("display = %q, env = %q", s.Display, os.Getenv(displayEnv))
	}
	if n := len(fx.called("setxkbmap")); n != 3 {
		t.Fatalf("setxkbmap calls = %d, want 3", n)
	}
	if n := len(fx.called("wmctrl")); n != 2 {
		t.Fatalf("wmctrl calls = %d, want 2", n)
	}
	vnc := fx.called("x11vnc")
	if len(vnc) != 1 || !reflect.DeepEqual(vnc[0], []string{"x11vnc", "-display", ":42", "-localhost"}) {
		t.Fatalf("x11vnc calls = %v", vnc)
	}
	recCalls := fx.called("recordmydesktop")
	if len(recCalls) != 1 || recCalls[0][len(recCalls[0])-1] != rec {
		t.Fatalf("recorder calls = %v", recCalls)
	}

	procs := append([]helper(nil), s.procs...)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	for _, h := range procs {
		if !h.proc.Exited() {
			t.Fatalf("%s still running after Close", h.proc.Name)
		}
	}
	if os.Getenv(displayEnv) != ":5" {
		t.Fatalf("DISPLAY not restored: %q", os.Getenv(displayEnv))
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
}

func TestStartServerTimeout(t *testing.T) {
	t.Setenv(displayEnv, ":5")
	fx := &fakeX{failures: map[string]int{"setxkbmap": 100}}
	_, err := Start(context.Background(), Options{
		Run:           fx.run,
		LookPath:      lookAll,
		Interval:      time.Millisecond,
		ServerTimeout: 5 * time.Millisecond,
	})
	if !errors.Is(err, poll.ErrTimeout) {
		t.Fatalf("Start() error = %v, want timeout", err)
	}
	if os.Getenv(displayEnv) != ":5" {
		t.Fatalf("DISPLAY not restored after failed start: %q", os.Getenv(displayEnv))
	}
}

func TestStartDisplayReportTimeout(t *testing.T) {
	t.Setenv(displayEnv, ":5")
	fx := &fakeX{silent: true}
	start := time.Now()
	_, err := Start(context.Background(), Options{
		Run:           fx.run,
		LookPath:      lookAll,
		Interval:      time.Millisecond,
		ServerTimeout: 20 * time.Millisecond,
	})
	if err == nil || !strings.Contains(err.Error(), "after 20ms") {
		t.Fatalf("Start() error = %v, want display timeout after 20ms", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Start() took %s, server timeout ignored", elapsed)
	}
	if len(fx.called("setxkbmap")) != 0 {
		t.Fatalf("server queried before a display was reported")
	}
}

func TestKeepDisplay(t *testing.T) {
	t.Setenv(displayEnv, ":7")
	fx := &fakeX{}
	s, err := Start(context.Background(), Options{KeepDisplay: true, Run: fx.run, LookPath: lookNone})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if s.Display != ":7" {
		t.Fatalf("Display = %q", s.Display)
	}
	if len(fx.called("Xvfb")) != 0 {
		t.Fatalf("Xvfb started with KeepDisplay")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if os.Getenv(displayEnv) != ":7" {
		t.Fatalf("DISPLAY changed: %q", os.Getenv(displayEnv))
	}
}

func TestMissingVNCIsNotFatal(t *testing.T) {
	t.Setenv(displayEnv, ":7")
	fx := &fakeX{}
	s, err := Start(context.Background(), Options{KeepDisplay: true, VNC: true, Run: fx.run, LookPath: lookNone})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Close()
	if len(fx.called("x11vnc")) != 0 {
		t.Fatalf("x11vnc started although not installed")
	}
}
