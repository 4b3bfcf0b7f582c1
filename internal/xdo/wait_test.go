package xdo

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/regenrek/kiauto/internal/poll"
)

func focus(stdout string, exit int) cmdSpec {
	return cmdSpec{name: "xdotool", args: []string{"getwindowfocus"}, stdout: stdout, exit: exit}
}

func TestWaitForWindowAppearsLater(t *testing.T) {
	client, runner := newTestClient(t,
		search("Plot", "", 1),
		search("Plot", "12\n", 0),
	)
	m, err := client.WaitForWindow(context.Background(), Target{Name: "plot dialog", Pattern: "Plot", Timeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("WaitForWindow() error: %v", err)
	}
	if m.ID != "12" {
		t.Fatalf("ID = %q, want 12", m.ID)
	}
	runner.assertDone()
}

func TestWaitForWindowSkipsKnownIDs(t *testing.T) {
	client, runner := newTestClient(t,
		search("Eeschema", "100\n", 0),
		search("Eeschema", "100\n200\n", 0),
	)
	m, err := client.WaitForWindow(context.Background(), Target{Pattern: "Eeschema", Timeout: 10 * time.Millisecond, Skip: []string{"100"}})
	if err != nil {
		t.Fatalf("WaitForWindow() error: %v", err)
	}
	if m.ID != "200" || !reflect.DeepEqual(m.All, []string{"100", "200"}) {
		t.Fatalf("match = %+v", m)
	}
	runner.assertDone()
}

func TestWaitForWindowUnexpected(t *testing.T) {
	client, runner := newTestClient(t,
		search("Pcbnew", "", 1),
		search("Confirmation", "", 1),
		search("Warning", "55\n", 0),
	)
	_, err := client.WaitForWindow(context.Background(), Target{
		Name:    "pcbnew main",
		Pattern: "Pcbnew",
		Timeout: 10 * time.Millisecond,
		Others:  []string{"Confirmation", "Warning"},
	})
	var unexpected *UnexpectedWindowError
	if !errors.As(err, &unexpected) {
		t.Fatalf("expected *UnexpectedWindowError, got %v", err)
	}
	if unexpected.Pattern != "Warning" || unexpected.ID != "55" {
		t.Fatalf("unexpected fields: %+v", unexpected)
	}
	if !errors.Is(err, poll.ErrFatal) {
		t.Fatalf("unexpected window must be fatal")
	}
	runner.assertDone()
}

func TestWaitForWindowTimeout(t *testing.T) {
	client, runner := newTestClient(t,
		search("ERC File", "", 1),
		search("ERC File", "", 1),
	)
	_, err := client.WaitForWindow(context.Background(), Target{Pattern: "ERC File", Timeout: 2 * time.Millisecond})
	if !errors.Is(err, poll.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	runner.assertDone()
}

func TestWaitForWindowFocus(t *testing.T) {
	client, runner := newTestClient(t,
		search("Netlist", "9\n", 0),
		cmdSpec{name: "xdotool", args: []string{"windowfocus", "--sync", "9"}},
		focus("3\n", 0),
		focus("9\n", 0),
	)
	m, err := client.WaitForWindow(context.Background(), Target{Pattern: "Netlist", Timeout: 10 * time.Millisecond, Focus: true})
	if err != nil {
		t.Fatalf("WaitForWindow() error: %v", err)
	}
	if m.ID != "9" {
		t.Fatalf("ID = %q", m.ID)
	}
	runner.assertDone()
}

func TestWaitForWindowFocusUsesTunedBudget(t *testing.T) {
	client, runner := newTestClient(t,
		search("Netlist", "9\n", 0),
		cmdSpec{name: "xdotool", args: []string{"windowfocus", "--sync", "9"}},
		focus("3\n", 0),
		focus("3\n", 0),
	)
	client.Tune(0, 2*time.Millisecond, 0)
	_, err := client.WaitForWindow(context.Background(), Target{Pattern: "Netlist", Timeout: 10 * time.Millisecond, Focus: true})
	var timeout *poll.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected *poll.TimeoutError, got %v", err)
	}
	if timeout.Timeout != 2*time.Millisecond {
		t.Fatalf("focus wait budget = %s, want 2ms", timeout.Timeout)
	}
	runner.assertDone()
}

func TestWaitNotFocusedTreatsErrorAsUnfocused(t *testing.T) {
	client, runner := newTestClient(t,
		focus("9\n", 0),
		focus("", 1),
	)
	if err := client.WaitNotFocused(context.Background(), "9", 10*time.Millisecond); err != nil {
		t.Fatalf("WaitNotFocused() error: %v", err)
	}
	runner.assertDone()
}

func TestPick(t *testing.T) {
	if got := pick([]string{"1", "2", "3"}, []string{"1", "3"}); got != "2" {
		t.Fatalf("pick() = %q", got)
	}
	if got := pick([]string{"1"}, []string{"1"}); got != "" {
		t.Fatalf("pick() = %q", got)
	}
}
