package procwatch

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/regenrek/kiauto/internal/poll"
)

type fakeOwner struct {
	calls   int
	holding []string
	// holdFor is the number of calls that report the file as open.
	holdFor int
	err     error
}

func (f *fakeOwner) OpenFiles(context.Context) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.calls <= f.holdFor {
		return f.holding, nil
	}
	return nil, nil
}

func TestWaitForFileReleased(t *testing.T) {
	path := filepath.Join(t.TempDir(), "good.net")
	if err := os.WriteFile(path, []byte("(export)"), 0o644); err != nil {
		t.Fatal(err)
	}
	owner := &fakeOwner{holding: []string{path}, holdFor: 2}
	if err := WaitForFile(context.Background(), owner, path, 50*time.Millisecond, time.Millisecond); err != nil {
		t.Fatalf("WaitForFile() error: %v", err)
	}
	if owner.calls != 3 {
		t.Fatalf("OpenFiles calls = %d, want 3", owner.calls)
	}
}

func TestWaitForFileHeldOpenTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "good.erc")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	owner := &fakeOwner{holding: []string{path}, holdFor: 1000}
	err := WaitForFile(context.Background(), owner, path, 5*time.Millisecond, time.Millisecond)
	if !errors.Is(err, poll.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "timed out waiting for creation of "+path) {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestWaitForFileMissingTimesOut(t *testing.T) {
	owner := &fakeOwner{}
	err := WaitForFile(context.Background(), owner, filepath.Join(t.TempDir(), "never"), 3*time.Millisecond, time.Millisecond)
	if !errors.Is(err, poll.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if strings.Count(err.Error(), "timed out waiting") != 1 {
		t.Fatalf("message repeats itself: %q", err.Error())
	}
}

func TestWaitForFileDiedBeforeCreation(t *testing.T) {
	owner := &fakeOwner{err: ErrProcessDied}
	path := filepath.Join(t.TempDir(), "never.erc")
	err := WaitForFile(context.Background(), owner, path, 200*time.Millisecond, 10*time.Millisecond)
	if !errors.Is(err, ErrProcessDied) {
		t.Fatalf("expected ErrProcessDied, got %v", err)
	}
	if owner.calls != 1 {
		t.Fatalf("OpenFiles calls = %d, want 1", owner.calls)
	}
}

func TestWaitForFileHeldThroughSymlinkedDir(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(t.TempDir(), "out")
	if err := os.Symlink(dir, link); err != nil {
		t.Skipf("symlink: %v", err)
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(link, "board.rpt")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	owner := &fakeOwner{holding: []string{filepath.Join(resolved, "board.rpt")}, holdFor: 1000}
	err = WaitForFile(context.Background(), owner, path, 5*time.Millisecond, time.Millisecond)
	if !errors.Is(err, poll.ErrTimeout) {
		t.Fatalf("file held under its resolved path counted as done: %v", err)
	}
}

func TestWaitForFileHeldBySelfThroughSymlink(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(t.TempDir(), "out")
	if err := os.Symlink(dir, link); err != nil {
		t.Skipf("symlink: %v", err)
	}
	path := filepath.Join(link, "board.rpt")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	proc, err := Watch(context.Background(), os.Getpid())
	if err != nil {
		t.Fatalf("Watch() error: %v", err)
	}
	err = WaitForFile(context.Background(), proc, path, 20*time.Millisecond, 5*time.Millisecond)
	if !errors.Is(err, poll.ErrTimeout) {
		t.Fatalf("open file counted as done: %v", err)
	}
}

func TestWaitForFileProcessDied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drc_result.rpt")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	owner := &fakeOwner{err: ErrProcessDied}
	err := WaitForFile(context.Background(), owner, path, time.Second, time.Millisecond)
	if !errors.Is(err, ErrProcessDied) {
		t.Fatalf("expected ErrProcessDied, got %v", err)
	}
	if owner.calls != 1 {
		t.Fatalf("polling continued after process died: %d calls", owner.calls)
	}
}

func TestWatchSelfOpenFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "held.txt")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	proc, err := Watch(context.Background(), os.Getpid())
	if err != nil {
		t.Fatalf("Watch() error: %v", err)
	}
	if proc.Pid() != os.Getpid() {
		t.Fatalf("Pid() = %d", proc.Pid())
	}
	files, err := proc.OpenFiles(context.Background())
	if err != nil {
		t.Fatalf("OpenFiles() error: %v", err)
	}
	resolved, _ := filepath.EvalSymlinks(path)
	found := false
	for _, p := range files {
		if p == path || p == resolved {
			found = true
		}
	}
	if !found {
		t.Fatalf("OpenFiles() = %v, missing %s", files, path)
	}
}

func TestOpenFilesAfterExit(t *testing.T) {
	cmd := exec.Command(os.Args[0], "-test.run=^$")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	proc, err := Watch(context.Background(), cmd.Process.Pid)
	if err != nil {
		t.Fatalf("Watch() error: %v", err)
	}
	_ = cmd.Wait()
	if _, err := proc.OpenFiles(context.Background()); !errors.Is(err, ErrProcessDied) {
		t.Fatalf("expected ErrProcessDied, got %v", err)
	}
}
