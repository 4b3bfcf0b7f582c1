package kicadcfg

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/regenrek/kiauto/internal/exitcode"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestBackupAndRelease(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eeschema")
	if err := os.WriteFile(path, []byte("user settings\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := Backup("Eeschema", path, "", exitcode.EeschemaCfgPresent)
	if err != nil {
		t.Fatalf("Backup() error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("original still in place")
	}
	if got := readFile(t, path+BackupSuffix); got != "user settings\n" {
		t.Fatalf("backup content = %q", got)
	}
	if err := WriteEeschema(path, false, EeschemaOptions{PlotFormat: "pdf"}); err != nil {
		t.Fatalf("WriteEeschema() error: %v", err)
	}
	if err := r.Release(); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if got := readFile(t, path); got != "user settings\n" {
		t.Fatalf("restored content = %q", got)
	}
	if _, err := os.Stat(path + BackupSuffix); !os.IsNotExist(err) {
		t.Fatalf("backup left behind")
	}
	if err := r.Release(); err != nil {
		t.Fatalf("second Release() error: %v", err)
	}
	if got := readFile(t, path); got != "user settings\n" {
		t.Fatalf("second release changed content: %q", got)
	}
}

func TestBackupWithoutOriginalRemovesReplacement(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kicad_common")
	r, err := Backup("KiCad common", path, "", exitcode.KicadCfgPresent)
	if err != nil {
		t.Fatalf("Backup() error: %v", err)
	}
	if err := WriteCommon(path, false); err != nil {
		t.Fatalf("WriteCommon() error: %v", err)
	}
	if err := r.Release(); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("replacement not removed")
	}
}

func TestBackupStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcbnew")
	if err := os.WriteFile(path+BackupSuffix, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Backup("Pcbnew", path, "", exitcode.PcbnewCfgPresent)
	var stale *StaleBackupError
	if !errors.As(err, &stale) {
		t.Fatalf("expected *StaleBackupError, got %v", err)
	}
	if exitcode.Of(err, 0) != exitcode.PcbnewCfgPresent {
		t.Fatalf("exit code = %d", exitcode.Of(err, 0))
	}
	if got := readFile(t, path+BackupSuffix); got != "old" {
		t.Fatalf("stale backup modified: %q", got)
	}
}

type recordRelease struct {
	name  string
	order *[]string
	err   error
}

func (r recordRelease) Release() error {
	*r.order = append(*r.order, r.name)
	return r.err
}

func TestGuardReleasesInReverseOrder(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	g := &Guard{}
	g.Push(recordRelease{name: "eeschema", order: &order})
	g.Push(nil)
	g.Push(recordRelease{name: "kicad_common", order: &order, err: boom})
	g.Push(ReleaseFunc(func() error { order = append(order, "hotkeys"); return nil }))

	err := g.Close()
	if !errors.Is(err, boom) {
		t.Fatalf("Close() error = %v, want boom", err)
	}
	if want := []string{"hotkeys", "kicad_common", "eeschema"}; !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("releasers ran twice: %v", order)
	}
}
