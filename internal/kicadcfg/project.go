package kicadcfg

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/regenrek/kiauto/internal/atomicfile"
)

// Project remembers the project files next to a schematic or board so
// changes KiCad makes while loading them can be reverted.
type Project struct {
	files []snapshot
}

type snapshot struct {
	path    string
	content []byte
	mode    fs.FileMode
	atime   time.Time
	mtime   time.Time
}

// MemorizeProject snapshots INPUT_NO_EXT.projectExt, falling back to the
// legacy .pro, plus INPUT_NO_EXT.localExt when localExt is set.
func MemorizeProject(input, projectExt, localExt string) (*Project, error) {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	p := &Project{}
	pro := base + "." + projectExt
	if !exists(pro) {
		pro = base + ".pro"
		if !exists(pro) {
			slog.Warn("KiCad project file not found", slog.String("input", input))
			return p, nil
		}
		if projectExt != "pro" {
			slog.Warn("using old format projects is not recommended, convert them first", slog.String("project", pro))
		}
	}
	if err := p.add(pro); err != nil {
		return nil, err
	}
	if localExt != "" {
		prl := base + "." + localExt
		if exists(prl) {
			if err := p.add(prl); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func (p *Project) add(path string) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fmt.Errorf("stat project %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read project %s: %w", path, err)
	}
	p.files = append(p.files, snapshot{
		path:    path,
		content: data,
		mode:    fs.FileMode(st.Mode & 0o777),
		atime:   time.Unix(st.Atim.Unix()),
		mtime:   time.Unix(st.Mtim.Unix()),
	})
	return nil
}

// Files lists the memorized paths.
func (p *Project) Files() []string {
	out := make([]string, 0, len(p.files))
	for _, f := range p.files {
		out = append(out, f.path)
	}
	return out
}

// Release restores every memorized file whose mtime changed or that
// vanished. The modified version is kept as NAME-bak.
func (p *Project) Release() error {
	var errs []error
	for _, snap := range p.files {
		if err := snap.restore(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s snapshot) restore() error {
	slog.Debug("checking if project was modified", slog.String("path", s.path))
	info, err := os.Stat(s.path)
	switch {
	case err == nil && info.ModTime().Equal(s.mtime):
		return nil
	case err == nil:
		if err := os.Rename(s.path, s.path+"-bak"); err != nil {
			return fmt.Errorf("keep modified project: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("project file lost", slog.String("path", s.path))
	default:
		return fmt.Errorf("stat project: %w", err)
	}
	slog.Debug("restoring the project file", slog.String("path", s.path))
	if err := atomicfile.Save(s.path, s.content, s.mode); err != nil {
		return err
	}
	if err := os.Chtimes(s.path, s.atime, s.mtime); err != nil {
		return fmt.Errorf("restore project times: %w", err)
	}
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
