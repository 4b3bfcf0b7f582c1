package kicad

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Runner builds commands. exec.CommandContext in production.
type Runner func(ctx context.Context, name string, args ...string) *exec.Cmd

var (
	buildVersionRe = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)
	// First development series using JSON settings and kicad_pro projects.
	nextGen = semver.MustParse("5.99.0")
)

const probeScript = "import pcbnew; print(pcbnew.GetBuildVersion())"

// Version is the KiCad build in use.
type Version struct {
	*semver.Version
	// Raw is the full build string, e.g. "5.1.6-c6e7f7d~86~ubuntu18.04.1".
	Raw string
}

// ParseVersion extracts MAJOR.MINOR.PATCH from a KiCad build string.
func ParseVersion(raw string) (Version, error) {
	raw = strings.TrimSpace(raw)
	m := buildVersionRe.FindString(raw)
	if m == "" {
		return Version{}, fmt.Errorf("no version number in %q", raw)
	}
	v, err := semver.NewVersion(m)
	if err != nil {
		return Version{}, fmt.Errorf("parse kicad version %q: %w", raw, err)
	}
	return Version{Version: v, Raw: raw}, nil
}

// Code packs the version as major*1e6+minor*1e3+patch.
func (v Version) Code() int {
	if v.Version == nil {
		return 0
	}
	return int(v.Major())*1_000_000 + int(v.Minor())*1_000 + int(v.Patch())
}

// NextGen reports KiCad 5.99 and later, which use JSON settings.
func (v Version) NextGen() bool {
	return v.Version != nil && !v.LessThan(nextGen)
}

func (v Version) String() string {
	if v.Version == nil {
		return "unknown"
	}
	return v.Version.String()
}

// DetectOptions tune DetectVersion.
type DetectOptions struct {
	// Python is the interpreter used for the probe, python3 by default.
	Python string
	// Override skips the probe and parses this build string instead.
	Override string
	// Nightly selects the kicad-nightly Python module.
	Nightly string
}

// DetectVersion asks the pcbnew Python module for the build version.
func DetectVersion(ctx context.Context, run Runner, opts DetectOptions) (Version, error) {
	if opts.Override != "" {
		slog.Debug("kicad version override", slog.String("version", opts.Override))
		return ParseVersion(opts.Override)
	}
	if run == nil {
		run = exec.CommandContext
	}
	python := opts.Python
	if python == "" {
		python = "python3"
	}
	cmd := run(ctx, python, "-c", probeScript)
	if opts.Nightly != "" {
		env := cmd.Env
		if env == nil {
			env = os.Environ()
		}
		cmd.Env = append(env, "PYTHONPATH="+joinPythonPath(nightlyPython, os.Getenv("PYTHONPATH")))
	}
	out, err := cmd.Output()
	if err != nil {
		return Version{}, fmt.Errorf("failed to import pcbnew Python module (is KiCad installed? do you need to add it to PYTHONPATH?): %w", err)
	}
	v, err := ParseVersion(lastLine(string(out)))
	if err != nil {
		return Version{}, err
	}
	slog.Debug("detected kicad", slog.String("version", v.String()), slog.Int("code", v.Code()), slog.String("build", v.Raw))
	return v, nil
}

func joinPythonPath(first, rest string) string {
	if rest == "" {
		return first
	}
	return first + string(os.PathListSeparator) + rest
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return lines[len(lines)-1]
}
