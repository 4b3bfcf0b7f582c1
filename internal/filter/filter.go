// Package filter loads error filter files and applies them to reports.
//
// A filter file holds one rule per line in the form CATEGORY,REGEX. Lines
// starting with '#' and blank lines are ignored.
package filter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/regenrek/kiauto/internal/report"
)

var ruleLine = regexp.MustCompile(`^(\S+)\s*,(.*)$`)

// Rule suppresses entries of Category whose text matches Pattern.
type Rule struct {
	Category string
	Pattern  *regexp.Regexp
	// Line is the 1-based line number in the source file.
	Line int
}

func (r Rule) String() string {
	return r.Category + "," + r.Pattern.String()
}

// ConfigError reports an unusable filter file. Any error aborts the whole
// load, so a partially read file never takes effect.
type ConfigError struct {
	File    string
	Line    int
	Text    string
	Missing bool
	Err     error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Missing:
		return fmt.Sprintf("filter file %q doesn't exist", e.File)
	case e.Line == 0:
		return fmt.Sprintf("filter file %q: %v", e.File, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("invalid regex at line %d in filter file %q: `%s`: %v", e.Line, e.File, e.Text, e.Err)
	default:
		return fmt.Sprintf("syntax error at line %d in filter file %q: `%s` (use CATEGORY,REGEX)", e.Line, e.File, e.Text)
	}
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load reads the rules in path.
func Load(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigError{File: path, Missing: true, Err: err}
		}
		return nil, &ConfigError{File: path, Err: err}
	}
	defer f.Close()
	rules, err := Parse(f, path)
	if err != nil {
		return nil, err
	}
	slog.Info("loaded error filters", slog.Int("count", len(rules)), slog.String("file", path))
	return rules, nil
}

// Parse reads rules from r. name is used in errors only.
func Parse(r io.Reader, name string) ([]Rule, error) {
	var rules []Rule
	scanner := bufio.NewScanner(r)
	ln := 0
	for scanner.Scan() {
		ln++
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "" || line[0] == '#' {
			continue
		}
		m := ruleLine.FindStringSubmatch(line)
		if m == nil {
			return nil, &ConfigError{File: name, Line: ln, Text: line}
		}
		re, err := regexp.Compile(m[2])
		if err != nil {
			return nil, &ConfigError{File: name, Line: ln, Text: line, Err: err}
		}
		rules = append(rules, Rule{Category: m[1], Pattern: re, Line: ln})
	}
	if err := scanner.Err(); err != nil {
		return nil, &ConfigError{File: name, Err: err}
	}
	return rules, nil
}

// Result counts the entries suppressed by Apply.
type Result struct {
	Errors   int
	Warnings int
}

// Apply marks every report entry matched by a rule as suppressed. An entry
// is only tested against rules of its own category and the first matching
// rule wins.
func Apply(rules []Rule, rep *report.Report) Result {
	var res Result
	if len(rules) == 0 || rep == nil {
		return res
	}
	res.Errors = apply(rules, rep.Errors, slog.LevelWarn)
	res.Warnings = apply(rules, rep.Warnings, slog.LevelInfo)
	if res.Errors > 0 || res.Warnings > 0 {
		slog.Info("filtered report entries", slog.Int("errors", res.Errors), slog.Int("warnings", res.Warnings))
	}
	return res
}

func apply(rules []Rule, entries []report.Entry, level slog.Level) int {
	skipped := 0
	for i := range entries {
		e := &entries[i]
		if e.Suppressed {
			continue
		}
		for _, rule := range rules {
			if !strings.HasPrefix(e.Text, "("+rule.Category+")") {
				continue
			}
			if !rule.Pattern.MatchString(e.Text) {
				continue
			}
			e.Suppressed = true
			skipped++
			slog.Log(context.Background(), level, "ignoring "+firstLine(e.Text), slog.String("rule", rule.String()), slog.Int("line", rule.Line))
			break
		}
	}
	return skipped
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}
