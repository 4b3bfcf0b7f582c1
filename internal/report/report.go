// Package report reads the ERC and DRC reports KiCad writes to disk.
//
// Every entry is normalised to "(CATEGORY) message" followed by the
// indented location lines, which is the form error filters match against.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// ErrCorrupted is returned when a report lacks its summary section.
var ErrCorrupted = errors.New("report: missing summary")

// Entry is one violation.
type Entry struct {
	Text       string
	Suppressed bool
}

// Category returns the code inside the leading parentheses, or "".
func (e Entry) Category() string {
	if !strings.HasPrefix(e.Text, "(") {
		return ""
	}
	end := strings.IndexByte(e.Text, ')')
	if end < 0 {
		return ""
	}
	return e.Text[1:end]
}

// Report holds parsed violations. For DRC, Warnings are the unconnected items.
type Report struct {
	Errors   []Entry
	Warnings []Entry
}

func (r *Report) ActiveErrors() []Entry { return active(r.Errors) }

func (r *Report) ActiveWarnings() []Entry { return active(r.Warnings) }

func active(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !e.Suppressed {
			out = append(out, e)
		}
	}
	return out
}

var (
	errTypeLine   = regexp.MustCompile(`^ErrType\((\d+)\):\s*(.*)$`)
	codeLine      = regexp.MustCompile(`^\[(\S+)\]:\s*(.*)$`)
	ercSummary    = regexp.MustCompile(`^\s*\*\* ERC messages: ([0-9]+) +Errors ([0-9]+) +Warnings ([0-9]+)+$`)
	drcErrors     = regexp.MustCompile(`^\*\* Found ([0-9]+) DRC (?:errors|violations) \*\*$`)
	drcUnconnect  = regexp.MustCompile(`^\*\* Found ([0-9]+) unconnected pads \*\*$`)
	severityLine  = regexp.MustCompile(`(?:^|;)\s*Severity:\s*(\w+)`)
	sectionMarker = "** "
)

// ERCSummary is the count line KiCad appends to an ERC report.
type ERCSummary struct {
	Messages int
	Errors   int
	Warnings int
}

// ParseERCFile opens path and parses it with ParseERC.
func ParseERCFile(path string) (*Report, ERCSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ERCSummary{}, fmt.Errorf("open erc report: %w", err)
	}
	defer f.Close()
	return ParseERC(f)
}

// ParseERC reads an .erc file. Both the KiCad 5 "ErrType(N): msg" and
// the KiCad 6 "[code]: msg" entry forms are accepted.
func ParseERC(r io.Reader) (*Report, ERCSummary, error) {
	rep := &Report{}
	var sum ERCSummary
	found := false
	var cur *pending
	flush := func() {
		if cur == nil {
			return
		}
		e := Entry{Text: cur.text.String()}
		if cur.warning {
			rep.Warnings = append(rep.Warnings, e)
		} else {
			rep.Errors = append(rep.Errors, e)
		}
		cur = nil
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r ")
		if m := ercSummary.FindStringSubmatch(line); m != nil {
			flush()
			sum.Messages, _ = strconv.Atoi(m[1])
			sum.Errors, _ = strconv.Atoi(m[2])
			sum.Warnings, _ = strconv.Atoi(m[3])
			found = true
			continue
		}
		if cat, msg, ok := entryStart(line); ok {
			flush()
			cur = newPending(cat, msg)
			continue
		}
		if cur == nil {
			continue
		}
		if m := severityLine.FindStringSubmatch(line); m != nil {
			cur.warning = strings.EqualFold(m[1], "warning")
			continue
		}
		if isContinuation(line) {
			cur.add(line)
			continue
		}
		flush()
	}
	if err := scanner.Err(); err != nil {
		return nil, sum, fmt.Errorf("read erc report: %w", err)
	}
	flush()
	if !found {
		return nil, sum, fmt.Errorf("erc report: %w", ErrCorrupted)
	}
	return rep, sum, nil
}

// ParseDRCFile opens path and parses it with ParseDRC.
func ParseDRCFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open drc report: %w", err)
	}
	defer f.Close()
	return ParseDRC(f)
}

// ParseDRC reads a pcbnew drc_result.rpt. Entries under the DRC errors
// header become errors, entries under the unconnected header become warnings.
func ParseDRC(r io.Reader) (*Report, error) {
	const (
		sectionNone = iota
		sectionErrors
		sectionUnconnected
	)
	rep := &Report{}
	section := sectionNone
	sawErrors, sawUnconnected := false, false
	var cur *pending
	flush := func() {
		if cur == nil {
			return
		}
		e := Entry{Text: cur.text.String()}
		if section == sectionUnconnected {
			rep.Warnings = append(rep.Warnings, e)
		} else {
			rep.Errors = append(rep.Errors, e)
		}
		cur = nil
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r ")
		switch {
		case drcErrors.MatchString(line):
			flush()
			section, sawErrors = sectionErrors, true
			continue
		case drcUnconnect.MatchString(line):
			flush()
			section, sawUnconnected = sectionUnconnected, true
			continue
		case strings.HasPrefix(line, sectionMarker):
			flush()
			section = sectionNone
			continue
		}
		if section == sectionNone {
			continue
		}
		if cat, msg, ok := entryStart(line); ok {
			flush()
			cur = newPending(cat, msg)
			continue
		}
		if cur != nil && isContinuation(line) {
			cur.add(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read drc report: %w", err)
	}
	flush()
	if !sawErrors || !sawUnconnected {
		return nil, fmt.Errorf("drc report: %w", ErrCorrupted)
	}
	return rep, nil
}

// entryStart matches the first line of a violation and returns its
// category and message.
func entryStart(line string) (string, string, bool) {
	if m := errTypeLine.FindStringSubmatch(line); m != nil {
		return m[1], m[2], true
	}
	if m := codeLine.FindStringSubmatch(line); m != nil {
		return m[1], m[2], true
	}
	return "", "", false
}

type pending struct {
	text    strings.Builder
	warning bool
}

func newPending(category, msg string) *pending {
	p := &pending{}
	p.text.WriteString("(" + category + ") " + strings.TrimSpace(msg))
	return p
}

func (p *pending) add(line string) {
	p.text.WriteByte('\n')
	p.text.WriteString(line)
}

func isContinuation(line string) bool {
	return line != "" && (line[0] == ' ' || line[0] == '\t')
}
