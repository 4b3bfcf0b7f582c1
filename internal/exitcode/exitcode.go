// Package exitcode defines the process exit statuses reported to callers.
// Codes below 16 are reserved; ERC and DRC runs otherwise exit with the
// number of remaining violations.
package exitcode

import (
	"errors"
	"fmt"
)

const (
	OK                 = 0
	NoSchematic        = 1
	WrongArguments     = 2
	KicadCfgPresent    = 3
	NoPcb              = 4
	PcbnewCfgPresent   = 5
	WrongLayerName     = 6
	WrongPcbName       = 7
	WrongSchName       = 8
	PcbnewError        = 9
	EeschemaError      = 10
	EeschemaCfgPresent = 11
	NoPcbnewModule     = 11
	UserHotkeysPresent = 12
	CorruptedPcb       = 13
)

// Coder is implemented by errors that carry their own exit status.
type Coder interface {
	ExitCode() int
}

// Error attaches an exit status to an error.
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) ExitCode() int { return e.Code }

// Wrap returns err annotated with code. A nil err stays nil.
func Wrap(code int, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Err: err}
}

// Errorf is Wrap(code, fmt.Errorf(format, args...)).
func Errorf(code int, format string, args ...any) error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// Of returns the outermost exit status carried by err, or fallback when
// none is attached. A nil err is OK.
func Of(err error, fallback int) int {
	if err == nil {
		return OK
	}
	var coder Coder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return fallback
}

// Count converts a violation count into an exit status clamped to 0..255.
func Count(n int) int {
	if n < 0 {
		return OK
	}
	if n > 255 {
		return 255
	}
	return n
}
