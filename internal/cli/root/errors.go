package root

import "fmt"

type missingHandlerError string

func (e missingHandlerError) Error() string {
	return fmt.Sprintf("missing CLI handler for %s", string(e))
}

// UsageError reports a command line commands.yaml rejects. entry maps it to
// the wrong-arguments exit status.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

func usageErrorf(format string, args ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}
