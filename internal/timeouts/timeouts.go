// Package timeouts holds the wait budgets and poll intervals used while
// driving KiCad.
package timeouts

import "time"

const (
	// WaitStart bounds the wait for the main window after launching
	// eeschema or pcbnew. First starts on a cold cache are slow.
	WaitStart = 40 * time.Second

	// Window is the default budget for a dialog to show up.
	Window = 10 * time.Second

	// Focus bounds waits for a window to gain or lose keyboard focus.
	Focus = 5 * time.Second

	// File bounds the wait for an output file to be written and released.
	File = 15 * time.Second

	// Close bounds the wait for the application to exit after asking it to quit.
	Close = 10 * time.Second

	// XServer bounds the wait for a freshly started Xvfb to answer.
	XServer = 10 * time.Second

	// WindowManager bounds the wait for fluxbox to register.
	WindowManager = 10 * time.Second

	// TerminateGrace is how long a process group gets between SIGTERM and SIGKILL.
	TerminateGrace = 3 * time.Second
)

const (
	// WindowPoll is the delay between window queries.
	WindowPoll = 500 * time.Millisecond

	// FilePoll is the delay between output file checks.
	FilePoll = 200 * time.Millisecond

	// ServerPoll is the delay between X server and window manager probes.
	ServerPoll = 500 * time.Millisecond

	// KeyDelay is the pause xdotool leaves between key chords.
	KeyDelay = 50 * time.Millisecond
)
