// Package output writes the --json result documents.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// SchemaVersion changes when a field of RunResult or Failure changes
// meaning.
const SchemaVersion = "1.0.0"

type Meta struct {
	Command       string    `json:"command"`
	SchemaVersion string    `json:"schema_version"`
	Version       string    `json:"version,omitempty"`
	DurationMS    int64     `json:"duration_ms"`
	TS            time.Time `json:"ts"`
}

// Failure is the error body of an unsuccessful run.
type Failure struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	ExitCode int    `json:"exit_code"`
}

type document struct {
	Ok    bool     `json:"ok"`
	Data  any      `json:"data,omitempty"`
	Error *Failure `json:"error,omitempty"`
	Meta  Meta     `json:"meta"`
}

// Envelope writes exactly one JSON document for a command run.
type Envelope struct {
	W       io.Writer
	Command string
	Version string
	Start   time.Time

	now func() time.Time
}

// Success writes {"ok":true,"data":data,"meta":...}.
func (e Envelope) Success(data any) error {
	return e.write(document{Ok: true, Data: data, Meta: e.meta()})
}

// Failure writes {"ok":false,"error":...}. An empty kind becomes
// "command_failed".
func (e Envelope) Failure(kind, message string, exitCode int) error {
	if kind == "" {
		kind = "command_failed"
	}
	return e.write(document{Error: &Failure{Kind: kind, Message: message, ExitCode: exitCode}, Meta: e.meta()})
}

func (e Envelope) meta() Meta {
	now := time.Now
	if e.now != nil {
		now = e.now
	}
	ts := now()
	m := Meta{Command: e.Command, SchemaVersion: SchemaVersion, Version: e.Version, TS: ts.UTC()}
	if !e.Start.IsZero() {
		m.DurationMS = ts.Sub(e.Start).Milliseconds()
	}
	return m
}

func (e Envelope) write(doc document) error {
	w := e.W
	if w == nil {
		w = io.Discard
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
