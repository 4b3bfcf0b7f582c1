package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

type errWriter struct{}

func (errWriter) Write([]byte) (int, error) {
	return 0, errors.New("write failed")
}

func fixedEnvelope(w *bytes.Buffer, command string) Envelope {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return Envelope{
		W:       w,
		Command: command,
		Version: "test",
		Start:   start,
		now:     func() time.Time { return start.Add(1500 * time.Millisecond) },
	}
}

func TestSuccess(t *testing.T) {
	var buf bytes.Buffer
	env := fixedEnvelope(&buf, "pcbnew.run_drc")
	data := RunResult{Command: "pcbnew.run_drc", Input: "a.kicad_pcb", Violations: 3, ExitCode: 3,
		Report: &CheckReport{Errors: 2, Unconnected: 1}}
	if err := env.Success(data); err != nil {
		t.Fatalf("Success: %v", err)
	}
	var doc struct {
		Ok    bool            `json:"ok"`
		Data  RunResult       `json:"data"`
		Error json.RawMessage `json:"error"`
		Meta  Meta            `json:"meta"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !doc.Ok || doc.Data.Violations != 3 || doc.Data.Report.Unconnected != 1 || doc.Error != nil {
		t.Fatalf("doc = %+v", doc)
	}
	if doc.Meta.SchemaVersion != SchemaVersion || doc.Meta.Command != "pcbnew.run_drc" || doc.Meta.DurationMS != 1500 {
		t.Fatalf("meta = %+v", doc.Meta)
	}
}

func TestFailure(t *testing.T) {
	var buf bytes.Buffer
	if err := fixedEnvelope(&buf, "eeschema.export").Failure("", "eeschema died", 10); err != nil {
		t.Fatalf("Failure: %v", err)
	}
	var doc struct {
		Ok    bool     `json:"ok"`
		Data  any      `json:"data"`
		Error *Failure `json:"error"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Ok || doc.Data != nil || doc.Error == nil {
		t.Fatalf("doc = %s", buf.String())
	}
	want := Failure{Kind: "command_failed", Message: "eeschema died", ExitCode: 10}
	if *doc.Error != want {
		t.Fatalf("error = %+v, want %+v", *doc.Error, want)
	}
}

func TestOneDocumentPerLine(t *testing.T) {
	var buf bytes.Buffer
	if err := fixedEnvelope(&buf, "x").Success(map[string]string{"path": "<a&b>"}); err != nil {
		t.Fatalf("Success: %v", err)
	}
	if strings.Count(buf.String(), "\n") != 1 || !strings.Contains(buf.String(), "<a&b>") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestWriteErrors(t *testing.T) {
	if err := (Envelope{W: errWriter{}}).Success(nil); err == nil {
		t.Fatalf("expected write error")
	}
	if err := (Envelope{}).Failure("k", "m", 1); err != nil {
		t.Fatalf("nil writer: %v", err)
	}
}
