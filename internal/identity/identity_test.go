package identity

import "testing"

func TestResolveBinaryName(t *testing.T) {
	if got := ResolveBinaryName(nil); got != CLIName {
		t.Fatalf("expected default %q, got %q", CLIName, got)
	}
	if got := ResolveBinaryName([]string{"/usr/local/bin/kiauto"}); got != CLIName {
		t.Fatalf("expected %q, got %q", CLIName, got)
	}
	if got := ResolveBinaryName([]string{"/usr/bin/eeschema_do"}); got != "eeschema_do" {
		t.Fatalf("expected eeschema_do, got %q", got)
	}
	if got := ResolveBinaryName([]string{"unknown"}); got != CLIName {
		t.Fatalf("expected fallback %q, got %q", CLIName, got)
	}
}

func TestLegacyCommand(t *testing.T) {
	cases := map[string]string{
		"eeschema_do":          "eeschema",
		"/opt/bin/pcbnew_do":   "pcbnew",
		"/opt/bin/PCBNEW_DO":   "pcbnew",
		"kiauto":               "",
		"/usr/local/bin/other": "",
	}
	for input, want := range cases {
		got, ok := LegacyCommand([]string{input})
		if ok != (want != "") || got != want {
			t.Fatalf("LegacyCommand(%q) = %q,%v want %q", input, got, ok, want)
		}
	}
	if _, ok := LegacyCommand(nil); ok {
		t.Fatalf("expected no legacy command for empty args")
	}
}
