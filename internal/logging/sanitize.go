package logging

import (
	"regexp"
	"strings"

	"github.com/kballard/go-shellquote"
)

var (
	sensitiveFlagPattern = regexp.MustCompile(`(?i)(--(?:token|api-key|secret|password|passwd|auth|cookie|session))(=|\s+)(\S+)`)
	sensitiveEnvPattern  = regexp.MustCompile(`(?i)\b([A-Z0-9_]*?(?:TOKEN|SECRET|PASSWORD|PASS|API_KEY|AUTH|COOKIE)[A-Z0-9_]*)=([^\s]+)`)
	vncPasswdPattern     = regexp.MustCompile(`(-passwd|-rfbauth)(\s+)(\S+)`)
)

// SanitizeCommand redacts common sensitive tokens in command strings.
func SanitizeCommand(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	out := value
	out = sensitiveFlagPattern.ReplaceAllString(out, "$1$2<redacted>")
	out = sensitiveEnvPattern.ReplaceAllString(out, "$1=<redacted>")
	out = vncPasswdPattern.ReplaceAllString(out, "$1$2<redacted>")
	return out
}

// CommandLine renders argv the way a shell would accept it, sanitized for logs.
func CommandLine(name string, args ...string) string {
	argv := append([]string{name}, args...)
	return SanitizeCommand(shellquote.Join(argv...))
}
