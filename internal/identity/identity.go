package identity

import (
	"path/filepath"
	"strings"
)

const (
	BrandName = "KiAuto"
	// AppSlug names the on-disk state directory and log attributes.
	AppSlug = "kiauto"
	CLIName = "kiauto"

	GlobalConfigFile = "config.yml"
	LogFile          = "kiauto.log"
)

// Legacy entry points that map straight onto a top-level command.
var legacyAliases = map[string]string{
	"eeschema_do": "eeschema",
	"pcbnew_do":   "pcbnew",
}

// ResolveBinaryName returns the display name for the running binary.
func ResolveBinaryName(args []string) string {
	if len(args) == 0 {
		return CLIName
	}
	base := strings.ToLower(strings.TrimSpace(filepath.Base(args[0])))
	if _, ok := legacyAliases[base]; ok {
		return base
	}
	return CLIName
}

// LegacyCommand reports the top-level command implied by the binary name,
// so that `eeschema_do FILE DIR run_erc` keeps working when installed as a link.
func LegacyCommand(args []string) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	base := strings.ToLower(strings.TrimSpace(filepath.Base(args[0])))
	cmd, ok := legacyAliases[base]
	return cmd, ok
}
