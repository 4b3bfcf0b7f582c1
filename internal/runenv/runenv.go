package runenv

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ConfigDirEnv    = "KIAUTO_CONFIG_DIR"
	LogDirEnv       = "KIAUTO_LOG_DIR"
	KicadVersionEnv = "KIAUTO_KICAD_VERSION"
	NightlyEnv      = "KIAUTO_USE_NIGHTLY"
	XvfbArgsEnv     = "KIAUTO_XVFB_ARGS"
	WaitStartEnv    = "KIAUTO_WAIT_START"
	KeepDisplayEnv  = "KIAUTO_KEEP_DISPLAY"
)

func enabledEnv(name string) bool {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return false
	}
	switch strings.ToLower(value) {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

func ConfigDir() string {
	return strings.TrimSpace(os.Getenv(ConfigDirEnv))
}

func LogDir() string {
	return strings.TrimSpace(os.Getenv(LogDirEnv))
}

// KicadVersion is a manual override for the detected KiCad build version.
func KicadVersion() string {
	return strings.TrimSpace(os.Getenv(KicadVersionEnv))
}

// Nightly returns the nightly flavour name (for example "5.99") when the
// nightly KiCad packages should be driven instead of the stable ones.
func Nightly() string {
	return strings.TrimSpace(os.Getenv(NightlyEnv))
}

func XvfbArgs() string {
	return strings.TrimSpace(os.Getenv(XvfbArgsEnv))
}

// KeepDisplay skips the private Xvfb and drives the DISPLAY already set.
func KeepDisplay() bool {
	return enabledEnv(KeepDisplayEnv)
}

// WaitStart returns how long to wait for the main editor window.
func WaitStart(fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(WaitStartEnv))
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return fallback
		}
		return d
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
