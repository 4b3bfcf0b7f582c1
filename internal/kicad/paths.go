package kicad

import (
	"path/filepath"
)

const (
	shareDir        = "/usr/share/kicad"
	nightlyShareDir = "/usr/share/kicad-nightly"
	nightlyPython   = "/usr/lib/kicad-nightly/lib/python3/dist-packages"
	nightlySuffix   = "nightly"
)

// Paths collects binary names, config files and UI details that depend on
// the KiCad flavour in use.
type Paths struct {
	Eeschema string
	Pcbnew   string

	ConfigDir   string
	EeschemaCfg string
	PcbnewCfg   string
	CommonCfg   string
	Hotkeys     string
	// JSON is set when the config files above use the 5.99+ JSON format.
	JSON bool

	UserSymLibTable string
	UserFpLibTable  string
	SysSymLibTables []string
	SysFpLibTables  []string

	// ProjectExt and LocalExt are the project and local settings
	// extensions without dot. LocalExt is empty before 5.99.
	ProjectExt string
	LocalExt   string

	// EeschemaTitle and PcbnewTitle match the main window titles.
	EeschemaTitle string
	PcbnewTitle   string
}

// NewPaths resolves locations for the user home, detected version and
// optional nightly flavour (for example "5.99").
func NewPaths(home string, v Version, nightly string) Paths {
	p := Paths{
		Eeschema:        "eeschema",
		Pcbnew:          "pcbnew",
		ConfigDir:       filepath.Join(home, ".config", "kicad"),
		SysSymLibTables: []string{filepath.Join(shareDir, "template", "sym-lib-table")},
		SysFpLibTables:  []string{filepath.Join(shareDir, "template", "fp-lib-table")},
		ProjectExt:      "pro",
		EeschemaTitle:   `Eeschema.*\.sch`,
		PcbnewTitle:     `Pcbnew`,
	}
	if nightly != "" {
		p.Eeschema += "-" + nightlySuffix
		p.Pcbnew += "-" + nightlySuffix
		p.ConfigDir = filepath.Join(home, ".config", "kicad"+nightlySuffix, nightly)
		p.SysSymLibTables = append([]string{filepath.Join(nightlyShareDir, "template", "sym-lib-table")}, p.SysSymLibTables...)
		p.SysFpLibTables = append([]string{filepath.Join(nightlyShareDir, "template", "fp-lib-table")}, p.SysFpLibTables...)
	}
	p.EeschemaCfg = filepath.Join(p.ConfigDir, "eeschema")
	p.PcbnewCfg = filepath.Join(p.ConfigDir, "pcbnew")
	p.CommonCfg = filepath.Join(p.ConfigDir, "kicad_common")
	if v.NextGen() {
		p.EeschemaCfg += ".json"
		p.PcbnewCfg += ".json"
		p.CommonCfg += ".json"
		p.JSON = true
		p.ProjectExt = "kicad_pro"
		p.LocalExt = "kicad_prl"
		// "PROJECT [HIERARCHY_PATH] — Eeschema"
		p.EeschemaTitle = `\[.*\] — Eeschema$`
		p.PcbnewTitle = `.* — Pcbnew$`
	}
	p.Hotkeys = filepath.Join(p.ConfigDir, "user.hotkeys")
	p.UserSymLibTable = filepath.Join(p.ConfigDir, "sym-lib-table")
	p.UserFpLibTable = filepath.Join(p.ConfigDir, "fp-lib-table")
	return p
}
