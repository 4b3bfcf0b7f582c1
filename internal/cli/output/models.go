package output

// RunResult describes one finished eeschema or pcbnew run.
type RunResult struct {
	Command string `json:"command"`
	Input   string `json:"input"`
	Output  string `json:"output,omitempty"`
	// KicadVersion is the detected KiCad version.
	KicadVersion string `json:"kicad_version,omitempty"`
	// Violations decides the exit status of checker runs.
	Violations int          `json:"violations"`
	ExitCode   int          `json:"exit_code"`
	Report     *CheckReport `json:"report,omitempty"`
}

// CheckReport summarises an ERC or DRC report after filtering.
type CheckReport struct {
	Errors      int `json:"errors"`
	Warnings    int `json:"warnings"`
	Unconnected int `json:"unconnected,omitempty"`
	Filtered    int `json:"filtered"`
}
