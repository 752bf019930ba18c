package analysis

// Tool describes a static analyzer run against an unpacked package.
type Tool struct {
	// Name names the output subdirectory and the results.
	Name string
	// Bin is the executable, looked up in PATH when not absolute.
	Bin string
	// Args builds the argument list for a source directory and report path.
	Args func(src, report string) []string
	// ValidExit lists the exit codes that mean the tool ran to completion.
	ValidExit []int
	// ReportFromStdout makes the report a link to the captured stdout.
	ReportFromStdout bool
}

// Bandit returns the bandit security linter with a JSON report.
func Bandit() Tool {
	return Tool{
		Name: "bandit",
		Bin:  "bandit",
		Args: func(src, report string) []string {
			return []string{"--recursive", "--output", report, "--format", "json", src}
		},
		ValidExit: []int{0, 1},
	}
}

// Pyflakes returns the pyflakes checker; its report is its stdout.
func Pyflakes() Tool {
	return Tool{
		Name:             "pyflakes",
		Bin:              "pyflakes",
		Args:             func(src, _ string) []string { return []string{src} },
		ValidExit:        []int{0, 1},
		ReportFromStdout: true,
	}
}

// DefaultTools returns every built-in tool.
func DefaultTools() []Tool {
	return []Tool{Bandit(), Pyflakes()}
}

// ToolByName returns the built-in tool called name.
func ToolByName(name string) (Tool, bool) {
	for _, t := range DefaultTools() {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}
