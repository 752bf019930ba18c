// Package failstats classifies the failure ledgers written by a scan.
//
// Every ledger entry is matched on the first line of its message against
// an ordered rule list; the first rule that matches wins. Entries no rule
// matches are reported separately. The default rules recognise both the
// coded errors of this tool ("FETCH_FAILED: ...") and the messages of older
// Python-based scanners, so mixed result sets classify consistently.
package failstats

import (
	"regexp"
	"strings"
)

// Rule IDs with special handling.
const (
	RuleTimeout = "timeout"
	RuleEmpty   = "empty"
)

// Rule is one failure class.
type Rule struct {
	ID          string
	Description string
	Match       func(firstLine string) bool
}

func hasPrefix(prefixes ...string) func(string) bool {
	return func(m string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(m, p) {
				return true
			}
		}
		return false
	}
}

func matches(re *regexp.Regexp) func(string) bool {
	return func(m string) bool {
		loc := re.FindStringIndex(m)
		return loc != nil && loc[0] == 0
	}
}

var (
	noVersionRE   = regexp.MustCompile(`\s*Because no versions of `)
	depConflictRE = regexp.MustCompile(`\s*Because \S+? \S+\sdepends on `)
)

// investigate builds a rule for a known but unexplained message.
func investigate(prefix string) Rule {
	return Rule{
		ID:          "investigate:" + prefix,
		Description: "To be investigated: " + prefix,
		Match:       hasPrefix(prefix),
	}
}

// DefaultRules returns the built-in taxonomy in match order.
func DefaultRules() []Rule {
	rules := []Rule{
		{"recursion", "Solver fail due to maximum recursion depth exceeded",
			hasPrefix("maximum recursion depth exceeded")},
		{RuleTimeout, "Analysis timeout",
			hasPrefix("Execution time limit reached!", "DEADLINE_EXCEEDED:")},
		{"invalid-requirement", "Invalid Requirement expression",
			hasPrefix("Invalid requirement, parse error at", "INVALID_PACKAGE:")},
		{"invalid-constraint", "Invalid version constraint",
			hasPrefix("Could not parse version constraint:", "INVALID_VERSION:")},
		{"no-version", "No available version can satisfy the requirement",
			matches(noVersionRE)},
		{"conflict-root", "Requirement conflict: caused by root",
			hasPrefix("Because dep-solver-root-c6c3d607", "Because depscan-root")},
		{"conflict-dependency", "Requirement conflict: caused by dependency",
			matches(depConflictRE)},
		{"python-compat", "Not compatible with the target Python",
			hasPrefix("The current project's Python requirement (")},
		{"url-gone", "Package URL no longer exist",
			hasPrefix("404 Client Error:", "FETCH_FAILED:")},
		{"no-metadata", "No usable metadata in any artifact",
			hasPrefix("NO_METADATA:")},
		{"internal", "Resolver internal bug",
			hasPrefix("Post-process verification fail: only one package is suppose to have depth 0",
				"SINGLE_ROOT_VIOLATION:", "INCONSISTENT_GRAPH:", "GRAPH_TOO_DEEP:")},
		{RuleEmpty, "To be investigated: no error msg is logged",
			func(m string) bool { return m == "" }},
	}
	for _, p := range []string{
		"'NoneType' object is not iterable",
		"Unable to parse",
		"join() argument must be str, bytes, or os.PathLike object",
		`can only concatenate str (not "int") to str`,
		"not enough values to unpack (expected 4, got 2)",
		"Compressed file ended before the end-of-stream marker was reached",
		"expected string or bytes-like object",
		"The dependency name for ",
		"'python-xlib'",
		"timestamp out of range for platform time_t",
		"list index out of range",
		"file could not be opened successfully",
		"'EmptyConstraint' object has no attribute 'min'",
		"[Errno 13] Permission denied: '/tmp/",
		"[Errno 13] Permission denied: '/Users'",
		"unhashable type: 'VersionUnion'",
		"Unable to retrieve the package version",
	} {
		rules = append(rules, investigate(p))
	}
	return rules
}
