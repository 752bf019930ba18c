package resolve

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// CompatibilityError reports releases whose Requires-Python excludes the
// target Python. It can be retried in ModeCompat.
type CompatibilityError struct {
	Python    string
	Conflicts []string // "<name> <version> requires Python <spec>"
}

func (e *CompatibilityError) Error() string {
	return fmt.Sprintf("The current project's Python requirement (%s) is not compatible with some of the required packages Python requirement:\n  - %s",
		e.Python, strings.Join(e.Conflicts, "\n  - "))
}

// UnsatisfiableError reports that no assignment satisfies the requirements.
// Explanation is the solver's derivation, one line per step.
type UnsatisfiableError struct {
	Explanation []string
}

func (e *UnsatisfiableError) Error() string {
	return strings.Join(e.Explanation, "\n")
}

// IsUnsatisfiable reports whether err is or wraps an UnsatisfiableError.
func IsUnsatisfiable(err error) bool {
	var u *UnsatisfiableError
	return stderrors.As(err, &u)
}
