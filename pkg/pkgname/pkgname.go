// Package pkgname normalizes Python distribution names.
//
// Index lookups, mirror file names and graph node identities all use the
// canonical form returned by [Canonicalize], so "Flask_SQLAlchemy",
// "flask.sqlalchemy" and "flask-sqlalchemy" refer to the same project.
package pkgname

import (
	"regexp"
	"strings"
)

var separatorRE = regexp.MustCompile(`[-_.]+`)

// Canonicalize returns the canonical form of name: lower-case with every run
// of '-', '_' and '.' collapsed to a single '-'. It is idempotent.
func Canonicalize(name string) string {
	return separatorRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// Equal reports whether a and b name the same project.
func Equal(a, b string) bool {
	return Canonicalize(a) == Canonicalize(b)
}

// Ref identifies one release of a project by its display name and version.
type Ref struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Key returns the canonical project name, used as the identity of r.
func (r Ref) Key() string { return Canonicalize(r.Name) }

func (r Ref) String() string { return r.Name + " " + r.Version }
