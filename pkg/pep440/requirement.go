package pep440

import (
	"fmt"
	"regexp"
	"strings"
)

var requirementRE = regexp.MustCompile(`^\s*([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(?:\[([^\]]*)\])?\s*(.*)$`)

// Requirement is a parsed PEP 508 dependency specification such as
// `requests[socks] (>=2.8,<3) ; python_version >= "3"`.
type Requirement struct {
	Name      string
	Extras    []string
	Specifier SpecifierSet
	URL       string
	Marker    *Marker
}

// ParseRequirement parses a PEP 508 requirement string.
func ParseRequirement(s string) (Requirement, error) {
	body, markerText, hasMarker := strings.Cut(s, ";")
	m := requirementRE.FindStringSubmatch(body)
	if m == nil {
		return Requirement{}, fmt.Errorf("invalid requirement %q", s)
	}
	req := Requirement{Name: m[1]}
	if m[2] != "" {
		for _, extra := range strings.Split(m[2], ",") {
			if extra = strings.TrimSpace(extra); extra != "" {
				req.Extras = append(req.Extras, extra)
			}
		}
	}

	rest := strings.TrimSpace(m[3])
	switch {
	case strings.HasPrefix(rest, "@"):
		req.URL = strings.TrimSpace(rest[1:])
	default:
		rest = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")"))
		set, err := ParseSpecifierSet(rest)
		if err != nil {
			return Requirement{}, fmt.Errorf("invalid requirement %q: %w", s, err)
		}
		req.Specifier = set
	}

	if hasMarker && strings.TrimSpace(markerText) != "" {
		mk, err := ParseMarker(markerText)
		if err != nil {
			return Requirement{}, fmt.Errorf("invalid requirement %q: %w", s, err)
		}
		req.Marker = mk
	}
	return req, nil
}

// Constraint returns the specifier text, or "*" when unconstrained.
func (r Requirement) Constraint() string {
	if r.Specifier.Empty() {
		return "*"
	}
	return r.Specifier.String()
}

// String formats r back into PEP 508 form.
func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		b.WriteString("[" + strings.Join(r.Extras, ",") + "]")
	}
	switch {
	case r.URL != "":
		b.WriteString(" @ " + r.URL)
	case !r.Specifier.Empty():
		b.WriteString(" (" + r.Specifier.String() + ")")
	}
	if r.Marker != nil {
		b.WriteString(" ; " + r.Marker.String())
	}
	return b.String()
}

// WithMarker returns a copy of r whose marker is the conjunction of its own
// marker and extra.
func (r Requirement) WithMarker(extra string) (Requirement, error) {
	text := extra
	if r.Marker != nil {
		text = "(" + r.Marker.String() + ") and (" + extra + ")"
	}
	mk, err := ParseMarker(text)
	if err != nil {
		return r, err
	}
	r.Marker = mk
	return r, nil
}

// Applies reports whether r is active in env. Requirements without a marker
// always apply.
func (r Requirement) Applies(env Environment) bool {
	return r.Marker == nil || r.Marker.Evaluate(env)
}
