package pep440

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Operator is a version comparison operator.
type Operator string

// Supported operators.
const (
	OpCompatible Operator = "~="
	OpEqual      Operator = "=="
	OpNotEqual   Operator = "!="
	OpLessEq     Operator = "<="
	OpGreaterEq  Operator = ">="
	OpLess       Operator = "<"
	OpGreater    Operator = ">"
	OpArbitrary  Operator = "==="
)

var specRE = regexp.MustCompile(`^\s*(~=|===|==|!=|<=|>=|<|>|\^|~)?\s*(\S+?)\s*$`)

// Specifier is a single "<op><version>" clause.
type Specifier struct {
	Op       Operator
	Version  string
	wildcard bool
	parsed   Version
}

func (s Specifier) String() string {
	if s.wildcard {
		return string(s.Op) + s.Version + ".*"
	}
	return string(s.Op) + s.Version
}

// SpecifierSet is a conjunction of specifiers. An empty set allows every
// version.
type SpecifierSet struct {
	specs []Specifier
	raw   string
}

// ParseSpecifierSet parses a comma-separated list of specifiers. "", "*" and
// whitespace produce an empty set. The caret ("^1.2") and tilde ("~1.2")
// shorthands expand into ranges.
func ParseSpecifierSet(s string) (SpecifierSet, error) {
	set := SpecifierSet{raw: strings.TrimSpace(s)}
	if set.raw == "" || set.raw == "*" {
		set.raw = ""
		return set, nil
	}
	for _, clause := range strings.Split(set.raw, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" || clause == "*" {
			continue
		}
		specs, err := parseClause(clause)
		if err != nil {
			return SpecifierSet{}, err
		}
		set.specs = append(set.specs, specs...)
	}
	return set, nil
}

// MustParseSpecifierSet is like ParseSpecifierSet but panics on error.
func MustParseSpecifierSet(s string) SpecifierSet {
	set, err := ParseSpecifierSet(s)
	if err != nil {
		panic(err)
	}
	return set
}

func parseClause(clause string) ([]Specifier, error) {
	m := specRE.FindStringSubmatch(clause)
	if m == nil {
		return nil, fmt.Errorf("invalid specifier %q", clause)
	}
	op, ver := m[1], m[2]

	switch op {
	case "^":
		return caretRange(ver)
	case "~":
		return tildeRange(ver)
	case "":
		op = string(OpEqual)
	}

	spec := Specifier{Op: Operator(op), Version: ver}
	if spec.Op == OpArbitrary {
		return []Specifier{spec}, nil
	}
	if strings.HasSuffix(ver, ".*") {
		if spec.Op != OpEqual && spec.Op != OpNotEqual {
			return nil, fmt.Errorf("invalid specifier %q: wildcard needs == or !=", clause)
		}
		spec.wildcard = true
		spec.Version = strings.TrimSuffix(ver, ".*")
	}
	v, err := Parse(spec.Version)
	if err != nil {
		return nil, fmt.Errorf("invalid specifier %q: %w", clause, err)
	}
	if spec.Op == OpCompatible && len(v.release) < 2 {
		return nil, fmt.Errorf("invalid specifier %q: ~= needs at least two release segments", clause)
	}
	spec.parsed = v
	return []Specifier{spec}, nil
}

func caretRange(ver string) ([]Specifier, error) {
	v, err := Parse(ver)
	if err != nil {
		return nil, fmt.Errorf("invalid specifier %q: %w", "^"+ver, err)
	}
	upper := make([]int, len(v.release))
	i := 0
	for i < len(v.release)-1 && v.release[i] == 0 {
		i++
	}
	copy(upper, v.release[:i])
	upper[i] = v.release[i] + 1
	return boundedRange(v, upper[:i+1])
}

func tildeRange(ver string) ([]Specifier, error) {
	v, err := Parse(ver)
	if err != nil {
		return nil, fmt.Errorf("invalid specifier %q: %w", "~"+ver, err)
	}
	var upper []int
	if len(v.release) == 1 {
		upper = []int{v.release[0] + 1}
	} else {
		upper = []int{v.release[0], v.release[1] + 1}
	}
	return boundedRange(v, upper)
}

func boundedRange(lower Version, upper []int) ([]Specifier, error) {
	parts := make([]string, len(upper))
	for i, n := range upper {
		parts[i] = strconv.Itoa(n)
	}
	hi, err := Parse(strings.Join(parts, "."))
	if err != nil {
		return nil, err
	}
	return []Specifier{
		{Op: OpGreaterEq, Version: lower.String(), parsed: lower},
		{Op: OpLess, Version: hi.String(), parsed: hi},
	}, nil
}

// String returns the set as it was written ("" for the empty set).
func (s SpecifierSet) String() string { return s.raw }

// Empty reports whether the set has no clauses.
func (s SpecifierSet) Empty() bool { return len(s.specs) == 0 }

// Specifiers returns the parsed clauses.
func (s SpecifierSet) Specifiers() []Specifier { return append([]Specifier(nil), s.specs...) }

// MentionsPrerelease reports whether any clause names a pre-release, which
// opts the set into matching pre-releases.
func (s SpecifierSet) MentionsPrerelease() bool {
	for _, spec := range s.specs {
		if spec.Op != OpArbitrary && spec.parsed.IsPrerelease() {
			return true
		}
	}
	return false
}

// Contains reports whether v satisfies every clause. Pre-releases only match
// when prereleases is true or a clause names a pre-release.
func (s SpecifierSet) Contains(v Version, prereleases bool) bool {
	if v.IsPrerelease() && !prereleases && !s.MentionsPrerelease() {
		return false
	}
	for _, spec := range s.specs {
		if !spec.Contains(v) {
			return false
		}
	}
	return true
}

// Contains reports whether v satisfies the clause, ignoring pre-release
// policy.
func (s Specifier) Contains(v Version) bool {
	switch s.Op {
	case OpArbitrary:
		return strings.EqualFold(v.String(), s.Version)
	case OpEqual:
		if s.wildcard {
			return prefixMatch(v, s.parsed)
		}
		if s.parsed.local == "" {
			return v.Public().Compare(s.parsed) == 0
		}
		return v.Compare(s.parsed) == 0
	case OpNotEqual:
		if s.wildcard {
			return !prefixMatch(v, s.parsed)
		}
		if s.parsed.local == "" {
			return v.Public().Compare(s.parsed) != 0
		}
		return v.Compare(s.parsed) != 0
	case OpLessEq:
		return v.Public().Compare(s.parsed) <= 0
	case OpGreaterEq:
		return v.Public().Compare(s.parsed) >= 0
	case OpLess:
		if v.Compare(s.parsed) >= 0 {
			return false
		}
		// <V never matches a pre-release of V itself.
		if !s.parsed.IsPrerelease() && v.IsPrerelease() && cmpRelease(v.release, s.parsed.release) == 0 && v.epoch == s.parsed.epoch {
			return false
		}
		return true
	case OpGreater:
		if v.Public().Compare(s.parsed) <= 0 {
			return false
		}
		// >V never matches a post-release or local build of V itself.
		if !s.parsed.IsPostrelease() && (v.IsPostrelease() || v.local != "") && v.Base().Compare(s.parsed.Base()) == 0 {
			return false
		}
		return true
	case OpCompatible:
		if v.Public().Compare(s.parsed) < 0 {
			return false
		}
		prefix := s.parsed.Base()
		prefix.release = prefix.release[:len(prefix.release)-1]
		return prefixMatch(v, prefix)
	}
	return false
}

func prefixMatch(v, prefix Version) bool {
	if v.epoch != prefix.epoch {
		return false
	}
	for i, n := range prefix.release {
		got := 0
		if i < len(v.release) {
			got = v.release[i]
		}
		if got != n {
			return false
		}
	}
	return true
}
