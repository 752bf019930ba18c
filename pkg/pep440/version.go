// Package pep440 parses and compares Python release versions, version
// specifiers, PEP 508 requirement strings and environment markers.
//
// Only the subset needed to pick releases from an index is implemented:
// versions order as PEP 440 prescribes, specifier sets support every PEP 440
// operator plus the caret and tilde shorthands found in pyproject files, and
// markers evaluate against a fixed target [Environment].
package pep440

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var versionRE = regexp.MustCompile(`(?i)^\s*v?` +
	`(?:(?P<epoch>[0-9]+)!)?` +
	`(?P<release>[0-9]+(?:\.[0-9]+)*)` +
	`(?P<pre>[-_.]?(?P<pre_l>alpha|beta|preview|pre|rc|a|b|c)[-_.]?(?P<pre_n>[0-9]+)?)?` +
	`(?P<post>(?:-(?P<post_n1>[0-9]+))|(?:[-_.]?(?P<post_l>post|rev|r)[-_.]?(?P<post_n2>[0-9]+)?))?` +
	`(?P<dev>[-_.]?dev[-_.]?(?P<dev_n>[0-9]+)?)?` +
	`(?:\+(?P<local>[a-z0-9]+(?:[-_.][a-z0-9]+)*))?\s*$`)

// Version is a parsed PEP 440 version. The zero value is not valid; use
// [Parse].
type Version struct {
	raw     string
	epoch   int
	release []int
	pre     string // "a", "b", "rc" or ""
	preN    int
	post    int // -1 when absent
	dev     int // -1 when absent
	local   string
}

// Parse parses s as a PEP 440 version.
func Parse(s string) (Version, error) {
	m := versionRE.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	group := func(name string) string { return m[versionRE.SubexpIndex(name)] }

	v := Version{raw: strings.TrimSpace(s), post: -1, dev: -1}
	v.epoch = atoi(group("epoch"))
	for _, part := range strings.Split(group("release"), ".") {
		v.release = append(v.release, atoi(part))
	}
	if group("pre") != "" {
		v.pre = normalizePre(strings.ToLower(group("pre_l")))
		v.preN = atoi(group("pre_n"))
	}
	if group("post") != "" {
		n := group("post_n1")
		if n == "" {
			n = group("post_n2")
		}
		v.post = atoi(n)
	}
	if strings.TrimSpace(m[versionRE.SubexpIndex("dev")]) != "" {
		v.dev = atoi(group("dev_n"))
	}
	v.local = strings.ToLower(group("local"))
	return v, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func normalizePre(l string) string {
	switch l {
	case "alpha", "a":
		return "a"
	case "beta", "b":
		return "b"
	default:
		return "rc"
	}
}

// String returns the version as it was written.
func (v Version) String() string { return v.raw }

// IsPrerelease reports whether v is a pre-release or a development release.
func (v Version) IsPrerelease() bool { return v.pre != "" || v.dev >= 0 }

// IsPostrelease reports whether v carries a post-release segment.
func (v Version) IsPostrelease() bool { return v.post >= 0 }

// Release returns a copy of the release segment.
func (v Version) Release() []int { return append([]int(nil), v.release...) }

// Public returns v without its local label.
func (v Version) Public() Version {
	v.local = ""
	if i := strings.IndexByte(v.raw, '+'); i >= 0 {
		v.raw = v.raw[:i]
	}
	return v
}

// Base returns the epoch and release segment of v only.
func (v Version) Base() Version {
	return Version{raw: v.baseString(), epoch: v.epoch, release: v.release, post: -1, dev: -1}
}

func (v Version) baseString() string {
	parts := make([]string, len(v.release))
	for i, n := range v.release {
		parts[i] = strconv.Itoa(n)
	}
	s := strings.Join(parts, ".")
	if v.epoch != 0 {
		s = strconv.Itoa(v.epoch) + "!" + s
	}
	return s
}

// Equal reports whether v and o compare equal.
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// Compare returns -1, 0 or 1 as v sorts before, equal to or after o.
func (v Version) Compare(o Version) int {
	if c := cmpInt(v.epoch, o.epoch); c != 0 {
		return c
	}
	if c := cmpRelease(v.release, o.release); c != 0 {
		return c
	}
	if c := cmpInt(v.preRank(), o.preRank()); c != 0 {
		return c
	}
	if v.pre != "" && o.pre != "" {
		if c := cmpInt(v.preN, o.preN); c != 0 {
			return c
		}
	}
	if c := cmpInt(v.post, o.post); c != 0 {
		return c
	}
	if c := cmpInt(devKey(v.dev), devKey(o.dev)); c != 0 {
		return c
	}
	return cmpLocal(v.local, o.local)
}

// preRank orders the pre-release phase. A dev-only release sorts before any
// pre-release of the same version; a final release sorts after all of them.
func (v Version) preRank() int {
	switch {
	case v.pre == "" && v.post < 0 && v.dev >= 0:
		return -1
	case v.pre == "a":
		return 0
	case v.pre == "b":
		return 1
	case v.pre == "rc":
		return 2
	default:
		return 3
	}
}

func devKey(dev int) int {
	if dev < 0 {
		return int(^uint(0) >> 1)
	}
	return dev
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpRelease(a, b []int) int {
	n := max(len(a), len(b))
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if c := cmpInt(x, y); c != 0 {
			return c
		}
	}
	return 0
}

func cmpLocal(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}
	as := strings.FieldsFunc(a, isLocalSep)
	bs := strings.FieldsFunc(b, isLocalSep)
	for i := 0; i < len(as) && i < len(bs); i++ {
		x, xerr := strconv.Atoi(as[i])
		y, yerr := strconv.Atoi(bs[i])
		switch {
		case xerr == nil && yerr == nil:
			if c := cmpInt(x, y); c != 0 {
				return c
			}
		case xerr == nil:
			return 1
		case yerr == nil:
			return -1
		default:
			if c := strings.Compare(as[i], bs[i]); c != 0 {
				return c
			}
		}
	}
	return cmpInt(len(as), len(bs))
}

func isLocalSep(r rune) bool { return r == '.' || r == '-' || r == '_' }
