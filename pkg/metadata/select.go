package metadata

import (
	"strings"

	"github.com/matzehuels/depscan/pkg/source"
)

// Rule names the selection step that produced a Candidate.
type Rule string

const (
	RuleUniversal          Rule = "universal"           // py2.py3-none-any wheel
	RuleMerged             Rule = "merged"              // py2 and py3 universal wheels
	RulePy3                Rule = "py3"                 // py3 universal wheel
	RulePy2                Rule = "py2"                 // py2 universal wheel
	RulePlatformCompatible Rule = "platform-compatible" // platform wheel installable in the Environment
	RulePlatform           Rule = "platform"            // any other platform wheel
	RuleSource             Rule = "sdist"               // source distribution
)

// Candidate is one extraction attempt. Merged candidates hold the py2 wheel
// followed by the py3 wheel; all others hold a single file.
type Candidate struct {
	Rule  Rule
	Files []source.FileAsset
}

// wheelTags holds the compatibility tags of a wheel file name
// {dist}-{version}(-{build})?-{python}-{abi}-{platform}.whl.
type wheelTags struct {
	python, abi, platform []string
}

func parseWheelTags(filename string) (wheelTags, bool) {
	base, ok := strings.CutSuffix(filename, ".whl")
	if !ok {
		return wheelTags{}, false
	}
	parts := strings.Split(base, "-")
	if len(parts) < 5 {
		return wheelTags{}, false
	}
	n := len(parts)
	return wheelTags{
		python:   strings.Split(parts[n-3], "."),
		abi:      strings.Split(parts[n-2], "."),
		platform: strings.Split(parts[n-1], "."),
	}, true
}

func (t wheelTags) pure() bool {
	return len(t.abi) == 1 && t.abi[0] == "none" && len(t.platform) == 1 && t.platform[0] == "any"
}

func (t wheelTags) hasPython(major string) bool {
	for _, p := range t.python {
		if p == "py"+major || strings.HasPrefix(p, "py"+major) || strings.HasPrefix(p, "cp"+major) {
			return true
		}
	}
	return false
}

// Select orders files by metadata authority. The result depends only on
// the input order and env, so repeated calls agree.
func Select(files []source.FileAsset, env Environment) []Candidate {
	var (
		universal, py2, py3 *source.FileAsset
		compatible, other   []source.FileAsset
		sdists              []source.FileAsset
	)
	for i := range files {
		f := &files[i]
		switch f.Kind {
		case source.KindWheel:
		case source.KindSource:
			sdists = append(sdists, *f)
			continue
		default:
			continue
		}

		tags, ok := parseWheelTags(f.Filename)
		if !ok {
			other = append(other, *f)
			continue
		}
		if !tags.pure() {
			if env.supports(tags) {
				compatible = append(compatible, *f)
			} else {
				other = append(other, *f)
			}
			continue
		}
		both := tags.hasPython("2") && tags.hasPython("3")
		switch {
		case both:
			if universal == nil {
				universal = f
			}
		case tags.hasPython("2"):
			if py2 == nil {
				py2 = f
			}
		default:
			if py3 == nil {
				py3 = f
			}
		}
	}

	var out []Candidate
	single := func(rule Rule, f source.FileAsset) {
		out = append(out, Candidate{Rule: rule, Files: []source.FileAsset{f}})
	}
	if universal != nil {
		single(RuleUniversal, *universal)
	}
	if py2 != nil && py3 != nil {
		out = append(out, Candidate{Rule: RuleMerged, Files: []source.FileAsset{*py2, *py3}})
	}
	if py3 != nil {
		single(RulePy3, *py3)
	}
	if py2 != nil {
		single(RulePy2, *py2)
	}
	for _, f := range compatible {
		single(RulePlatformCompatible, f)
	}
	for _, f := range other {
		single(RulePlatform, f)
	}
	for _, f := range sdists {
		single(RuleSource, f)
	}
	return out
}
