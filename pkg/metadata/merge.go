package metadata

import (
	"sort"

	"github.com/matzehuels/depscan/pkg/pep440"
)

const (
	py2OnlyMarker = `python_version == "2.7"`
	py3OnlyMarker = `python_version >= "3"`
)

// mergePythonLines combines the metadata of a py2 and a py3 universal wheel.
// Requirements declared by both stay unqualified; the rest are narrowed to
// their Python line. If only the py3 wheel declares requirements, its list is
// used verbatim. Summary and Requires-Python come from the py2 wheel unless
// it has none.
func mergePythonLines(py2, py3 *coreMetadata) *coreMetadata {
	out := &coreMetadata{
		Name:           py2.Name,
		Summary:        py2.Summary,
		RequiresPython: py2.RequiresPython,
		RequiresDist:   py2.RequiresDist,
	}
	if out.Summary == "" {
		out.Summary = py3.Summary
	}
	if out.RequiresPython == "" {
		out.RequiresPython = py3.RequiresPython
	}
	if len(py3.RequiresDist) == 0 {
		return out
	}
	if len(py2.RequiresDist) == 0 {
		out.RequiresDist = py3.RequiresDist
		return out
	}

	py2Set := normalizedSet(py2.RequiresDist)
	py3Set := normalizedSet(py3.RequiresDist)
	merged := make(map[string]bool, len(py2Set)+len(py3Set))
	for req := range py2Set {
		if py3Set[req] {
			merged[req] = true
		} else {
			merged[narrow(req, py2OnlyMarker)] = true
		}
	}
	for req := range py3Set {
		if !py2Set[req] {
			merged[narrow(req, py3OnlyMarker)] = true
		}
	}

	out.RequiresDist = make([]string, 0, len(merged))
	for req := range merged {
		out.RequiresDist = append(out.RequiresDist, req)
	}
	sort.Strings(out.RequiresDist)
	return out
}

// normalizedSet parses each requirement and re-formats it so that textual
// variants of the same requirement compare equal.
func normalizedSet(reqs []string) map[string]bool {
	set := make(map[string]bool, len(reqs))
	for _, r := range reqs {
		if req, err := pep440.ParseRequirement(r); err == nil {
			set[req.String()] = true
		} else {
			set[r] = true
		}
	}
	return set
}

func narrow(req, marker string) string {
	parsed, err := pep440.ParseRequirement(req)
	if err != nil {
		return req + " ; " + marker
	}
	narrowed, err := parsed.WithMarker(marker)
	if err != nil {
		return req + " ; " + marker
	}
	return narrowed.String()
}
