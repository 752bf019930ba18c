package failstats

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/scan"
)

// Failure is one failure ledger entry.
type Failure struct {
	Package string `json:"package" yaml:"package"`
	Message string `json:"message" yaml:"message"`
	Ledger  string `json:"ledger,omitempty" yaml:"ledger,omitempty"`
}

// FirstLine returns the line the rules match on.
func (f Failure) FirstLine() string {
	return scan.Entry{Message: f.Message}.FirstLine()
}

// Collect expands the doublestar patterns (for example
// "out/worker*/log/fail.txt" or "out/**/fail.txt") and reads every matching
// ledger. Files are read in lexical order; entries keep ledger order.
func Collect(patterns []string) ([]Failure, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "bad pattern %q", pattern)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	if len(files) == 0 {
		return nil, errors.New(errors.ErrCodeNotFound, "no ledger matches %v", patterns)
	}

	var out []Failure
	for _, path := range files {
		entries, err := scan.ReadLedger(path)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			out = append(out, Failure{Package: e.Name(), Message: e.Message, Ledger: filepath.ToSlash(path)})
		}
	}
	return out, nil
}

// Bucket is the set of failures one rule matched.
type Bucket struct {
	Rule        string   `json:"rule" yaml:"rule"`
	Description string   `json:"description" yaml:"description"`
	Count       int      `json:"count" yaml:"count"`
	Packages    []string `json:"packages" yaml:"packages"`
}

// Report is the classification of a set of failures.
type Report struct {
	Total      int       `json:"total" yaml:"total"`
	Buckets    []Bucket  `json:"buckets" yaml:"buckets"`
	Unknown    []Failure `json:"unknown,omitempty" yaml:"unknown,omitempty"`
	Duplicates []string  `json:"duplicates,omitempty" yaml:"duplicates,omitempty"`
	Rerun      []string  `json:"rerun" yaml:"rerun"`
}

// Classify matches every failure against rules, first match wins. Buckets
// are ordered by count, descending; ties keep rule order. Rerun lists every
// failed package except timeouts, once each, in reverse collection order.
func Classify(failures []Failure, rules []Rule) *Report {
	rep := &Report{Total: len(failures)}
	buckets := make([]*Bucket, len(rules))
	seen := make(map[string]bool)
	var rerun []string
	rerunSeen := make(map[string]bool)

	for _, f := range failures {
		if seen[f.Package] {
			rep.Duplicates = append(rep.Duplicates, f.Package)
		}
		seen[f.Package] = true

		line := f.FirstLine()
		matched := -1
		for i, r := range rules {
			if r.Match(line) {
				matched = i
				break
			}
		}
		if matched < 0 {
			rep.Unknown = append(rep.Unknown, f)
		} else {
			if buckets[matched] == nil {
				buckets[matched] = &Bucket{Rule: rules[matched].ID, Description: rules[matched].Description}
			}
			b := buckets[matched]
			b.Count++
			b.Packages = append(b.Packages, f.Package)
		}

		if (matched < 0 || rules[matched].ID != RuleTimeout) && !rerunSeen[f.Package] {
			rerunSeen[f.Package] = true
			rerun = append(rerun, f.Package)
		}
	}

	for _, b := range buckets {
		if b != nil {
			rep.Buckets = append(rep.Buckets, *b)
		}
	}
	sort.SliceStable(rep.Buckets, func(i, j int) bool { return rep.Buckets[i].Count > rep.Buckets[j].Count })

	rep.Rerun = make([]string, 0, len(rerun))
	for i := len(rerun) - 1; i >= 0; i-- {
		rep.Rerun = append(rep.Rerun, rerun[i])
	}
	return rep
}

// Output formats for Write.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Write renders r in the given format.
func (r *Report) Write(w io.Writer, format string) error {
	switch format {
	case "", FormatText:
		return r.writeText(w)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return errors.New(errors.ErrCodeInvalidInput, "unknown format %q (want text, json or yaml)", format)
	}
}

func (r *Report) writeText(w io.Writer) error {
	for _, d := range r.Duplicates {
		if _, err := fmt.Fprintf(w, "Already seen '%s'\n", d); err != nil {
			return err
		}
	}
	for _, f := range r.Unknown {
		if _, err := fmt.Fprintf(w, "Pkg: %s - %s\n", f.Package, f.FirstLine()); err != nil {
			return err
		}
	}
	for _, b := range r.Buckets {
		if _, err := fmt.Fprintf(w, "%10d: %s\n", b.Count, b.Description); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%10d: total (%d unknown)\n", r.Total, len(r.Unknown))
	return err
}

// WriteRerun writes the rerun list, one package per line.
func (r *Report) WriteRerun(w io.Writer) error {
	for _, p := range r.Rerun {
		if _, err := fmt.Fprintln(w, p); err != nil {
			return err
		}
	}
	return nil
}
