package depgraph

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/resolve"
)

// DepRecord is one direct dependency of a package in the artifact.
type DepRecord struct {
	Name       string `json:"dep_name"`
	Version    string `json:"dep_ver"`
	Constraint string `json:"dep_constraint"`
}

// PackageInfo is the artifact entry of one solved package.
type PackageInfo struct {
	Version      string      `json:"ver"`
	Sources      []string    `json:"src"`
	ReleaseDates []string    `json:"pkg_rel_date"`
	Depth        int         `json:"dep_depth"`
	Deps         []DepRecord `json:"dep"`
}

// Dump is the DepInfoDump artifact of one scanned package.
type Dump struct {
	RootPackage string                 `json:"root_pkg"`
	Packages    map[string]PackageInfo `json:"dep_info"`
}

// BuildDump assembles the artifact for g. Sources and release dates come
// from tracker, which may be nil.
func BuildDump(g *Graph, tracker *resolve.SourceTracker) *Dump {
	d := &Dump{
		RootPackage: g.Root.Name,
		Packages:    make(map[string]PackageInfo, len(g.Packages)),
	}
	for _, p := range g.Packages {
		info := PackageInfo{
			Version:      p.Version,
			Sources:      tracker.URLs(p.Name, p.Version),
			ReleaseDates: tracker.ReleaseDates(p.Name, p.Version),
			Depth:        p.Depth,
			Deps:         []DepRecord{},
		}
		for _, e := range g.deps[p.Key()] {
			info.Deps = append(info.Deps, DepRecord{
				Name:       e.Dependent.Name,
				Version:    e.Dependent.Version,
				Constraint: e.Constraint,
			})
		}
		d.Packages[p.Name] = info
	}
	return d
}

// RootVersion returns the version of the root package.
func (d *Dump) RootVersion() string {
	return d.Packages[d.RootPackage].Version
}

// FileName returns the artifact file name, "<root>@<version>.json".
func (d *Dump) FileName() string {
	return fmt.Sprintf("%s@%s.json", d.RootPackage, d.RootVersion())
}

// Encode returns d as indented JSON.
func (d *Dump) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", " ")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode dump of %s", d.RootPackage)
	}
	return append(data, '\n'), nil
}

// WriteJSON writes d to w as indented JSON.
func (d *Dump) WriteJSON(w io.Writer) error {
	data, err := d.Encode()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadDump decodes an artifact from r.
func ReadDump(r io.Reader) (*Dump, error) {
	var d Dump
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode dump")
	}
	if d.Packages == nil {
		d.Packages = make(map[string]PackageInfo)
	}
	return &d, nil
}
