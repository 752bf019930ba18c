// Package manifest reads root requirements from Python project manifests.
//
// Supported files are pyproject.toml (PEP 621 [project].dependencies and
// [tool.poetry.dependencies]) and requirements*.txt. Entries that cannot be
// resolved from an index, such as URL, path and VCS dependencies, are listed
// in Manifest.Skipped instead of failing the parse.
package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/pep440"
	"github.com/matzehuels/depscan/pkg/pkgname"
	"github.com/matzehuels/depscan/pkg/resolve"
)

// Manifest is the parsed content of one manifest file.
type Manifest struct {
	Type         string
	Name         string
	Requirements []resolve.Requirement
	Skipped      []string
}

// Supports reports whether a file with this base name can be parsed.
func Supports(name string) bool {
	return name == "pyproject.toml" ||
		(strings.HasPrefix(name, "requirements") && strings.HasSuffix(name, ".txt"))
}

// Parse reads the manifest at path. When env is non-nil, requirements whose
// markers do not hold in env are skipped.
func Parse(path string, env pep440.Environment) (*Manifest, error) {
	name := filepath.Base(path)
	if !Supports(name) {
		return nil, errors.New(errors.ErrCodeUnsupported, "unsupported manifest %s", name)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "open %s", path)
	}
	defer f.Close()

	if name == "pyproject.toml" {
		return ParsePyproject(f, env)
	}
	return ParseRequirements(f, env)
}

type pyproject struct {
	Project struct {
		Name         string   `toml:"name"`
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Name         string         `toml:"name"`
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// ParsePyproject reads a pyproject.toml. PEP 621 dependencies come first,
// then Poetry dependencies in name order.
func ParsePyproject(r io.Reader, env pep440.Environment) (*Manifest, error) {
	var doc pyproject
	if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse pyproject.toml")
	}

	m := &Manifest{Type: "pyproject.toml", Name: doc.Project.Name}
	if m.Name == "" {
		m.Name = doc.Tool.Poetry.Name
	}
	b := newBuilder(m, env)
	for _, line := range doc.Project.Dependencies {
		if err := b.addPEP508(line); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(doc.Tool.Poetry.Dependencies))
	for name := range doc.Tool.Poetry.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := b.addPoetry(name, doc.Tool.Poetry.Dependencies[name]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ParseRequirements reads a pip requirements file. Options, editable
// installs and URL requirements are skipped.
func ParseRequirements(r io.Reader, env pep440.Environment) (*Manifest, error) {
	m := &Manifest{Type: "requirements.txt"}
	b := newBuilder(m, env)

	scanner := bufio.NewScanner(r)
	var pending string
	for scanner.Scan() {
		line := pending + scanner.Text()
		pending = ""
		if strings.HasSuffix(line, "\\") {
			pending = strings.TrimSuffix(line, "\\")
			continue
		}
		if i := strings.Index(line, " #"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "" || line[0] == '#':
			continue
		case line[0] == '-', strings.Contains(line, "://"), strings.HasPrefix(line, "git+"):
			m.Skipped = append(m.Skipped, line)
			continue
		}
		if err := b.addPEP508(line); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read requirements")
	}
	return m, nil
}

type builder struct {
	m    *Manifest
	env  pep440.Environment
	seen map[string]bool
}

func newBuilder(m *Manifest, env pep440.Environment) *builder {
	return &builder{m: m, env: env, seen: make(map[string]bool)}
}

func (b *builder) addPEP508(line string) error {
	req, err := pep440.ParseRequirement(line)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPackage, err, "invalid requirement %q", line)
	}
	if req.URL != "" || (b.env != nil && !req.Applies(b.env)) {
		b.m.Skipped = append(b.m.Skipped, line)
		return nil
	}
	b.add(req)
	return nil
}

// addPoetry handles the string, table and multiple-constraint forms of a
// [tool.poetry.dependencies] entry.
func (b *builder) addPoetry(name string, value any) error {
	if pkgname.Canonicalize(name) == "python" {
		return nil
	}
	switch v := value.(type) {
	case string:
		return b.addPoetryConstraint(name, v, nil, "")
	case map[string]any:
		if optional, _ := v["optional"].(bool); optional {
			b.m.Skipped = append(b.m.Skipped, name)
			return nil
		}
		for _, key := range []string{"git", "path", "url"} {
			if _, ok := v[key]; ok {
				b.m.Skipped = append(b.m.Skipped, name)
				return nil
			}
		}
		constraint, _ := v["version"].(string)
		markers, _ := v["markers"].(string)
		var extras []string
		if list, ok := v["extras"].([]any); ok {
			for _, e := range list {
				if s, ok := e.(string); ok {
					extras = append(extras, s)
				}
			}
		}
		return b.addPoetryConstraint(name, constraint, extras, markers)
	case []any:
		for _, alt := range v {
			before := len(b.m.Requirements)
			if err := b.addPoetry(name, alt); err != nil {
				return err
			}
			if len(b.m.Requirements) > before {
				return nil
			}
		}
		return nil
	default:
		return errors.New(errors.ErrCodeInvalidInput, "dependency %s: unexpected value %v", name, value)
	}
}

func (b *builder) addPoetryConstraint(name, constraint string, extras []string, markers string) error {
	if constraint == "" {
		constraint = "*"
	}
	set, err := pep440.ParseSpecifierSet(constraint)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidVersion, err, "dependency %s: could not parse version constraint %q", name, constraint)
	}
	req := pep440.Requirement{Name: name, Extras: extras, Specifier: set}
	if markers != "" {
		mk, err := pep440.ParseMarker(markers)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidPackage, err, "dependency %s: invalid markers", name)
		}
		req.Marker = mk
	}
	if b.env != nil && !req.Applies(b.env) {
		b.m.Skipped = append(b.m.Skipped, name)
		return nil
	}
	b.add(req)
	return nil
}

func (b *builder) add(req pep440.Requirement) {
	key := pkgname.Canonicalize(req.Name)
	if b.seen[key] {
		return
	}
	b.seen[key] = true
	name := req.Name
	if len(req.Extras) > 0 {
		name = fmt.Sprintf("%s[%s]", req.Name, strings.Join(req.Extras, ","))
	}
	b.m.Requirements = append(b.m.Requirements, resolve.Requirement{Name: name, Constraint: req.Constraint()})
}
