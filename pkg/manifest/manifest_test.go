package manifest

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/pep440"
	"github.com/matzehuels/depscan/pkg/resolve"
)

func TestSupports(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"pyproject.toml", true},
		{"requirements.txt", true},
		{"requirements-dev.txt", true},
		{"poetry.lock", false},
		{"setup.py", false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := Supports(tt.filename); got != tt.want {
				t.Errorf("Supports(%q) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}

const pyprojectFixture = `
[project]
name = "demo"
dependencies = [
  "requests[socks]>=2.28,<3",
  "tomli>=1.1; python_version < '3.11'",
  "importlib-metadata; python_version < '3.8'",
  "local @ file:///src/local",
  "Requests==2.31",
]

[tool.poetry.dependencies]
python = "^3.8"
click = "^8.0"
rich = { version = ">=12", extras = ["jupyter"] }
uvloop = { version = "*", markers = "sys_platform == 'win32'" }
mine = { git = "https://github.com/me/mine.git" }
extra-thing = { version = "1.0", optional = true }
numpy = [
  { version = "<1.25", python = "<3.9", markers = "python_version < '3.9'" },
  { version = ">=1.25", markers = "python_version >= '3.9'" },
]
`

func TestParsePyproject(t *testing.T) {
	m, err := ParsePyproject(strings.NewReader(pyprojectFixture), pep440.DefaultEnvironment("3.8"))
	if err != nil {
		t.Fatalf("ParsePyproject: %v", err)
	}
	if m.Name != "demo" {
		t.Errorf("Name = %q, want demo", m.Name)
	}
	want := []resolve.Requirement{
		{Name: "requests[socks]", Constraint: ">=2.28,<3"},
		{Name: "tomli", Constraint: ">=1.1"},
		{Name: "click", Constraint: "^8.0"},
		{Name: "numpy", Constraint: "<1.25"},
		{Name: "rich[jupyter]", Constraint: ">=12"},
	}
	if !reflect.DeepEqual(m.Requirements, want) {
		t.Errorf("Requirements = %v, want %v", m.Requirements, want)
	}
	wantSkipped := []string{
		"importlib-metadata; python_version < '3.8'",
		"local @ file:///src/local",
		"extra-thing",
		"mine",
		"uvloop",
	}
	if !reflect.DeepEqual(m.Skipped, wantSkipped) {
		t.Errorf("Skipped = %q, want %q", m.Skipped, wantSkipped)
	}
}

func TestParsePyprojectWithoutEnvironment(t *testing.T) {
	m, err := ParsePyproject(strings.NewReader(pyprojectFixture), nil)
	if err != nil {
		t.Fatalf("ParsePyproject: %v", err)
	}
	var names []string
	for _, r := range m.Requirements {
		names = append(names, r.Name)
	}
	want := []string{"requests[socks]", "tomli", "importlib-metadata", "click", "numpy", "rich[jupyter]", "uvloop"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}
}

func TestParsePyprojectErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code errors.Code
	}{
		{"bad toml", "[project\n", errors.ErrCodeInvalidInput},
		{"bad requirement", "[project]\ndependencies = [\"flask (>>1)\"]\n", errors.ErrCodeInvalidPackage},
		{"bad poetry constraint", "[tool.poetry.dependencies]\nflask = \"=>1\"\n", errors.ErrCodeInvalidVersion},
		{"bad poetry value", "[tool.poetry.dependencies]\nflask = 3\n", errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePyproject(strings.NewReader(tt.doc), nil)
			if !errors.Is(err, tt.code) {
				t.Errorf("err = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestParseRequirements(t *testing.T) {
	content := `# pinned
requests>=2.28.0
click==8.1.0  # cli
pydantic>=2.0,\
<3

-e ./local-package
--index-url https://mirror.example/simple
git+https://github.com/user/repo.git
pywin32; sys_platform == "win32"
Click>=7
`
	m, err := ParseRequirements(strings.NewReader(content), pep440.DefaultEnvironment("3.8"))
	if err != nil {
		t.Fatalf("ParseRequirements: %v", err)
	}
	want := []resolve.Requirement{
		{Name: "requests", Constraint: ">=2.28.0"},
		{Name: "click", Constraint: "==8.1.0"},
		{Name: "pydantic", Constraint: ">=2.0,<3"},
	}
	if !reflect.DeepEqual(m.Requirements, want) {
		t.Errorf("Requirements = %v, want %v", m.Requirements, want)
	}
	if len(m.Skipped) != 4 {
		t.Errorf("Skipped = %q, want 4 entries", m.Skipped)
	}
}

func TestParse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requirements-dev.txt")
	if err := os.WriteFile(path, []byte("pytest\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := Parse(path, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Type != "requirements.txt" || len(m.Requirements) != 1 || m.Requirements[0].Constraint != "*" {
		t.Errorf("Parse = %+v", m)
	}

	if _, err := Parse(filepath.Join(dir, "setup.py"), nil); !errors.Is(err, errors.ErrCodeUnsupported) {
		t.Errorf("setup.py: err = %v, want UNSUPPORTED", err)
	}
	if _, err := Parse(filepath.Join(dir, "pyproject.toml"), nil); !errors.Is(err, errors.ErrCodeInvalidPath) {
		t.Errorf("missing file: err = %v, want INVALID_PATH", err)
	}
}
