package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/resolve"
	"github.com/matzehuels/depscan/pkg/scan"
)

const flaskDump = `{
  "root_pkg": "flask",
  "dep_info": {
    "flask": {"ver": "2.0.1", "src": [], "pkg_rel_date": [], "dep_depth": 0,
      "dep": [{"dep_name": "click", "dep_ver": "8.0.1", "dep_constraint": "click (>=7.1.2)"}]},
    "click": {"ver": "8.0.1", "src": [], "pkg_rel_date": [], "dep_depth": 1, "dep": []}
  }
}`

// execute runs the root command with args in a scratch working directory
// and returns what it wrote to its output writer.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("DEPSCAN_CACHE_DIR", filepath.Join(t.TempDir(), "cache"))
	uiOut = io.Discard
	t.Cleanup(func() { uiOut = os.Stdout })

	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRootCommand(t *testing.T) {
	root := New(io.Discard, LogInfo).RootCommand()
	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	for _, want := range []string{"scan", "resolve", "resume", "merge", "failstats", "analyze", "render", "verify", "cache", "completion"} {
		found := false
		for _, n := range names {
			found = found || n == want
		}
		if !found {
			t.Errorf("command %q not registered (have %v)", want, names)
		}
	}
}

func TestResumeCommand(t *testing.T) {
	dir := t.TempDir()
	ledger := scan.NewLedger(filepath.Join(dir, scan.LogDir))
	if err := os.MkdirAll(filepath.Join(dir, scan.LogDir), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Success("b", "b", "b", "b@1.json"); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Failure("c", "Execution time limit reached!"); err != nil {
		t.Fatal(err)
	}
	packages := filepath.Join(dir, "packages.txt")
	writeFile(t, packages, "# catalog\na\nb\n\nc\nd\n")

	out, err := execute(t, "resume", dir, "--packages", packages)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if strings.TrimSpace(out) != "3" {
		t.Errorf("resume printed %q, want 3", out)
	}
}

func TestMergeCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "w1", scan.DataDir, "a@1.json"), "A")
	writeFile(t, filepath.Join(dir, "w2", scan.DataDir, "b@1.json"), "B")
	dst := filepath.Join(dir, "merged")

	if _, err := execute(t, "merge", dst, filepath.Join(dir, "w1"), filepath.Join(dir, "w2")); err != nil {
		t.Fatalf("merge: %v", err)
	}
	for _, name := range []string{"a@1.json", "b@1.json"} {
		if _, err := os.Stat(filepath.Join(dst, name)); err != nil {
			t.Errorf("%s not merged: %v", name, err)
		}
	}
}

func TestVerifyCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "flask@2.0.1.json")
	bad := filepath.Join(dir, "bad.json")
	writeFile(t, good, flaskDump)
	writeFile(t, bad, strings.Replace(flaskDump, `"dep_depth": 1`, `"dep_depth": 0`, 1))

	if _, err := execute(t, "verify", good); err != nil {
		t.Errorf("verify valid artifact: %v", err)
	}
	if _, err := execute(t, "verify", good, bad); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("verify invalid artifact: err = %v", err)
	}
	if _, err := execute(t, "verify", filepath.Join(dir, "missing.json")); !errors.Is(err, errors.ErrCodeInvalidPath) {
		t.Errorf("verify missing artifact: err = %v", err)
	}
}

func TestRenderCommandDOT(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flask.json")
	writeFile(t, path, flaskDump)

	out, err := execute(t, "render", path, "-f", "dot", "-o", "-")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasPrefix(out, "digraph") || !strings.Contains(out, "click") {
		t.Errorf("render output = %q", out)
	}
}

func TestFailstatsCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "w1", "log", "fail.txt"),
		"[slow]: Execution time limit reached!\n[broken]: Unable to find installation candidates for broken\n")
	rerun := filepath.Join(dir, "rerun.txt")

	out, err := execute(t, "failstats", filepath.Join(dir, "*", "log", "fail.txt"), "-f", "json", "--rerun", rerun)
	if err != nil {
		t.Fatalf("failstats: %v", err)
	}
	var rep struct {
		Total int      `json:"total"`
		Rerun []string `json:"rerun"`
	}
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if rep.Total != 2 || !reflect.DeepEqual(rep.Rerun, []string{"broken"}) {
		t.Errorf("report = %+v", rep)
	}
	data, err := os.ReadFile(rerun)
	if err != nil || string(data) != "broken\n" {
		t.Errorf("rerun file = %q, %v", data, err)
	}

	if _, err := execute(t, "failstats", filepath.Join(dir, "nothing", "*.txt")); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("no ledgers: err = %v", err)
	}
}

func TestCachePathAndClear(t *testing.T) {
	out, err := execute(t, "cache", "path")
	if err != nil {
		t.Fatalf("cache path: %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "cache") {
		t.Errorf("cache path = %q", out)
	}

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "http", "ab", "entry"), "x")
	writeFile(t, filepath.Join(dir, "files", "pkg.whl"), "y")
	n, err := clearDir(dir)
	if err != nil || n != 2 {
		t.Fatalf("clearDir = %d, %v", n, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("left behind: %v", entries)
	}
	if n, err := clearDir(filepath.Join(dir, "missing")); n != 0 || err != nil {
		t.Errorf("missing dir = %d, %v", n, err)
	}
}

func TestParseRange(t *testing.T) {
	start, end, err := parseRange("-1", "200")
	if err != nil || start != -1 || end != 200 {
		t.Errorf("parseRange = %d, %d, %v", start, end, err)
	}
	if _, _, err := parseRange("0", "ten"); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("bad end: err = %v", err)
	}
}

func TestSelectTools(t *testing.T) {
	tools, err := selectTools(nil)
	if err != nil || len(tools) != 2 {
		t.Fatalf("default tools = %v, %v", tools, err)
	}
	tools, err = selectTools([]string{"pyflakes"})
	if err != nil || len(tools) != 1 || tools[0].Name != "pyflakes" {
		t.Errorf("selectTools(pyflakes) = %v, %v", tools, err)
	}
	if _, err := selectTools([]string{"pylint"}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("unknown tool: err = %v", err)
	}
}

func TestWritePins(t *testing.T) {
	var buf bytes.Buffer
	writePins(&buf, []resolve.Package{
		{Name: "Werkzeug", Version: "2.0.1", Depth: 1},
		{Name: "requests", Version: "2.31.0", Depth: 0},
		{Name: "click", Version: "8.0.1", Depth: 1},
		{Name: "flask", Version: "2.0.1", Depth: 0},
	})
	want := "flask==2.0.1\nrequests==2.31.0\nclick==8.0.1\nWerkzeug==2.0.1\n"
	if buf.String() != want {
		t.Errorf("writePins =\n%s\nwant\n%s", buf.String(), want)
	}
}
