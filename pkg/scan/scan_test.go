package scan

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/depscan/pkg/depgraph"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/resolve"
)

// fakeResolver answers from a table. Names listed in hang block until the
// context ends; names in fail return their error.
type fakeResolver struct {
	mu     sync.Mutex
	hang   map[string]bool
	fail   map[string]error
	pretty map[string]string
	calls  []string
}

func (f *fakeResolver) Resolve(ctx context.Context, reqs []resolve.Requirement) (*resolve.Solution, error) {
	name := reqs[0].Name
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()

	if f.hang[name] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := f.fail[name]; err != nil {
		return nil, err
	}
	pretty := name
	if p, ok := f.pretty[name]; ok {
		pretty = p
	}
	dep := &resolve.Node{Name: "six"}
	root := &resolve.Node{Name: resolve.Package{Name: pretty}.Key(), Children: []*resolve.Node{dep}}
	return &resolve.Solution{
		Root: &resolve.Node{Name: resolve.RootName, Children: []*resolve.Node{root}},
		Packages: []resolve.Package{
			{Name: pretty, Version: "1.0", Dependency: resolve.Dependency{Name: name, Constraint: "*"}},
			{Name: "six", Version: "1.16.0", Dependency: resolve.Dependency{Name: "six", Constraint: ">=1.0"}, Depth: 1},
		},
	}, nil
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestClamp(t *testing.T) {
	tests := []struct {
		n, start, end int
		wantS, wantE  int
	}{
		{5, -5, 100, 0, 5},
		{5, 1, -1, 1, 5},
		{5, 2, 4, 2, 4},
		{5, 7, 9, 5, 5},
		{0, 0, -1, 0, 0},
	}
	for _, tt := range tests {
		s, e := Clamp(tt.n, tt.start, tt.end)
		if s != tt.wantS || e != tt.wantE {
			t.Errorf("Clamp(%d, %d, %d) = %d, %d; want %d, %d", tt.n, tt.start, tt.end, s, e, tt.wantS, tt.wantE)
		}
	}
}

func TestDriverRun(t *testing.T) {
	items := []string{"alpha", "Beta_Pkg", "gamma", "delta", "epsilon"}
	r := &fakeResolver{
		pretty: map[string]string{"Beta_Pkg": "beta.pkg"},
		fail: map[string]error{
			"gamma": &resolve.UnsatisfiableError{Explanation: []string{
				"Because no versions of gamma match >9",
				" and depscan-root depends on gamma (>9), version solving failed.",
			}},
		},
	}
	out := t.TempDir()
	d := NewDriver(r, Options{})

	sum, err := d.Run(context.Background(), items, -5, 100, out)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Start != 0 || sum.End != 5 || sum.Done != 5 || sum.Success != 4 || sum.Fail != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if !reflect.DeepEqual(r.calls, items) {
		t.Errorf("calls = %v", r.calls)
	}

	success := readFile(t, filepath.Join(out, LogDir, SuccessFile))
	if !strings.Contains(success, "[Beta_Pkg/beta.pkg/beta-pkg]: 'beta.pkg@1.0.json'\n") {
		t.Errorf("success ledger:\n%s", success)
	}
	fail := readFile(t, filepath.Join(out, LogDir, FailFile))
	want := "[gamma]: Because no versions of gamma match >9\n and depscan-root depends on gamma (>9), version solving failed.\n"
	if fail != want {
		t.Errorf("fail ledger = %q, want %q", fail, want)
	}

	f, err := os.Open(filepath.Join(out, DataDir, "beta.pkg@1.0.json"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dump, err := depgraph.ReadDump(f)
	if err != nil {
		t.Fatal(err)
	}
	if dump.RootPackage != "beta.pkg" || len(dump.Packages["beta.pkg"].Deps) != 1 {
		t.Errorf("dump = %+v", dump)
	}

	snap := d.Progress().Snapshot()
	if snap.Running || snap.Done != 5 || snap.Fail != 1 {
		t.Errorf("progress = %+v", snap)
	}
}

func TestDriverDeadline(t *testing.T) {
	items := []string{"slow", "fast"}
	r := &fakeResolver{hang: map[string]bool{"slow": true}}
	out := t.TempDir()

	sum, err := NewDriver(r, Options{Timeout: 20 * time.Millisecond}).Run(context.Background(), items, 0, -1, out)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Success != 1 || sum.Fail != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if got := readFile(t, filepath.Join(out, LogDir, FailFile)); got != "[slow]: Execution time limit reached!\n" {
		t.Errorf("fail ledger = %q", got)
	}
	if _, err := os.Stat(filepath.Join(out, DataDir, "fast@1.0.json")); err != nil {
		t.Errorf("item after the timeout not saved: %v", err)
	}
}

func TestDriverCancelled(t *testing.T) {
	items := []string{"slow", "fast"}
	r := &fakeResolver{hang: map[string]bool{"slow": true}}
	out := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := NewDriver(r, Options{Timeout: time.Minute}).Run(ctx, items, 0, -1, out)
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(filepath.Join(out, LogDir, FailFile)); !os.IsNotExist(err) {
		t.Error("interrupted package should not be logged")
	}
	if len(r.calls) != 1 {
		t.Errorf("calls = %v", r.calls)
	}
}

func TestDriverGraphError(t *testing.T) {
	r := &fakeResolver{}
	bad := resolverFunc(func(ctx context.Context, reqs []resolve.Requirement) (*resolve.Solution, error) {
		sol, _ := r.Resolve(ctx, reqs)
		sol.Packages[1].Depth = 0
		return sol, nil
	})
	out := t.TempDir()
	if _, err := NewDriver(bad, Options{}).Run(context.Background(), []string{"x"}, 0, 1, out); err != nil {
		t.Fatal(err)
	}
	got := readFile(t, filepath.Join(out, LogDir, FailFile))
	if !strings.HasPrefix(got, "[x]: SINGLE_ROOT_VIOLATION: ") {
		t.Errorf("fail ledger = %q", got)
	}
}

type resolverFunc func(ctx context.Context, reqs []resolve.Requirement) (*resolve.Solution, error)

func (f resolverFunc) Resolve(ctx context.Context, reqs []resolve.Requirement) (*resolve.Solution, error) {
	return f(ctx, reqs)
}

type recordingSink struct {
	names []string
	err   error
}

func (s *recordingSink) Save(ctx context.Context, d *depgraph.Dump, data []byte) (string, error) {
	s.names = append(s.names, d.FileName())
	return d.FileName(), s.err
}

func TestDriverExtraSinks(t *testing.T) {
	ok := &recordingSink{}
	broken := &recordingSink{err: stderrors.New("unreachable")}
	out := t.TempDir()
	sum, err := NewDriver(&fakeResolver{}, Options{Sinks: []Sink{broken, ok}}).Run(context.Background(), []string{"a", "b"}, 0, 2, out)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Success != 2 {
		t.Errorf("a failing extra sink must not fail the package: %+v", sum)
	}
	if !reflect.DeepEqual(ok.names, []string{"a@1.0.json", "b@1.0.json"}) {
		t.Errorf("sink saw %v", ok.names)
	}
}

func TestFailureReason(t *testing.T) {
	if got := FailureReason(errors.Wrap(errors.ErrCodeDeadline, context.DeadlineExceeded, TimeoutMessage)); got != TimeoutMessage {
		t.Errorf("deadline reason = %q", got)
	}
	if got := FailureReason(errors.New(errors.ErrCodeNoMetadata, "no artifact")); got != "NO_METADATA: no artifact" {
		t.Errorf("coded reason = %q", got)
	}
}

func TestReadEntries(t *testing.T) {
	in := "[a]: first\n[b]: Because x\n and y\n\n[c/C/c]: 'c@1.json'\n[d]: \n"
	got, err := ReadEntries(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := []Entry{
		{Key: "a", Message: "first"},
		{Key: "b", Message: "Because x\n and y"},
		{Key: "c/C/c", Message: "'c@1.json'"},
		{Key: "d", Message: ""},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadEntries() = %#v", got)
	}
	if got[2].Name() != "c" || got[1].FirstLine() != "Because x" {
		t.Errorf("Name() = %q, FirstLine() = %q", got[2].Name(), got[1].FirstLine())
	}
}

func TestResume(t *testing.T) {
	items := []string{"p0", "p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8"}
	dir := t.TempDir()
	l := NewLedger(dir)
	for _, step := range []struct{ name, fail string }{{"p3", ""}, {"p6", "boom"}, {"p5", ""}} {
		var err error
		if step.fail != "" {
			err = l.Failure(step.name, step.fail)
		} else {
			err = l.Success(step.name, step.name, step.name, step.name+"@1.json")
		}
		if err != nil {
			t.Fatal(err)
		}
	}

	succ, fail, err := LastEntries(dir)
	if err != nil {
		t.Fatal(err)
	}
	if succ != "p5" || fail != "p6" {
		t.Fatalf("LastEntries() = %q, %q", succ, fail)
	}
	idx, err := ResumeOffset(items, succ, fail)
	if err != nil || idx != 7 {
		t.Errorf("ResumeOffset() = %d, %v; want 7", idx, err)
	}

	if idx, err := ResumeOffset(items, "", ""); err != nil || idx != 0 {
		t.Errorf("empty ledgers = %d, %v", idx, err)
	}
	if _, err := ResumeOffset(items, "missing", ""); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("unknown name error = %v", err)
	}

	succ, fail, err = LastEntries(t.TempDir())
	if err != nil || succ != "" || fail != "" {
		t.Errorf("missing ledgers = %q, %q, %v", succ, fail, err)
	}
}

func TestMerge(t *testing.T) {
	root := t.TempDir()
	dst := filepath.Join(root, "merged")
	w1 := filepath.Join(root, "worker1")
	w2 := filepath.Join(root, "worker2")
	write := func(dir, name, content string) {
		t.Helper()
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(filepath.Join(w1, DataDir), "a@1.json", "A")
	write(filepath.Join(w1, DataDir), "b@1.json", "B")
	write(filepath.Join(w2, DataDir), "a@1.json", "A")
	write(filepath.Join(w2, DataDir), "b@1.json", "B2")
	write(filepath.Join(w2, DataDir), "c@1.json", "C")
	write(dst, ".keep", "")

	rep, err := Merge(dst, []string{w1, w2}, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := &MergeReport{
		Copied:    []string{"a@1.json", "b@1.json", "c@1.json"},
		Identical: []string{"a@1.json"},
		Conflicts: []string{"b@1.json"},
	}
	if !reflect.DeepEqual(rep, want) {
		t.Errorf("report = %+v, want %+v", rep, want)
	}
	if got := readFile(t, filepath.Join(dst, "b@1.json")); got != "B" {
		t.Errorf("conflict overwritten: %q", got)
	}

	rep, err = Merge(dst, []string{w2}, true, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rep.Replaced, []string{"b@1.json"}) {
		t.Errorf("replaced = %v", rep.Replaced)
	}
	if got := readFile(t, filepath.Join(dst, "b@1.json")); got != "B2" {
		t.Errorf("overwrite not applied: %q", got)
	}

	if _, err := Merge(filepath.Join(root, "nope"), []string{w1}, false, nil); !errors.Is(err, errors.ErrCodeInvalidPath) {
		t.Errorf("missing dst error = %v", err)
	}
}
