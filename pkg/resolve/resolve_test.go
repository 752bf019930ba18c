package resolve

import (
	"archive/zip"
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/matzehuels/depscan/pkg/cache"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/metadata"
	"github.com/matzehuels/depscan/pkg/pep440"
	"github.com/matzehuels/depscan/pkg/pkgname"
	"github.com/matzehuels/depscan/pkg/source"
)

// memRelease describes one release of an in-memory project.
type memRelease struct {
	requires       []string
	requiresPython string
}

// memRepo is an in-memory Repository keyed by canonical name.
type memRepo struct {
	names    map[string]string
	projects map[string]map[string]memRelease
	metaHits int
}

func newMemRepo() *memRepo {
	return &memRepo{names: map[string]string{}, projects: map[string]map[string]memRelease{}}
}

func (m *memRepo) add(name, version string, requires ...string) *memRepo {
	return m.addPy(name, version, "", requires...)
}

func (m *memRepo) addPy(name, version, requiresPython string, requires ...string) *memRepo {
	key := pkgname.Canonicalize(name)
	m.names[key] = name
	if m.projects[key] == nil {
		m.projects[key] = map[string]memRelease{}
	}
	m.projects[key][version] = memRelease{requires: requires, requiresPython: requiresPython}
	return m
}

func (m *memRepo) Releases(ctx context.Context, name string) ([]Release, error) {
	var out []Release
	for v, r := range m.projects[pkgname.Canonicalize(name)] {
		out = append(out, Release{
			Version:        v,
			Parsed:         pep440.MustParse(v),
			RequiresPython: r.requiresPython,
			Files:          []source.FileAsset{{Version: v, URL: "https://files.example/" + name + "-" + v + ".whl", UploadTime: "2021-01-01"}},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[j].Parsed.Less(out[i].Parsed) })
	return out, nil
}

func (m *memRepo) Metadata(ctx context.Context, name string, rel Release) (*metadata.ReleaseMetadata, error) {
	m.metaHits++
	key := pkgname.Canonicalize(name)
	r := m.projects[key][rel.Version]
	return &metadata.ReleaseMetadata{Name: m.names[key], Version: rel.Version, RequiresDist: r.requires, Sources: rel.Files}, nil
}

func solve(t *testing.T, repo Repository, mode Mode, reqs ...Requirement) (*Solution, error) {
	t.Helper()
	g, err := NewGreedy(repo, GreedyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	return g.Solve(context.Background(), reqs, mode)
}

func versions(sol *Solution) map[string]string {
	out := map[string]string{}
	for _, p := range sol.Packages {
		out[p.Name] = p.Version
	}
	return out
}

func depths(sol *Solution) map[string]int {
	out := map[string]int{}
	for _, p := range sol.Packages {
		out[p.Name] = p.Depth
	}
	return out
}

func childNames(n *Node) []string {
	var out []string
	for _, c := range n.Children {
		out = append(out, c.Name)
	}
	return out
}

func TestGreedySelectsHighestAllowed(t *testing.T) {
	repo := newMemRepo().
		add("Flask", "1.0", "Werkzeug>=0.14", "click (>=5.1)").
		add("Flask", "2.0.0rc1").
		add("Werkzeug", "0.15").
		add("Werkzeug", "0.16").
		add("click", "7.0").
		add("click", "8.0.0a1")

	sol, err := solve(t, repo, ModeStrict, Requirement{Name: "flask", Constraint: "*"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"Flask": "1.0", "Werkzeug": "0.16", "click": "7.0"}
	if got := versions(sol); !reflect.DeepEqual(got, want) {
		t.Errorf("versions = %v, want %v", got, want)
	}
	if got := depths(sol); got["Flask"] != 0 || got["Werkzeug"] != 1 || got["click"] != 1 {
		t.Errorf("depths = %v", got)
	}
	if sol.Root.Name != RootName || !reflect.DeepEqual(childNames(sol.Root), []string{"flask"}) {
		t.Errorf("root children = %v", childNames(sol.Root))
	}
	if got := childNames(sol.Root.Children[0]); !reflect.DeepEqual(got, []string{"werkzeug", "click"}) {
		t.Errorf("flask children = %v", got)
	}
	flask, _ := sol.Lookup("FLASK")
	if flask.Dependency.String() != "flask (*)" {
		t.Errorf("root dependency = %s", flask.Dependency)
	}
	werkzeug, _ := sol.Lookup("werkzeug")
	if werkzeug.Dependency.String() != "Werkzeug (>=0.14)" {
		t.Errorf("werkzeug dependency = %s", werkzeug.Dependency)
	}
	if urls := sol.Sources.URLs("flask", "1.0"); len(urls) != 1 || !strings.HasSuffix(urls[0], "flask-1.0.whl") {
		t.Errorf("tracked sources = %v", urls)
	}
}

func TestGreedyPrereleaseWhenConstraintNamesOne(t *testing.T) {
	repo := newMemRepo().add("x", "1.0").add("x", "2.0b1")
	sol, err := solve(t, repo, ModeStrict, Requirement{Name: "x", Constraint: ">=2.0b1"})
	if err != nil {
		t.Fatal(err)
	}
	if v := versions(sol)["x"]; v != "2.0b1" {
		t.Errorf("version = %s, want 2.0b1", v)
	}
}

func TestGreedyPrereleaseOnlyProject(t *testing.T) {
	tests := []struct {
		name string
		repo *memRepo
		req  Requirement
		want string
	}{
		{"any version", newMemRepo().add("alpha-only", "0.1.0a1").add("alpha-only", "0.2.0b1"), Requirement{Name: "alpha-only"}, "0.2.0b1"},
		{"bounded", newMemRepo().add("x", "1.0").add("x", "2.0rc1"), Requirement{Name: "x", Constraint: ">=1.5"}, "2.0rc1"},
		{"final release preferred", newMemRepo().add("x", "1.0").add("x", "2.0b1"), Requirement{Name: "x"}, "1.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sol, err := solve(t, tt.repo, ModeStrict, tt.req)
			if err != nil {
				t.Fatal(err)
			}
			if v := versions(sol)[tt.req.Name]; v != tt.want {
				t.Errorf("version = %s, want %s", v, tt.want)
			}
		})
	}
}

func TestGreedySharedAndCyclicDependencies(t *testing.T) {
	repo := newMemRepo().
		add("a", "1.0", "b", "c").
		add("b", "1.0", "d", "a").
		add("c", "1.0", "d").
		add("d", "1.0")

	sol, err := solve(t, repo, ModeStrict, Requirement{Name: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if got := depths(sol); !reflect.DeepEqual(got, map[string]int{"a": 0, "b": 1, "c": 1, "d": 2}) {
		t.Errorf("depths = %v", got)
	}
	a := sol.Root.Children[0]
	b, c := a.Children[0], a.Children[1]
	if len(b.Children) != 1 || b.Children[0] != c.Children[0] {
		t.Error("d should be one node shared by b and c")
	}
	if reachable(a, sol.Root) {
		t.Error("cycle back to the root")
	}
	for _, n := range b.Children {
		if n == a {
			t.Error("b -> a edge closes a cycle")
		}
	}
}

func TestGreedySelfDependency(t *testing.T) {
	repo := newMemRepo().add("solo", "1.0", "solo==1.0")
	sol, err := solve(t, repo, ModeStrict, Requirement{Name: "solo", Constraint: "*"})
	if err != nil {
		t.Fatal(err)
	}
	if len(sol.Packages) != 1 || len(sol.Root.Children) != 1 || len(sol.Root.Children[0].Children) != 0 {
		t.Errorf("solution = %+v", sol)
	}
}

func TestGreedyMarkersAndExtras(t *testing.T) {
	repo := newMemRepo().
		add("requests", "2.0", `futures ; python_version < "3"`, `PySocks ; extra == "socks"`, "idna").
		add("futures", "3.0").
		add("PySocks", "1.7").
		add("idna", "2.8").
		add("app", "1.0", "requests", "requests[socks]")

	sol, err := solve(t, repo, ModeStrict, Requirement{Name: "requests"})
	if err != nil {
		t.Fatal(err)
	}
	if got := versions(sol); !reflect.DeepEqual(got, map[string]string{"requests": "2.0", "idna": "2.8"}) {
		t.Errorf("without extras = %v", got)
	}

	sol, err = solve(t, repo, ModeStrict, Requirement{Name: "app"})
	if err != nil {
		t.Fatal(err)
	}
	got := versions(sol)
	if _, ok := got["PySocks"]; !ok {
		t.Errorf("extra requested later should add PySocks: %v", got)
	}
	if _, ok := got["futures"]; ok {
		t.Errorf("py2-only dependency selected: %v", got)
	}
}

func TestGreedyUnsatisfiable(t *testing.T) {
	tests := []struct {
		name   string
		repo   *memRepo
		req    Requirement
		prefix string
	}{
		{
			name:   "no matching version",
			repo:   newMemRepo().add("a", "1.0"),
			req:    Requirement{Name: "a", Constraint: ">=2"},
			prefix: "Because no versions of a match >=2",
		},
		{
			name:   "unknown project",
			repo:   newMemRepo(),
			req:    Requirement{Name: "ghost"},
			prefix: "Because no versions of ghost match *",
		},
		{
			name: "conflict between dependents",
			repo: newMemRepo().
				add("a", "1.0", "b", "c").
				add("b", "1.0", "d<2").
				add("c", "1.0", "d>=2").
				add("d", "1.0").
				add("d", "2.0"),
			req:    Requirement{Name: "a"},
			prefix: "Because c 1.0 depends on d (>=2)",
		},
		{
			name:   "dependency pins a missing version",
			repo:   newMemRepo().add("a", "1.0", "b==2").add("b", "1.0"),
			req:    Requirement{Name: "a"},
			prefix: "Because no versions of b match ==2\n and a 1.0 depends on b (==2)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := solve(t, tt.repo, ModeStrict, tt.req)
			var u *UnsatisfiableError
			if !stderrors.As(err, &u) {
				t.Fatalf("error = %v, want UnsatisfiableError", err)
			}
			if !strings.HasPrefix(err.Error(), tt.prefix) {
				t.Errorf("message = %q, want prefix %q", err.Error(), tt.prefix)
			}
			if !IsUnsatisfiable(err) {
				t.Error("IsUnsatisfiable() = false")
			}
			if code := errors.GetCode(err); code != "" {
				t.Errorf("code = %s, want the explanation without a code prefix", code)
			}
		})
	}
}

func TestGreedyRootConflict(t *testing.T) {
	// b is reached first from the root at 1.0; a's unconstrained
	// requirement accepts it.
	repo := newMemRepo().add("a", "1.0", "b").add("b", "1.0").add("b", "2.0")
	_, err := solve(t, repo, ModeStrict, Requirement{Name: "a"}, Requirement{Name: "b", Constraint: "<2"})
	if err != nil {
		t.Fatal(err)
	}

	repo = newMemRepo().add("a", "1.0", "b>=2").add("b", "1.0").add("b", "2.0")
	_, err = solve(t, repo, ModeStrict, Requirement{Name: "b", Constraint: "<2"}, Requirement{Name: "a"})
	if err == nil || !strings.HasPrefix(err.Error(), "Because a 1.0 depends on b (>=2)\n and depscan-root depends on b (<2)") {
		t.Errorf("error = %v", err)
	}
}

func TestGreedyPythonCompatibility(t *testing.T) {
	repo := newMemRepo().
		addPy("modern", "2.0", ">=3.9").
		addPy("modern", "1.5", ">=3.6")

	_, err := solve(t, repo, ModeStrict, Requirement{Name: "modern"})
	var compat *CompatibilityError
	if !stderrors.As(err, &compat) {
		t.Fatalf("strict error = %v, want CompatibilityError", err)
	}
	if !strings.HasPrefix(err.Error(), "The current project's Python requirement (3.8) is not compatible") {
		t.Errorf("message = %q", err.Error())
	}

	sol, err := solve(t, repo, ModeCompat, Requirement{Name: "modern"})
	if err != nil {
		t.Fatal(err)
	}
	if v := versions(sol)["modern"]; v != "1.5" {
		t.Errorf("compat version = %s, want 1.5", v)
	}
}

func TestGreedyInvalidInput(t *testing.T) {
	repo := newMemRepo().add("a", "1.0", "b (>>1)")
	_, err := solve(t, repo, ModeStrict, Requirement{Name: "a"})
	if !errors.Is(err, errors.ErrCodeInvalidPackage) {
		t.Errorf("invalid dependency error = %v", err)
	}

	_, err = solve(t, repo, ModeStrict, Requirement{Name: "a", Constraint: "=>1"})
	if !errors.Is(err, errors.ErrCodeInvalidVersion) {
		t.Errorf("invalid constraint error = %v", err)
	}
}

func TestGreedyCancelled(t *testing.T) {
	repo := newMemRepo().add("a", "1.0")
	g, err := NewGreedy(repo, GreedyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Solve(ctx, []Requirement{{Name: "a"}}, ModeStrict); err != context.Canceled {
		t.Errorf("Solve() error = %v, want context.Canceled", err)
	}
	if repo.metaHits != 0 {
		t.Error("no package should be expanded after cancellation")
	}
}

// scriptedSolver returns queued results, one per call.
type scriptedSolver struct {
	errs  []error
	modes []Mode
}

func (s *scriptedSolver) Solve(ctx context.Context, root []Requirement, mode Mode) (*Solution, error) {
	s.modes = append(s.modes, mode)
	err := s.errs[0]
	if len(s.errs) > 1 {
		s.errs = s.errs[1:]
	}
	if err != nil {
		return nil, err
	}
	return &Solution{Root: &Node{Name: RootName}}, nil
}

func TestAdapterRetry(t *testing.T) {
	compat := &CompatibilityError{Python: "3.8", Conflicts: []string{"x 1 requires Python >=3.9"}}
	unsat := &UnsatisfiableError{Explanation: []string{"Because no versions of x match >9"}}
	tests := []struct {
		name      string
		errs      []error
		wantModes []Mode
		wantErr   error
	}{
		{"success", []error{nil}, []Mode{ModeStrict}, nil},
		{"compat retry succeeds", []error{compat, nil}, []Mode{ModeStrict, ModeCompat}, nil},
		{"compat retry once", []error{compat, compat}, []Mode{ModeStrict, ModeCompat}, compat},
		{"unsatisfiable is terminal", []error{unsat}, []Mode{ModeStrict}, unsat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scriptedSolver{errs: tt.errs}
			_, err := NewAdapter(s, nil).Resolve(context.Background(), []Requirement{{Name: "x"}})
			if err != tt.wantErr {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(s.modes, tt.wantModes) {
				t.Errorf("modes = %v, want %v", s.modes, tt.wantModes)
			}
		})
	}
}

func TestAdapterDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()
	s := &scriptedSolver{errs: []error{stderrors.New("interrupted")}}
	_, err := NewAdapter(s, nil).Resolve(ctx, []Requirement{{Name: "x"}})
	if err != context.DeadlineExceeded {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

// stubSource serves a fixed file list and counts fetches.
type stubSource struct {
	files   []source.FileAsset
	paths   map[string]string
	fetches int
	mirror  bool
}

func (s *stubSource) ListAvailable(ctx context.Context) ([]string, error) { return []string{"demo"}, nil }

func (s *stubSource) ListFiles(ctx context.Context, name string) ([]source.FileAsset, error) {
	return s.files, nil
}

func (s *stubSource) Fetch(ctx context.Context, url string) (string, error) {
	s.fetches++
	return s.paths[url], nil
}

func (s *stubSource) FromMirror(url string) bool { return s.mirror }

func writeWheel(t *testing.T, path, doc string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("demo-1.0.dist-info/METADATA")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(w, doc); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func newStubSource(t *testing.T) *stubSource {
	dir := t.TempDir()
	wheel := filepath.Join(dir, "demo-1.0-py3-none-any.whl")
	writeWheel(t, wheel, "Metadata-Version: 2.1\nName: Demo\nVersion: 1.0\nRequires-Dist: six\n")
	url := "https://files.example/demo-1.0-py3-none-any.whl"
	return &stubSource{
		files: []source.FileAsset{
			{Version: "0.9", URL: "https://files.example/demo-0.9.tar.gz", Filename: "demo-0.9.tar.gz", Kind: source.KindSource},
			{Version: "1.0", URL: url, Filename: "demo-1.0-py3-none-any.whl", Kind: source.KindWheel, RequiresPython: ">=3.6"},
			{Version: "1.0", URL: "https://files.example/demo-1.0.tar.gz", Filename: "demo-1.0.tar.gz", Kind: source.KindSource},
			{Version: "not a version", URL: "https://files.example/x", Kind: source.KindSource},
		},
		paths: map[string]string{url: wheel},
	}
}

func TestIndexRepositoryReleases(t *testing.T) {
	src := newStubSource(t)
	repo := NewIndexRepository(src, metadata.NewExtractor(src, metadata.Options{}), RepositoryOptions{})
	rels, err := repo.Releases(context.Background(), "demo")
	if err != nil {
		t.Fatal(err)
	}
	if len(rels) != 2 || rels[0].Version != "1.0" || rels[1].Version != "0.9" {
		t.Fatalf("releases = %+v", rels)
	}
	if len(rels[0].Files) != 2 || rels[0].RequiresPython != ">=3.6" {
		t.Errorf("release 1.0 = %+v", rels[0])
	}
}

func TestIndexRepositoryMetadataCache(t *testing.T) {
	tests := []struct {
		name        string
		mirror      bool
		wantFetches int
	}{
		{"network files are cached", false, 1},
		{"mirror files are not cached", true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newStubSource(t)
			src.mirror = tt.mirror
			backend, err := cache.NewFileCache(t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			repo := NewIndexRepository(src, metadata.NewExtractor(src, metadata.Options{}), RepositoryOptions{Cache: backend})
			ctx := context.Background()
			rels, err := repo.Releases(ctx, "demo")
			if err != nil {
				t.Fatal(err)
			}
			for i := 0; i < 2; i++ {
				md, err := repo.Metadata(ctx, "demo", rels[0])
				if err != nil {
					t.Fatal(err)
				}
				if md.Name != "Demo" || !reflect.DeepEqual(md.RequiresDist, []string{"six"}) {
					t.Errorf("metadata = %+v", md)
				}
			}
			if src.fetches != tt.wantFetches {
				t.Errorf("fetches = %d, want %d", src.fetches, tt.wantFetches)
			}
		})
	}
}

func TestSourceTracker(t *testing.T) {
	tr := NewSourceTracker()
	tr.Record("Foo_Bar", "1.0", []source.FileAsset{
		{URL: "u1", UploadTime: "t1"},
		{URL: "u2", UploadTime: "t2"},
	})
	if got := tr.URLs("foo-bar", "1.0"); !reflect.DeepEqual(got, []string{"u1", "u2"}) {
		t.Errorf("URLs = %v", got)
	}
	if got := tr.ReleaseDates("FOO.BAR", "1.0"); !reflect.DeepEqual(got, []string{"t1", "t2"}) {
		t.Errorf("ReleaseDates = %v", got)
	}
	if got := tr.URLs("foo-bar", "2.0"); len(got) != 0 {
		t.Errorf("unknown version = %v", got)
	}
	var nilTracker *SourceTracker
	if got := nilTracker.URLs("x", "1"); len(got) != 0 {
		t.Errorf("nil tracker = %v", got)
	}
}
