package resolve

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/pep440"
	"github.com/matzehuels/depscan/pkg/pkgname"
)

const (
	DefaultPython      = "3.8" // Default target interpreter
	DefaultMaxPackages = 5000  // Default limit on solved packages
)

// GreedyOptions configures the reference solver.
type GreedyOptions struct {
	Python      string      // Target Python "X.Y" (default: 3.8)
	MaxPackages int         // Upper bound on solved packages (default: 5000)
	Logger      *log.Logger // Debug output (optional)
}

// WithDefaults returns a copy of GreedyOptions with zero values replaced by
// defaults.
func (o GreedyOptions) WithDefaults() GreedyOptions {
	opts := o
	if opts.Python == "" {
		opts.Python = DefaultPython
	}
	if opts.MaxPackages <= 0 {
		opts.MaxPackages = DefaultMaxPackages
	}
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return opts
}

// Greedy is a breadth-first reference solver. Each project is solved once,
// at the highest release allowed by the first requirement that reaches it;
// later requirements must accept that release or solving fails. It never
// backtracks.
type Greedy struct {
	repo        Repository
	python      string
	pyVersion   pep440.Version
	env         pep440.Environment
	maxPackages int
	logger      *log.Logger
}

// NewGreedy creates a Greedy solver reading from repo.
func NewGreedy(repo Repository, opts GreedyOptions) (*Greedy, error) {
	opts = opts.WithDefaults()
	v, err := pep440.Parse(opts.Python)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidVersion, err, "target python %q", opts.Python)
	}
	return &Greedy{
		repo:        repo,
		python:      opts.Python,
		pyVersion:   v,
		env:         pep440.DefaultEnvironment(opts.Python),
		maxPackages: opts.MaxPackages,
		logger:      opts.Logger,
	}, nil
}

type pending struct {
	req    pep440.Requirement
	parent *selected // nil for root requirements
	depth  int
}

type selected struct {
	pkg      Package
	parsed   pep440.Version
	node     *Node
	requires []pep440.Requirement
	extras   map[string]bool
	via      string // label of the first dependent
}

func (s *selected) label() string { return s.pkg.Name + " " + s.pkg.Version }

func parentLabel(p *selected) string {
	if p == nil {
		return RootName
	}
	return p.label()
}

func parentNode(root *Node, p *selected) *Node {
	if p == nil {
		return root
	}
	return p.node
}

// Solve resolves root breadth-first. The context is checked before every
// package expansion.
func (g *Greedy) Solve(ctx context.Context, root []Requirement, mode Mode) (*Solution, error) {
	rootNode := &Node{Name: RootName}
	tracker := NewSourceTracker()
	chosen := make(map[string]*selected)
	var order []*selected

	var queue []pending
	for _, r := range root {
		req, err := rootRequirement(r)
		if err != nil {
			return nil, err
		}
		queue = append(queue, pending{req: req})
	}

	for head := 0; head < len(queue); head++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := queue[head]
		key := pkgname.Canonicalize(item.req.Name)
		from := parentNode(rootNode, item.parent)

		if s, ok := chosen[key]; ok {
			if !item.req.Specifier.Contains(s.parsed, true) {
				return nil, &UnsatisfiableError{Explanation: []string{
					fmt.Sprintf("Because %s depends on %s (%s)", parentLabel(item.parent), item.req.Name, item.req.Constraint()),
					fmt.Sprintf(" and %s depends on %s (%s), version solving failed.", s.via, s.pkg.Dependency.Name, s.pkg.Dependency.Constraint),
				}}
			}
			link(from, s.node)
			queue = g.addExtras(queue, s, item.req.Extras)
			continue
		}

		if len(chosen) >= g.maxPackages {
			return nil, errors.New(errors.ErrCodeInternal, "more than %d packages in solution", g.maxPackages)
		}

		rel, err := g.choose(ctx, item, mode)
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		md, err := g.repo.Metadata(ctx, item.req.Name, rel)
		if err != nil {
			return nil, err
		}

		name := item.req.Name
		if pkgname.Equal(md.Name, name) {
			name = md.Name
		}
		s := &selected{
			pkg: Package{
				Name:       name,
				Version:    rel.Version,
				Dependency: Dependency{Name: item.req.Name, Constraint: item.req.Constraint()},
				Depth:      item.depth,
			},
			parsed: rel.Parsed,
			node:   &Node{Name: key},
			extras: make(map[string]bool),
			via:    parentLabel(item.parent),
		}
		for _, e := range item.req.Extras {
			s.extras[e] = true
		}
		for _, raw := range md.RequiresDist {
			dep, err := pep440.ParseRequirement(raw)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidPackage, err, "%s declares an invalid requirement", s.label())
			}
			s.requires = append(s.requires, dep)
		}
		tracker.Record(name, rel.Version, md.Sources)
		chosen[key] = s
		order = append(order, s)
		link(from, s.node)
		g.logger.Debug("selected", "package", name, "version", rel.Version, "depth", item.depth)

		for _, dep := range s.requires {
			if g.applies(dep, s.extras) {
				queue = append(queue, pending{req: dep, parent: s, depth: item.depth + 1})
			}
		}
	}

	sol := &Solution{Root: rootNode, Sources: tracker}
	for _, s := range order {
		sol.Packages = append(sol.Packages, s.pkg)
	}
	return sol, nil
}

func rootRequirement(r Requirement) (pep440.Requirement, error) {
	req, err := pep440.ParseRequirement(r.Name)
	if err != nil {
		return pep440.Requirement{}, errors.Wrap(errors.ErrCodeInvalidPackage, err, "invalid package name %q", r.Name)
	}
	set, err := pep440.ParseSpecifierSet(r.Constraint)
	if err != nil {
		return pep440.Requirement{}, errors.Wrap(errors.ErrCodeInvalidVersion, err, "could not parse version constraint %q", r.Constraint)
	}
	req.Specifier = set
	return req, nil
}

// choose picks the release for a newly reached project.
func (g *Greedy) choose(ctx context.Context, item pending, mode Mode) (Release, error) {
	releases, err := g.repo.Releases(ctx, item.req.Name)
	if err != nil {
		return Release{}, err
	}

	allowPre := item.req.Specifier.MentionsPrerelease()
	candidates := matching(releases, item.req, allowPre)
	if len(candidates) == 0 && !allowPre {
		// Only pre-releases satisfy the requirement.
		candidates = matching(releases, item.req, true)
	}
	if len(candidates) == 0 {
		return Release{}, &UnsatisfiableError{Explanation: []string{
			fmt.Sprintf("Because no versions of %s match %s", item.req.Name, item.req.Constraint()),
			fmt.Sprintf(" and %s depends on %s (%s), version solving failed.", parentLabel(item.parent), item.req.Name, item.req.Constraint()),
		}}
	}

	best := candidates[0]
	if g.supportsPython(best) {
		return best, nil
	}
	if mode == ModeStrict {
		return Release{}, &CompatibilityError{
			Python:    g.python,
			Conflicts: []string{fmt.Sprintf("%s %s requires Python %s", item.req.Name, best.Version, best.RequiresPython)},
		}
	}
	for _, rel := range candidates[1:] {
		if g.supportsPython(rel) {
			return rel, nil
		}
	}
	return best, nil
}

// matching returns the releases the requirement allows, in repository
// order.
func matching(releases []Release, req pep440.Requirement, prereleases bool) []Release {
	var out []Release
	for _, rel := range releases {
		if req.Specifier.Contains(rel.Parsed, prereleases) {
			out = append(out, rel)
		}
	}
	return out
}

func (g *Greedy) supportsPython(rel Release) bool {
	if rel.RequiresPython == "" {
		return true
	}
	set, err := pep440.ParseSpecifierSet(rel.RequiresPython)
	if err != nil {
		return true
	}
	return set.Contains(g.pyVersion, true)
}

// applies reports whether dep is active for a package requested with
// extras.
func (g *Greedy) applies(dep pep440.Requirement, extras map[string]bool) bool {
	if dep.Applies(g.env) {
		return true
	}
	for e := range extras {
		if dep.Applies(g.env.With("extra", e)) {
			return true
		}
	}
	return false
}

// addExtras queues the requirements that become active when s is requested
// again with additional extras.
func (g *Greedy) addExtras(queue []pending, s *selected, extras []string) []pending {
	for _, e := range extras {
		if s.extras[e] {
			continue
		}
		before := make(map[string]bool, len(s.extras))
		for k := range s.extras {
			before[k] = true
		}
		s.extras[e] = true
		for _, dep := range s.requires {
			if !g.applies(dep, before) && dep.Applies(g.env.With("extra", e)) {
				queue = append(queue, pending{req: dep, parent: s, depth: s.pkg.Depth + 1})
			}
		}
	}
	return queue
}

// link adds child under parent unless it already is a child or the edge
// would close a cycle.
func link(parent, child *Node) {
	if parent == child || reachable(child, parent) {
		return
	}
	for _, c := range parent.Children {
		if c == child {
			return
		}
	}
	parent.Children = append(parent.Children, child)
}

func reachable(from, to *Node) bool {
	seen := map[*Node]bool{from: true}
	stack := []*Node{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		for _, c := range n.Children {
			if !seen[c] {
				seen[c] = true
				stack = append(stack, c)
			}
		}
	}
	return false
}

var _ Solver = (*Greedy)(nil)
