// Package depgraph turns a resolver [resolve.Solution] into per-package
// dependency records and the DepInfoDump artifact written by the scanner.
//
// # Extraction
//
// [Extract] walks the solution tree post-order from every child of the
// synthetic root. Each visited node records an edge to its parent unless
// the parent is the synthetic root. For a (dependent, required-by) pair only
// the first edge seen is kept. Shared subtrees are expanded once.
//
// The walk fails with a coded error when the tree names a package missing
// from the solution (INCONSISTENT_GRAPH), when it nests deeper than
// [Options.MaxDepth] (GRAPH_TOO_DEEP), or when the solution does not have
// exactly one package at depth 0 (SINGLE_ROOT_VIOLATION).
//
// # Artifact
//
// [BuildDump] combines a [Graph] with a [resolve.SourceTracker] into a
// [Dump]:
//
//	{
//	  "root_pkg": "Flask",
//	  "dep_info": {
//	    "Flask": {
//	      "ver": "1.0",
//	      "src": ["https://files.../Flask-1.0-py2.py3-none-any.whl"],
//	      "pkg_rel_date": ["2018-04-26T20:00:00"],
//	      "dep_depth": 0,
//	      "dep": [{"dep_name": "click", "dep_ver": "7.0", "dep_constraint": "click (>=5.1)"}]
//	    }
//	  }
//	}
//
// [Validate] checks an encoded artifact against the bundled JSON schema.
package depgraph

import (
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/pkgname"
	"github.com/matzehuels/depscan/pkg/resolve"
)

// DefaultMaxDepth bounds the nesting of the solution tree.
const DefaultMaxDepth = 256

// Options configures Extract.
type Options struct {
	MaxDepth int // Maximum tree depth below the synthetic root (default: 256)
}

// WithDefaults returns a copy of Options with zero values replaced by
// defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return opts
}

// Edge records that RequiredBy depends on Dependent. Constraint is the
// dependent's own requirement, "<name> (<constraint>)".
type Edge struct {
	Dependent  resolve.Package
	RequiredBy resolve.Package
	Constraint string
}

// Graph is the extracted dependency information of one solution.
type Graph struct {
	Root     resolve.Package   // the single depth-0 package
	Packages []resolve.Package // in solution order

	deps map[string][]Edge          // required-by key -> edges, first seen first
	seen map[string]map[string]bool // required-by key -> dependent keys
}

// Dependencies returns the edges whose RequiredBy is name.
func (g *Graph) Dependencies(name string) []Edge {
	return g.deps[pkgname.Canonicalize(name)]
}

// Edges returns every edge, grouped by RequiredBy in package order.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, p := range g.Packages {
		out = append(out, g.deps[p.Key()]...)
	}
	return out
}

func (g *Graph) add(dependent, requiredBy *resolve.Package) {
	from, to := requiredBy.Key(), dependent.Key()
	if g.seen[from] == nil {
		g.seen[from] = make(map[string]bool)
	}
	if g.seen[from][to] {
		return
	}
	g.seen[from][to] = true
	g.deps[from] = append(g.deps[from], Edge{
		Dependent:  *dependent,
		RequiredBy: *requiredBy,
		Constraint: dependent.Dependency.String(),
	})
}

type frame struct {
	node   *resolve.Node
	parent *resolve.Node
	next   int
}

// Extract collects the dependency edges of sol.
func Extract(sol *resolve.Solution, opts Options) (*Graph, error) {
	opts = opts.WithDefaults()
	if sol == nil || sol.Root == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "solution has no tree")
	}

	// The synthetic root maps to nil: edges to it are not recorded.
	lookup := make(map[string]*resolve.Package, len(sol.Packages)+1)
	for i := range sol.Packages {
		lookup[sol.Packages[i].Key()] = &sol.Packages[i]
	}
	lookup[resolve.RootName] = nil

	resolvePkg := func(n *resolve.Node) (*resolve.Package, error) {
		p, ok := lookup[n.Name]
		if !ok {
			return nil, errors.New(errors.ErrCodeInconsistent, "tree node %q is not a solved package", n.Name)
		}
		return p, nil
	}

	g := &Graph{
		Packages: sol.Packages,
		deps:     make(map[string][]Edge),
		seen:     make(map[string]map[string]bool),
	}
	expanded := make(map[*resolve.Node]bool)
	onStack := make(map[*resolve.Node]bool)

	for _, child := range sol.Root.Children {
		stack := []frame{{node: child, parent: sol.Root}}
		onStack[child] = true
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if !expanded[top.node] && top.next < len(top.node.Children) {
				c := top.node.Children[top.next]
				top.next++
				if onStack[c] {
					return nil, errors.New(errors.ErrCodeInconsistent, "cycle through %q", c.Name)
				}
				if len(stack) >= opts.MaxDepth {
					return nil, errors.New(errors.ErrCodeGraphTooDeep, "tree deeper than %d below %q", opts.MaxDepth, child.Name)
				}
				onStack[c] = true
				stack = append(stack, frame{node: c, parent: top.node})
				continue
			}

			expanded[top.node] = true
			onStack[top.node] = false
			dependent, err := resolvePkg(top.node)
			if err != nil {
				return nil, err
			}
			requiredBy, err := resolvePkg(top.parent)
			if err != nil {
				return nil, err
			}
			if dependent != nil && requiredBy != nil {
				g.add(dependent, requiredBy)
			}
			stack = stack[:len(stack)-1]
		}
	}

	var roots []resolve.Package
	for _, p := range sol.Packages {
		if p.Depth == 0 {
			roots = append(roots, p)
		}
	}
	if len(roots) != 1 {
		return nil, errors.New(errors.ErrCodeSingleRoot, "only one package is supposed to have depth 0, found %d", len(roots))
	}
	g.Root = roots[0]
	return g, nil
}
