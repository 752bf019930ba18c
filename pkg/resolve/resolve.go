// Package resolve is the boundary to the constraint solver.
//
// A [Solver] turns root requirements into a [Solution]: the solved package
// set, a depth per package and a tree rooted at the synthetic [RootName]
// node whose children are the root requirements. [Adapter] wraps a Solver
// with the retry policy: a [CompatibilityError] in strict mode triggers
// exactly one retry in compatibility mode; an [UnsatisfiableError] is
// terminal and keeps the solver's explanation verbatim.
//
// [Greedy] is the bundled reference solver. It reads releases and metadata
// through a [Repository], normally an [IndexRepository] over a
// source.PackageSource.
package resolve

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/observability"
	"github.com/matzehuels/depscan/pkg/pkgname"
)

// RootName names the synthetic root node of every solution tree.
const RootName = "depscan-root"

// Mode selects how strictly the solver applies Python compatibility.
type Mode int

const (
	// ModeStrict fails with a CompatibilityError when a selected release
	// excludes the target Python.
	ModeStrict Mode = iota
	// ModeCompat prefers releases that support the target Python and falls
	// back to incompatible ones instead of failing.
	ModeCompat
)

func (m Mode) String() string {
	if m == ModeCompat {
		return "compat"
	}
	return "strict"
}

// Requirement is a root requirement: a project name and a constraint
// ("*" or "" for any version).
type Requirement struct {
	Name       string
	Constraint string
}

func (r Requirement) String() string {
	c := r.Constraint
	if c == "" {
		c = "*"
	}
	return fmt.Sprintf("%s (%s)", r.Name, c)
}

// Dependency is the declared requirement through which a package entered the
// solution: the name as written by the dependent and its constraint.
type Dependency struct {
	Name       string
	Constraint string
}

func (d Dependency) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Constraint)
}

// Package is one solved package.
type Package struct {
	Name       string     // project name as published
	Version    string     // selected version
	Dependency Dependency // first requirement that pulled it in
	Depth      int        // 0 for root requirements
}

// Key returns the canonical name of p.
func (p Package) Key() string { return pkgname.Canonicalize(p.Name) }

// Ref returns p as a name/version pair.
func (p Package) Ref() pkgname.Ref { return pkgname.Ref{Name: p.Name, Version: p.Version} }

// Node is a tree node named by canonical package name. Subtrees may be
// shared between parents; cycles are never produced.
type Node struct {
	Name     string
	Children []*Node
}

// Solution is a solver result.
type Solution struct {
	Root     *Node
	Packages []Package
	Sources  *SourceTracker
}

// Lookup returns the solved package with the given name, matching by
// canonical form.
func (s *Solution) Lookup(name string) (Package, bool) {
	key := pkgname.Canonicalize(name)
	for _, p := range s.Packages {
		if p.Key() == key {
			return p, true
		}
	}
	return Package{}, false
}

// Solver resolves root requirements.
type Solver interface {
	Solve(ctx context.Context, root []Requirement, mode Mode) (*Solution, error)
}

// Adapter applies the strict-then-compat retry policy around a Solver.
type Adapter struct {
	solver Solver
	logger *log.Logger
}

// NewAdapter wraps solver. A nil logger discards output.
func NewAdapter(solver Solver, logger *log.Logger) *Adapter {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Adapter{solver: solver, logger: logger}
}

// Resolve solves reqs in strict mode, retrying once in compatibility mode
// on a CompatibilityError. Context errors are returned unwrapped.
func (a *Adapter) Resolve(ctx context.Context, reqs []Requirement) (*Solution, error) {
	sol, err := a.solver.Solve(ctx, reqs, ModeStrict)

	var compat *CompatibilityError
	if stderrors.As(err, &compat) && ctx.Err() == nil {
		a.logger.Debug("retrying in compatibility mode", "requirements", fmt.Sprint(reqs), "reason", err)
		observability.Scan().OnResolveRetry(ctx, rootLabel(reqs), err)
		sol, err = a.solver.Solve(ctx, reqs, ModeCompat)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return sol, nil
}

func rootLabel(reqs []Requirement) string {
	if len(reqs) == 0 {
		return RootName
	}
	return reqs[0].Name
}
