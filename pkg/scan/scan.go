// Package scan runs dependency resolution over a range of package names and
// records one artifact or one failure per name.
//
// # Layout
//
// [Driver.Run] writes into an output directory:
//
//	<out>/data/<name>@<version>.json   DepInfoDump artifacts
//	<out>/log/success.txt              [<requested>/<resolved>/<canonical>]: '<file>'
//	<out>/log/fail.txt                 [<requested>]: <reason>
//
// Ledgers are append-only, so several runs over disjoint ranges (or a rerun
// after a crash) can share an output directory. [ResumeOffset] computes where
// an interrupted run should continue.
//
// # Time budget
//
// Every package gets its own deadline ([Options.Timeout], 15 minutes by
// default). A package that runs out of time is logged as
// "Execution time limit reached!" and the run continues with the next one.
// Cancelling the parent context stops the run without logging the package
// in flight.
package scan

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/depgraph"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/observability"
	"github.com/matzehuels/depscan/pkg/pkgname"
	"github.com/matzehuels/depscan/pkg/resolve"
)

const (
	DefaultTimeout = 15 * time.Minute // Per-package time budget

	DataDir = "data"
	LogDir  = "log"

	// TimeoutMessage is the failure reason of a package that ran out of time.
	TimeoutMessage = "Execution time limit reached!"
)

// Resolver solves root requirements. *resolve.Adapter implements it.
type Resolver interface {
	Resolve(ctx context.Context, reqs []resolve.Requirement) (*resolve.Solution, error)
}

// Options configures a Driver.
type Options struct {
	Timeout  time.Duration // Per-package deadline (default: 15m)
	MaxDepth int           // Solution tree depth limit (default: depgraph.DefaultMaxDepth)
	Sinks    []Sink        // Extra artifact destinations besides data/
	Progress *Progress     // Shared progress record (default: a private one)
	Logger   *log.Logger
}

// WithDefaults returns a copy of Options with zero values replaced by
// defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = depgraph.DefaultMaxDepth
	}
	if opts.Progress == nil {
		opts.Progress = &Progress{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return opts
}

// Driver scans package ranges sequentially. Parallelism comes from running
// several drivers over disjoint ranges.
type Driver struct {
	resolver Resolver
	opts     Options
}

// NewDriver creates a driver resolving through r.
func NewDriver(r Resolver, opts Options) *Driver {
	return &Driver{resolver: r, opts: opts.WithDefaults()}
}

// Progress returns the driver's live progress record.
func (d *Driver) Progress() *Progress { return d.opts.Progress }

// Summary reports the outcome of one Run.
type Summary struct {
	Start   int
	End     int
	Done    int
	Success int
	Fail    int
	Elapsed time.Duration
}

// Clamp bounds [start, end) to a list of n items: a negative start becomes
// 0; a negative or oversized end becomes n.
func Clamp(n, start, end int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end < 0 || end > n {
		end = n
	}
	if start > end {
		start = end
	}
	return start, end
}

// Run scans items[start:end] (after Clamp) into outDir. Per-package
// failures are logged to the failure ledger and never stop the run. The
// returned error is a context error or a failure to write the ledgers.
func (d *Driver) Run(ctx context.Context, items []string, start, end int, outDir string) (*Summary, error) {
	start, end = Clamp(len(items), start, end)
	dataDir := filepath.Join(outDir, DataDir)
	for _, dir := range []string{dataDir, filepath.Join(outDir, LogDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "create %s", dir)
		}
	}
	ledger := NewLedger(filepath.Join(outDir, LogDir))
	sinks := append([]Sink{FileSink{Dir: dataDir}}, d.opts.Sinks...)
	logger := d.opts.Logger

	begin := time.Now()
	sum := &Summary{Start: start, End: end}
	progress := d.opts.Progress
	progress.begin(start, end, begin)
	defer progress.finish()

	for idx := start; idx < end; idx++ {
		if err := ctx.Err(); err != nil {
			sum.Elapsed = time.Since(begin)
			return sum, err
		}
		pkg := items[idx]
		rate := 0.0
		if elapsed := time.Since(begin).Seconds(); elapsed > 0 {
			rate = float64(idx-start) / elapsed
		}
		logger.Info("solving dependency",
			"range", fmt.Sprintf("%d - %d -> %d", start+1, idx+1, end),
			"package", pkg,
			"rate", fmt.Sprintf("%.3f pkg/s", rate),
			"done", sum.Done,
			"success", sum.Success,
			"fail", sum.Fail)
		progress.item(idx, pkg, rate)
		observability.Scan().OnItemStart(ctx, idx, pkg)

		itemStart := time.Now()
		dump, file, err := d.scanOne(ctx, pkg, sinks)
		if err != nil && ctx.Err() != nil {
			sum.Elapsed = time.Since(begin)
			return sum, ctx.Err()
		}
		observability.Scan().OnItemComplete(ctx, idx, pkg, time.Since(itemStart), err)

		if err != nil {
			reason := FailureReason(err)
			logger.Warn("scan failed", "package", pkg, "reason", firstLine(reason))
			if lerr := ledger.Failure(pkg, reason); lerr != nil {
				return sum, lerr
			}
			sum.Fail++
		} else {
			logger.Info("saved", "package", pkg, "file", file)
			if lerr := ledger.Success(pkg, dump.RootPackage, pkgname.Canonicalize(dump.RootPackage), file); lerr != nil {
				return sum, lerr
			}
			sum.Success++
		}
		sum.Done++
		progress.done(err == nil)
	}

	sum.Elapsed = time.Since(begin)
	logger.Info("scan finished",
		"done", sum.Done,
		"success", sum.Success,
		"fail", sum.Fail,
		"duration", sum.Elapsed)
	return sum, nil
}

// scanOne resolves pkg under its own deadline and saves the artifact.
func (d *Driver) scanOne(ctx context.Context, pkg string, sinks []Sink) (*depgraph.Dump, string, error) {
	itemCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	sol, err := d.resolver.Resolve(itemCtx, []resolve.Requirement{{Name: pkg, Constraint: "*"}})
	if err == nil {
		err = itemCtx.Err()
	}
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, "", errors.Wrap(errors.ErrCodeDeadline, err, TimeoutMessage)
		}
		return nil, "", err
	}

	g, err := depgraph.Extract(sol, depgraph.Options{MaxDepth: d.opts.MaxDepth})
	if err != nil {
		return nil, "", err
	}
	observability.Scan().OnGraphExtracted(ctx, pkg, len(g.Packages), len(g.Edges()))
	dump := depgraph.BuildDump(g, sol.Sources)
	data, err := dump.Encode()
	if err != nil {
		return nil, "", err
	}

	file, err := sinks[0].Save(ctx, dump, data)
	if err != nil {
		return nil, "", err
	}
	for _, s := range sinks[1:] {
		if _, err := s.Save(ctx, dump, data); err != nil {
			d.opts.Logger.Warn("mirror sink failed", "package", pkg, "error", err)
		}
	}
	return dump, file, nil
}

// FailureReason formats err for the failure ledger. Timeouts are reported
// as TimeoutMessage.
func FailureReason(err error) string {
	if errors.Is(err, errors.ErrCodeDeadline) {
		return TimeoutMessage
	}
	return err.Error()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
