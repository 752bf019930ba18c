// Package analysis runs static analyzers over many package archives in
// parallel.
//
// A fixed number of workers pull tasks from a shared queue. Each task is
// unpacked once into a temporary directory and every configured Tool runs
// against it under a Supervisor, which stops processes that stop writing
// output. Per task and tool the layout under the output directory is:
//
//	<tool>/log/<name>@<version>/stdout.txt
//	<tool>/log/<name>@<version>/stderr.txt
//	<tool>/report/<name>@<version>.txt
//
// A failing task or tool is recorded in its Result and does not stop the
// pool; only cancellation or an unkillable process does.
package analysis

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/observability"
)

// DefaultWorkers is the pool size used when Options.Workers is unset.
const DefaultWorkers = 16

// Task is one package to analyze. Src is an archive or a directory.
type Task struct {
	Name             string `json:"name"`
	Version          string `json:"version"`
	Src              string `json:"src"`
	NumberDependents int    `json:"number_dependents,omitempty"`
}

// FQN returns name@version.
func (t Task) FQN() string { return t.Name + "@" + t.Version }

// ReadTasks decodes a JSON array of tasks.
func ReadTasks(r io.Reader) ([]Task, error) {
	var tasks []Task
	if err := json.NewDecoder(r).Decode(&tasks); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode task list")
	}
	for i, t := range tasks {
		if t.Name == "" || t.Version == "" || t.Src == "" {
			return nil, errors.New(errors.ErrCodeInvalidInput, "task %d: name, version and src are required", i)
		}
	}
	return tasks, nil
}

// Result is the outcome of one tool on one task.
type Result struct {
	Task     Task
	Tool     string
	Report   string
	ExitCode int
	Elapsed  time.Duration
	Err      error
}

// Options configures a Runner.
type Options struct {
	Workers        int
	Tools          []Tool
	FreezeInterval time.Duration
	Grace          time.Duration
	// TempDir is where archives are unpacked. Defaults to os.TempDir().
	TempDir string
	Logger  *log.Logger
}

// WithDefaults returns a copy of o with zero fields filled in.
func (o Options) WithDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if len(o.Tools) == 0 {
		o.Tools = DefaultTools()
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return o
}

// Runner is the worker pool.
type Runner struct {
	opts Options
	sup  *Supervisor
}

// NewRunner returns a Runner for opts.
func NewRunner(opts Options) *Runner {
	opts = opts.WithDefaults()
	return &Runner{
		opts: opts,
		sup: &Supervisor{
			FreezeInterval: opts.FreezeInterval,
			Grace:          opts.Grace,
			Logger:         opts.Logger,
		},
	}
}

// Run analyzes tasks and writes under outDir. Results are ordered by task,
// then by tool.
func (r *Runner) Run(ctx context.Context, tasks []Task, outDir string) ([]Result, error) {
	for _, tool := range r.opts.Tools {
		for _, sub := range []string{"log", "report"} {
			if err := os.MkdirAll(filepath.Join(outDir, tool.Name, sub), 0o755); err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "create output directory")
			}
		}
	}

	results := make([]Result, len(tasks)*len(r.opts.Tools))
	queue := make(chan int)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		for i := range tasks {
			select {
			case queue <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < r.opts.Workers; w++ {
		g.Go(func() error {
			for i := range queue {
				out := results[i*len(r.opts.Tools) : (i+1)*len(r.opts.Tools)]
				if err := r.runTask(gctx, tasks[i], outDir, out); err != nil {
					return err
				}
			}
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

// runTask fills out with one result per tool. The returned error stops the
// pool.
func (r *Runner) runTask(ctx context.Context, task Task, outDir string, out []Result) error {
	logger := r.opts.Logger.With("package", task.FQN())
	for j, tool := range r.opts.Tools {
		out[j] = Result{Task: task, Tool: tool.Name, ExitCode: -1}
	}

	src, cleanup, err := r.prepare(task)
	if err != nil {
		logger.Error("unpack failed", "src", task.Src, "err", err)
		for j := range out {
			out[j].Err = err
		}
		return nil
	}
	defer cleanup()

	for j, tool := range r.opts.Tools {
		start := time.Now()
		logger.Info("analyzing", "tool", tool.Name)
		observability.Analysis().OnToolStart(ctx, tool.Name, task.FQN())
		code, report, err := r.runTool(ctx, tool, task, src, outDir)
		out[j].ExitCode, out[j].Report, out[j].Err = code, report, err
		out[j].Elapsed = time.Since(start)
		observability.Analysis().OnToolComplete(ctx, tool.Name, task.FQN(), code, out[j].Elapsed, err)

		switch {
		case errors.Fatal(err):
			logger.Error("cannot stop subprocess", "tool", tool.Name, "err", err)
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			logger.Warn("analysis failed", "tool", tool.Name, "err", err)
		default:
			logger.Info("analysis done", "tool", tool.Name, "exit", code, "elapsed", out[j].Elapsed)
		}
	}
	return nil
}

// prepare returns the directory to analyze and a cleanup func.
func (r *Runner) prepare(task Task) (string, func(), error) {
	fi, err := os.Stat(task.Src)
	if err != nil {
		return "", nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "stat %s", task.Src)
	}
	if fi.IsDir() {
		return task.Src, func() {}, nil
	}
	dir, err := os.MkdirTemp(r.opts.TempDir, "depscan-analysis-")
	if err != nil {
		return "", nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "create temp dir")
	}
	cleanup := func() { os.RemoveAll(dir) }
	if err := Unpack(task.Src, dir); err != nil {
		cleanup()
		return "", nil, err
	}
	return dir, cleanup, nil
}

func (r *Runner) runTool(ctx context.Context, tool Tool, task Task, src, outDir string) (int, string, error) {
	bin, err := exec.LookPath(tool.Bin)
	if err != nil {
		return -1, "", errors.Wrap(errors.ErrCodeNotFound, err, "%s not installed", tool.Bin)
	}
	logDir := filepath.Join(outDir, tool.Name, "log", task.FQN())
	report := filepath.Join(outDir, tool.Name, "report", task.FQN()+".txt")
	stdout := filepath.Join(logDir, "stdout.txt")

	code, err := r.sup.Run(ctx, Command{
		Path:      bin,
		Args:      tool.Args(src, report),
		Stdout:    stdout,
		Stderr:    filepath.Join(logDir, "stderr.txt"),
		ValidExit: tool.ValidExit,
	})
	if err != nil {
		return code, "", err
	}
	if tool.ReportFromStdout {
		rel, err := filepath.Rel(filepath.Dir(report), stdout)
		if err != nil {
			return code, "", errors.Wrap(errors.ErrCodeInvalidPath, err, "link report")
		}
		os.Remove(report)
		if err := os.Symlink(rel, report); err != nil {
			return code, "", errors.Wrap(errors.ErrCodeInvalidPath, err, "link report")
		}
	}
	return code, report, nil
}
