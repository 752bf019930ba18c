package analysis

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/matzehuels/depscan/pkg/errors"
)

const (
	// DefaultFreezeInterval is how long a process may go without writing
	// to stdout or stderr before it is considered stuck.
	DefaultFreezeInterval = 15 * time.Minute

	// DefaultGrace is how long each stop signal is given to take effect.
	DefaultGrace = 10 * time.Second
)

// stopSignals is the escalation order for a process that has to go.
var stopSignals = []unix.Signal{unix.SIGINT, unix.SIGTERM, unix.SIGKILL}

// Command is one subprocess invocation. Stdout and Stderr are file paths;
// their parent directories are created as needed.
type Command struct {
	Path      string
	Args      []string
	Dir       string
	Stdout    string
	Stderr    string
	ValidExit []int
}

// Supervisor runs commands and stops the ones that stop producing output.
type Supervisor struct {
	FreezeInterval time.Duration
	Grace          time.Duration
	// Signal delivers sig to pid. Defaults to unix.Kill.
	Signal func(pid int, sig unix.Signal) error
	Logger *log.Logger
}

func (s *Supervisor) withDefaults() Supervisor {
	out := *s
	if out.FreezeInterval <= 0 {
		out.FreezeInterval = DefaultFreezeInterval
	}
	if out.Grace <= 0 {
		out.Grace = DefaultGrace
	}
	if out.Signal == nil {
		out.Signal = unix.Kill
	}
	if out.Logger == nil {
		out.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return out
}

// Run starts c and waits for it. The process is stopped when neither of
// its output files grew over a FreezeInterval (PROCESS_STUCK) or when ctx
// ends. If no stop signal takes effect the error is PROCESS_UNKILLABLE and
// the process is left running. An exit code outside ValidExit is an error;
// the code is returned either way.
func (s *Supervisor) Run(ctx context.Context, c Command) (int, error) {
	sv := s.withDefaults()

	stdout, err := createOutput(c.Stdout)
	if err != nil {
		return -1, err
	}
	defer stdout.Close()
	stderr, err := createOutput(c.Stderr)
	if err != nil {
		return -1, err
	}
	defer stderr.Close()

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return -1, errors.Wrap(errors.ErrCodeInvalidInput, err, "start %s", c.Path)
	}
	pid := cmd.Process.Pid
	sv.Logger.Debug("started", "cmd", c.Path, "pid", pid)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	ticker := time.NewTicker(sv.FreezeInterval)
	defer ticker.Stop()
	var lastOut, lastErr int64

	for {
		select {
		case err := <-done:
			return exitStatus(c, err)

		case <-ctx.Done():
			sv.Logger.Warn("stopping cancelled process", "cmd", c.Path, "pid", pid)
			if err := sv.stop(pid, done); err != nil {
				return -1, err
			}
			return -1, ctx.Err()

		case <-ticker.C:
			outSize, errSize := fileSize(c.Stdout), fileSize(c.Stderr)
			if outSize > lastOut || errSize > lastErr {
				lastOut, lastErr = outSize, errSize
				continue
			}
			sv.Logger.Warn("process froze", "cmd", c.Path, "pid", pid, "interval", sv.FreezeInterval)
			if err := sv.stop(pid, done); err != nil {
				return -1, err
			}
			return -1, errors.New(errors.ErrCodeStuck, "%s produced no output for %s", filepath.Base(c.Path), sv.FreezeInterval)
		}
	}
}

// stop escalates through stopSignals until the process exits.
func (s Supervisor) stop(pid int, done <-chan error) error {
	for _, sig := range stopSignals {
		s.Logger.Debug("signalling", "pid", pid, "signal", unix.SignalName(sig))
		if err := s.Signal(pid, sig); err != nil && !stderrors.Is(err, unix.ESRCH) {
			s.Logger.Warn("signal failed", "pid", pid, "signal", unix.SignalName(sig), "err", err)
		}
		select {
		case <-done:
			return nil
		case <-time.After(s.Grace):
		}
	}
	return errors.New(errors.ErrCodeUnkillable, "cannot stop process %d", pid)
}

func exitStatus(c Command, err error) (int, error) {
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !stderrors.As(err, &exitErr) {
			return -1, errors.Wrap(errors.ErrCodeInternal, err, "wait %s", c.Path)
		}
		code = exitErr.ExitCode()
	}
	valid := c.ValidExit
	if len(valid) == 0 {
		valid = []int{0}
	}
	if !slices.Contains(valid, code) {
		return code, errors.New(errors.ErrCodeInternal, "%s exited with code %d", filepath.Base(c.Path), code)
	}
	return code, nil
}

func createOutput(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "create %s", filepath.Dir(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "create %s", path)
	}
	return f, nil
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
