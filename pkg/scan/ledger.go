package scan

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/matzehuels/depscan/pkg/errors"
)

// Ledger file names inside the log directory.
const (
	SuccessFile = "success.txt"
	FailFile    = "fail.txt"
)

// Ledger appends scan outcomes to success.txt and fail.txt.
type Ledger struct {
	dir string
	mu  sync.Mutex
}

// NewLedger returns a ledger writing into dir.
func NewLedger(dir string) *Ledger {
	return &Ledger{dir: dir}
}

// Success records a saved artifact.
func (l *Ledger) Success(requested, resolved, canonical, file string) error {
	return l.append(SuccessFile, fmt.Sprintf("[%s/%s/%s]: '%s'\n", requested, resolved, canonical, file))
}

// Failure records a failed package with its reason. Reasons may span
// several lines.
func (l *Ledger) Failure(requested, reason string) error {
	return l.append(FailFile, fmt.Sprintf("[%s]: %s\n", requested, reason))
}

func (l *Ledger) append(name, line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	path := filepath.Join(l.dir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "open ledger %s", path)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return errors.Wrap(errors.ErrCodeInternal, err, "write ledger %s", path)
	}
	return f.Close()
}

var entryRE = regexp.MustCompile(`^\[(\S+?)\]: (.*)$`)

// Entry is one ledger record.
type Entry struct {
	Key     string // bracketed field: "<requested>" or "<requested>/<resolved>/<canonical>"
	Message string // text after "]: ", continuation lines included
}

// Name returns the requested package name of e.
func (e Entry) Name() string {
	name, _, _ := strings.Cut(e.Key, "/")
	return name
}

// FirstLine returns the first line of the message.
func (e Entry) FirstLine() string { return firstLine(e.Message) }

// ReadEntries parses a ledger. Lines that do not start a new entry are
// appended to the message of the previous one; lines before the first entry
// are ignored.
func ReadEntries(r io.Reader) ([]Entry, error) {
	var out []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16<<20)
	for sc.Scan() {
		line := sc.Text()
		if m := entryRE.FindStringSubmatch(line); m != nil {
			out = append(out, Entry{Key: m[1], Message: m[2]})
			continue
		}
		if len(out) > 0 {
			out[len(out)-1].Message += "\n" + line
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read ledger")
	}
	for i := range out {
		out[i].Message = strings.TrimRight(out[i].Message, "\n")
	}
	return out, nil
}

// ReadLedger parses the ledger at path. A missing file yields no entries.
func ReadLedger(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "open ledger %s", path)
	}
	defer f.Close()
	return ReadEntries(f)
}

// LastEntries returns the requested names of the last success and the last
// failure recorded in logDir. Either is "" when its ledger is empty.
func LastEntries(logDir string) (lastSuccess, lastFailure string, err error) {
	succ, err := ReadLedger(filepath.Join(logDir, SuccessFile))
	if err != nil {
		return "", "", err
	}
	fail, err := ReadLedger(filepath.Join(logDir, FailFile))
	if err != nil {
		return "", "", err
	}
	if len(succ) > 0 {
		lastSuccess = succ[len(succ)-1].Name()
	}
	if len(fail) > 0 {
		lastFailure = fail[len(fail)-1].Name()
	}
	return lastSuccess, lastFailure, nil
}

// ResumeOffset returns the index after the later of lastSuccess and
// lastFailure in items. Empty names are ignored; with both empty the
// offset is 0. A name missing from items is an error.
func ResumeOffset(items []string, lastSuccess, lastFailure string) (int, error) {
	next := 0
	for _, name := range []string{lastSuccess, lastFailure} {
		if name == "" {
			continue
		}
		idx := indexOf(items, name)
		if idx < 0 {
			return 0, errors.New(errors.ErrCodeNotFound, "%s is not in the package list", name)
		}
		if idx+1 > next {
			next = idx + 1
		}
	}
	return next, nil
}

func indexOf(items []string, name string) int {
	for i, n := range items {
		if n == name {
			return i
		}
	}
	return -1
}
