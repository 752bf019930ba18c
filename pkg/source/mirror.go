package source

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/integrations/pypi"
	"github.com/matzehuels/depscan/pkg/pkgname"
)

// LocalMirror serves a mirror directory laid out as
//
//	<root>/json/<project>      JSON API document per project
//	<root>/<url path>          distribution files, e.g. packages/ab/cd/x.whl
//
// The canonical-name index is built once by [NewLocalMirror] and only
// replaced wholesale by [LocalMirror.Watch], so lookups never observe a
// partially built table.
type LocalMirror struct {
	root   string
	logger *log.Logger

	mu    sync.RWMutex
	names []string          // on-disk names, sorted
	index map[string]string // canonical name -> on-disk name
}

// NewLocalMirror opens the mirror at root and indexes <root>/json.
func NewLocalMirror(root string, logger *log.Logger) (*LocalMirror, error) {
	if logger == nil {
		logger = discardLogger()
	}
	m := &LocalMirror{root: root, logger: logger}
	if err := m.reindex(); err != nil {
		return nil, err
	}
	return m, nil
}

// Root returns the mirror directory.
func (m *LocalMirror) Root() string { return m.root }

func (m *LocalMirror) jsonDir() string { return filepath.Join(m.root, "json") }

func (m *LocalMirror) reindex() error {
	entries, err := os.ReadDir(m.jsonDir())
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "read mirror index %s", m.jsonDir())
	}
	names := make([]string, 0, len(entries))
	index := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
		index[pkgname.Canonicalize(e.Name())] = e.Name()
	}
	sort.Strings(names)

	m.mu.Lock()
	m.names, m.index = names, index
	m.mu.Unlock()
	return nil
}

// ListAvailable returns the on-disk project names in sorted order.
func (m *LocalMirror) ListAvailable(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.names...), nil
}

// Lookup returns the on-disk name for a project, matching by canonical form.
func (m *LocalMirror) Lookup(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.index[pkgname.Canonicalize(name)]
	return n, ok
}

// ListFiles reads the project's metadata document. Unknown projects and
// unreadable documents yield an empty list.
func (m *LocalMirror) ListFiles(ctx context.Context, name string) ([]FileAsset, error) {
	onDisk, ok := m.Lookup(name)
	if !ok {
		return nil, nil
	}
	f, err := os.Open(filepath.Join(m.jsonDir(), onDisk))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeFetch, err, "open mirror metadata for %s", name)
	}
	defer f.Close()

	project, err := pypi.DecodeProject(f)
	if err != nil {
		m.logger.Warn("unreadable mirror metadata", "project", onDisk, "err", err)
		return nil, nil
	}
	return assetsFromProject(project), nil
}

// Fetch maps the path component of url onto the mirror root.
func (m *LocalMirror) Fetch(ctx context.Context, rawURL string) (string, error) {
	if p, ok := m.Resolve(rawURL); ok {
		return p, nil
	}
	return "", errors.New(errors.ErrCodeFetch, "%s not in mirror", rawURL)
}

// Resolve returns the mirror path of url and whether a regular file exists
// there.
func (m *LocalMirror) Resolve(rawURL string) (string, bool) {
	rel := urlPath(rawURL)
	if rel == "" {
		return "", false
	}
	local := filepath.Join(m.root, filepath.FromSlash(rel))
	st, err := os.Stat(local)
	if err != nil || !st.Mode().IsRegular() {
		return "", false
	}
	return local, true
}

// FromMirror reports whether url is served by the mirror.
func (m *LocalMirror) FromMirror(rawURL string) bool {
	_, ok := m.Resolve(rawURL)
	return ok
}

// Watch rebuilds the name index whenever <root>/json changes, until ctx is
// cancelled.
func (m *LocalMirror) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(m.jsonDir()); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := m.reindex(); err != nil {
				m.logger.Warn("mirror reindex failed", "err", err)
				continue
			}
			m.logger.Debug("mirror reindexed", "event", ev.Op.String(), "file", filepath.Base(ev.Name))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("mirror watch error", "err", err)
		}
	}
}

// urlPath returns the cleaned path of rawURL without its leading slash.
// ".." segments cannot climb above the root.
func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean("/"+u.Path), "/")
}
