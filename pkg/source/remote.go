package source

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/integrations"
	"github.com/matzehuels/depscan/pkg/integrations/pypi"
)

// Index is the subset of the index client a Remote needs.
// [pypi.Client] implements it.
type Index interface {
	ListProjects(ctx context.Context, refresh bool) ([]string, error)
	FetchProject(ctx context.Context, name string, refresh bool) (*pypi.Project, error)
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// Remote serves projects from the network index. Downloaded files are kept
// under cacheDir at the URL path, so a file is fetched at most once.
type Remote struct {
	index    Index
	cacheDir string
	logger   *log.Logger
}

// NewRemote creates a Remote that caches downloads under cacheDir.
func NewRemote(index Index, cacheDir string, logger *log.Logger) *Remote {
	if logger == nil {
		logger = discardLogger()
	}
	return &Remote{index: index, cacheDir: cacheDir, logger: logger}
}

// ListAvailable returns the index's project list.
func (r *Remote) ListAvailable(ctx context.Context) ([]string, error) {
	names, err := r.index.ListProjects(ctx, false)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "list projects")
	}
	return names, nil
}

// ListFiles returns the files of every release of name. A project unknown to
// the index yields an empty list.
func (r *Remote) ListFiles(ctx context.Context, name string) ([]FileAsset, error) {
	project, err := r.index.FetchProject(ctx, name, false)
	if err != nil {
		if stderrors.Is(err, integrations.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "list files of %s", name)
	}
	return assetsFromProject(project), nil
}

// Fetch returns the cached copy of url, downloading it first if needed.
// The download goes to a uniquely named temporary file that is renamed into
// place, so concurrent fetches of one URL never expose a partial file.
func (r *Remote) Fetch(ctx context.Context, rawURL string) (string, error) {
	rel := urlPath(rawURL)
	if rel == "" {
		return "", errors.New(errors.ErrCodeFetch, "invalid file url %q", rawURL)
	}
	local := filepath.Join(r.cacheDir, filepath.FromSlash(rel))
	if st, err := os.Stat(local); err == nil && st.Mode().IsRegular() {
		return local, nil
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", errors.Wrap(errors.ErrCodeFetch, err, "prepare %s", local)
	}
	tmp := local + "." + uuid.NewString() + ".tmp"
	if err := r.download(ctx, rawURL, tmp); err != nil {
		os.Remove(tmp)
		return "", errors.Wrap(errors.ErrCodeFetch, err, "download %s", rawURL)
	}
	if err := os.Rename(tmp, local); err != nil {
		os.Remove(tmp)
		return "", errors.Wrap(errors.ErrCodeFetch, err, "store %s", local)
	}
	r.logger.Debug("downloaded", "url", rawURL, "path", local)
	return local, nil
}

func (r *Remote) download(ctx context.Context, rawURL, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := r.index.Download(ctx, rawURL, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
