package source

import (
	"context"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/pkgname"
)

// Hybrid prefers the local mirror and falls back to the network for every
// operation.
type Hybrid struct {
	Mirror *LocalMirror // may be nil
	Remote *Remote      // may be nil

	logger *log.Logger
}

// NewHybrid combines a mirror and a remote. Either may be nil, but not both.
func NewHybrid(mirror *LocalMirror, remote *Remote, logger *log.Logger) (*Hybrid, error) {
	if mirror == nil && remote == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "hybrid source needs a mirror or a remote")
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &Hybrid{Mirror: mirror, Remote: remote, logger: logger}, nil
}

// ListAvailable returns the mirror's projects, or the remote's when there is
// no mirror.
func (h *Hybrid) ListAvailable(ctx context.Context) ([]string, error) {
	if h.Mirror != nil {
		return h.Mirror.ListAvailable(ctx)
	}
	names, err := h.Remote.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// ListFiles returns the mirror's file list when it knows the project and
// the remote's otherwise.
func (h *Hybrid) ListFiles(ctx context.Context, name string) ([]FileAsset, error) {
	if h.Mirror != nil {
		files, err := h.Mirror.ListFiles(ctx, name)
		if err != nil {
			h.logger.Warn("mirror lookup failed", "project", name, "err", err)
		} else if len(files) > 0 {
			h.logger.Debug("files from mirror", "project", pkgname.Canonicalize(name), "count", len(files))
			return files, nil
		}
	}
	if h.Remote == nil {
		return nil, nil
	}
	return h.Remote.ListFiles(ctx, name)
}

// Fetch returns the mirror copy of url if present, else downloads it.
func (h *Hybrid) Fetch(ctx context.Context, rawURL string) (string, error) {
	if h.Mirror != nil {
		if p, ok := h.Mirror.Resolve(rawURL); ok {
			return p, nil
		}
	}
	if h.Remote == nil {
		return "", errors.New(errors.ErrCodeFetch, "%s not in mirror and no remote configured", rawURL)
	}
	return h.Remote.Fetch(ctx, rawURL)
}

// FromMirror reports whether url is served by the mirror. Metadata derived
// from mirror files is not cached.
func (h *Hybrid) FromMirror(rawURL string) bool {
	return h.Mirror != nil && h.Mirror.FromMirror(rawURL)
}

var (
	_ PackageSource = (*LocalMirror)(nil)
	_ PackageSource = (*Remote)(nil)
	_ PackageSource = (*Hybrid)(nil)
)
