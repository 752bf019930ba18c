// Package source provides the package index views the resolver reads from.
//
// Three implementations of [PackageSource] exist:
//
//   - [LocalMirror]: a bandersnatch-style mirror on disk (json/<name> metadata
//     files plus a packages/ tree of distribution files)
//   - [Remote]: the network index, with downloaded files cached on disk
//   - [Hybrid]: mirror first, network on miss, for every operation
//
// File paths returned by Fetch are read-only: they may point into the mirror
// itself.
package source

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/integrations/pypi"
)

// PackageSource enumerates projects, lists their distribution files and
// fetches those files.
type PackageSource interface {
	// ListAvailable returns the project names the source serves.
	ListAvailable(ctx context.Context) ([]string, error)

	// ListFiles returns every distribution file of every release of name.
	// An unknown project yields an empty list, not an error.
	ListFiles(ctx context.Context, name string) ([]FileAsset, error)

	// Fetch makes the file behind url available locally and returns its
	// path. The file must be treated as read-only. Failures carry
	// errors.ErrCodeFetch.
	Fetch(ctx context.Context, url string) (string, error)
}

// Kind classifies a distribution file.
type Kind int

const (
	KindOther Kind = iota
	KindWheel
	KindSource
)

func (k Kind) String() string {
	switch k {
	case KindWheel:
		return "bdist_wheel"
	case KindSource:
		return "sdist"
	default:
		return "other"
	}
}

var sdistSuffixes = []string{".tar.gz", ".tgz", ".zip", ".tar.bz2", ".tbz", ".tar.xz", ".txz", ".tar.Z", ".tar"}

// KindOf derives the kind of a file from its index packagetype, falling back
// to the file name.
func KindOf(packageType, filename string) Kind {
	switch packageType {
	case "bdist_wheel":
		return KindWheel
	case "sdist":
		return KindSource
	case "":
	default:
		return KindOther
	}
	switch {
	case strings.HasSuffix(filename, ".whl"):
		return KindWheel
	case hasSdistSuffix(filename):
		return KindSource
	}
	return KindOther
}

func hasSdistSuffix(name string) bool {
	for _, s := range sdistSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// FileAsset is one distribution file of one release.
type FileAsset struct {
	Version        string            `json:"version"`
	URL            string            `json:"url"`
	Filename       string            `json:"filename"`
	UploadTime     string            `json:"upload_time,omitempty"`
	Digests        map[string]string `json:"digests,omitempty"`
	Kind           Kind              `json:"kind"`
	RequiresPython string            `json:"requires_python,omitempty"`
}

// assetsFromProject flattens a release listing into FileAssets. Files
// without a URL are skipped. Versions are visited in lexical order so the
// result is stable.
func assetsFromProject(p *pypi.Project) []FileAsset {
	var out []FileAsset
	for _, version := range p.Versions() {
		for _, f := range p.Releases[version] {
			if f.URL == "" {
				continue
			}
			filename := f.Filename
			if filename == "" {
				filename = path.Base(urlPath(f.URL))
			}
			out = append(out, FileAsset{
				Version:        version,
				URL:            f.URL,
				Filename:       filename,
				UploadTime:     f.UploadTime,
				Digests:        f.Digests,
				Kind:           KindOf(f.PackageType, filename),
				RequiresPython: f.RequiresPython,
			})
		}
	}
	return out
}

func discardLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}
