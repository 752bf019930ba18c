// Package metadata derives release metadata (summary, declared dependencies,
// required Python) from the distribution files of one package version.
//
// Several files usually exist per version. [Select] orders them by how
// authoritative their embedded metadata is:
//
//  1. a universal wheel for both Python lines (py2.py3-none-any)
//  2. a py2 and a py3 universal wheel, merged
//  3. a py3 universal wheel, then a py2 universal wheel
//  4. a platform wheel compatible with the analysis [Environment], then any
//     platform wheel
//  5. source distributions, in listing order
//
// [Extractor.Extract] reads candidates in that order and returns the first
// that yields metadata, so one malformed artifact never hides a usable one.
package metadata

import (
	"context"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/pep440"
	"github.com/matzehuels/depscan/pkg/source"
)

// ReleaseMetadata is the metadata of one package version.
type ReleaseMetadata struct {
	Name           string             `json:"name"`
	Version        string             `json:"version"`
	Summary        string             `json:"summary"`
	RequiresDist   []string           `json:"requires_dist"`
	RequiresPython string             `json:"requires_python,omitempty"`
	Sources        []source.FileAsset `json:"sources"`
}

// Fetcher makes a distribution file available locally.
// [source.PackageSource] implementations satisfy it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Options configures an Extractor.
type Options struct {
	Env    Environment // Target used for platform wheel selection (default: DefaultEnvironment)
	Logger *log.Logger // Debug output for skipped candidates (optional)
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.Env.Python == "" {
		opts.Env = DefaultEnvironment()
	}
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return opts
}

// Extractor reads release metadata out of distribution files.
type Extractor struct {
	fetcher Fetcher
	env     Environment
	logger  *log.Logger
}

// NewExtractor creates an Extractor that obtains files through fetcher.
func NewExtractor(fetcher Fetcher, opts Options) *Extractor {
	opts = opts.WithDefaults()
	return &Extractor{fetcher: fetcher, env: opts.Env, logger: opts.Logger}
}

// Env returns the environment used for wheel selection.
func (e *Extractor) Env() Environment { return e.env }

// Extract returns the metadata of name at version. The returned Name is the
// project name declared by the artifact when it has one. files must be the
// distribution files of that version (see [ForVersion]). When no file
// yields metadata the error carries errors.ErrCodeNoMetadata, or
// errors.ErrCodeFetch when no candidate file could be obtained at all.
func (e *Extractor) Extract(ctx context.Context, name, version string, files []source.FileAsset) (*ReleaseMetadata, error) {
	candidates := Select(files, e.env)
	if len(candidates) == 0 {
		return nil, errors.New(errors.ErrCodeNoMetadata, "no distribution files for %s %s", name, version)
	}

	var lastErr error
	fetchOnly := true
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := e.extractCandidate(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Debug("metadata candidate skipped", "package", name, "version", version, "rule", c.Rule, "err", err)
			lastErr = err
			fetchOnly = fetchOnly && errors.GetCode(err) == errors.ErrCodeFetch
			continue
		}
		if info.Name != "" {
			name = info.Name
		}
		return &ReleaseMetadata{
			Name:           name,
			Version:        version,
			Summary:        info.Summary,
			RequiresDist:   info.RequiresDist,
			RequiresPython: info.RequiresPython,
			Sources:        c.Files,
		}, nil
	}
	if fetchOnly {
		return nil, errors.Wrap(errors.ErrCodeFetch, lastErr, "no artifact of %s %s could be fetched", name, version)
	}
	return nil, errors.Wrap(errors.ErrCodeNoMetadata, lastErr, "no readable metadata for %s %s", name, version)
}

func (e *Extractor) extractCandidate(ctx context.Context, c Candidate) (*coreMetadata, error) {
	if c.Rule != RuleMerged {
		return e.readFile(ctx, c.Files[0])
	}
	py2, err := e.readFile(ctx, c.Files[0])
	if err != nil {
		return nil, err
	}
	py3, err := e.readFile(ctx, c.Files[1])
	if err != nil {
		return nil, err
	}
	return mergePythonLines(py2, py3), nil
}

func (e *Extractor) readFile(ctx context.Context, f source.FileAsset) (*coreMetadata, error) {
	local, err := e.fetcher.Fetch(ctx, f.URL)
	if err != nil {
		return nil, err
	}
	if f.Kind == source.KindWheel {
		return readWheel(local)
	}
	return readSdist(local, f.Filename)
}

// ForVersion returns the files whose version equals version under PEP 440
// comparison, so "1.0" also matches files listed as "1.0.0". Unparseable
// versions fall back to exact string equality.
func ForVersion(files []source.FileAsset, version string) []source.FileAsset {
	want, werr := pep440.Parse(version)
	var out []source.FileAsset
	for _, f := range files {
		if f.Version == version {
			out = append(out, f)
			continue
		}
		if werr != nil {
			continue
		}
		if v, err := pep440.Parse(f.Version); err == nil && v.Equal(want) {
			out = append(out, f)
		}
	}
	return out
}
