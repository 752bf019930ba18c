package resolve

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/cache"
	"github.com/matzehuels/depscan/pkg/metadata"
	"github.com/matzehuels/depscan/pkg/observability"
	"github.com/matzehuels/depscan/pkg/pep440"
	"github.com/matzehuels/depscan/pkg/pkgname"
	"github.com/matzehuels/depscan/pkg/source"
)

// Release is one version of a project with its distribution files.
type Release struct {
	Version        string
	Parsed         pep440.Version
	RequiresPython string
	Files          []source.FileAsset
}

// Repository supplies releases and their metadata to a Solver.
type Repository interface {
	// Releases returns the releases of name, newest first. Unknown
	// projects yield an empty list.
	Releases(ctx context.Context, name string) ([]Release, error)

	// Metadata returns the metadata of one release.
	Metadata(ctx context.Context, name string, rel Release) (*metadata.ReleaseMetadata, error)
}

// RepositoryOptions configures an IndexRepository.
type RepositoryOptions struct {
	Cache      cache.Cache       // metadata cache (default: none)
	Keyer      cache.Keyer       // cache key scheme (default: cache.DefaultKeyer)
	TTL        time.Duration     // cache entry lifetime (default: cache.TTLMetadata)
	FromMirror func(string) bool // reports mirror-served URLs (default: taken from the source)
	Logger     *log.Logger
}

// mirrorAware is implemented by sources that can tell mirror files apart.
type mirrorAware interface {
	FromMirror(url string) bool
}

// IndexRepository implements Repository over a PackageSource and a metadata
// Extractor. Metadata derived from network files is cached; metadata derived
// from mirror files never is, so mirror updates are always picked up.
type IndexRepository struct {
	src        source.PackageSource
	extractor  *metadata.Extractor
	cache      cache.Cache
	keyer      cache.Keyer
	ttl        time.Duration
	fromMirror func(string) bool
	logger     *log.Logger
}

// NewIndexRepository creates a repository reading from src.
func NewIndexRepository(src source.PackageSource, extractor *metadata.Extractor, opts RepositoryOptions) *IndexRepository {
	r := &IndexRepository{
		src:        src,
		extractor:  extractor,
		cache:      opts.Cache,
		keyer:      opts.Keyer,
		ttl:        opts.TTL,
		fromMirror: opts.FromMirror,
		logger:     opts.Logger,
	}
	if r.cache == nil {
		r.cache = cache.NewNullCache()
	}
	if r.keyer == nil {
		r.keyer = cache.NewDefaultKeyer()
	}
	if r.ttl <= 0 {
		r.ttl = cache.TTLMetadata
	}
	if r.fromMirror == nil {
		if m, ok := src.(mirrorAware); ok {
			r.fromMirror = m.FromMirror
		} else {
			r.fromMirror = func(string) bool { return false }
		}
	}
	if r.logger == nil {
		r.logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return r
}

// Releases groups the files of name by version. Versions that are not valid
// PEP 440 are skipped.
func (r *IndexRepository) Releases(ctx context.Context, name string) ([]Release, error) {
	files, err := r.src.ListFiles(ctx, name)
	if err != nil {
		return nil, err
	}

	byVersion := make(map[string]*Release)
	var order []string
	for _, f := range files {
		rel, ok := byVersion[f.Version]
		if !ok {
			v, err := pep440.Parse(f.Version)
			if err != nil {
				r.logger.Debug("skipping unparseable version", "package", name, "version", f.Version)
				continue
			}
			rel = &Release{Version: f.Version, Parsed: v}
			byVersion[f.Version] = rel
			order = append(order, f.Version)
		}
		if rel.RequiresPython == "" {
			rel.RequiresPython = f.RequiresPython
		}
		rel.Files = append(rel.Files, f)
	}

	out := make([]Release, 0, len(order))
	for _, v := range order {
		out = append(out, *byVersion[v])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[j].Parsed.Less(out[i].Parsed) })
	return out, nil
}

// Metadata returns the metadata of rel, from the cache when possible.
func (r *IndexRepository) Metadata(ctx context.Context, name string, rel Release) (*metadata.ReleaseMetadata, error) {
	cacheable := true
	for _, f := range rel.Files {
		if r.fromMirror(f.URL) {
			cacheable = false
			break
		}
	}

	key := r.keyer.MetadataKey(pkgname.Canonicalize(name), rel.Version)
	if cacheable {
		if data, ok, _ := r.cache.Get(ctx, key); ok {
			var md metadata.ReleaseMetadata
			if json.Unmarshal(data, &md) == nil {
				observability.Cache().OnCacheHit(ctx, "metadata")
				return &md, nil
			}
		}
		observability.Cache().OnCacheMiss(ctx, "metadata")
	}

	md, err := r.extractor.Extract(ctx, name, rel.Version, rel.Files)
	if err != nil {
		return nil, err
	}
	if cacheable {
		if data, err := json.Marshal(md); err == nil && r.cache.Set(ctx, key, data, r.ttl) == nil {
			observability.Cache().OnCacheSet(ctx, "metadata", len(data))
		}
	}
	return md, nil
}

var _ Repository = (*IndexRepository)(nil)
