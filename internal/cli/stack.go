package cli

import (
	"context"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/cache"
	"github.com/matzehuels/depscan/pkg/config"
	"github.com/matzehuels/depscan/pkg/integrations/pypi"
	"github.com/matzehuels/depscan/pkg/metadata"
	"github.com/matzehuels/depscan/pkg/resolve"
	"github.com/matzehuels/depscan/pkg/source"
)

// stack is the resolution pipeline shared by scan and resolve.
type stack struct {
	source   *source.Hybrid
	resolver *resolve.Adapter
	cache    cache.Cache
}

// openStack wires mirror, network index, caches, metadata extraction and
// the solver from cfg. When cfg.Mirror.Watch is set the mirror index is
// refreshed in the background until ctx ends.
func openStack(ctx context.Context, cfg *config.Config, logger *log.Logger) (*stack, error) {
	backend, err := cfg.Cache.Open(ctx)
	if err != nil {
		return nil, err
	}

	var mirror *source.LocalMirror
	if cfg.Mirror.Root != "" {
		mirror, err = source.NewLocalMirror(cfg.Mirror.Root, logger)
		if err != nil {
			backend.Close()
			return nil, err
		}
		if cfg.Mirror.Watch {
			go func() {
				if err := mirror.Watch(ctx); err != nil {
					logger.Warn("mirror watch stopped", "err", err)
				}
			}()
		}
	}

	client := pypi.NewClient(backend, cfg.Cache.TTL).WithBaseURL(cfg.Index.URL, cfg.Index.SimpleURL)
	keyer := cache.NewScopedKeyer(cache.NewDefaultKeyer(), client.BaseURL()+":")
	client.SetKeyer(keyer)
	remote := source.NewRemote(client, filepath.Join(cfg.Cache.Dir, "files"), logger)
	src, err := source.NewHybrid(mirror, remote, logger)
	if err != nil {
		backend.Close()
		return nil, err
	}

	env := metadata.DefaultEnvironment()
	env.Python = cfg.Target.Python
	extractor := metadata.NewExtractor(src, metadata.Options{Env: env, Logger: logger})
	repo := resolve.NewIndexRepository(src, extractor, resolve.RepositoryOptions{
		Cache:  backend,
		Keyer:  keyer,
		Logger: logger,
	})
	solver, err := resolve.NewGreedy(repo, resolve.GreedyOptions{
		Python:      cfg.Target.Python,
		MaxPackages: cfg.Scan.MaxPackages,
		Logger:      logger,
	})
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &stack{
		source:   src,
		resolver: resolve.NewAdapter(solver, logger),
		cache:    backend,
	}, nil
}

func (s *stack) Close() error {
	return s.cache.Close()
}
