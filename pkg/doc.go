// Package pkg holds the depscan libraries.
//
// depscan resolves the transitive dependency tree of every package in a
// Python package index and stores each tree as a JSON artifact. The
// packages fit together as follows:
//
//	mirror / network index      [source], [integrations/pypi]
//	         ↓
//	release metadata            [metadata], [pep440], [pkgname]
//	         ↓
//	constraint solving          [resolve]
//	         ↓
//	tree → artifact             [depgraph]
//	         ↓
//	batch driver + ledgers      [scan], [failstats]
//
// Supporting packages: [cache] (file, bbolt, redis backends), [config]
// (viper settings), [errors] (coded errors), [observability] (event hooks),
// [manifest] (pyproject.toml and requirements.txt), [render] (Graphviz
// diagrams), [server] (status endpoints) and [analysis] (supervised static
// analyzer runs).
//
// A single package is resolved like this:
//
//	client := pypi.NewClient(cache.NewNullCache(), cache.TTLIndex)
//	remote := source.NewRemote(client, filesDir, logger)
//	src, _ := source.NewHybrid(nil, remote, logger)
//	extractor := metadata.NewExtractor(src, metadata.Options{})
//	repo := resolve.NewIndexRepository(src, extractor, resolve.RepositoryOptions{})
//	solver, _ := resolve.NewGreedy(repo, resolve.GreedyOptions{Python: "3.8"})
//	sol, err := resolve.NewAdapter(solver, logger).Resolve(ctx,
//	    []resolve.Requirement{{Name: "requests", Constraint: "*"}})
//	g, err := depgraph.Extract(sol, depgraph.Options{})
//	dump := depgraph.BuildDump(g, sol.Sources)
package pkg
