// Package pypi provides an HTTP client for the Python Package Index APIs.
//
// # Overview
//
// [Client.FetchProject] reads the JSON API (https://pypi.org/pypi/<name>/json)
// and returns the release listing of a project: every published version and
// the distribution files of each, with upload times, digests and
// requires_python. [Client.ListProjects] reads the project list from the
// simple API in its JSON form (PEP 691). Files are downloaded with the
// embedded [integrations.Client.Download].
//
// # Usage
//
//	client := pypi.NewClient(backend, cache.TTLIndex)
//	project, err := client.FetchProject(ctx, "requests", false) // false = use cache
//	for version, files := range project.Releases {
//	    fmt.Println(version, len(files))
//	}
//
// # Mirrors
//
// Bandersnatch-style mirrors store a copy of the JSON API document for each
// project under json/<name>; [DecodeProject] reads those files.
//
// [integrations.Client.Download]: github.com/matzehuels/depscan/pkg/integrations.Client.Download
package pypi
