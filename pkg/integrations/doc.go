// Package integrations provides HTTP clients for package index APIs.
//
// # Overview
//
// The shared [Client] wraps an [net/http.Client] with response caching,
// retry with backoff, default headers and observability hooks. Index-specific
// clients embed it:
//
//   - [pypi]: the Python Package Index JSON and simple APIs
//
// # Client Pattern
//
//	backend, _ := cache.NewFileCache(dir)
//	client := pypi.NewClient(backend, cache.TTLIndex)
//	project, err := client.FetchProject(ctx, "requests", false) // false = use cache
//
// Errors are classified with the sentinels [ErrNotFound] (404) and
// [ErrNetwork] (transport failures and non-200 statuses). Transient failures
// are wrapped with [cache.Retryable] so that [Client.Cached] and
// [Client.Download] retry them.
//
// [pypi]: github.com/matzehuels/depscan/pkg/integrations/pypi
// [cache.Retryable]: github.com/matzehuels/depscan/pkg/cache.Retryable
package integrations
