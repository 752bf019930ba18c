package pypi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/matzehuels/depscan/pkg/cache"
	"github.com/matzehuels/depscan/pkg/integrations"
	"github.com/matzehuels/depscan/pkg/pkgname"
)

// Default endpoints of the public index.
const (
	DefaultJSONURL   = "https://pypi.org/pypi"
	DefaultSimpleURL = "https://pypi.org/simple"
)

const simpleJSONAccept = "application/vnd.pypi.simple.v1+json"

// File is one distribution file of a release as listed by the JSON API and
// by mirror metadata files, which share the same shape.
type File struct {
	Filename       string            `json:"filename"`
	URL            string            `json:"url"`
	UploadTime     string            `json:"upload_time"`
	Digests        map[string]string `json:"digests,omitempty"`
	PackageType    string            `json:"packagetype"`
	RequiresPython string            `json:"requires_python,omitempty"`
	Yanked         bool              `json:"yanked,omitempty"`
}

// Project is the release listing of one project.
//
// Releases maps the version string as published to the files of that
// release. Versions without files are kept; callers decide what to do with
// them.
type Project struct {
	Name     string            `json:"name"`
	Releases map[string][]File `json:"releases"`
}

// Versions returns the release keys in lexical order. Callers that need PEP
// 440 order parse and sort them.
func (p *Project) Versions() []string {
	out := make([]string, 0, len(p.Releases))
	for v := range p.Releases {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Client provides access to the PyPI JSON and simple APIs.
// It handles HTTP requests with caching and automatic retries.
//
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	baseURL   string
	simpleURL string
}

// NewClient creates a PyPI client with the given cache backend.
//
// Parameters:
//   - backend: Cache backend for response caching (nil or cache.NewNullCache() for no caching)
//   - cacheTTL: How long responses are cached (typical: [cache.TTLIndex])
//
// The returned Client is safe for concurrent use.
func NewClient(backend cache.Cache, cacheTTL time.Duration) *Client {
	return &Client{
		Client:    integrations.NewClient(backend, "pypi", cacheTTL, nil),
		baseURL:   DefaultJSONURL,
		simpleURL: DefaultSimpleURL,
	}
}

// WithBaseURL points the client at another index exposing the same APIs,
// e.g. a devpi or Artifactory proxy. An empty simpleURL derives it from
// jsonURL.
func (c *Client) WithBaseURL(jsonURL, simpleURL string) *Client {
	c.baseURL = strings.TrimRight(jsonURL, "/")
	if simpleURL == "" {
		simpleURL = strings.TrimSuffix(c.baseURL, "/pypi") + "/simple"
	}
	c.simpleURL = strings.TrimRight(simpleURL, "/")
	return c
}

// BaseURL returns the JSON API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// FetchProject retrieves the release listing of a project.
//
// The name is canonicalized automatically. If refresh is true, the cache is
// bypassed and a fresh API call is made.
//
// Returns:
//   - Project populated with releases on success
//   - [integrations.ErrNotFound] if the project doesn't exist
//   - [integrations.ErrNetwork] for HTTP failures (timeout, 5xx, etc.)
//   - Other errors for JSON decoding failures
func (c *Client) FetchProject(ctx context.Context, name string, refresh bool) (*Project, error) {
	name = pkgname.Canonicalize(name)

	var project Project
	err := c.Cached(ctx, "project:"+name, refresh, &project, func() error {
		return c.fetchProject(ctx, name, &project)
	})
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (c *Client) fetchProject(ctx context.Context, name string, project *Project) error {
	var data apiResponse
	if err := c.Get(ctx, fmt.Sprintf("%s/%s/json", c.baseURL, name), &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return fmt.Errorf("%w: pypi project %s", err, name)
		}
		return err
	}
	*project = data.project()
	return nil
}

// ListProjects returns the names of all projects on the index, as listed by
// the simple API.
func (c *Client) ListProjects(ctx context.Context, refresh bool) ([]string, error) {
	var names []string
	err := c.Cached(ctx, "projects", refresh, &names, func() error {
		var data simpleIndex
		headers := map[string]string{"Accept": simpleJSONAccept}
		if err := c.GetWithHeaders(ctx, c.simpleURL+"/", headers, &data); err != nil {
			return err
		}
		names = make([]string, 0, len(data.Projects))
		for _, p := range data.Projects {
			names = append(names, p.Name)
		}
		sort.Strings(names)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// DecodeProject decodes a JSON API document (or a mirror copy of one).
func DecodeProject(r io.Reader) (*Project, error) {
	var data apiResponse
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, err
	}
	p := data.project()
	return &p, nil
}

type apiResponse struct {
	Info     apiInfo           `json:"info"`
	Releases map[string][]File `json:"releases"`
}

type apiInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (r apiResponse) project() Project {
	releases := r.Releases
	if releases == nil {
		releases = map[string][]File{}
	}
	return Project{Name: r.Info.Name, Releases: releases}
}

type simpleIndex struct {
	Projects []struct {
		Name string `json:"name"`
	} `json:"projects"`
}
