package integrations

import (
	"net/http"
	"time"

	"github.com/matzehuels/depscan/pkg/cache"
)

const httpTimeout = 60 * time.Second

var (
	// ErrNotFound is returned when a project or file doesn't exist in the index.
	ErrNotFound = cache.ErrNotFound

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = cache.ErrNetwork
)

// NewHTTPClient creates an HTTP client with a standard timeout for index
// requests. The timeout also bounds artifact downloads, so it is generous.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}
