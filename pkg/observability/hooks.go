// Package observability lets a binary observe scans, analyzer runs, cache
// traffic and index requests without the libraries depending on a metrics
// backend.
//
// Libraries emit events through the registered hooks:
//
//	observability.Scan().OnItemStart(ctx, idx, pkg)
//
// Every category defaults to a no-op. A binary registers implementations
// once at startup, for example the debug-logging [LogHooks]:
//
//	observability.Install(observability.NewLogHooks(logger))
package observability

import (
	"context"
	"sync"
	"time"
)

// ScanHooks receives events from the batch scan driver.
type ScanHooks interface {
	OnItemStart(ctx context.Context, idx int, pkg string)
	OnItemComplete(ctx context.Context, idx int, pkg string, duration time.Duration, err error)
	OnResolveRetry(ctx context.Context, pkg string, reason error)
	OnGraphExtracted(ctx context.Context, pkg string, nodeCount, edgeCount int)
}

// AnalysisHooks receives events from the analyzer pool.
type AnalysisHooks interface {
	OnToolStart(ctx context.Context, tool, pkg string)
	OnToolComplete(ctx context.Context, tool, pkg string, exitCode int, duration time.Duration, err error)
}

// CacheHooks receives events from cache lookups. keyType names the entry
// kind ("metadata", or the client namespace for index responses).
type CacheHooks interface {
	OnCacheHit(ctx context.Context, keyType string)
	OnCacheMiss(ctx context.Context, keyType string)
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// HTTPHooks receives events from index requests.
type HTTPHooks interface {
	OnRequest(ctx context.Context, method, host, path string)
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)
	// OnError reports transport failures; HTTP error statuses go to
	// OnResponse.
	OnError(ctx context.Context, method, host, path string, err error)
}

// Hooks bundles all categories, for Install.
type Hooks interface {
	ScanHooks
	AnalysisHooks
	CacheHooks
	HTTPHooks
}

// NoopScanHooks ignores scan events.
type NoopScanHooks struct{}

func (NoopScanHooks) OnItemStart(context.Context, int, string)                          {}
func (NoopScanHooks) OnItemComplete(context.Context, int, string, time.Duration, error) {}
func (NoopScanHooks) OnResolveRetry(context.Context, string, error)                     {}
func (NoopScanHooks) OnGraphExtracted(context.Context, string, int, int)                {}

// NoopAnalysisHooks ignores analyzer events.
type NoopAnalysisHooks struct{}

func (NoopAnalysisHooks) OnToolStart(context.Context, string, string) {}
func (NoopAnalysisHooks) OnToolComplete(context.Context, string, string, int, time.Duration, error) {
}

// NoopCacheHooks ignores cache events.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks ignores request events.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

var (
	hooksMu       sync.RWMutex
	scanHooks     ScanHooks     = NoopScanHooks{}
	analysisHooks AnalysisHooks = NoopAnalysisHooks{}
	cacheHooks    CacheHooks    = NoopCacheHooks{}
	httpHooks     HTTPHooks     = NoopHTTPHooks{}
)

// Install registers h for every category. A nil h is ignored.
func Install(h Hooks) {
	if h == nil {
		return
	}
	hooksMu.Lock()
	defer hooksMu.Unlock()
	scanHooks, analysisHooks, cacheHooks, httpHooks = h, h, h, h
}

// SetScanHooks registers scan hooks. A nil h is ignored.
func SetScanHooks(h ScanHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		scanHooks = h
	}
}

// SetCacheHooks registers cache hooks. A nil h is ignored.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// Scan returns the registered scan hooks.
func Scan() ScanHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return scanHooks
}

// Analysis returns the registered analyzer hooks.
func Analysis() AnalysisHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return analysisHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores the no-op defaults.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	scanHooks = NoopScanHooks{}
	analysisHooks = NoopAnalysisHooks{}
	cacheHooks = NoopCacheHooks{}
	httpHooks = NoopHTTPHooks{}
}
