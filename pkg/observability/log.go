package observability

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// LogHooks writes every event to a logger at debug level.
type LogHooks struct {
	logger *log.Logger
}

// NewLogHooks returns hooks logging to logger.
func NewLogHooks(logger *log.Logger) *LogHooks {
	return &LogHooks{logger: logger.WithPrefix("events")}
}

var _ Hooks = (*LogHooks)(nil)

func (h *LogHooks) OnItemStart(_ context.Context, idx int, pkg string) {
	h.logger.Debug("item start", "idx", idx, "package", pkg)
}

func (h *LogHooks) OnItemComplete(_ context.Context, idx int, pkg string, d time.Duration, err error) {
	h.logger.Debug("item done", "idx", idx, "package", pkg, "duration", d, "ok", err == nil)
}

func (h *LogHooks) OnResolveRetry(_ context.Context, pkg string, reason error) {
	h.logger.Debug("resolve retry", "package", pkg, "reason", reason)
}

func (h *LogHooks) OnGraphExtracted(_ context.Context, pkg string, nodes, edges int) {
	h.logger.Debug("graph extracted", "package", pkg, "nodes", nodes, "edges", edges)
}

func (h *LogHooks) OnToolStart(_ context.Context, tool, pkg string) {
	h.logger.Debug("tool start", "tool", tool, "package", pkg)
}

func (h *LogHooks) OnToolComplete(_ context.Context, tool, pkg string, exitCode int, d time.Duration, err error) {
	h.logger.Debug("tool done", "tool", tool, "package", pkg, "exit", exitCode, "duration", d, "ok", err == nil)
}

func (h *LogHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "kind", keyType)
}

func (h *LogHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "kind", keyType)
}

func (h *LogHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache set", "kind", keyType, "bytes", size)
}

func (h *LogHooks) OnRequest(_ context.Context, method, host, path string) {
	h.logger.Debug("request", "method", method, "host", host, "path", path)
}

func (h *LogHooks) OnResponse(_ context.Context, method, host, path string, status int, d time.Duration) {
	h.logger.Debug("response", "method", method, "host", host, "path", path, "status", status, "duration", d)
}

func (h *LogHooks) OnError(_ context.Context, method, host, path string, err error) {
	h.logger.Debug("request failed", "method", method, "host", host, "path", path, "err", err)
}
