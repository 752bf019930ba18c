package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

type countingScanHooks struct {
	NoopScanHooks
	started int
}

func (h *countingScanHooks) OnItemStart(context.Context, int, string) { h.started++ }

func TestRegistry(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	if _, ok := Scan().(NoopScanHooks); !ok {
		t.Error("Scan() default is not a no-op")
	}
	if _, ok := Analysis().(NoopAnalysisHooks); !ok {
		t.Error("Analysis() default is not a no-op")
	}

	custom := &countingScanHooks{}
	SetScanHooks(custom)
	SetScanHooks(nil)
	Scan().OnItemStart(context.Background(), 0, "requests")
	if custom.started != 1 {
		t.Errorf("custom hooks saw %d starts, want 1", custom.started)
	}

	SetCacheHooks(nil)
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("SetCacheHooks(nil) replaced the default")
	}

	Reset()
	if Scan() == ScanHooks(custom) {
		t.Error("Reset() kept custom hooks")
	}
}

func TestLogHooks(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})
	Install(NewLogHooks(logger))
	Install(nil)

	ctx := context.Background()
	Scan().OnItemComplete(ctx, 3, "flask", time.Second, nil)
	Analysis().OnToolComplete(ctx, "bandit", "flask@2.0.1", 1, time.Second, errors.New("boom"))
	Cache().OnCacheMiss(ctx, "metadata")
	HTTP().OnResponse(ctx, "GET", "pypi.org", "/pypi/flask/json", 200, time.Millisecond)

	out := buf.String()
	for _, want := range []string{"item done", "package=flask", "tool done", "tool=bandit", "cache miss", "kind=metadata", "status=200"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output lacks %q:\n%s", want, out)
		}
	}

	buf.Reset()
	logger.SetLevel(log.InfoLevel)
	Cache().OnCacheHit(ctx, "metadata")
	if buf.Len() != 0 {
		t.Errorf("debug events logged at info level: %q", buf.String())
	}
}
