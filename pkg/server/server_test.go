package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/matzehuels/depscan/pkg/scan"
)

type fixedProgress scan.ProgressSnapshot

func (p fixedProgress) Snapshot() scan.ProgressSnapshot { return scan.ProgressSnapshot(p) }

func get(t *testing.T, srv *httptest.Server, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("GET %s: decode: %v", path, err)
	}
	return resp, body
}

func TestServer(t *testing.T) {
	dataDir := t.TempDir()
	artifact := []byte(`{"root_pkg": "six", "dep_info": {}}`)
	if err := os.WriteFile(filepath.Join(dataDir, "six@1.16.0.json"), artifact, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(Options{
		DataDir:  dataDir,
		Progress: fixedProgress{Running: true, Start: 10, End: 20, Index: 12, Package: "six", Done: 2, Success: 1, Fail: 1},
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, body := get(t, srv, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz status = %d", resp.StatusCode)
	}
	var health struct {
		Status string `json:"status"`
		Build  struct {
			Version string `json:"version"`
		} `json:"build"`
	}
	if err := json.Unmarshal(body, &health); err != nil || health.Status != "ok" || health.Build.Version == "" {
		t.Errorf("/healthz = %s (%v)", body, err)
	}

	_, body = get(t, srv, "/progress")
	var snap scan.ProgressSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Index != 12 || snap.Package != "six" || snap.Fail != 1 || !snap.Running {
		t.Errorf("/progress = %+v", snap)
	}

	_, body = get(t, srv, "/artifacts")
	var names []string
	if err := json.Unmarshal(body, &names); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(names, []string{"six@1.16.0.json"}) {
		t.Errorf("/artifacts = %v", names)
	}

	resp, body = get(t, srv, "/artifacts/six@1.16.0.json")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/json" {
		t.Errorf("artifact status = %d, type = %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	var dump map[string]any
	if err := json.Unmarshal(body, &dump); err != nil || dump["root_pkg"] != "six" {
		t.Errorf("artifact = %s", body)
	}

	tests := []struct {
		path   string
		status int
	}{
		{"/artifacts/missing@1.0.json", http.StatusNotFound},
		{"/artifacts/notes.txt", http.StatusBadRequest},
		{"/artifacts/..%2Fsecret.json", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, _ := get(t, srv, tt.path)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestServerWithoutScan(t *testing.T) {
	srv := httptest.NewServer(New(Options{DataDir: filepath.Join(t.TempDir(), "missing")}).Handler())
	defer srv.Close()

	if resp, _ := get(t, srv, "/progress"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("/progress status = %d, want 503", resp.StatusCode)
	}
	if resp, _ := get(t, srv, "/artifacts"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("/artifacts status = %d, want 404", resp.StatusCode)
	}
}
