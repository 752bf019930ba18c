package resolve

import (
	"sync"

	"github.com/matzehuels/depscan/pkg/pkgname"
	"github.com/matzehuels/depscan/pkg/source"
)

// SourceRecord is one artifact metadata was read from.
type SourceRecord struct {
	URL        string `json:"url"`
	UploadTime string `json:"upload_time"`
}

// SourceTracker records, per package version, the artifacts its metadata
// came from. It is safe for concurrent use.
type SourceTracker struct {
	mu      sync.Mutex
	records map[string][]SourceRecord
}

// NewSourceTracker returns an empty tracker.
func NewSourceTracker() *SourceTracker {
	return &SourceTracker{records: make(map[string][]SourceRecord)}
}

func trackerKey(name, version string) string {
	return pkgname.Canonicalize(name) + "@" + version
}

// Record stores files as the sources of name at version, replacing any
// earlier record.
func (t *SourceTracker) Record(name, version string, files []source.FileAsset) {
	recs := make([]SourceRecord, 0, len(files))
	for _, f := range files {
		recs = append(recs, SourceRecord{URL: f.URL, UploadTime: f.UploadTime})
	}
	t.mu.Lock()
	t.records[trackerKey(name, version)] = recs
	t.mu.Unlock()
}

// Sources returns the recorded artifacts of name at version.
func (t *SourceTracker) Sources(name, version string) []SourceRecord {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SourceRecord(nil), t.records[trackerKey(name, version)]...)
}

// URLs returns the source URLs of name at version.
func (t *SourceTracker) URLs(name, version string) []string {
	recs := t.Sources(name, version)
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.URL
	}
	return out
}

// ReleaseDates returns the upload time of each URL reported by URLs.
func (t *SourceTracker) ReleaseDates(name, version string) []string {
	recs := t.Sources(name, version)
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.UploadTime
	}
	return out
}
