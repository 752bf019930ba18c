package scan

import (
	"sync"
	"time"
)

// ProgressSnapshot is a point-in-time view of a running scan.
type ProgressSnapshot struct {
	Running   bool      `json:"running"`
	Start     int       `json:"start"`
	End       int       `json:"end"`
	Index     int       `json:"index"`
	Package   string    `json:"package,omitempty"`
	Done      int       `json:"done"`
	Success   int       `json:"success"`
	Fail      int       `json:"fail"`
	Rate      float64   `json:"rate"` // packages per second
	StartedAt time.Time `json:"started_at"`
}

// Progress tracks a Driver's position. It is safe for concurrent use; the
// status server reads it while the driver writes.
type Progress struct {
	mu   sync.RWMutex
	snap ProgressSnapshot
}

// Snapshot returns the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

func (p *Progress) begin(start, end int, at time.Time) {
	p.mu.Lock()
	p.snap = ProgressSnapshot{Running: true, Start: start, End: end, Index: start, StartedAt: at}
	p.mu.Unlock()
}

func (p *Progress) item(idx int, pkg string, rate float64) {
	p.mu.Lock()
	p.snap.Index, p.snap.Package, p.snap.Rate = idx, pkg, rate
	p.mu.Unlock()
}

func (p *Progress) done(ok bool) {
	p.mu.Lock()
	p.snap.Done++
	if ok {
		p.snap.Success++
	} else {
		p.snap.Fail++
	}
	p.mu.Unlock()
}

func (p *Progress) finish() {
	p.mu.Lock()
	p.snap.Running = false
	p.snap.Package = ""
	p.mu.Unlock()
}
