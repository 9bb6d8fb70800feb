package upload

import "sync"

// ProgressFunc receives the bytes sent so far for one file.
type ProgressFunc func(path string, wrote, total int64)

// Progress accumulates transfer callbacks for a single file. Callbacks
// may arrive from several goroutines.
type Progress struct {
	path  string
	total int64
	fn    ProgressFunc

	mu    sync.Mutex
	wrote int64
}

// NewProgress creates a counter for a file of total bytes. fn may be nil.
func NewProgress(path string, total int64, fn ProgressFunc) *Progress {
	return &Progress{path: path, total: total, fn: fn}
}

// Add records delta more bytes. Some transfer clients read the whole file
// once before sending it; a positive delta arriving after the counter
// reached the total restarts the count.
func (p *Progress) Add(delta int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if delta > 0 && p.wrote == p.total {
		p.wrote = 0
	}
	p.wrote += delta

	if p.fn != nil {
		p.fn(p.path, p.wrote, p.total)
	}
}

// Wrote returns the bytes counted so far.
func (p *Progress) Wrote() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wrote
}

// Percent returns the share of the file sent, 100 for empty files.
func (p *Progress) Percent() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Percent(p.wrote, p.total)
}

// Percent returns wrote as a percentage of total, 100 when total is zero.
func Percent(wrote, total int64) float64 {
	if total <= 0 {
		return 100
	}
	return float64(wrote) / float64(total) * 100
}
