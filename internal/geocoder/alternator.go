package geocoder

import "sync"

// Alternator is the even/odd counter that alternates between two fixed
// domestic-office coordinates for non-Kazakhstan addresses (§4.E rule
// 2) and as the final fallback when every live lookup fails. It is
// explicitly per-batch state owned by the orchestrator and threaded
// into every Resolve call for that batch — resolving OQ-2, which flags
// the source implementation's module-global counter as something "a
// reimplementation should scope… per-batch." No package-level counter
// exists here.
type Alternator struct {
	mu    sync.Mutex
	count int
}

func NewAlternator() *Alternator {
	return &Alternator{}
}

// Next returns true on every other call, alternating starting at false
// (even).
func (a *Alternator) Next() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	odd := a.count%2 == 1
	a.count++
	return odd
}
