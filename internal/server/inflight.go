package server

import "sync"

// inflight tracks which operations are currently running, one flag per
// operation key.
type inflight struct {
	mu  sync.Mutex
	ops map[string]bool
}

func newInflight() *inflight {
	return &inflight{ops: make(map[string]bool)}
}

// begin marks op as running. It returns false if op already is.
func (f *inflight) begin(op string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ops[op] {
		return false
	}
	f.ops[op] = true
	return true
}

func (f *inflight) end(op string) {
	f.mu.Lock()
	delete(f.ops, op)
	f.mu.Unlock()
}

// running reports whether op is in flight.
func (f *inflight) running(op string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ops[op]
}
