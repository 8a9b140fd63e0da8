package dialog

import (
	"sync"

	"github.com/aretw0/lockstep/pkg/domain"
)

// PolicyRecord maps open modal dialog ids to the input policy registered for them.
//
// The mutex only keeps the map memory-safe. Open and close are serialized on JS_DIALOG;
// Clear runs from the lock-free reset action, so callers must ensure nothing is opening or
// closing dialogs when they reset.
type PolicyRecord struct {
	mu      sync.Mutex
	entries map[string]domain.PolicyID
}

// NewPolicyRecord creates an empty record.
func NewPolicyRecord() *PolicyRecord {
	return &PolicyRecord{entries: make(map[string]domain.PolicyID)}
}

func (r *PolicyRecord) Get(id string) (domain.PolicyID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.entries[id]
	return p, ok
}

// Set stores p under id and returns the identifier it replaced, if any.
func (r *PolicyRecord) Set(id string, p domain.PolicyID) (domain.PolicyID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.entries[id]
	r.entries[id] = p
	return prev, ok
}

func (r *PolicyRecord) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Clear drops every entry without touching the gateway.
func (r *PolicyRecord) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]domain.PolicyID)
}

// Snapshot returns a copy of the record.
func (r *PolicyRecord) Snapshot() map[string]domain.PolicyID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]domain.PolicyID, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

func (r *PolicyRecord) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
