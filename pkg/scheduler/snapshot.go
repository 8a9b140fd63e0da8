package scheduler

import (
	"sort"
	"time"

	"github.com/aretw0/lockstep/pkg/domain"
)

// Entry describes one ticket in the grant table.
type Entry struct {
	InvocationID string        `json:"invocation_id"`
	Action       string        `json:"action"`
	Transfer     bool          `json:"transfer,omitempty"`
	Reads        []domain.Lock `json:"reads,omitempty"`
	Writes       []domain.Lock `json:"writes,omitempty"`
	Modal        bool          `json:"modal,omitempty"`
	Since        time.Time     `json:"since"`
}

// Snapshot is a point-in-time copy of the grant table.
type Snapshot struct {
	Running []Entry `json:"running"`
	Queued  []Entry `json:"queued"`
}

// Snapshot copies the grant table. Queued entries keep arrival order.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Running: make([]Entry, 0, len(s.running)),
		Queued:  make([]Entry, 0, len(s.queue)),
	}
	for t := range s.running {
		snap.Running = append(snap.Running, entryOf(t))
	}
	sort.Slice(snap.Running, func(i, j int) bool { return snap.Running[i].Since.Before(snap.Running[j].Since) })
	for _, t := range s.queue {
		snap.Queued = append(snap.Queued, entryOf(t))
	}
	return snap
}

func entryOf(t *ticket) Entry {
	e := Entry{
		InvocationID: t.id,
		Action:       t.action.Name,
		Transfer:     t.transfer,
		Modal:        t.hold.modal,
		Since:        t.queuedAt,
	}
	for l, a := range t.hold.access {
		switch a {
		case domain.AccessWrite:
			e.Writes = append(e.Writes, l)
		case domain.AccessRead:
			e.Reads = append(e.Reads, l)
		}
	}
	sortLocks(e.Reads)
	sortLocks(e.Writes)
	return e
}
