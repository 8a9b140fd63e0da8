package domain

import "sort"

// Descriptor is the static metadata attached to an action definition.
// It is a pure declaration: the scheduler reads it, nothing mutates it.
type Descriptor struct {
	// Name identifies the action. Transfers refer to targets by Name.
	Name string `json:"name"`

	// Reads lists the locks the action reads.
	Reads []Lock `json:"reads,omitempty"`

	// Writes lists the locks the action writes. A write implies read access,
	// so a lock may appear in both lists.
	Writes []Lock `json:"writes,omitempty"`

	// Transfers lists the names of the actions this action may delegate to.
	Transfers []string `json:"transfers,omitempty"`

	// Modal places the action in the global modal exclusivity class.
	Modal bool `json:"modal,omitempty"`
}

// Access collapses Reads and Writes into one access level per lock.
func (d Descriptor) Access() map[Lock]Access {
	out := make(map[Lock]Access, len(d.Reads)+len(d.Writes))
	for _, l := range d.Reads {
		if out[l] < AccessRead {
			out[l] = AccessRead
		}
	}
	for _, l := range d.Writes {
		out[l] = AccessWrite
	}
	return out
}

// Locks returns every lock the descriptor names, sorted and deduplicated.
func (d Descriptor) Locks() []Lock {
	acc := d.Access()
	out := make([]Lock, 0, len(acc))
	for l := range acc {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CanTransfer reports whether target is listed in Transfers.
func (d Descriptor) CanTransfer(target string) bool {
	for _, t := range d.Transfers {
		if t == target {
			return true
		}
	}
	return false
}
