package scheduler

import (
	"context"

	"github.com/aretw0/lockstep/pkg/domain"
)

// Func is the body of an action. It runs while the declared locks are held.
type Func func(ctx context.Context, g *Grant, args any) (any, error)

// Action pairs a descriptor with its body.
type Action struct {
	domain.Descriptor
	Fn Func
}

// NewAction creates an Action from a descriptor and a body.
func NewAction(d domain.Descriptor, fn Func) *Action {
	return &Action{Descriptor: d, Fn: fn}
}

// holding is the set of rights a ticket claims in the grant table.
type holding struct {
	access map[domain.Lock]domain.Access
	modal  bool
}

func holdingOf(d domain.Descriptor) holding {
	return holding{access: d.Access(), modal: d.Modal}
}

func (h holding) empty() bool {
	return len(h.access) == 0 && !h.modal
}

func (h holding) conflicts(o holding) bool {
	if h.modal && o.modal {
		return true
	}
	small, large := h.access, o.access
	if len(small) > len(large) {
		small, large = large, small
	}
	for l, a := range small {
		if a.Conflicts(large[l]) {
			return true
		}
	}
	return false
}

// missing returns the part of need that h does not already cover.
func (h holding) missing(need holding) holding {
	out := holding{access: make(map[domain.Lock]domain.Access)}
	for l, a := range need.access {
		if !h.access[l].Covers(a) {
			out.access[l] = a
		}
	}
	out.modal = need.modal && !h.modal
	return out
}

func (h holding) union(o holding) holding {
	out := holding{access: make(map[domain.Lock]domain.Access, len(h.access)+len(o.access)), modal: h.modal || o.modal}
	for l, a := range h.access {
		out.access[l] = a
	}
	for l, a := range o.access {
		if a > out.access[l] {
			out.access[l] = a
		}
	}
	return out
}

// writes returns the written locks in lexical order.
func (h holding) writes() []domain.Lock {
	var out []domain.Lock
	for l, a := range h.access {
		if a == domain.AccessWrite {
			out = append(out, l)
		}
	}
	sortLocks(out)
	return out
}
