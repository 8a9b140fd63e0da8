package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/aretw0/lockstep/pkg/domain"
)

// Grant is the capability token handed to a running action body.
// It proves which locks the body (and every action that delegated to it) already holds.
type Grant struct {
	s        *Scheduler
	action   *Action
	id       string
	held     holding
	chain    []*ticket
	transfer bool
	released atomic.Bool
}

// InvocationID identifies the top-level invocation this grant belongs to.
func (g *Grant) InvocationID() string {
	return g.id
}

// Action returns the descriptor of the running action.
func (g *Grant) Action() domain.Descriptor {
	return g.action.Descriptor
}

// Holds reports whether the grant covers access a to lock l.
func (g *Grant) Holds(l domain.Lock, a domain.Access) bool {
	return g.held.access[l].Covers(a)
}

// Modal reports whether the grant occupies the modal slot.
func (g *Grant) Modal() bool {
	return g.held.modal
}

// Transfer runs target's body on behalf of the current action.
// Locks already held are reused; only the missing part is queued for, exactly like a
// fresh invocation except that the current chain never blocks it. The current grant
// stays held until both the transfer and the current body return.
func (g *Grant) Transfer(ctx context.Context, target *Action, args any) (any, error) {
	if g.released.Load() {
		return nil, fmt.Errorf("%w: %s transferring to %s", domain.ErrGrantReleased, g.action.Name, target.Name)
	}
	if !g.action.CanTransfer(target.Name) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrTransferNotDeclared, g.action.Name, target.Name)
	}
	if err := g.s.validate(target); err != nil {
		return nil, err
	}

	delta := g.held.missing(holdingOf(target.Descriptor))
	if delta.empty() {
		child := &Grant{s: g.s, action: target, id: g.id, held: g.held, chain: g.chain, transfer: true}
		return g.s.execute(ctx, nil, child, args)
	}

	t := g.s.newTicket(target, delta, g.chain, true)
	g.s.enqueue(ctx, t)
	<-t.ready

	chain := make([]*ticket, len(g.chain), len(g.chain)+1)
	copy(chain, g.chain)
	child := &Grant{s: g.s, action: target, id: g.id, held: g.held.union(delta), chain: append(chain, t), transfer: true}
	return g.s.execute(ctx, t, child, args)
}
