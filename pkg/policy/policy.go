// Package policy exposes the input-policy gateway as scheduler actions,
// so that policy registration is serialized on the JS_POLICY lock.
package policy

import (
	"context"
	"fmt"

	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/aretw0/lockstep/pkg/locks"
	"github.com/aretw0/lockstep/pkg/ports"
	"github.com/aretw0/lockstep/pkg/scheduler"
)

// Action names, referenced from other descriptors' Transfers.
const (
	AddPointerPoliciesName    = "policy.addPointerPolicies"
	RemovePointerPoliciesName = "policy.removePointerPolicies"
)

// Actions holds the two gateway actions bound to one gateway.
type Actions struct {
	gateway ports.PolicyGateway

	// AddPointerPolicies takes []domain.PointerPolicy and yields a domain.PolicyID.
	AddPointerPolicies *scheduler.Action
	// RemovePointerPolicies takes a domain.PolicyID and yields nil.
	RemovePointerPolicies *scheduler.Action
}

// NewActions binds the gateway actions to gw.
func NewActions(gw ports.PolicyGateway) *Actions {
	a := &Actions{gateway: gw}
	a.AddPointerPolicies = scheduler.NewAction(domain.Descriptor{
		Name:   AddPointerPoliciesName,
		Reads:  []domain.Lock{locks.JSPolicy},
		Writes: []domain.Lock{locks.JSPolicy},
	}, a.add)
	a.RemovePointerPolicies = scheduler.NewAction(domain.Descriptor{
		Name:   RemovePointerPoliciesName,
		Reads:  []domain.Lock{locks.JSPolicy},
		Writes: []domain.Lock{locks.JSPolicy},
	}, a.remove)
	return a
}

// All returns both actions, for registration.
func (a *Actions) All() []*scheduler.Action {
	return []*scheduler.Action{a.AddPointerPolicies, a.RemovePointerPolicies}
}

// Gateway returns the bound gateway.
func (a *Actions) Gateway() ports.PolicyGateway {
	return a.gateway
}

func (a *Actions) add(ctx context.Context, _ *scheduler.Grant, args any) (any, error) {
	policies, ok := args.([]domain.PointerPolicy)
	if !ok {
		return nil, fmt.Errorf("%s: expected []domain.PointerPolicy, got %T", AddPointerPoliciesName, args)
	}
	id, err := a.gateway.AddPointerPolicies(ctx, policies)
	if err != nil {
		return nil, fmt.Errorf("add pointer policies: %w", err)
	}
	return id, nil
}

func (a *Actions) remove(ctx context.Context, _ *scheduler.Grant, args any) (any, error) {
	id, ok := args.(domain.PolicyID)
	if !ok {
		return nil, fmt.Errorf("%s: expected domain.PolicyID, got %T", RemovePointerPoliciesName, args)
	}
	if err := a.gateway.RemovePointerPolicies(ctx, id); err != nil {
		return nil, fmt.Errorf("remove pointer policies %s: %w", id, err)
	}
	return nil, nil
}

// NeverPropagatePointerDown is the policy a modal dialog installs: the primary
// pointer-down event goes to the UI layer instead of propagating to the application.
func NeverPropagatePointerDown() domain.PointerPolicy {
	return domain.PointerPolicy{
		Action:    domain.PolicyPropagateToUI,
		EventKind: domain.EventLeftMouseDown,
	}
}
