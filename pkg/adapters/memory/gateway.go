package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/rs/xid"
)

// PolicyGateway implements ports.PolicyGateway in memory.
// Safe for concurrent use.
type PolicyGateway struct {
	mu       sync.RWMutex
	policies map[domain.PolicyID][]domain.PointerPolicy
	adds     int
	removes  int
}

// NewPolicyGateway creates an empty gateway.
func NewPolicyGateway() *PolicyGateway {
	return &PolicyGateway{
		policies: make(map[domain.PolicyID][]domain.PointerPolicy),
	}
}

// AddPointerPolicies registers a copy of policies under a fresh identifier.
func (g *PolicyGateway) AddPointerPolicies(ctx context.Context, policies []domain.PointerPolicy) (domain.PolicyID, error) {
	id := domain.PolicyID(xid.New().String())
	cp := make([]domain.PointerPolicy, len(policies))
	copy(cp, policies)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.adds++
	g.policies[id] = cp
	return id, nil
}

// RemovePointerPolicies unregisters id.
func (g *PolicyGateway) RemovePointerPolicies(ctx context.Context, id domain.PolicyID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removes++
	if _, ok := g.policies[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrPolicyNotFound, id)
	}
	delete(g.policies, id)
	return nil
}

// ListPolicies returns a copy of every registered policy set.
func (g *PolicyGateway) ListPolicies(ctx context.Context) (map[domain.PolicyID][]domain.PointerPolicy, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[domain.PolicyID][]domain.PointerPolicy, len(g.policies))
	for id, p := range g.policies {
		out[id] = append([]domain.PointerPolicy(nil), p...)
	}
	return out, nil
}

// Calls returns how many add and remove calls the gateway received.
func (g *PolicyGateway) Calls() (adds, removes int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.adds, g.removes
}
