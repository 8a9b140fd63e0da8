package ports

import (
	"context"

	"github.com/aretw0/lockstep/pkg/domain"
)

// PolicyGateway controls routing of low-level input events.
// It is stateful and can fail independently of the scheduler.
type PolicyGateway interface {
	// AddPointerPolicies registers a policy set and returns its identifier.
	AddPointerPolicies(ctx context.Context, policies []domain.PointerPolicy) (domain.PolicyID, error)

	// RemovePointerPolicies unregisters a policy set.
	// Returns domain.ErrPolicyNotFound if the identifier is unknown.
	RemovePointerPolicies(ctx context.Context, id domain.PolicyID) error

	// ListPolicies returns every registered policy set.
	ListPolicies(ctx context.Context) (map[domain.PolicyID][]domain.PointerPolicy, error)
}
