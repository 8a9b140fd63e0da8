package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aretw0/lockstep/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// PolicyGateway implements ports.PolicyGateway on a Redis hash, so that several
// processes see the same set of registered input policies.
type PolicyGateway struct {
	client *backend.Client
	prefix string
}

// Option configures the PolicyGateway.
type Option func(*PolicyGateway)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(g *PolicyGateway) {
		g.prefix = prefix
	}
}

// New creates a gateway with its own client.
func New(address, password string, db int, opts ...Option) *PolicyGateway {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a gateway from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *PolicyGateway {
	g := &PolicyGateway{
		client: client,
		prefix: "lockstep:",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Client returns the underlying client, e.g. to build a Locker sharing the connection.
func (g *PolicyGateway) Client() *backend.Client {
	return g.client
}

func (g *PolicyGateway) hashKey() string {
	return g.prefix + "policies"
}

func (g *PolicyGateway) seqKey() string {
	return g.prefix + "policy:seq"
}

// AddPointerPolicies stores policies under the next sequence number.
func (g *PolicyGateway) AddPointerPolicies(ctx context.Context, policies []domain.PointerPolicy) (domain.PolicyID, error) {
	data, err := json.Marshal(policies)
	if err != nil {
		return "", fmt.Errorf("failed to marshal policies: %w", err)
	}

	seq, err := g.client.Incr(ctx, g.seqKey()).Result()
	if err != nil {
		return "", fmt.Errorf("failed to allocate policy id: %w", err)
	}
	id := domain.PolicyID(strconv.FormatInt(seq, 10))

	if err := g.client.HSet(ctx, g.hashKey(), string(id), data).Err(); err != nil {
		return "", fmt.Errorf("failed to store policy %s: %w", id, err)
	}
	return id, nil
}

// RemovePointerPolicies deletes id from the hash.
func (g *PolicyGateway) RemovePointerPolicies(ctx context.Context, id domain.PolicyID) error {
	n, err := g.client.HDel(ctx, g.hashKey(), string(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to remove policy %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrPolicyNotFound, id)
	}
	return nil
}

// ListPolicies decodes the whole hash.
func (g *PolicyGateway) ListPolicies(ctx context.Context) (map[domain.PolicyID][]domain.PointerPolicy, error) {
	raw, err := g.client.HGetAll(ctx, g.hashKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}

	out := make(map[domain.PolicyID][]domain.PointerPolicy, len(raw))
	for id, data := range raw {
		var policies []domain.PointerPolicy
		if err := json.Unmarshal([]byte(data), &policies); err != nil {
			return nil, fmt.Errorf("failed to decode policy %s: %w", id, err)
		}
		out[domain.PolicyID(id)] = policies
	}
	return out, nil
}
