package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunPolicyGatewayContract runs a suite of tests to verify that a PolicyGateway implementation
// adheres to the defined interface contract. The gateway must start empty.
func RunPolicyGatewayContract(t *testing.T, gw PolicyGateway) {
	ctx := context.Background()
	spec := []domain.PointerPolicy{
		{Action: domain.PolicyPropagateToUI, EventKind: domain.EventLeftMouseDown},
	}

	t.Run("Add and List", func(t *testing.T) {
		id, err := gw.AddPointerPolicies(ctx, spec)
		require.NoError(t, err, "AddPointerPolicies should not return error")
		require.NotEmpty(t, id)
		defer func() { _ = gw.RemovePointerPolicies(ctx, id) }()

		all, err := gw.ListPolicies(ctx)
		require.NoError(t, err)
		assert.Equal(t, spec, all[id])
	})

	t.Run("Distinct Identifiers", func(t *testing.T) {
		id1, err := gw.AddPointerPolicies(ctx, spec)
		require.NoError(t, err)
		id2, err := gw.AddPointerPolicies(ctx, spec)
		require.NoError(t, err)
		defer func() {
			_ = gw.RemovePointerPolicies(ctx, id1)
			_ = gw.RemovePointerPolicies(ctx, id2)
		}()

		assert.NotEqual(t, id1, id2, "every registration gets its own identifier")
	})

	t.Run("Remove", func(t *testing.T) {
		id, err := gw.AddPointerPolicies(ctx, spec)
		require.NoError(t, err)

		require.NoError(t, gw.RemovePointerPolicies(ctx, id), "RemovePointerPolicies should not return error")

		all, err := gw.ListPolicies(ctx)
		require.NoError(t, err)
		assert.NotContains(t, all, id)
	})

	t.Run("Remove Unknown", func(t *testing.T) {
		err := gw.RemovePointerPolicies(ctx, "never-registered")
		assert.ErrorIs(t, err, domain.ErrPolicyNotFound)
	})
}

// RunDistributedLockerContract verifies the blocking and release semantics shared by every
// DistributedLocker. Keys are namespaced under "contract:" and released before returning.
func RunDistributedLockerContract(t *testing.T, locker DistributedLocker) {
	ctx := context.Background()
	const ttl = 5 * time.Second

	t.Run("Lock and Relock", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, "contract:a", ttl)
		require.NoError(t, err)
		require.NoError(t, unlock(ctx))

		unlock, err = locker.Lock(ctx, "contract:a", ttl)
		require.NoError(t, err, "a released key should be lockable again")
		require.NoError(t, unlock(ctx))
	})

	t.Run("Contended Lock Honors Context", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, "contract:b", ttl)
		require.NoError(t, err)
		defer func() { _ = unlock(ctx) }()

		waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(waitCtx, "contract:b", ttl)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("Distinct Keys Are Independent", func(t *testing.T) {
		unlock1, err := locker.Lock(ctx, "contract:c1", ttl)
		require.NoError(t, err)
		defer func() { _ = unlock1(ctx) }()

		waitCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		unlock2, err := locker.Lock(waitCtx, "contract:c2", ttl)
		require.NoError(t, err)
		require.NoError(t, unlock2(ctx))
	})

	t.Run("Waiter Acquires After Unlock", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, "contract:d", ttl)
		require.NoError(t, err)

		got := make(chan error, 1)
		go func() {
			waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			u, err := locker.Lock(waitCtx, "contract:d", ttl)
			if err == nil {
				err = u(ctx)
			}
			got <- err
		}()

		time.Sleep(50 * time.Millisecond)
		require.NoError(t, unlock(ctx))
		assert.NoError(t, <-got)
	})

	t.Run("Double Unlock Is Harmless", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, "contract:e", ttl)
		require.NoError(t, err)
		require.NoError(t, unlock(ctx))
		assert.NoError(t, unlock(ctx))
	})
}
