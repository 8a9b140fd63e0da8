package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/aretw0/lockstep/pkg/locks"
	"github.com/aretw0/lockstep/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, *scheduler.Grant, any) (any, error) { return nil, nil }

func TestTransfer_ReusesHeldLocks(t *testing.T) {
	s := scheduler.New()

	inner := scheduler.NewAction(domain.Descriptor{Name: "inner", Writes: []domain.Lock{locks.JSDialog}, Modal: true},
		func(_ context.Context, g *scheduler.Grant, args any) (any, error) {
			assert.True(t, g.Holds(locks.JSDialog, domain.AccessWrite))
			assert.True(t, g.Modal())
			return args.(int) * 2, nil
		})
	outer := scheduler.NewAction(domain.Descriptor{
		Name:      "outer",
		Writes:    []domain.Lock{locks.JSDialog},
		Transfers: []string{"inner"},
		Modal:     true,
	}, func(ctx context.Context, g *scheduler.Grant, args any) (any, error) {
		// Would self-deadlock if the transfer queued for JS_DIALOG or the modal slot.
		return g.Transfer(ctx, inner, args)
	})

	res, err := wait(t, s.Invoke(context.Background(), outer, 21))
	require.NoError(t, err)
	assert.Equal(t, 42, res)
}

func TestTransfer_QueuesForMissingLocksOnly(t *testing.T) {
	s := scheduler.New()
	ctx := context.Background()

	// Another action holds JS_POLICY, so the transfer must wait for it.
	holder := newGate()
	fHolder := s.Invoke(ctx, holder.action(domain.Descriptor{Name: "holder", Writes: []domain.Lock{locks.JSPolicy}}), nil)
	expectStart(t, holder.started, "holder")

	target := scheduler.NewAction(domain.Descriptor{Name: "target", Writes: []domain.Lock{locks.JSPolicy}},
		func(_ context.Context, g *scheduler.Grant, _ any) (any, error) {
			assert.True(t, g.Holds(locks.JSPolicy, domain.AccessWrite))
			assert.True(t, g.Holds(locks.JSDialog, domain.AccessWrite), "inherited from the delegator")
			return "transferred", nil
		})
	transferred := make(chan struct{})
	parent := scheduler.NewAction(domain.Descriptor{Name: "parent", Writes: []domain.Lock{locks.JSDialog}, Transfers: []string{"target"}},
		func(ctx context.Context, g *scheduler.Grant, _ any) (any, error) {
			res, err := g.Transfer(ctx, target, nil)
			close(transferred)
			return res, err
		})
	fParent := s.Invoke(ctx, parent, nil)

	// The transfer delta is queued behind the holder.
	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return len(snap.Queued) == 1 && snap.Queued[0].Transfer && snap.Queued[0].Action == "target"
	}, timeout, time.Millisecond)
	assert.Equal(t, []domain.Lock{locks.JSPolicy}, s.Snapshot().Queued[0].Writes, "only the missing lock is requested")

	// The delegator keeps JS_DIALOG while its transfer waits.
	dialogUser := newGate()
	fDialog := s.Invoke(ctx, dialogUser.action(domain.Descriptor{Name: "dialog-user", Writes: []domain.Lock{locks.JSDialog}}), nil)
	expectIdle(t, dialogUser.started)

	close(holder.release)
	<-transferred
	res, err := wait(t, fParent)
	require.NoError(t, err)
	assert.Equal(t, "transferred", res)

	expectStart(t, dialogUser.started, "dialog-user")
	close(dialogUser.release)
	require.NoError(t, scheduler.WaitAll(ctx, fHolder, fDialog))
}

func TestTransfer_NotBlockedByWaitersOfItsOwnChain(t *testing.T) {
	s := scheduler.New()
	ctx := context.Background()

	target := scheduler.NewAction(domain.Descriptor{Name: "policy", Writes: []domain.Lock{locks.JSPolicy}}, noop)
	release := make(chan struct{})
	parent := scheduler.NewAction(domain.Descriptor{Name: "open", Writes: []domain.Lock{locks.JSDialog}, Transfers: []string{"policy"}, Modal: true},
		func(ctx context.Context, g *scheduler.Grant, _ any) (any, error) {
			<-release
			return g.Transfer(ctx, target, nil)
		})
	fParent := s.Invoke(ctx, parent, nil)

	// Queued behind the parent, and would also conflict with the transfer on JS_POLICY.
	rival := scheduler.NewAction(domain.Descriptor{Name: "close", Writes: []domain.Lock{locks.JSDialog, locks.JSPolicy}, Modal: true}, noop)
	fRival := s.Invoke(ctx, rival, nil)
	require.Len(t, s.Snapshot().Queued, 1)

	close(release)
	require.NoError(t, scheduler.WaitAll(ctx, fParent, fRival))
}

func TestTransfer_NotBlockedByWaitersQueuedBehindItsChain(t *testing.T) {
	s := scheduler.New()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	target := scheduler.NewAction(domain.Descriptor{Name: "policy", Writes: []domain.Lock{locks.JSPolicy}}, noop)
	release := make(chan struct{})
	parent := scheduler.NewAction(domain.Descriptor{Name: "dialog", Writes: []domain.Lock{locks.JSDialog}, Transfers: []string{"policy"}, Modal: true},
		func(ctx context.Context, g *scheduler.Grant, _ any) (any, error) {
			<-release
			return g.Transfer(ctx, target, nil)
		})
	fParent := s.Invoke(ctx, parent, nil)

	// q0 waits on the parent; q1 only waits on q0 but would conflict with the transfer.
	q0 := scheduler.NewAction(domain.Descriptor{Name: "q0", Writes: []domain.Lock{locks.JSDialog, locks.JSApp}}, noop)
	q1 := scheduler.NewAction(domain.Descriptor{Name: "q1", Writes: []domain.Lock{locks.JSApp, locks.JSPolicy}}, noop)
	f0 := s.Invoke(ctx, q0, nil)
	f1 := s.Invoke(ctx, q1, nil)
	require.Len(t, s.Snapshot().Queued, 2)

	close(release)
	require.NoError(t, scheduler.WaitAll(ctx, fParent, f0, f1), "snapshot: %+v", s.Snapshot())
	assert.Empty(t, s.Snapshot().Running)
	assert.Empty(t, s.Snapshot().Queued)
}

// TestTransfer_SettlesUnderLoad mixes modal parents that transfer (some through a nested
// transfer) with unrelated writers and readers, and checks every invocation settles.
func TestTransfer_SettlesUnderLoad(t *testing.T) {
	s := scheduler.New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sleeper := func(d time.Duration) scheduler.Func {
		return func(context.Context, *scheduler.Grant, any) (any, error) {
			time.Sleep(d)
			return nil, nil
		}
	}

	policyAct := scheduler.NewAction(domain.Descriptor{Name: "policy", Writes: []domain.Lock{locks.JSPolicy}}, sleeper(50*time.Microsecond))
	appAct := scheduler.NewAction(domain.Descriptor{
		Name:      "app",
		Reads:     []domain.Lock{locks.JSDoc},
		Writes:    []domain.Lock{locks.JSApp},
		Transfers: []string{"policy"},
	}, func(ctx context.Context, g *scheduler.Grant, _ any) (any, error) {
		return g.Transfer(ctx, policyAct, nil)
	})
	targets := []*scheduler.Action{policyAct, appAct}
	pool := []domain.Lock{locks.JSDialog, locks.JSPolicy, locks.JSApp, locks.JSDoc}

	rng := rand.New(rand.NewSource(11))
	var futures []*scheduler.Future
	for i := 0; i < 300; i++ {
		name := fmt.Sprintf("a%d", i)
		switch rng.Intn(3) {
		case 0:
			plan := []*scheduler.Action{targets[rng.Intn(len(targets))]}
			if rng.Intn(2) == 0 {
				plan = append(plan, targets[rng.Intn(len(targets))])
			}
			d := domain.Descriptor{Name: name, Writes: []domain.Lock{locks.JSDialog}, Transfers: []string{"policy", "app"}, Modal: true}
			if rng.Intn(2) == 0 {
				d.Reads = append(d.Reads, locks.JSPolicy)
			}
			futures = append(futures, s.Invoke(ctx, scheduler.NewAction(d, func(ctx context.Context, g *scheduler.Grant, _ any) (any, error) {
				for _, target := range plan {
					if _, err := g.Transfer(ctx, target, nil); err != nil {
						return nil, err
					}
				}
				return nil, nil
			}), nil))
		case 1:
			d := domain.Descriptor{Name: name, Writes: []domain.Lock{pool[1+rng.Intn(len(pool)-1)]}}
			if rng.Intn(2) == 0 {
				d.Reads = append(d.Reads, locks.JSDialog)
			}
			futures = append(futures, s.Invoke(ctx, scheduler.NewAction(d, sleeper(time.Duration(rng.Intn(100))*time.Microsecond)), nil))
		default:
			d := domain.Descriptor{Name: name}
			for _, l := range pool {
				if rng.Intn(2) == 0 {
					d.Reads = append(d.Reads, l)
				}
			}
			futures = append(futures, s.Invoke(ctx, scheduler.NewAction(d, sleeper(time.Duration(rng.Intn(100))*time.Microsecond)), nil))
		}
	}

	require.NoError(t, scheduler.WaitAll(ctx, futures...), "snapshot: %+v", s.Snapshot())
	assert.Empty(t, s.Snapshot().Running)
	assert.Empty(t, s.Snapshot().Queued)
}

func TestTransfer_UndeclaredTarget(t *testing.T) {
	s := scheduler.New()
	target := scheduler.NewAction(domain.Descriptor{Name: "target"}, noop)
	parent := scheduler.NewAction(domain.Descriptor{Name: "parent"},
		func(ctx context.Context, g *scheduler.Grant, _ any) (any, error) {
			return g.Transfer(ctx, target, nil)
		})

	_, err := wait(t, s.Invoke(context.Background(), parent, nil))
	assert.ErrorIs(t, err, domain.ErrTransferNotDeclared)
}

func TestTransfer_AfterReleaseIsRejected(t *testing.T) {
	s := scheduler.New()
	target := scheduler.NewAction(domain.Descriptor{Name: "target"}, noop)

	var leaked *scheduler.Grant
	parent := scheduler.NewAction(domain.Descriptor{Name: "parent", Transfers: []string{"target"}},
		func(_ context.Context, g *scheduler.Grant, _ any) (any, error) {
			leaked = g
			return nil, nil
		})
	_, err := wait(t, s.Invoke(context.Background(), parent, nil))
	require.NoError(t, err)

	_, err = leaked.Transfer(context.Background(), target, nil)
	assert.ErrorIs(t, err, domain.ErrGrantReleased)
}

func TestTransfer_FailurePropagatesUnchanged(t *testing.T) {
	s := scheduler.New()
	ctx := context.Background()
	boom := errors.New("gateway rejected policy")

	target := scheduler.NewAction(domain.Descriptor{Name: "target", Writes: []domain.Lock{locks.JSPolicy}},
		func(context.Context, *scheduler.Grant, any) (any, error) { return nil, boom })
	parent := scheduler.NewAction(domain.Descriptor{Name: "parent", Writes: []domain.Lock{locks.JSDialog}, Transfers: []string{"target"}},
		func(ctx context.Context, g *scheduler.Grant, _ any) (any, error) {
			return g.Transfer(ctx, target, nil)
		})

	_, err := wait(t, s.Invoke(ctx, parent, nil))
	assert.ErrorIs(t, err, boom)

	// Both the delegator's and the delta's locks are free again.
	both := scheduler.NewAction(domain.Descriptor{Name: "both", Writes: []domain.Lock{locks.JSDialog, locks.JSPolicy}}, noop)
	_, err = wait(t, s.Invoke(ctx, both, nil))
	assert.NoError(t, err)
	assert.Empty(t, s.Snapshot().Running)
}

func TestTransfer_ReadUpgradeIsQueued(t *testing.T) {
	s := scheduler.New()
	ctx := context.Background()

	reader := newGate()
	fReader := s.Invoke(ctx, reader.action(domain.Descriptor{Name: "other-reader", Reads: []domain.Lock{locks.JSDoc}}), nil)
	expectStart(t, reader.started, "other-reader")

	writer := scheduler.NewAction(domain.Descriptor{Name: "writer", Writes: []domain.Lock{locks.JSDoc}}, noop)
	parent := scheduler.NewAction(domain.Descriptor{Name: "parent", Reads: []domain.Lock{locks.JSDoc}, Transfers: []string{"writer"}},
		func(ctx context.Context, g *scheduler.Grant, _ any) (any, error) {
			return g.Transfer(ctx, writer, nil)
		})
	fParent := s.Invoke(ctx, parent, nil)

	// The parent's own read never blocks its upgrade, but the other reader does.
	require.Eventually(t, func() bool { return len(s.Snapshot().Queued) == 1 }, timeout, time.Millisecond)

	close(reader.release)
	require.NoError(t, scheduler.WaitAll(ctx, fReader, fParent))
}

func TestTransfer_ModalTargetFromNonModalCaller(t *testing.T) {
	s := scheduler.New()
	ctx := context.Background()

	modal := newGate()
	fModal := s.Invoke(ctx, modal.action(domain.Descriptor{Name: "modal", Modal: true}), nil)
	expectStart(t, modal.started, "modal")

	target := scheduler.NewAction(domain.Descriptor{Name: "modal-target", Modal: true},
		func(_ context.Context, g *scheduler.Grant, _ any) (any, error) {
			assert.True(t, g.Modal())
			return nil, nil
		})
	parent := scheduler.NewAction(domain.Descriptor{Name: "plain", Transfers: []string{"modal-target"}},
		func(ctx context.Context, g *scheduler.Grant, _ any) (any, error) {
			return g.Transfer(ctx, target, nil)
		})
	fParent := s.Invoke(ctx, parent, nil)
	require.Eventually(t, func() bool {
		q := s.Snapshot().Queued
		return len(q) == 1 && q[0].Modal
	}, timeout, time.Millisecond)

	close(modal.release)
	require.NoError(t, scheduler.WaitAll(ctx, fModal, fParent))
}
