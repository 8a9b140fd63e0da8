// Package dialog tracks open dialogs and keeps pointer input away from the application
// while a modal dialog is showing.
//
// Every transition is a scheduler action writing JS_DIALOG in the modal class, so two
// dialogs never open or close at the same time. Modal dialogs transfer into the policy
// gateway actions to register and unregister their input policy.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/lockstep/internal/logging"
	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/aretw0/lockstep/pkg/locks"
	"github.com/aretw0/lockstep/pkg/policy"
	"github.com/aretw0/lockstep/pkg/ports"
	"github.com/aretw0/lockstep/pkg/scheduler"
	"golang.org/x/sync/errgroup"
)

// Action names.
const (
	OpenDialogName      = "dialog.openDialog"
	CloseDialogName     = "dialog.closeDialog"
	CloseAllDialogsName = "dialog.closeAllDialogs"
	OnResetName         = "dialog.onReset"
)

type openArgs struct {
	id        string
	dismissal *domain.DismissalPolicy
}

// Manager is the dialog state machine. Each dialog id is either closed or open.
type Manager struct {
	sched    *scheduler.Scheduler
	store    ports.DialogStore
	policies *policy.Actions
	record   *PolicyRecord
	logger   *slog.Logger

	open     *scheduler.Action
	close    *scheduler.Action
	closeAll *scheduler.Action
	reset    *scheduler.Action
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithPolicyRecord injects the record the Manager writes to.
func WithPolicyRecord(r *PolicyRecord) Option {
	return func(m *Manager) {
		m.record = r
	}
}

// NewManager builds the dialog actions and registers them with sched.
// The policy actions are registered too unless sched already knows them.
func NewManager(sched *scheduler.Scheduler, store ports.DialogStore, policies *policy.Actions, opts ...Option) (*Manager, error) {
	m := &Manager{
		sched:    sched,
		store:    store,
		policies: policies,
		record:   NewPolicyRecord(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.open = scheduler.NewAction(domain.Descriptor{
		Name:      OpenDialogName,
		Writes:    []domain.Lock{locks.JSDialog},
		Transfers: []string{policy.AddPointerPoliciesName},
		Modal:     true,
	}, m.openDialog)
	m.close = scheduler.NewAction(domain.Descriptor{
		Name:      CloseDialogName,
		Writes:    []domain.Lock{locks.JSDialog},
		Transfers: []string{policy.RemovePointerPoliciesName},
		Modal:     true,
	}, m.closeDialog)
	m.closeAll = scheduler.NewAction(domain.Descriptor{
		Name:   CloseAllDialogsName,
		Writes: []domain.Lock{locks.JSDialog},
		Modal:  true,
	}, m.closeAllDialogs)
	m.reset = scheduler.NewAction(domain.Descriptor{
		Name: OnResetName,
	}, m.onReset)

	// Policy actions may already be registered, but only as the very actions this manager
	// transfers into; a different binding would split callers across two gateways.
	for _, a := range policies.All() {
		if existing, ok := sched.Lookup(a.Name); ok {
			if existing != a {
				return nil, fmt.Errorf("%w: %s is bound to another gateway", domain.ErrDuplicateAction, a.Name)
			}
			continue
		}
		if err := sched.Register(a); err != nil {
			return nil, fmt.Errorf("failed to register policy actions: %w", err)
		}
	}
	if err := sched.Register(m.open, m.close, m.closeAll, m.reset); err != nil {
		return nil, fmt.Errorf("failed to register dialog actions: %w", err)
	}
	return m, nil
}

// Open schedules the opening of id.
func (m *Manager) Open(ctx context.Context, id string, dismissal *domain.DismissalPolicy) *scheduler.Future {
	return m.sched.Invoke(ctx, m.open, openArgs{id: id, dismissal: dismissal})
}

// Close schedules the closing of id.
func (m *Manager) Close(ctx context.Context, id string) *scheduler.Future {
	return m.sched.Invoke(ctx, m.close, id)
}

// CloseAll schedules the closing of every dialog.
func (m *Manager) CloseAll(ctx context.Context) *scheduler.Future {
	return m.sched.Invoke(ctx, m.closeAll, nil)
}

// Reset schedules the reset of the policy record.
func (m *Manager) Reset(ctx context.Context) *scheduler.Future {
	return m.sched.Invoke(ctx, m.reset, nil)
}

// OpenDialog opens id and waits for it.
// A nil dismissal policy is forwarded to the store as is.
func (m *Manager) OpenDialog(ctx context.Context, id string, dismissal *domain.DismissalPolicy) error {
	_, err := m.Open(ctx, id, dismissal).Wait(ctx)
	return err
}

// CloseDialog closes id and waits for it.
func (m *Manager) CloseDialog(ctx context.Context, id string) error {
	_, err := m.Close(ctx, id).Wait(ctx)
	return err
}

// CloseAllDialogs closes every dialog in the store and waits for it.
// Policies registered for open modal dialogs stay registered in the gateway and in the record.
func (m *Manager) CloseAllDialogs(ctx context.Context) error {
	_, err := m.CloseAll(ctx).Wait(ctx)
	return err
}

// OnReset empties the policy record and waits for it.
// Neither the store nor the gateway is told; their registrations are left in place.
func (m *Manager) OnReset(ctx context.Context) error {
	_, err := m.Reset(ctx).Wait(ctx)
	return err
}

// Policies returns a copy of the policy record.
func (m *Manager) Policies() map[string]domain.PolicyID {
	return m.record.Snapshot()
}

// Record returns the policy record.
func (m *Manager) Record() *PolicyRecord {
	return m.record
}

func (m *Manager) openDialog(ctx context.Context, g *scheduler.Grant, args any) (any, error) {
	a, ok := args.(openArgs)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected arguments %T", OpenDialogName, args)
	}

	// No context: both side effects always run to completion.
	var eg errgroup.Group
	eg.Go(func() error {
		if err := m.store.NotifyOpened(ctx, a.id, a.dismissal); err != nil {
			return fmt.Errorf("notify opened %s: %w", a.id, err)
		}
		return nil
	})

	modal, queryErr := m.store.IsModalDialog(a.id)
	if queryErr != nil {
		queryErr = fmt.Errorf("query modal dialog %s: %w", a.id, queryErr)
	} else if modal {
		eg.Go(func() error {
			res, err := g.Transfer(ctx, m.policies.AddPointerPolicies, []domain.PointerPolicy{policy.NeverPropagatePointerDown()})
			if err != nil {
				return err
			}
			pid, ok := res.(domain.PolicyID)
			if !ok {
				return fmt.Errorf("%s returned %T, want domain.PolicyID", policy.AddPointerPoliciesName, res)
			}
			if prev, replaced := m.record.Set(a.id, pid); replaced {
				m.logger.WarnContext(ctx, "Replacing policy of already open modal dialog", "dialog", a.id, "previous", prev, "policy", pid)
			}
			return nil
		})
	}

	err := eg.Wait()
	if queryErr != nil {
		return nil, errors.Join(queryErr, err)
	}
	if err != nil {
		return nil, err
	}
	m.logger.DebugContext(ctx, "dialog opened", "dialog", a.id, "modal", modal)
	return nil, nil
}

func (m *Manager) closeDialog(ctx context.Context, g *scheduler.Grant, args any) (any, error) {
	id, ok := args.(string)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected arguments %T", CloseDialogName, args)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		if err := m.store.NotifyClosed(ctx, id); err != nil {
			return fmt.Errorf("notify closed %s: %w", id, err)
		}
		return nil
	})

	if pid, found := m.record.Get(id); found {
		eg.Go(func() error {
			if _, err := g.Transfer(ctx, m.policies.RemovePointerPolicies, pid); err != nil {
				// the entry stays so that a later close can retry the removal
				return err
			}
			m.record.Delete(id)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	m.logger.DebugContext(ctx, "dialog closed", "dialog", id)
	return nil, nil
}

func (m *Manager) closeAllDialogs(ctx context.Context, _ *scheduler.Grant, _ any) (any, error) {
	if err := m.store.NotifyClosedAll(ctx); err != nil {
		return nil, fmt.Errorf("notify closed all: %w", err)
	}
	if n := m.record.Len(); n > 0 {
		m.logger.DebugContext(ctx, "closed all dialogs with registered policies", "policies", n)
	}
	return nil, nil
}

func (m *Manager) onReset(ctx context.Context, _ *scheduler.Grant, _ any) (any, error) {
	m.record.Clear()
	return nil, nil
}
