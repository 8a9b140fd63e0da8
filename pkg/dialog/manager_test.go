package dialog_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/lockstep/pkg/adapters/memory"
	"github.com/aretw0/lockstep/pkg/dialog"
	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/aretw0/lockstep/pkg/locks"
	"github.com/aretw0/lockstep/pkg/policy"
	"github.com/aretw0/lockstep/pkg/ports"
	"github.com/aretw0/lockstep/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	m     *dialog.Manager
	store *memory.DialogStore
	gw    *memory.PolicyGateway
	sched *scheduler.Scheduler
}

func newFixture(t *testing.T, store ports.DialogStore, gw ports.PolicyGateway) *dialog.Manager {
	t.Helper()
	sched := scheduler.New()
	m, err := dialog.NewManager(sched, store, policy.NewActions(gw))
	require.NoError(t, err)
	return m
}

func newMemoryFixture(t *testing.T, modal ...string) fixture {
	t.Helper()
	store := memory.NewDialogStore(memory.WithModalDialogs(modal...))
	gw := memory.NewPolicyGateway()
	sched := scheduler.New()
	m, err := dialog.NewManager(sched, store, policy.NewActions(gw))
	require.NoError(t, err)
	return fixture{m: m, store: store, gw: gw, sched: sched}
}

// MockStore is a mock implementation of ports.DialogStore.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) NotifyOpened(ctx context.Context, id string, dismissal *domain.DismissalPolicy) error {
	return m.Called(id, dismissal).Error(0)
}

func (m *MockStore) NotifyClosed(ctx context.Context, id string) error {
	return m.Called(id).Error(0)
}

func (m *MockStore) NotifyClosedAll(ctx context.Context) error {
	return m.Called().Error(0)
}

func (m *MockStore) IsModalDialog(id string) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

// MockGateway is a mock implementation of ports.PolicyGateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) AddPointerPolicies(ctx context.Context, policies []domain.PointerPolicy) (domain.PolicyID, error) {
	args := m.Called(policies)
	return args.Get(0).(domain.PolicyID), args.Error(1)
}

func (m *MockGateway) RemovePointerPolicies(ctx context.Context, id domain.PolicyID) error {
	return m.Called(id).Error(0)
}

func (m *MockGateway) ListPolicies(ctx context.Context) (map[domain.PolicyID][]domain.PointerPolicy, error) {
	args := m.Called()
	return args.Get(0).(map[domain.PolicyID][]domain.PointerPolicy), args.Error(1)
}

func TestManager_RegistersActions(t *testing.T) {
	f := newMemoryFixture(t)

	for _, name := range []string{
		dialog.OpenDialogName, dialog.CloseDialogName, dialog.CloseAllDialogsName, dialog.OnResetName,
		policy.AddPointerPoliciesName, policy.RemovePointerPoliciesName,
	} {
		_, ok := f.sched.Lookup(name)
		assert.True(t, ok, "action %s should be registered", name)
	}

	open, _ := f.sched.Lookup(dialog.OpenDialogName)
	assert.True(t, open.Modal)
	assert.True(t, open.CanTransfer(policy.AddPointerPoliciesName))
	assert.False(t, open.CanTransfer(policy.RemovePointerPoliciesName))

	reset, _ := f.sched.Lookup(dialog.OnResetName)
	assert.Empty(t, reset.Locks())
	assert.False(t, reset.Modal)
}

func TestManager_SharesPolicyActionsBetweenManagers(t *testing.T) {
	sched := scheduler.New()
	actions := policy.NewActions(memory.NewPolicyGateway())
	require.NoError(t, sched.Register(actions.All()...))

	_, err := dialog.NewManager(sched, memory.NewDialogStore(), actions)
	require.NoError(t, err)

	_, err = dialog.NewManager(sched, memory.NewDialogStore(), actions)
	assert.ErrorIs(t, err, domain.ErrDuplicateAction, "dialog actions are registered once per scheduler")
}

func TestManager_RejectsPolicyActionsBoundElsewhere(t *testing.T) {
	sched := scheduler.New()
	require.NoError(t, sched.Register(policy.NewActions(memory.NewPolicyGateway()).All()...))

	_, err := dialog.NewManager(sched, memory.NewDialogStore(), policy.NewActions(memory.NewPolicyGateway()))
	require.ErrorIs(t, err, domain.ErrDuplicateAction)
	assert.Contains(t, err.Error(), policy.AddPointerPoliciesName)

	_, ok := sched.Lookup(dialog.OpenDialogName)
	assert.False(t, ok, "dialog actions are not registered after a rejected binding")
}

func TestManager_OpenRejectsMalformedPolicyID(t *testing.T) {
	sched := scheduler.New()
	gw := memory.NewPolicyGateway()
	actions := policy.NewActions(gw)
	actions.AddPointerPolicies = scheduler.NewAction(actions.AddPointerPolicies.Descriptor,
		func(context.Context, *scheduler.Grant, any) (any, error) {
			return "not-a-policy-id", nil
		})
	m, err := dialog.NewManager(sched, memory.NewDialogStore(memory.WithModalDialogs("prefs")), actions)
	require.NoError(t, err)

	err = m.OpenDialog(context.Background(), "prefs", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want domain.PolicyID")
	assert.Zero(t, m.Record().Len())
}

func TestManager_ModalOpenAndClose(t *testing.T) {
	f := newMemoryFixture(t, "prefs")
	ctx := context.Background()
	dismissal := &domain.DismissalPolicy{Escape: true}

	require.NoError(t, f.m.OpenDialog(ctx, "prefs", dismissal))

	adds, removes := f.gw.Calls()
	assert.Equal(t, 1, adds)
	assert.Equal(t, 0, removes)

	record := f.m.Policies()
	require.Len(t, record, 1)
	pid, ok := record["prefs"]
	require.True(t, ok)

	registered, err := f.gw.ListPolicies(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.PointerPolicy{policy.NeverPropagatePointerDown()}, registered[pid])

	assert.True(t, f.store.IsOpen("prefs"))
	assert.Equal(t, []memory.StoreEvent{{Kind: "opened", ID: "prefs", Dismissal: dismissal}}, f.store.Events())

	require.NoError(t, f.m.CloseDialog(ctx, "prefs"))

	adds, removes = f.gw.Calls()
	assert.Equal(t, 1, adds)
	assert.Equal(t, 1, removes)
	assert.Empty(t, f.m.Policies())

	registered, err = f.gw.ListPolicies(ctx)
	require.NoError(t, err)
	assert.NotContains(t, registered, pid, "the removed identifier must be the one that was added")
	assert.False(t, f.store.IsOpen("prefs"))
}

func TestManager_NonModalOpen(t *testing.T) {
	f := newMemoryFixture(t, "prefs")
	ctx := context.Background()

	require.NoError(t, f.m.OpenDialog(ctx, "about", nil))

	adds, removes := f.gw.Calls()
	assert.Zero(t, adds)
	assert.Zero(t, removes)
	assert.Empty(t, f.m.Policies())
	assert.True(t, f.store.IsOpen("about"))
}

func TestManager_CloseWithoutEntry(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	require.NoError(t, f.m.CloseDialog(ctx, "x"))
	require.NoError(t, f.m.CloseDialog(ctx, "x"))

	adds, removes := f.gw.Calls()
	assert.Zero(t, adds)
	assert.Zero(t, removes)
	assert.Equal(t, []memory.StoreEvent{{Kind: "closed", ID: "x"}, {Kind: "closed", ID: "x"}}, f.store.Events())
}

// Reset forgets registered policies without removing them from the gateway.
func TestManager_ResetLeavesGatewayPolicies(t *testing.T) {
	f := newMemoryFixture(t, "a", "b")
	ctx := context.Background()

	require.NoError(t, f.m.OpenDialog(ctx, "a", nil))
	require.NoError(t, f.m.OpenDialog(ctx, "b", nil))
	require.Len(t, f.m.Policies(), 2)
	events := len(f.store.Events())

	require.NoError(t, f.m.OnReset(ctx))

	assert.Empty(t, f.m.Policies())
	adds, removes := f.gw.Calls()
	assert.Equal(t, 2, adds)
	assert.Zero(t, removes)

	registered, err := f.gw.ListPolicies(ctx)
	require.NoError(t, err)
	assert.Len(t, registered, 2, "policies stay registered after reset")
	assert.Len(t, f.store.Events(), events, "reset does not notify the store")

	// closing after reset finds no entry and makes no gateway call
	require.NoError(t, f.m.CloseDialog(ctx, "a"))
	_, removes = f.gw.Calls()
	assert.Zero(t, removes)
}

func TestManager_ResetOnEmptyRecord(t *testing.T) {
	f := newMemoryFixture(t)
	require.NoError(t, f.m.OnReset(context.Background()))
	assert.Empty(t, f.m.Policies())
}

// Close-all broadcasts to the store only; modal policies stay registered.
func TestManager_CloseAllLeavesPolicies(t *testing.T) {
	f := newMemoryFixture(t, "prefs")
	ctx := context.Background()

	require.NoError(t, f.m.OpenDialog(ctx, "prefs", nil))
	require.NoError(t, f.m.OpenDialog(ctx, "about", nil))

	require.NoError(t, f.m.CloseAllDialogs(ctx))

	assert.Empty(t, f.store.OpenDialogs())
	events := f.store.Events()
	assert.Equal(t, memory.StoreEvent{Kind: "closed_all"}, events[len(events)-1])

	_, removes := f.gw.Calls()
	assert.Zero(t, removes)
	assert.Contains(t, f.m.Policies(), "prefs")

	registered, err := f.gw.ListPolicies(ctx)
	require.NoError(t, err)
	assert.Len(t, registered, 1)
}

// journal records store and gateway calls so interleaving can be checked.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(e string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
}

func (j *journal) snapshot() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type slowStore struct {
	*memory.DialogStore
	j *journal
}

func (s slowStore) NotifyOpened(ctx context.Context, id string, dismissal *domain.DismissalPolicy) error {
	s.j.add("notify-begin:" + id)
	time.Sleep(20 * time.Millisecond)
	defer s.j.add("notify-end:" + id)
	return s.DialogStore.NotifyOpened(ctx, id, dismissal)
}

type slowGateway struct {
	*memory.PolicyGateway
	j *journal
}

func (g slowGateway) AddPointerPolicies(ctx context.Context, policies []domain.PointerPolicy) (domain.PolicyID, error) {
	g.j.add("add-begin")
	time.Sleep(20 * time.Millisecond)
	defer g.j.add("add-end")
	return g.PolicyGateway.AddPointerPolicies(ctx, policies)
}

func TestManager_ConcurrentModalOpensDoNotInterleave(t *testing.T) {
	j := &journal{}
	gw := memory.NewPolicyGateway()
	m := newFixture(t,
		slowStore{DialogStore: memory.NewDialogStore(memory.WithModalDialogs("a", "b")), j: j},
		slowGateway{PolicyGateway: gw, j: j},
	)
	ctx := context.Background()

	fa := m.Open(ctx, "a", nil)
	fb := m.Open(ctx, "b", nil)
	require.NoError(t, scheduler.WaitAll(ctx, fa, fb))

	entries := j.snapshot()
	require.Len(t, entries, 8)

	phase := func(id string) []string {
		return []string{"notify-begin:" + id, "notify-end:" + id, "add-begin", "add-end"}
	}
	first, second := "a", "b"
	if entries[0] == "notify-begin:b" || entries[1] == "notify-begin:b" {
		first, second = "b", "a"
	}
	assert.ElementsMatch(t, phase(first), entries[:4], "first open must finish before the second starts")
	assert.ElementsMatch(t, phase(second), entries[4:])

	record := m.Policies()
	require.Len(t, record, 2)
	assert.NotEqual(t, record["a"], record["b"])

	registered, err := gw.ListPolicies(ctx)
	require.NoError(t, err)
	assert.Contains(t, registered, record["a"])
	assert.Contains(t, registered, record["b"])
}

func TestManager_OpenQueryFailure(t *testing.T) {
	store := new(MockStore)
	gw := new(MockGateway)
	queryErr := errors.New("catalog unavailable")
	store.On("NotifyOpened", "prefs", (*domain.DismissalPolicy)(nil)).Return(nil)
	store.On("IsModalDialog", "prefs").Return(false, queryErr)

	m := newFixture(t, store, gw)
	err := m.OpenDialog(context.Background(), "prefs", nil)

	assert.ErrorIs(t, err, queryErr)
	assert.Empty(t, m.Policies())
	store.AssertExpectations(t)
	gw.AssertNotCalled(t, "AddPointerPolicies", mock.Anything)
}

func TestManager_OpenAddFailure(t *testing.T) {
	store := memory.NewDialogStore(memory.WithModalDialogs("prefs"))
	gw := new(MockGateway)
	addErr := errors.New("gateway rejected")
	gw.On("AddPointerPolicies", mock.Anything).Return(domain.PolicyID(""), addErr)

	m := newFixture(t, store, gw)
	err := m.OpenDialog(context.Background(), "prefs", nil)

	assert.ErrorIs(t, err, addErr)
	assert.Empty(t, m.Policies())
	assert.True(t, store.IsOpen("prefs"), "the store notification is not rolled back")
	gw.AssertExpectations(t)
}

func TestManager_OpenNotifyFailure(t *testing.T) {
	store := new(MockStore)
	gw := memory.NewPolicyGateway()
	notifyErr := errors.New("store down")
	store.On("NotifyOpened", "prefs", mock.Anything).Return(notifyErr)
	store.On("IsModalDialog", "prefs").Return(true, nil)

	m := newFixture(t, store, gw)
	err := m.OpenDialog(context.Background(), "prefs", nil)

	assert.ErrorIs(t, err, notifyErr)
	assert.Contains(t, m.Policies(), "prefs", "the policy registration is not rolled back")
	adds, _ := gw.Calls()
	assert.Equal(t, 1, adds)
}

func TestManager_FailedRemovalKeepsStaleEntry(t *testing.T) {
	store := memory.NewDialogStore(memory.WithModalDialogs("prefs"))
	gw := new(MockGateway)
	removeErr := errors.New("gateway rejected")
	gw.On("AddPointerPolicies", mock.Anything).Return(domain.PolicyID("p1"), nil)
	gw.On("RemovePointerPolicies", domain.PolicyID("p1")).Return(removeErr).Once()

	m := newFixture(t, store, gw)
	ctx := context.Background()
	require.NoError(t, m.OpenDialog(ctx, "prefs", nil))

	err := m.CloseDialog(ctx, "prefs")
	assert.ErrorIs(t, err, removeErr)
	assert.Equal(t, map[string]domain.PolicyID{"prefs": "p1"}, m.Policies())
	assert.False(t, store.IsOpen("prefs"), "the store notification is not rolled back")

	gw.On("RemovePointerPolicies", domain.PolicyID("p1")).Return(nil).Once()
	require.NoError(t, m.CloseDialog(ctx, "prefs"))
	assert.Empty(t, m.Policies())
	gw.AssertExpectations(t)
}

func TestManager_OpenWaitsForPolicyLock(t *testing.T) {
	f := newMemoryFixture(t, "prefs")
	ctx := context.Background()

	// a non-modal holder of JS_POLICY delays the transfer but not the store notification
	hold := make(chan struct{})
	holder := scheduler.NewAction(domain.Descriptor{
		Name:   "test.holdPolicy",
		Writes: []domain.Lock{locks.JSPolicy},
	}, func(ctx context.Context, _ *scheduler.Grant, _ any) (any, error) {
		<-hold
		return nil, nil
	})
	hf := f.sched.Invoke(ctx, holder, nil)

	open := f.m.Open(ctx, "prefs", nil)
	assert.Eventually(t, func() bool { return f.store.IsOpen("prefs") }, time.Second, time.Millisecond)

	select {
	case <-open.Done():
		t.Fatal("open must wait for the policy transfer")
	case <-time.After(50 * time.Millisecond):
	}
	adds, _ := f.gw.Calls()
	assert.Zero(t, adds)

	close(hold)
	require.NoError(t, scheduler.WaitAll(ctx, hf, open))
	assert.Contains(t, f.m.Policies(), "prefs")
}
