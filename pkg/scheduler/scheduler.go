package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/lockstep/internal/logging"
	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/aretw0/lockstep/pkg/locks"
	"github.com/aretw0/lockstep/pkg/ports"
	"github.com/rs/xid"
)

// DefaultLockTTL bounds how long a distributed lock outlives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// ticket is one claim on the grant table: a top-level invocation or a transfer delta.
type ticket struct {
	id       string
	action   *Action
	hold     holding
	transfer bool
	owners   []*ticket // delegating chain; these never block the ticket
	ready    chan struct{}
	queuedAt time.Time
	queued   bool
}

func (t *ticket) ownedBy(o *ticket) bool {
	for _, c := range t.owners {
		if c == o {
			return true
		}
	}
	return false
}

// waitsOnOwners reports whether o cannot start before t's own chain settles.
func (t *ticket) waitsOnOwners(o *ticket) bool {
	for _, c := range t.owners {
		if o.hold.conflicts(c.hold) {
			return true
		}
	}
	return false
}

// Scheduler admits, queues and runs actions according to their declared locks.
type Scheduler struct {
	mu      sync.Mutex
	running map[*ticket]struct{}
	queue   []*ticket

	actionsMu sync.RWMutex
	actions   map[string]*Action

	registry *locks.Registry
	locker   ports.DistributedLocker
	lockTTL  time.Duration
	hooks    domain.LifecycleHooks
	logger   *slog.Logger

	inflight sync.WaitGroup
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithLogger configures a logger for the Scheduler.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithRegistry sets the lock registry descriptors are validated against.
func WithRegistry(r *locks.Registry) Option {
	return func(s *Scheduler) {
		s.registry = r
	}
}

// WithHooks registers observability hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Scheduler) {
		s.hooks = hooks
	}
}

// WithDistributedLocker extends write grants across processes.
// Written locks are locked in lexical order after the local grant. The order holds per ticket
// only: a transfer delta locks its writes after the chain's, so two processes whose chains
// transfer into each other's held locks wait on one another until a lease expires.
// ttl bounds that wait and the wait on a crashed holder; lockers are expected to keep a
// lease alive while it is held (redis.Locker does).
func WithDistributedLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(s *Scheduler) {
		s.locker = locker
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// New creates a Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		running:  make(map[*ticket]struct{}),
		actions:  make(map[string]*Action),
		registry: locks.Default(),
		lockTTL:  DefaultLockTTL,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the lock registry in use.
func (s *Scheduler) Registry() *locks.Registry {
	return s.registry
}

// Register makes actions invocable by name. Descriptors are validated against the registry.
func (s *Scheduler) Register(actions ...*Action) error {
	s.actionsMu.Lock()
	defer s.actionsMu.Unlock()

	for _, a := range actions {
		if err := s.validate(a); err != nil {
			return err
		}
		if _, exists := s.actions[a.Name]; exists {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateAction, a.Name)
		}
		s.actions[a.Name] = a
	}
	return nil
}

// Lookup returns a registered action.
func (s *Scheduler) Lookup(name string) (*Action, bool) {
	s.actionsMu.RLock()
	defer s.actionsMu.RUnlock()
	a, ok := s.actions[name]
	return a, ok
}

// Actions returns the descriptors of every registered action, sorted by name.
func (s *Scheduler) Actions() []domain.Descriptor {
	s.actionsMu.RLock()
	defer s.actionsMu.RUnlock()

	out := make([]domain.Descriptor, 0, len(s.actions))
	for _, a := range s.actions {
		out = append(out, a.Descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// InvokeNamed invokes a registered action.
func (s *Scheduler) InvokeNamed(ctx context.Context, name string, args any) *Future {
	a, ok := s.Lookup(name)
	if !ok {
		return failedFuture(fmt.Errorf("%w: %s", domain.ErrUnknownAction, name))
	}
	return s.Invoke(ctx, a, args)
}

// Invoke schedules a and returns a Future that settles when its body returns.
// The body runs detached from ctx cancellation: once queued, an action always runs.
func (s *Scheduler) Invoke(ctx context.Context, a *Action, args any) *Future {
	if err := s.validate(a); err != nil {
		return failedFuture(err)
	}

	t := s.newTicket(a, holdingOf(a.Descriptor), nil, false)
	f := newFuture(t.id)
	ctx = context.WithoutCancel(ctx)

	s.inflight.Add(1)
	s.enqueue(ctx, t)
	go func() {
		defer s.inflight.Done()
		<-t.ready
		g := &Grant{s: s, action: a, id: t.id, held: t.hold, chain: []*ticket{t}}
		res, err := s.execute(ctx, t, g, args)
		f.resolve(res, err)
	}()
	return f
}

// Drain blocks until every in-flight invocation has settled or ctx is done.
func (s *Scheduler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) validate(a *Action) error {
	if a == nil || a.Fn == nil {
		return fmt.Errorf("%w: action has no body", domain.ErrUnknownAction)
	}
	return s.registry.Validate(a.Descriptor)
}

func (s *Scheduler) newTicket(a *Action, h holding, owners []*ticket, transfer bool) *ticket {
	return &ticket{
		id:       xid.New().String(),
		action:   a,
		hold:     h,
		transfer: transfer,
		owners:   owners,
		ready:    make(chan struct{}),
	}
}

// admissible reports whether t may start now. queue[:pos] are the waiters that arrived before t.
// Callers hold s.mu.
func (s *Scheduler) admissible(t *ticket, pos int) bool {
	for r := range s.running {
		if t.ownedBy(r) {
			continue
		}
		if t.hold.conflicts(r.hold) {
			return false
		}
	}
	// exempt collects earlier waiters that cannot start before t's chain settles, either
	// because they conflict with the chain or because they queue behind such a waiter.
	var exempt []*ticket
	for _, q := range s.queue[:pos] {
		if t.waitsOnOwners(q) || queuesBehind(q, exempt) {
			exempt = append(exempt, q)
			continue
		}
		if t.hold.conflicts(q.hold) {
			return false
		}
	}
	return true
}

// queuesBehind reports whether q conflicts with any of the earlier waiters in ahead.
func queuesBehind(q *ticket, ahead []*ticket) bool {
	for _, a := range ahead {
		if q.hold.conflicts(a.hold) {
			return true
		}
	}
	return false
}

// enqueue grants t immediately when possible, otherwise appends it to the wait queue.
func (s *Scheduler) enqueue(ctx context.Context, t *ticket) {
	s.mu.Lock()
	t.queuedAt = time.Now()
	granted := s.admissible(t, len(s.queue))
	if granted {
		s.running[t] = struct{}{}
		close(t.ready)
	} else {
		t.queued = true
		s.queue = append(s.queue, t)
	}
	s.mu.Unlock()

	if !granted {
		s.logger.DebugContext(ctx, "action queued", "action", t.action.Name, "invocation_id", t.id, "transfer", t.transfer)
		s.emit(ctx, s.hooks.OnQueued, domain.EventActionQueued, t)
	}
}

// release removes t from the grant table and wakes every waiter that became admissible.
func (s *Scheduler) release(ctx context.Context, t *ticket) error {
	s.mu.Lock()
	if _, ok := s.running[t]; !ok {
		s.mu.Unlock()
		err := fmt.Errorf("%w: release of %s (%s) which holds no grant", domain.ErrArbitration, t.action.Name, t.id)
		s.logger.ErrorContext(ctx, "arbitration invariant violated", "action", t.action.Name, "invocation_id", t.id, "err", err)
		return err
	}
	delete(s.running, t)

	for i := 0; i < len(s.queue); {
		q := s.queue[i]
		if !s.admissible(q, i) {
			i++
			continue
		}
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		s.running[q] = struct{}{}
		close(q.ready)
	}
	s.mu.Unlock()
	return nil
}

// execute runs a granted body and releases whatever t claimed. t is nil for inline transfers.
func (s *Scheduler) execute(ctx context.Context, t *ticket, g *Grant, args any) (res any, err error) {
	a := g.action
	waited := time.Duration(0)
	if t != nil && t.queued {
		waited = time.Since(t.queuedAt)
	}
	start := time.Now()

	ev := domain.ActionEvent{
		InvocationID: g.id,
		Action:       a.Name,
		Transfer:     g.transfer,
		Queued:       t != nil && t.queued,
		Waited:       waited,
	}
	s.logger.DebugContext(ctx, "action granted", "action", a.Name, "invocation_id", g.id, "transfer", g.transfer, "waited", waited)
	s.fire(ctx, s.hooks.OnGranted, domain.EventActionGranted, ev)

	defer func() {
		g.released.Store(true)
		if t != nil {
			if relErr := s.release(ctx, t); relErr != nil && err == nil {
				err = relErr
			}
		}
		ev.Ran = time.Since(start)
		ev.Err = err
		if err != nil {
			s.logger.DebugContext(ctx, "action failed", "action", a.Name, "invocation_id", g.id, "err", err)
		}
		s.fire(ctx, s.hooks.OnSettled, domain.EventActionSettled, ev)
	}()

	if t != nil && s.locker != nil {
		unlock, lockErr := s.lockDistributed(ctx, t)
		if lockErr != nil {
			return nil, lockErr
		}
		defer unlock()
	}

	return s.call(ctx, g, args)
}

// call invokes the body, turning a panic into an error.
func (s *Scheduler) call(ctx context.Context, g *Grant, args any) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "action panicked", "action", g.action.Name, "invocation_id", g.id, "panic", r, "stack", string(debug.Stack()))
			res, err = nil, fmt.Errorf("%w: %s: %v", domain.ErrActionPanicked, g.action.Name, r)
		}
	}()
	return g.action.Fn(ctx, g, args)
}

// lockDistributed takes every written lock of t in the distributed locker.
func (s *Scheduler) lockDistributed(ctx context.Context, t *ticket) (func(), error) {
	var unlocks []ports.UnlockFunc
	releaseAll := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			if err := unlocks[i](ctx); err != nil {
				s.logger.WarnContext(ctx, "Failed to release distributed lock (will expire via TTL)",
					"action", t.action.Name,
					"invocation_id", t.id,
					"err", err,
				)
			}
		}
	}

	for _, l := range t.hold.writes() {
		unlock, err := s.locker.Lock(ctx, string(l), s.lockTTL)
		if err != nil {
			releaseAll()
			return nil, fmt.Errorf("failed to acquire distributed lock %s: %w", l, err)
		}
		unlocks = append(unlocks, unlock)
	}
	return releaseAll, nil
}

func (s *Scheduler) emit(ctx context.Context, hook func(context.Context, *domain.ActionEvent), typ domain.EventType, t *ticket) {
	s.fire(ctx, hook, typ, domain.ActionEvent{
		InvocationID: t.id,
		Action:       t.action.Name,
		Transfer:     t.transfer,
		Queued:       true,
	})
}

// fire hands each hook its own copy of the event.
func (s *Scheduler) fire(ctx context.Context, hook func(context.Context, *domain.ActionEvent), typ domain.EventType, ev domain.ActionEvent) {
	if hook == nil {
		return
	}
	ev.Type = typ
	ev.Timestamp = time.Now()
	hook(ctx, &ev)
}

func sortLocks(ls []domain.Lock) {
	sort.Slice(ls, func(i, j int) bool { return ls[i] < ls[j] })
}
