package lockstep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/lockstep/internal/config"
	"github.com/aretw0/lockstep/internal/logging"
	"github.com/aretw0/lockstep/pkg/adapters/memory"
	"github.com/aretw0/lockstep/pkg/adapters/redis"
	"github.com/aretw0/lockstep/pkg/dialog"
	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/aretw0/lockstep/pkg/locks"
	"github.com/aretw0/lockstep/pkg/observability"
	"github.com/aretw0/lockstep/pkg/policy"
	"github.com/aretw0/lockstep/pkg/ports"
	"github.com/aretw0/lockstep/pkg/scheduler"
	backend "github.com/redis/go-redis/v9"
)

// System is a wired scheduler, dialog manager and their collaborators.
type System struct {
	Scheduler *scheduler.Scheduler
	Dialogs   *dialog.Manager
	Store     ports.DialogStore
	Gateway   ports.PolicyGateway
	// Metrics is nil unless WithMetrics was given.
	Metrics *observability.Metrics

	logger  *slog.Logger
	closers []func() error
}

type settings struct {
	logger   *slog.Logger
	registry *locks.Registry
	hooks    []domain.LifecycleHooks
	store    ports.DialogStore
	gateway  ports.PolicyGateway
	locker   ports.DistributedLocker
	lockTTL  time.Duration
	metrics  *observability.Metrics
	modal    []string
	record   *dialog.PolicyRecord
	closers  []func() error
}

// Option defines a functional option for configuring the System.
type Option func(*settings)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithRegistry sets the lock registry descriptors are validated against.
func WithRegistry(r *locks.Registry) Option {
	return func(s *settings) {
		s.registry = r
	}
}

// WithLifecycleHooks registers observability hooks. It may be given several times.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *settings) {
		s.hooks = append(s.hooks, hooks)
	}
}

// WithDialogStore injects the store layer. The default is an in-memory store.
func WithDialogStore(store ports.DialogStore) Option {
	return func(s *settings) {
		s.store = store
	}
}

// WithPolicyGateway injects the policy gateway. The default is an in-memory gateway.
func WithPolicyGateway(gw ports.PolicyGateway) Option {
	return func(s *settings) {
		s.gateway = gw
	}
}

// WithDistributedLocker extends write grants across processes.
func WithDistributedLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(s *settings) {
		s.locker = locker
		s.lockTTL = ttl
	}
}

// WithMetrics records scheduler metrics into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// WithModalDialogs sets the modal catalog of the default in-memory store.
// It is ignored when WithDialogStore is given.
func WithModalDialogs(ids ...string) Option {
	return func(s *settings) {
		s.modal = append(s.modal, ids...)
	}
}

// WithPolicyRecord injects the dialog policy record.
func WithPolicyRecord(r *dialog.PolicyRecord) Option {
	return func(s *settings) {
		s.record = r
	}
}

// New wires a System.
func New(opts ...Option) (*System, error) {
	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.registry == nil {
		s.registry = locks.Default()
	}
	if s.store == nil {
		s.store = memory.NewDialogStore(memory.WithModalDialogs(s.modal...))
	}
	if s.gateway == nil {
		s.gateway = memory.NewPolicyGateway()
	}

	hooks := s.hooks
	if s.metrics != nil {
		hooks = append(hooks, s.metrics.Hooks())
	}

	schedOpts := []scheduler.Option{
		scheduler.WithLogger(s.logger),
		scheduler.WithRegistry(s.registry),
		scheduler.WithHooks(observability.Combine(hooks...)),
	}
	if s.locker != nil {
		schedOpts = append(schedOpts, scheduler.WithDistributedLocker(s.locker, s.lockTTL))
	}
	sched := scheduler.New(schedOpts...)

	dialogOpts := []dialog.Option{dialog.WithLogger(s.logger)}
	if s.record != nil {
		dialogOpts = append(dialogOpts, dialog.WithPolicyRecord(s.record))
	}
	mgr, err := dialog.NewManager(sched, s.store, policy.NewActions(s.gateway), dialogOpts...)
	if err != nil {
		return nil, err
	}
	if err := sched.ValidateTransfers(); err != nil {
		return nil, err
	}

	return &System{
		Scheduler: sched,
		Dialogs:   mgr,
		Store:     s.store,
		Gateway:   s.gateway,
		Metrics:   s.metrics,
		logger:    s.logger,
		closers:   s.closers,
	}, nil
}

// FromConfig wires a System from cfg. When cfg.Redis.Addr is set, policies live in Redis
// and written locks are also taken as Redis locks. Extra opts are applied after cfg.
func FromConfig(cfg config.Config, opts ...Option) (*System, error) {
	logger := logging.New(cfg.Level())
	base := []Option{
		WithLogger(logger),
		WithRegistry(cfg.Registry()),
		WithModalDialogs(cfg.Dialogs.Modal...),
	}
	if cfg.Metrics.Enabled {
		base = append(base, WithMetrics(observability.NewMetrics()))
	}
	if cfg.Redis.Addr != "" {
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		base = append(base,
			WithPolicyGateway(redis.NewFromClient(client, redis.WithPrefix(cfg.Redis.Prefix))),
			WithDistributedLocker(redis.NewLocker(client, cfg.Redis.Prefix, redis.WithLockerLogger(logger)), scheduler.DefaultLockTTL),
			func(s *settings) { s.closers = append(s.closers, client.Close) },
		)
	}
	return New(append(base, opts...)...)
}

// SetModalDialogs replaces the modal catalog, if the store supports it.
func (s *System) SetModalDialogs(ids []string) error {
	catalog, ok := s.Store.(interface{ SetModalDialogs([]string) })
	if !ok {
		return fmt.Errorf("dialog store %T has no modal catalog", s.Store)
	}
	catalog.SetModalDialogs(ids)
	s.logger.Info("Modal catalog updated", "dialogs", ids)
	return nil
}

// Shutdown waits for in-flight actions, then releases external connections.
func (s *System) Shutdown(ctx context.Context) error {
	drainErr := s.Scheduler.Drain(ctx)
	return errors.Join(drainErr, s.Close())
}

// Close releases external connections without waiting for in-flight actions.
func (s *System) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	s.closers = nil
	return errors.Join(errs...)
}
