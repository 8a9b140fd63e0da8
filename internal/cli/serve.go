package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aretw0/lockstep"
	"github.com/aretw0/lockstep/internal/config"
	lockhttp "github.com/aretw0/lockstep/pkg/adapters/http"
	"golang.org/x/sync/errgroup"
)

// ServeOptions configures RunServe.
type ServeOptions struct {
	ConfigPath string
	Addr       string // overrides the configured address when set
	Watch      bool   // reload the modal catalog when the config file changes
	Out        io.Writer
}

// RunServe serves the HTTP surface until ctx is done, then drains in-flight actions.
func RunServe(ctx context.Context, cfg config.Config, opts ServeOptions) error {
	logger := NewLogger(cfg)
	streams := lockhttp.NewStreamManager(logger)

	sys, err := lockstep.FromConfig(cfg,
		lockstep.WithLogger(logger),
		lockstep.WithLifecycleHooks(streams.Hooks()),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize lockstep: %w", err)
	}

	handlerOpts := []lockhttp.Option{
		lockhttp.WithStreams(streams),
		lockhttp.WithVersion(lockstep.Version),
		lockhttp.WithLogger(logger),
	}
	if sys.Metrics != nil {
		handlerOpts = append(handlerOpts, lockhttp.WithMetrics(sys.Metrics.Handler()))
	}

	addr := cfg.HTTP.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: lockhttp.NewHandler(sys.Dialogs, sys.Scheduler, handlerOpts...),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		printSystemMessage(opts.Out, "Starting lockstep server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if opts.Watch && opts.ConfigPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, opts.ConfigPath, logger, func(c config.Config) {
				if err := sys.SetModalDialogs(c.Dialogs.Modal); err != nil {
					logger.Warn("Modal catalog not reloaded", "err", err)
				}
			})
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Graceful shutdown did not complete", "err", err)
			_ = srv.Close()
		}
		if err := sys.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		printSystemMessage(opts.Out, "lockstep server stopped gracefully")
		return nil
	})
	return g.Wait()
}
