package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/lockstep/pkg/domain"
)

// LogHooks logs every lifecycle event at debug level, and failures at warn.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnQueued: func(ctx context.Context, e *domain.ActionEvent) {
			logger.DebugContext(ctx, "action_queued",
				"action", e.Action,
				"invocation_id", e.InvocationID,
				"transfer", e.Transfer,
			)
		},
		OnGranted: func(ctx context.Context, e *domain.ActionEvent) {
			logger.DebugContext(ctx, "action_granted",
				"action", e.Action,
				"invocation_id", e.InvocationID,
				"waited", e.Waited,
			)
		},
		OnSettled: func(ctx context.Context, e *domain.ActionEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "action_failed",
					"action", e.Action,
					"invocation_id", e.InvocationID,
					"ran", e.Ran,
					"err", e.Err,
				)
				return
			}
			logger.DebugContext(ctx, "action_settled",
				"action", e.Action,
				"invocation_id", e.InvocationID,
				"ran", e.Ran,
			)
		},
	}
}

// Combine fans each event out to every non-nil hook, in order.
func Combine(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	fan := func(pick func(domain.LifecycleHooks) func(context.Context, *domain.ActionEvent)) func(context.Context, *domain.ActionEvent) {
		var fns []func(context.Context, *domain.ActionEvent)
		for _, h := range hooks {
			if fn := pick(h); fn != nil {
				fns = append(fns, fn)
			}
		}
		if len(fns) == 0 {
			return nil
		}
		return func(ctx context.Context, e *domain.ActionEvent) {
			for _, fn := range fns {
				fn(ctx, e)
			}
		}
	}
	return domain.LifecycleHooks{
		OnQueued:  fan(func(h domain.LifecycleHooks) func(context.Context, *domain.ActionEvent) { return h.OnQueued }),
		OnGranted: fan(func(h domain.LifecycleHooks) func(context.Context, *domain.ActionEvent) { return h.OnGranted }),
		OnSettled: fan(func(h domain.LifecycleHooks) func(context.Context, *domain.ActionEvent) { return h.OnSettled }),
	}
}
