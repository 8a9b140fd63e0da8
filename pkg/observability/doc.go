/*
Package observability turns scheduler lifecycle events into logs and Prometheus metrics.

Both are plain domain.LifecycleHooks, so they can be combined and passed to
scheduler.WithHooks:

	m := observability.NewMetrics()
	hooks := observability.Combine(m.Hooks(), observability.LogHooks(logger))
	sched := scheduler.New(scheduler.WithHooks(hooks))
*/
package observability
