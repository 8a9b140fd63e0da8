/*
Package scheduler runs actions that declare, up front, which locks they read and write.

Each Action carries an immutable domain.Descriptor. When an action is invoked the
scheduler compares its declaration against every running grant and every earlier
waiter; non-conflicting actions start at once and run concurrently, conflicting ones
wait in arrival order. Two declarations conflict when they share a lock and at least
one side writes it, or when both are modal.

Inside a running body, the *Grant passed to the action is a capability token. Calling
Grant.Transfer delegates to another action while reusing the locks the grant already
holds, so a delegate never queues behind its own delegator:

	open := scheduler.NewAction(domain.Descriptor{
		Name:      "dialog.open",
		Writes:    []domain.Lock{locks.JSDialog},
		Transfers: []string{"policy.add"},
		Modal:     true,
	}, func(ctx context.Context, g *scheduler.Grant, args any) (any, error) {
		return g.Transfer(ctx, addPolicy, args)
	})

	res, err := sched.Invoke(ctx, open, "prefs").Wait(ctx)

Grants are released on every exit path, including panics. There is no preemption
and no timeout: a body that never returns holds its locks forever.
*/
package scheduler
