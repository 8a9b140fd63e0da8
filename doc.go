/*
Package lockstep schedules asynchronous actions that declare, up front, which shared resources they
read and write.

An action is a body plus a descriptor: the locks it reads, the locks it writes, whether it belongs to
the modal class, and which other actions it may transfer into. The scheduler grants an action only
when no running action conflicts with it (a shared lock with at least one writer, or both modal), and
otherwise queues it behind earlier conflicting waiters. A granted body can transfer into another
action, reusing the locks it already holds and queueing only for the rest.

On top of the scheduler sits a dialog manager. Opening a modal dialog registers an input policy with
the policy gateway that keeps pointer presses away from the application; closing it unregisters the
policy. Dialog transitions are modal actions, so they never interleave.

# Usage

	sys, err := lockstep.New(lockstep.WithModalDialogs("prefs"))
	if err != nil {
		log.Fatal(err)
	}
	defer sys.Close()

	ctx := context.Background()
	if err := sys.Dialogs.OpenDialog(ctx, "prefs", nil); err != nil {
		log.Fatal(err)
	}
	fmt.Println(sys.Dialogs.Policies())

Custom actions are registered with the scheduler and invoked by value or by name:

	save := scheduler.NewAction(domain.Descriptor{
		Name:   "doc.save",
		Reads:  []domain.Lock{locks.JSPref},
		Writes: []domain.Lock{locks.JSDoc},
	}, func(ctx context.Context, g *scheduler.Grant, args any) (any, error) {
		return nil, nil
	})
	_, err = sys.Scheduler.Invoke(ctx, save, nil).Wait(ctx)
*/
package lockstep
