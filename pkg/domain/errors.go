package domain

import "errors"

// ErrUnknownLock is returned when a descriptor names a lock missing from the registry.
var ErrUnknownLock = errors.New("unknown lock")

// ErrArbitration signals a violated scheduler invariant (e.g. releasing a grant that is not held).
// It should be unreachable.
var ErrArbitration = errors.New("scheduler arbitration error")

// ErrTransferNotDeclared is returned when an action transfers into a target missing from its Transfers.
var ErrTransferNotDeclared = errors.New("transfer target not declared")

// ErrGrantReleased is returned when a grant is used after its action settled.
var ErrGrantReleased = errors.New("grant already released")

// ErrActionPanicked wraps a panic recovered from an action body.
var ErrActionPanicked = errors.New("action panicked")

// ErrUnknownAction is returned when invoking an action name that was never registered.
var ErrUnknownAction = errors.New("unknown action")

// ErrDuplicateAction is returned when registering two actions under the same name.
var ErrDuplicateAction = errors.New("duplicate action")

// ErrPolicyNotFound is returned by a gateway asked to remove a policy it does not hold.
var ErrPolicyNotFound = errors.New("policy not found")
