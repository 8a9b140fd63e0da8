package ports

import (
	"context"

	"github.com/aretw0/lockstep/pkg/domain"
)

// DialogStore is the store layer the Dialog Manager dispatches into.
// Notifications are assumed to always eventually settle.
type DialogStore interface {
	// NotifyOpened records that dialog id is open with the given dismissal policy (may be nil).
	NotifyOpened(ctx context.Context, id string, dismissal *domain.DismissalPolicy) error

	// NotifyClosed records that dialog id is closed.
	NotifyClosed(ctx context.Context, id string) error

	// NotifyClosedAll closes every open dialog in a single broadcast.
	NotifyClosedAll(ctx context.Context) error

	// IsModalDialog reports whether id was registered as a modal dialog.
	IsModalDialog(id string) (bool, error)
}
