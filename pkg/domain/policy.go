package domain

// PolicyID is the opaque identifier a Policy Gateway returns for a registered policy set.
type PolicyID string

// PolicyAction tells the gateway where a matched input event goes.
type PolicyAction string

const (
	// PolicyAlwaysPropagate lets the event follow its default route to the application.
	PolicyAlwaysPropagate PolicyAction = "always_propagate"
	// PolicyNeverPropagate swallows the event.
	PolicyNeverPropagate PolicyAction = "never_propagate"
	// PolicyPropagateToUI routes the event to the UI layer instead of the application.
	PolicyPropagateToUI PolicyAction = "propagate_to_ui"
)

// EventKind is a low-level input event class.
type EventKind string

const (
	EventLeftMouseDown  EventKind = "left_mouse_down"
	EventRightMouseDown EventKind = "right_mouse_down"
	EventMouseWheel     EventKind = "mouse_wheel"
	EventKeyDown        EventKind = "key_down"
)

// PointerPolicy is a single routing rule for pointer events.
type PointerPolicy struct {
	Action    PolicyAction `json:"action"`
	EventKind EventKind    `json:"event_kind"`
}
