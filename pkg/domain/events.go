package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventActionQueued  EventType = "action_queued"
	EventActionGranted EventType = "action_granted"
	EventActionSettled EventType = "action_settled"
)

// ActionEvent describes one invocation moving through the scheduler.
type ActionEvent struct {
	Timestamp    time.Time     `json:"timestamp"`
	Type         EventType     `json:"type"`
	InvocationID string        `json:"invocation_id"`
	Action       string        `json:"action"`
	Transfer     bool          `json:"transfer,omitempty"`
	Queued       bool          `json:"queued,omitempty"` // false when granted on arrival
	Waited       time.Duration `json:"waited,omitempty"`
	Ran          time.Duration `json:"ran,omitempty"`
	Err          error         `json:"-"`
}

// LifecycleHooks defines callbacks for scheduler observability.
// Hooks run outside the arbitration section but on the scheduler's goroutines,
// so they must not block.
type LifecycleHooks struct {
	OnQueued  func(context.Context, *ActionEvent)
	OnGranted func(context.Context, *ActionEvent)
	OnSettled func(context.Context, *ActionEvent)
}
