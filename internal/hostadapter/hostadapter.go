// Package hostadapter defines the thin contract the control loop needs
// from its home-automation host: entity state, service calls,
// subscriptions, scheduled wakeups, wall-clock access, and a writable
// application directory. Concrete adapters live in the memory and rest
// sub-packages.
package hostadapter

import (
	"context"
	"time"
)

// StateValue is a host entity reading. Unknown/Unavailable readings are
// represented by Valid=false rather than a numeric zero.
type StateValue struct {
	State      string
	Attributes map[string]any
	Valid      bool
}

// ServiceResult is the outcome of a call_service invocation.
type ServiceResult struct {
	Success bool
	Err     error
}

// StateHandler receives entity state-change notifications.
type StateHandler func(ctx context.Context, entity string, old, new StateValue)

// EventHandler receives host event-bus notifications.
type EventHandler func(ctx context.Context, eventName string, data map[string]any)

// TickHandler is invoked by the scheduler on the tick cadence.
type TickHandler func(ctx context.Context, at time.Time)

// HostAdapter is the capability surface the control loop consumes. It
// never issues shading decisions itself; it only moves bytes between the
// host and the controller.
type HostAdapter interface {
	// GetState reads the current value of an entity, including its
	// attributes.
	GetState(ctx context.Context, entity string) (StateValue, error)

	// SetState writes a value directly to an entity (used for the managed
	// boolean entities, not for cover commands).
	SetState(ctx context.Context, entity, value string) error

	// CallService invokes a host service, e.g. cover/set_cover_position.
	CallService(ctx context.Context, domain, service, entityID string, args map[string]any) (ServiceResult, error)

	// ListenState subscribes to state changes on an entity.
	ListenState(entity string, handler StateHandler)

	// ListenEvent subscribes to a named host event.
	ListenEvent(eventName string, handler EventHandler)

	// RunEvery registers the periodic tick scheduler, aligned to the
	// host's wall clock.
	RunEvery(handler TickHandler, start time.Time, interval time.Duration)

	// Now returns the host's wall-clock time.
	Now() time.Time

	// AppDir returns a writable directory for snapshot and entity-template
	// files.
	AppDir() string
}
