package shading

import "errors"

// Sentinel errors for the control loop's error kinds.
var (
	// ErrInvalidConfig signals a cross-field configuration inconsistency.
	// Fatal at initialisation: the controller refuses to run.
	ErrInvalidConfig = errors.New("shading: invalid configuration")

	// ErrServiceCallFailed wraps a failed host service invocation. It is
	// logged and dropped; the actuator's expected state is left unchanged
	// so the next tick retries.
	ErrServiceCallFailed = errors.New("shading: host service call failed")

	// ErrSnapshotStale means the persisted snapshot is older than the
	// freshness window and was not restored.
	ErrSnapshotStale = errors.New("shading: snapshot older than freshness window")

	// ErrUnknownMode is returned by the state machine's mode-to-target
	// mapping when handed a Mode it does not recognise.
	ErrUnknownMode = errors.New("shading: unknown mode")
)

// NeedsOperatorSetup is a structured terminal outcome (design note:
// "exceptions for control flow") returned by Controller.Bootstrap when one
// or more managed entities are missing from the host. It is returned
// through the error interface so callers can pick it out with errors.As;
// Template holds the rendered entity template for the operator to install.
type NeedsOperatorSetup struct {
	UniqueID string
	Missing  []string
	Template string
}

func (e *NeedsOperatorSetup) Error() string {
	return "shading: managed entities missing for " + e.UniqueID + ", operator setup required"
}
