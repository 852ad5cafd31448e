package shading

import "time"

// Locks tracks every externally-mutable boolean that can suppress the
// Actuator, per spec data model sec 3. Each field mirrors a managed boolean
// entity on the host.
type Locks struct {
	Manual             bool
	External           bool
	Manipulation       bool
	SolarHeatingActive bool
}

// Any reports whether any lock that should suppress the Actuator is set.
func (l Locks) Any() bool {
	return l.Manual || l.External || l.Manipulation
}

// Sensors is the controller's local cache of the last-known host telemetry.
// Missing/unknown readings are represented by the zero value of the
// pointer fields rather than a numeric zero: unknown/unavailable means no
// update happened, not that the reading was zero.
type Sensors struct {
	Azimuth            float64
	Elevation          float64
	NextDusk           *time.Time
	BrightnessShadow   *int
	BrightnessDawn     *int
	WindowOpen         *bool
	IndoorTemperature  *float64
	ShadowThreshold    *int // dynamic override of the configured static threshold
}

// State is the full runtime state of one controller, per spec data model
// sec 3. It is owned exclusively by the Controller aggregate; handlers
// borrow fields rather than holding their own copies (design note:
// "cyclic event <-> state references").
type State struct {
	Mode             Mode
	TransitionTimer  *time.Time

	Sensors Sensors

	CurrentHeight  *int
	CurrentTilt    *int
	ExpectedHeight *int
	ExpectedTilt   *int

	AutomatedChangeCounter int
	Moving                 bool

	Locks                Locks
	ExternalLockDeadline *time.Time

	SolarHeatingStatus  bool
	HysteresisLatched   bool
}

// Snapshot is the durable subset of State persisted to disk between runs,
// one file per device named states_<unique_id>.json.
type Snapshot struct {
	Timestamp time.Time  `json:"timestamp"`
	Mode      Mode       `json:"state"`
	Timer     *time.Time `json:"timer"`
}
