// Package override implements the OverrideDetector: it correlates
// telemetry against the Actuator's expectations to distinguish automated
// moves from manual/third-party manipulation, and manages the timed
// external lock.
package override

import (
	"log/slog"
	"time"
)

// Ceiling is the per-variant automated-change-counter ceiling: 2 for
// Blinds (one event each for height and tilt arrival), 5 for Shutter
// (shutters report more intermediate telemetry events while moving).
const (
	CeilingBlinds  = 2
	CeilingShutter = 5
)

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func match(current, expected *int, tolerance int) bool {
	if expected == nil {
		return true
	}
	if current == nil {
		return false
	}
	lo := clamp(*expected-tolerance, 0, 100)
	hi := clamp(*expected+tolerance, 0, 100)
	return *current >= lo && *current <= hi
}

// Detector correlates settled cover telemetry against expected state.
type Detector struct {
	Ceiling             int
	HeightTolerance     int
	AngleTolerance      int
	HasTilt             bool
	ExternalLockMinutes int
	Logger              *slog.Logger
}

func (d *Detector) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Result is what OnSettledTelemetry decided.
type Result struct {
	ExternalLockRaised  bool
	ExternalLockCleared bool
	ExpectedCleared     bool
}

// OnSettledTelemetry processes one settled (non-opening/closing) cover
// state update. It mutates currentHeight/currentTilt bookkeeping is the
// caller's responsibility; this function only evaluates the correlation
// and reports lock/expectation side effects for the caller to apply.
func (d *Detector) OnSettledTelemetry(now time.Time, currentHeight, currentTilt, expectedHeight, expectedTilt *int, automatedChangeCounter int, anyLockAlreadyOn bool) Result {
	heightMatch := match(currentHeight, expectedHeight, d.HeightTolerance)
	tiltMatch := true
	if d.HasTilt {
		tiltMatch = match(currentTilt, expectedTilt, d.AngleTolerance)
	}

	var res Result

	if heightMatch && tiltMatch && automatedChangeCounter <= d.Ceiling {
		res.ExternalLockCleared = true
	} else if !anyLockAlreadyOn {
		res.ExternalLockRaised = true
		d.logger().Info("override: telemetry mismatch, raising external lock",
			"height_match", heightMatch, "tilt_match", tiltMatch, "counter", automatedChangeCounter)
	}

	if automatedChangeCounter > d.Ceiling {
		res.ExpectedCleared = true
	}

	return res
}

// ExternalLockDeadline computes the deadline to pair with a freshly raised
// external lock.
func (d *Detector) ExternalLockDeadline(now time.Time) time.Time {
	return now.Add(time.Duration(d.ExternalLockMinutes) * time.Minute)
}

// Reconcile releases the external lock if its deadline is absent or past.
func Reconcile(now time.Time, externalLockOn bool, deadline *time.Time) (releasedExternal bool) {
	if !externalLockOn {
		return false
	}
	if deadline == nil || now.After(*deadline) {
		return true
	}
	return false
}
