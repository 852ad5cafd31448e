// Package constraints applies the ConstraintStack: a fixed priority chain
// of pure (current, target) -> target' transforms.
package constraints

import "time"

// Position is a (height, tilt) pair. Tilt is ignored for Shutter devices.
type Position struct {
	Height int
	Tilt   int
}

// Ventilation overrides height (and tilt, on blinds) while a window is
// open. On shutters it may only open further, never lower than current.
func Ventilation(active, windowOpen, hasTilt bool, ventHeight, ventTilt int) func(current, target Position) Position {
	return func(current, target Position) Position {
		if !active || !windowOpen {
			return target
		}
		out := Position{Height: ventHeight, Tilt: target.Tilt}
		if hasTilt {
			out.Tilt = ventTilt
		}
		if !hasTilt && out.Height < current.Height {
			out.Height = current.Height
		}
		return out
	}
}

// SolarHeatingState is the hysteresis latch's persisted bit, owned by the
// controller across ticks.
type SolarHeatingState struct {
	Latched bool
}

// SolarHeating implements the hysteretic solar-heating assist: it latches on
// once the room drops below targetTemp-hysteresis and releases once the room
// reaches targetTemp again, driving the device to the heat-gain position
// while latched. It mutates state.Latched and returns the new published
// status alongside the possibly-overridden target.
func SolarHeating(active bool, state *SolarHeatingState, indoorTemp *float64, targetTemp, hysteresis float64, hasTilt bool, heatHeight, heatAngle int) func(current, target Position) (Position, bool) {
	return func(current, target Position) (Position, bool) {
		if !active || indoorTemp == nil {
			return target, state.Latched
		}

		if *indoorTemp < targetTemp-hysteresis {
			if !state.Latched {
				state.Latched = true
			}
		} else if *indoorTemp >= targetTemp {
			state.Latched = false
		}

		if state.Latched {
			out := Position{Height: heatHeight, Tilt: target.Tilt}
			if hasTilt {
				out.Tilt = heatAngle
			}
			return out, true
		}
		return target, false
	}
}

// PostDuskUpLock prevents raising height above current once wall-clock has
// passed the day's next_dusk.
func PostDuskUpLock(enabled bool, now time.Time, nextDusk *time.Time) func(current, target Position) Position {
	return func(current, target Position) Position {
		if !enabled || nextDusk == nil || now.Before(*nextDusk) {
			return target
		}
		if target.Height > current.Height {
			target.Height = current.Height
		}
		return target
	}
}

// LockoutProtection prevents lowering height past current while the window
// is open or its sensor is unavailable.
func LockoutProtection(active bool, windowOpen *bool) func(current, target Position) Position {
	return func(current, target Position) Position {
		if !active {
			return target
		}
		unavailable := windowOpen == nil
		open := windowOpen != nil && *windowOpen
		if !unavailable && !open {
			return target
		}
		if target.Height < current.Height {
			target.Height = current.Height
		}
		return target
	}
}

// FullyOpenTiltCoupling forces tilt to 100 once height reaches or exceeds
// 95 (Blinds only).
func FullyOpenTiltCoupling(hasTilt bool) func(current, target Position) Position {
	return func(current, target Position) Position {
		if hasTilt && target.Height >= 95 {
			target.Tilt = 100
		}
		return target
	}
}

// ClampAndStep rounds height/tilt to the configured step and clamps to the
// configured bounds -- the final stage, ensuring both channels are always
// multiples of their step after application.
func ClampAndStep(target Position, minHeight, maxHeight, heightStep, minAngle, maxAngle, angleStep int) Position {
	target.Height = clampStep(target.Height, minHeight, maxHeight, heightStep)
	target.Tilt = clampStep(target.Tilt, minAngle, maxAngle, angleStep)
	return target
}

func clampStep(v, lo, hi, step int) int {
	if step > 0 {
		v = ((v + step/2) / step) * step
	}
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}
