// Package statemachine implements the hysteretic, time-delayed mode
// transitions between Neutral, Shadow and Dawn and their horizontal
// intermediate states.
package statemachine

import (
	"log/slog"
	"time"

	"github.com/tobiasrehn/shadeflow/internal/shading"
)

// Variant selects which transition table a StateMachine uses. Blinds
// passes through the transitional Horizontal rest states; Shutter, having
// no tilt channel, collapses them.
type Variant int

const (
	VariantBlinds Variant = iota
	VariantShutter
)

// Delays carries every named transition-timer duration used by the
// transition table, in seconds.
type Delays struct {
	NeutralToShadowDelay         int
	NeutralToDawnDelay           int
	ShadowToHorizontalDelay      int
	HorizontalToNeutralDelay     int
	DawnToHorizontalDelay        int
	DawnHorizontalToNeutralDelay int
	ShadowToNeutralDelay         int
	DawnToNeutralDelay           int
}

// Inputs is everything the transition table reads on a tick, already
// resolved from the controller's sensor cache.
type Inputs struct {
	InSun           bool
	ShadowActive    bool
	DawnActive      bool
	BrightShadow    *int // nil: "no update", holds current mode
	BrightDawn      *int
	ShadowThreshold int
	DawnThreshold   int
}

// StateMachine evaluates the mode transition table. It holds no state of
// its own; mode and the transition timer live in shading.State and are
// passed in and returned explicitly, so the Controller aggregate remains
// the single owner of mutable state (design note: "cyclic event <-> state
// references").
type StateMachine struct {
	Variant Variant
	Delays  Delays
	Logger  *slog.Logger
}

func (sm *StateMachine) logger() *slog.Logger {
	if sm.Logger != nil {
		return sm.Logger
	}
	return slog.Default()
}

func arm(now time.Time, seconds int) *time.Time {
	t := now.Add(time.Duration(seconds) * time.Second)
	return &t
}

func expired(now time.Time, deadline *time.Time) bool {
	return deadline != nil && !now.Before(*deadline)
}

// Tick evaluates the transition table once and returns the (possibly
// unchanged) mode and transition timer. now is the wall-clock time used to
// arm and check timers.
func (sm *StateMachine) Tick(mode shading.Mode, timer *time.Time, now time.Time, in Inputs) (shading.Mode, *time.Time) {
	switch mode {
	case shading.ModeNeutral:
		return sm.fromNeutral(now, in)
	case shading.ModeNeutralToShadowTimer:
		return sm.fromNeutralToShadowTimer(timer, now, in)
	case shading.ModeShadow:
		return sm.fromShadow(now, in)
	case shading.ModeShadowToHorizontalTimer: // == ModeShadowToNeutralTimer for Shutter
		if sm.Variant == VariantShutter {
			return sm.fromShadowToNeutralTimer(timer, now, in)
		}
		return sm.fromShadowToHorizontalTimer(timer, now, in)
	case shading.ModeHorizontalToNeutralTimer:
		return sm.fromHorizontalToNeutralTimer(timer, now, in)
	case shading.ModeNeutralToDawnTimer:
		return sm.fromNeutralToDawnTimer(timer, now, in)
	case shading.ModeDawn:
		return sm.fromDawn(now, in)
	case shading.ModeDawnToHorizontalTimer: // == ModeDawnToNeutralTimer for Shutter
		if sm.Variant == VariantShutter {
			return sm.fromDawnToNeutralTimer(timer, now, in)
		}
		return sm.fromDawnToHorizontalTimer(timer, now, in)
	case shading.ModeDawnHorizontalToNeutralTimer:
		return sm.fromDawnHorizontalToNeutralTimer(timer, now, in)
	default:
		sm.logger().Error("statemachine: unknown mode, holding neutral", "mode", int(mode))
		return shading.ModeNeutral, nil
	}
}

func (sm *StateMachine) fromNeutral(now time.Time, in Inputs) (shading.Mode, *time.Time) {
	if in.DawnActive && in.BrightDawn != nil && *in.BrightDawn < in.DawnThreshold {
		return shading.ModeNeutralToDawnTimer, arm(now, sm.Delays.NeutralToDawnDelay)
	}
	if in.InSun && in.ShadowActive && in.BrightShadow != nil && *in.BrightShadow > in.ShadowThreshold {
		return shading.ModeNeutralToShadowTimer, arm(now, sm.Delays.NeutralToShadowDelay)
	}
	return shading.ModeNeutral, nil
}

func (sm *StateMachine) fromNeutralToShadowTimer(timer *time.Time, now time.Time, in Inputs) (shading.Mode, *time.Time) {
	if !in.InSun || !in.ShadowActive {
		return shading.ModeNeutral, nil
	}
	if in.BrightShadow != nil && *in.BrightShadow < in.ShadowThreshold {
		return shading.ModeNeutral, nil
	}
	if expired(now, timer) {
		return shading.ModeShadow, nil
	}
	return shading.ModeNeutralToShadowTimer, timer
}

func (sm *StateMachine) fromShadow(now time.Time, in Inputs) (shading.Mode, *time.Time) {
	if !in.InSun || !in.ShadowActive {
		return shading.ModeNeutral, nil
	}
	if in.BrightShadow != nil && *in.BrightShadow < in.ShadowThreshold {
		if sm.Variant == VariantShutter {
			return shading.ModeShadowToNeutralTimer, arm(now, sm.Delays.ShadowToNeutralDelay)
		}
		return shading.ModeShadowToHorizontalTimer, arm(now, sm.Delays.ShadowToHorizontalDelay)
	}
	return shading.ModeShadow, nil
}

// fromShadowToHorizontalTimer is the Blinds variant's +3 timer; on expiry it
// hands off to the +5 HorizontalToNeutralTimer.
func (sm *StateMachine) fromShadowToHorizontalTimer(timer *time.Time, now time.Time, in Inputs) (shading.Mode, *time.Time) {
	if in.BrightShadow != nil && *in.BrightShadow > in.ShadowThreshold {
		return shading.ModeShadow, nil
	}
	if !in.InSun {
		return shading.ModeNeutral, nil
	}
	if expired(now, timer) {
		return shading.ModeHorizontalToNeutralTimer, arm(now, sm.Delays.HorizontalToNeutralDelay)
	}
	return shading.ModeShadowToHorizontalTimer, timer
}

func (sm *StateMachine) fromHorizontalToNeutralTimer(timer *time.Time, now time.Time, in Inputs) (shading.Mode, *time.Time) {
	if in.InSun && in.BrightShadow != nil && *in.BrightShadow > in.ShadowThreshold {
		return shading.ModeShadow, nil
	}
	if expired(now, timer) {
		return shading.ModeNeutral, nil
	}
	if !in.InSun {
		return shading.ModeNeutral, nil
	}
	return shading.ModeHorizontalToNeutralTimer, timer
}

// fromShadowToNeutralTimer is the Shutter variant's collapsed +3 timer. On
// re-entry into the same state (the "nothing to change" branch) the timer
// is left exactly as it was -- preserved intentionally as debounce, per
// DESIGN.md's Open Question 2 resolution, rather than re-armed.
func (sm *StateMachine) fromShadowToNeutralTimer(timer *time.Time, now time.Time, in Inputs) (shading.Mode, *time.Time) {
	if !in.InSun || !in.ShadowActive {
		return shading.ModeNeutral, nil
	}
	if in.BrightShadow != nil && *in.BrightShadow > in.ShadowThreshold {
		return shading.ModeShadow, nil
	}
	if expired(now, timer) {
		return shading.ModeNeutral, nil
	}
	return shading.ModeShadowToNeutralTimer, timer
}

func (sm *StateMachine) fromNeutralToDawnTimer(timer *time.Time, now time.Time, in Inputs) (shading.Mode, *time.Time) {
	if !in.DawnActive {
		return shading.ModeNeutral, nil
	}
	if in.BrightDawn != nil && *in.BrightDawn > in.DawnThreshold {
		return shading.ModeNeutral, nil
	}
	if expired(now, timer) {
		return shading.ModeDawn, nil
	}
	return shading.ModeNeutralToDawnTimer, timer
}

func (sm *StateMachine) fromDawn(now time.Time, in Inputs) (shading.Mode, *time.Time) {
	if !in.DawnActive {
		return shading.ModeNeutral, nil
	}
	if in.BrightDawn != nil && *in.BrightDawn > in.DawnThreshold {
		if sm.Variant == VariantShutter {
			return shading.ModeDawnToNeutralTimer, arm(now, sm.Delays.DawnToNeutralDelay)
		}
		return shading.ModeDawnToHorizontalTimer, arm(now, sm.Delays.DawnToHorizontalDelay)
	}
	return shading.ModeDawn, nil
}

func (sm *StateMachine) fromDawnToHorizontalTimer(timer *time.Time, now time.Time, in Inputs) (shading.Mode, *time.Time) {
	if !in.DawnActive {
		return shading.ModeNeutral, nil
	}
	if in.BrightDawn != nil && *in.BrightDawn < in.DawnThreshold {
		return shading.ModeDawn, nil
	}
	if expired(now, timer) {
		return shading.ModeDawnHorizontalToNeutralTimer, arm(now, sm.Delays.DawnHorizontalToNeutralDelay)
	}
	return shading.ModeDawnToHorizontalTimer, timer
}

func (sm *StateMachine) fromDawnHorizontalToNeutralTimer(timer *time.Time, now time.Time, in Inputs) (shading.Mode, *time.Time) {
	if !in.DawnActive {
		return shading.ModeNeutral, nil
	}
	if in.BrightDawn != nil && *in.BrightDawn < in.DawnThreshold {
		return shading.ModeDawn, nil
	}
	if expired(now, timer) {
		return shading.ModeNeutral, nil
	}
	return shading.ModeDawnHorizontalToNeutralTimer, timer
}

// fromDawnToNeutralTimer is the Shutter variant's collapsed -3 timer, same
// debounce behaviour as fromShadowToNeutralTimer.
func (sm *StateMachine) fromDawnToNeutralTimer(timer *time.Time, now time.Time, in Inputs) (shading.Mode, *time.Time) {
	if !in.DawnActive {
		return shading.ModeNeutral, nil
	}
	if in.BrightDawn != nil && *in.BrightDawn < in.DawnThreshold {
		return shading.ModeDawn, nil
	}
	if expired(now, timer) {
		return shading.ModeNeutral, nil
	}
	return shading.ModeDawnToNeutralTimer, timer
}

// Target is a raw (height, tilt) pair before the constraint stack runs.
// Tilt is meaningless for Shutter and left at zero.
type Target struct {
	Height int
	Tilt   int
}

// RawTarget maps the current mode to a raw target position, before
// geometry and constraints are applied.
// calculatedHeight/calculatedTilt come from the GeometrySolver for the
// active-shading modes.
func RawTarget(variant Variant, mode shading.Mode, neutralHeight, neutralAngle, calculatedHeight, calculatedTilt, shadowHeight, shadowHorizontalAngle, dawnHeight, dawnAngle, dawnHorizontalAngle int) (Target, error) {
	switch mode {
	case shading.ModeNeutral, shading.ModeNeutralToShadowTimer, shading.ModeNeutralToDawnTimer:
		return Target{Height: neutralHeight, Tilt: neutralAngle}, nil
	case shading.ModeShadow:
		return Target{Height: calculatedHeight, Tilt: calculatedTilt}, nil
	case shading.ModeShadowToHorizontalTimer: // == ModeShadowToNeutralTimer
		if variant == VariantShutter {
			return Target{Height: calculatedHeight, Tilt: calculatedTilt}, nil
		}
		return Target{Height: calculatedHeight, Tilt: calculatedTilt}, nil
	case shading.ModeHorizontalToNeutralTimer:
		return Target{Height: shadowHeight, Tilt: shadowHorizontalAngle}, nil
	case shading.ModeDawn, shading.ModeDawnToHorizontalTimer: // latter == ModeDawnToNeutralTimer
		return Target{Height: dawnHeight, Tilt: dawnAngle}, nil
	case shading.ModeDawnHorizontalToNeutralTimer:
		return Target{Height: dawnHeight, Tilt: dawnHorizontalAngle}, nil
	default:
		return Target{Height: neutralHeight, Tilt: neutralAngle}, shading.ErrUnknownMode
	}
}
