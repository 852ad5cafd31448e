// Package actuator implements tolerance-suppressed command issuance with
// lock-aware no-ops and expected/current bookkeeping.
package actuator

import (
	"context"
	"log/slog"

	"github.com/tobiasrehn/shadeflow/internal/hostadapter"
	"github.com/tobiasrehn/shadeflow/internal/shading"
)

// Actuator issues cover/set_cover_position and cover/set_cover_tilt_position
// service calls through a HostAdapter, suppressing commands that fall
// within tolerance of the current position.
type Actuator struct {
	Host          hostadapter.HostAdapter
	Entity        string
	HasTilt       bool
	HeightTol     int
	AngleTol      int
	IsShutter     bool
	Logger        *slog.Logger
}

func (a *Actuator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func withinTolerance(current, target, tolerance int) bool {
	lo := clamp(target-tolerance, 0, 100)
	hi := clamp(target+tolerance, 0, 100)
	return current >= lo && current <= hi
}

// SetPosition issues height (and, for Blinds, tilt) commands, subject to
// lock suppression, shutter's moving/unacknowledged-command refusal, and
// per-channel tolerance suppression. state is mutated in place to update
// expected_* and the automated-change counter on success.
func (a *Actuator) SetPosition(ctx context.Context, state *shading.State, targetHeight, targetTilt int) {
	if state.Locks.Any() {
		return
	}

	if a.IsShutter {
		if state.Moving {
			a.logger().Debug("actuator: device already moving, skipping command", "entity", a.Entity)
			return
		}
		if state.AutomatedChangeCounter == 0 && state.ExpectedHeight != nil {
			a.logger().Debug("actuator: prior command not yet acknowledged, skipping command", "entity", a.Entity)
			return
		}
	}

	heightNeeded := state.CurrentHeight == nil || !withinTolerance(*state.CurrentHeight, targetHeight, a.HeightTol)
	tiltNeeded := a.HasTilt && (state.CurrentTilt == nil || !withinTolerance(*state.CurrentTilt, targetTilt, a.AngleTol))

	if !heightNeeded && !tiltNeeded {
		return
	}

	if heightNeeded {
		res, err := a.Host.CallService(ctx, "cover", "set_cover_position", a.Entity, map[string]any{
			"position": targetHeight,
		})
		if err != nil || !res.Success {
			a.logger().Warn("actuator: set_cover_position failed", "entity", a.Entity, "error", err)
		} else {
			h := targetHeight
			state.ExpectedHeight = &h
			state.AutomatedChangeCounter = 0
		}
	}

	if tiltNeeded {
		res, err := a.Host.CallService(ctx, "cover", "set_cover_tilt_position", a.Entity, map[string]any{
			"tilt_position": targetTilt,
		})
		if err != nil || !res.Success {
			a.logger().Warn("actuator: set_cover_tilt_position failed", "entity", a.Entity, "error", err)
		} else {
			tl := targetTilt
			state.ExpectedTilt = &tl
			state.AutomatedChangeCounter = 0
		}
	}
}
