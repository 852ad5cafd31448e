// Package controller wires the StateMachine, GeometrySolver, ConstraintStack,
// Actuator and OverrideDetector into a single per-device aggregate,
// including the re-entrancy guard and bootstrap flow.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/tobiasrehn/shadeflow/internal/entitytemplate"
	"github.com/tobiasrehn/shadeflow/internal/hostadapter"
	"github.com/tobiasrehn/shadeflow/internal/shading"
	"github.com/tobiasrehn/shadeflow/internal/shading/actuator"
	"github.com/tobiasrehn/shadeflow/internal/shading/constraints"
	"github.com/tobiasrehn/shadeflow/internal/shading/geometry"
	"github.com/tobiasrehn/shadeflow/internal/shading/override"
	"github.com/tobiasrehn/shadeflow/internal/shading/statemachine"
	"github.com/tobiasrehn/shadeflow/internal/snapshot"
	"github.com/tobiasrehn/shadeflow/pkg/config"
)

// AuditSink receives control-loop events for optional persistence. The
// no-op implementation lives in internal/audit; the control loop never
// blocks on or fails because of a sink error (SPEC_FULL.md sec 6.4).
type AuditSink interface {
	RecordModeTransition(uniqueID string, from, to shading.Mode, at time.Time)
	RecordLockChange(uniqueID, lockName string, on bool, at time.Time)
	RecordSolarHeatingChange(uniqueID string, on bool, at time.Time)
}

type noopAudit struct{}

func (noopAudit) RecordModeTransition(string, shading.Mode, shading.Mode, time.Time) {}
func (noopAudit) RecordLockChange(string, string, bool, time.Time)                   {}
func (noopAudit) RecordSolarHeatingChange(string, bool, time.Time)                   {}

// Controller is one per physical shading device.
type Controller struct {
	Config *config.Config
	Host   hostadapter.HostAdapter
	Logger *slog.Logger
	Audit  AuditSink

	sm        *statemachine.StateMachine
	act       *actuator.Actuator
	overrideD *override.Detector
	heatState *constraints.SolarHeatingState

	mu    sync.Mutex
	tick  sync.Mutex // re-entrancy guard: a busy tick drops concurrent callers
	state shading.State
}

// New constructs a Controller from config and a host adapter. It does not
// contact the host; call Bootstrap before the first Tick.
func New(cfg *config.Config, host hostadapter.HostAdapter, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}

	variant := statemachine.VariantBlinds
	ceiling := override.CeilingBlinds
	isShutter := cfg.Variant == config.VariantShutter
	if isShutter {
		variant = statemachine.VariantShutter
		ceiling = override.CeilingShutter
	}

	c := &Controller{
		Config: cfg,
		Host:   host,
		Logger: logger,
		Audit:  noopAudit{},
		sm: &statemachine.StateMachine{
			Variant: variant,
			Delays: statemachine.Delays{
				NeutralToShadowDelay:         cfg.Delays.NeutralToShadowDelay,
				NeutralToDawnDelay:           cfg.Delays.NeutralToDawnDelay,
				ShadowToHorizontalDelay:      cfg.Delays.ShadowToHorizontalDelay,
				HorizontalToNeutralDelay:     cfg.Delays.HorizontalToNeutralDelay,
				DawnToHorizontalDelay:        cfg.Delays.DawnToHorizontalDelay,
				DawnHorizontalToNeutralDelay: cfg.Delays.DawnHorizontalToNeutralDelay,
				ShadowToNeutralDelay:         cfg.Delays.ShadowToNeutralDelay,
				DawnToNeutralDelay:           cfg.Delays.DawnToNeutralDelay,
			},
			Logger: logger,
		},
		act: &actuator.Actuator{
			Host:      host,
			Entity:    cfg.Entities.Cover,
			HasTilt:   !isShutter,
			HeightTol: cfg.MoveConstraints.HeightTolerance,
			AngleTol:  cfg.MoveConstraints.AngleTolerance,
			IsShutter: isShutter,
			Logger:    logger,
		},
		overrideD: &override.Detector{
			Ceiling:             ceiling,
			HeightTolerance:     cfg.MoveConstraints.HeightTolerance,
			AngleTolerance:      cfg.MoveConstraints.AngleTolerance,
			HasTilt:             !isShutter,
			ExternalLockMinutes: cfg.ExternalLockMinutes,
			Logger:              logger,
		},
		heatState: &constraints.SolarHeatingState{},
	}
	c.state.Mode = shading.ModeNeutral
	return c
}

// Bootstrap loads any fresh snapshot and verifies the managed boolean
// entities exist on the host. Every managed boolean is registered with
// collector; if any are missing on the host it returns a
// *shading.NeedsOperatorSetup value carrying the rendered template. Writing
// the template file is left to the caller.
func (c *Controller) Bootstrap(ctx context.Context, collector *entitytemplate.Collector) error {
	if err := c.Config.Validate(); err != nil {
		return fmt.Errorf("controller: %w: %v", shading.ErrInvalidConfig, err)
	}

	now := c.Host.Now()
	kind := "blind"
	if c.Config.Variant == config.VariantShutter {
		kind = "shutter"
	}

	booleans := entitytemplate.BooleansFor(c.Config.UniqueID, kind, c.Config.SolarHeatingAvailable)

	var missing []string
	for _, b := range booleans {
		v, err := c.Host.GetState(ctx, b.EntityID)
		if err != nil || !v.Valid {
			missing = append(missing, b.EntityID)
		}
		collector.AddBoolean(b.EntityID, b.FriendlyName, b.Icon)
	}

	if len(missing) > 0 {
		return &shading.NeedsOperatorSetup{
			UniqueID: c.Config.UniqueID,
			Missing:  missing,
			Template: collector.Render(),
		}
	}

	path := snapshot.Path(c.Host.AppDir(), c.Config.UniqueID)
	if mode, timer, ok := snapshot.Load(path, now); ok {
		c.mu.Lock()
		c.state.Mode = mode
		c.state.TransitionTimer = timer
		c.mu.Unlock()
		c.Logger.Info("controller: restored snapshot", "unique_id", c.Config.UniqueID, "mode", mode.String())
	}

	return nil
}

// Tick runs one control-loop evaluation. Concurrent invocations (from the
// scheduler and from event handlers) are serialised: a caller that arrives
// while a tick is already running drops its own invocation rather than
// block or interleave.
func (c *Controller) Tick(ctx context.Context, now time.Time) {
	if !c.tick.TryLock() {
		c.Logger.Debug("controller: tick already running, dropping overlap", "unique_id", c.Config.UniqueID)
		return
	}
	defer c.tick.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := c.Config
	s := &c.state

	reconcileLocks(now, s)

	in := c.buildInputs(s)
	prevMode := s.Mode
	newMode, newTimer := c.sm.Tick(s.Mode, s.TransitionTimer, now, in)
	if newMode != prevMode {
		c.Audit.RecordModeTransition(cfg.UniqueID, prevMode, newMode, now)
		c.Logger.Info("controller: mode transition", "unique_id", cfg.UniqueID, "from", prevMode.String(), "to", newMode.String())
	}
	s.Mode = newMode
	s.TransitionTimer = newTimer

	variant := statemachine.VariantBlinds
	if cfg.Variant == config.VariantShutter {
		variant = statemachine.VariantShutter
	}

	calcHeight, calcTilt := c.calculateTarget(s)

	target, err := statemachine.RawTarget(variant, s.Mode,
		cfg.Neutral.NeutralHeight, cfg.Neutral.NeutralAngle,
		calcHeight, calcTilt,
		cfg.Shadow.ShadowHeight, cfg.Shadow.ShadowHorizontalAngle,
		cfg.Dawn.DawnHeight, cfg.Dawn.DawnAngle, cfg.Dawn.DawnHorizontalAngle)
	if err != nil {
		c.Logger.Error("controller: unknown mode, using neutral target", "unique_id", cfg.UniqueID, "error", err)
	}

	current := constraints.Position{Tilt: 0}
	if s.CurrentHeight != nil {
		current.Height = *s.CurrentHeight
	}
	if s.CurrentTilt != nil {
		current.Tilt = *s.CurrentTilt
	}

	pos := constraints.Position{Height: target.Height, Tilt: target.Tilt}
	hasTilt := cfg.Variant != config.VariantShutter

	windowOpenBool := false
	if s.Sensors.WindowOpen != nil {
		windowOpenBool = *s.Sensors.WindowOpen
	}
	pos = constraints.Ventilation(cfg.VentilationActive, windowOpenBool, hasTilt, cfg.Ventilation.Height, cfg.Ventilation.Angle)(current, pos)

	var publishHeating bool
	pos, publishHeating = constraints.SolarHeating(cfg.SolarHeatingAvailable, c.heatState, s.Sensors.IndoorTemperature,
		cfg.SolarHeating.Temperature, cfg.SolarHeating.Hysteresis, hasTilt,
		cfg.SolarHeating.Height, cfg.SolarHeating.Angle)(current, pos)
	if publishHeating != s.SolarHeatingStatus {
		s.SolarHeatingStatus = publishHeating
		c.Audit.RecordSolarHeatingChange(cfg.UniqueID, publishHeating, now)
		_ = c.Host.SetState(ctx, fmt.Sprintf("input_boolean.%s_solar_heating_status", cfg.UniqueID), boolState(publishHeating))
	}

	pos = constraints.PostDuskUpLock(cfg.Dawn.PreventMoveUpAfterDusk, now, s.Sensors.NextDusk)(current, pos)
	pos = constraints.LockoutProtection(cfg.LockoutProtectionActive, s.Sensors.WindowOpen)(current, pos)
	pos = constraints.FullyOpenTiltCoupling(hasTilt)(current, pos)

	pos = constraints.ClampAndStep(pos,
		cfg.MoveConstraints.MinHeight, cfg.MoveConstraints.MaxHeight, cfg.MoveConstraints.HeightStep,
		cfg.MoveConstraints.MinAngle, cfg.MoveConstraints.MaxAngle, cfg.MoveConstraints.AngleStep)

	c.act.SetPosition(ctx, s, pos.Height, pos.Tilt)

	if cfg.SaveStates {
		path := snapshot.Path(c.Host.AppDir(), cfg.UniqueID)
		if err := snapshot.Save(path, now, s.Mode, s.TransitionTimer); err != nil {
			c.Logger.Warn("controller: snapshot save failed", "unique_id", cfg.UniqueID, "error", err)
		}
	}
}

func boolState(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func reconcileLocks(now time.Time, s *shading.State) {
	if override.Reconcile(now, s.Locks.External, s.ExternalLockDeadline) {
		s.Locks.External = false
		s.ExternalLockDeadline = nil
	}
}

func (c *Controller) calculateTarget(s *shading.State) (height, tilt int) {
	cfg := c.Config
	dev := geometry.SignedDeviation(s.Sensors.Azimuth, float64(cfg.Facade.FacadeAngle))

	if cfg.Variant == config.VariantShutter {
		h := geometry.LightStripHeight(geometry.LightStripParams{
			Elevation:   s.Sensors.Elevation,
			LightStrip:  float64(cfg.Shadow.LightStripHeight),
			TotalHeight: float64(cfg.Shadow.TotalHeight),
			HeightStep:  cfg.MoveConstraints.HeightStep,
			MinHeight:   cfg.MoveConstraints.MinHeight,
			MaxHeight:   cfg.MoveConstraints.MaxHeight,
		})
		return h, 0
	}

	height = geometry.BlindsHeight(cfg.Blinds.LightStripEnabled, cfg.Shadow.ShadowHeight, geometry.LightStripParams{
		Elevation:   s.Sensors.Elevation,
		LightStrip:  cfg.Blinds.LightStrip,
		TotalHeight: cfg.Blinds.TotalHeight,
		HeightStep:  cfg.MoveConstraints.HeightStep,
		MinHeight:   cfg.MoveConstraints.MinHeight,
		MaxHeight:   cfg.MoveConstraints.MaxHeight,
	})

	tilt = geometry.TiltPercent(geometry.TiltParams{
		Elevation:    s.Sensors.Elevation,
		SlatDistance: cfg.Blinds.SlatDistance,
		SlatWidth:    cfg.Blinds.SlatWidth,
		Deviation:    dev,
		AngleOffset:  cfg.Blinds.AngleOffset,
		AngleStep:    cfg.MoveConstraints.AngleStep,
		MinAngle:     cfg.MoveConstraints.MinAngle,
		MaxAngle:     cfg.MoveConstraints.MaxAngle,
	})

	return height, tilt
}

func (c *Controller) buildInputs(s *shading.State) statemachine.Inputs {
	cfg := c.Config

	inSun := geometry.InSun(geometry.Facade{
		Angle:        float64(cfg.Facade.FacadeAngle),
		OffsetEntry:  float64(cfg.Facade.OffsetEntry),
		OffsetExit:   float64(cfg.Facade.OffsetExit),
		MinElevation: float64(cfg.Facade.MinElevation),
		MaxElevation: float64(cfg.Facade.MaxElevation),
	}, s.Sensors.Azimuth, s.Sensors.Elevation)

	shadowThreshold := cfg.Shadow.BrightnessThreshold
	if s.Sensors.ShadowThreshold != nil {
		shadowThreshold = *s.Sensors.ShadowThreshold
	}

	brightDawn := s.Sensors.BrightnessDawn
	if brightDawn == nil {
		brightDawn = s.Sensors.BrightnessShadow
	}

	return statemachine.Inputs{
		InSun:           inSun,
		ShadowActive:    cfg.ShadowActive,
		DawnActive:      cfg.DawnActive,
		BrightShadow:    s.Sensors.BrightnessShadow,
		BrightDawn:      brightDawn,
		ShadowThreshold: shadowThreshold,
		DawnThreshold:   cfg.Dawn.BrightnessThreshold,
	}
}

// OnCoverTelemetry applies one cover entity state update: it updates the
// moving flag and current_* bookkeeping, then -- for a settled state --
// runs OverrideDetector correlation.
func (c *Controller) OnCoverTelemetry(ctx context.Context, now time.Time, state string, position, tiltPosition *int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &c.state

	switch state {
	case "opening", "closing", "unknown", "unavailable":
		s.Moving = true
		return
	}

	s.Moving = false
	if position != nil {
		s.CurrentHeight = position
	}
	if tiltPosition != nil {
		s.CurrentTilt = tiltPosition
	}

	s.AutomatedChangeCounter++

	res := c.overrideD.OnSettledTelemetry(now, s.CurrentHeight, s.CurrentTilt, s.ExpectedHeight, s.ExpectedTilt, s.AutomatedChangeCounter, s.Locks.Any())

	if res.ExternalLockCleared {
		s.Locks.External = false
		s.ExternalLockDeadline = nil
		reconcileLocks(now, s)
	}
	if res.ExternalLockRaised {
		s.Locks.External = true
		deadline := c.overrideD.ExternalLockDeadline(now)
		s.ExternalLockDeadline = &deadline
		c.Audit.RecordLockChange(c.Config.UniqueID, "external", true, now)
		_ = c.Host.SetState(ctx, fmt.Sprintf("input_boolean.%s_locked_external", c.Config.UniqueID), "on")
	}
	if res.ExpectedCleared {
		s.ExpectedHeight = nil
		s.ExpectedTilt = nil
	}
}

// OnSunStateChanged reads azimuth, elevation and next_dusk off the host's
// sun entity attributes.
func (c *Controller) OnSunStateChanged(ctx context.Context, entity string, old, v hostadapter.StateValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !v.Valid {
		return
	}
	if az, ok := v.Attributes["azimuth"].(float64); ok {
		c.state.Sensors.Azimuth = az
	}
	if el, ok := v.Attributes["elevation"].(float64); ok {
		c.state.Sensors.Elevation = el
	}
	if nd, ok := v.Attributes["next_dusk"].(string); ok {
		if t, err := time.Parse(time.RFC3339, nd); err == nil {
			c.state.Sensors.NextDusk = &t
		}
	}
}

// OnBrightnessShadowChanged updates the shadow-trigger brightness sensor.
func (c *Controller) OnBrightnessShadowChanged(ctx context.Context, entity string, old, v hostadapter.StateValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !v.Valid {
		return
	}
	if n, ok := parseNumeric(v.State); ok {
		iv := int(n)
		c.state.Sensors.BrightnessShadow = &iv
	}
}

// OnBrightnessDawnChanged updates the dawn-trigger brightness sensor.
func (c *Controller) OnBrightnessDawnChanged(ctx context.Context, entity string, old, v hostadapter.StateValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !v.Valid {
		return
	}
	if n, ok := parseNumeric(v.State); ok {
		iv := int(n)
		c.state.Sensors.BrightnessDawn = &iv
	}
}

// OnWindowStateChanged updates the window-open sensor consumed by the
// Ventilation and LockoutProtection constraints.
func (c *Controller) OnWindowStateChanged(ctx context.Context, entity string, old, v hostadapter.StateValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !v.Valid {
		c.state.Sensors.WindowOpen = nil
		return
	}
	open := v.State == "on" || v.State == "open"
	c.state.Sensors.WindowOpen = &open
}

// OnClimateStateChanged updates the indoor-temperature reading consumed by
// the SolarHeating constraint.
func (c *Controller) OnClimateStateChanged(ctx context.Context, entity string, old, v hostadapter.StateValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !v.Valid {
		return
	}
	if t, ok := v.Attributes["current_temperature"].(float64); ok {
		c.state.Sensors.IndoorTemperature = &t
		return
	}
	if n, ok := parseNumeric(v.State); ok {
		c.state.Sensors.IndoorTemperature = &n
	}
}

// SetManualLock sets or clears the manual lock from the operator API and
// mirrors it to the managed boolean entity.
func (c *Controller) SetManualLock(on bool) {
	c.mu.Lock()
	changed := c.state.Locks.Manual != on
	c.state.Locks.Manual = on
	c.mu.Unlock()

	if !changed {
		return
	}

	now := c.Host.Now()
	c.Audit.RecordLockChange(c.Config.UniqueID, "manual", on, now)

	kind := "blind"
	if c.Config.Variant == config.VariantShutter {
		kind = "shutter"
	}
	_ = c.Host.SetState(context.Background(), fmt.Sprintf("input_boolean.%s_%s_locked", c.Config.UniqueID, kind), boolState(on))
}

// State returns a copy of the current runtime state, for the operator API
// and the dashboard.
func (c *Controller) State() shading.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// parseNumeric parses a host entity state string, treating "unknown" and
// "unavailable" as "no update" rather than a numeric zero.
func parseNumeric(raw string) (float64, bool) {
	if raw == "" || raw == "unknown" || raw == "unavailable" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
