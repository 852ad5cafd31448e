// Package config loads and validates the per-device shading configuration.
//
// A Config is immutable once validated: the control loop never mutates it,
// matching the data model's "Configuration (immutable after construction)"
// requirement.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Variant selects which device kind a Config describes.
type Variant string

const (
	VariantBlinds  Variant = "blinds"
	VariantShutter Variant = "shutter"
)

// Config is the complete configuration for one shading device.
type Config struct {
	UniqueID string  `json:"unique_id"`
	Name     string  `json:"name"`
	Variant  Variant `json:"variant"`

	Entities EntitiesConfig `json:"entities"`

	Facade          FacadeConfig          `json:"facade"`
	MoveConstraints MoveConstraintsConfig `json:"move_constraints"`
	Blinds          BlindsConfig          `json:"blinds"`
	Neutral         NeutralConfig         `json:"neutral"`

	ShadowActive bool         `json:"shadow_active"`
	Shadow       ShadowConfig `json:"shadow"`

	DawnActive bool       `json:"dawn_active"`
	Dawn       DawnConfig `json:"dawn"`

	Delays DelaysConfig `json:"delays"`

	VentilationActive bool              `json:"ventilation_active"`
	Ventilation       VentilationConfig `json:"ventilation"`

	LockoutProtectionActive bool `json:"lockout_protection_active"`

	SolarHeatingAvailable bool               `json:"solar_heating_available"`
	SolarHeating          SolarHeatingConfig `json:"solar_heating"`

	ExternalLockMinutes int `json:"external_lock_minutes"`

	SaveStates bool `json:"save_states"`
	Debug      bool `json:"debug"`

	Audit AuditConfig `json:"audit"`
}

// EntitiesConfig names every host entity this controller reads or writes.
type EntitiesConfig struct {
	Cover            string `json:"cover"`
	BrightnessShadow string `json:"brightness_shadow"`
	BrightnessDawn   string `json:"brightness_dawn,omitempty"`
	WindowSensor     string `json:"window_sensor,omitempty"`
	Climate          string `json:"climate,omitempty"`
	Sun              string `json:"sun"`
}

// FacadeConfig describes the facade the device is mounted on.
type FacadeConfig struct {
	FacadeAngle  int `json:"facade_angle"`
	OffsetEntry  int `json:"facade_offset_entry"`
	OffsetExit   int `json:"facade_offset_exit"`
	MinElevation int `json:"min_elevation"`
	MaxElevation int `json:"max_elevation"`
}

// MoveConstraintsConfig bounds the height and (blinds) tilt channels.
type MoveConstraintsConfig struct {
	MinAngle        int `json:"min_angle"`
	MaxAngle        int `json:"max_angle"`
	MinHeight       int `json:"min_height"`
	MaxHeight       int `json:"max_height"`
	HeightStep      int `json:"height_step"`
	AngleStep       int `json:"angle_step"`
	HeightTolerance int `json:"height_tolerance"`
	AngleTolerance  int `json:"angle_tolerance"`
}

// BlindsConfig carries the slat geometry. LightStripEnabled/LightStrip/
// TotalHeight apply only to the Blinds variant's disabled-by-default
// light-strip calculation; the Shutter variant reads its light strip from
// ShadowConfig.
type BlindsConfig struct {
	SlatWidth         float64 `json:"slat_width"`
	SlatDistance      float64 `json:"slat_distance"`
	AngleOffset       int     `json:"angle_offset"`
	LightStripEnabled bool    `json:"light_strip_enabled"`
	LightStrip        float64 `json:"light_strip"`
	TotalHeight       float64 `json:"total_height"`
}

// NeutralConfig is the device's rest position.
type NeutralConfig struct {
	NeutralHeight int `json:"neutral_height"`
	NeutralAngle  int `json:"neutral_angle"`
}

// ShadowConfig is the active sun-shading position and its trigger threshold.
type ShadowConfig struct {
	ShadowHeight          int `json:"shadow_height"`
	ShadowHorizontalAngle int `json:"shadow_horizontal_angle"`
	BrightnessThreshold   int `json:"shadow_brightness_threshold"`
	LightStripHeight      int `json:"light_strip_height"`
	TotalHeight           int `json:"total_height"`
}

// DawnConfig is the dark/privacy position and its trigger threshold.
type DawnConfig struct {
	DawnHeight             int  `json:"dawn_height"`
	DawnAngle              int  `json:"dawn_angle"`
	DawnHorizontalAngle    int  `json:"dawn_horizontal_angle"`
	BrightnessThreshold    int  `json:"dawn_brightness_threshold"`
	PreventMoveUpAfterDusk bool `json:"prevent_move_up_after_dusk"`
}

// DelaysConfig holds every named transition-timer duration, in seconds.
// The Blinds variant uses the four Horizontal* delays to pass through the
// transitional Horizontal rest state; the Shutter variant, having no tilt
// channel to ease through, collapses that pair into a single
// ShadowToNeutralDelay/DawnToNeutralDelay each.
type DelaysConfig struct {
	NeutralToShadowDelay         int `json:"neutral_to_shadow_delay"`
	NeutralToDawnDelay           int `json:"neutral_to_dawn_delay"`
	ShadowToHorizontalDelay      int `json:"shadow_to_horizontal_delay"`
	HorizontalToNeutralDelay     int `json:"horizontal_to_neutral_delay"`
	DawnToHorizontalDelay        int `json:"dawn_to_horizontal_delay"`
	DawnHorizontalToNeutralDelay int `json:"dawn_horizontal_to_neutral_delay"`
	ShadowToNeutralDelay         int `json:"shadow_to_neutral_delay"`
	DawnToNeutralDelay           int `json:"dawn_to_neutral_delay"`
}

// VentilationConfig forces a partially-open position while a window is open.
type VentilationConfig struct {
	Height int `json:"ventilation_height"`
	Angle  int `json:"ventilation_angle"`
}

// SolarHeatingConfig drives the hysteretic solar-heating assist.
type SolarHeatingConfig struct {
	Temperature float64 `json:"solar_heating_temperature"`
	Hysteresis  float64 `json:"solar_heating_hysterese"`
	Height      int     `json:"solar_heating_height"`
	Angle       int     `json:"solar_heating_angle"`
}

// AuditConfig configures the optional Postgres audit sink (domain-stack
// expansion, see SPEC_FULL.md sec 6.4). Empty DSN disables the sink.
type AuditConfig struct {
	DSN          string `json:"dsn,omitempty"`
	MaxOpenConns int    `json:"max_open_conns,omitempty"`
	MaxIdleConns int    `json:"max_idle_conns,omitempty"`
}

// DefaultConfig returns a configuration with the same defaults the original
// automation shipped (see original_source/blinds.py DEFAULT_CONFIG).
func DefaultConfig() *Config {
	return &Config{
		Variant: VariantBlinds,
		Facade: FacadeConfig{
			OffsetEntry:  -90,
			OffsetExit:   90,
			MinElevation: 0,
			MaxElevation: 90,
		},
		MoveConstraints: MoveConstraintsConfig{
			MinAngle:        0,
			MaxAngle:        100,
			MinHeight:       0,
			MaxHeight:       100,
			HeightStep:      5,
			AngleStep:       5,
			HeightTolerance: 5,
			AngleTolerance:  5,
		},
		Blinds: BlindsConfig{
			SlatWidth:    90,
			SlatDistance: 80,
		},
		Neutral: NeutralConfig{
			NeutralHeight: 100,
			NeutralAngle:  100,
		},
		ShadowActive: true,
		Shadow: ShadowConfig{
			ShadowHorizontalAngle: 100,
			BrightnessThreshold:   50000,
			ShadowHeight:          0,
		},
		DawnActive: true,
		Dawn: DawnConfig{
			DawnHeight:             0,
			DawnAngle:              0,
			DawnHorizontalAngle:    0,
			BrightnessThreshold:    10,
			PreventMoveUpAfterDusk: true,
		},
		Delays: DelaysConfig{
			NeutralToShadowDelay:         165,
			NeutralToDawnDelay:           315,
			ShadowToHorizontalDelay:      615,
			HorizontalToNeutralDelay:     915,
			DawnToHorizontalDelay:        75,
			DawnHorizontalToNeutralDelay: 915,
			ShadowToNeutralDelay:         615,
			DawnToNeutralDelay:           915,
		},
		ExternalLockMinutes: 30,
	}
}

// Load reads configuration from a JSON file. If the file doesn't exist, it
// returns the default configuration. Environment variables are then
// applied on top, so secrets (e.g. the audit DSN) never need to live in
// the config file on disk.
func Load(path string) (*Config, error) {
	var cfg *Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg = DefaultConfig()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		cfg = DefaultConfig()
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvironmentOverrides()

	return cfg, nil
}

// Save writes the configuration to a JSON file, creating parent directories
// as needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides applies SHADEFLOW_*-prefixed environment
// variable overrides, keeping secrets like the audit DSN out of the config
// file on disk.
func (c *Config) applyEnvironmentOverrides() {
	if dsn := os.Getenv("SHADEFLOW_AUDIT_DSN"); dsn != "" {
		c.Audit.DSN = dsn
	}
	if v := os.Getenv("SHADEFLOW_EXTERNAL_LOCK_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ExternalLockMinutes = n
		}
	}
	if v := os.Getenv("SHADEFLOW_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
}

// Validate checks every cross-field configuration invariant and is fatal
// at initialisation if violated. Entity-existence checks are not
// performed here: they require a live host and are done by
// Controller.Bootstrap instead (see internal/shading/controller).
func (c *Config) Validate() error {
	var errs []string

	if c.UniqueID == "" {
		errs = append(errs, "unique_id is required")
	}
	if c.Entities.Cover == "" {
		errs = append(errs, "entities.cover is required")
	}
	if c.Entities.BrightnessShadow == "" {
		errs = append(errs, "entities.brightness_shadow is required")
	}
	if c.Facade.MinElevation >= c.Facade.MaxElevation {
		errs = append(errs, "facade.min_elevation must be less than facade.max_elevation")
	}
	if c.Facade.OffsetEntry >= c.Facade.OffsetExit {
		errs = append(errs, "facade.facade_offset_entry must be less than facade.facade_offset_exit")
	}
	if c.Facade.OffsetEntry < -180 || c.Facade.OffsetEntry > 180 {
		errs = append(errs, "facade.facade_offset_entry must be within -180..180")
	}
	if c.Facade.OffsetExit < -180 || c.Facade.OffsetExit > 180 {
		errs = append(errs, "facade.facade_offset_exit must be within -180..180")
	}
	if c.MoveConstraints.MinHeight >= c.MoveConstraints.MaxHeight {
		errs = append(errs, "move_constraints.min_height must be less than move_constraints.max_height")
	}
	if c.Variant == VariantBlinds && c.MoveConstraints.MinAngle >= c.MoveConstraints.MaxAngle {
		errs = append(errs, "move_constraints.min_angle must be less than move_constraints.max_angle")
	}
	if c.Variant != VariantBlinds && c.Variant != VariantShutter {
		errs = append(errs, "variant must be \"blinds\" or \"shutter\"")
	}

	if c.VentilationActive && c.Entities.WindowSensor == "" {
		errs = append(errs, "ventilation_active requires entities.window_sensor")
	}
	if c.LockoutProtectionActive && c.Entities.WindowSensor == "" {
		errs = append(errs, "lockout_protection_active requires entities.window_sensor")
	}
	if c.SolarHeatingAvailable {
		if c.Entities.Climate == "" {
			errs = append(errs, "solar_heating_available requires entities.climate")
		}
		if c.SolarHeating.Hysteresis < 0 {
			errs = append(errs, "solar_heating.solar_heating_hysterese must not be negative")
		}
	}
	if c.Variant == VariantShutter && c.Blinds.TotalHeight < 0 {
		errs = append(errs, "blinds.total_height must not be negative")
	}
	if c.ExternalLockMinutes < 0 {
		errs = append(errs, "external_lock_minutes must not be negative")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ValidationError reports every configuration problem found by Validate, so
// an operator sees the whole list rather than one error at a time.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	msg := "configuration validation failed:"
	for _, s := range e.Errors {
		msg += "\n  - " + s
	}
	return msg
}
