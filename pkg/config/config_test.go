package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, VariantBlinds, cfg.Variant)
	assert.Equal(t, -90, cfg.Facade.OffsetEntry)
	assert.Equal(t, 90, cfg.Facade.OffsetExit)
	assert.Equal(t, 0, cfg.MoveConstraints.MinHeight)
	assert.Equal(t, 100, cfg.MoveConstraints.MaxHeight)
	assert.Equal(t, 5, cfg.MoveConstraints.HeightTolerance)
	assert.Equal(t, 90.0, cfg.Blinds.SlatWidth)
	assert.Equal(t, 80.0, cfg.Blinds.SlatDistance)
	assert.True(t, cfg.ShadowActive)
	assert.Equal(t, 50000, cfg.Shadow.BrightnessThreshold)
	assert.True(t, cfg.DawnActive)
	assert.True(t, cfg.Dawn.PreventMoveUpAfterDusk)
	assert.Equal(t, 165, cfg.Delays.NeutralToShadowDelay)
	assert.Equal(t, 315, cfg.Delays.NeutralToDawnDelay)
	assert.Equal(t, 615, cfg.Delays.ShadowToHorizontalDelay)
	assert.Equal(t, 915, cfg.Delays.HorizontalToNeutralDelay)
	assert.Equal(t, 75, cfg.Delays.DawnToHorizontalDelay)
	assert.Equal(t, 915, cfg.Delays.DawnHorizontalToNeutralDelay)
	assert.Equal(t, 30, cfg.ExternalLockMinutes)
}

func TestLoadNonExistentFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.json")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, VariantBlinds, cfg.Variant)
	assert.Equal(t, 30, cfg.ExternalLockMinutes)
}

func TestLoadValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.json")

	testConfig := DefaultConfig()
	testConfig.UniqueID = "living_room_blind"
	testConfig.Name = "Living Room Blind"
	testConfig.Entities = EntitiesConfig{
		Cover:            "cover.living_room",
		BrightnessShadow: "sensor.brightness",
		Sun:              "sun.sun",
	}
	testConfig.Facade.FacadeAngle = 180
	testConfig.Variant = VariantShutter

	data, err := json.MarshalIndent(testConfig, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configPath, data, 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "living_room_blind", cfg.UniqueID)
	assert.Equal(t, VariantShutter, cfg.Variant)
	assert.Equal(t, "cover.living_room", cfg.Entities.Cover)
	assert.Equal(t, 180, cfg.Facade.FacadeAngle)
}

func TestLoadInvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.json")
	require.NoError(t, os.WriteFile(configPath, []byte("{ invalid json }"), 0644))

	_, err := Load(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestSaveConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "saved-config.json")

	cfg := DefaultConfig()
	cfg.UniqueID = "test_save"
	cfg.Name = "Test Save"

	require.NoError(t, cfg.Save(configPath))
	require.FileExists(t, configPath)

	loaded, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "test_save", loaded.UniqueID)
	assert.Equal(t, "Test Save", loaded.Name)
}

func TestSaveConfigCreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "dir", "config.json")

	cfg := DefaultConfig()
	require.NoError(t, cfg.Save(configPath))

	assert.DirExists(t, filepath.Dir(configPath))
	assert.FileExists(t, configPath)
}

func TestEnvironmentOverrides(t *testing.T) {
	os.Setenv("SHADEFLOW_AUDIT_DSN", "postgres://env-host/db")
	os.Setenv("SHADEFLOW_EXTERNAL_LOCK_MINUTES", "45")
	os.Setenv("SHADEFLOW_DEBUG", "true")
	defer func() {
		os.Unsetenv("SHADEFLOW_AUDIT_DSN")
		os.Unsetenv("SHADEFLOW_EXTERNAL_LOCK_MINUTES")
		os.Unsetenv("SHADEFLOW_DEBUG")
	}()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")
	testCfg := DefaultConfig()
	testCfg.ExternalLockMinutes = 30
	testCfg.Debug = false

	data, err := json.Marshal(testCfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configPath, data, 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-host/db", cfg.Audit.DSN)
	assert.Equal(t, 45, cfg.ExternalLockMinutes)
	assert.True(t, cfg.Debug)
}

func TestConfigRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "roundtrip.json")

	original := DefaultConfig()
	original.UniqueID = "roundtrip_device"
	original.Variant = VariantShutter
	original.Blinds.TotalHeight = 250.5
	original.SolarHeatingAvailable = true
	original.SolarHeating.Hysteresis = 1.5

	require.NoError(t, original.Save(configPath))

	loaded, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, original.UniqueID, loaded.UniqueID)
	assert.Equal(t, original.Variant, loaded.Variant)
	assert.Equal(t, original.Blinds.TotalHeight, loaded.Blinds.TotalHeight)
	assert.Equal(t, original.SolarHeatingAvailable, loaded.SolarHeatingAvailable)
	assert.Equal(t, original.SolarHeating.Hysteresis, loaded.SolarHeating.Hysteresis)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name: "valid minimal config",
			mutate: func(c *Config) {
				c.UniqueID = "dev1"
				c.Entities.Cover = "cover.dev1"
				c.Entities.BrightnessShadow = "sensor.brightness"
			},
			wantErr: false,
		},
		{
			name:    "missing unique_id",
			mutate:  func(c *Config) {},
			wantErr: true,
		},
		{
			name: "ventilation without window sensor",
			mutate: func(c *Config) {
				c.UniqueID = "dev1"
				c.Entities.Cover = "cover.dev1"
				c.Entities.BrightnessShadow = "sensor.brightness"
				c.VentilationActive = true
			},
			wantErr: true,
		},
		{
			name: "solar heating without climate entity",
			mutate: func(c *Config) {
				c.UniqueID = "dev1"
				c.Entities.Cover = "cover.dev1"
				c.Entities.BrightnessShadow = "sensor.brightness"
				c.SolarHeatingAvailable = true
			},
			wantErr: true,
		},
		{
			name: "min elevation not less than max",
			mutate: func(c *Config) {
				c.UniqueID = "dev1"
				c.Entities.Cover = "cover.dev1"
				c.Entities.BrightnessShadow = "sensor.brightness"
				c.Facade.MinElevation = 90
				c.Facade.MaxElevation = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
