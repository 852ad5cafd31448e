package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobiasrehn/shadeflow/internal/entitytemplate"
	"github.com/tobiasrehn/shadeflow/internal/hostadapter"
	"github.com/tobiasrehn/shadeflow/internal/hostadapter/memory"
	"github.com/tobiasrehn/shadeflow/internal/shading"
	"github.com/tobiasrehn/shadeflow/pkg/config"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.UniqueID = "living_room"
	cfg.Entities.Cover = "cover.living_room"
	cfg.Entities.BrightnessShadow = "sensor.living_room_brightness"
	cfg.Entities.WindowSensor = "binary_sensor.living_room_window"
	cfg.VentilationActive = true
	cfg.Ventilation.Height = 40
	cfg.Ventilation.Angle = 50
	cfg.LockoutProtectionActive = true
	return cfg
}

func TestBootstrapReturnsNeedsOperatorSetupWhenEntitiesMissing(t *testing.T) {
	cfg := testConfig()
	host := memory.New(time.Now())
	c := New(cfg, host, nil)

	err := c.Bootstrap(context.Background(), entitytemplate.New())
	require.Error(t, err)

	var setup *shading.NeedsOperatorSetup
	require.ErrorAs(t, err, &setup)
	assert.Equal(t, "living_room", setup.UniqueID)
	assert.NotEmpty(t, setup.Missing)
}

func seedManagedEntities(host *memory.Adapter, uniqueID string) {
	for _, b := range entitytemplate.BooleansFor(uniqueID, "blind", false) {
		host.SetStateValue(b.EntityID, hostadapter.StateValue{State: "off", Valid: true})
	}
}

func TestBootstrapSucceedsWhenEntitiesPresent(t *testing.T) {
	cfg := testConfig()
	host := memory.New(time.Now())
	seedManagedEntities(host, cfg.UniqueID)

	c := New(cfg, host, nil)
	err := c.Bootstrap(context.Background(), entitytemplate.New())
	assert.NoError(t, err)
}

func TestTickFullyOpenTiltCoupling(t *testing.T) {
	cfg := testConfig()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	host := memory.New(now)
	seedManagedEntities(host, cfg.UniqueID)
	host.SetStateValue("binary_sensor.living_room_window", hostadapter.StateValue{State: "off", Valid: true})

	c := New(cfg, host, nil)
	require.NoError(t, c.Bootstrap(context.Background(), entitytemplate.New()))

	// Neutral mode targets neutral_height=100, neutral_angle=100: above the
	// 95 fully-open threshold, so FullyOpenTiltCoupling should force tilt to
	// 100 regardless (it already is, at the default neutral position).
	c.Tick(context.Background(), now)

	calls := host.Calls()
	require.NotEmpty(t, calls)
	for _, call := range calls {
		if call.Service == "set_cover_tilt_position" {
			assert.Equal(t, 100, call.Args["tilt_position"])
		}
	}
}

func TestTickLockoutProtectionPreventsLoweringWithWindowOpen(t *testing.T) {
	cfg := testConfig()
	cfg.Neutral.NeutralHeight = 30
	cfg.Neutral.NeutralAngle = 30
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	host := memory.New(now)
	seedManagedEntities(host, cfg.UniqueID)
	host.SetStateValue("binary_sensor.living_room_window", hostadapter.StateValue{State: "on", Valid: true})

	c := New(cfg, host, nil)
	require.NoError(t, c.Bootstrap(context.Background(), entitytemplate.New()))

	c.OnWindowStateChanged(context.Background(), "binary_sensor.living_room_window", hostadapter.StateValue{},
		hostadapter.StateValue{State: "on", Valid: true})

	h := 80
	c.mu.Lock()
	c.state.CurrentHeight = &h
	c.mu.Unlock()

	c.Tick(context.Background(), now)

	calls := host.Calls()
	for _, call := range calls {
		if call.Service == "set_cover_position" {
			assert.GreaterOrEqual(t, call.Args["position"], 80)
		}
	}
}

func TestTickIsReentrancySafe(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	host := memory.New(now)
	seedManagedEntities(host, cfg.UniqueID)

	c := New(cfg, host, nil)
	require.NoError(t, c.Bootstrap(context.Background(), entitytemplate.New()))

	c.tick.Lock()
	defer c.tick.Unlock()

	// Tick should return immediately without blocking or panicking while
	// the guard is held by someone else.
	done := make(chan struct{})
	go func() {
		c.Tick(context.Background(), now)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Tick blocked instead of dropping the overlapping invocation")
	}
}

func TestOnCoverTelemetryRaisesExternalLockOnMismatch(t *testing.T) {
	cfg := testConfig()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	host := memory.New(now)
	seedManagedEntities(host, cfg.UniqueID)

	c := New(cfg, host, nil)
	require.NoError(t, c.Bootstrap(context.Background(), entitytemplate.New()))

	expected := 50
	c.mu.Lock()
	c.state.ExpectedHeight = &expected
	c.state.Moving = true
	c.mu.Unlock()

	unexpected := 10
	c.OnCoverTelemetry(context.Background(), now, "open", &unexpected, nil)

	st := c.State()
	assert.True(t, st.Locks.External)
	assert.NotNil(t, st.ExternalLockDeadline)
}
