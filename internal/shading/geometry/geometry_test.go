package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignedDeviationWrapsIntoRange(t *testing.T) {
	for az := 0.0; az < 360.0; az += 1.0 {
		d := SignedDeviation(az, 180)
		assert.Greaterf(t, d, -180.0, "azimuth %v produced out-of-range deviation %v", az, d)
		assert.LessOrEqualf(t, d, 180.0, "azimuth %v produced out-of-range deviation %v", az, d)
	}
}

func TestInSunFacadeFacingWindow(t *testing.T) {
	f := Facade{Angle: 180, OffsetEntry: -90, OffsetExit: 90, MinElevation: 0, MaxElevation: 90}

	assert.True(t, InSun(f, 180, 40))
	assert.True(t, InSun(f, 90, 40))
	assert.True(t, InSun(f, 270, 40))
	assert.False(t, InSun(f, 0, 40), "sun directly behind the facade should not be in sun")
	assert.False(t, InSun(f, 180, -5), "elevation below the configured band")
	assert.False(t, InSun(f, 180, 95), "elevation above the configured band")
}

func TestEffectiveSlatWidthAtNormalIncidence(t *testing.T) {
	assert.Equal(t, 90.0, EffectiveSlatWidth(90, 0))
}

func TestEffectiveSlatWidthStretchesOffNormal(t *testing.T) {
	w := EffectiveSlatWidth(90, 45)
	assert.Greater(t, w, 90.0)
}

func TestTiltPercentOutOfElevationRangeReturnsMax(t *testing.T) {
	p := TiltParams{Elevation: -1, SlatDistance: 80, SlatWidth: 90, MaxAngle: 100, MinAngle: 0, AngleStep: 5}
	assert.Equal(t, 100, TiltPercent(p))

	p.Elevation = 91
	assert.Equal(t, 100, TiltPercent(p))
}

func TestTiltPercentAboveCriticalElevationReturnsMax(t *testing.T) {
	p := TiltParams{Elevation: 89, SlatDistance: 80, SlatWidth: 90, MaxAngle: 100, MinAngle: 0, AngleStep: 5}
	assert.Equal(t, 100, TiltPercent(p))
}

func TestTiltPercentWithinBounds(t *testing.T) {
	p := TiltParams{Elevation: 40, SlatDistance: 80, SlatWidth: 90, MaxAngle: 100, MinAngle: 0, AngleStep: 5}
	got := TiltPercent(p)
	assert.GreaterOrEqual(t, got, 0)
	assert.LessOrEqual(t, got, 100)
	assert.Zero(t, got%5)
}

func TestLightStripHeightDisabledWhenZero(t *testing.T) {
	got := LightStripHeight(LightStripParams{Elevation: 40, LightStrip: 0, TotalHeight: 2500, HeightStep: 5, MaxHeight: 100})
	assert.Equal(t, 0, got)
}

func TestBlindsHeightDefaultsToShadowHeight(t *testing.T) {
	got := BlindsHeight(false, 0, LightStripParams{Elevation: 40, LightStrip: 500, TotalHeight: 2500, HeightStep: 5, MaxHeight: 100})
	assert.Equal(t, 0, got)
}

func TestBlindsHeightUsesLightStripWhenEnabled(t *testing.T) {
	got := BlindsHeight(true, 0, LightStripParams{Elevation: 40, LightStrip: 500, TotalHeight: 2500, HeightStep: 5, MaxHeight: 100})
	assert.NotEqual(t, 0, got)
}
