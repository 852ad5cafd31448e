package override

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptr(v int) *int { return &v }

func TestExternalLockDetectionScenario(t *testing.T) {
	d := &Detector{Ceiling: CeilingBlinds, HeightTolerance: 5, AngleTolerance: 5, HasTilt: true, ExternalLockMinutes: 30}
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	res := d.OnSettledTelemetry(now, ptr(80), ptr(50), ptr(50), ptr(50), 1, false)

	assert.True(t, res.ExternalLockRaised)
	assert.False(t, res.ExternalLockCleared)
}

func TestMatchingTelemetryClearsLock(t *testing.T) {
	d := &Detector{Ceiling: CeilingBlinds, HeightTolerance: 5, AngleTolerance: 5, HasTilt: true}
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	res := d.OnSettledTelemetry(now, ptr(50), ptr(50), ptr(50), ptr(50), 1, false)

	assert.True(t, res.ExternalLockCleared)
	assert.False(t, res.ExternalLockRaised)
}

func TestNoExpectedAlwaysMatches(t *testing.T) {
	d := &Detector{Ceiling: CeilingBlinds, HeightTolerance: 5, HasTilt: false}
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	res := d.OnSettledTelemetry(now, ptr(80), nil, nil, nil, 1, false)
	assert.True(t, res.ExternalLockCleared)
}

func TestCounterExceedingCeilingClearsExpected(t *testing.T) {
	d := &Detector{Ceiling: CeilingBlinds, HeightTolerance: 5, HasTilt: false}
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	res := d.OnSettledTelemetry(now, ptr(50), nil, ptr(50), nil, 3, false)
	assert.True(t, res.ExpectedCleared)
}

func TestMismatchDoesNotRaiseSecondLockWhenAlreadyOn(t *testing.T) {
	d := &Detector{Ceiling: CeilingBlinds, HeightTolerance: 5, HasTilt: false}
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	res := d.OnSettledTelemetry(now, ptr(80), nil, ptr(50), nil, 1, true)
	assert.False(t, res.ExternalLockRaised)
}

func TestReconcileReleasesExpiredLock(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	assert.True(t, Reconcile(now, true, &past))
}

func TestReconcileReleasesMissingDeadline(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, Reconcile(now, true, nil))
}

func TestReconcileKeepsFutureDeadline(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	assert.False(t, Reconcile(now, true, &future))
}

func TestReconcileNoOpWhenNotOn(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.False(t, Reconcile(now, false, nil))
}
