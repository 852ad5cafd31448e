package audit

import (
	"testing"
	"time"

	"github.com/tobiasrehn/shadeflow/internal/shading"
)

func TestNopSinkDiscardsEvents(t *testing.T) {
	s := Nop()
	now := time.Now()

	s.RecordModeTransition("living_room", shading.ModeNeutral, shading.ModeShadow, now)
	s.RecordLockChange("living_room", "external", true, now)
	s.RecordSolarHeatingChange("living_room", true, now)

	if err := s.Close(); err != nil {
		t.Fatalf("Close on a Nop sink must not fail: %v", err)
	}
}
