// Package shading holds the device-variant-agnostic control-loop types
// shared by the statemachine, geometry, constraints, actuator, override and
// controller sub-packages.
package shading

// Mode is the sole authoritative state variable for automation progress. It
// sits on a linear, signed-integer scale: Neutral is the origin, Shadow
// lies positive, Dawn lies negative, and each "timer" mode is a half-step
// between two stable modes.
type Mode int

const (
	ModeHorizontalToNeutralTimer Mode = 5
	ModeHorizontal               Mode = 4
	ModeShadowToHorizontalTimer  Mode = 3
	ModeShadow                   Mode = 2
	ModeNeutralToShadowTimer     Mode = 1
	ModeNeutral                  Mode = 0
	ModeNeutralToDawnTimer       Mode = -1
	ModeDawn                     Mode = -2
	ModeDawnToHorizontalTimer    Mode = -3
	ModeDawnHorizontal           Mode = -4
	ModeDawnHorizontalToNeutralTimer Mode = -5

	// ModeShadowToNeutralTimer is the Shutter variant's collapsed merge of
	// ModeShadowToHorizontalTimer and ModeHorizontalToNeutralTimer: shutters
	// have no tilt channel so there is no horizontal rest state to pass
	// through.
	ModeShadowToNeutralTimer Mode = 3
	// ModeDawnToNeutralTimer is the Shutter variant's collapsed merge of
	// ModeDawnToHorizontalTimer and ModeDawnHorizontalToNeutralTimer.
	ModeDawnToNeutralTimer Mode = -3
)

func (m Mode) String() string {
	switch m {
	case ModeHorizontalToNeutralTimer:
		return "HorizontalToNeutralTimer"
	case ModeHorizontal:
		return "Horizontal"
	case ModeShadowToHorizontalTimer:
		return "ShadowToHorizontalTimer"
	case ModeShadow:
		return "Shadow"
	case ModeNeutralToShadowTimer:
		return "NeutralToShadowTimer"
	case ModeNeutral:
		return "Neutral"
	case ModeNeutralToDawnTimer:
		return "NeutralToDawnTimer"
	case ModeDawn:
		return "Dawn"
	case ModeDawnToHorizontalTimer:
		return "DawnToHorizontalTimer"
	case ModeDawnHorizontal:
		return "DawnHorizontal"
	case ModeDawnHorizontalToNeutralTimer:
		return "DawnHorizontalToNeutralTimer"
	default:
		return "Unknown"
	}
}

// IsTimer reports whether m is one of the half-step transition modes, which
// must always carry a transition deadline.
func (m Mode) IsTimer() bool {
	switch m {
	case ModeNeutralToShadowTimer, ModeShadowToHorizontalTimer, ModeHorizontalToNeutralTimer,
		ModeNeutralToDawnTimer, ModeDawnToHorizontalTimer, ModeDawnHorizontalToNeutralTimer:
		return true
	default:
		return false
	}
}
