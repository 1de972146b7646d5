// Package fcstate holds the shared state records read and mutated by
// the attitude core, the flight-mode supervisor, the radio watcher,
// and the safety watchdog: CoreSetpoint, CoreState, UserInterface and
// Config. Each record follows a single-writer/multi-reader
// discipline (see Store) instead of a record-wide critical section.
package fcstate

import "github.com/arobi/flightcore/internal/pidf"

// FlightMode is what the pilot wants the aircraft to do.
type FlightMode int

const (
	EmergencyKill FlightMode = iota
	EmergencyLand
	UserAttitude
	UserLoiter
	UserPositionCartesian
	UserPositionRadial
	TargetHold
)

func (m FlightMode) String() string {
	switch m {
	case EmergencyKill:
		return "EMERGENCY_KILL"
	case EmergencyLand:
		return "EMERGENCY_LAND"
	case UserAttitude:
		return "USER_ATTITUDE"
	case UserLoiter:
		return "USER_LOITER"
	case UserPositionCartesian:
		return "USER_POSITION_CARTESIAN"
	case UserPositionRadial:
		return "USER_POSITION_RADIAL"
	case TargetHold:
		return "TARGET_HOLD"
	default:
		return "UNKNOWN"
	}
}

// CoreMode is what the attitude core is actually doing.
type CoreMode int

const (
	Disarmed CoreMode = iota
	Attitude
	Position
)

func (m CoreMode) String() string {
	switch m {
	case Disarmed:
		return "DISARMED"
	case Attitude:
		return "ATTITUDE"
	case Position:
		return "POSITION"
	default:
		return "UNKNOWN"
	}
}

// CoreSetpoint is the target the attitude core tracks. Owned by the
// supervisor, except that Mode may be forced to Disarmed by the
// supervisor, the safety watchdog, the radio watcher, or the
// pause-button handler.
type CoreSetpoint struct {
	Mode CoreMode

	Throttle float64 // normalized [0,1]
	Roll     float64 // rad, [-Config.MaxRollSetpoint, +Config.MaxRollSetpoint]
	Pitch    float64 // rad
	YawRate  float64 // rad/s
	Yaw      float64 // rad, absolute, integrated by the core

	// Position mode fields (reserved; Position is an explicit stub).
	Altitude float64 // m
	PosX     float64 // m
	PosY     float64 // m
}

// CoreState is the attitude core's most recent internal state. Owned
// exclusively by the attitude core.
type CoreState struct {
	ControlLoops uint64

	Roll, Pitch, Yaw         float64
	LastYaw                  float64
	DRoll, DPitch, DYaw      float64
	BatteryVolts             float64

	RollCtrl  pidf.Filter
	PitchCtrl pidf.Filter
	YawCtrl   pidf.Filter

	DRollErrIntegrator  float64
	DPitchErrIntegrator float64
	YawErrIntegrator    float64

	DRollErr  float64
	DPitchErr float64
	YawErr    float64

	U   [4]float64
	Esc [4]float64

	NumYawSpins    int
	YawOnTakeoff   float64
	FusedYaw       float64 // most recent raw fused yaw reading, pre-unwrap

	ImuRollTrim  float64
	ImuPitchTrim float64
}

// UserInterface is the pilot's most recently decoded command. Owned
// exclusively by the radio watcher.
type UserInterface struct {
	FlightMode FlightMode

	ThrottleStick float64 // [-1,1], positive up
	YawStick      float64 // [-1,1], positive CW
	RollStick     float64 // [-1,1], positive right
	PitchStick    float64 // [-1,1], positive up

	KillSwitch int // 0 = armed, non-zero = force disarm
}

// Config holds the gains and limits loaded from the configuration
// file and reloaded on every successful arming.
type Config struct {
	RollKP, RollKI, RollKD    float64
	PitchKP, PitchKI, PitchKD float64
	YawKP, YawKI, YawKD       float64

	IdleThrottle float64

	MaxRollSetpoint  float64 // rad
	MaxPitchSetpoint float64 // rad
	MaxYawRate       float64 // rad/s

	RollRatePerRad  float64
	PitchRatePerRad float64
}
