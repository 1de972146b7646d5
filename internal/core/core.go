// Package core implements the attitude control engine: the periodic
// pipeline triggered by the IMU's new-sample interrupt that fuses
// inertial data, advances the cascaded rate/attitude controllers,
// mixes their outputs for an X-configuration quadrotor, and commands
// the four ESCs, all within one control period. Nothing in this
// package is permitted to fail loudly: every unexpected condition
// maps to disarm (fcstate.Disarmed), never to a returned error.
package core

import (
	"math"

	"github.com/arobi/flightcore/internal/fcstate"
	"github.com/arobi/flightcore/internal/imu"
	"github.com/arobi/flightcore/internal/logsink"
	"github.com/arobi/flightcore/internal/obslog"
	"github.com/arobi/flightcore/internal/pidf"
	"github.com/arobi/flightcore/internal/pwm"
)

const (
	dt = 0.005 // s, MUST match the IMU's 200 Hz sample rate

	degToRad = math.Pi / 180.0

	yawCutoffTh   = 0.1
	intCutoffTh   = 0.3
	maxThrust     = 0.8
	landSaturation = 0.05
	maxRollComponent  = 0.2
	maxPitchComponent = 0.2
	maxYawComponent   = 0.21

	derivativeTau = 0.05 // s, low-pass time constant for the PID derivative term

	yawUnwrapThreshold = 6.0 // rad, see Engine.unwrapYaw
)

// Engine owns one control-cycle invocation. It holds no state of its
// own beyond its collaborators: all mutable data lives in the shared
// Store so other components can observe it between cycles.
type Engine struct {
	store *fcstate.Store
	imu   imu.Driver
	pwm   pwm.Driver
	log   *logsink.Sink

	prevMode fcstate.CoreMode
}

// New builds an Engine. The initial previous-mode is Disarmed, so the
// first cycle after process start behaves like the first cycle after
// any other Disarmed->Armed transition.
func New(store *fcstate.Store, imuDriver imu.Driver, pwmDriver pwm.Driver, sink *logsink.Sink) *Engine {
	return &Engine{
		store:    store,
		imu:      imuDriver,
		pwm:      pwmDriver,
		log:      sink,
		prevMode: fcstate.Disarmed,
	}
}

// RunCycle executes exactly one control period. Callers (the IMU
// interrupt-equivalent channel in production, or a test driving loop)
// must call this once per new sample; RunCycle never blocks or sleeps.
func (e *Engine) RunCycle() {
	sample, ok := e.imu.Read()
	if !ok {
		// Per-cycle sensor failure is the normal steady state between
		// interrupts: skip silently, preserve cadence.
		return
	}

	cfg := e.store.Config()
	sp := e.store.Setpoint()

	var esc [4]float64
	var u [4]float64
	disarmed := false

	e.store.UpdateState(func(st *fcstate.CoreState) {
		e.sense(st, sample, cfg)
		e.unwrapYaw(st, sp)

		if sp.Mode == fcstate.Disarmed {
			e.disarmState(st)
			e.prevMode = fcstate.Disarmed
			disarmed = true
			return
		}

		// Position is a reserved stub: it falls through to the same
		// inner loop as Attitude (spec §4.3 step 3, Open Question).
		if sp.Throttle > yawCutoffTh {
			sp.Yaw += dt * sp.YawRate
		}

		u[0] = e.throttleChannel(sp, st, cfg)
		st.U[0] = u[0] // channels 1-3 gate their integrators on this value
		u[1] = e.rollChannel(st, sp, cfg)
		u[2] = e.pitchChannel(st, sp, cfg)
		u[3] = e.yawChannel(st, sp, cfg)

		esc = mix(u)
		esc = preserveHeadroom(esc)

		st.U = u
		if e.prevMode == fcstate.Disarmed {
			// Avoid re-entering ESC calibration on the first armed cycle.
			esc = [4]float64{}
		} else {
			for i := range esc {
				esc[i] = clamp(esc[i], 0, 1)
			}
		}
		st.Esc = esc
		e.prevMode = sp.Mode
	})

	// Disarmed returns before the PWM send, log enqueue, and loop
	// counter increment, matching fly.c's DISARMED case (which
	// `return`s immediately after resetting controllers, never
	// reaching the PWM/log/control_loops++ block below).
	if disarmed {
		return
	}

	// The yaw setpoint accumulated in the closure above belongs to
	// CoreSetpoint, not CoreState; persist it the same way disarmState
	// persists its own setpoint write, so the integration actually
	// carries over to the next cycle (spec §4.3 step 3 / step 6).
	e.store.UpdateSetpoint(func(setpoint *fcstate.CoreSetpoint) {
		setpoint.Yaw = sp.Yaw
	})

	for ch := 1; ch <= 4; ch++ {
		if err := e.pwm.SendPulse(ch, esc[ch-1]); err != nil {
			obslog.Logger.WithError(err).WithField("channel", ch).Warn("core: pwm send failed, disarming")
			e.store.ForceDisarm()
		}
	}

	final := e.store.State()
	e.log.Enqueue(logsink.Entry{
		Loop:         final.ControlLoops,
		Roll:         final.Roll,
		Pitch:        final.Pitch,
		Yaw:          final.Yaw,
		DRoll:        final.DRoll,
		DPitch:       final.DPitch,
		DYaw:         final.DYaw,
		U:            u,
		Esc:          esc,
		BatteryVolts: final.BatteryVolts,
	})

	e.store.UpdateState(func(st *fcstate.CoreState) {
		st.ControlLoops++
	})
}

// sense applies platform sign corrections, subtracts IMU trims, and
// converts raw gyro counts to rad/s using the gyro full-scale range
// (spec §4.3 step 1).
func (e *Engine) sense(st *fcstate.CoreState, s imu.Sample, cfg fcstate.Config) {
	st.LastYaw = st.Yaw
	st.Roll = s.FusedRoll - st.ImuRollTrim
	st.Pitch = s.FusedPitch - st.ImuPitchTrim

	fsr := e.imu.GyroFullScaleRange()
	st.DRoll = float64(s.RawGyroY) * fsr * degToRad / 32767.0
	st.DPitch = float64(s.RawGyroX) * fsr * degToRad / 32767.0
	st.DYaw = float64(s.RawGyroZ) * fsr * degToRad / 32767.0

	_ = cfg // gains consumed by the per-channel controllers below
	st.FusedYaw = s.FusedYaw
}

// unwrapYaw keeps yaw monotonic across the IMU's +/-pi wrap (spec
// §4.3 step 2). On the first cycle of a new arming it snapshots
// yaw_on_takeoff and resets the spin counter.
func (e *Engine) unwrapYaw(st *fcstate.CoreState, sp fcstate.CoreSetpoint) {
	if e.prevMode == fcstate.Disarmed && sp.Mode != fcstate.Disarmed {
		st.YawOnTakeoff = st.FusedYaw
		st.NumYawSpins = 0
	}

	newYaw := -(st.FusedYaw - st.YawOnTakeoff) + 2*math.Pi*float64(st.NumYawSpins)
	if newYaw-st.LastYaw > yawUnwrapThreshold {
		st.NumYawSpins--
	} else if newYaw-st.LastYaw < -yawUnwrapThreshold {
		st.NumYawSpins++
	}
	st.Yaw = -(st.FusedYaw - st.YawOnTakeoff) + 2*math.Pi*float64(st.NumYawSpins)
}

// disarmState implements spec §4.3 step 3's Disarmed arm: zero every
// integrator and filter, zero the yaw setpoint, and clear ESC output.
func (e *Engine) disarmState(st *fcstate.CoreState) {
	st.RollCtrl.Zero()
	st.PitchCtrl.Zero()
	st.YawCtrl.Zero()
	st.DRollErrIntegrator = 0
	st.DPitchErrIntegrator = 0
	st.YawErrIntegrator = 0
	st.U = [4]float64{}
	st.Esc = [4]float64{}
	e.store.UpdateSetpoint(func(sp *fcstate.CoreSetpoint) {
		sp.Yaw = 0
	})
}

// throttleChannel computes trigonometric lift compensation so thrust
// along the body Z-axis is held constant under tilt (spec §4.3 step 4).
func (e *Engine) throttleChannel(sp fcstate.CoreSetpoint, st *fcstate.CoreState, cfg fcstate.Config) float64 {
	throttle := clamp(sp.Throttle, 0, 1)
	base := throttle*(maxThrust-cfg.IdleThrottle) + cfg.IdleThrottle
	tilt := math.Cos(st.Roll) * math.Cos(st.Pitch)
	if tilt < 0.1 {
		tilt = 0.1 // guard against divide-by-near-zero at extreme tilt
	}
	return base / tilt
}

func (e *Engine) rollChannel(st *fcstate.CoreState, sp fcstate.CoreSetpoint, cfg fcstate.Config) float64 {
	dRollSp := (sp.Roll - st.Roll) * cfg.RollRatePerRad
	st.DRollErr = dRollSp - st.DRoll

	if st.U[0] > intCutoffTh {
		st.DRollErrIntegrator += st.DRollErr * dt
	}

	st.RollCtrl.March(st.DRollErr)
	lo, hi := saturationWindow(sp.Throttle, maxRollComponent)
	return st.RollCtrl.Saturate(lo, hi)
}

func (e *Engine) pitchChannel(st *fcstate.CoreState, sp fcstate.CoreSetpoint, cfg fcstate.Config) float64 {
	dPitchSp := (sp.Pitch - st.Pitch) * cfg.PitchRatePerRad
	st.DPitchErr = dPitchSp - st.DPitch

	if st.U[0] > intCutoffTh {
		st.DPitchErrIntegrator += st.DPitchErr * dt
	}

	st.PitchCtrl.March(st.DPitchErr)
	lo, hi := saturationWindow(sp.Throttle, maxPitchComponent)
	return st.PitchCtrl.Saturate(lo, hi)
}

// yawChannel is the absolute-yaw controller (spec §4.3 step 6).
func (e *Engine) yawChannel(st *fcstate.CoreState, sp fcstate.CoreSetpoint, cfg fcstate.Config) float64 {
	st.YawErr = sp.Yaw - st.Yaw

	if st.U[0] > intCutoffTh {
		st.YawErrIntegrator += st.YawErr * dt
	}

	st.YawCtrl.March(st.YawErr)
	lo, hi := saturationWindow(sp.Throttle, maxYawComponent)
	return st.YawCtrl.Saturate(lo, hi)
}

// saturationWindow implements the two disagreeing thresholds
// preserved verbatim per spec §9's Open Question: a tight landed
// window below throttle 0.1, the full window otherwise.
func saturationWindow(throttle, full float64) (lo, hi float64) {
	if throttle < 0.1 {
		return -landSaturation, landSaturation
	}
	return -full, full
}

// mix maps the four control channels to four motor commands for an
// X-configuration quadrotor: motor 1 front-right (CCW), 2 rear-left
// (CCW), 3 front-left (CW), 4 rear-right (CW) (spec §4.3 step 7).
func mix(u [4]float64) [4]float64 {
	return [4]float64{
		u[0] - u[1] + u[2] - u[3],
		u[0] + u[1] - u[2] - u[3],
		u[0] + u[1] + u[2] + u[3],
		u[0] - u[1] - u[2] + u[3],
	}
}

// preserveHeadroom subtracts any excess above 1 from all four
// channels uniformly, preserving differential torque while sacrificing
// climb rate (spec §4.3 step 8).
func preserveHeadroom(esc [4]float64) [4]float64 {
	max := esc[0]
	for _, v := range esc[1:] {
		if v > max {
			max = v
		}
	}
	if max > 1 {
		excess := max - 1
		for i := range esc {
			esc[i] -= excess
		}
	}
	return esc
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NewPIDSet builds the three controllers an arming sequence
// reinitializes from freshly loaded gains (roll-rate, pitch-rate,
// yaw-angle), per spec §4.4.1.
func NewPIDSet(cfg fcstate.Config) (roll, pitch, yaw pidf.Filter) {
	roll = pidf.Generate(cfg.RollKP, cfg.RollKI, cfg.RollKD, derivativeTau, dt)
	pitch = pidf.Generate(cfg.PitchKP, cfg.PitchKI, cfg.PitchKD, derivativeTau, dt)
	yaw = pidf.Generate(cfg.YawKP, cfg.YawKI, cfg.YawKD, derivativeTau, dt)
	return roll, pitch, yaw
}
