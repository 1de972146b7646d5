// Package supervisor implements the flight-mode supervisor: the ~100
// Hz task that translates the pilot's FlightMode and stick inputs into
// a CoreSetpoint, and the tick-stepped arming sequence state machine that
// gates the Disarmed -> Attitude transition (spec §4.4, §4.4.1).
package supervisor

import (
	"context"
	"math"
	"time"

	"github.com/arobi/flightcore/internal/core"
	"github.com/arobi/flightcore/internal/fcconfig"
	"github.com/arobi/flightcore/internal/fcstate"
	"github.com/arobi/flightcore/internal/gpio"
	"github.com/arobi/flightcore/internal/lifecycle"
	"github.com/arobi/flightcore/internal/obslog"
	"github.com/arobi/flightcore/internal/pwm"
)

const (
	armTipThreshold   = 0.2 // rad
	emergencyLandThr  = 0.15
	armingWakePulses  = 10
	armingWakePeriod  = 5 * time.Millisecond // 200 Hz, matches the core's rate
)

// armState is the arming sequence's explicit state enumeration,
// replacing the original C's `goto START` with a named restart point
// (spec §9): any tip-over mid-sequence returns here.
type armState int

const (
	awaitLevel armState = iota
	awaitKillRelease
	awaitThrottleLow1
	awaitThrottleHigh
	awaitThrottleLow2
	awaitLevelConfirm
	armed
)

// Supervisor runs the mode-translation tick and the arming sequence.
type Supervisor struct {
	store    *fcstate.Store
	sig      *lifecycle.Signal
	leds     gpio.LEDs
	pwmDrv   pwm.Driver
	configPath string

	lastFlightMode fcstate.FlightMode
	haveLastMode   bool

	state armState
}

// New builds a Supervisor. configPath is reloaded from disk on every
// successful arming (spec §4.4.1, §6).
func New(store *fcstate.Store, sig *lifecycle.Signal, leds gpio.LEDs, pwmDrv pwm.Driver, configPath string) *Supervisor {
	return &Supervisor{
		store:      store,
		sig:        sig,
		leds:       leds,
		pwmDrv:     pwmDrv,
		configPath: configPath,
		state:      awaitLevel,
	}
}

// Run drives the ~100 Hz supervisor tick until ctx is cancelled,
// following the teacher's Run(ctx context.Context) error convention.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.sig.Exiting() {
				return nil
			}
			s.tick()
		}
	}
}

func (s *Supervisor) tick() {
	user := s.store.UserInterface()

	if !s.haveLastMode || user.FlightMode != s.lastFlightMode {
		obslog.Logger.WithField("mode", user.FlightMode.String()).Info("supervisor: flight mode changed")
		s.lastFlightMode = user.FlightMode
		s.haveLastMode = true
	}

	if user.FlightMode == fcstate.EmergencyKill || user.KillSwitch != 0 {
		s.store.ForceDisarm()
	}

	sp := s.store.Setpoint()
	if sp.Mode == fcstate.Disarmed {
		s.advanceArmingSequence(user)
		return
	}

	s.translate(user)
}

// translate maps the pilot's commanded FlightMode onto setpoint
// fields (spec §4.4 step 4).
func (s *Supervisor) translate(user fcstate.UserInterface) {
	cfg := s.store.Config()

	switch user.FlightMode {
	case fcstate.UserAttitude:
		s.store.UpdateSetpoint(func(sp *fcstate.CoreSetpoint) {
			sp.Mode = fcstate.Attitude
			sp.Throttle = (user.ThrottleStick + 1) / 2
			sp.Roll = user.RollStick * cfg.MaxRollSetpoint
			sp.Pitch = user.PitchStick * cfg.MaxPitchSetpoint
			sp.YawRate = user.YawStick * cfg.MaxYawRate
		})
	case fcstate.EmergencyLand:
		s.store.UpdateSetpoint(func(sp *fcstate.CoreSetpoint) {
			sp.Mode = fcstate.Attitude
			sp.Throttle = emergencyLandThr
			sp.Roll = 0
			sp.Pitch = 0
			sp.YawRate = 0
		})
	default:
		// UserLoiter, UserPositionCartesian, UserPositionRadial,
		// TargetHold: accepted but reserved no-ops (spec §3).
	}
}

// advanceArmingSequence steps the blocking arming state machine
// (spec §4.4.1). It is called once per supervisor tick rather than
// truly blocking the goroutine, which preserves the spec's "checks the
// process lifecycle and aborts early on Exiting" polling behavior
// without stalling the rest of the process.
func (s *Supervisor) advanceArmingSequence(user fcstate.UserInterface) {
	st := s.store.State()
	level := math.Abs(st.Roll) <= armTipThreshold && math.Abs(st.Pitch) <= armTipThreshold

	if !level && s.state != awaitLevel {
		obslog.Logger.Warn("supervisor: arming sequence restarted, tip-over detected")
		s.state = awaitLevel
		return
	}

	switch s.state {
	case awaitLevel:
		if level {
			s.state = awaitKillRelease
		}
	case awaitKillRelease:
		if user.KillSwitch == 0 {
			s.state = awaitThrottleLow1
		}
	case awaitThrottleLow1:
		if user.ThrottleStick < -0.9 {
			s.state = awaitThrottleHigh
		}
	case awaitThrottleHigh:
		if user.ThrottleStick > 0.9 {
			s.state = awaitThrottleLow2
		}
	case awaitThrottleLow2:
		if user.ThrottleStick < -0.9 {
			s.state = awaitLevelConfirm
		}
	case awaitLevelConfirm:
		if level {
			s.completeArming()
			s.state = awaitLevel
		}
	}
}

// completeArming wakes the ESCs, reloads configuration and PID gains,
// and arms the core (spec §4.4.1 "On success").
func (s *Supervisor) completeArming() {
	for i := 0; i < armingWakePulses; i++ {
		for ch := 1; ch <= 4; ch++ {
			if err := s.pwmDrv.SendPulse(ch, 0); err != nil {
				obslog.Logger.WithError(err).Warn("supervisor: arming wake pulse failed")
			}
		}
		time.Sleep(armingWakePeriod)
	}

	cfg, err := fcconfig.Load(s.configPath)
	if err != nil {
		obslog.Logger.WithError(err).Warn("supervisor: config reload failed, keeping previous gains")
	} else {
		s.store.SetConfig(cfg)
	}

	roll, pitch, yaw := core.NewPIDSet(s.store.Config())
	s.store.UpdateState(func(st *fcstate.CoreState) {
		st.RollCtrl = roll
		st.PitchCtrl = pitch
		st.YawCtrl = yaw
	})

	s.store.UpdateSetpoint(func(sp *fcstate.CoreSetpoint) {
		sp.Mode = fcstate.Attitude
	})

	s.leds.SetRed(false)
	s.leds.SetGreen(true)
	obslog.Logger.Info("supervisor: armed")
}
