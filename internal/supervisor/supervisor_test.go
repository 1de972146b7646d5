package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arobi/flightcore/internal/fcstate"
	"github.com/arobi/flightcore/internal/gpio"
	"github.com/arobi/flightcore/internal/lifecycle"
	"github.com/arobi/flightcore/internal/pwm"
)

func newTestSupervisor(t *testing.T) (*Supervisor, *fcstate.Store) {
	t.Helper()
	cfg := fcstate.Config{MaxRollSetpoint: 0.4, MaxPitchSetpoint: 0.4, MaxYawRate: 2.5}
	store := fcstate.New(cfg)
	sig := lifecycle.NewSignal()
	leds := &gpio.SimLEDs{}
	pwmDrv := pwm.NewSimDriver()
	path := filepath.Join(t.TempDir(), "gains.yaml")
	_ = os.Remove(path)
	return New(store, sig, leds, pwmDrv, path), store
}

func TestArmingSequenceRequiresAllSixStepsInOrder(t *testing.T) {
	sup, store := newTestSupervisor(t)

	// Step 1: level.
	store.UpdateState(func(st *fcstate.CoreState) { st.Roll, st.Pitch = 0, 0 })
	sup.tick()
	if sup.state != awaitKillRelease {
		t.Fatalf("state = %v, want awaitKillRelease", sup.state)
	}

	// Step 2: kill switch released.
	store.UpdateUserInterface(func(u *fcstate.UserInterface) { u.KillSwitch = 0 })
	sup.tick()
	if sup.state != awaitThrottleLow1 {
		t.Fatalf("state = %v, want awaitThrottleLow1", sup.state)
	}

	// Step 3: throttle below -0.9.
	store.UpdateUserInterface(func(u *fcstate.UserInterface) { u.ThrottleStick = -0.95 })
	sup.tick()
	if sup.state != awaitThrottleHigh {
		t.Fatalf("state = %v, want awaitThrottleHigh", sup.state)
	}

	// Step 4: throttle above +0.9.
	store.UpdateUserInterface(func(u *fcstate.UserInterface) { u.ThrottleStick = 0.95 })
	sup.tick()
	if sup.state != awaitThrottleLow2 {
		t.Fatalf("state = %v, want awaitThrottleLow2", sup.state)
	}

	// Step 5: throttle below -0.9 again.
	store.UpdateUserInterface(func(u *fcstate.UserInterface) { u.ThrottleStick = -0.95 })
	sup.tick()
	if sup.state != awaitLevelConfirm {
		t.Fatalf("state = %v, want awaitLevelConfirm", sup.state)
	}

	// Step 6: still level -> success.
	sup.tick()
	if store.Setpoint().Mode != fcstate.Attitude {
		t.Fatalf("setpoint mode = %v, want Attitude after arming", store.Setpoint().Mode)
	}
}

func TestArmingSequenceRestartsOnTipOver(t *testing.T) {
	sup, store := newTestSupervisor(t)

	store.UpdateState(func(st *fcstate.CoreState) { st.Roll, st.Pitch = 0, 0 })
	sup.tick()
	store.UpdateUserInterface(func(u *fcstate.UserInterface) { u.KillSwitch = 0 })
	sup.tick()
	if sup.state != awaitThrottleLow1 {
		t.Fatalf("precondition failed: state = %v", sup.state)
	}

	// Tip over mid-sequence.
	store.UpdateState(func(st *fcstate.CoreState) { st.Roll = 0.5 })
	sup.tick()
	if sup.state != awaitLevel {
		t.Fatalf("state = %v after tip-over, want restart to awaitLevel", sup.state)
	}

	if store.Setpoint().Mode != fcstate.Disarmed {
		t.Fatalf("setpoint mode = %v, want still Disarmed", store.Setpoint().Mode)
	}
}

func TestUserAttitudeTranslation(t *testing.T) {
	sup, store := newTestSupervisor(t)
	store.UpdateSetpoint(func(sp *fcstate.CoreSetpoint) { sp.Mode = fcstate.Attitude })
	store.UpdateUserInterface(func(u *fcstate.UserInterface) {
		u.FlightMode = fcstate.UserAttitude
		u.ThrottleStick = 0
		u.RollStick = 0.5
		u.PitchStick = -0.5
		u.YawStick = 1
	})

	sup.tick()

	sp := store.Setpoint()
	if diff := sp.Throttle - 0.5; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("throttle = %v, want 0.5", sp.Throttle)
	}
	if diff := sp.Roll - 0.2; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("roll = %v, want 0.2", sp.Roll)
	}
}

func TestEmergencyKillForcesDisarm(t *testing.T) {
	sup, store := newTestSupervisor(t)
	store.UpdateSetpoint(func(sp *fcstate.CoreSetpoint) { sp.Mode = fcstate.Attitude })
	store.UpdateUserInterface(func(u *fcstate.UserInterface) { u.FlightMode = fcstate.EmergencyKill })

	sup.tick()

	if store.Setpoint().Mode != fcstate.Disarmed {
		t.Fatalf("setpoint mode = %v, want Disarmed after EmergencyKill", store.Setpoint().Mode)
	}
}
