// Package lifecycle holds the process-wide lifecycle signal every
// periodic task polls, plus the LED and printer tasks, and the
// pause-button short/long-press handler (spec §4.7).
package lifecycle

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/arobi/flightcore/internal/fcstate"
	"github.com/arobi/flightcore/internal/gpio"
	"github.com/arobi/flightcore/internal/obslog"
)

// Phase is the process-wide lifecycle value.
type Phase int32

const (
	Starting Phase = iota
	Running
	Exiting
)

func (p Phase) String() string {
	switch p {
	case Starting:
		return "STARTING"
	case Running:
		return "RUNNING"
	case Exiting:
		return "EXITING"
	default:
		return "UNKNOWN"
	}
}

// Signal is the shared lifecycle value, safe for concurrent access.
// All periodic tasks poll it on their own cadence; no task blocks on
// a change.
type Signal struct {
	v atomic.Int32
}

// NewSignal returns a Signal starting at Starting.
func NewSignal() *Signal {
	s := &Signal{}
	s.v.Store(int32(Starting))
	return s
}

func (s *Signal) Get() Phase { return Phase(s.v.Load()) }
func (s *Signal) Set(p Phase) { s.v.Store(int32(p)) }

// Exiting reports whether the process is shutting down — the poll
// every cooperative task and the arming sequence check.
func (s *Signal) Exiting() bool { return s.Get() == Exiting }

// LEDTask drives the armed-indicator LEDs at 2 Hz: blinking red while
// disarmed, solid green (red off) while armed.
func LEDTask(ctx context.Context, sig *Signal, store *fcstate.Store, leds gpio.LEDs) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	blinkOn := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sig.Exiting() {
				return
			}
			if store.Setpoint().Mode == fcstate.Disarmed {
				blinkOn = !blinkOn
				leds.SetGreen(false)
				leds.SetRed(blinkOn)
			} else {
				leds.SetRed(false)
				leds.SetGreen(true)
			}
		}
	}
}

// PrinterTask emits one line of telemetry at 5 Hz via the structured
// logger, unless quiet suppresses it.
func PrinterTask(ctx context.Context, sig *Signal, store *fcstate.Store, quiet bool) {
	if quiet {
		return
	}
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sig.Exiting() {
				return
			}
			st := store.State()
			sp := store.Setpoint()
			obslog.Logger.WithFields(map[string]interface{}{
				"mode":  sp.Mode.String(),
				"loop":  st.ControlLoops,
				"roll":  fmt.Sprintf("%.3f", st.Roll),
				"pitch": fmt.Sprintf("%.3f", st.Pitch),
				"yaw":   fmt.Sprintf("%.3f", st.Yaw),
			}).Info("telemetry")
		}
	}
}

// PauseButtonTask polls the pause button at 20 Hz, distinguishing a
// short press (invoke disarm) from a long press (>= 1s, transition to
// Exiting).
func PauseButtonTask(ctx context.Context, sig *Signal, store *fcstate.Store, button gpio.PauseButton) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var pressedSince time.Time
	var wasPressed bool

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sig.Exiting() {
				return
			}
			pressed := button.Pressed()
			switch {
			case pressed && !wasPressed:
				pressedSince = time.Now()
			case pressed && wasPressed:
				if time.Since(pressedSince) >= time.Second {
					sig.Set(Exiting)
				}
			case !pressed && wasPressed:
				if time.Since(pressedSince) < time.Second {
					store.ForceDisarm()
				}
			}
			wasPressed = pressed
		}
	}
}
