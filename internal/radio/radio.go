// Package radio implements the radio watcher: a ~100 Hz task that
// decodes receiver channels into UserInterface and enforces the
// two-stage loss-of-signal timeout ladder (spec §4.6).
package radio

import (
	"context"
	"time"

	"github.com/arobi/flightcore/internal/fcstate"
	"github.com/arobi/flightcore/internal/lifecycle"
	"github.com/arobi/flightcore/internal/obslog"
	"github.com/arobi/flightcore/internal/receiver"
)

const (
	dsm2LandTimeout   = 300 * time.Millisecond
	dsm2DisarmTimeout = 5 * time.Second
)

// Watcher owns polling of the receiver driver and is the sole writer
// of UserInterface (spec §4.2, §5).
type Watcher struct {
	store *fcstate.Store
	sig   *lifecycle.Signal
	drv   receiver.Driver

	landTimeout   time.Duration
	disarmTimeout time.Duration

	usingRadio  bool
	lastFrameAt time.Time
	landEntered bool
}

func New(store *fcstate.Store, sig *lifecycle.Signal, drv receiver.Driver) *Watcher {
	return &Watcher{
		store:         store,
		sig:           sig,
		drv:           drv,
		landTimeout:   dsm2LandTimeout,
		disarmTimeout: dsm2DisarmTimeout,
	}
}

// Run drives the watcher at ~100 Hz until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if w.sig.Exiting() {
				return nil
			}
			w.tick()
		}
	}
}

func (w *Watcher) tick() {
	if w.drv.NewFrame() {
		now := time.Now()
		w.lastFrameAt = now
		w.usingRadio = true
		w.landEntered = false
		w.decodeFrame()
		return
	}

	if !w.usingRadio {
		return
	}

	elapsed := time.Since(w.lastFrameAt)
	if elapsed > w.disarmTimeout {
		if w.store.Setpoint().Mode != fcstate.Disarmed {
			obslog.Logger.Warn("radio: signal lost past disarm timeout")
			w.store.ForceDisarm()
		}
		return
	}

	if elapsed > w.landTimeout && !w.landEntered {
		current := w.store.UserInterface()
		if current.FlightMode != fcstate.EmergencyLand {
			obslog.Logger.Warn("radio: signal lost past land timeout, entering EmergencyLand")
			w.store.UpdateUserInterface(func(u *fcstate.UserInterface) {
				u.FlightMode = fcstate.EmergencyLand
				u.ThrottleStick = -1
				u.RollStick = 0
				u.PitchStick = 0
				u.YawStick = 0
			})
		}
		w.landEntered = true
	}
}

// decodeFrame maps the six receiver channels onto UserInterface (spec
// §4.6): channel 5 is the kill switch, channels 1-4 are the sticks,
// and channel 6 selects flight mode.
func (w *Watcher) decodeFrame() {
	killCh := w.drv.ChannelNormalized(5)

	w.store.UpdateUserInterface(func(u *fcstate.UserInterface) {
		if killCh < 0 {
			u.KillSwitch = 1
			return
		}
		u.KillSwitch = 0
		u.ThrottleStick = w.drv.ChannelNormalized(1)
		u.RollStick = -w.drv.ChannelNormalized(2)
		u.PitchStick = -w.drv.ChannelNormalized(3)
		u.YawStick = w.drv.ChannelNormalized(4)
		u.FlightMode = decodeFlightModeChannel(w.drv.ChannelNormalized(6))
	})

	if killCh < 0 {
		w.store.ForceDisarm()
	}
}

// decodeFlightModeChannel maps channel 6 to a FlightMode. Both switch
// positions map to UserAttitude, preserved verbatim pending a
// downstream decision on the alternate mode (spec §9 Open Question).
func decodeFlightModeChannel(v float64) fcstate.FlightMode {
	_ = v
	return fcstate.UserAttitude
}
