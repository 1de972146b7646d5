// Package safety implements the tip-over watchdog: a ~20 Hz task that
// disarms the core if the vehicle rolls or pitches past TIP_THRESHOLD
// while armed (spec §4.5).
package safety

import (
	"context"
	"math"
	"time"

	"github.com/arobi/flightcore/internal/fcstate"
	"github.com/arobi/flightcore/internal/lifecycle"
	"github.com/arobi/flightcore/internal/obslog"
)

const tipThreshold = 1.5 // rad

// Watchdog polls CoreState for excessive roll/pitch while armed.
type Watchdog struct {
	store *fcstate.Store
	sig   *lifecycle.Signal
}

func New(store *fcstate.Store, sig *lifecycle.Signal) *Watchdog {
	return &Watchdog{store: store, sig: sig}
}

// Run drives the watchdog at ~20 Hz until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
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

func (w *Watchdog) tick() {
	sp := w.store.Setpoint()
	if sp.Mode == fcstate.Disarmed {
		return
	}

	st := w.store.State()
	if math.Abs(st.Roll) > tipThreshold || math.Abs(st.Pitch) > tipThreshold {
		obslog.Logger.WithFields(map[string]interface{}{
			"roll":  st.Roll,
			"pitch": st.Pitch,
		}).Warn("safety: tip-over detected, disarming")
		w.store.ForceDisarm()
	}
}
