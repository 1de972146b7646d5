// Package gpio specifies the binary LED outputs and pause-button
// input used by the lifecycle tasks. Real GPIO access is out of
// scope; a simulated backend is provided for tests.
package gpio

// LEDs exposes the red (disarmed/error) and green (armed) indicators.
type LEDs interface {
	SetRed(on bool)
	SetGreen(on bool)
}

// PauseButton reports the current level of the pause button; true
// means pressed. The lifecycle package debounces short vs. long press.
type PauseButton interface {
	Pressed() bool
}

// SimLEDs records LED state for tests/simulation.
type SimLEDs struct {
	Red, Green bool
}

func (l *SimLEDs) SetRed(on bool)   { l.Red = on }
func (l *SimLEDs) SetGreen(on bool) { l.Green = on }

// SimPauseButton is a test/simulation backend driven by a bool field.
type SimPauseButton struct {
	IsPressed bool
}

func (b *SimPauseButton) Pressed() bool { return b.IsPressed }
