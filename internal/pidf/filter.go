// Package pidf implements a fixed-form discrete PID filter with
// anti-windup saturation, the inner-loop building block of the
// attitude core's rate and angle controllers.
package pidf

// Filter is a second-order IIR realization of a PID controller: a
// proportional term, a trapezoidal integral, and a first-order
// low-pass filtered derivative at time constant Tau, evaluated at a
// fixed sample period DT.
//
// Two Filter values generated with identical gains and marched with
// identical inputs from a zeroed state produce identical outputs.
type Filter struct {
	kp, ki, kd float64
	tau        float64
	dt         float64

	lastInput  float64
	lastOutput float64

	integrator float64
	derivative float64

	currentOutput float64

	satHit bool
}

// Generate builds a filter with cleared history.
func Generate(kp, ki, kd, tau, dt float64) Filter {
	return Filter{kp: kp, ki: ki, kd: kd, tau: tau, dt: dt}
}

// CurrentOutput returns the most recent output of March/Saturate.
func (f *Filter) CurrentOutput() float64 {
	return f.currentOutput
}

// Integrator returns the filter's own accumulated integral term. This
// is the integrator that actually drives I-action in March/Saturate;
// it advances on every March call unless the previous Saturate call
// hit a bound, independent of any gating a caller applies to its own
// bookkeeping integrators.
func (f *Filter) Integrator() float64 {
	return f.integrator
}

// Zero clears all history, including the current output.
func (f *Filter) Zero() {
	f.lastInput = 0
	f.lastOutput = 0
	f.integrator = 0
	f.derivative = 0
	f.currentOutput = 0
	f.satHit = false
}

// Prefill initializes history so that the next March call from
// steady-state input e produces a smooth, bump-free start: the
// derivative term starts at zero and the proportional/integral terms
// are consistent with a controller that has been sitting at e.
func (f *Filter) Prefill(e float64) {
	f.lastInput = e
	f.derivative = 0
}

// March advances the filter by one DT step given new error input e,
// storing the new output in CurrentOutput. Calling March with a
// non-finite e is undefined; callers must pre-validate.
func (f *Filter) March(e float64) float64 {
	if !f.satHit {
		f.integrator += f.ki * f.dt * (e + f.lastInput) / 2
	}

	// first-order low-pass filtered derivative: classic discrete
	// realization of d/dt with cutoff time constant Tau.
	alpha := f.tau / (f.tau + f.dt)
	rawDerivative := (e - f.lastInput) / f.dt
	f.derivative = alpha*f.derivative + (1-alpha)*f.kd*rawDerivative

	f.currentOutput = f.kp*e + f.integrator + f.derivative

	f.lastInput = e
	f.lastOutput = f.currentOutput
	f.satHit = false

	return f.currentOutput
}

// Saturate clamps CurrentOutput to [lo, hi] in place. As anti-windup,
// if the clamp bound was active the internal integrator is frozen so
// the next March call does not accumulate further in the saturated
// direction.
func (f *Filter) Saturate(lo, hi float64) float64 {
	if f.currentOutput > hi {
		f.currentOutput = hi
		f.satHit = true
	} else if f.currentOutput < lo {
		f.currentOutput = lo
		f.satHit = true
	}
	f.lastOutput = f.currentOutput
	return f.currentOutput
}
