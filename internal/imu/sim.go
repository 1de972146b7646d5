package imu

// SimDriver is a test/simulation backend: the caller pushes samples
// and Read drains the latest pending one, matching the real driver's
// "new data or nothing" contract.
type SimDriver struct {
	fsr     float64
	pending *Sample
}

// NewSimDriver returns a simulated driver with the given gyro full
// scale range in deg/s (e.g. 2000 for a +/-2000 deg/s gyro).
func NewSimDriver(fullScaleRangeDegPerSec float64) *SimDriver {
	return &SimDriver{fsr: fullScaleRangeDegPerSec}
}

// Push queues a sample to be returned by the next Read call.
func (d *SimDriver) Push(s Sample) {
	d.pending = &s
}

func (d *SimDriver) Read() (Sample, bool) {
	if d.pending == nil {
		return Sample{}, false
	}
	s := *d.pending
	d.pending = nil
	return s, true
}

func (d *SimDriver) GyroFullScaleRange() float64 {
	return d.fsr
}
