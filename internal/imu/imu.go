// Package imu specifies the inertial measurement driver interface the
// attitude core reads from. The driver itself (sensor fusion, gyro
// scaling, orientation matrix) is out of scope for this repository;
// this package only describes the contract and ships a simulated and
// a serial-backed implementation.
package imu

import "time"

// Sample is one fused reading: Euler angles in radians (yaw in
// [-pi, pi], matching the sensor's native wrap range) and raw gyro
// counts on the three body axes.
type Sample struct {
	FusedRoll, FusedPitch, FusedYaw float64
	RawGyroX, RawGyroY, RawGyroZ    int16
	Timestamp                       time.Time
}

// Driver is the attitude core's view of the IMU. Read returns
// (sample, true) when new data is available, or (zero, false)
// otherwise — the core must not block waiting for a sample.
type Driver interface {
	Read() (Sample, bool)
	// GyroFullScaleRange is the +/- range in deg/s corresponding to a
	// raw gyro reading of +/-32767, used to convert counts to rad/s.
	GyroFullScaleRange() float64
}
