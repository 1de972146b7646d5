package imu

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"go.bug.st/serial"
)

// SerialDriver reads fused-Euler + raw-gyro frames from a UART-attached
// IMU module. Frame layout: 3x float32 fused Euler (rad), 3x int16 raw
// gyro, little-endian, then 2 ignored bytes (20 bytes in all); no
// framing byte beyond that fixed read size — the
// real driver on the target platform negotiates this at a lower level;
// here we only need enough to satisfy the Driver interface.
type SerialDriver struct {
	port serial.Port
	fsr  float64
	buf  [20]byte
}

// OpenSerialDriver opens the IMU UART at the given port and baud rate.
func OpenSerialDriver(portName string, baud int, fullScaleRangeDegPerSec float64) (*SerialDriver, error) {
	mode := &serial.Mode{BaudRate: baud}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("imu: open serial port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(0); err != nil {
		port.Close()
		return nil, fmt.Errorf("imu: set read timeout: %w", err)
	}
	return &SerialDriver{port: port, fsr: fullScaleRangeDegPerSec}, nil
}

func (d *SerialDriver) Close() error {
	return d.port.Close()
}

// Read performs a non-blocking best-effort read of one frame. If a
// full frame is not yet available it reports no new data rather than
// blocking, preserving the attitude core's cadence.
func (d *SerialDriver) Read() (Sample, bool) {
	n, err := d.port.Read(d.buf[:])
	if err != nil || n < len(d.buf) {
		return Sample{}, false
	}

	s := Sample{
		FusedRoll:  float64(math.Float32frombits(binary.LittleEndian.Uint32(d.buf[0:4]))),
		FusedPitch: float64(math.Float32frombits(binary.LittleEndian.Uint32(d.buf[4:8]))),
		FusedYaw:   float64(math.Float32frombits(binary.LittleEndian.Uint32(d.buf[8:12]))),
		RawGyroX:   int16(binary.LittleEndian.Uint16(d.buf[12:14])),
		RawGyroY:   int16(binary.LittleEndian.Uint16(d.buf[14:16])),
		RawGyroZ:   int16(binary.LittleEndian.Uint16(d.buf[16:18])),
		Timestamp:  time.Now(),
	}
	return s, true
}

func (d *SerialDriver) GyroFullScaleRange() float64 {
	return d.fsr
}
