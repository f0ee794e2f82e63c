// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensors provides the accelerometer source the flight state machine
// consumes. The MPU9250 delivers raw counts; conversion to m/s² happens here
// so the state machine only ever sees physical units.
package sensors

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"
)

const gravity = 9.80665 // m/s² per g

// Accelerometer delivers one converted sample per call, in m/s² per axis.
type Accelerometer interface {
	Sample() (x, y, z float64, err error)
}

// Axis selects the dominant axis the state machine watches.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// ParseAxis maps a config value ("x", "y", "z") to an Axis.
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "x":
		return AxisX, nil
	case "y":
		return AxisY, nil
	case "z":
		return AxisZ, nil
	}
	return 0, fmt.Errorf("sensors: unknown accelerometer axis %q", s)
}

type mpuAccel struct {
	imu *mpu9250.MPU9250
	// lsbPerG depends on the configured full-scale range: 16384 at ±2g down
	// to 2048 at ±16g.
	lsbPerG float64
}

// NewMPU9250 brings up the MPU9250 over SPI and configures the accelerometer
// full-scale range (0=±2g .. 3=±16g). A failed self-test is logged, not
// fatal; a rocket on the pad vibrates enough to skew it.
func NewMPU9250(spiDev, csPin string, accelRange byte) (Accelerometer, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("sensors: periph host init: %w", err)
	}
	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("sensors: CS pin %q not found", csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("sensors: SPI transport (%s): %w", spiDev, err)
	}
	imu, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("sensors: device creation: %w", err)
	}
	if err := imu.Init(); err != nil {
		return nil, fmt.Errorf("sensors: initialization: %w", err)
	}

	if accelRange > 3 {
		return nil, fmt.Errorf("sensors: accel range %d out of range 0-3", accelRange)
	}
	if err := imu.SetAccelRange(accelRange); err != nil {
		return nil, fmt.Errorf("sensors: set accel range: %w", err)
	}
	log.Printf("accelerometer range set to %d (±%dg)", accelRange, []int{2, 4, 8, 16}[accelRange])

	if result, err := imu.SelfTest(); err != nil {
		log.Printf("Warning: accelerometer self-test failed: %v", err)
	} else {
		log.Printf("accelerometer self-test deviation: X: %.2f%%, Y: %.2f%%, Z: %.2f%%",
			result.AccelDeviation.X, result.AccelDeviation.Y, result.AccelDeviation.Z)
	}

	if err := imu.Calibrate(); err != nil {
		log.Printf("Warning: accelerometer calibration failed: %v", err)
	}

	return &mpuAccel{
		imu:     imu,
		lsbPerG: float64(int(16384) >> accelRange),
	}, nil
}

// Sample reads all three axes and converts raw counts to m/s².
func (s *mpuAccel) Sample() (float64, float64, float64, error) {
	rx, err := s.imu.GetAccelerationX()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("sensors: accel X: %w", err)
	}
	ry, err := s.imu.GetAccelerationY()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("sensors: accel Y: %w", err)
	}
	rz, err := s.imu.GetAccelerationZ()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("sensors: accel Z: %w", err)
	}
	return s.convert(rx), s.convert(ry), s.convert(rz), nil
}

func (s *mpuAccel) convert(raw int16) float64 {
	return float64(raw) / s.lsbPerG * gravity
}

// AxisSource adapts an Accelerometer to the state machine's single-axis
// view.
type AxisSource struct {
	Src  Accelerometer
	Axis Axis
}

// Accel returns the configured axis from one fresh sample.
func (a *AxisSource) Accel() (float64, error) {
	x, y, z, err := a.Src.Sample()
	if err != nil {
		return 0, err
	}
	switch a.Axis {
	case AxisY:
		return y, nil
	case AxisZ:
		return z, nil
	default:
		return x, nil
	}
}
