// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package dps310 drives the Infineon DPS310 barometric pressure sensor over
// a shared two-wire bus. The driver runs the sensor in continuous measurement
// mode at high oversampling and compensates raw counts with the factory
// calibration coefficients read back after every reset.
package dps310

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/flight_computer/internal/regfield"
)

// ErrWaitTimeout is returned when a ready-bit poll exhausts Opts.PollTimeout.
var ErrWaitTimeout = errors.New("dps310: wait timed out")

const (
	resetSettleTime   = 10 * time.Millisecond
	readyPollInterval = 1 * time.Millisecond
	dataPollInterval  = 10 * time.Millisecond
)

// Opts configures a Dev.
type Opts struct {
	// Oversampling is the rate code (0..7 for 1x..128x) applied to both the
	// pressure and temperature channels.
	Oversampling int
	// PollTimeout bounds every ready-bit poll (sensor ready, coefficients
	// ready, data ready). Zero disables the bound; the poll then spins until
	// the bit is observed, which can suspend the caller forever if the part
	// hangs.
	PollTimeout time.Duration
	// SeaLevelPressure is the initial reference for Altitude, in hPa.
	SeaLevelPressure float64
}

// DefaultOpts runs both channels at 64x oversampling with a bounded poll.
var DefaultOpts = Opts{
	Oversampling:     6, // 64x
	PollTimeout:      10 * time.Second,
	SeaLevelPressure: 1013.25,
}

// Dev is a handle to one DPS310. It is exclusively owned by its creator; the
// driver performs no locking around bus transactions.
type Dev struct {
	c    regfield.Conn
	opts Opts

	// Field descriptors, built once in New.
	resetReg      *regfield.Struct
	productID     *regfield.Struct
	modeBits      *regfield.Bits
	pressureOS    *regfield.Bits
	tempOS        *regfield.Bits
	tempSrc       *regfield.Bit
	pressureShift *regfield.Bit
	tempShift     *regfield.Bit
	coefReady     *regfield.Bit
	sensorReady   *regfield.Bit
	tempReady     *regfield.Bit
	pressureReady *regfield.Bit
	rawPressure   *regfield.Bits
	rawTemp       *regfield.Bits
	calibTempSrc  *regfield.Bit
	erratum0E     *regfield.Bits
	erratum0F     *regfield.Bits
	erratum62     *regfield.Bits

	pressureScale float64
	tempScale     float64

	// Calibration coefficients, re-read on every reset.
	c0, c1                            float64
	c00, c10, c01, c11, c20, c21, c30 float64

	mu       sync.Mutex
	seaLevel float64
}

// fieldBuilder collects the first construction error so New can declare all
// descriptors without per-field error plumbing.
type fieldBuilder struct {
	c   regfield.Conn
	err error
}

func (b *fieldBuilder) bit(addr byte, bit uint) *regfield.Bit {
	f, err := regfield.NewBit(b.c, addr, bit, 1, true)
	if err != nil && b.err == nil {
		b.err = err
	}
	return f
}

func (b *fieldBuilder) bits(numBits uint, addr byte, lowestBit uint, width int, lsbFirst, signed bool) *regfield.Bits {
	f, err := regfield.NewBits(b.c, numBits, addr, lowestBit, width, lsbFirst, signed)
	if err != nil && b.err == nil {
		b.err = err
	}
	return f
}

func (b *fieldBuilder) byteReg(addr byte) *regfield.Struct {
	f, err := regfield.NewStruct(b.c, addr, []regfield.Elem{{Width: 1, BigEndian: true}})
	if err != nil && b.err == nil {
		b.err = err
	}
	return f
}

// New builds the register map for a DPS310 behind c. A nil opts selects
// DefaultOpts. New performs no bus traffic; call Init before reading.
func New(c regfield.Conn, opts *Opts) (*Dev, error) {
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	if o.Oversampling < 0 || o.Oversampling >= len(scaleFactor) {
		return nil, fmt.Errorf("dps310: unsupported oversampling rate code %d", o.Oversampling)
	}
	if o.SeaLevelPressure == 0 {
		o.SeaLevelPressure = DefaultOpts.SeaLevelPressure
	}

	b := &fieldBuilder{c: c}
	d := &Dev{
		c:    c,
		opts: o,

		resetReg:      b.byteReg(regRESET),
		productID:     b.byteReg(regPRODREVID),
		modeBits:      b.bits(3, regMEASCFG, 0, 1, true, false),
		pressureOS:    b.bits(4, regPRSCFG, 0, 1, true, false),
		tempOS:        b.bits(4, regTMPCFG, 0, 1, true, false),
		tempSrc:       b.bit(regTMPCFG, 7),
		pressureShift: b.bit(regCFGREG, 2),
		tempShift:     b.bit(regCFGREG, 3),
		coefReady:     b.bit(regMEASCFG, 7),
		sensorReady:   b.bit(regMEASCFG, 6),
		tempReady:     b.bit(regMEASCFG, 5),
		pressureReady: b.bit(regMEASCFG, 4),
		rawPressure:   b.bits(24, regPRSB2, 0, 3, false, true),
		rawTemp:       b.bits(24, regTMPB2, 0, 3, false, true),
		calibTempSrc:  b.bit(regTMPCOEFSRC, 7),
		erratum0E:     b.bits(8, regErratum0E, 0, 1, true, false),
		erratum0F:     b.bits(8, regErratum0F, 0, 1, true, false),
		erratum62:     b.bits(8, regErratum62, 0, 1, true, false),

		seaLevel: o.SeaLevelPressure,
	}
	if b.err != nil {
		return nil, fmt.Errorf("dps310: register map: %w", b.err)
	}
	return d, nil
}

// Init resets the sensor, configures both channels for the requested
// oversampling, starts continuous measurement and blocks until at least one
// temperature and one pressure sample are available.
func (d *Dev) Init(ctx context.Context) error {
	if err := d.reset(ctx); err != nil {
		return err
	}

	os := int64(d.opts.Oversampling)
	shift := d.opts.Oversampling > 3 // result bit-shift required above 8x

	if err := d.pressureOS.Set(os); err != nil {
		return fmt.Errorf("dps310: set pressure oversampling: %w", err)
	}
	if err := d.pressureShift.Set(shift); err != nil {
		return fmt.Errorf("dps310: set pressure shift: %w", err)
	}
	d.pressureScale = scaleFactor[d.opts.Oversampling]

	if err := d.tempOS.Set(os); err != nil {
		return fmt.Errorf("dps310: set temperature oversampling: %w", err)
	}
	if err := d.tempShift.Set(shift); err != nil {
		return fmt.Errorf("dps310: set temperature shift: %w", err)
	}
	d.tempScale = scaleFactor[d.opts.Oversampling]

	if err := d.modeBits.Set(modeContinuous); err != nil {
		return fmt.Errorf("dps310: set continuous mode: %w", err)
	}

	if err := d.WaitTemperatureReady(ctx); err != nil {
		return err
	}
	return d.WaitPressureReady(ctx)
}

// reset soft-resets the sensor, runs the temperature-erratum workaround,
// re-reads the calibration coefficients and aligns the measurement
// temperature source with the one the factory calibrated against.
func (d *Dev) reset(ctx context.Context) error {
	if err := d.resetReg.SetByte(resetValue); err != nil {
		return fmt.Errorf("dps310: soft reset: %w", err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(resetSettleTime):
	}
	if err := d.waitBit(ctx, d.sensorReady, readyPollInterval, "sensor ready"); err != nil {
		return err
	}
	if err := d.correctTemp(); err != nil {
		return err
	}
	if err := d.readCalibration(ctx); err != nil {
		return err
	}
	src, err := d.calibTempSrc.Get()
	if err != nil {
		return fmt.Errorf("dps310: read calibration temperature source: %w", err)
	}
	if err := d.tempSrc.Set(src); err != nil {
		return fmt.Errorf("dps310: set temperature source: %w", err)
	}
	return nil
}

// correctTemp works around the fuse-bit erratum that makes some parts report
// temperatures around 60 degC too high. Three unlock writes to undocumented
// registers, two writes clearing them, then one throwaway temperature read so
// the internal compensation state is primed before calibration is trusted.
// See https://github.com/Infineon/DPS310-Pressure-Sensor#temperature-measurement-issue
func (d *Dev) correctTemp() error {
	seq := []struct {
		f *regfield.Bits
		v int64
	}{
		{d.erratum0E, 0xA5},
		{d.erratum0F, 0x96},
		{d.erratum62, 0x02},
		{d.erratum0E, 0x00},
		{d.erratum0F, 0x00},
	}
	for _, s := range seq {
		if err := s.f.Set(s.v); err != nil {
			return fmt.Errorf("dps310: erratum sequence: %w", err)
		}
	}
	if _, err := d.rawTemp.Get(); err != nil {
		return fmt.Errorf("dps310: erratum temperature read: %w", err)
	}
	return nil
}

// readCalibration waits for the coefficient-ready bit and reads the 18
// calibration bytes one register at a time. The coefficients straddle byte
// boundaries; each is sign-extended over its declared width.
func (d *Dev) readCalibration(ctx context.Context) error {
	if err := d.waitBit(ctx, d.coefReady, readyPollInterval, "coefficients ready"); err != nil {
		return err
	}

	var coeffs [coefLen]byte
	buf := make([]byte, 1)
	for i := range coeffs {
		if err := d.c.Tx([]byte{byte(regCOEF + i)}, buf); err != nil {
			return fmt.Errorf("dps310: read coefficient byte %#02x: %w", regCOEF+i, err)
		}
		coeffs[i] = buf[0]
	}
	d.unpackCalibration(coeffs)
	return nil
}

// unpackCalibration decodes the nine coefficients from the raw block, per
// datasheet table 18 (page 37).
func (d *Dev) unpackCalibration(coeffs [coefLen]byte) {
	u := func(i int) uint64 { return uint64(coeffs[i]) }

	d.c0 = float64(regfield.SignExtend(u(0)<<4|u(1)>>4&0x0F, 12))
	d.c1 = float64(regfield.SignExtend((u(1)&0x0F)<<8|u(2), 12))
	d.c00 = float64(regfield.SignExtend(u(3)<<12|u(4)<<4|u(5)>>4&0x0F, 20))
	d.c10 = float64(regfield.SignExtend((u(5)&0x0F)<<16|u(6)<<8|u(7), 20))
	d.c01 = float64(regfield.SignExtend(u(8)<<8|u(9), 16))
	d.c11 = float64(regfield.SignExtend(u(10)<<8|u(11), 16))
	d.c20 = float64(regfield.SignExtend(u(12)<<8|u(13), 16))
	d.c21 = float64(regfield.SignExtend(u(14)<<8|u(15), 16))
	d.c30 = float64(regfield.SignExtend(u(16)<<8|u(17), 16))
}

// Pressure returns the compensated pressure in hPa. Both raw channels are
// read fresh; the result applies the second-order compensation polynomial
// from datasheet section 4.9.1.
func (d *Dev) Pressure() (float64, error) {
	rawT, err := d.rawTemp.Get()
	if err != nil {
		return 0, fmt.Errorf("dps310: read raw temperature: %w", err)
	}
	rawP, err := d.rawPressure.Get()
	if err != nil {
		return 0, fmt.Errorf("dps310: read raw pressure: %w", err)
	}

	st := float64(rawT) / d.tempScale
	sp := float64(rawP) / d.pressureScale

	pa := d.c00 +
		sp*(d.c10+sp*(d.c20+sp*d.c30)) +
		st*(d.c01+sp*(d.c11+sp*d.c21))
	return pa / 100, nil
}

// Temperature returns the compensated temperature in degrees Celsius.
func (d *Dev) Temperature() (float64, error) {
	rawT, err := d.rawTemp.Get()
	if err != nil {
		return 0, fmt.Errorf("dps310: read raw temperature: %w", err)
	}
	st := float64(rawT) / d.tempScale
	return d.c0/2 + d.c1*st, nil
}

// Altitude returns the barometric altitude in meters relative to the current
// sea-level reference.
func (d *Dev) Altitude() (float64, error) {
	p, err := d.Pressure()
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	sl := d.seaLevel
	d.mu.Unlock()
	return 44330 * (1 - math.Pow(p/sl, 0.1903)), nil
}

// SeaLevelPressure returns the current sea-level reference in hPa.
func (d *Dev) SeaLevelPressure() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seaLevel
}

// SetSeaLevelPressure updates the sea-level reference in hPa. The new value
// affects subsequent Altitude reads only.
func (d *Dev) SetSeaLevelPressure(hPa float64) {
	d.mu.Lock()
	d.seaLevel = hPa
	d.mu.Unlock()
}

// WaitTemperatureReady blocks until a temperature measurement is available.
func (d *Dev) WaitTemperatureReady(ctx context.Context) error {
	return d.waitBit(ctx, d.tempReady, dataPollInterval, "temperature ready")
}

// WaitPressureReady blocks until a pressure measurement is available.
func (d *Dev) WaitPressureReady(ctx context.Context) error {
	return d.waitBit(ctx, d.pressureReady, dataPollInterval, "pressure ready")
}

// ProductID reads the product and revision id register (0x10 for a DPS310).
func (d *Dev) ProductID() (byte, error) {
	return d.productID.GetByte()
}

// ReadRegister exposes a raw single-byte register read for debug tooling.
func (d *Dev) ReadRegister(addr byte) (byte, error) {
	buf := make([]byte, 1)
	if err := d.c.Tx([]byte{addr}, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// WriteRegister exposes a raw single-byte register write for debug tooling.
func (d *Dev) WriteRegister(addr, value byte) error {
	return d.c.Tx([]byte{addr, value}, nil)
}

// waitBit polls f at interval until it reads true. Bus faults propagate
// unchanged; exhausting Opts.PollTimeout yields ErrWaitTimeout.
func (d *Dev) waitBit(ctx context.Context, f *regfield.Bit, interval time.Duration, what string) error {
	var deadline time.Time
	if d.opts.PollTimeout > 0 {
		deadline = time.Now().Add(d.opts.PollTimeout)
	}
	for {
		v, err := f.Get()
		if err != nil {
			return fmt.Errorf("dps310: poll %s: %w", what, err)
		}
		if v {
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return fmt.Errorf("dps310: %s: %w", what, ErrWaitTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
