// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package regfield provides typed bit and bitfield descriptors over a shared
// register bus. A descriptor is configured once at driver initialization and
// is immutable afterwards; every Get/Set is a fresh bus transaction.
package regfield

import (
	"fmt"
)

// Conn is the bus transport a field issues its transactions on. A write-only
// transaction passes a nil read buffer; a write-then-read passes both. It is
// satisfied by periph.io's conn.Conn implementations (i2c.Dev, spi.Conn).
type Conn interface {
	Tx(w, r []byte) error
}

// SignExtend interprets the low width bits of v as a two's-complement value.
func SignExtend(v uint64, width uint) int64 {
	if width == 0 || width >= 64 {
		return int64(v)
	}
	if v&(1<<(width-1)) != 0 {
		return int64(v) - (1 << width)
	}
	return int64(v)
}

// Bit is a single read/write bit within a register of Width bytes.
type Bit struct {
	c       Conn
	addr    byte
	mask    byte
	byteIdx int
	width   int
}

// NewBit returns a descriptor for one bit of the register at addr.
// bit indexes from the register's LSB; lsbFirst declares whether the first
// byte read off the bus is the least significant one.
func NewBit(c Conn, addr byte, bit uint, width int, lsbFirst bool) (*Bit, error) {
	if width < 1 {
		return nil, fmt.Errorf("regfield: register width %d invalid", width)
	}
	if int(bit) >= width*8 {
		return nil, fmt.Errorf("regfield: bit %d does not fit a %d-byte register", bit, width)
	}
	idx := int(bit) / 8
	if !lsbFirst {
		idx = width - 1 - idx
	}
	return &Bit{
		c:       c,
		addr:    addr,
		mask:    1 << (bit % 8),
		byteIdx: idx,
		width:   width,
	}, nil
}

// Get reads the register and returns the bit.
func (f *Bit) Get() (bool, error) {
	buf := make([]byte, f.width)
	if err := f.c.Tx([]byte{f.addr}, buf); err != nil {
		return false, err
	}
	return buf[f.byteIdx]&f.mask != 0, nil
}

// Set performs a read-modify-write of the whole register. The read and write
// are two separate transactions; callers must not interleave other access to
// the same register between them.
func (f *Bit) Set(v bool) error {
	buf := make([]byte, 1+f.width)
	buf[0] = f.addr
	if err := f.c.Tx(buf[:1], buf[1:]); err != nil {
		return err
	}
	if v {
		buf[1+f.byteIdx] |= f.mask
	} else {
		buf[1+f.byteIdx] &^= f.mask
	}
	return f.c.Tx(buf, nil)
}

// Bits is a contiguous multi-bit field within a register of width bytes,
// optionally interpreted as a two's-complement signed value.
type Bits struct {
	c         Conn
	addr      byte
	mask      uint64
	lowestBit uint
	width     int
	lsbFirst  bool
	signBit   uint64
}

// NewBits returns a descriptor for numBits bits starting at lowestBit within
// the register at addr. The bit mask must fit in width*8 bits; a mask that
// does not is a configuration error.
func NewBits(c Conn, numBits uint, addr byte, lowestBit uint, width int, lsbFirst, signed bool) (*Bits, error) {
	if width < 1 || width > 8 {
		return nil, fmt.Errorf("regfield: register width %d invalid", width)
	}
	if numBits == 0 {
		return nil, fmt.Errorf("regfield: field cannot be empty")
	}
	mask := (uint64(1)<<numBits - 1) << lowestBit
	if numBits+lowestBit > uint(width)*8 {
		return nil, fmt.Errorf("regfield: %d bits at offset %d do not fit a %d-byte register",
			numBits, lowestBit, width)
	}
	f := &Bits{
		c:         c,
		addr:      addr,
		mask:      mask,
		lowestBit: lowestBit,
		width:     width,
		lsbFirst:  lsbFirst,
	}
	if signed {
		f.signBit = 1 << (numBits - 1)
	}
	return f, nil
}

// Get reads the register, extracts the field and sign-extends it when the
// descriptor is signed.
func (f *Bits) Get() (int64, error) {
	buf := make([]byte, f.width)
	if err := f.c.Tx([]byte{f.addr}, buf); err != nil {
		return 0, err
	}
	reg := f.assemble(buf)
	v := (reg & f.mask) >> f.lowestBit
	if f.signBit != 0 && v&f.signBit != 0 {
		return int64(v) - int64(2*f.signBit), nil
	}
	return int64(v), nil
}

// Set performs a read-modify-write: the target bits are cleared in the
// current register contents, the new value is ORed in and the full register
// is written back.
func (f *Bits) Set(v int64) error {
	buf := make([]byte, 1+f.width)
	buf[0] = f.addr
	if err := f.c.Tx(buf[:1], buf[1:]); err != nil {
		return err
	}
	reg := f.assemble(buf[1:])
	reg &^= f.mask
	reg |= (uint64(v) << f.lowestBit) & f.mask
	f.disassemble(reg, buf[1:])
	return f.c.Tx(buf, nil)
}

// assemble folds the register bytes into one integer respecting byte order.
func (f *Bits) assemble(buf []byte) uint64 {
	var reg uint64
	if f.lsbFirst {
		for i := len(buf) - 1; i >= 0; i-- {
			reg = reg<<8 | uint64(buf[i])
		}
	} else {
		for _, b := range buf {
			reg = reg<<8 | uint64(b)
		}
	}
	return reg
}

func (f *Bits) disassemble(reg uint64, buf []byte) {
	if f.lsbFirst {
		for i := range buf {
			buf[i] = byte(reg)
			reg >>= 8
		}
	} else {
		for i := len(buf) - 1; i >= 0; i-- {
			buf[i] = byte(reg)
			reg >>= 8
		}
	}
}
