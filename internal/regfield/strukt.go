package regfield

import (
	"fmt"
)

// Elem describes one fixed-width integer inside a Struct layout.
type Elem struct {
	Width     int // bytes: 1, 2 or 4
	Signed    bool
	BigEndian bool
}

// Struct packs and unpacks a fixed binary layout directly against register
// bytes, with no bit-level shifting. It covers whole-byte registers such as
// reset and product-id, and multi-value blocks such as axis triples.
type Struct struct {
	c      Conn
	addr   byte
	layout []Elem
	size   int
}

// NewStruct returns a descriptor for an ordered list of fixed-width fields
// starting at addr.
func NewStruct(c Conn, addr byte, layout []Elem) (*Struct, error) {
	if len(layout) == 0 {
		return nil, fmt.Errorf("regfield: struct layout cannot be empty")
	}
	size := 0
	for i, e := range layout {
		switch e.Width {
		case 1, 2, 4:
		default:
			return nil, fmt.Errorf("regfield: struct element %d has invalid width %d", i, e.Width)
		}
		size += e.Width
	}
	return &Struct{c: c, addr: addr, layout: layout, size: size}, nil
}

// Get reads the block and decodes each element in layout order.
func (f *Struct) Get() ([]int64, error) {
	buf := make([]byte, f.size)
	if err := f.c.Tx([]byte{f.addr}, buf); err != nil {
		return nil, err
	}
	out := make([]int64, len(f.layout))
	off := 0
	for i, e := range f.layout {
		var raw uint64
		if e.BigEndian {
			for _, b := range buf[off : off+e.Width] {
				raw = raw<<8 | uint64(b)
			}
		} else {
			for j := e.Width - 1; j >= 0; j-- {
				raw = raw<<8 | uint64(buf[off+j])
			}
		}
		if e.Signed {
			out[i] = SignExtend(raw, uint(e.Width)*8)
		} else {
			out[i] = int64(raw)
		}
		off += e.Width
	}
	return out, nil
}

// Set encodes the values in layout order and writes the block in a single
// transaction.
func (f *Struct) Set(values []int64) error {
	if len(values) != len(f.layout) {
		return fmt.Errorf("regfield: struct wants %d values, got %d", len(f.layout), len(values))
	}
	buf := make([]byte, 1+f.size)
	buf[0] = f.addr
	off := 1
	for i, e := range f.layout {
		raw := uint64(values[i])
		if e.BigEndian {
			for j := e.Width - 1; j >= 0; j-- {
				buf[off+j] = byte(raw)
				raw >>= 8
			}
		} else {
			for j := 0; j < e.Width; j++ {
				buf[off+j] = byte(raw)
				raw >>= 8
			}
		}
		off += e.Width
	}
	return f.c.Tx(buf, nil)
}

// GetByte reads a single unsigned byte register. It is a convenience for the
// common ">B" layout.
func (f *Struct) GetByte() (byte, error) {
	vals, err := f.Get()
	if err != nil {
		return 0, err
	}
	return byte(vals[0]), nil
}

// SetByte writes a single byte register.
func (f *Struct) SetByte(v byte) error {
	return f.Set([]int64{int64(v)})
}
