package regfield

import (
	"errors"
	"testing"
)

// memBus is an in-memory 256-byte register space. A transaction with a
// one-byte write and a read buffer reads sequential registers starting at the
// written address; a longer write stores the payload at that address.
type memBus struct {
	regs [256]byte
	txs  int
	fail error
}

func (m *memBus) Tx(w, r []byte) error {
	m.txs++
	if m.fail != nil {
		return m.fail
	}
	if len(w) == 0 {
		return errors.New("memBus: empty write")
	}
	addr := int(w[0])
	if len(w) > 1 {
		copy(m.regs[addr:], w[1:])
		return nil
	}
	copy(r, m.regs[addr:])
	return nil
}

func TestBitGetByteSelection(t *testing.T) {
	bus := &memBus{}
	bus.regs[0x08] = 0x40 // bit 6 of a 1-byte register

	f, err := NewBit(bus, 0x08, 6, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	v, err := f.Get()
	if err != nil {
		t.Fatal(err)
	}
	if !v {
		t.Error("bit 6 should read as set")
	}

	// Same bit index in a 2-byte MSB-first register lands in the last byte.
	bus.regs[0x10] = 0x00
	bus.regs[0x11] = 0x40
	f, err = NewBit(bus, 0x10, 6, 2, false)
	if err != nil {
		t.Fatal(err)
	}
	if v, err = f.Get(); err != nil || !v {
		t.Errorf("msb-first bit 6 = %v, %v; want true, nil", v, err)
	}
}

func TestBitSetReadModifyWrite(t *testing.T) {
	bus := &memBus{}
	bus.regs[0x09] = 0b1010_0001

	f, err := NewBit(bus, 0x09, 2, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Set(true); err != nil {
		t.Fatal(err)
	}
	if got := bus.regs[0x09]; got != 0b1010_0101 {
		t.Errorf("register after set = %08b, want %08b", got, 0b1010_0101)
	}
	if err := f.Set(false); err != nil {
		t.Fatal(err)
	}
	if got := bus.regs[0x09]; got != 0b1010_0001 {
		t.Errorf("register after clear = %08b, want %08b", got, 0b1010_0001)
	}
}

func TestBitsMaskMustFitRegister(t *testing.T) {
	bus := &memBus{}
	if _, err := NewBits(bus, 9, 0x00, 0, 1, true, false); err == nil {
		t.Error("9 bits in a 1-byte register should be rejected")
	}
	if _, err := NewBits(bus, 4, 0x00, 5, 1, true, false); err == nil {
		t.Error("4 bits at offset 5 in a 1-byte register should be rejected")
	}
	if _, err := NewBit(bus, 0x00, 8, 1, true); err == nil {
		t.Error("bit 8 in a 1-byte register should be rejected")
	}
	if _, err := NewBits(bus, 24, 0x00, 0, 3, false, true); err != nil {
		t.Errorf("24 bits in a 3-byte register rejected: %v", err)
	}
}

func TestBitsByteOrder(t *testing.T) {
	bus := &memBus{}
	bus.regs[0x00] = 0x12
	bus.regs[0x01] = 0x34
	bus.regs[0x02] = 0x56

	msb, err := NewBits(bus, 24, 0x00, 0, 3, false, false)
	if err != nil {
		t.Fatal(err)
	}
	v, err := msb.Get()
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x123456 {
		t.Errorf("msb-first read = %#x, want 0x123456", v)
	}

	lsb, err := NewBits(bus, 24, 0x00, 0, 3, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if v, err = lsb.Get(); err != nil || v != 0x563412 {
		t.Errorf("lsb-first read = %#x, %v; want 0x563412, nil", v, err)
	}
}

func TestBitsSignExtension(t *testing.T) {
	bus := &memBus{}
	// 24-bit two's complement -1 in a 3-byte MSB-first register.
	bus.regs[0x03] = 0xFF
	bus.regs[0x04] = 0xFF
	bus.regs[0x05] = 0xFF

	f, err := NewBits(bus, 24, 0x03, 0, 3, false, true)
	if err != nil {
		t.Fatal(err)
	}
	v, err := f.Get()
	if err != nil {
		t.Fatal(err)
	}
	if v != -1 {
		t.Errorf("signed 24-bit all-ones = %d, want -1", v)
	}
}

// Writing back a value just read must leave the register unchanged, for every
// geometry that fits.
func TestSetGetIdempotent(t *testing.T) {
	for width := 1; width <= 4; width++ {
		for numBits := uint(1); numBits <= uint(width)*8; numBits++ {
			for lowest := uint(0); numBits+lowest <= uint(width)*8; lowest += 3 {
				for _, lsbFirst := range []bool{true, false} {
					bus := &memBus{}
					for i := 0; i < width; i++ {
						bus.regs[0x20+i] = byte(0xA5 ^ i*0x3B)
					}
					before := bus.regs
					f, err := NewBits(bus, numBits, 0x20, lowest, width, lsbFirst, false)
					if err != nil {
						t.Fatal(err)
					}
					v, err := f.Get()
					if err != nil {
						t.Fatal(err)
					}
					if err := f.Set(v); err != nil {
						t.Fatal(err)
					}
					if bus.regs != before {
						t.Fatalf("set(get()) changed register (numBits=%d lowest=%d width=%d lsbFirst=%v)",
							numBits, lowest, width, lsbFirst)
					}
				}
			}
		}
	}
}

func TestSignExtendRoundTrip(t *testing.T) {
	for _, width := range []uint{12, 16, 20, 24} {
		lo := -(int64(1) << (width - 1))
		hi := int64(1)<<(width-1) - 1
		step := int64(1)
		if width > 16 {
			step = 257 // keep the sweep fast while still crossing byte boundaries
		}
		for v := lo; v <= hi; v += step {
			enc := uint64(v) & (1<<width - 1)
			if got := SignExtend(enc, width); got != v {
				t.Fatalf("SignExtend(%#x, %d) = %d, want %d", enc, width, got, v)
			}
		}
		if got := SignExtend(uint64(hi), width); got != hi {
			t.Errorf("SignExtend max for width %d = %d, want %d", width, got, hi)
		}
		if got := SignExtend(uint64(lo)&(1<<width-1), width); got != lo {
			t.Errorf("SignExtend min for width %d = %d, want %d", width, got, lo)
		}
	}
}

func TestBusErrorPropagates(t *testing.T) {
	busErr := errors.New("i2c: no ack")
	bus := &memBus{fail: busErr}

	f, err := NewBits(bus, 4, 0x06, 0, 1, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Get(); !errors.Is(err, busErr) {
		t.Errorf("Get error = %v, want the bus fault unchanged", err)
	}
	if err := f.Set(3); !errors.Is(err, busErr) {
		t.Errorf("Set error = %v, want the bus fault unchanged", err)
	}
}
