package regfield

import (
	"testing"
)

func TestStructSingleByte(t *testing.T) {
	bus := &memBus{}
	bus.regs[0x0D] = 0x10

	f, err := NewStruct(bus, 0x0D, []Elem{{Width: 1}})
	if err != nil {
		t.Fatal(err)
	}
	v, err := f.GetByte()
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x10 {
		t.Errorf("product id = %#x, want 0x10", v)
	}

	if err := f.SetByte(0x89); err != nil {
		t.Fatal(err)
	}
	if bus.regs[0x0D] != 0x89 {
		t.Errorf("register = %#x after SetByte(0x89)", bus.regs[0x0D])
	}
}

func TestStructSignedTriple(t *testing.T) {
	bus := &memBus{}
	// Three signed big-endian int16: 0x0102, -2, 0x7FFF.
	copy(bus.regs[0x30:], []byte{0x01, 0x02, 0xFF, 0xFE, 0x7F, 0xFF})

	layout := []Elem{
		{Width: 2, Signed: true, BigEndian: true},
		{Width: 2, Signed: true, BigEndian: true},
		{Width: 2, Signed: true, BigEndian: true},
	}
	f, err := NewStruct(bus, 0x30, layout)
	if err != nil {
		t.Fatal(err)
	}
	vals, err := f.Get()
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{0x0102, -2, 0x7FFF}
	for i := range want {
		if vals[i] != want[i] {
			t.Errorf("element %d = %d, want %d", i, vals[i], want[i])
		}
	}

	if err := f.Set(want); err != nil {
		t.Fatal(err)
	}
	for i, b := range []byte{0x01, 0x02, 0xFF, 0xFE, 0x7F, 0xFF} {
		if bus.regs[0x30+i] != b {
			t.Errorf("byte %d = %#x after write-back, want %#x", i, bus.regs[0x30+i], b)
		}
	}
}

func TestStructRejectsBadLayout(t *testing.T) {
	bus := &memBus{}
	if _, err := NewStruct(bus, 0x00, nil); err == nil {
		t.Error("empty layout should be rejected")
	}
	if _, err := NewStruct(bus, 0x00, []Elem{{Width: 3}}); err == nil {
		t.Error("3-byte element should be rejected")
	}
}
