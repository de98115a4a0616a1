package can

import (
	"bytes"
	"testing"
)

func TestNewMarksExtended(t *testing.T) {
	f := New(0x583, []byte{1, 2, 3})
	if f.Extended || f.Len != 3 {
		t.Fatalf("std frame: %+v", f)
	}
	e := New(0x18FF50E5, nil)
	if !e.Extended || e.Len != 0 {
		t.Fatalf("ext frame: %+v", e)
	}
	long := New(0x100, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	if long.Len != 8 {
		t.Fatalf("len should cap at 8, got %d", long.Len)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		f    Frame
		okay bool
	}{
		{Frame{ID: 0x7FF}, true},
		{Frame{ID: 0x800}, false},
		{Frame{ID: 0x800, Extended: true}, true},
		{Frame{ID: 0x20000000, Extended: true}, false},
		{Frame{ID: 1, Len: 9}, false},
	}
	for i, tc := range cases {
		if err := tc.f.Validate(); (err == nil) != tc.okay {
			t.Errorf("case %d: Validate() = %v", i, err)
		}
	}
}

func TestWireLayout(t *testing.T) {
	f := New(0x373, []byte{0x74, 0x0E, 0x79, 0x0E})
	b, err := f.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x73, 0x03, 0, 0, 4, 0, 0, 0, 0x74, 0x0E, 0x79, 0x0E, 0, 0, 0, 0}
	if !bytes.Equal(b, want) {
		t.Fatalf("wire = % x\nwant % x", b, want)
	}
	var g Frame
	if err := g.UnmarshalBinary(b); err != nil {
		t.Fatal(err)
	}
	if g.ID != f.ID || g.Len != f.Len || g.Data != f.Data || g.Extended {
		t.Fatalf("decoded %+v", g)
	}
}

func TestUnmarshalRejectsRemoteAndError(t *testing.T) {
	var raw [WireSize]byte
	raw[3] = 0x40 // RTR
	var f Frame
	if err := f.UnmarshalBinary(raw[:]); err == nil {
		t.Fatal("remote frame accepted")
	}
	raw[3] = 0x20 // ERR
	if err := f.UnmarshalBinary(raw[:]); err == nil {
		t.Fatal("error frame accepted")
	}
	if err := f.UnmarshalBinary(raw[:10]); err == nil {
		t.Fatal("short buffer accepted")
	}
}

func TestPayload(t *testing.T) {
	f := New(1, []byte{9, 8})
	if p := f.Payload(); len(p) != 2 || p[0] != 9 {
		t.Fatalf("payload % x", p)
	}
}
