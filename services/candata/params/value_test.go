package params

import (
	"math"
	"testing"
)

func TestSetRawRoundTripIntegerTypes(t *testing.T) {
	cases := []struct {
		typ  DataType
		in   int32
		want int32
	}{
		{Uint8, 300, 44},
		{Uint8, 255, 255},
		{Uint8, -1, 255},
		{Int8, 127, 127},
		{Int8, 128, -128},
		{Int8, -129, 127},
		{Uint16, 65535, 65535},
		{Uint16, 65536, 0},
		{Int16, -32768, -32768},
		{Int16, 40000, 40000 - 65536},
		{Int32, math.MinInt32, math.MinInt32},
		{Int32, math.MaxInt32, math.MaxInt32},
		{Uint32, -1, -1},
		{Uint32, 123456, 123456},
	}
	for _, c := range cases {
		if got := FromInt32(c.typ, c.in).Int32(); got != c.want {
			t.Errorf("%v %d: got %d want %d", c.typ, c.in, got, c.want)
		}
	}
}

func TestFullRangeRoundTrip(t *testing.T) {
	for _, typ := range []DataType{Int8, Uint8, Int16, Uint16} {
		lo, hi := typ.Range()
		for v := lo; v <= hi; v++ {
			if got := FromInt32(typ, v).Int32(); got != v {
				t.Fatalf("%v: %d -> %d", typ, v, got)
			}
		}
	}
	for _, v := range []int32{math.MinInt32, -1, 0, 1, math.MaxInt32} {
		if got := FromInt32(Int32, v).Int32(); got != v {
			t.Fatalf("int32: %d -> %d", v, got)
		}
	}
}

func TestFloatConversions(t *testing.T) {
	if got := FromFloat(Float, 12.75).Int32(); got != 12 {
		t.Fatalf("truncate: %d", got)
	}
	if got := FromFloat(Float, -12.75).Int32(); got != -12 {
		t.Fatalf("truncate negative: %d", got)
	}
	if got := FromFloat(Float, 1e12).Int32(); got != math.MaxInt32 {
		t.Fatalf("saturate: %d", got)
	}
	if got := FromFloat(Float, math.NaN()).Int32(); got != 0 {
		t.Fatalf("nan: %d", got)
	}
	if got := FromInt32(Float, 1000).Bits(); got != math.Float32bits(1000) {
		t.Fatalf("bits %#x", got)
	}
}

func TestFromBitsSignExtension(t *testing.T) {
	v, ok := FromBits(Int16, 0xFF, 1)
	if !ok || v.Int32() != -1 {
		t.Fatalf("int16 from 1 byte: %d", v.Int32())
	}
	v, _ = FromBits(Uint16, 0xFF, 1)
	if v.Int32() != 255 {
		t.Fatalf("uint16 from 1 byte: %d", v.Int32())
	}
	v, _ = FromBits(Int8, 0x12345680, 4)
	if v.Int32() != -128 {
		t.Fatalf("int8 from 4 bytes: %d", v.Int32())
	}
	if _, ok := FromBits(Float, 0x3F80, 2); ok {
		t.Fatal("short float accepted")
	}
	if _, ok := FromBits(Int32, 0, 0); ok {
		t.Fatal("zero size accepted")
	}
}

func TestParseType(t *testing.T) {
	for tag, want := range map[string]DataType{
		"int8": Int8, "UINT16": Uint16, " uint32 ": Uint32, "float": Float, "float32": Float,
	} {
		if got, ok := ParseType(tag); !ok || got != want {
			t.Errorf("%q: got %v", tag, got)
		}
	}
	if _, ok := ParseType("double"); ok {
		t.Error("double accepted")
	}
}
