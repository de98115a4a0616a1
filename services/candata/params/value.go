package params

import (
	"math"
	"strings"
)

// DataType fixes how a register's raw bits are interpreted.
type DataType uint8

const (
	Int8 DataType = iota + 1
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Float
)

var typeNames = [...]string{
	Int8:   "int8",
	Uint8:  "uint8",
	Int16:  "int16",
	Uint16: "uint16",
	Int32:  "int32",
	Uint32: "uint32",
	Float:  "float",
}

func (t DataType) String() string {
	if t.Valid() {
		return typeNames[t]
	}
	return "invalid"
}

func (t DataType) Valid() bool { return t >= Int8 && t <= Float }

// ParseType maps a document type tag to a DataType. Matching is
// case-insensitive; "float32" is accepted as an alias for "float".
func ParseType(s string) (DataType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "float32" {
		return Float, true
	}
	for t := Int8; t <= Float; t++ {
		if typeNames[t] == s {
			return t, true
		}
	}
	return 0, false
}

// Size is the native width in bytes, which is also the SDO payload size.
func (t DataType) Size() int {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	default:
		return 4
	}
}

func (t DataType) Signed() bool { return t == Int8 || t == Int16 || t == Int32 }

// Range returns the type's natural bounds clipped to int32.
func (t DataType) Range() (lo, hi int32) {
	switch t {
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Uint8:
		return 0, math.MaxUint8
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Uint16:
		return 0, math.MaxUint16
	case Uint32:
		return 0, math.MaxInt32
	default:
		return math.MinInt32, math.MaxInt32
	}
}

// Value is a register value tagged with its type. bits holds the native
// representation zero-extended to 32 bits (two's complement for signed
// types, IEEE-754 single for Float). All narrowing and widening goes
// through narrow and the accessors below.
type Value struct {
	Type DataType
	bits uint32
}

// narrow truncates x to the width of t, wrapping like a C cast.
func narrow(t DataType, x uint32) uint32 {
	switch t.Size() {
	case 1:
		return x & 0xFF
	case 2:
		return x & 0xFFFF
	default:
		return x
	}
}

// FromInt32 stores v in type t with bit-width wraparound; Float stores
// the nearest float32.
func FromInt32(t DataType, v int32) Value {
	if t == Float {
		return Value{Type: t, bits: math.Float32bits(float32(v))}
	}
	return Value{Type: t, bits: narrow(t, uint32(v))}
}

// FromFloat stores f; integer types truncate toward zero with wraparound.
func FromFloat(t DataType, f float64) Value {
	if t == Float {
		return Value{Type: t, bits: math.Float32bits(float32(f))}
	}
	return FromInt32(t, saturate(f))
}

// FromBits interprets a size-byte little-endian payload for type t. A
// payload narrower than a signed type is sign-extended from its own width.
// Float requires all four bytes.
func FromBits(t DataType, bits uint32, size int) (Value, bool) {
	if !t.Valid() || size < 1 || size > 4 {
		return Value{}, false
	}
	if t == Float {
		if size != 4 {
			return Value{}, false
		}
		return Value{Type: t, bits: bits}, true
	}
	if size < 4 {
		w := uint(size * 8)
		bits &= (1 << w) - 1
		if t.Signed() && bits&(1<<(w-1)) != 0 {
			bits |= ^uint32(0) << w
		}
	}
	return Value{Type: t, bits: narrow(t, bits)}, true
}

// Bits returns the native representation, suitable for an SDO payload.
func (v Value) Bits() uint32 { return v.bits }

// Int64 widens integer types exactly; Float truncates toward zero.
func (v Value) Int64() int64 {
	switch v.Type {
	case Int8:
		return int64(int8(v.bits))
	case Uint8, Uint16, Uint32:
		return int64(v.bits)
	case Int16:
		return int64(int16(v.bits))
	case Int32:
		return int64(int32(v.bits))
	case Float:
		return int64(saturate(float64(math.Float32frombits(v.bits))))
	}
	return 0
}

// Int32 widens to int32. Uint32 values above MaxInt32 wrap; Float
// truncates toward zero and saturates, NaN yields 0.
func (v Value) Int32() int32 {
	if v.Type == Float {
		return saturate(float64(math.Float32frombits(v.bits)))
	}
	return int32(v.Int64())
}

func (v Value) Float64() float64 {
	if v.Type == Float {
		return float64(math.Float32frombits(v.bits))
	}
	return float64(v.Int64())
}

func saturate(f float64) int32 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}
