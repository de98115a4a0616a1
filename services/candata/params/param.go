package params

import (
	"strconv"

	"candash-go/x/conv"
	"candash-go/x/mathx"
)

// Length limits carried over from the display firmware's fixed buffers.
const (
	MaxName     = 31
	MaxUnit     = 7
	MaxDecimals = 9
)

// Parameter is one named register.
type Parameter struct {
	ID       uint16
	Name     string
	Type     DataType
	Value    Value
	Editable bool
	Min, Max int32
	Unit     string
	Decimals uint8

	Updated int64 // Unix ms of last decode, 0 = never
	Dirty   bool  // set on decode, cleared by the publisher
}

// Int32 widens the current value.
func (p *Parameter) Int32() int32 { return p.Value.Int32() }

// Normalized maps the value onto [0,1] between Min and Max.
func (p *Parameter) Normalized() float64 {
	if p.Max <= p.Min {
		return 0
	}
	f := (p.Value.Float64() - float64(p.Min)) / (float64(p.Max) - float64(p.Min))
	return mathx.Clamp(f, 0, 1)
}

// Clamp limits a user edit to [Min,Max].
func (p *Parameter) Clamp(v int32) int32 { return mathx.Clamp(v, p.Min, p.Max) }

// AppendDisplay renders the value with Decimals implied fraction digits
// and the unit, e.g. raw 1234 with 2 places and unit "V" -> "12.34 V".
func (p *Parameter) AppendDisplay(dst []byte) []byte {
	if p.Type == Float {
		dst = strconv.AppendFloat(dst, p.Value.Float64(), 'f', int(p.Decimals), 32)
	} else {
		dst = conv.AppendFixed(dst, p.Value.Int64(), p.Decimals)
	}
	if p.Unit != "" {
		dst = append(dst, ' ')
		dst = append(dst, p.Unit...)
	}
	return dst
}

// Display is AppendDisplay into a fresh string.
func (p *Parameter) Display() string {
	var buf [48]byte
	return string(p.AppendDisplay(buf[:0]))
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
