package conv

// AppendFixed appends v scaled by 10^-decimals in fixed-point notation,
// e.g. (1234, 2) -> "12.34", (-5, 2) -> "-0.05". No allocations beyond dst.
func AppendFixed(dst []byte, v int64, decimals uint8) []byte {
	var tmp [24]byte
	neg := v < 0
	u := uint64(v)
	if neg {
		u = uint64(-v)
	}
	digits := Utoa(tmp[:], u)
	if neg {
		dst = append(dst, '-')
	}
	d := int(decimals)
	if d == 0 {
		return append(dst, digits...)
	}
	if len(digits) <= d {
		dst = append(dst, '0', '.')
		for i := len(digits); i < d; i++ {
			dst = append(dst, '0')
		}
		return append(dst, digits...)
	}
	dst = append(dst, digits[:len(digits)-d]...)
	dst = append(dst, '.')
	return append(dst, digits[len(digits)-d:]...)
}
