package core

// Integer formatting without the fmt package, which TinyGo builds for the
// RP2040 cannot afford in interrupt paths.

// appendUint appends the decimal form of n to buf
func appendUint(buf []byte, n uint32) []byte {
	if n == 0 {
		return append(buf, '0')
	}

	var digits [10]byte
	pos := len(digits)
	for n > 0 {
		pos--
		digits[pos] = byte('0' + n%10)
		n /= 10
	}
	return append(buf, digits[pos:]...)
}

// utoa converts an unsigned integer to a string
func utoa(n uint32) string {
	return string(appendUint(nil, n))
}

// Utoa is utoa for board code, which has no strconv either
func Utoa(n uint32) string {
	return utoa(n)
}

// itoa converts an integer to a string
func itoa(n int) string {
	if n < 0 {
		return string(appendUint([]byte{'-'}, uint32(-n)))
	}
	return utoa(uint32(n))
}

// appendField appends " key=value" to buf
func appendField(buf []byte, key string, value uint32) []byte {
	buf = append(buf, ' ')
	buf = append(buf, key...)
	buf = append(buf, '=')
	return appendUint(buf, value)
}
