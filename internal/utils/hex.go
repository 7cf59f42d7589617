package utils

const hexDigits = "0123456789ABCDEF"

// Hex4 formats a uint16 as a 4-character hexadecimal string (e.g., "51C9").
func Hex4(v uint16) string {
	return string([]byte{
		hexDigits[(v>>12)&0xF],
		hexDigits[(v>>8)&0xF],
		hexDigits[(v>>4)&0xF],
		hexDigits[v&0xF],
	})
}

// BytesToHex converts a byte slice to an upper-case hexadecimal string.
func BytesToHex(b []byte) string {
	out := make([]byte, 0, len(b)*2)
	for _, x := range b {
		out = append(out, hexDigits[x>>4], hexDigits[x&0x0F])
	}
	return string(out)
}
