package jeefs

// Erased EEPROM cells read as all-one bits, freshly formatted regions
// as all-zero bytes. Both patterns count as "never written".

func byteIsEmpty(b byte) bool {
	return b == 0x00 || b == 0xFF
}

func wordIsEmpty(w uint16) bool {
	return w == 0x0000 || w == 0xFFFF
}

func dwordIsEmpty(d uint32) bool {
	return d == 0x00000000 || d == 0xFFFFFFFF
}
