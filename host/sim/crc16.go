package sim

// crc16 is the Klipper link CRC (CCITT polynomial), taken over
// the little-endian bytes of words
func crc16(words []uint64) uint16 {
	crc := uint16(0xFFFF)
	for _, w := range words {
		for i := 0; i < 8; i++ {
			b := uint8(w>>(8*i)) ^ uint8(crc&0xFF)
			b ^= b << 4
			b16 := uint16(b)
			crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
		}
	}
	return crc
}
