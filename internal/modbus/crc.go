package modbus

// CRC16 computes the Modbus RTU checksum of data: initial value 0xFFFF,
// polynomial 0xA001 (reflected 0x8005).
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc >>= 1
				crc ^= 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// AppendCRC returns frame with its CRC16 appended low byte first, the order
// Modbus RTU transmits it.
func AppendCRC(frame []byte) []byte {
	crc := CRC16(frame)
	return append(frame, byte(crc), byte(crc>>8))
}

// VerifyCRC reports whether the trailing two bytes of frame carry the correct
// CRC16 of the preceding bytes.
func VerifyCRC(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	want := CRC16(frame[:len(frame)-2])
	got := uint16(frame[len(frame)-2]) | uint16(frame[len(frame)-1])<<8
	return got == want
}
