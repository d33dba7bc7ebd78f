package modbus

import (
	"encoding/binary"
	"fmt"
)

// Modbus function codes used by WIT sensors.
const (
	FuncReadRegisters = 0x03
	FuncWriteRegister = 0x06
)

var (
	ErrShortResponse   = fmt.Errorf("response too short")
	ErrAddressMismatch = fmt.Errorf("response address mismatch")
	ErrCRC             = fmt.Errorf("response CRC mismatch")
)

// BuildReadRequest assembles a function 0x03 request reading count holding
// registers starting at reg, with the CRC appended.
func BuildReadRequest(addr byte, reg uint16, count uint16) []byte {
	frame := []byte{addr, FuncReadRegisters, byte(reg >> 8), byte(reg), byte(count >> 8), byte(count)}
	return AppendCRC(frame)
}

// BuildWriteRequest assembles a function 0x06 request writing value to a
// single holding register. The device echoes the request back on success.
func BuildWriteRequest(addr byte, reg uint16, value uint16) []byte {
	frame := []byte{addr, FuncWriteRegister, byte(reg >> 8), byte(reg), byte(value >> 8), byte(value)}
	return AppendCRC(frame)
}

// ReadResponseLength returns the length in bytes of a function 0x03 response
// carrying count registers: addr, function, byte count, payload, two CRC bytes.
func ReadResponseLength(count int) int {
	return 5 + 2*count
}

// ParseReadResponse validates a function 0x03 response from addr and unpacks
// the register payload as big-endian signed 16-bit values. The response must
// be at least 5 bytes, start with the polled address, and carry a valid CRC;
// bytes past the CRC are ignored.
func ParseReadResponse(addr byte, resp []byte) ([]int16, error) {
	if len(resp) < 5 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrShortResponse, len(resp))
	}
	if resp[0] != addr {
		return nil, fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrAddressMismatch, resp[0], addr)
	}
	byteCount := int(resp[2])
	if len(resp) < byteCount+5 {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrShortResponse, len(resp), byteCount+5)
	}
	frame := resp[:byteCount+5]
	if !VerifyCRC(frame) {
		return nil, ErrCRC
	}

	registers := make([]int16, byteCount/2)
	for i := range registers {
		registers[i] = int16(binary.BigEndian.Uint16(frame[3+2*i:]))
	}
	return registers, nil
}
