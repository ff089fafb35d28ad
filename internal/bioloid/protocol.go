// Package bioloid implements the wire protocol spoken by bioloid-family
// actuator buses (Dynamixel protocol 1.0). It provides the incremental
// frame assembler used by the bus transports, the instruction and status
// packet codecs, and an emulated device that answers commands from a
// byte-addressed control table.
//
// A frame on the wire is
//
//	0xFF 0xFF ID LENGTH INSTR PARAM1 .. PARAMn CHECKSUM
//
// where LENGTH counts every byte after it (instruction, parameters and
// checksum, so LENGTH = n+2) and CHECKSUM is the bitwise complement of the
// low byte of the sum over ID, LENGTH, INSTR and the parameters. Status
// packets share the layout with the error bitfield in the instruction slot.
package bioloid

import (
	"errors"
	"strings"
)

// Instruction codes understood by bus devices.
const (
	InstrPing      byte = 0x01
	InstrRead      byte = 0x02
	InstrWrite     byte = 0x03
	InstrRegWrite  byte = 0x04
	InstrAction    byte = 0x05
	InstrReset     byte = 0x06
	InstrSyncWrite byte = 0x83
)

// BroadcastID addresses every device on the bus. Broadcast commands are
// executed but never answered with a status packet.
const BroadcastID byte = 0xFE

// MaxID is the highest assignable device id.
const MaxID byte = 0xFD

// Status error bits reported in the error field of a status packet.
const (
	ErrBitInputVoltage byte = 0x01
	ErrBitAngleLimit   byte = 0x02
	ErrBitOverheating  byte = 0x04
	ErrBitRange        byte = 0x08
	ErrBitChecksum     byte = 0x10
	ErrBitOverload     byte = 0x20
	ErrBitInstruction  byte = 0x40
)

// Frame geometry.
const (
	headerByte = 0xFF
	headerSize = 2
	// The length field counts the instruction/error byte, the parameters
	// and the checksum, so it exceeds the parameter count by two.
	lengthBias = 2
	// frameOverhead is the number of frame bytes that are not parameters.
	frameOverhead = headerSize + 2 + lengthBias

	// MinFrameSize is the size of a frame with no parameters.
	MinFrameSize = frameOverhead
	// MaxParams is the largest parameter count the length byte can carry.
	MaxParams = 0xFF - lengthBias
)

// Framing errors reported by the assembler and the codecs.
var (
	ErrHeader   = errors.New("bioloid: bad frame header")
	ErrBadID    = errors.New("bioloid: invalid device id")
	ErrLength   = errors.New("bioloid: bad frame length")
	ErrChecksum = errors.New("bioloid: checksum mismatch")
)

// Checksum computes the frame checksum over body, which must span the id,
// length, instruction/error and parameter bytes.
func Checksum(body []byte) byte {
	var sum byte
	for _, b := range body {
		sum += b
	}
	return ^sum
}

var errBitNames = []struct {
	bit  byte
	name string
}{
	{ErrBitInputVoltage, "input-voltage"},
	{ErrBitAngleLimit, "angle-limit"},
	{ErrBitOverheating, "overheating"},
	{ErrBitRange, "range"},
	{ErrBitChecksum, "checksum"},
	{ErrBitOverload, "overload"},
	{ErrBitInstruction, "instruction"},
}

// ErrorText renders a status error bitfield as a human-readable list,
// or "ok" when no bits are set.
func ErrorText(bits byte) string {
	if bits == 0 {
		return "ok"
	}
	var names []string
	for _, e := range errBitNames {
		if bits&e.bit != 0 {
			names = append(names, e.name)
		}
	}
	return strings.Join(names, "|")
}
