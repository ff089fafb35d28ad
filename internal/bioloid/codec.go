package bioloid

import "fmt"

// Instruction is a decoded command frame.
type Instruction struct {
	ID     byte
	Instr  byte
	Params []byte
}

// Status is a decoded status (response) frame. Err carries the device
// error bitfield; zero means the command succeeded.
type Status struct {
	ID     byte
	Err    byte
	Params []byte
}

// EncodeInstruction builds a command frame addressed to id.
func EncodeInstruction(id, instr byte, params []byte) ([]byte, error) {
	if id > BroadcastID {
		return nil, fmt.Errorf("%w: 0x%02x", ErrBadID, id)
	}
	return encode(id, instr, params)
}

// EncodeStatus builds a status frame reporting errBits and params from the
// device with the given id.
func EncodeStatus(id, errBits byte, params []byte) ([]byte, error) {
	if id > MaxID {
		return nil, fmt.Errorf("%w: 0x%02x", ErrBadID, id)
	}
	return encode(id, errBits, params)
}

func encode(id, field byte, params []byte) ([]byte, error) {
	if len(params) > MaxParams {
		return nil, fmt.Errorf("%w: %d parameters exceed maximum %d", ErrLength, len(params), MaxParams)
	}
	frame := make([]byte, 0, len(params)+frameOverhead)
	frame = append(frame, headerByte, headerByte, id, byte(len(params)+lengthBias), field)
	frame = append(frame, params...)
	frame = append(frame, Checksum(frame[headerSize:]))
	return frame, nil
}

// ParseInstruction decodes a command frame. The returned parameter slice
// is a copy, safe to retain after the source buffer is reused.
func ParseInstruction(frame []byte) (Instruction, error) {
	if err := validateFrame(frame); err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ID:     frame[2],
		Instr:  frame[4],
		Params: cloneParams(frame),
	}, nil
}

// ParseStatus decodes a status frame. The returned parameter slice is a
// copy, safe to retain after the source buffer is reused.
func ParseStatus(frame []byte) (Status, error) {
	if err := validateFrame(frame); err != nil {
		return Status{}, err
	}
	return Status{
		ID:     frame[2],
		Err:    frame[4],
		Params: cloneParams(frame),
	}, nil
}

func validateFrame(frame []byte) error {
	if len(frame) < MinFrameSize {
		return fmt.Errorf("%w: %d bytes below minimum frame size %d", ErrLength, len(frame), MinFrameSize)
	}
	if frame[0] != headerByte || frame[1] != headerByte {
		return fmt.Errorf("%w: 0x%02x 0x%02x", ErrHeader, frame[0], frame[1])
	}
	if int(frame[3])+headerSize+2 != len(frame) {
		return fmt.Errorf("%w: length field %d does not match frame of %d bytes", ErrLength, frame[3], len(frame))
	}
	want := frame[len(frame)-1]
	if got := Checksum(frame[headerSize : len(frame)-1]); got != want {
		return fmt.Errorf("%w: calculated 0x%02x, received 0x%02x", ErrChecksum, got, want)
	}
	return nil
}

func cloneParams(frame []byte) []byte {
	raw := frame[5 : len(frame)-1]
	if len(raw) == 0 {
		return nil
	}
	params := make([]byte, len(raw))
	copy(params, raw)
	return params
}
