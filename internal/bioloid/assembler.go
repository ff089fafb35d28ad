package bioloid

import (
	"fmt"

	"github.com/bioloid-tools/bridge/internal/packet"
)

// Assembler states. Assembly is driven one byte at a time, so the position
// within the frame has to survive across calls.
const (
	stateFirstHeader = iota
	stateSecondHeader
	stateID
	stateLength
	stateBody
)

// Assembler reassembles a raw byte stream into bioloid frames. Accepted
// bytes of the frame in progress are written into the buffer supplied at
// construction, so when Feed reports completion the buffer holds exactly
// the frame as it appeared on the wire.
//
// Assembler implements the bus.Assembler interface.
type Assembler struct {
	buf       *packet.Buffer
	state     int
	remaining int
}

// NewAssembler returns an Assembler that accumulates frames into buf.
func NewAssembler(buf *packet.Buffer) *Assembler {
	return &Assembler{buf: buf}
}

// Reset discards any partially assembled frame. The next Feed starts a
// fresh packet.
func (a *Assembler) Reset() {
	a.state = stateFirstHeader
	a.remaining = 0
}

// Feed consumes one byte. It returns done=true when the byte completed a
// valid frame, done=false while the frame is still accumulating, and an
// error when the stream is malformed. After completion or an error the
// assembler has already reset itself; no residue survives into the next
// frame.
func (a *Assembler) Feed(b byte) (bool, error) {
	switch a.state {
	case stateFirstHeader:
		if b != headerByte {
			a.Reset()
			return false, fmt.Errorf("%w: expected 0xff, got 0x%02x", ErrHeader, b)
		}
		a.buf.Reset()
		if err := a.push(b); err != nil {
			return false, err
		}
		a.state = stateSecondHeader

	case stateSecondHeader:
		if b != headerByte {
			a.Reset()
			return false, fmt.Errorf("%w: expected 0xff, got 0x%02x", ErrHeader, b)
		}
		if err := a.push(b); err != nil {
			return false, err
		}
		a.state = stateID

	case stateID:
		// A third 0xFF while waiting for the id is header padding from an
		// idle bus, not part of the frame.
		if b == headerByte {
			return false, nil
		}
		if err := a.push(b); err != nil {
			return false, err
		}
		a.state = stateLength

	case stateLength:
		if b < lengthBias {
			a.Reset()
			return false, fmt.Errorf("%w: length %d below minimum %d", ErrLength, b, lengthBias)
		}
		if int(b)+headerSize+2 > a.buf.Cap() {
			a.Reset()
			return false, fmt.Errorf("%w: frame of %d bytes exceeds buffer capacity %d",
				ErrLength, int(b)+headerSize+2, a.buf.Cap())
		}
		if err := a.push(b); err != nil {
			return false, err
		}
		a.remaining = int(b)
		a.state = stateBody

	case stateBody:
		if err := a.push(b); err != nil {
			return false, err
		}
		a.remaining--
		if a.remaining > 0 {
			return false, nil
		}

		frame := a.buf.Bytes()
		want := frame[len(frame)-1]
		got := Checksum(frame[headerSize : len(frame)-1])
		a.Reset()
		if got != want {
			return false, fmt.Errorf("%w: calculated 0x%02x, received 0x%02x", ErrChecksum, got, want)
		}
		return true, nil
	}

	return false, nil
}

// push appends one accepted byte to the frame buffer, dropping the partial
// frame when the buffer cannot hold it.
func (a *Assembler) push(b byte) error {
	if err := a.buf.AppendByte(b); err != nil {
		a.Reset()
		return err
	}
	return nil
}
