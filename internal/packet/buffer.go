// Package packet provides the fixed-capacity byte buffer shared by the
// bus transports and packet handlers. One buffer holds the command packet
// currently being assembled, a second holds the response being built; both
// are allocated once at startup and reused for the life of the process.
package packet

import "errors"

// ErrOverflow is returned when an append would exceed the buffer capacity.
// Appends never truncate: a write that does not fit is rejected whole.
var ErrOverflow = errors.New("packet: buffer overflow")

// Buffer is a byte buffer with a fixed capacity and a write cursor. Unlike
// bytes.Buffer it never reallocates; the capacity chosen at construction is
// a hard bound.
type Buffer struct {
	data []byte
	n    int
}

// New returns a Buffer with the given fixed capacity.
func New(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Reset moves the cursor back to the start. The underlying storage is kept.
func (b *Buffer) Reset() {
	b.n = 0
}

// AppendByte stores one byte at the cursor and advances it. It returns
// ErrOverflow if the buffer is full.
func (b *Buffer) AppendByte(c byte) error {
	if b.n == len(b.data) {
		return ErrOverflow
	}
	b.data[b.n] = c
	b.n++
	return nil
}

// Append stores p at the cursor. If p does not fit in the remaining space
// nothing is written and ErrOverflow is returned.
func (b *Buffer) Append(p []byte) error {
	if b.n+len(p) > len(b.data) {
		return ErrOverflow
	}
	copy(b.data[b.n:], p)
	b.n += len(p)
	return nil
}

// Bytes returns the written portion of the buffer. The slice aliases the
// buffer's storage and is only valid until the next Reset or append.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.n]
}

// Len returns the number of bytes written since the last Reset.
func (b *Buffer) Len() int {
	return b.n
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return len(b.data)
}
