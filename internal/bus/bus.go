// Package bus bridges a single byte-stream client to registered packet
// handlers. It provides the Transport abstraction with a network (TCP) and
// a serial variant, the packet assembler and handler contracts, and the
// blocking event loop that moves bytes between them.
//
// The data path is strictly single-threaded: one blocking read at a time,
// no background goroutines. Shutdown is driven from outside by closing the
// transport, which unblocks the read.
package bus

import (
	"io"

	"github.com/bioloid-tools/bridge/internal/packet"
)

// Defaults shared by the transports and the configuration layer.
const (
	// DefaultPort is the TCP port busd listens on.
	DefaultPort = 8888
	// DefaultBaud is the serial line rate, 8N1 raw.
	DefaultBaud = 115200
)

// Assembler turns a byte stream into packets, one byte per call. Feed
// returns done=true when the byte completed a valid packet (accumulated in
// the command buffer the assembler was built around), done=false while the
// packet is still in progress, and an error when the stream is malformed.
// After completion or an error the assembler starts fresh; Reset discards
// a partial packet explicitly.
type Assembler interface {
	Feed(b byte) (done bool, err error)
	Reset()
}

// Handler consumes a completed command packet. It returns handled=false to
// decline a packet meant for someone else; when it claims the packet it may
// append a reply to rsp (leaving rsp empty means no reply is sent).
type Handler interface {
	HandlePacket(cmd, rsp *packet.Buffer) (handled bool, err error)
}

// Transport is the byte-stream side of the bridge. Exactly one
// implementation is selected at startup: NetworkTransport or
// SerialTransport. Configuration (Add, SetDebug) happens before the event
// loop starts; Close may be called from another goroutine to unblock a
// pending read and is safe to call more than once.
type Transport interface {
	// ProcessByte blocks for one byte from the client and feeds it to the
	// assembler. It reports done=true when the byte completed a packet.
	// Assembler failures are wrapped in ErrMalformedPacket; read errors
	// pass through unchanged.
	ProcessByte() (done bool, err error)

	// HandlePacket dispatches the completed command packet to the
	// registered handlers and writes the claimed handler's reply, if any,
	// back to the client.
	HandlePacket() error

	// Add registers a handler. Dispatch follows registration order.
	Add(h Handler)

	// SetDebug toggles hex dumps of completed packets and replies.
	SetDebug(on bool)

	// Kind names the transport variant ("network" or "serial").
	Kind() string

	io.Closer
}
