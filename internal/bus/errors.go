package bus

import "errors"

var (
	// ErrMalformedPacket wraps assembler errors: the offending bytes are
	// discarded but the connection stays up.
	ErrMalformedPacket = errors.New("bus: malformed packet")

	// ErrNoClient is returned when the transport has no attached client,
	// i.e. before Accept or Open succeeded.
	ErrNoClient = errors.New("bus: no client attached")

	// ErrNotListening is returned by Accept before Listen succeeded.
	ErrNotListening = errors.New("bus: not listening")
)
