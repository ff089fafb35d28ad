package bus

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Run drives the transport until the client goes away, the context is
// cancelled, or the stream fails. It is the entire data path of the
// process: block for a byte, feed the assembler, dispatch completed
// packets, repeat.
//
// Malformed packets are logged and discarded; the connection stays up.
// io.EOF is an orderly disconnect and returns nil. Context cancellation
// closes the transport, which unblocks the pending read; whatever error
// that read reports is then swallowed and Run returns nil. Any other read
// error is fatal and returned.
func Run(ctx context.Context, t Transport, log zerolog.Logger) error {
	stop := context.AfterFunc(ctx, func() { _ = t.Close() })
	defer stop()

	for {
		done, err := t.ProcessByte()
		switch {
		case err == nil:
		case errors.Is(err, ErrMalformedPacket):
			log.Error().Err(err).Msg("discarding malformed packet")
			continue
		case errors.Is(err, io.EOF):
			log.Info().Msg("remote disconnected")
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			log.Error().Err(err).Msg("read failed")
			return fmt.Errorf("bus: %w", err)
		}
		if !done {
			continue
		}

		if err := t.HandlePacket(); err != nil {
			log.Error().Err(err).Msg("packet dispatch failed")
		}
	}
}
