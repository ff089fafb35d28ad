package bus

import (
	"bufio"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/bioloid-tools/bridge/internal/hexdump"
	"github.com/bioloid-tools/bridge/internal/packet"
)

// core is the transport-agnostic half shared by the network and serial
// variants: the packet buffers (referenced, not owned), the assembler, the
// handler list and the buffered reader over whatever stream attach was
// given. The event loop only ever talks to this.
type core struct {
	cmd      *packet.Buffer
	rsp      *packet.Buffer
	asm      Assembler
	handlers []Handler
	debug    bool
	log      zerolog.Logger

	br *bufio.Reader
	w  io.Writer
}

func newCore(cmd, rsp *packet.Buffer, asm Assembler, log zerolog.Logger, debug bool) core {
	return core{cmd: cmd, rsp: rsp, asm: asm, log: log, debug: debug}
}

// attach points the core at a connected client stream. Any packet left
// half-assembled from a previous client is discarded.
func (c *core) attach(rw io.ReadWriter) {
	c.br = bufio.NewReader(rw)
	c.w = rw
	c.asm.Reset()
}

// Add registers a handler. Handlers are consulted in registration order.
func (c *core) Add(h Handler) {
	c.handlers = append(c.handlers, h)
}

// SetDebug toggles hex dumps of completed packets and outgoing replies.
func (c *core) SetDebug(on bool) {
	c.debug = on
}

// ProcessByte blocks for the next byte and feeds it to the assembler. The
// bufio.Reader batches the underlying reads; the packet protocol still
// advances strictly one byte per call.
func (c *core) ProcessByte() (bool, error) {
	if c.br == nil {
		return false, ErrNoClient
	}
	b, err := c.br.ReadByte()
	if err != nil {
		return false, err
	}
	done, err := c.asm.Feed(b)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrMalformedPacket, err)
	}
	return done, nil
}

// HandlePacket offers the completed command packet to the handlers in
// registration order. The first handler to claim it ends the search; its
// reply, if it wrote one, goes back to the client on the same stream.
func (c *core) HandlePacket() error {
	if c.w == nil {
		return ErrNoClient
	}
	if c.debug {
		c.log.Debug().Msg(hexdump.Dump("R", c.cmd.Bytes()))
	}

	c.rsp.Reset()
	claimed := false
	for _, h := range c.handlers {
		handled, err := h.HandlePacket(c.cmd, c.rsp)
		if err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}
		if handled {
			claimed = true
			break
		}
	}
	if !claimed {
		c.log.Debug().Int("len", c.cmd.Len()).Msg("packet not claimed by any handler")
		return nil
	}
	if c.rsp.Len() == 0 {
		return nil
	}

	if c.debug {
		c.log.Debug().Msg(hexdump.Dump("W", c.rsp.Bytes()))
	}
	if _, err := c.w.Write(c.rsp.Bytes()); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}
