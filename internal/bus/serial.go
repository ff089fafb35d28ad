package bus

import (
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"go.bug.st/serial"

	"github.com/bioloid-tools/bridge/internal/packet"
)

// Port is the slice of a serial device the transport needs. go.bug.st's
// serial.Port satisfies it; tests substitute scripted implementations.
type Port interface {
	io.ReadWriteCloser
}

// PortOpener opens the named serial device at the given baud rate.
type PortOpener func(path string, baud int) (Port, error)

// openPort opens a real device, 8N1 raw (go.bug.st opens ports with no
// canonical processing and no echo).
func openPort(path string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	return serial.Open(path, mode)
}

// SerialConfig wires a SerialTransport to its collaborators. A zero Opener
// means the real device opener; a zero Baud means DefaultBaud.
type SerialConfig struct {
	Baud      int
	Opener    PortOpener
	Command   *packet.Buffer
	Response  *packet.Buffer
	Assembler Assembler
	Logger    zerolog.Logger
	Debug     bool
}

// SerialTransport bridges a local serial device instead of a TCP client.
type SerialTransport struct {
	core

	baud int
	open PortOpener

	mu   sync.Mutex
	port Port
}

var _ Transport = (*SerialTransport)(nil)

// NewSerialTransport returns an unopened serial transport.
func NewSerialTransport(cfg SerialConfig) *SerialTransport {
	log := cfg.Logger.With().Str("transport", "serial").Logger()
	baud := cfg.Baud
	if baud <= 0 {
		baud = DefaultBaud
	}
	opener := cfg.Opener
	if opener == nil {
		opener = openPort
	}
	return &SerialTransport{
		core: newCore(cfg.Command, cfg.Response, cfg.Assembler, log, cfg.Debug),
		baud: baud,
		open: opener,
	}
}

// Open opens the named device and attaches it to the packet pipeline.
func (t *SerialTransport) Open(path string) error {
	port, err := t.open(path, t.baud)
	if err != nil {
		return fmt.Errorf("open serial %s: %w", path, err)
	}
	t.mu.Lock()
	t.port = port
	t.mu.Unlock()

	t.attach(port)
	t.log.Info().Str("path", path).Int("baud", t.baud).Msg("serial device open")
	return nil
}

// Kind names the transport variant.
func (t *SerialTransport) Kind() string { return "serial" }

// Close closes the device. Safe to call concurrently with a blocked read,
// and more than once.
func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}
