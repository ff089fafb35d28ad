package bus

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bioloid-tools/bridge/internal/packet"
)

// NetworkConfig wires a NetworkTransport to its collaborators.
type NetworkConfig struct {
	Command   *packet.Buffer
	Response  *packet.Buffer
	Assembler Assembler
	Logger    zerolog.Logger
	Debug     bool
}

// NetworkTransport serves exactly one TCP client. Listen binds the socket,
// Accept waits for the client and then closes the listener: this is a
// single-client bridge, a second connection attempt is refused by the
// operating system once the listener is gone.
type NetworkTransport struct {
	core

	mu     sync.Mutex
	ln     net.Listener
	conn   net.Conn
	closed bool
}

var _ Transport = (*NetworkTransport)(nil)

// NewNetworkTransport returns an unbound network transport.
func NewNetworkTransport(cfg NetworkConfig) *NetworkTransport {
	log := cfg.Logger.With().Str("transport", "network").Logger()
	return &NetworkTransport{
		core: newCore(cfg.Command, cfg.Response, cfg.Assembler, log, cfg.Debug),
	}
}

// Listen binds and listens on addr ("host:port").
func (t *NetworkTransport) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	t.mu.Lock()
	t.ln = ln
	t.mu.Unlock()
	t.log.Info().Str("addr", ln.Addr().String()).Msg("listening")
	return nil
}

// Addr reports the bound listen address, or nil before Listen. With a
// ":0" listen address this is where the ephemeral port shows up.
func (t *NetworkTransport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln == nil {
		return nil
	}
	return t.ln.Addr()
}

// Accept blocks until the client connects, then retires the listener and
// attaches the connection to the packet pipeline. Close from another
// goroutine unblocks it with net.ErrClosed.
func (t *NetworkTransport) Accept() error {
	t.mu.Lock()
	ln := t.ln
	t.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	conn, err := ln.Accept()
	if err != nil {
		return fmt.Errorf("accept: %w", err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return fmt.Errorf("accept: %w", net.ErrClosed)
	}
	if t.ln != nil {
		t.ln.Close()
		t.ln = nil
	}
	t.conn = conn
	t.mu.Unlock()

	t.attach(conn)
	t.log.Info().
		Str("conn_id", uuid.NewString()).
		Str("remote", conn.RemoteAddr().String()).
		Msg("client connected")
	return nil
}

// Kind names the transport variant.
func (t *NetworkTransport) Kind() string { return "network" }

// Close shuts the listener and the client connection. It is safe to call
// concurrently with a blocked Accept or read, and more than once.
func (t *NetworkTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true

	var first error
	if t.ln != nil {
		if err := t.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			first = err
		}
		t.ln = nil
	}
	if t.conn != nil {
		if err := t.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) && first == nil {
			first = err
		}
		t.conn = nil
	}
	return first
}
