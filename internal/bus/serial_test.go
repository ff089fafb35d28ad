package bus

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioloid-tools/bridge/internal/packet"
)

var errPortClosed = errors.New("port closed")

// mockPort scripts a serial device. Each Read hands out the next chunk;
// once the script runs dry, Read returns finalErr if one is set, otherwise
// it blocks the way a quiet device does until Close releases it.
type mockPort struct {
	mu       sync.Mutex
	script   [][]byte
	finalErr error
	reads    int
	written  bytes.Buffer

	closeOnce sync.Once
	closed    chan struct{}
}

func newMockPort(finalErr error, chunks ...[]byte) *mockPort {
	return &mockPort{
		script:   chunks,
		finalErr: finalErr,
		closed:   make(chan struct{}),
	}
}

func (p *mockPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	p.reads++
	if len(p.script) > 0 {
		chunk := p.script[0]
		p.script = p.script[1:]
		p.mu.Unlock()
		return copy(buf, chunk), nil
	}
	finalErr := p.finalErr
	p.mu.Unlock()

	if finalErr != nil {
		return 0, finalErr
	}
	<-p.closed
	return 0, errPortClosed
}

func (p *mockPort) Write(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(buf)
}

func (p *mockPort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *mockPort) readCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reads
}

func (p *mockPort) writtenBytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, p.written.Len())
	copy(out, p.written.Bytes())
	return out
}

var _ Port = (*mockPort)(nil)

func newSerialTestTransport(t *testing.T, h Handler, port *mockPort) *SerialTransport {
	t.Helper()

	cmd := packet.New(64)
	st := NewSerialTransport(SerialConfig{
		Baud: 9600,
		Opener: func(path string, baud int) (Port, error) {
			assert.Equal(t, "/dev/ttyUSB0", path)
			assert.Equal(t, 9600, baud)
			return port, nil
		},
		Command:   cmd,
		Response:  packet.New(64),
		Assembler: &stubAssembler{buf: cmd},
		Logger:    zerolog.Nop(),
	})
	if h != nil {
		st.Add(h)
	}
	require.NoError(t, st.Open("/dev/ttyUSB0"))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSerialFrameDispatch(t *testing.T) {
	t.Parallel()

	h := &recordingHandler{reply: stubFrame('o', 'k')}
	port := newMockPort(io.EOF, stubFrame('p', 'o', 's'))
	st := newSerialTestTransport(t, h, port)

	// The device sends one frame and then hangs up, so the loop exits on
	// its own once the frame is through.
	require.NoError(t, Run(context.Background(), st, zerolog.Nop()))

	recorded := h.recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, stubFrame('p', 'o', 's'), recorded[0])
	assert.Equal(t, stubFrame('o', 'k'), port.writtenBytes())
}

func TestSerialSilentDevice(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &recordingHandler{}
	port := newMockPort(nil)
	st := newSerialTestTransport(t, h, port)

	errc := make(chan error, 1)
	go func() { errc <- Run(ctx, st, zerolog.Nop()) }()

	// The loop must park in a single blocking read, not spin.
	assert.Eventually(t, func() bool { return port.readCount() == 1 },
		5*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, port.readCount())
	assert.Equal(t, 0, h.callCount())

	// Only Close (via the cancelled context) releases it.
	cancel()
	require.NoError(t, waitExit(t, errc))
	assert.Equal(t, 1, port.readCount())
}

func TestSerialFatalReadError(t *testing.T) {
	t.Parallel()

	errBroken := errors.New("input/output error")
	port := newMockPort(errBroken)
	st := newSerialTestTransport(t, &recordingHandler{}, port)

	err := Run(context.Background(), st, zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, errBroken)
}

func TestSerialOpenError(t *testing.T) {
	t.Parallel()

	errNoDevice := errors.New("no such device")
	cmd := packet.New(64)
	st := NewSerialTransport(SerialConfig{
		Opener: func(path string, baud int) (Port, error) {
			return nil, errNoDevice
		},
		Command:   cmd,
		Response:  packet.New(64),
		Assembler: &stubAssembler{buf: cmd},
		Logger:    zerolog.Nop(),
	})

	err := st.Open("/dev/ttyUSB9")
	require.Error(t, err)
	assert.ErrorIs(t, err, errNoDevice)
	assert.Contains(t, err.Error(), "/dev/ttyUSB9")
}

func TestSerialDefaultBaud(t *testing.T) {
	t.Parallel()

	var gotBaud int
	cmd := packet.New(64)
	st := NewSerialTransport(SerialConfig{
		Opener: func(path string, baud int) (Port, error) {
			gotBaud = baud
			return newMockPort(io.EOF), nil
		},
		Command:   cmd,
		Response:  packet.New(64),
		Assembler: &stubAssembler{buf: cmd},
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, st.Open("/dev/ttyUSB0"))
	defer st.Close()
	assert.Equal(t, DefaultBaud, gotBaud)
}

func TestSerialCloseIdempotent(t *testing.T) {
	t.Parallel()

	port := newMockPort(nil)
	st := newSerialTestTransport(t, nil, port)
	require.NoError(t, st.Close())
	require.NoError(t, st.Close())
}
