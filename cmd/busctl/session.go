package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/bioloid-tools/bridge/internal/bioloid"
	"github.com/bioloid-tools/bridge/internal/packet"
)

const (
	dialTimeout = 5 * time.Second
	// replyTimeout bounds the wait for a status packet. The server side
	// stays deadline-free; only the console is impatient.
	replyTimeout = time.Second
	// probeTimeout is the per-id wait during a scan, where silence is the
	// expected answer for most ids.
	probeTimeout = 150 * time.Millisecond
)

// Session is one TCP connection to a busd bridge, plus the reassembly
// state for the status packets coming back.
type Session struct {
	ID      string
	Addr    string
	Timeout time.Duration

	conn net.Conn
	r    *bufio.Reader
	buf  *packet.Buffer
	asm  *bioloid.Assembler
}

// Dial connects to a busd bridge.
func Dial(addr string) (*Session, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	buf := packet.New(256)
	return &Session{
		ID:      uuid.NewString(),
		Addr:    addr,
		Timeout: replyTimeout,
		conn:    conn,
		r:       bufio.NewReader(conn),
		buf:     buf,
		asm:     bioloid.NewAssembler(buf),
	}, nil
}

// Close hangs up.
func (s *Session) Close() error {
	return s.conn.Close()
}

// RoundTrip sends one instruction and waits for the status reply.
// Broadcast commands return an empty status immediately: devices never
// answer them.
func (s *Session) RoundTrip(id, instr byte, params []byte) (bioloid.Status, error) {
	return s.roundTrip(id, instr, params, s.Timeout)
}

func (s *Session) roundTrip(id, instr byte, params []byte, timeout time.Duration) (bioloid.Status, error) {
	frame, err := bioloid.EncodeInstruction(id, instr, params)
	if err != nil {
		return bioloid.Status{}, err
	}
	if _, err := s.conn.Write(frame); err != nil {
		return bioloid.Status{}, fmt.Errorf("send: %w", err)
	}
	if id == bioloid.BroadcastID {
		return bioloid.Status{ID: id}, nil
	}
	return s.readStatus(timeout)
}

// readStatus reassembles one status packet from the stream.
func (s *Session) readStatus(timeout time.Duration) (bioloid.Status, error) {
	s.asm.Reset()
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return bioloid.Status{}, err
	}
	defer s.conn.SetReadDeadline(time.Time{})

	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return bioloid.Status{}, fmt.Errorf("await reply: %w", err)
		}
		done, err := s.asm.Feed(b)
		if err != nil {
			return bioloid.Status{}, fmt.Errorf("reassemble reply: %w", err)
		}
		if done {
			return bioloid.ParseStatus(s.buf.Bytes())
		}
	}
}

// ScanResult is one responder found by Scan.
type ScanResult struct {
	ID       byte
	Model    uint16
	Firmware byte
}

// Scan pings every id in [from, to] and reads the model number and
// firmware version of each responder. Silent ids are skipped; any other
// transport failure aborts the scan.
func (s *Session) Scan(from, to byte) ([]ScanResult, error) {
	var found []ScanResult
	for i := int(from); i <= int(to); i++ {
		id := byte(i)
		if _, err := s.roundTrip(id, bioloid.InstrPing, nil, probeTimeout); err != nil {
			if isTimeout(err) {
				continue
			}
			return found, err
		}

		result := ScanResult{ID: id}
		st, err := s.roundTrip(id, bioloid.InstrRead, []byte{0, 3}, probeTimeout)
		if err == nil && st.Err == 0 && len(st.Params) == 3 {
			result.Model = binary.LittleEndian.Uint16(st.Params[:2])
			result.Firmware = st.Params[2]
		}
		found = append(found, result)
	}
	return found, nil
}

// isTimeout reports whether err is a read deadline expiring, i.e. a device
// that never answered.
func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
