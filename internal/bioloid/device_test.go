package bioloid

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioloid-tools/bridge/internal/packet"
)

// dispatch feeds one instruction frame through the device and returns the
// claim flag plus a copy of the response bytes.
func dispatch(t *testing.T, d *Device, id, instr byte, params ...byte) (bool, []byte) {
	t.Helper()

	frame, err := EncodeInstruction(id, instr, params)
	require.NoError(t, err)

	cmd := packet.New(256)
	require.NoError(t, cmd.Append(frame))
	rsp := packet.New(256)

	handled, err := d.HandlePacket(cmd, rsp)
	require.NoError(t, err)

	out := make([]byte, rsp.Len())
	copy(out, rsp.Bytes())
	return handled, out
}

// status decodes a response captured by dispatch.
func status(t *testing.T, rsp []byte) Status {
	t.Helper()
	st, err := ParseStatus(rsp)
	require.NoError(t, err)
	return st
}

func TestDevicePing(t *testing.T) {
	t.Parallel()

	d := NewDevice(1, zerolog.Nop())
	handled, rsp := dispatch(t, d, 1, InstrPing)
	require.True(t, handled)

	st := status(t, rsp)
	assert.Equal(t, byte(1), st.ID)
	assert.Equal(t, byte(0), st.Err)
	assert.Empty(t, st.Params)
}

func TestDeviceDeclinesForeignID(t *testing.T) {
	t.Parallel()

	d := NewDevice(1, zerolog.Nop())
	handled, rsp := dispatch(t, d, 2, InstrPing)
	assert.False(t, handled)
	assert.Empty(t, rsp)
}

func TestDeviceRejectsGarbageFrame(t *testing.T) {
	t.Parallel()

	d := NewDevice(1, zerolog.Nop())
	cmd := packet.New(256)
	require.NoError(t, cmd.Append([]byte{0x01, 0x02}))
	rsp := packet.New(256)

	handled, err := d.HandlePacket(cmd, rsp)
	assert.False(t, handled)
	assert.ErrorIs(t, err, ErrLength)
}

func TestDeviceReadModelNumber(t *testing.T) {
	t.Parallel()

	d := NewDevice(1, zerolog.Nop())
	handled, rsp := dispatch(t, d, 1, InstrRead, regModelNumber, 2)
	require.True(t, handled)

	st := status(t, rsp)
	assert.Equal(t, byte(0), st.Err)
	assert.Equal(t, []byte{0x0c, 0x00}, st.Params, "AX-12 model number, little-endian")
}

func TestDeviceWriteReadBack(t *testing.T) {
	t.Parallel()

	d := NewDevice(1, zerolog.Nop())
	handled, rsp := dispatch(t, d, 1, InstrWrite, regLED, 1)
	require.True(t, handled)
	assert.Equal(t, byte(0), status(t, rsp).Err)

	_, rsp = dispatch(t, d, 1, InstrRead, regLED, 1)
	assert.Equal(t, []byte{1}, status(t, rsp).Params)
}

func TestDeviceRangeErrors(t *testing.T) {
	t.Parallel()

	t.Run("read past table end", func(t *testing.T) {
		t.Parallel()
		d := NewDevice(1, zerolog.Nop())
		_, rsp := dispatch(t, d, 1, InstrRead, regPunch, 10)
		st := status(t, rsp)
		assert.Equal(t, ErrBitRange, st.Err)
		assert.Empty(t, st.Params)
	})

	t.Run("write past table end mutates nothing", func(t *testing.T) {
		t.Parallel()
		d := NewDevice(1, zerolog.Nop())
		_, rsp := dispatch(t, d, 1, InstrWrite, regPunch+1, 0x42, 0x42)
		assert.Equal(t, ErrBitRange, status(t, rsp).Err)

		_, rsp = dispatch(t, d, 1, InstrRead, regPunch, 2)
		assert.Equal(t, []byte{32, 0}, status(t, rsp).Params, "punch register must be untouched")
	})
}

func TestDeviceInstructionErrors(t *testing.T) {
	t.Parallel()

	d := NewDevice(1, zerolog.Nop())

	_, rsp := dispatch(t, d, 1, 0x55)
	assert.Equal(t, ErrBitInstruction, status(t, rsp).Err)

	// Read takes exactly an address and a count.
	_, rsp = dispatch(t, d, 1, InstrRead, regLED)
	assert.Equal(t, ErrBitInstruction, status(t, rsp).Err)

	// Write needs an address and at least one data byte.
	_, rsp = dispatch(t, d, 1, InstrWrite, regLED)
	assert.Equal(t, ErrBitInstruction, status(t, rsp).Err)
}

func TestDeviceBroadcastExecutesSilently(t *testing.T) {
	t.Parallel()

	d := NewDevice(1, zerolog.Nop())
	handled, rsp := dispatch(t, d, BroadcastID, InstrWrite, regLED, 1)
	require.True(t, handled, "broadcast packets are claimed")
	assert.Empty(t, rsp, "broadcast packets are never answered")

	_, rsp = dispatch(t, d, 1, InstrRead, regLED, 1)
	assert.Equal(t, []byte{1}, status(t, rsp).Params, "broadcast write must still apply")
}

func TestDeviceRegWriteAction(t *testing.T) {
	t.Parallel()

	d := NewDevice(1, zerolog.Nop())

	_, rsp := dispatch(t, d, 1, InstrRegWrite, regGoalPosition, 0x64, 0x00)
	assert.Equal(t, byte(0), status(t, rsp).Err)

	_, rsp = dispatch(t, d, 1, InstrRead, regRegistered, 1)
	assert.Equal(t, []byte{1}, status(t, rsp).Params, "staged write must set the registered flag")

	_, rsp = dispatch(t, d, 1, InstrRead, regGoalPosition, 2)
	assert.Equal(t, []byte{0x00, 0x02}, status(t, rsp).Params, "goal position must not change before Action")

	_, rsp = dispatch(t, d, 1, InstrAction)
	assert.Equal(t, byte(0), status(t, rsp).Err)

	_, rsp = dispatch(t, d, 1, InstrRead, regGoalPosition, 2)
	assert.Equal(t, []byte{0x64, 0x00}, status(t, rsp).Params)

	_, rsp = dispatch(t, d, 1, InstrRead, regRegistered, 1)
	assert.Equal(t, []byte{0}, status(t, rsp).Params)

	// A second Action with nothing staged is a no-op.
	_, rsp = dispatch(t, d, 1, InstrAction)
	assert.Equal(t, byte(0), status(t, rsp).Err)
}

func TestDeviceSyncWriteAppliesOwnChunk(t *testing.T) {
	t.Parallel()

	d := NewDevice(1, zerolog.Nop())
	handled, rsp := dispatch(t, d, BroadcastID, InstrSyncWrite,
		regGoalPosition, 2, // start address, bytes per device
		5, 0xff, 0x03, // device 5: not ours
		1, 0x2c, 0x01, // device 1: goal position 300
	)
	require.True(t, handled)
	assert.Empty(t, rsp)

	_, rsp = dispatch(t, d, 1, InstrRead, regGoalPosition, 2)
	assert.Equal(t, []byte{0x2c, 0x01}, status(t, rsp).Params)
}

func TestDeviceResetRestoresDefaults(t *testing.T) {
	t.Parallel()

	d := NewDevice(7, zerolog.Nop())
	_, rsp := dispatch(t, d, 7, InstrWrite, regLED, 1)
	assert.Equal(t, byte(0), status(t, rsp).Err)

	_, rsp = dispatch(t, d, 7, InstrReset)
	assert.Equal(t, DefaultDeviceID, status(t, rsp).ID, "reset readdresses to the factory id")

	handled, _ := dispatch(t, d, 7, InstrPing)
	assert.False(t, handled, "old id must no longer be answered")

	_, rsp = dispatch(t, d, DefaultDeviceID, InstrRead, regLED, 1)
	assert.Equal(t, []byte{0}, status(t, rsp).Params)
}

func TestDeviceStatusReturnLevel(t *testing.T) {
	t.Parallel()

	d := NewDevice(1, zerolog.Nop())

	// The level register is read after execution, so the write that
	// silences the device already gets no reply.
	handled, rsp := dispatch(t, d, 1, InstrWrite, regStatusReturnLevel, 0)
	require.True(t, handled)
	assert.Empty(t, rsp)

	_, rsp = dispatch(t, d, 1, InstrPing)
	assert.NotEmpty(t, rsp, "level 0 still answers Ping")

	_, rsp = dispatch(t, d, 1, InstrRead, regLED, 1)
	assert.Empty(t, rsp, "level 0 suppresses Read replies")

	handled, rsp = dispatch(t, d, 1, InstrWrite, regStatusReturnLevel, 2)
	require.True(t, handled)
	assert.NotEmpty(t, rsp, "the write that raises the level is answered")

	_, rsp = dispatch(t, d, 1, InstrWrite, regStatusReturnLevel, 1)
	assert.Empty(t, rsp, "level 1 suppresses Write replies")

	_, rsp = dispatch(t, d, 1, InstrRead, regLED, 1)
	assert.NotEmpty(t, rsp, "level 1 answers Read")
}

func TestDeviceReaddressViaIDRegister(t *testing.T) {
	t.Parallel()

	d := NewDevice(1, zerolog.Nop())
	_, rsp := dispatch(t, d, 1, InstrWrite, regID, 9)
	assert.Equal(t, byte(9), status(t, rsp).ID, "reply carries the new id")
	assert.Equal(t, byte(9), d.ID())

	handled, _ := dispatch(t, d, 1, InstrPing)
	assert.False(t, handled)

	handled, rsp = dispatch(t, d, 9, InstrPing)
	require.True(t, handled)
	assert.Equal(t, byte(9), status(t, rsp).ID)
}

func TestDeviceRejectsReservedIDWrite(t *testing.T) {
	t.Parallel()

	// The broadcast id and 0xFF are not assignable: accepting either would
	// leave the device unable to encode its own status replies.
	d := NewDevice(1, zerolog.Nop())
	for _, bad := range []byte{BroadcastID, 0xFF} {
		_, rsp := dispatch(t, d, 1, InstrWrite, regID, bad)
		st := status(t, rsp)
		assert.Equal(t, ErrBitRange, st.Err)
		assert.Equal(t, byte(1), st.ID, "reply must come from the unchanged id")
		assert.Equal(t, byte(1), d.ID())
	}

	// A multi-byte write spanning the id register is rejected whole.
	_, rsp := dispatch(t, d, 1, InstrWrite, regFirmware, 0x19, BroadcastID)
	assert.Equal(t, ErrBitRange, status(t, rsp).Err)
	_, rsp = dispatch(t, d, 1, InstrRead, regFirmware, 2)
	assert.Equal(t, []byte{0x18, 1}, status(t, rsp).Params, "neither byte may land")

	// Staged writes funnel through the same check at Action time.
	_, rsp = dispatch(t, d, 1, InstrRegWrite, regID, BroadcastID)
	assert.Equal(t, byte(0), status(t, rsp).Err, "staging does not mutate")
	_, rsp = dispatch(t, d, 1, InstrAction)
	assert.Equal(t, ErrBitRange, status(t, rsp).Err)
	assert.Equal(t, byte(1), d.ID())

	handled, rsp := dispatch(t, d, 1, InstrPing)
	require.True(t, handled, "the device keeps answering on its old id")
	assert.Equal(t, byte(0), status(t, rsp).Err)
}
