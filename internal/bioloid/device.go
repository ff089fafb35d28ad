package bioloid

import (
	"encoding/binary"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bioloid-tools/bridge/internal/packet"
)

// DefaultDeviceID is the id a factory-fresh device answers on, and the id
// restored by the Reset instruction.
const DefaultDeviceID byte = 1

// Control table registers. Multi-byte registers are little-endian.
const (
	regModelNumber       = 0
	regFirmware          = 2
	regID                = 3
	regBaud              = 4
	regReturnDelay       = 5
	regCWAngleLimit      = 6
	regCCWAngleLimit     = 8
	regTempLimit         = 11
	regMinVoltage        = 12
	regMaxVoltage        = 13
	regMaxTorque         = 14
	regStatusReturnLevel = 16
	regAlarmLED          = 17
	regAlarmShutdown     = 18
	regTorqueEnable      = 24
	regLED               = 25
	regCWMargin          = 26
	regCCWMargin         = 27
	regCWSlope           = 28
	regCCWSlope          = 29
	regGoalPosition      = 30
	regMovingSpeed       = 32
	regTorqueLimit       = 34
	regPresentPosition   = 36
	regPresentSpeed      = 38
	regPresentLoad       = 40
	regPresentVoltage    = 42
	regPresentTemp       = 43
	regRegistered        = 44
	regMoving            = 46
	regLock              = 47
	regPunch             = 48

	tableSize = 50
)

// Device emulates an AX-12 class actuator behind a byte-addressed control
// table. It implements the bus handler contract: packets addressed to other
// ids are declined, packets for its own id or the broadcast id are executed
// against the table, and a status frame is written to the response buffer
// unless the command was broadcast or the status return level suppresses it.
//
// The device id lives in the control table at register 3, so a Write to
// that register readdresses the device and a Reset restores it to
// DefaultDeviceID.
type Device struct {
	log     zerolog.Logger
	table   [tableSize]byte
	pending *pendingWrite
}

// pendingWrite is a RegWrite staged until the next Action instruction.
type pendingWrite struct {
	addr byte
	data []byte
}

// NewDevice returns a Device with a factory-default control table answering
// on the given id.
func NewDevice(id byte, log zerolog.Logger) *Device {
	d := &Device{log: log, table: defaultTable()}
	d.table[regID] = id
	return d
}

// ID reports the id the device currently answers on.
func (d *Device) ID() byte {
	return d.table[regID]
}

// HandlePacket executes the instruction frame held in cmd. It declines
// frames addressed to other devices. For claimed frames the status reply,
// when one is due, is appended to rsp.
func (d *Device) HandlePacket(cmd, rsp *packet.Buffer) (bool, error) {
	ins, err := ParseInstruction(cmd.Bytes())
	if err != nil {
		return false, fmt.Errorf("device: %w", err)
	}
	if ins.ID != d.table[regID] && ins.ID != BroadcastID {
		return false, nil
	}

	errBits, params := d.execute(ins)
	if !d.shouldReply(ins) {
		return true, nil
	}

	frame, err := EncodeStatus(d.table[regID], errBits, params)
	if err != nil {
		return true, fmt.Errorf("device: %w", err)
	}
	if err := rsp.Append(frame); err != nil {
		return true, fmt.Errorf("device: %w", err)
	}
	return true, nil
}

func (d *Device) execute(ins Instruction) (byte, []byte) {
	switch ins.Instr {
	case InstrPing:
		return 0, nil
	case InstrRead:
		return d.readTable(ins.Params)
	case InstrWrite:
		return d.writeTable(ins.Params)
	case InstrRegWrite:
		return d.stageWrite(ins.Params)
	case InstrAction:
		return d.applyStaged()
	case InstrReset:
		d.reset()
		return 0, nil
	case InstrSyncWrite:
		return d.syncWrite(ins.Params)
	default:
		d.log.Warn().Uint8("instr", ins.Instr).Msg("unknown instruction")
		return ErrBitInstruction, nil
	}
}

// shouldReply applies the broadcast rule and the status return level
// register: 0 answers only Ping, 1 answers Ping and Read, 2 answers
// everything.
func (d *Device) shouldReply(ins Instruction) bool {
	if ins.ID == BroadcastID {
		return false
	}
	switch d.table[regStatusReturnLevel] {
	case 0:
		return ins.Instr == InstrPing
	case 1:
		return ins.Instr == InstrPing || ins.Instr == InstrRead
	default:
		return true
	}
}

func (d *Device) readTable(params []byte) (byte, []byte) {
	if len(params) != 2 {
		return ErrBitInstruction, nil
	}
	addr, count := int(params[0]), int(params[1])
	if addr+count > tableSize {
		return ErrBitRange, nil
	}
	out := make([]byte, count)
	copy(out, d.table[addr:addr+count])
	return 0, out
}

func (d *Device) writeTable(params []byte) (byte, []byte) {
	if len(params) < 2 {
		return ErrBitInstruction, nil
	}
	return d.apply(params[0], params[1:]), nil
}

func (d *Device) stageWrite(params []byte) (byte, []byte) {
	if len(params) < 2 {
		return ErrBitInstruction, nil
	}
	if int(params[0])+len(params)-1 > tableSize {
		return ErrBitRange, nil
	}
	data := make([]byte, len(params)-1)
	copy(data, params[1:])
	d.pending = &pendingWrite{addr: params[0], data: data}
	d.table[regRegistered] = 1
	return 0, nil
}

func (d *Device) applyStaged() (byte, []byte) {
	if d.pending == nil {
		return 0, nil
	}
	bits := d.apply(d.pending.addr, d.pending.data)
	d.pending = nil
	d.table[regRegistered] = 0
	return bits, nil
}

// syncWrite applies the chunk of a SyncWrite payload addressed to this
// device: params hold the start address, the per-device byte count, then
// id/data groups for each targeted device.
func (d *Device) syncWrite(params []byte) (byte, []byte) {
	if len(params) < 2 {
		return ErrBitInstruction, nil
	}
	addr, stride := params[0], int(params[1])
	rest := params[2:]
	if stride == 0 || len(rest)%(stride+1) != 0 {
		return ErrBitInstruction, nil
	}
	for i := 0; i < len(rest); i += stride + 1 {
		if rest[i] != d.table[regID] {
			continue
		}
		return d.apply(addr, rest[i+1:i+1+stride]), nil
	}
	return 0, nil
}

// apply copies data into the table at addr. Out-of-range writes, and
// writes that would set the id register to a value above MaxID, mutate
// nothing and report the Range error bit.
func (d *Device) apply(addr byte, data []byte) byte {
	if int(addr)+len(data) > tableSize {
		return ErrBitRange
	}
	if idx := int(regID) - int(addr); idx >= 0 && idx < len(data) && data[idx] > MaxID {
		return ErrBitRange
	}
	oldID := d.table[regID]
	copy(d.table[int(addr):], data)
	if newID := d.table[regID]; newID != oldID {
		d.log.Info().Uint8("old_id", oldID).Uint8("new_id", newID).Msg("device readdressed")
	}
	return 0
}

func (d *Device) reset() {
	d.table = defaultTable()
	d.pending = nil
	d.log.Info().Uint8("id", d.table[regID]).Msg("control table reset to factory defaults")
}

// defaultTable is the power-on control table of an AX-12 class device.
func defaultTable() [tableSize]byte {
	var t [tableSize]byte
	binary.LittleEndian.PutUint16(t[regModelNumber:], 12)
	t[regFirmware] = 0x18
	t[regID] = DefaultDeviceID
	t[regBaud] = 16 // 115200 baud
	t[regReturnDelay] = 250
	binary.LittleEndian.PutUint16(t[regCWAngleLimit:], 0)
	binary.LittleEndian.PutUint16(t[regCCWAngleLimit:], 1023)
	t[regTempLimit] = 70
	t[regMinVoltage] = 60
	t[regMaxVoltage] = 140
	binary.LittleEndian.PutUint16(t[regMaxTorque:], 1023)
	t[regStatusReturnLevel] = 2
	t[regAlarmLED] = 36
	t[regAlarmShutdown] = 36
	t[regCWMargin] = 1
	t[regCCWMargin] = 1
	t[regCWSlope] = 32
	t[regCCWSlope] = 32
	binary.LittleEndian.PutUint16(t[regGoalPosition:], 512)
	binary.LittleEndian.PutUint16(t[regTorqueLimit:], 1023)
	binary.LittleEndian.PutUint16(t[regPresentPosition:], 512)
	t[regPresentVoltage] = 110
	t[regPresentTemp] = 34
	binary.LittleEndian.PutUint16(t[regPunch:], 32)
	return t
}
