package jtag

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// CMSIS-DAP Command IDs
const (
	CmdInfo         = 0x00
	CmdHostStatus   = 0x01
	CmdConnect      = 0x02
	CmdDisconnect   = 0x03
	CmdSWJPins      = 0x10
	CmdSWJClock     = 0x11
	CmdSWJSequence  = 0x12
	CmdJTAGSequence = 0x14
)

// DAP_SWJ_Pins pin bits
const (
	PinTCK    = 0x01
	PinTMS    = 0x02
	PinTDI    = 0x04
	PinTDO    = 0x08
	PinNTRST  = 0x20
	PinNRESET = 0x80
)

// DAP_Info Info IDs
const (
	InfoVendorID     = 0x01
	InfoProductID    = 0x02
	InfoSerialNum    = 0x03
	InfoFirmwareVer  = 0x04
	InfoCapabilities = 0xF0
	InfoPacketCount  = 0xFE
	InfoPacketSize   = 0xFF
)

// Connection ports
const (
	PortDefault = 0
	PortSWD     = 1
	PortJTAG    = 2
)

// Status codes
const (
	StatusOK    = 0x00
	StatusError = 0xFF
)

// JTAG Sequence info flags
const (
	JTAGSeqTCKMask = 0x3F // Bits [5:0] = TCK count (1-63, 0 means 64)
	JTAGSeqTMS     = 0x40 // Bit [6] = TMS value
	JTAGSeqTDO     = 0x80 // Bit [7] = Capture TDO

	MaxSequenceBits = 64
)

// ErrProtocol wraps every malformed or failed CMSIS-DAP response.
var ErrProtocol = errors.New("cmsis-dap: protocol error")

func protoErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrProtocol}, args...)...)
}

// CMSISDAPProtocol handles encoding/decoding of CMSIS-DAP commands
type CMSISDAPProtocol struct {
	PacketSize int
}

// NewCMSISDAPProtocol creates a new protocol handler
func NewCMSISDAPProtocol(packetSize int) *CMSISDAPProtocol {
	return &CMSISDAPProtocol{
		PacketSize: packetSize,
	}
}

func checkResponse(resp []byte, cmd byte, minLen int) error {
	if len(resp) < minLen {
		return protoErr("response to 0x%02X too short (%d bytes)", cmd, len(resp))
	}
	if resp[0] != cmd {
		return protoErr("response ID 0x%02X, want 0x%02X", resp[0], cmd)
	}
	return nil
}

func checkStatus(resp []byte, cmd byte) error {
	if err := checkResponse(resp, cmd, 2); err != nil {
		return err
	}
	if resp[1] != StatusOK {
		return protoErr("command 0x%02X failed with status 0x%02X", cmd, resp[1])
	}
	return nil
}

// EncodeInfo builds a DAP_Info command
func (p *CMSISDAPProtocol) EncodeInfo(infoID byte) []byte {
	return []byte{CmdInfo, infoID}
}

// DecodeInfo parses a DAP_Info string response
func (p *CMSISDAPProtocol) DecodeInfo(resp []byte) (string, error) {
	if err := checkResponse(resp, CmdInfo, 2); err != nil {
		return "", err
	}
	length := int(resp[1])
	if len(resp) < 2+length {
		return "", protoErr("incomplete info string")
	}
	// strings are NUL terminated on most firmware
	s := resp[2 : 2+length]
	for len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	return string(s), nil
}

// DecodeInfoPacketSize parses the DAP_Info packet size response.
func (p *CMSISDAPProtocol) DecodeInfoPacketSize(resp []byte) (int, error) {
	if err := checkResponse(resp, CmdInfo, 4); err != nil {
		return 0, err
	}
	if resp[1] != 2 {
		return 0, protoErr("packet size info has length %d", resp[1])
	}
	return int(binary.LittleEndian.Uint16(resp[2:4])), nil
}

// EncodeConnect builds a DAP_Connect command
func (p *CMSISDAPProtocol) EncodeConnect(port byte) []byte {
	return []byte{CmdConnect, port}
}

// DecodeConnect parses a DAP_Connect response
func (p *CMSISDAPProtocol) DecodeConnect(resp []byte) (byte, error) {
	if err := checkResponse(resp, CmdConnect, 2); err != nil {
		return 0, err
	}
	if resp[1] == PortDefault {
		return 0, protoErr("connection failed")
	}
	return resp[1], nil
}

// EncodeDisconnect builds a DAP_Disconnect command
func (p *CMSISDAPProtocol) EncodeDisconnect() []byte {
	return []byte{CmdDisconnect}
}

// DecodeDisconnect parses a DAP_Disconnect response
func (p *CMSISDAPProtocol) DecodeDisconnect(resp []byte) error {
	return checkStatus(resp, CmdDisconnect)
}

// JTAGSequence represents one DAP_JTAG_Sequence entry: up to 64 cycles with
// a constant TMS.
type JTAGSequence struct {
	Info byte   // Sequence info byte (TCK count, TMS, TDO capture)
	TDI  []byte // TDI data to shift
}

// NewJTAGSequence creates a sequence descriptor
func NewJTAGSequence(tckCount int, tms bool, captureTDO bool, tdi []byte) JTAGSequence {
	info := byte(tckCount & JTAGSeqTCKMask)
	if tms {
		info |= JTAGSeqTMS
	}
	if captureTDO {
		info |= JTAGSeqTDO
	}
	return JTAGSequence{
		Info: info,
		TDI:  tdi,
	}
}

// TCKCount returns the number of TCK clocks in this sequence
func (seq *JTAGSequence) TCKCount() int {
	count := int(seq.Info & JTAGSeqTCKMask)
	if count == 0 {
		return 64
	}
	return count
}

// TMS returns the TMS value for this sequence
func (seq *JTAGSequence) TMS() bool {
	return (seq.Info & JTAGSeqTMS) != 0
}

// CaptureTDO returns whether TDO should be captured
func (seq *JTAGSequence) CaptureTDO() bool {
	return (seq.Info & JTAGSeqTDO) != 0
}

// dataBytes is the TDI (and TDO) payload size of the sequence.
func (seq *JTAGSequence) dataBytes() int {
	return (seq.TCKCount() + 7) / 8
}

// EncodeJTAGSequence builds a DAP_JTAG_Sequence command
// Each sequence is: [info_byte][tdi_data...]
func (p *CMSISDAPProtocol) EncodeJTAGSequence(sequences []JTAGSequence) []byte {
	size := 2
	for i := range sequences {
		size += 1 + sequences[i].dataBytes()
	}

	cmd := make([]byte, size)
	cmd[0] = CmdJTAGSequence
	cmd[1] = byte(len(sequences))

	offset := 2
	for i := range sequences {
		cmd[offset] = sequences[i].Info
		offset++
		copy(cmd[offset:offset+sequences[i].dataBytes()], sequences[i].TDI)
		offset += sequences[i].dataBytes()
	}
	return cmd
}

// DecodeJTAGSequence parses response and extracts TDO data, one slice per
// capturing sequence.
func (p *CMSISDAPProtocol) DecodeJTAGSequence(resp []byte, sequences []JTAGSequence) ([][]byte, error) {
	if err := checkStatus(resp, CmdJTAGSequence); err != nil {
		return nil, err
	}

	result := make([][]byte, 0, len(sequences))
	offset := 2
	for i := range sequences {
		if !sequences[i].CaptureTDO() {
			continue
		}
		n := sequences[i].dataBytes()
		if offset+n > len(resp) {
			return nil, protoErr("incomplete TDO data")
		}
		result = append(result, append([]byte(nil), resp[offset:offset+n]...))
		offset += n
	}
	return result, nil
}

// Batch splits sequences into groups whose command and response each fit
// one packet.
func (p *CMSISDAPProtocol) Batch(sequences []JTAGSequence) [][]JTAGSequence {
	var batches [][]JTAGSequence
	start := 0
	req, resp := 2, 2
	for i := range sequences {
		n := sequences[i].dataBytes()
		r := 0
		if sequences[i].CaptureTDO() {
			r = n
		}
		full := i-start == 255 || req+1+n > p.PacketSize || resp+r > p.PacketSize
		if full && i > start {
			batches = append(batches, sequences[start:i])
			start = i
			req, resp = 2, 2
		}
		req += 1 + n
		resp += r
	}
	if start < len(sequences) {
		batches = append(batches, sequences[start:])
	}
	return batches
}

// EncodeSetClock builds a DAP_SWJ_Clock command
func (p *CMSISDAPProtocol) EncodeSetClock(hz uint32) []byte {
	cmd := make([]byte, 5)
	cmd[0] = CmdSWJClock
	binary.LittleEndian.PutUint32(cmd[1:], hz)
	return cmd
}

// DecodeSetClock parses response
func (p *CMSISDAPProtocol) DecodeSetClock(resp []byte) error {
	return checkStatus(resp, CmdSWJClock)
}

// EncodeSWJPins builds a DAP_SWJ_Pins command driving the pins in sel to
// the levels in out, then waits up to waitUS microseconds for them to
// settle.
func (p *CMSISDAPProtocol) EncodeSWJPins(out, sel byte, waitUS uint32) []byte {
	cmd := make([]byte, 7)
	cmd[0] = CmdSWJPins
	cmd[1] = out
	cmd[2] = sel
	binary.LittleEndian.PutUint32(cmd[3:], waitUS)
	return cmd
}

// DecodeSWJPins returns the pin levels read back after the command.
func (p *CMSISDAPProtocol) DecodeSWJPins(resp []byte) (byte, error) {
	if err := checkResponse(resp, CmdSWJPins, 2); err != nil {
		return 0, err
	}
	return resp[1], nil
}
