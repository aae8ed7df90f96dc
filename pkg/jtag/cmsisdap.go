package jtag

import (
	"fmt"
	"sync"
)

// Transport carries CMSIS-DAP command packets to a probe.
type Transport interface {
	WriteRead(cmd []byte) ([]byte, error)
	PacketSize() int
	Close() error
}

// CMSISDAPAdapter implements the Adapter interface for CMSIS-DAP probes
type CMSISDAPAdapter struct {
	transport Transport
	protocol  *CMSISDAPProtocol

	info      AdapterInfo
	speedHz   int
	connected bool

	mu sync.Mutex
}

var _ Adapter = (*CMSISDAPAdapter)(nil)

// NewCMSISDAPAdapter opens the USB device selected by opts and connects its
// JTAG port. Zero options select the Raspberry Pi Debug Probe.
func NewCMSISDAPAdapter(opts CMSISDAPOptions) (*CMSISDAPAdapter, error) {
	transport, err := openUSB(opts.withDefaults())
	if err != nil {
		return nil, err
	}
	a, err := NewCMSISDAPAdapterWithTransport(transport)
	if err != nil {
		transport.Close()
		return nil, err
	}
	return a, nil
}

// NewCMSISDAPAdapterWithTransport runs the connect handshake over an already
// open transport.
func NewCMSISDAPAdapterWithTransport(t Transport) (*CMSISDAPAdapter, error) {
	a := &CMSISDAPAdapter{
		transport: t,
		protocol:  NewCMSISDAPProtocol(t.PacketSize()),
		speedHz:   1_000_000,
	}
	if err := a.queryInfo(); err != nil {
		return nil, fmt.Errorf("jtag: query probe info: %w", err)
	}
	if err := a.connect(); err != nil {
		return nil, fmt.Errorf("jtag: connect JTAG port: %w", err)
	}
	if err := a.SetSpeed(a.speedHz); err != nil {
		return nil, fmt.Errorf("jtag: set default speed: %w", err)
	}
	log.Debug("cmsis-dap connected", "vendor", a.info.Vendor, "model", a.info.Model,
		"serial", a.info.SerialNumber, "packet", a.protocol.PacketSize)
	return a, nil
}

func (a *CMSISDAPAdapter) infoString(id byte) (string, error) {
	resp, err := a.transport.WriteRead(a.protocol.EncodeInfo(id))
	if err != nil {
		return "", err
	}
	return a.protocol.DecodeInfo(resp)
}

// queryInfo retrieves device information from the probe. Only the vendor
// string is mandatory; firmware commonly leaves the others empty.
func (a *CMSISDAPAdapter) queryInfo() error {
	vendor, err := a.infoString(InfoVendorID)
	if err != nil {
		return err
	}
	product, _ := a.infoString(InfoProductID)
	serial, _ := a.infoString(InfoSerialNum)
	firmware, _ := a.infoString(InfoFirmwareVer)

	if resp, err := a.transport.WriteRead(a.protocol.EncodeInfo(InfoPacketSize)); err == nil {
		if size, err := a.protocol.DecodeInfoPacketSize(resp); err == nil && size >= 8 && size < a.protocol.PacketSize {
			a.protocol.PacketSize = size
		}
	}

	a.info = AdapterInfo{
		Name:         "CMSIS-DAP Probe",
		Vendor:       vendor,
		Model:        product,
		SerialNumber: serial,
		Firmware:     firmware,
		MinFrequency: 1000,
		MaxFrequency: 10_000_000,
		SupportsTRST: true,
	}
	return nil
}

func (a *CMSISDAPAdapter) connect() error {
	resp, err := a.transport.WriteRead(a.protocol.EncodeConnect(PortJTAG))
	if err != nil {
		return err
	}
	port, err := a.protocol.DecodeConnect(resp)
	if err != nil {
		return err
	}
	if port != PortJTAG {
		return protoErr("connected port %d, want JTAG", port)
	}
	a.connected = true
	return nil
}

// Info returns adapter capabilities
func (a *CMSISDAPAdapter) Info() (AdapterInfo, error) {
	return a.info, nil
}

// ShiftIR clocks bits cycles addressing the instruction register.
func (a *CMSISDAPAdapter) ShiftIR(tms, tdi []byte, bits int) ([]byte, error) {
	return a.shift(tms, tdi, bits)
}

// ShiftDR clocks bits cycles addressing the data register.
func (a *CMSISDAPAdapter) ShiftDR(tms, tdi []byte, bits int) ([]byte, error) {
	return a.shift(tms, tdi, bits)
}

func (a *CMSISDAPAdapter) shift(tms, tdi []byte, bits int) ([]byte, error) {
	if _, err := ValidateShiftBuffers(tms, tdi, bits); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.transport == nil {
		return nil, ErrClosed
	}
	return a.shiftRegister(tms, tdi, bits)
}

// shiftRegister sends the cycles as DAP_JTAG_Sequence commands, as many as
// needed to respect the packet size, and reassembles TDO in cycle order.
func (a *CMSISDAPAdapter) shiftRegister(tms, tdi []byte, bits int) ([]byte, error) {
	tdo := make([]byte, (bits+7)/8)
	pos := 0
	for _, batch := range a.protocol.Batch(buildSequences(tms, tdi, bits)) {
		resp, err := a.transport.WriteRead(a.protocol.EncodeJTAGSequence(batch))
		if err != nil {
			return nil, fmt.Errorf("jtag: shift failed: %w", err)
		}
		captured, err := a.protocol.DecodeJTAGSequence(resp, batch)
		if err != nil {
			return nil, err
		}
		for i := range batch {
			n := batch[i].TCKCount()
			CopyBits(tdo, pos, captured[i], 0, n)
			pos += n
		}
	}
	return tdo, nil
}

// buildSequences splits per-bit TMS into runs of constant TMS of at most 64
// cycles, every one capturing TDO.
func buildSequences(tms, tdi []byte, bits int) []JTAGSequence {
	var sequences []JTAGSequence
	for pos := 0; pos < bits; {
		level := Bit(tms, pos)
		n := 1
		for pos+n < bits && n < MaxSequenceBits && Bit(tms, pos+n) == level {
			n++
		}
		data := make([]byte, (n+7)/8)
		CopyBits(data, 0, tdi, pos, n)
		sequences = append(sequences, NewJTAGSequence(n, level, true, data))
		pos += n
	}
	return sequences
}

// ResetTAP resets the TAP. A hard reset first pulses nTRST low with
// DAP_SWJ_Pins; either way five cycles with TMS high follow, so targets
// without nTRST wired still reach Test-Logic-Reset. nRESET is never driven.
func (a *CMSISDAPAdapter) ResetTAP(hard bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.transport == nil {
		return ErrClosed
	}

	if hard {
		for _, level := range []byte{0, PinNTRST} {
			resp, err := a.transport.WriteRead(a.protocol.EncodeSWJPins(level, PinNTRST, 0))
			if err != nil {
				return fmt.Errorf("jtag: nTRST pulse failed: %w", err)
			}
			if _, err := a.protocol.DecodeSWJPins(resp); err != nil {
				return err
			}
		}
	}

	seq := []JTAGSequence{NewJTAGSequence(5, true, false, []byte{0x00})}
	resp, err := a.transport.WriteRead(a.protocol.EncodeJTAGSequence(seq))
	if err != nil {
		return fmt.Errorf("jtag: TAP reset failed: %w", err)
	}
	_, err = a.protocol.DecodeJTAGSequence(resp, seq)
	return err
}

// SetSpeed sets the TCK frequency
func (a *CMSISDAPAdapter) SetSpeed(hz int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.transport == nil {
		return ErrClosed
	}

	if hz < a.info.MinFrequency || hz > a.info.MaxFrequency {
		return fmt.Errorf("jtag: frequency %d Hz out of range [%d, %d]",
			hz, a.info.MinFrequency, a.info.MaxFrequency)
	}

	resp, err := a.transport.WriteRead(a.protocol.EncodeSetClock(uint32(hz)))
	if err != nil {
		return fmt.Errorf("jtag: set speed failed: %w", err)
	}
	if err := a.protocol.DecodeSetClock(resp); err != nil {
		return err
	}
	a.speedHz = hz
	return nil
}

// Close disconnects and releases resources
func (a *CMSISDAPAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.transport == nil {
		return nil
	}

	if a.connected {
		if resp, err := a.transport.WriteRead(a.protocol.EncodeDisconnect()); err == nil {
			if err := a.protocol.DecodeDisconnect(resp); err != nil {
				log.Debug("disconnect refused", "err", err)
			}
		}
		a.connected = false
	}
	err := a.transport.Close()
	a.transport = nil
	return err
}
