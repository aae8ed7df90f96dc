package jtag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// Raspberry Pi Debug Probe USB identifiers, used when no probe is named.
const (
	VendorIDRaspberryPi = 0x2E8A
	ProductIDCMSISDAP   = 0x000C
)

// DefaultUSBTimeout bounds one command/response transaction.
const DefaultUSBTimeout = 5 * time.Second

// CMSISDAPOptions selects a CMSIS-DAP USB device and tunes its transport.
type CMSISDAPOptions struct {
	VID, PID uint16
	// Timeout bounds each command/response transaction.
	Timeout time.Duration
	// PacketSize caps the packet size below the bulk endpoint's maximum.
	// Zero uses the endpoint's.
	PacketSize int
}

// withDefaults selects the Raspberry Pi Debug Probe when no VID:PID is set
// and DefaultUSBTimeout when no timeout is.
func (o CMSISDAPOptions) withDefaults() CMSISDAPOptions {
	if o.VID == 0 && o.PID == 0 {
		o.VID, o.PID = VendorIDRaspberryPi, ProductIDCMSISDAP
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultUSBTimeout
	}
	return o
}

// usbTransport is a Transport over the bulk endpoint pair of a CMSIS-DAP v2
// vendor interface.
type usbTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	out  *gousb.OutEndpoint
	in   *gousb.InEndpoint

	packet  int
	timeout time.Duration
}

func openUSB(opts CMSISDAPOptions) (*usbTransport, error) {
	t := &usbTransport{ctx: gousb.NewContext(), timeout: opts.Timeout}
	dev, err := t.ctx.OpenDeviceWithVIDPID(gousb.ID(opts.VID), gousb.ID(opts.PID))
	if err != nil || dev == nil {
		t.Close()
		if err == nil {
			err = errors.New("not connected")
		}
		return nil, fmt.Errorf("jtag: USB device %04x:%04x: %w", opts.VID, opts.PID, err)
	}
	t.dev = dev
	if err := dev.SetAutoDetach(true); err != nil {
		log.Debug("auto detach unavailable", "err", err)
	}
	if err := t.claim(opts.PacketSize); err != nil {
		t.Close()
		return nil, err
	}
	log.Debug("usb device open", "vid", opts.VID, "pid", opts.PID, "packet", t.packet)
	return t, nil
}

// claim opens the vendor-class interface of configuration 1, interface 0
// when none is marked, and the lowest numbered bulk endpoint per direction.
// Higher bulk IN endpoints carry SWO trace on v2 firmware.
func (t *usbTransport) claim(maxPacket int) error {
	cfg, err := t.dev.Config(1)
	if err != nil {
		return fmt.Errorf("jtag: USB configuration: %w", err)
	}
	t.cfg = cfg

	num := 0
	for _, d := range cfg.Desc.Interfaces {
		if len(d.AltSettings) > 0 && d.AltSettings[0].Class == gousb.ClassVendorSpec {
			num = d.Number
			break
		}
	}
	if t.intf, err = cfg.Interface(num, 0); err != nil {
		return fmt.Errorf("jtag: claim interface %d: %w", num, err)
	}

	var in, out gousb.EndpointDesc
	for _, ep := range t.intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn {
			if in.Number == 0 || ep.Number < in.Number {
				in = ep
			}
		} else if out.Number == 0 || ep.Number < out.Number {
			out = ep
		}
	}
	if in.Number == 0 || out.Number == 0 {
		return fmt.Errorf("jtag: interface %d has no bulk endpoint pair", num)
	}
	if t.out, err = t.intf.OutEndpoint(out.Number); err != nil {
		return fmt.Errorf("jtag: OUT endpoint: %w", err)
	}
	if t.in, err = t.intf.InEndpoint(in.Number); err != nil {
		return fmt.Errorf("jtag: IN endpoint: %w", err)
	}

	t.packet = in.MaxPacketSize
	if maxPacket > 0 && maxPacket < t.packet {
		t.packet = maxPacket
	}
	return nil
}

// WriteRead sends cmd padded to the packet size and returns the response.
func (t *usbTransport) WriteRead(cmd []byte) ([]byte, error) {
	if len(cmd) > t.packet {
		return nil, fmt.Errorf("jtag: command of %d bytes exceeds packet size %d", len(cmd), t.packet)
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	packet := make([]byte, t.packet)
	copy(packet, cmd)
	if _, err := t.out.WriteContext(ctx, packet); err != nil {
		return nil, fmt.Errorf("jtag: USB write: %w", err)
	}
	n, err := t.in.ReadContext(ctx, packet)
	if err != nil {
		return nil, fmt.Errorf("jtag: USB read: %w", err)
	}
	return packet[:n], nil
}

func (t *usbTransport) PacketSize() int {
	return t.packet
}

// Close releases the interface, configuration, device and context in that
// order. It is safe on a partly opened transport.
func (t *usbTransport) Close() error {
	var errs []error
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.cfg != nil {
		errs = append(errs, t.cfg.Close())
		t.cfg = nil
	}
	if t.dev != nil {
		errs = append(errs, t.dev.Close())
		t.dev = nil
	}
	if t.ctx != nil {
		errs = append(errs, t.ctx.Close())
		t.ctx = nil
	}
	return errors.Join(errs...)
}
