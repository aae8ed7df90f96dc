package jtag

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/gousb"
)

// InterfaceKind categorizes adapter families.
type InterfaceKind string

const (
	InterfaceKindCMSISDAP InterfaceKind = "cmsis-dap"
	InterfaceKindSim      InterfaceKind = "simulator"
)

// InterfaceInfo describes a detected adapter interface/transport.
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
	Serial      string
	Path        string
}

// Label returns a user-friendly description for the interface.
func (i InterfaceInfo) Label() string {
	if i.Description != "" {
		return i.Description
	}
	if i.Kind != "" {
		return fmt.Sprintf("%s (%04X:%04X)", string(i.Kind), i.VendorID, i.ProductID)
	}
	return fmt.Sprintf("Interface %04X:%04X", i.VendorID, i.ProductID)
}

// DiscoverInterfaces enumerates connected CMSIS-DAP probes that match known
// VID/PID pairs. It always returns the simulator entry last so a link can be
// exercised without hardware.
func DiscoverInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	var results []InterfaceInfo
	usb := gousb.NewContext()
	defer usb.Close()

	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		_, ok := classifyUSBDevice(desc)
		return ok
	})
	for _, dev := range devs {
		info, _ := classifyUSBDevice(dev.Desc)
		info.Path = fmt.Sprintf("usb:%d:%d", dev.Desc.Bus, dev.Desc.Address)
		if serial, serr := dev.SerialNumber(); serr == nil {
			info.Serial = serial
		}
		results = append(results, info)
		dev.Close()
	}
	if err != nil && !errors.Is(err, gousb.ErrorAccess) {
		return results, err
	}

	results = append(results, InterfaceInfo{
		Kind:        InterfaceKindSim,
		Description: "Simulator (no hardware)",
	})
	return results, ctx.Err()
}

func classifyUSBDevice(desc *gousb.DeviceDesc) (InterfaceInfo, bool) {
	for _, known := range knownCMSISDAPVIDPIDs {
		if uint16(desc.Vendor) == known.VendorID && uint16(desc.Product) == known.ProductID {
			return InterfaceInfo{
				Kind:        InterfaceKindCMSISDAP,
				Description: known.Description,
				VendorID:    known.VendorID,
				ProductID:   known.ProductID,
			}, true
		}
	}
	return InterfaceInfo{}, false
}

type knownUSBDevice struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownCMSISDAPVIDPIDs = []knownUSBDevice{
	{VendorID: VendorIDRaspberryPi, ProductID: ProductIDCMSISDAP, Description: "Raspberry Pi Debug Probe (CMSIS-DAP)"},
	{VendorID: 0x0d28, ProductID: 0x0204, Description: "DAPLink CMSIS-DAP"},
	{VendorID: 0x1366, ProductID: 0x0101, Description: "SEGGER J-Link CMSIS-DAP"},
}

// ParseVIDPID parses "vvvv:pppp" in hexadecimal.
func ParseVIDPID(s string) (vid, pid uint16, err error) {
	v, p, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("jtag: %q is not VID:PID", s)
	}
	vv, err := strconv.ParseUint(strings.TrimPrefix(v, "0x"), 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("jtag: bad vendor id %q: %w", v, err)
	}
	pp, err := strconv.ParseUint(strings.TrimPrefix(p, "0x"), 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("jtag: bad product id %q: %w", p, err)
	}
	return uint16(vv), uint16(pp), nil
}
