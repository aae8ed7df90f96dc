package hostlink

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/jtagstream/pkg/vendor"
	"github.com/OpenTraceLab/jtagstream/pkg/xfer"
)

// Defaults applied by Validate to zero fields.
const (
	DefaultFramesPerScan = 16
	DefaultRXBuffer      = 4096
	DefaultStallScans    = 256
)

// ErrBadConfig is returned for a link configuration that cannot work.
var ErrBadConfig = errors.New("hostlink: invalid configuration")

// Config describes how the host reaches the stream PHY.
type Config struct {
	DataWidth     int    // payload bits per frame, must match the device
	IRLength      int    // instruction register length of the target
	UserOpcode    uint32 // instruction that selects the PHY's user chain
	FramesPerScan int    // frames shifted per DR scan
	RXBuffer      int    // received words held before the host stops being ready
	// StallScans bounds how many scans Flush and Read run without progress.
	StallScans int
}

// ConfigFor derives the instruction parameters for a family and user chain.
func ConfigFor(family vendor.Family, chain, width int) (Config, error) {
	if !family.Valid() {
		return Config{}, fmt.Errorf("%w: %d", vendor.ErrUnknownFamily, family)
	}
	desc := family.Describe()
	op, err := desc.UserOpcode(chain)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		DataWidth:  width,
		IRLength:   desc.IRLength,
		UserOpcode: op,
	}
	return cfg, cfg.Validate()
}

// Validate fills defaults and checks ranges.
func (c *Config) Validate() error {
	if c.FramesPerScan == 0 {
		c.FramesPerScan = DefaultFramesPerScan
	}
	if c.RXBuffer == 0 {
		c.RXBuffer = DefaultRXBuffer
	}
	if c.StallScans == 0 {
		c.StallScans = DefaultStallScans
	}
	switch {
	case c.DataWidth < 1 || c.DataWidth > xfer.MaxDataWidth:
		return fmt.Errorf("%w: data width %d out of range 1..%d", ErrBadConfig, c.DataWidth, xfer.MaxDataWidth)
	case c.IRLength < 1 || c.IRLength > 32:
		return fmt.Errorf("%w: IR length %d", ErrBadConfig, c.IRLength)
	case c.UserOpcode>>uint(c.IRLength) != 0:
		return fmt.Errorf("%w: opcode %#x wider than %d IR bits", ErrBadConfig, c.UserOpcode, c.IRLength)
	case c.FramesPerScan < 1 || c.RXBuffer < 1 || c.StallScans < 1:
		return fmt.Errorf("%w: frames %d, rx buffer %d, stall scans %d", ErrBadConfig,
			c.FramesPerScan, c.RXBuffer, c.StallScans)
	}
	return nil
}
