package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagstream/pkg/jtag"
)

// Adapter selection flags shared by the commands that drive a TAP.
var (
	adapterKind string
	probeID     string
	adapterHz   int
	usbTimeout  time.Duration
)

func addAdapterFlags(c *cobra.Command) {
	c.Flags().StringVar(&adapterKind, "adapter", "simulator", "JTAG adapter: simulator or cmsis-dap")
	c.Flags().StringVar(&probeID, "probe", "", "CMSIS-DAP probe as VID:PID (default Raspberry Pi Debug Probe)")
	c.Flags().IntVar(&adapterHz, "speed", 0, "TCK frequency in Hz (0 keeps the adapter default)")
	c.Flags().DurationVar(&usbTimeout, "usb-timeout", jtag.DefaultUSBTimeout, "CMSIS-DAP command timeout")
}

func simulated() bool {
	return adapterKind == "simulator" || adapterKind == "sim"
}

// openAdapter returns the adapter selected by the flags. target is clocked
// by the simulator adapter and ignored otherwise. The returned function
// releases the adapter.
func openAdapter(target jtag.Target) (jtag.Adapter, func(), error) {
	var (
		a       jtag.Adapter
		release = func() {}
	)
	switch adapterKind {
	case "simulator", "sim":
		a = jtag.NewTargetAdapter(target)
	case "cmsis-dap", "cmsisdap":
		opts := jtag.CMSISDAPOptions{Timeout: usbTimeout}
		if probeID != "" {
			var err error
			if opts.VID, opts.PID, err = jtag.ParseVIDPID(probeID); err != nil {
				return nil, nil, err
			}
		}
		dap, err := jtag.NewCMSISDAPAdapter(opts)
		if err != nil {
			return nil, nil, err
		}
		a = dap
		release = func() {
			if err := dap.Close(); err != nil {
				log.Warn("closing probe", "err", err)
			}
		}
	default:
		return nil, nil, fmt.Errorf("unknown adapter %q", adapterKind)
	}
	if adapterHz > 0 {
		if err := a.SetSpeed(adapterHz); err != nil {
			release()
			return nil, nil, err
		}
	}
	info, _ := a.Info()
	log.Debug("adapter open", "name", info.Name, "vendor", info.Vendor, "model", info.Model)
	return a, release, nil
}
