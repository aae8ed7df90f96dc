package phy_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/OpenTraceLab/jtagstream/pkg/phy"
	"github.com/OpenTraceLab/jtagstream/pkg/stream"
	"github.com/OpenTraceLab/jtagstream/pkg/tap"
	"github.com/OpenTraceLab/jtagstream/pkg/vendor"
	"github.com/OpenTraceLab/jtagstream/pkg/xfer"
)

var _ = Describe("Config", func() {
	It("defaults to the reference geometry", func() {
		cfg := phy.DefaultConfig()
		Expect(cfg.Validate()).To(Succeed())
		Expect(cfg.DataWidth).To(Equal(8))
		Expect(cfg.Depth).To(Equal(4))
		Expect(cfg.Family).To(Equal(vendor.FamilySim))
	})

	DescribeTable("rejects unsupported configurations before building",
		func(mutate func(*phy.Config)) {
			cfg := phy.DefaultConfig()
			mutate(&cfg)
			_, err := phy.New(cfg)
			Expect(err).To(MatchError(phy.ErrUnsupportedConfig))
		},
		Entry("zero width", func(c *phy.Config) { c.DataWidth = 0 }),
		Entry("wide payload", func(c *phy.Config) { c.DataWidth = 33 }),
		Entry("second MAX10 chain", func(c *phy.Config) { c.Family, c.Chain = vendor.FamilyMAX10, 2 }),
		Entry("fifth Xilinx chain", func(c *phy.Config) { c.Family, c.Chain = vendor.FamilySeries7, 5 }),
		Entry("odd depth", func(c *phy.Config) { c.Depth = 6 }),
		Entry("single flop", func(c *phy.Config) { c.SyncStages = 1 }),
	)

	It("round-trips through a JSON file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "cfg", "config.json")
		cfg := phy.DefaultConfig()
		cfg.Family = vendor.FamilySeries7
		cfg.Chain = 3
		cfg.DataWidth = 16
		Expect(phy.SaveConfig(path, cfg)).To(Succeed())

		raw, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(raw)).To(ContainSubstring(`"family": "series7"`))

		back, err := phy.LoadConfig(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(back).To(Equal(cfg))
	})

	It("fills fields missing from the file with defaults", func() {
		path := filepath.Join(GinkgoT().TempDir(), "config.json")
		Expect(os.WriteFile(path, []byte(`{"family":"xc7a35t","data_width":12}`), 0644)).To(Succeed())
		cfg, err := phy.LoadConfig(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Family).To(Equal(vendor.FamilySeries7))
		Expect(cfg.DataWidth).To(Equal(12))
		Expect(cfg.Chain).To(Equal(1))
		Expect(cfg.Depth).To(Equal(4))
	})

	It("uses defaults when the file does not exist", func() {
		cfg, err := phy.LoadConfig(filepath.Join(GinkgoT().TempDir(), "none.json"))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(phy.DefaultConfig()))
	})

	It("reports invalid values from the file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "config.json")
		Expect(os.WriteFile(path, []byte(`{"family":"max10","chain":3}`), 0644)).To(Succeed())
		_, err := phy.LoadConfig(path)
		Expect(err).To(MatchError(phy.ErrUnsupportedConfig))
	})
})

var _ = Describe("Device", func() {
	var (
		dev *phy.Device
		clk *phy.Clocks
		rx  *stream.Buffer
	)

	build := func(cfg phy.Config, h phy.Handler) {
		var err error
		dev, err = phy.New(cfg)
		Expect(err).NotTo(HaveOccurred())
		clk, err = phy.NewClocks(dev, h, 3, 1)
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		rx = stream.NewBuffer(0)
	})

	It("keeps exactly one TAP state active", func() {
		build(phy.DefaultConfig(), nil)
		for _, tms := range []bool{false, true, false, false, true, true, true, false, true, true, true, true, true} {
			clk.TickTCK(tms, false)
			snap := dev.Snapshot()
			Expect(snap.TAPOneHot).To(Equal(uint16(1) << snap.TAP))
		}
	})

	It("reads the family IDCODE through the port", func() {
		for _, f := range vendor.Families() {
			cfg := phy.DefaultConfig()
			cfg.Family = f
			build(cfg, nil)
			toIdle(clk)
			var raw uint32
			for i, bit := range scanDR(clk, make([]bool, 32)) {
				if bit {
					raw |= 1 << uint(i)
				}
			}
			Expect(raw).To(Equal(f.Describe().SampleIDCode), "family %s", f)
		}
	})

	DescribeTable("echoes bytes back through both queues",
		func(family vendor.Family, width, framesPerScan int) {
			cfg := phy.DefaultConfig()
			cfg.Family = family
			cfg.DataWidth = width
			build(cfg, phy.Echo)
			selectUser(clk, dev)
			Expect(dev.Snapshot().UserSelected).To(BeTrue())

			pending := words("ABC")
			var got []uint32
			for i := 0; i < 50 && len(got) < 3; i++ {
				n, in := exchange(clk, width, pending, framesPerScan)
				pending = pending[n:]
				got = append(got, in...)
			}
			Expect(text(got)).To(Equal("ABC"))
			Expect(clk.Err()).NotTo(HaveOccurred())
		},
		Entry("sim, one frame per scan", vendor.FamilySim, 8, 1),
		Entry("series7, batched", vendor.FamilySeries7, 8, 4),
		Entry("spartan6 wide", vendor.FamilySpartan6, 16, 2),
		Entry("max10", vendor.FamilyMAX10, 8, 3),
	)

	It("leaves queues untouched across idle frames", func() {
		build(phy.DefaultConfig(), phy.Collect(rx))
		selectUser(clk, dev)
		before := dev.Snapshot()
		for i := 0; i < 20; i++ {
			n, in := exchange(clk, 8, nil, 4)
			Expect(n).To(BeZero())
			Expect(in).To(BeEmpty())
		}
		after := dev.Snapshot()
		Expect(after.Stats.Sent).To(Equal(before.Stats.Sent))
		Expect(after.Stats.Received).To(Equal(before.Stats.Received))
		Expect(after.Stats.Frames - before.Stats.Frames).To(Equal(uint64(80)))
		Expect(after.TXFree).To(Equal(4))
		Expect(after.RXPending).To(BeZero())
		Expect(rx.Len()).To(BeZero())
	})

	It("discards a frame cut short by leaving Shift-DR", func() {
		build(phy.DefaultConfig(), phy.Collect(rx))
		selectUser(clk, dev)

		for _, tms := range []bool{true, false, false} {
			clk.TickTCK(tms, false)
		}
		bits := encode(8, []frame{{ready: true, data: 0x7E, valid: true}})[:4]
		for i, b := range bits {
			clk.TickTCK(i == len(bits)-1, b)
		}
		clk.TickTCK(true, false)
		clk.TickTCK(false, false)
		Expect(dev.Snapshot().Xfer).To(Equal(xfer.StateData))

		n, _ := exchange(clk, 8, words("Z"), 1)
		Expect(n).To(Equal(1))
		clk.Step(10)
		Expect(text(drain(rx))).To(Equal("Z"))
		Expect(dev.Snapshot().Stats.Aborted).To(Equal(uint64(1)))
	})

	It("discards a partial frame on Test-Logic-Reset", func() {
		build(phy.DefaultConfig(), phy.Collect(rx))
		selectUser(clk, dev)
		for _, tms := range []bool{true, false, false, false, false} {
			clk.TickTCK(tms, true)
		}
		// the reset strobe is sampled on the first edge spent in Test-Logic-Reset
		for i := 0; i < tap.ResetClocks+1; i++ {
			clk.TickTCK(true, false)
		}
		snap := dev.Snapshot()
		Expect(snap.TAP).To(Equal(tap.StateTestLogicReset))
		Expect(snap.Xfer).To(Equal(xfer.StateReady))
		Expect(snap.Stats.Aborted).To(Equal(uint64(1)))
		Expect(snap.UserSelected).To(BeFalse())
		clk.Step(10)
		Expect(rx.Len()).To(BeZero())
	})

	It("applies back-pressure without loss or duplication", func() {
		build(phy.DefaultConfig(), nil)
		selectUser(clk, dev)

		msg := words("0123456789")
		n, _ := exchange(clk, 8, msg, len(msg))
		Expect(n).To(Equal(4))
		snap := dev.Snapshot()
		Expect(snap.Stats.Received).To(Equal(uint64(4)))
		Expect(snap.Stats.Rejected).To(Equal(uint64(6)))

		pending := msg[n:]
		var got []uint32
		drainer, err := phy.NewClocks(dev, phy.Collect(rx), 1, 1)
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < 100 && len(pending) > 0; i++ {
			drainer.Step(8)
			got = append(got, drain(rx)...)
			n, _ = exchange(drainer, 8, pending, 3)
			pending = pending[n:]
		}
		drainer.Step(8)
		got = append(got, drain(rx)...)
		Expect(text(got)).To(Equal("0123456789"))
	})

	It("holds TCK-side state while the test clock is stopped", func() {
		build(phy.DefaultConfig(), phy.Collect(rx))
		selectUser(clk, dev)
		for _, tms := range []bool{true, false, false, false, false} {
			clk.TickTCK(tms, true)
		}
		before := dev.Snapshot()
		clk.Step(1000)
		after := dev.Snapshot()
		Expect(after.TAP).To(Equal(before.TAP))
		Expect(after.Xfer).To(Equal(before.Xfer))
		Expect(after.Ticks).To(Equal(before.Ticks))
	})

	It("empties everything on system reset", func() {
		build(phy.DefaultConfig(), nil)
		selectUser(clk, dev)
		exchange(clk, 8, words("xy"), 2)
		Expect(dev.Sink().Push(stream.Item{Data: 1})).To(BeTrue())

		dev.Reset()
		snap := dev.Snapshot()
		Expect(snap.TAP).To(Equal(tap.StateTestLogicReset))
		Expect(snap.TXFree).To(Equal(4))
		Expect(snap.RXPending).To(BeZero())
		Expect(snap.Xfer).To(Equal(xfer.StateReady))
	})

	It("sends system words to the host", func() {
		feed := stream.NewBuffer(0)
		feed.WriteBytes([]byte("hello"))
		build(phy.DefaultConfig(), phy.Feed(feed))
		selectUser(clk, dev)
		var got []uint32
		for i := 0; i < 50 && len(got) < 5; i++ {
			_, in := exchange(clk, 8, nil, 2)
			got = append(got, in...)
		}
		Expect(text(got)).To(Equal("hello"))
	})

	It("chains handlers on the same edge", func() {
		var out bytes.Buffer
		feed := stream.NewBuffer(0)
		feed.WriteBytes([]byte("ok"))
		build(phy.DefaultConfig(), phy.Chain(phy.WriteTo(&out), phy.Feed(feed)))
		selectUser(clk, dev)

		pending := words("hi")
		var got []uint32
		for i := 0; i < 50 && (len(got) < 2 || len(pending) > 0); i++ {
			n, in := exchange(clk, 8, pending, 2)
			pending = pending[n:]
			got = append(got, in...)
		}
		clk.Step(10)
		Expect(text(got)).To(Equal("ok"))
		Expect(out.String()).To(Equal("hi"))
		Expect(clk.Err()).NotTo(HaveOccurred())
	})

	It("stops system edges after a handler error", func() {
		boom := errors.New("boom")
		calls := 0
		build(phy.DefaultConfig(), func(*phy.Device) error {
			calls++
			return boom
		})
		clk.Step(5)
		Expect(clk.Err()).To(MatchError(boom))
		Expect(calls).To(Equal(1))
		Expect(clk.SysTicks()).To(BeZero())
	})

	It("interleaves edges at the configured ratio", func() {
		build(phy.DefaultConfig(), nil)
		slow, err := phy.NewClocks(dev, nil, 2, 3)
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < 30; i++ {
			slow.TickTCK(true, false)
		}
		Expect(slow.SysTicks()).To(Equal(uint64(20)))

		_, err = phy.NewClocks(dev, nil, 0, 1)
		Expect(err).To(HaveOccurred())
	})

	It("runs the domains in separate goroutines", func() {
		d, err := phy.New(phy.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		var echoed bytes.Buffer
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err = phy.RunConcurrent(ctx, d, phy.Echo, 0, func(ctx context.Context) error {
			selectUser(d, d)
			pending := words("concurrent")
			for len(echoed.Bytes()) < 10 {
				if err := ctx.Err(); err != nil {
					return err
				}
				n, in := exchange(d, 8, pending, 2)
				pending = pending[n:]
				echoed.WriteString(text(in))
			}
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(echoed.String()).To(Equal("concurrent"))
	})
})

func drain(b *stream.Buffer) []uint32 {
	var out []uint32
	for b.Valid() {
		item, _ := b.Pop()
		out = append(out, item.Data)
	}
	return out
}
