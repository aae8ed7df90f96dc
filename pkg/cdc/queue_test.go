package cdc_test

import (
	"context"
	"math/rand"
	"runtime"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sync/errgroup"

	"github.com/OpenTraceLab/jtagstream/pkg/cdc"
	"github.com/OpenTraceLab/jtagstream/pkg/stream"
)

// transfer runs n items through q with the write domain clocked wPeriod and
// the read domain rPeriod time units apart. Push is gated on Ready and Pop on
// Valid.
func transfer(q *cdc.Queue, n int, wPeriod, rPeriod int, rng *rand.Rand) []uint32 {
	w, r := q.Writer(), q.Reader()
	var got []uint32
	next := uint32(0)
	wNext, rNext := 0, 0
	for steps := 0; len(got) < n && steps < 1_000_000; steps++ {
		if wNext <= rNext {
			if int(next) < n && w.Ready() && (rng == nil || rng.Intn(4) != 0) {
				Expect(w.Push(stream.Item{Data: next})).To(BeTrue())
				next++
			}
			w.Tick()
			wNext += wPeriod
		} else {
			if r.Valid() && (rng == nil || rng.Intn(4) != 0) {
				item, ok := r.Pop()
				Expect(ok).To(BeTrue())
				got = append(got, item.Data)
			}
			r.Tick()
			rNext += rPeriod
		}
	}
	return got
}

func sequence(n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(i)
	}
	return out
}

var _ = Describe("Queue", func() {
	Describe("geometry", func() {
		It("accepts the reference geometry", func() {
			q, err := cdc.New(cdc.DefaultDepth, cdc.DefaultStages)
			Expect(err).NotTo(HaveOccurred())
			Expect(q.Depth()).To(Equal(4))
			Expect(q.Stages()).To(Equal(2))
		})

		DescribeTable("rejects unsupported combinations",
			func(depth, stages int) {
				_, err := cdc.New(depth, stages)
				Expect(err).To(MatchError(cdc.ErrBadGeometry))
			},
			Entry("single stage", 4, 1),
			Entry("non power of two", 6, 2),
			Entry("shallower than round trip", 4, 3),
			Entry("zero depth", 0, 2),
		)
	})

	Describe("synchronisation", func() {
		var (
			q *cdc.Queue
			w *cdc.Writer
			r *cdc.Reader
		)

		BeforeEach(func() {
			var err error
			q, err = cdc.New(4, 2)
			Expect(err).NotTo(HaveOccurred())
			w, r = q.Writer(), q.Reader()
		})

		It("hides a write until it crossed every reader stage", func() {
			Expect(w.Push(stream.Item{Data: 0x41})).To(BeTrue())
			Expect(r.Valid()).To(BeFalse())

			r.Tick()
			Expect(r.Valid()).To(BeFalse())
			Expect(r.Peek()).To(Equal(stream.Item{}))

			r.Tick()
			Expect(r.Valid()).To(BeTrue())
			Expect(r.Peek().Data).To(Equal(uint32(0x41)))
		})

		It("keeps reporting full until the read crossed back", func() {
			for i := 0; i < 4; i++ {
				Expect(w.Push(stream.Item{Data: uint32(i)})).To(BeTrue())
			}
			Expect(w.Ready()).To(BeFalse())
			Expect(w.Push(stream.Item{Data: 99})).To(BeFalse())

			r.Tick()
			r.Tick()
			_, ok := r.Pop()
			Expect(ok).To(BeTrue())

			w.Tick()
			Expect(w.Ready()).To(BeFalse())
			w.Tick()
			Expect(w.Ready()).To(BeTrue())
			Expect(w.Free()).To(Equal(1))
		})

		It("holds state while neither domain clocks", func() {
			Expect(w.Push(stream.Item{Data: 7})).To(BeTrue())
			for i := 0; i < 1000; i++ {
				Expect(r.Valid()).To(BeFalse())
			}
			Expect(w.Free()).To(Equal(3))
		})

		It("empties on explicit reset", func() {
			w.Push(stream.Item{Data: 1})
			w.Push(stream.Item{Data: 2})
			r.Tick()
			r.Tick()
			Expect(r.Len()).To(Equal(2))

			q.Reset()
			r.Tick()
			r.Tick()
			w.Tick()
			w.Tick()
			Expect(r.Valid()).To(BeFalse())
			Expect(w.Free()).To(Equal(4))
		})

		It("carries message markers", func() {
			w.Push(stream.Item{Data: 'h', First: true})
			w.Push(stream.Item{Data: 'i', Last: true})
			r.Tick()
			r.Tick()
			first, _ := r.Pop()
			last, _ := r.Pop()
			Expect(first.First).To(BeTrue())
			Expect(last.Last).To(BeTrue())
		})
	})

	Describe("ordering", func() {
		DescribeTable("delivers every item once and in order for any clock ratio",
			func(depth, stages, wPeriod, rPeriod int) {
				q, err := cdc.New(depth, stages)
				Expect(err).NotTo(HaveOccurred())
				Expect(transfer(q, 200, wPeriod, rPeriod, nil)).To(Equal(sequence(200)))
			},
			Entry("equal clocks", 4, 2, 10, 10),
			Entry("fast writer", 4, 2, 3, 17),
			Entry("fast reader", 4, 2, 29, 4),
			Entry("coprime periods", 8, 3, 7, 11),
			Entry("deep queue", 16, 2, 5, 13),
		)

		It("survives randomised stalls on both sides", func() {
			rng := rand.New(rand.NewSource(1))
			for trial := 0; trial < 25; trial++ {
				q, err := cdc.New(4, 2)
				Expect(err).NotTo(HaveOccurred())
				wPeriod := 1 + rng.Intn(40)
				rPeriod := 1 + rng.Intn(40)
				Expect(transfer(q, 100, wPeriod, rPeriod, rng)).To(Equal(sequence(100)),
					"periods %d/%d", wPeriod, rPeriod)
			}
		})

		It("is lossless with the domains in separate goroutines", func() {
			q, err := cdc.New(4, 2)
			Expect(err).NotTo(HaveOccurred())
			const n = 5000

			got := make([]uint32, 0, n)
			g, _ := errgroup.WithContext(context.Background())
			g.Go(func() error {
				w := q.Writer()
				for next := uint32(0); next < n; {
					if w.Ready() && w.Push(stream.Item{Data: next}) {
						next++
					}
					w.Tick()
					runtime.Gosched()
				}
				return nil
			})
			g.Go(func() error {
				r := q.Reader()
				for len(got) < n {
					if item, ok := r.Pop(); ok {
						got = append(got, item.Data)
					}
					r.Tick()
					runtime.Gosched()
				}
				return nil
			})
			Expect(g.Wait()).To(Succeed())
			Expect(got).To(Equal(sequence(n)))
		})
	})
})
