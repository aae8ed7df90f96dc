// Package stream defines the flow-controlled stream endpoints that sit above
// and below the JTAG link: a payload word with optional message markers,
// moved across a valid/ready handshake.
//
// A transfer happens on a clock edge where the producer is valid and the
// consumer is ready. In this package that is expressed as a Source that is
// Valid and a Sink that is Ready; Transfer performs one such handshake.
package stream

// Item is one payload word crossing a stream interface. First and Last
// optionally delimit a logical message.
type Item struct {
	Data  uint32
	First bool
	Last  bool
}

// Sink consumes items. Push must only be called when Ready reports true; a
// Push on a sink that is not ready returns false and stores nothing.
type Sink interface {
	Ready() bool
	Push(Item) bool
}

// Source produces items. Peek returns the head item without consuming it and
// is only meaningful while Valid reports true.
type Source interface {
	Valid() bool
	Peek() Item
	Pop() (Item, bool)
}

// Transfer moves one item from src to dst if src is valid and dst is ready.
// It reports whether a transfer happened.
func Transfer(src Source, dst Sink) bool {
	if !src.Valid() || !dst.Ready() {
		return false
	}
	item, ok := src.Pop()
	if !ok {
		return false
	}
	return dst.Push(item)
}

// Mask returns the low width bits of v.
func Mask(v uint32, width int) uint32 {
	if width >= 32 {
		return v
	}
	return v & (1<<uint(width) - 1)
}
