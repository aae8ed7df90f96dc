package stream

// Buffer is a single-clock-domain FIFO that is both a Sink and a Source. It
// models the system-side producers and consumers attached to the link. A
// capacity of zero means unbounded.
type Buffer struct {
	items    []Item
	capacity int
}

// NewBuffer returns an empty buffer holding at most capacity items.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{capacity: capacity}
}

// Ready reports whether another item fits.
func (b *Buffer) Ready() bool {
	return b.capacity <= 0 || len(b.items) < b.capacity
}

// Push appends item when the buffer is ready.
func (b *Buffer) Push(item Item) bool {
	if !b.Ready() {
		return false
	}
	b.items = append(b.items, item)
	return true
}

// Valid reports whether an item is waiting.
func (b *Buffer) Valid() bool {
	return len(b.items) > 0
}

// Peek returns the head item, or the zero Item when empty.
func (b *Buffer) Peek() Item {
	if len(b.items) == 0 {
		return Item{}
	}
	return b.items[0]
}

// Pop removes and returns the head item.
func (b *Buffer) Pop() (Item, bool) {
	if len(b.items) == 0 {
		return Item{}, false
	}
	item := b.items[0]
	b.items = b.items[1:]
	return item, true
}

// Len returns the number of buffered items.
func (b *Buffer) Len() int {
	return len(b.items)
}

// WriteBytes pushes one item per byte, marking the first and last, and returns
// how many bytes were accepted before the buffer filled.
func (b *Buffer) WriteBytes(p []byte) int {
	for i, c := range p {
		if !b.Push(Item{Data: uint32(c), First: i == 0, Last: i == len(p)-1}) {
			return i
		}
	}
	return len(p)
}

// Bytes drains the buffer and returns the low byte of every item.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, 0, len(b.items))
	for _, item := range b.items {
		out = append(out, byte(item.Data))
	}
	b.items = b.items[:0]
	return out
}
