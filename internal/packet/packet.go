// Package packet defines the unit of transport between sender, relay, and receiver.
package packet

// Packet is an immutable (index, data) pair. index is the packet's 0-based,
// contiguous position in the global byte stream. A Packet with empty Data is
// the EOF marker: it carries the highest index in its stream and has no
// successor.
type Packet struct {
	Index uint64
	Data  []byte
}

// New returns a Packet carrying data at index. The slice is retained, not copied.
func New(index uint64, data []byte) Packet {
	return Packet{Index: index, Data: data}
}

// EOF reports whether p terminates its stream.
func (p Packet) EOF() bool {
	return len(p.Data) == 0
}
