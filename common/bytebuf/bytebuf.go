// Package bytebuf provides the segmented byte container used to carry wire
// data between the SCTP gateways, the ASN.1 packers and the protocol engines.
//
// A Buffer is a sequence of byte segments. Appending, prepending and slicing
// never copy payload bytes; segments are shared between Buffers, so a Buffer
// obtained from Slice must be treated as read-only by its producer.
package bytebuf

import "fmt"

// Buffer is a segmented, shareable byte container.
type Buffer struct {
	segs   [][]byte
	length int
}

// New returns a Buffer holding the given segments, without copying.
func New(segs ...[]byte) *Buffer {
	b := &Buffer{}
	for _, s := range segs {
		b.Append(s)
	}
	return b
}

// FromBytes wraps a single segment, without copying.
func FromBytes(p []byte) *Buffer {
	return New(p)
}

// Len returns the total number of payload bytes.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return b.length
}

// Append adds a segment to the end of the buffer, without copying.
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.segs = append(b.segs, p)
	b.length += len(p)
}

// Prepend adds a segment to the front of the buffer, without copying.
func (b *Buffer) Prepend(p []byte) {
	if len(p) == 0 {
		return
	}
	b.segs = append([][]byte{p}, b.segs...)
	b.length += len(p)
}

// AppendByte appends a single byte.
func (b *Buffer) AppendByte(c byte) {
	b.Append([]byte{c})
}

// Segments returns the underlying segments. The SCTP gateway uses them to
// send a single-segment buffer without copying. Callers must not mutate the
// returned slices.
func (b *Buffer) Segments() [][]byte {
	if b == nil {
		return nil
	}
	return b.segs
}

// Bytes flattens the buffer into a single contiguous slice. This is the one
// copying operation; the codec uses it to obtain a linear view for decoding.
func (b *Buffer) Bytes() []byte {
	if b == nil || b.length == 0 {
		return nil
	}
	out := make([]byte, 0, b.length)
	for _, s := range b.segs {
		out = append(out, s...)
	}
	return out
}

// Slice returns a new Buffer sharing the bytes in [from, to). Segments that
// fall entirely inside the range are shared; boundary segments are re-sliced
// in place, still without copying payload.
func (b *Buffer) Slice(from, to int) (*Buffer, error) {
	if from < 0 || to < from || to > b.length {
		return nil, fmt.Errorf("slice [%d:%d) out of range for buffer of %d bytes", from, to, b.length)
	}
	out := &Buffer{}
	offset := 0
	for _, s := range b.segs {
		segStart := offset
		segEnd := offset + len(s)
		offset = segEnd
		if segEnd <= from || segStart >= to {
			continue
		}
		lo := 0
		if from > segStart {
			lo = from - segStart
		}
		hi := len(s)
		if to < segEnd {
			hi = to - segStart
		}
		out.Append(s[lo:hi])
	}
	return out, nil
}

// Clone returns a deep copy with a single segment.
func (b *Buffer) Clone() *Buffer {
	return FromBytes(b.Bytes())
}
