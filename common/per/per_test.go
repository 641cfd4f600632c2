package per

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitWriterReader(t *testing.T) {
	w := NewBitWriter()
	w.WriteBits(0b101, 3)
	w.WriteBits(0x1f, 5)
	w.WriteBytes([]byte{0xab, 0xcd})

	r := NewBitReader(w.Bytes())
	v, err := r.ReadBits(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b101), v)
	v, err = r.ReadBits(5)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1f), v)
	b, err := r.ReadBytes(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xab, 0xcd}, b)

	_, err = r.ReadBits(1)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestConstrainedWholeNumber(t *testing.T) {
	cases := []struct {
		value, min, max int64
	}{
		{0, 0, 0},        // empty encoding
		{5, 0, 7},        // bit-field
		{200, 0, 255},    // one octet
		{40000, 0, 65535},// two octets
		{1 << 20, 0, 1 << 24}, // length-prefixed
		{-3, -10, 10},
	}
	for _, c := range cases {
		w := NewBitWriter()
		require.NoError(t, WriteConstrainedWholeNumber(w, c.value, c.min, c.max))
		got, err := ReadConstrainedWholeNumber(NewBitReader(w.Bytes()), c.min, c.max)
		require.NoError(t, err)
		assert.Equal(t, c.value, got, "range [%d,%d]", c.min, c.max)
	}

	w := NewBitWriter()
	assert.Error(t, WriteConstrainedWholeNumber(w, 11, 0, 10))
}

func TestLengthDeterminant(t *testing.T) {
	for _, n := range []int{0, 1, 127, 128, 255, 16383} {
		w := NewBitWriter()
		require.NoError(t, WriteLengthDeterminant(w, n))
		got, err := ReadLengthDeterminant(NewBitReader(w.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
	w := NewBitWriter()
	assert.Error(t, WriteLengthDeterminant(w, 16384))
}

func TestBitString(t *testing.T) {
	// 22-bit string with variable bounds: aligned body.
	w := NewBitWriter()
	in := []byte{0xde, 0xad, 0xc0}
	require.NoError(t, WriteBitString(w, in, 22, 0, 64, true))

	out, nbits, err := ReadBitString(NewBitReader(w.Bytes()), 0, 64, true)
	require.NoError(t, err)
	assert.Equal(t, 22, nbits)
	assert.Equal(t, in, out)
}

func TestOctetString(t *testing.T) {
	// Unbounded with length determinant.
	w := NewBitWriter()
	require.NoError(t, WriteOctetString(w, []byte{1, 2, 3}, 0, -1, false))
	out, err := ReadOctetString(NewBitReader(w.Bytes()), 0, -1, false)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, out)

	// Short fixed size stays unaligned.
	w = NewBitWriter()
	w.WriteBits(1, 1)
	require.NoError(t, WriteOctetString(w, []byte{0xaa}, 1, 1, false))
	assert.Equal(t, 2, w.Len())

	r := NewBitReader(w.Bytes())
	_, err = r.ReadBits(1)
	require.NoError(t, err)
	out, err = ReadOctetString(r, 1, 1, false)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa}, out)
}

func TestSequencePreambleAndChoice(t *testing.T) {
	w := NewBitWriter()
	WriteSequencePreamble(w, true, 3, 0b101)
	require.NoError(t, WriteChoice(w, 2, 4, false))

	r := NewBitReader(w.Bytes())
	flags, err := ReadSequencePreamble(r, true, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b101), flags)
	idx, err := ReadChoice(r, 4, false)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
}
