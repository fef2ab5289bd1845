package bitstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadUintAligned(t *testing.T) {
	c := NewCursor([]byte{0x01, 0x02, 0x03, 0x04})

	v, err := c.ReadUint(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x01), v)

	v, err = c.ReadUint(16)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0203), v)

	assert.Equal(t, 24, c.Position())
	assert.Equal(t, 8, c.Remaining())
}

func TestReadUintUnaligned(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		reads    []int
		expected []uint64
	}{
		{
			name:     "CCSDS header fields",
			data:     []byte{0x08, 0x64, 0xC0, 0x00, 0x00, 0x07},
			reads:    []int{3, 1, 1, 11, 2, 14, 16},
			expected: []uint64{0, 0, 1, 100, 3, 0, 7},
		},
		{
			name:     "bit by bit",
			data:     []byte{0xA5},
			reads:    []int{1, 1, 1, 1, 1, 1, 1, 1},
			expected: []uint64{1, 0, 1, 0, 0, 1, 0, 1},
		},
		{
			name:     "64 bits at offset 1",
			data:     []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x80},
			reads:    []int{1, 64},
			expected: []uint64{1, 0xFFFFFFFFFFFFFFFF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCursor(tt.data)
			for i, nbits := range tt.reads {
				v, err := c.ReadUint(nbits)
				require.NoError(t, err)
				assert.Equal(t, tt.expected[i], v, "read %d (%d bits)", i, nbits)
			}
		})
	}
}

func TestReadUintPastEnd(t *testing.T) {
	c := NewCursor([]byte{0xFF})
	_, err := c.ReadUint(9)
	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, 9, readErr.NBits)
	assert.Equal(t, 8, readErr.Size)

	// Position is unchanged after a failed read.
	v, err := c.ReadUint(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xFF), v)
}

func TestReadInt(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		nbits      int
		signedness Signedness
		expected   int64
	}{
		{"unsigned", []byte{0xFF}, 8, Unsigned, 255},
		{"twos complement negative", []byte{0xFF}, 8, TwosComplement, -1},
		{"twos complement positive", []byte{0x7F}, 8, TwosComplement, 127},
		{"twos complement min", []byte{0x80}, 8, TwosComplement, -128},
		{"ones complement negative", []byte{0xFE}, 8, OnesComplement, -1},
		{"sign magnitude negative", []byte{0x81}, 8, SignMagnitude, -1},
		{"sign magnitude positive", []byte{0x01}, 8, SignMagnitude, 1},
		{"twos complement 12 bit", []byte{0xFF, 0xF0}, 12, TwosComplement, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCursor(tt.data)
			v, err := c.ReadInt(tt.nbits, tt.signedness)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestReadBytesAligned(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04}
	c := NewCursor(data)
	out, err := c.ReadBytes(16)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, out)

	// The returned slice is a copy, not a view of the packet buffer.
	out[0] = 0xAA
	assert.Equal(t, byte(0x01), data[0])
}

func TestReadBytesUnalignedRightPadding(t *testing.T) {
	// 12 bits of 0xABC: final byte is right-padded with zeros.
	c := NewCursor([]byte{0xAB, 0xCD})
	out, err := c.ReadBytes(12)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAB, 0xC0}, out)
	assert.Equal(t, 12, c.Position())
}

func TestReadBytesOffsetWholeBytes(t *testing.T) {
	c := NewCursor([]byte{0x0F, 0xF0})
	require.NoError(t, c.Skip(4))
	out, err := c.ReadBytes(8)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF}, out)
}

func TestReadFloat(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		nbits    int
		expected float64
	}{
		{"float32 1.0", []byte{0x3F, 0x80, 0x00, 0x00}, 32, 1.0},
		{"float32 -2.5", []byte{0xC0, 0x20, 0x00, 0x00}, 32, -2.5},
		{"float64 1.5", []byte{0x3F, 0xF8, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, 64, 1.5},
		{"float16 1.0", []byte{0x3C, 0x00}, 16, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCursor(tt.data)
			v, err := c.ReadFloat(tt.nbits)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, v, 1e-9)
		})
	}
}

func TestReadFloatBadWidth(t *testing.T) {
	_, err := DecodeFloat(0, 24)
	assert.Error(t, err)
}

func TestReadString(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		charset  Charset
		expected string
	}{
		{"utf-8", []byte("OK!"), UTF8, "OK!"},
		{"utf-16le", []byte{0x41, 0x00, 0x42, 0x00}, UTF16LE, "AB"},
		{"utf-16be", []byte{0x00, 0x41, 0x00, 0x42}, UTF16BE, "AB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCursor(tt.data)
			s, err := c.ReadString(len(tt.data)*8, tt.charset)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, s)
		})
	}
}

func TestSkipAndRemaining(t *testing.T) {
	c := NewCursor(make([]byte, 4))
	require.NoError(t, c.Skip(13))
	assert.Equal(t, 13, c.Position())
	assert.Equal(t, 19, c.Remaining())
	assert.Error(t, c.Skip(20))
}

func TestReverseBytes(t *testing.T) {
	assert.Equal(t, uint64(0x3412), ReverseBytes(0x1234, 16))
	assert.Equal(t, uint64(0x563412), ReverseBytes(0x123456, 24))
	assert.Equal(t, uint64(0x12), ReverseBytes(0x12, 8))
}
