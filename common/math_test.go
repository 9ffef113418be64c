package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceToBytes(t *testing.T) {
	assert.Nil(t, SliceToBytes([]float32(nil)))
	assert.Nil(t, SliceToBytes([]uint32{}))

	b := SliceToBytes([]uint32{0x04030201, 0x08070605})
	require.Len(t, b, 8)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, b)

	// The byte view aliases the source slice.
	src := []uint16{0xffff}
	view := SliceToBytes(src)
	src[0] = 0
	assert.Equal(t, []byte{0, 0}, view)
}

func TestStructToBytes(t *testing.T) {
	type block struct {
		A uint32
		B uint32
	}
	v := block{A: 1, B: 0x0100}
	b := StructToBytes(&v)
	require.Len(t, b, 8)
	assert.Equal(t, byte(1), b[0])
	assert.Equal(t, byte(1), b[5])
}
