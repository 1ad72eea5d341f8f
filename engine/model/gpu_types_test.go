package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloat16(t *testing.T) {
	cases := []struct {
		in   float32
		want uint16
	}{
		{0, 0x0000},
		{float32(math.Copysign(0, -1)), 0x8000},
		{1, 0x3c00},
		{0.5, 0x3800},
		{-2, 0xc000},
		{65504, 0x7bff},
		{1e6, 0x7c00},
		{float32(math.Inf(-1)), 0xfc00},
		{float32(math.Pow(2, -24)), 0x0001},
		{float32(math.Pow(2, -26)), 0x0000},
		{1 + 1.0/2048, 0x3c00}, // tie rounds to even
		{1 + 3.0/2048, 0x3c02}, // tie rounds up to even
		{0.333333333, 0x3555},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Float16(c.in), "Float16(%v)", c.in)
	}
	assert.Equal(t, uint16(0x7e00), Float16(float32(math.NaN())))
}

func TestPackHalf2x16(t *testing.T) {
	assert.Equal(t, uint32(0x38003c00), PackHalf2x16([2]float32{1, 0.5}))
}

func TestPackPositionRange(t *testing.T) {
	q := PackPosition([3]float32{0, 0, 0}, 1)
	assert.Equal(t, [4]uint16{32768, 32768, 32768, 1}, q)

	q = PackPosition([3]float32{-4, 2, 4}, 4)
	assert.Equal(t, uint16(0), q[0])
	assert.Equal(t, uint16(65535), q[2])
	assert.Equal(t, uint16(65535), q[3])
	assert.InDeltaSlice(t, []float32{-4, 2, 4}, toSlice(UnpackPosition(q, 4)), 4.0/65535*2)
}

func TestPackNormal(t *testing.T) {
	assert.Equal(t, [4]byte{0, 128, 255, 128}, PackNormal([3]float32{-1, 0, 1}))
}

func TestAttributeStrides(t *testing.T) {
	assert.Equal(t, uint64(8), AttributePosition.stride())
	assert.Equal(t, uint64(4), AttributeTexCoord.stride())
	assert.Equal(t, uint64(4), AttributeNormal.stride())
	assert.Equal(t, "texcoord", AttributeTexCoord.String())
}

func toSlice(v [3]float32) []float32 { return v[:] }
