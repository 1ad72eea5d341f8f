package common

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	assert.Equal(t, uint64(0), Hash(""))
	assert.Equal(t, uint64('A'), Hash("A"))
	assert.Equal(t, uint64(4264001), Hash("AB"))
	assert.Equal(t, Hash("Albedo"), HashBytes([]byte("Albedo")))
	assert.NotEqual(t, Hash("Albedo"), Hash("albedo"))
	// 0xC3 0xA9 folds in as 195 and 169
	assert.Equal(t, uint64(169)+(uint64(195)<<6)+(uint64(195)<<16)-195, Hash("é"))
}

func TestAlignUp(t *testing.T) {
	tests := []struct {
		v, align, want uint64
	}{
		{0, 256, 0},
		{1, 256, 256},
		{256, 256, 256},
		{257, 256, 512},
		{13, 0, 13},
		{13, 1, 13},
		{13, 4, 16},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AlignUp(tt.v, tt.align), "AlignUp(%d, %d)", tt.v, tt.align)
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	assert.True(t, IsPowerOfTwo(1))
	assert.True(t, IsPowerOfTwo(1<<20))
	assert.False(t, IsPowerOfTwo(0))
	assert.False(t, IsPowerOfTwo(96))
}

func TestMipCount(t *testing.T) {
	assert.Equal(t, uint32(1), MipCount(1, 1))
	assert.Equal(t, uint32(9), MipCount(256, 256))
	assert.Equal(t, uint32(10), MipCount(512, 3))
	assert.Equal(t, uint32(11), MipCount(1366, 768))
	assert.Equal(t, uint32(1), MipExtent(3, 5))
	assert.Equal(t, uint32(170), MipExtent(1366, 3))
}

func TestBlobPath(t *testing.T) {
	assert.Equal(t, filepath.Join("Data", "Techniques", "Quad.json.blob"), BlobPath("Data", "../Techniques/Quad.json"))
	assert.Equal(t, filepath.Join("Data", "Assets", "tex.png.blob"), BlobPath("Data", `.\Assets\tex.png`))
	assert.Equal(t, filepath.Join("cache", "a.json.blob"), BlobPath("cache", "a.json"))
}

func TestCoalesce(t *testing.T) {
	assert.Equal(t, 3, Coalesce(0, 3, 4))
	assert.Equal(t, "", Coalesce[string]())
}

func TestDecodeImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.Set(0, 0, color.NRGBA{R: 255, A: 255})
	src.Set(2, 1, color.NRGBA{B: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	img, err := DecodeImage(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint32(3), img.Width)
	assert.Equal(t, uint32(2), img.Height)
	require.Len(t, img.Pixels, 3*2*4)
	assert.Equal(t, []byte{255, 0, 0, 255}, img.Pixels[0:4])
	assert.Equal(t, []byte{0, 0, 255, 255}, img.Pixels[20:24])

	_, err = DecodeImage([]byte("not an image"))
	assert.Error(t, err)
}

func TestMat4(t *testing.T) {
	id := Identity()
	r := RotationZ(0.5)
	assert.Equal(t, r, id.Mul(r))
	assert.Equal(t, r, r.Mul(id))

	v := LookAt(Vec3{0, 0, 5}, Vec3{0, 0, 0}, Vec3{0, 1, 0})
	assert.InDelta(t, -5, v[14], 1e-5)
	assert.InDelta(t, 1, v[0], 1e-5)
}

func TestRotationY(t *testing.T) {
	r := RotationY(math32.Pi / 2)
	// first column is the rotated +X axis
	assert.InDelta(t, 0, r[0], 1e-6)
	assert.InDelta(t, -1, r[2], 1e-6)
	assert.InDelta(t, 1, r[8], 1e-6)
	assert.Equal(t, float32(1), r[5])
}
