package renderer

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-gfx/common"
)

// textureBlobHeader is checksum u64, width u32, height u32 and the pixel byte count u64.
const textureBlobHeader = 8 + 4 + 4 + 8

var errCorruptTextureBlob = errors.New("corrupt texture blob")

// textureBlob is a decoded image in its cached form: tightly packed RGBA8 pixels of mip 0.
type textureBlob struct {
	checksum uint64
	width    uint32
	height   uint32
	pixels   []byte
}

func encodeTextureBlob(checksum uint64, img common.DecodedImage) []byte {
	out := make([]byte, 0, textureBlobHeader+len(img.Pixels))
	out = binary.LittleEndian.AppendUint64(out, checksum)
	out = binary.LittleEndian.AppendUint32(out, img.Width)
	out = binary.LittleEndian.AppendUint32(out, img.Height)
	out = binary.LittleEndian.AppendUint64(out, uint64(len(img.Pixels)))
	return append(out, img.Pixels...)
}

func decodeTextureBlob(data []byte) (*textureBlob, error) {
	if len(data) < textureBlobHeader {
		return nil, fmt.Errorf("%d byte header: %w", len(data), errCorruptTextureBlob)
	}
	b := &textureBlob{
		checksum: binary.LittleEndian.Uint64(data),
		width:    binary.LittleEndian.Uint32(data[8:]),
		height:   binary.LittleEndian.Uint32(data[12:]),
	}
	size := binary.LittleEndian.Uint64(data[16:])
	if size != uint64(len(data)-textureBlobHeader) || size != uint64(b.width)*uint64(b.height)*4 {
		return nil, fmt.Errorf("%dx%d image with %d pixel bytes: %w", b.width, b.height, size, errCorruptTextureBlob)
	}
	if b.width == 0 || b.height == 0 {
		return nil, fmt.Errorf("empty image: %w", errCorruptTextureBlob)
	}
	b.pixels = data[textureBlobHeader:]
	return b, nil
}
