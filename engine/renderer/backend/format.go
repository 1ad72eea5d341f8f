package backend

import (
	"github.com/gogpu/gputypes"
)

// TexelSize returns the size in bytes of one texel of an uncompressed color or depth format, or 0 when the format
// is not one the renderer can upload to.
func TexelSize(format gputypes.TextureFormat) uint32 {
	switch format {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatStencil8:
		return 1
	case gputypes.TextureFormatRG8Unorm, gputypes.TextureFormatR16Float, gputypes.TextureFormatDepth16Unorm:
		return 2
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatRG16Float, gputypes.TextureFormatR32Float, gputypes.TextureFormatR32Uint,
		gputypes.TextureFormatRGB10A2Unorm, gputypes.TextureFormatRG11B10Ufloat,
		gputypes.TextureFormatDepth24Plus, gputypes.TextureFormatDepth24PlusStencil8, gputypes.TextureFormatDepth32Float:
		return 4
	case gputypes.TextureFormatRGBA16Float, gputypes.TextureFormatRG32Float, gputypes.TextureFormatDepth32FloatStencil8:
		return 8
	case gputypes.TextureFormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

// IsDepthFormat reports whether format has a depth or stencil aspect.
func IsDepthFormat(format gputypes.TextureFormat) bool {
	return format.IsDepthStencil()
}

// ViewDimension maps a TextureType to the view dimension of its default view.
func ViewDimension(t TextureType) gputypes.TextureViewDimension {
	switch t {
	case TextureType1D:
		return gputypes.TextureViewDimension1D
	case TextureType3D:
		return gputypes.TextureViewDimension3D
	case TextureTypeCube:
		return gputypes.TextureViewDimensionCube
	case TextureType2DArray:
		return gputypes.TextureViewDimension2DArray
	case TextureTypeCubeArray:
		return gputypes.TextureViewDimensionCubeArray
	default:
		return gputypes.TextureViewDimension2D
	}
}
