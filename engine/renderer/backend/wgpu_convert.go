package backend

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/gputypes"
)

// The gputypes and wgpu enum values do not share a numbering, so every enum crossing into wgpu goes through an
// explicit table. Bit flag sets (usages, shader stages, write masks) use the same bits on both sides and are cast.

var textureFormats = map[gputypes.TextureFormat]wgpu.TextureFormat{
	gputypes.TextureFormatR8Unorm:              wgpu.TextureFormatR8Unorm,
	gputypes.TextureFormatRG8Unorm:             wgpu.TextureFormatRG8Unorm,
	gputypes.TextureFormatRGBA8Unorm:           wgpu.TextureFormatRGBA8Unorm,
	gputypes.TextureFormatRGBA8UnormSrgb:       wgpu.TextureFormatRGBA8UnormSrgb,
	gputypes.TextureFormatBGRA8Unorm:           wgpu.TextureFormatBGRA8Unorm,
	gputypes.TextureFormatBGRA8UnormSrgb:       wgpu.TextureFormatBGRA8UnormSrgb,
	gputypes.TextureFormatR16Float:             wgpu.TextureFormatR16Float,
	gputypes.TextureFormatRG16Float:            wgpu.TextureFormatRG16Float,
	gputypes.TextureFormatRGBA16Float:          wgpu.TextureFormatRGBA16Float,
	gputypes.TextureFormatR32Float:             wgpu.TextureFormatR32Float,
	gputypes.TextureFormatRG32Float:            wgpu.TextureFormatRG32Float,
	gputypes.TextureFormatRGBA32Float:          wgpu.TextureFormatRGBA32Float,
	gputypes.TextureFormatR32Uint:              wgpu.TextureFormatR32Uint,
	gputypes.TextureFormatRGB10A2Unorm:         wgpu.TextureFormatRGB10A2Unorm,
	gputypes.TextureFormatRG11B10Ufloat:        wgpu.TextureFormatRG11B10Ufloat,
	gputypes.TextureFormatStencil8:             wgpu.TextureFormatStencil8,
	gputypes.TextureFormatDepth16Unorm:         wgpu.TextureFormatDepth16Unorm,
	gputypes.TextureFormatDepth24Plus:          wgpu.TextureFormatDepth24Plus,
	gputypes.TextureFormatDepth24PlusStencil8:  wgpu.TextureFormatDepth24PlusStencil8,
	gputypes.TextureFormatDepth32Float:         wgpu.TextureFormatDepth32Float,
	gputypes.TextureFormatDepth32FloatStencil8: wgpu.TextureFormatDepth32FloatStencil8,
}

func toWGPUTextureFormat(f gputypes.TextureFormat) wgpu.TextureFormat {
	if f == gputypes.TextureFormatUndefined {
		return wgpu.TextureFormatUndefined
	}
	out, ok := textureFormats[f]
	if !ok {
		panic(fmt.Sprintf("backend: texture format %s is not supported", f))
	}
	return out
}

func fromWGPUTextureFormat(f wgpu.TextureFormat) gputypes.TextureFormat {
	for k, v := range textureFormats {
		if v == f {
			return k
		}
	}
	return gputypes.TextureFormatUndefined
}

var vertexFormats = map[gputypes.VertexFormat]wgpu.VertexFormat{
	gputypes.VertexFormatUint8x2:   wgpu.VertexFormatUint8x2,
	gputypes.VertexFormatUint8x4:   wgpu.VertexFormatUint8x4,
	gputypes.VertexFormatSint8x2:   wgpu.VertexFormatSint8x2,
	gputypes.VertexFormatSint8x4:   wgpu.VertexFormatSint8x4,
	gputypes.VertexFormatUnorm8x2:  wgpu.VertexFormatUnorm8x2,
	gputypes.VertexFormatUnorm8x4:  wgpu.VertexFormatUnorm8x4,
	gputypes.VertexFormatSnorm8x2:  wgpu.VertexFormatSnorm8x2,
	gputypes.VertexFormatSnorm8x4:  wgpu.VertexFormatSnorm8x4,
	gputypes.VertexFormatUint16x2:  wgpu.VertexFormatUint16x2,
	gputypes.VertexFormatUint16x4:  wgpu.VertexFormatUint16x4,
	gputypes.VertexFormatSint16x2:  wgpu.VertexFormatSint16x2,
	gputypes.VertexFormatSint16x4:  wgpu.VertexFormatSint16x4,
	gputypes.VertexFormatUnorm16x2: wgpu.VertexFormatUnorm16x2,
	gputypes.VertexFormatUnorm16x4: wgpu.VertexFormatUnorm16x4,
	gputypes.VertexFormatSnorm16x2: wgpu.VertexFormatSnorm16x2,
	gputypes.VertexFormatSnorm16x4: wgpu.VertexFormatSnorm16x4,
	gputypes.VertexFormatFloat16x2: wgpu.VertexFormatFloat16x2,
	gputypes.VertexFormatFloat16x4: wgpu.VertexFormatFloat16x4,
	gputypes.VertexFormatFloat32:   wgpu.VertexFormatFloat32,
	gputypes.VertexFormatFloat32x2: wgpu.VertexFormatFloat32x2,
	gputypes.VertexFormatFloat32x3: wgpu.VertexFormatFloat32x3,
	gputypes.VertexFormatFloat32x4: wgpu.VertexFormatFloat32x4,
	gputypes.VertexFormatUint32:    wgpu.VertexFormatUint32,
	gputypes.VertexFormatUint32x2:  wgpu.VertexFormatUint32x2,
	gputypes.VertexFormatUint32x3:  wgpu.VertexFormatUint32x3,
	gputypes.VertexFormatUint32x4:  wgpu.VertexFormatUint32x4,
	gputypes.VertexFormatSint32:    wgpu.VertexFormatSint32,
	gputypes.VertexFormatSint32x2:  wgpu.VertexFormatSint32x2,
	gputypes.VertexFormatSint32x3:  wgpu.VertexFormatSint32x3,
	gputypes.VertexFormatSint32x4:  wgpu.VertexFormatSint32x4,
}

func toWGPUVertexFormat(f gputypes.VertexFormat) wgpu.VertexFormat {
	out, ok := vertexFormats[f]
	if !ok {
		panic(fmt.Sprintf("backend: vertex format %s is not supported", f))
	}
	return out
}

func toWGPUBlendFactor(f gputypes.BlendFactor) wgpu.BlendFactor {
	switch f {
	case gputypes.BlendFactorZero:
		return wgpu.BlendFactorZero
	case gputypes.BlendFactorSrc:
		return wgpu.BlendFactorSrc
	case gputypes.BlendFactorOneMinusSrc:
		return wgpu.BlendFactorOneMinusSrc
	case gputypes.BlendFactorSrcAlpha:
		return wgpu.BlendFactorSrcAlpha
	case gputypes.BlendFactorOneMinusSrcAlpha:
		return wgpu.BlendFactorOneMinusSrcAlpha
	case gputypes.BlendFactorDst:
		return wgpu.BlendFactorDst
	case gputypes.BlendFactorOneMinusDst:
		return wgpu.BlendFactorOneMinusDst
	case gputypes.BlendFactorDstAlpha:
		return wgpu.BlendFactorDstAlpha
	case gputypes.BlendFactorOneMinusDstAlpha:
		return wgpu.BlendFactorOneMinusDstAlpha
	case gputypes.BlendFactorSrcAlphaSaturated:
		return wgpu.BlendFactorSrcAlphaSaturated
	case gputypes.BlendFactorConstant:
		return wgpu.BlendFactorConstant
	case gputypes.BlendFactorOneMinusConstant:
		return wgpu.BlendFactorOneMinusConstant
	default:
		return wgpu.BlendFactorOne
	}
}

func toWGPUBlendOperation(op gputypes.BlendOperation) wgpu.BlendOperation {
	switch op {
	case gputypes.BlendOperationSubtract:
		return wgpu.BlendOperationSubtract
	case gputypes.BlendOperationReverseSubtract:
		return wgpu.BlendOperationReverseSubtract
	case gputypes.BlendOperationMin:
		return wgpu.BlendOperationMin
	case gputypes.BlendOperationMax:
		return wgpu.BlendOperationMax
	default:
		return wgpu.BlendOperationAdd
	}
}

func toWGPUCompareFunction(f gputypes.CompareFunction) wgpu.CompareFunction {
	switch f {
	case gputypes.CompareFunctionNever:
		return wgpu.CompareFunctionNever
	case gputypes.CompareFunctionLess:
		return wgpu.CompareFunctionLess
	case gputypes.CompareFunctionEqual:
		return wgpu.CompareFunctionEqual
	case gputypes.CompareFunctionLessEqual:
		return wgpu.CompareFunctionLessEqual
	case gputypes.CompareFunctionGreater:
		return wgpu.CompareFunctionGreater
	case gputypes.CompareFunctionNotEqual:
		return wgpu.CompareFunctionNotEqual
	case gputypes.CompareFunctionGreaterEqual:
		return wgpu.CompareFunctionGreaterEqual
	case gputypes.CompareFunctionAlways:
		return wgpu.CompareFunctionAlways
	default:
		return wgpu.CompareFunctionUndefined
	}
}

func toWGPUStencilOperation(op gputypes.StencilOperation) wgpu.StencilOperation {
	switch op {
	case gputypes.StencilOperationZero:
		return wgpu.StencilOperationZero
	case gputypes.StencilOperationReplace:
		return wgpu.StencilOperationReplace
	case gputypes.StencilOperationInvert:
		return wgpu.StencilOperationInvert
	case gputypes.StencilOperationIncrementClamp:
		return wgpu.StencilOperationIncrementClamp
	case gputypes.StencilOperationDecrementClamp:
		return wgpu.StencilOperationDecrementClamp
	case gputypes.StencilOperationIncrementWrap:
		return wgpu.StencilOperationIncrementWrap
	case gputypes.StencilOperationDecrementWrap:
		return wgpu.StencilOperationDecrementWrap
	default:
		return wgpu.StencilOperationKeep
	}
}

func toWGPUStencilFace(s gputypes.StencilFaceState) wgpu.StencilFaceState {
	return wgpu.StencilFaceState{
		Compare:     toWGPUCompareFunction(s.Compare),
		FailOp:      toWGPUStencilOperation(s.FailOp),
		DepthFailOp: toWGPUStencilOperation(s.DepthFailOp),
		PassOp:      toWGPUStencilOperation(s.PassOp),
	}
}

func toWGPUTopology(t gputypes.PrimitiveTopology) wgpu.PrimitiveTopology {
	switch t {
	case gputypes.PrimitiveTopologyPointList:
		return wgpu.PrimitiveTopologyPointList
	case gputypes.PrimitiveTopologyLineList:
		return wgpu.PrimitiveTopologyLineList
	case gputypes.PrimitiveTopologyLineStrip:
		return wgpu.PrimitiveTopologyLineStrip
	case gputypes.PrimitiveTopologyTriangleStrip:
		return wgpu.PrimitiveTopologyTriangleStrip
	default:
		return wgpu.PrimitiveTopologyTriangleList
	}
}

func toWGPUFrontFace(f gputypes.FrontFace) wgpu.FrontFace {
	if f == gputypes.FrontFaceCW {
		return wgpu.FrontFaceCW
	}
	return wgpu.FrontFaceCCW
}

func toWGPUCullMode(m gputypes.CullMode) wgpu.CullMode {
	switch m {
	case gputypes.CullModeFront:
		return wgpu.CullModeFront
	case gputypes.CullModeBack:
		return wgpu.CullModeBack
	default:
		return wgpu.CullModeNone
	}
}

func toWGPUIndexFormat(f gputypes.IndexFormat) wgpu.IndexFormat {
	switch f {
	case gputypes.IndexFormatUint16:
		return wgpu.IndexFormatUint16
	case gputypes.IndexFormatUint32:
		return wgpu.IndexFormatUint32
	default:
		return wgpu.IndexFormatUndefined
	}
}

func toWGPUStepMode(m gputypes.VertexStepMode) wgpu.VertexStepMode {
	if m == gputypes.VertexStepModeInstance {
		return wgpu.VertexStepModeInstance
	}
	return wgpu.VertexStepModeVertex
}

func toWGPUAddressMode(m gputypes.AddressMode) wgpu.AddressMode {
	switch m {
	case gputypes.AddressModeRepeat:
		return wgpu.AddressModeRepeat
	case gputypes.AddressModeMirrorRepeat:
		return wgpu.AddressModeMirrorRepeat
	default:
		return wgpu.AddressModeClampToEdge
	}
}

func toWGPUFilterMode(m gputypes.FilterMode) wgpu.FilterMode {
	if m == gputypes.FilterModeNearest {
		return wgpu.FilterModeNearest
	}
	return wgpu.FilterModeLinear
}

func toWGPUMipmapFilterMode(m gputypes.MipmapFilterMode) wgpu.MipmapFilterMode {
	if m == gputypes.MipmapFilterModeNearest {
		return wgpu.MipmapFilterModeNearest
	}
	return wgpu.MipmapFilterModeLinear
}

func toWGPUTextureDimension(t TextureType) wgpu.TextureDimension {
	switch t {
	case TextureType1D:
		return wgpu.TextureDimension1D
	case TextureType3D:
		return wgpu.TextureDimension3D
	default:
		return wgpu.TextureDimension2D
	}
}

func toWGPUViewDimension(t TextureType) wgpu.TextureViewDimension {
	switch t {
	case TextureType1D:
		return wgpu.TextureViewDimension1D
	case TextureType3D:
		return wgpu.TextureViewDimension3D
	case TextureTypeCube:
		return wgpu.TextureViewDimensionCube
	case TextureType2DArray:
		return wgpu.TextureViewDimension2DArray
	case TextureTypeCubeArray:
		return wgpu.TextureViewDimensionCubeArray
	default:
		return wgpu.TextureViewDimension2D
	}
}

func toWGPUPresentMode(m gputypes.PresentMode) wgpu.PresentMode {
	switch m {
	case gputypes.PresentModeImmediate:
		return wgpu.PresentModeImmediate
	case gputypes.PresentModeMailbox:
		return wgpu.PresentModeMailbox
	case gputypes.PresentModeFifoRelaxed:
		return wgpu.PresentModeFifoRelaxed
	default:
		return wgpu.PresentModeFifo
	}
}

func toWGPUColor(c gputypes.Color) wgpu.Color {
	return wgpu.Color{R: c.R, G: c.G, B: c.B, A: c.A}
}

// toWGPUBindGroupLayoutEntry maps a binding slot to the wgpu layout entry the WGSL generator's declaration expects.
func toWGPUBindGroupLayoutEntry(e BindGroupLayoutEntry) wgpu.BindGroupLayoutEntry {
	out := wgpu.BindGroupLayoutEntry{
		Binding:    e.Binding,
		Visibility: wgpu.ShaderStage(e.Visibility),
	}
	switch e.Kind {
	case DescriptorKindSampler:
		out.Sampler = wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering}
	case DescriptorKindSampledTexture:
		out.Texture = wgpu.TextureBindingLayout{
			SampleType:    wgpu.TextureSampleTypeFloat,
			ViewDimension: toWGPUViewDimension(e.TextureType),
		}
	case DescriptorKindStorageTexture:
		out.StorageTexture = wgpu.StorageTextureBindingLayout{
			Access:        wgpu.StorageTextureAccessWriteOnly,
			Format:        toWGPUTextureFormat(e.StorageFormat),
			ViewDimension: toWGPUViewDimension(e.TextureType),
		}
	case DescriptorKindUniformBuffer:
		out.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}
	case DescriptorKindStorageBuffer:
		out.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}
		if e.ReadOnly {
			out.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		}
	}
	return out
}
