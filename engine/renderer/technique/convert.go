package technique

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
	"github.com/gogpu/gputypes"
)

// BackBufferAttachment is the color attachment name that binds the swapchain image instead of a fixed format.
const BackBufferAttachment = "back_buffer"

// textureFormats maps attachment and storage image format names to texture formats.
var textureFormats = map[string]gputypes.TextureFormat{
	"r8_unorm":            gputypes.TextureFormatR8Unorm,
	"r8g8_unorm":          gputypes.TextureFormatRG8Unorm,
	"r8g8b8a8_unorm":      gputypes.TextureFormatRGBA8Unorm,
	"r8g8b8a8_srgb":       gputypes.TextureFormatRGBA8UnormSrgb,
	"b8g8r8a8_unorm":      gputypes.TextureFormatBGRA8Unorm,
	"b8g8r8a8_srgb":       gputypes.TextureFormatBGRA8UnormSrgb,
	"r10g10b10a2_unorm":   gputypes.TextureFormatRGB10A2Unorm,
	"r16_sfloat":          gputypes.TextureFormatR16Float,
	"r16g16_sfloat":       gputypes.TextureFormatRG16Float,
	"r16g16b16a16_sfloat": gputypes.TextureFormatRGBA16Float,
	"r32_uint":            gputypes.TextureFormatR32Uint,
	"r32_sfloat":          gputypes.TextureFormatR32Float,
	"r32g32_sfloat":       gputypes.TextureFormatRG32Float,
	"r32g32b32a32_sfloat": gputypes.TextureFormatRGBA32Float,
	"r11g11b10_ufloat":    gputypes.TextureFormatRG11B10Ufloat,
	"d16_unorm":           gputypes.TextureFormatDepth16Unorm,
	"d32_sfloat":          gputypes.TextureFormatDepth32Float,
	"d24_unorm_s8_uint":   gputypes.TextureFormatDepth24PlusStencil8,
	"d32_sfloat_s8_uint":  gputypes.TextureFormatDepth32FloatStencil8,
	"s8_uint":             gputypes.TextureFormatStencil8,
}

// storageImageFormats maps storage image formats to their WGSL texel format. GLSL layout qualifier spellings are
// accepted as aliases.
var storageImageFormats = map[gputypes.TextureFormat]string{
	gputypes.TextureFormatRGBA8Unorm:  "rgba8unorm",
	gputypes.TextureFormatBGRA8Unorm:  "bgra8unorm",
	gputypes.TextureFormatRGBA16Float: "rgba16float",
	gputypes.TextureFormatR32Float:    "r32float",
	gputypes.TextureFormatR32Uint:     "r32uint",
	gputypes.TextureFormatRG32Float:   "rg32float",
	gputypes.TextureFormatRGBA32Float: "rgba32float",
}

var storageImageAliases = map[string]gputypes.TextureFormat{
	"rgba8":   gputypes.TextureFormatRGBA8Unorm,
	"rgba16f": gputypes.TextureFormatRGBA16Float,
	"r32f":    gputypes.TextureFormatR32Float,
	"r32ui":   gputypes.TextureFormatR32Uint,
	"rg32f":   gputypes.TextureFormatRG32Float,
	"rgba32f": gputypes.TextureFormatRGBA32Float,
}

// vertexFormat is a vertex attribute format together with the WGSL type the shader reads it as.
type vertexFormat struct {
	format   gputypes.VertexFormat
	size     uint32
	wgslType string
}

var vertexFormats = map[string]vertexFormat{
	"r32_sfloat":          {gputypes.VertexFormatFloat32, 4, "f32"},
	"r32g32_sfloat":       {gputypes.VertexFormatFloat32x2, 8, "vec2<f32>"},
	"r32g32b32_sfloat":    {gputypes.VertexFormatFloat32x3, 12, "vec3<f32>"},
	"r32g32b32a32_sfloat": {gputypes.VertexFormatFloat32x4, 16, "vec4<f32>"},
	"r32_uint":            {gputypes.VertexFormatUint32, 4, "u32"},
	"r32g32_uint":         {gputypes.VertexFormatUint32x2, 8, "vec2<u32>"},
	"r32g32b32_uint":      {gputypes.VertexFormatUint32x3, 12, "vec3<u32>"},
	"r32g32b32a32_uint":   {gputypes.VertexFormatUint32x4, 16, "vec4<u32>"},
	"r32_sint":            {gputypes.VertexFormatSint32, 4, "i32"},
	"r32g32_sint":         {gputypes.VertexFormatSint32x2, 8, "vec2<i32>"},
	"r32g32b32_sint":      {gputypes.VertexFormatSint32x3, 12, "vec3<i32>"},
	"r32g32b32a32_sint":   {gputypes.VertexFormatSint32x4, 16, "vec4<i32>"},
	"r8g8_unorm":          {gputypes.VertexFormatUnorm8x2, 2, "vec2<f32>"},
	"r8g8b8a8_unorm":      {gputypes.VertexFormatUnorm8x4, 4, "vec4<f32>"},
	"r8g8_snorm":          {gputypes.VertexFormatSnorm8x2, 2, "vec2<f32>"},
	"r8g8b8a8_snorm":      {gputypes.VertexFormatSnorm8x4, 4, "vec4<f32>"},
	"r8g8_uint":           {gputypes.VertexFormatUint8x2, 2, "vec2<u32>"},
	"r8g8b8a8_uint":       {gputypes.VertexFormatUint8x4, 4, "vec4<u32>"},
	"r8g8_sint":           {gputypes.VertexFormatSint8x2, 2, "vec2<i32>"},
	"r8g8b8a8_sint":       {gputypes.VertexFormatSint8x4, 4, "vec4<i32>"},
	"r16g16_unorm":        {gputypes.VertexFormatUnorm16x2, 4, "vec2<f32>"},
	"r16g16b16a16_unorm":  {gputypes.VertexFormatUnorm16x4, 8, "vec4<f32>"},
	"r16g16_snorm":        {gputypes.VertexFormatSnorm16x2, 4, "vec2<f32>"},
	"r16g16b16a16_snorm":  {gputypes.VertexFormatSnorm16x4, 8, "vec4<f32>"},
	"r16g16_uint":         {gputypes.VertexFormatUint16x2, 4, "vec2<u32>"},
	"r16g16b16a16_uint":   {gputypes.VertexFormatUint16x4, 8, "vec4<u32>"},
	"r16g16_sint":         {gputypes.VertexFormatSint16x2, 4, "vec2<i32>"},
	"r16g16b16a16_sint":   {gputypes.VertexFormatSint16x4, 8, "vec4<i32>"},
	"r16g16_sfloat":       {gputypes.VertexFormatFloat16x2, 4, "vec2<f32>"},
	"r16g16b16a16_sfloat": {gputypes.VertexFormatFloat16x4, 8, "vec4<f32>"},
}

// vertexFormatInfo looks up a vertex format by its gputypes value.
func vertexFormatInfo(f gputypes.VertexFormat) (vertexFormat, bool) {
	for _, info := range vertexFormats {
		if info.format == f {
			return info, true
		}
	}
	return vertexFormat{}, false
}

// outputTypes maps GLSL style varying and output type names to WGSL. Names not listed are taken to be WGSL already.
var outputTypes = map[string]string{
	"float": "f32",
	"vec2":  "vec2<f32>",
	"vec3":  "vec3<f32>",
	"vec4":  "vec4<f32>",
	"uint":  "u32",
	"uvec2": "vec2<u32>",
	"uvec3": "vec3<u32>",
	"uvec4": "vec4<u32>",
	"int":   "i32",
	"ivec2": "vec2<i32>",
	"ivec3": "vec3<i32>",
	"ivec4": "vec4<i32>",
}

// bindingType is the descriptor kind and view type of a shader_bindings type name.
type bindingType struct {
	kind        backend.DescriptorKind
	textureType backend.TextureType
}

var bindingTypes = map[string]bindingType{
	"sampler":     {backend.DescriptorKindSampler, backend.TextureType2D},
	"texture1d":   {backend.DescriptorKindSampledTexture, backend.TextureType1D},
	"texture2d":   {backend.DescriptorKindSampledTexture, backend.TextureType2D},
	"texture3d":   {backend.DescriptorKindSampledTexture, backend.TextureType3D},
	"texturecube": {backend.DescriptorKindSampledTexture, backend.TextureTypeCube},
	"image1d":     {backend.DescriptorKindStorageTexture, backend.TextureType1D},
	"image2d":     {backend.DescriptorKindStorageTexture, backend.TextureType2D},
	"image3d":     {backend.DescriptorKindStorageTexture, backend.TextureType3D},
	"cbuffer":     {backend.DescriptorKindUniformBuffer, backend.TextureType2D},
	"buffer":      {backend.DescriptorKindStorageBuffer, backend.TextureType2D},
}

var topologies = map[string]gputypes.PrimitiveTopology{
	"point_list":     gputypes.PrimitiveTopologyPointList,
	"line_list":      gputypes.PrimitiveTopologyLineList,
	"line_strip":     gputypes.PrimitiveTopologyLineStrip,
	"triangle_list":  gputypes.PrimitiveTopologyTriangleList,
	"triangle_strip": gputypes.PrimitiveTopologyTriangleStrip,
}

var polygonModes = map[string]backend.PolygonMode{
	"fill":  backend.PolygonModeFill,
	"line":  backend.PolygonModeLine,
	"point": backend.PolygonModePoint,
}

var cullModes = map[string]gputypes.CullMode{
	"none":  gputypes.CullModeNone,
	"front": gputypes.CullModeFront,
	"back":  gputypes.CullModeBack,
}

var frontFaces = map[string]gputypes.FrontFace{
	"counter_clockwise": gputypes.FrontFaceCCW,
	"clockwise":         gputypes.FrontFaceCW,
}

var compareFunctions = map[string]gputypes.CompareFunction{
	"never":         gputypes.CompareFunctionNever,
	"less":          gputypes.CompareFunctionLess,
	"equal":         gputypes.CompareFunctionEqual,
	"less_equal":    gputypes.CompareFunctionLessEqual,
	"greater":       gputypes.CompareFunctionGreater,
	"not_equal":     gputypes.CompareFunctionNotEqual,
	"greater_equal": gputypes.CompareFunctionGreaterEqual,
	"always":        gputypes.CompareFunctionAlways,
}

var stencilOperations = map[string]gputypes.StencilOperation{
	"keep":                gputypes.StencilOperationKeep,
	"zero":                gputypes.StencilOperationZero,
	"replace":             gputypes.StencilOperationReplace,
	"increment_and_clamp": gputypes.StencilOperationIncrementClamp,
	"decrement_and_clamp": gputypes.StencilOperationDecrementClamp,
	"invert":              gputypes.StencilOperationInvert,
	"increment_and_wrap":  gputypes.StencilOperationIncrementWrap,
	"decrement_and_wrap":  gputypes.StencilOperationDecrementWrap,
}

var blendFactors = map[string]gputypes.BlendFactor{
	"zero":          gputypes.BlendFactorZero,
	"one":           gputypes.BlendFactorOne,
	"src_color":     gputypes.BlendFactorSrc,
	"inv_src_color": gputypes.BlendFactorOneMinusSrc,
	"dst_color":     gputypes.BlendFactorDst,
	"inv_dst_color": gputypes.BlendFactorOneMinusDst,
	"src_alpha":     gputypes.BlendFactorSrcAlpha,
	"inv_src_alpha": gputypes.BlendFactorOneMinusSrcAlpha,
	"dst_alpha":     gputypes.BlendFactorDstAlpha,
	"inv_dst_alpha": gputypes.BlendFactorOneMinusDstAlpha,
}

var blendOperations = map[string]gputypes.BlendOperation{
	"add":          gputypes.BlendOperationAdd,
	"subtract":     gputypes.BlendOperationSubtract,
	"rev_subtract": gputypes.BlendOperationReverseSubtract,
	"min":          gputypes.BlendOperationMin,
	"max":          gputypes.BlendOperationMax,
}

var stepModes = map[string]gputypes.VertexStepMode{
	"vertex":   gputypes.VertexStepModeVertex,
	"instance": gputypes.VertexStepModeInstance,
}

// unsupported names format and topology values of the technique format that WebGPU cannot express, so they fail
// with a clearer message than an unknown value.
var unsupported = map[string]bool{
	"triangle_fan":      true,
	"d16_unorm_s8_uint": true,
}

// lookup converts an enum string, returning def for an empty string. field names the JSON field for the error.
func lookup[T any](table map[string]T, field, value string, def T) (T, error) {
	if value == "" {
		return def, nil
	}
	if v, ok := table[value]; ok {
		return v, nil
	}
	if unsupported[value] {
		return def, fmt.Errorf("%s: %q is not supported by the webgpu backend: %w", field, value, ErrInvalidValue)
	}
	return def, fmt.Errorf("%s: unknown value %q: %w", field, value, ErrInvalidValue)
}

// colorWriteMask converts a "rgba" channel string. An empty string writes every channel.
func colorWriteMask(field, value string) (gputypes.ColorWriteMask, error) {
	if value == "" {
		return gputypes.ColorWriteMaskAll, nil
	}
	var mask gputypes.ColorWriteMask
	for _, c := range value {
		switch c {
		case 'r':
			mask |= gputypes.ColorWriteMaskRed
		case 'g':
			mask |= gputypes.ColorWriteMaskGreen
		case 'b':
			mask |= gputypes.ColorWriteMaskBlue
		case 'a':
			mask |= gputypes.ColorWriteMaskAlpha
		default:
			return 0, fmt.Errorf("%s: unknown channel %q in %q: %w", field, c, value, ErrInvalidValue)
		}
	}
	return mask, nil
}
