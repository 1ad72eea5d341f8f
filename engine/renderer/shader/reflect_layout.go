package shader

import (
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
)

// typeLayout holds the byte size and alignment of a WGSL type in host-shareable memory.
type typeLayout struct {
	size  uint64
	align uint64
}

// parsedField is a single field extracted from a WGSL struct.
type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

// parsedStruct is a WGSL struct block extracted from source.
type parsedStruct struct {
	name   string
	fields []parsedField
}

// primitiveLayouts maps WGSL scalar, vector, matrix and atomic type names to their size and alignment.
//
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
var primitiveLayouts = map[string]typeLayout{
	"f32":  {4, 4},
	"i32":  {4, 4},
	"u32":  {4, 4},
	"f16":  {2, 2},
	"bool": {4, 4},

	"vec2<f32>": {8, 8},
	"vec2f":     {8, 8},
	"vec3<f32>": {12, 16},
	"vec3f":     {12, 16},
	"vec4<f32>": {16, 16},
	"vec4f":     {16, 16},

	"vec2<i32>": {8, 8},
	"vec2i":     {8, 8},
	"vec3<i32>": {12, 16},
	"vec3i":     {12, 16},
	"vec4<i32>": {16, 16},
	"vec4i":     {16, 16},

	"vec2<u32>": {8, 8},
	"vec2u":     {8, 8},
	"vec3<u32>": {12, 16},
	"vec3u":     {12, 16},
	"vec4<u32>": {16, 16},
	"vec4u":     {16, 16},

	"mat2x2<f32>": {16, 8},
	"mat2x2f":     {16, 8},
	"mat3x3<f32>": {48, 16},
	"mat3x3f":     {48, 16},
	"mat4x4<f32>": {64, 16},
	"mat4x4f":     {64, 16},
	"mat2x4<f32>": {32, 16},
	"mat3x4<f32>": {48, 16},
	"mat4x3<f32>": {64, 16},

	"atomic<u32>": {4, 4},
	"atomic<i32>": {4, 4},
}

// roundUpAlign rounds value up to the next multiple of alignment, a power of two.
func roundUpAlign(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// resolveTypeLayout resolves a WGSL type name against the primitives and the structs resolved so far. A fixed size
// array<T, N> resolves to N strides; a runtime sized array<T> resolves to a single stride.
func resolveTypeLayout(typeName string, knownTypes map[string]typeLayout) (typeLayout, bool) {
	if layout, ok := primitiveLayouts[typeName]; ok {
		return layout, true
	}
	if layout, ok := knownTypes[typeName]; ok {
		return layout, true
	}

	inner, ok := strings.CutPrefix(typeName, "array<")
	if !ok || !strings.HasSuffix(inner, ">") {
		return typeLayout{}, false
	}
	elemType, countStr, fixed := strings.Cut(strings.TrimSuffix(inner, ">"), ",")

	elem, ok := resolveTypeLayout(strings.TrimSpace(elemType), knownTypes)
	if !ok {
		return typeLayout{}, false
	}
	stride := roundUpAlign(elem.align, elem.size)
	if !fixed {
		return typeLayout{stride, elem.align}, true
	}

	count, err := strconv.ParseUint(strings.TrimSpace(countStr), 10, 64)
	if err != nil {
		return typeLayout{}, false
	}
	return typeLayout{count * stride, elem.align}, true
}

// computeStructLayout places each field at its next aligned offset and rounds the total up to the struct's
// alignment. Builtin fields are not part of a buffer layout and are skipped.
func computeStructLayout(ps parsedStruct, knownTypes map[string]typeLayout) (typeLayout, bool) {
	offset := uint64(0)
	maxAlign := uint64(1)

	for _, field := range ps.fields {
		if field.isBuiltin {
			continue
		}
		fieldLayout, ok := resolveTypeLayout(field.typeName, knownTypes)
		if !ok {
			return typeLayout{}, false
		}
		offset = roundUpAlign(fieldLayout.align, offset) + fieldLayout.size
		maxAlign = max(maxAlign, fieldLayout.align)
	}

	return typeLayout{roundUpAlign(maxAlign, offset), maxAlign}, true
}

// computeStructSizes resolves every struct layout, iterating until no more structs resolve so that structs may
// reference structs declared after them.
func computeStructSizes(structs []parsedStruct) map[string]typeLayout {
	resolved := make(map[string]typeLayout, len(structs))
	remaining := structs

	for len(remaining) > 0 {
		var next []parsedStruct
		for _, ps := range remaining {
			if layout, ok := computeStructLayout(ps, resolved); ok {
				resolved[ps.name] = layout
			} else {
				next = append(next, ps)
			}
		}
		if len(next) == len(remaining) {
			break
		}
		remaining = next
	}

	return resolved
}

// classifyResource maps a declaration's address space and type to the binding it needs.
//
// Parameters:
//   - addressSpace: the var<> qualifier, e.g. "uniform" or "storage, read_write"; empty for handle types
//   - typeName: the declared type, e.g. "Constants_t", "texture_2d<f32>", "sampler"
//
// Returns:
//   - ReflectedBinding: the binding with Kind, TextureType and StorageFormat filled in
func classifyResource(addressSpace, typeName string) ReflectedBinding {
	var b ReflectedBinding

	switch {
	case addressSpace == "uniform":
		b.Kind = backend.DescriptorKindUniformBuffer
		return b
	case strings.HasPrefix(addressSpace, "storage"):
		b.Kind = backend.DescriptorKindStorageBuffer
		return b
	}

	base, params := splitTypeParams(typeName)
	switch {
	case typeName == "sampler" || typeName == "sampler_comparison":
		b.Kind = backend.DescriptorKindSampler
	case strings.HasPrefix(base, "texture_storage_"):
		b.Kind = backend.DescriptorKindStorageTexture
		b.TextureType = wgslTextureTypeMap[base]
		format, _, _ := strings.Cut(params, ",")
		b.StorageFormat = wgslTexelFormatMap[strings.TrimSpace(format)]
	case strings.HasPrefix(base, "texture_"):
		b.Kind = backend.DescriptorKindSampledTexture
		b.TextureType = wgslTextureTypeMap[base]
	}
	return b
}

// splitTypeParams splits "texture_2d<f32>" into ("texture_2d", "f32"). Types without parameters return an empty
// parameter string.
func splitTypeParams(typeName string) (base string, params string) {
	before, after, ok := strings.Cut(typeName, "<")
	if !ok {
		return typeName, ""
	}
	return before, strings.TrimSpace(strings.TrimSuffix(after, ">"))
}

// stripComments removes line and (nested) block comments from WGSL source, keeping line breaks.
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		switch {
		case i+1 < len(source) && source[i] == '/' && source[i+1] == '*':
			depth++
			i++
		case i+1 < len(source) && source[i] == '*' && source[i+1] == '/' && depth > 0:
			depth--
			i++
		case depth == 0 && i+1 < len(source) && source[i] == '/' && source[i+1] == '/':
			for i < len(source) && source[i] != '\n' {
				i++
			}
			if i < len(source) {
				sb.WriteByte('\n')
			}
		case depth == 0 || source[i] == '\n':
			sb.WriteByte(source[i])
		}
	}
	return sb.String()
}

// splitAtTopLevelCommas splits a struct body at commas that are not nested inside angle brackets, so
// array<T, N> stays intact.
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
