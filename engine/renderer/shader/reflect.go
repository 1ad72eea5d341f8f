package shader

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
	"github.com/gogpu/gputypes"
)

// wgslTextureTypeMap maps WGSL sampled and storage texture base names to the backend texture type of their view
var wgslTextureTypeMap = map[string]backend.TextureType{
	"texture_1d":               backend.TextureType1D,
	"texture_2d":               backend.TextureType2D,
	"texture_2d_array":         backend.TextureType2DArray,
	"texture_3d":               backend.TextureType3D,
	"texture_cube":             backend.TextureTypeCube,
	"texture_cube_array":       backend.TextureTypeCubeArray,
	"texture_depth_2d":         backend.TextureType2D,
	"texture_depth_2d_array":   backend.TextureType2DArray,
	"texture_depth_cube":       backend.TextureTypeCube,
	"texture_storage_1d":       backend.TextureType1D,
	"texture_storage_2d":       backend.TextureType2D,
	"texture_storage_2d_array": backend.TextureType2DArray,
	"texture_storage_3d":       backend.TextureType3D,
}

// wgslTexelFormatMap maps WGSL texel format names to texture formats. Only formats the renderer can create
// storage textures with are listed.
var wgslTexelFormatMap = map[string]gputypes.TextureFormat{
	"rgba8unorm":  gputypes.TextureFormatRGBA8Unorm,
	"bgra8unorm":  gputypes.TextureFormatBGRA8Unorm,
	"rgba16float": gputypes.TextureFormatRGBA16Float,
	"r32float":    gputypes.TextureFormatR32Float,
	"r32uint":     gputypes.TextureFormatR32Uint,
	"rg32float":   gputypes.TextureFormatRG32Float,
	"rgba32float": gputypes.TextureFormatRGBA32Float,
}

var (
	// structBlockRegex matches struct declarations and captures the name and body
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// locationRegex matches @location(N) attributes
	locationRegex = regexp.MustCompile(`@location\((\d+)\)`)

	// builtinRegex matches @builtin(...) attributes
	builtinRegex = regexp.MustCompile(`@builtin\(\w+\)`)

	// fieldRegex matches a struct field line: optional attributes, name, colon, type.
	fieldRegex = regexp.MustCompile(`(?:(?:@\w+\([^)]*\)\s*)*)*\s*(\w+)\s*:\s*(.+)`)

	// entryRegex matches a stage attribute followed by its function and captures both
	entryRegex = regexp.MustCompile(`@(vertex|fragment|compute)\b[^{]*?\bfn\s+(\w+)`)

	// workgroupSizeRegex captures 1-3 integer dimensions from @workgroup_size(x[, y[, z]])
	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(\s*(\d+)\s*(?:,\s*(\d+)\s*(?:,\s*(\d+)\s*)?)?\)`)

	// bindGroupDeclRegex captures group, binding, optional address space, variable name, and type
	// from declarations like: @group(0) @binding(0) var<uniform> Constants: Constants_t;
	bindGroupDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// ReflectedBinding is one resource declaration found in WGSL source.
type ReflectedBinding struct {
	Group   uint32
	Binding uint32
	Name    string
	Kind    backend.DescriptorKind
	// TextureType is the view type of texture kinds.
	TextureType backend.TextureType
	// StorageFormat is the texel format of storage textures.
	StorageFormat gputypes.TextureFormat
	// MinSize is the byte size of the bound type for buffer kinds. A runtime sized array contributes one element.
	MinSize uint64
}

// Reflection is what Reflect learns about a WGSL source.
type Reflection struct {
	// Bindings are sorted by group then binding.
	Bindings []ReflectedBinding
	// EntryPoints maps each stage with an entry point to the function name.
	EntryPoints map[gputypes.ShaderStage]string
	// WorkgroupSize is [1, 1, 1] when the source has no @workgroup_size.
	WorkgroupSize [3]uint32
}

// Binding returns the declaration at group 0 with the given binding index.
func (r Reflection) Binding(binding uint32) (ReflectedBinding, bool) {
	for _, b := range r.Bindings {
		if b.Group == 0 && b.Binding == binding {
			return b, true
		}
	}
	return ReflectedBinding{}, false
}

// Reflect scans WGSL source for resource declarations, entry points and the workgroup size. It is a textual pass
// over the subset of WGSL the technique generator emits, not a validator; the compiler remains the authority on
// whether the source is well formed.
//
// Parameters:
//   - source: the WGSL source
//
// Returns:
//   - Reflection: the declarations found
func Reflect(source string) Reflection {
	cleaned := stripComments(source)
	structSizes := computeStructSizes(parseStructBlocks(cleaned))

	r := Reflection{
		EntryPoints:   make(map[gputypes.ShaderStage]string),
		WorkgroupSize: parseWorkgroupSize(cleaned),
	}

	for _, match := range bindGroupDeclRegex.FindAllStringSubmatch(cleaned, -1) {
		group, _ := strconv.ParseUint(match[1], 10, 32)
		binding, _ := strconv.ParseUint(match[2], 10, 32)
		b := classifyResource(strings.TrimSpace(match[3]), strings.TrimSpace(match[5]))
		b.Group = uint32(group)
		b.Binding = uint32(binding)
		b.Name = strings.TrimSpace(match[4])

		if b.Kind.IsBuffer() {
			if layout, ok := resolveTypeLayout(strings.TrimSpace(match[5]), structSizes); ok {
				b.MinSize = layout.size
			}
		}
		r.Bindings = append(r.Bindings, b)
	}
	sort.Slice(r.Bindings, func(i, j int) bool {
		if r.Bindings[i].Group != r.Bindings[j].Group {
			return r.Bindings[i].Group < r.Bindings[j].Group
		}
		return r.Bindings[i].Binding < r.Bindings[j].Binding
	})

	for _, match := range entryRegex.FindAllStringSubmatch(cleaned, -1) {
		var stage gputypes.ShaderStage
		switch match[1] {
		case "vertex":
			stage = gputypes.ShaderStageVertex
		case "fragment":
			stage = gputypes.ShaderStageFragment
		default:
			stage = gputypes.ShaderStageCompute
		}
		if _, ok := r.EntryPoints[stage]; !ok {
			r.EntryPoints[stage] = match[2]
		}
	}

	return r
}

// parseWorkgroupSize extracts the @workgroup_size(x, y, z) dimensions from comment-free WGSL source.
// Omitted dimensions default to 1.
func parseWorkgroupSize(cleaned string) [3]uint32 {
	result := [3]uint32{1, 1, 1}

	match := workgroupSizeRegex.FindStringSubmatch(cleaned)
	if match == nil {
		return result
	}
	for i := range 3 {
		if match[i+1] == "" {
			continue
		}
		if v, err := strconv.ParseUint(match[i+1], 10, 32); err == nil {
			result[i] = uint32(v)
		}
	}
	return result
}

// parseStructBlocks finds all struct { ... } blocks in the cleaned WGSL source
// and parses their fields including @location and @builtin attributes
//
// Parameters:
//   - source: WGSL source with comments already stripped
//
// Returns:
//   - []parsedStruct: all struct blocks found in the source
func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	structs := make([]parsedStruct, 0, len(matches))

	for _, match := range matches {
		structs = append(structs, parsedStruct{
			name:   match[1],
			fields: parseStructFields(match[2]),
		})
	}

	return structs
}

// parseStructFields parses the body of a struct block into individual fields,
// extracting @location and @builtin attributes along with the field name and type
func parseStructFields(body string) []parsedField {
	lines := splitAtTopLevelCommas(body)
	fields := make([]parsedField, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		field := parsedField{
			location:  -1,
			isBuiltin: builtinRegex.MatchString(line),
		}
		if locMatch := locationRegex.FindStringSubmatch(line); locMatch != nil {
			if loc, err := strconv.Atoi(locMatch[1]); err == nil {
				field.location = loc
			}
		}

		fm := fieldRegex.FindStringSubmatch(line)
		if fm == nil {
			continue
		}
		field.name = fm[1]
		field.typeName = strings.TrimSpace(fm[2])
		fields = append(fields, field)
	}

	return fields
}
