package technique

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/shader"
	"github.com/gogpu/gputypes"
)

const preamble = "// Generated by the oxy-gfx technique compiler. Edit the technique JSON instead.\n\n"

// Sources is the generated WGSL of a technique. Absent stages are empty.
type Sources struct {
	Vertex   string
	Fragment string
	Compute  string
	// Includes are the files pulled in through @oxy:include across every stage.
	Includes []string
}

// Generate writes one WGSL module per stage of d. Each module declares the binding table at group 0, the stage
// interface structs, the stage include after annotation expansion, and a main entry point wrapping the stage's main
// body. The generated declarations are then reflected to check the include did not add bindings of its own, and
// the size of every buffer binding's content struct is stored in d.Bindings[i].MinSize.
//
// Inside main, vertex attributes are read as input.<name> and outputs written as output.<name>, with the clip
// position in output.position. The fragment stage reads the vertex outputs as input.<name>. Compute main receives
// global_id, local_id and group_id.
//
// Parameters:
//   - d: the parsed technique
//   - pp: the pre-processor used to expand each stage include
//
// Returns:
//   - Sources: the WGSL of each stage
//   - error: an include that fails to expand, or a binding mismatch
func Generate(d *Description, pp shader.PreProcessor) (Sources, error) {
	var src Sources
	var includes []string

	expand := func(name string, s *Stage) (string, error) {
		out, err := pp.Process(s.Include)
		if err != nil {
			return "", fmt.Errorf("failed to expand %s include: %w", name, err)
		}
		for _, inc := range pp.Includes() {
			if !slices.Contains(includes, inc) {
				includes = append(includes, inc)
			}
		}
		return out, nil
	}

	if d.IsCompute() {
		include, err := expand("compute_shader", d.Compute)
		if err != nil {
			return src, err
		}
		src.Compute = generateCompute(d, include)
	} else {
		include, err := expand("vertex_shader", d.Vertex)
		if err != nil {
			return src, err
		}
		src.Vertex = generateVertex(d, include)

		if d.Fragment != nil {
			include, err := expand("fragment_shader", d.Fragment)
			if err != nil {
				return src, err
			}
			src.Fragment = generateFragment(d, include)
		}
	}
	src.Includes = includes

	for _, s := range []struct {
		stage  gputypes.ShaderStage
		source string
	}{
		{gputypes.ShaderStageVertex, src.Vertex},
		{gputypes.ShaderStageFragment, src.Fragment},
		{gputypes.ShaderStageCompute, src.Compute},
	} {
		if s.source == "" {
			continue
		}
		if err := reflectBindings(d, s.stage, s.source); err != nil {
			return src, err
		}
	}
	return src, nil
}

// reflectBindings checks the declarations in a generated stage against the binding table and records buffer sizes.
func reflectBindings(d *Description, stage gputypes.ShaderStage, source string) error {
	r := shader.Reflect(source)
	for _, rb := range r.Bindings {
		if rb.Group != 0 || int(rb.Binding) >= len(d.Bindings) {
			return fmt.Errorf("%s shader declares @group(%d) @binding(%d) %s outside shader_bindings: %w",
				shader.StageName(stage), rb.Group, rb.Binding, rb.Name, ErrInvalidValue)
		}
		b := &d.Bindings[rb.Binding]
		if rb.Name != b.Name || rb.Kind != b.Kind {
			return fmt.Errorf("%s shader redeclares binding %d as %s %s: %w",
				shader.StageName(stage), rb.Binding, rb.Kind, rb.Name, ErrInvalidValue)
		}
		b.MinSize = max(b.MinSize, rb.MinSize)
	}
	return nil
}

func writeBindings(sb *strings.Builder, d *Description, stage gputypes.ShaderStage) {
	for i, b := range d.Bindings {
		if b.Kind.IsBuffer() {
			fmt.Fprintf(sb, "struct %s_t {\n%s\n}\n", b.Name, indent(b.Content))
		}
		decl := fmt.Sprintf("@group(0) @binding(%d) var", i)
		switch b.Kind {
		case backend.DescriptorKindSampler:
			fmt.Fprintf(sb, "%s %s: sampler;\n", decl, b.Name)
		case backend.DescriptorKindSampledTexture:
			fmt.Fprintf(sb, "%s %s: %s<f32>;\n", decl, b.Name, textureTypeName(b.TextureType, false))
		case backend.DescriptorKindStorageTexture:
			if stage == gputypes.ShaderStageVertex {
				continue
			}
			fmt.Fprintf(sb, "%s %s: %s<%s, write>;\n", decl, b.Name, textureTypeName(b.TextureType, true), storageImageFormats[b.StorageFormat])
		case backend.DescriptorKindUniformBuffer:
			fmt.Fprintf(sb, "%s<uniform> %s: %s_t;\n", decl, b.Name, b.Name)
		case backend.DescriptorKindStorageBuffer:
			access := "read"
			if stage == gputypes.ShaderStageCompute {
				access = "read_write"
			}
			fmt.Fprintf(sb, "%s<storage, %s> %s: %s_t;\n", decl, access, b.Name, b.Name)
		}
	}
	if len(d.Bindings) > 0 {
		sb.WriteString("\n")
	}
}

func textureTypeName(t backend.TextureType, storage bool) string {
	prefix := "texture_"
	if storage {
		prefix = "texture_storage_"
	}
	switch t {
	case backend.TextureType1D:
		return prefix + "1d"
	case backend.TextureType3D:
		return prefix + "3d"
	case backend.TextureTypeCube:
		return prefix + "cube"
	case backend.TextureType2DArray:
		return prefix + "2d_array"
	case backend.TextureTypeCubeArray:
		return prefix + "cube_array"
	default:
		return prefix + "2d"
	}
}

// writeVaryings writes a struct holding the clip position and the vertex outputs.
func writeVaryings(sb *strings.Builder, name string, outputs []Output) {
	fmt.Fprintf(sb, "struct %s {\n    @builtin(position) position: vec4<f32>,\n", name)
	for _, o := range outputs {
		interpolate := ""
		if isIntegerType(o.Type) {
			interpolate = " @interpolate(flat)"
		}
		fmt.Fprintf(sb, "    @location(%d)%s %s: %s,\n", o.Location, interpolate, o.Name, o.Type)
	}
	sb.WriteString("}\n\n")
}

func generateVertex(d *Description, include string) string {
	var sb strings.Builder
	sb.WriteString(preamble)
	writeBindings(&sb, d, gputypes.ShaderStageVertex)

	if len(d.VertexAttributes) > 0 {
		sb.WriteString("struct VertexInput {\n")
		for i, a := range d.VertexAttributes {
			info, _ := vertexFormatInfo(a.Format)
			fmt.Fprintf(&sb, "    @location(%d) %s: %s,\n", i, a.Name, info.wgslType)
		}
		sb.WriteString("}\n\n")
	}
	writeVaryings(&sb, "VertexOutput", d.Vertex.Outputs)
	writeInclude(&sb, include)

	sb.WriteString("@vertex\nfn main(")
	if len(d.VertexAttributes) > 0 {
		sb.WriteString("input: VertexInput, ")
	}
	sb.WriteString("@builtin(vertex_index) vertex_index: u32, @builtin(instance_index) instance_index: u32) -> VertexOutput {\n")
	sb.WriteString("    var output: VertexOutput;\n")
	writeMain(&sb, d.Vertex.Main)
	sb.WriteString("    return output;\n}\n")
	return sb.String()
}

func generateFragment(d *Description, include string) string {
	var sb strings.Builder
	sb.WriteString(preamble)
	writeBindings(&sb, d, gputypes.ShaderStageFragment)
	writeVaryings(&sb, "FragmentInput", d.Vertex.Outputs)

	outputs := d.Fragment.Outputs
	if len(outputs) > 0 {
		sb.WriteString("struct FragmentOutput {\n")
		for _, o := range outputs {
			fmt.Fprintf(&sb, "    @location(%d) %s: %s,\n", o.Location, o.Name, o.Type)
		}
		sb.WriteString("}\n\n")
	}
	writeInclude(&sb, include)

	if len(outputs) == 0 {
		sb.WriteString("@fragment\nfn main(input: FragmentInput) {\n")
		writeMain(&sb, d.Fragment.Main)
		sb.WriteString("}\n")
		return sb.String()
	}
	sb.WriteString("@fragment\nfn main(input: FragmentInput) -> FragmentOutput {\n")
	sb.WriteString("    var output: FragmentOutput;\n")
	writeMain(&sb, d.Fragment.Main)
	sb.WriteString("    return output;\n}\n")
	return sb.String()
}

func generateCompute(d *Description, include string) string {
	var sb strings.Builder
	sb.WriteString(preamble)
	writeBindings(&sb, d, gputypes.ShaderStageCompute)
	writeInclude(&sb, include)

	fmt.Fprintf(&sb, "@compute @workgroup_size(%d, %d, %d)\n", d.WorkgroupSize[0], d.WorkgroupSize[1], d.WorkgroupSize[2])
	sb.WriteString("fn main(@builtin(global_invocation_id) global_id: vec3<u32>, " +
		"@builtin(local_invocation_id) local_id: vec3<u32>, " +
		"@builtin(workgroup_id) group_id: vec3<u32>) {\n")
	writeMain(&sb, d.Compute.Main)
	sb.WriteString("}\n")
	return sb.String()
}

func writeInclude(sb *strings.Builder, include string) {
	include = strings.TrimSpace(include)
	if include == "" {
		return
	}
	sb.WriteString(include)
	sb.WriteString("\n\n")
}

func writeMain(sb *strings.Builder, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	sb.WriteString(indent(body))
	sb.WriteString("\n")
}

func indent(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, l := range lines {
		if l = strings.TrimRight(l, " \t"); l != "" {
			lines[i] = "    " + l
		} else {
			lines[i] = ""
		}
	}
	return strings.Join(lines, "\n")
}

func isIntegerType(t string) bool {
	return strings.Contains(t, "u32") || strings.Contains(t, "i32")
}
