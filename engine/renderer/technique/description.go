package technique

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-gfx/common"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
	"github.com/gogpu/gputypes"
	jsoniter "github.com/json-iterator/go"
)

const (
	// MaxBindings is the most shader_bindings a technique may declare.
	MaxBindings = 16
	// MaxVertexAttributes is the most vertex_attributes a technique may declare.
	MaxVertexAttributes = 8
	// MaxColorAttachments is the most color_attachments a technique may declare.
	MaxColorAttachments = 4
	// MaxVertexBuffers bounds the binding slot of a vertex attribute.
	MaxVertexBuffers = 8
)

var (
	// ErrNoStage is returned for a technique with neither a vertex_shader nor a compute_shader.
	ErrNoStage = errors.New("technique declares no vertex_shader or compute_shader")
	// ErrStageConflict is returned when graphics and compute stages are mixed.
	ErrStageConflict = errors.New("technique mixes graphics and compute stages")
	// ErrHashCollision is returned when two binding names hash to the same value.
	ErrHashCollision = errors.New("shader binding hash collision")
	// ErrInvalidValue is returned for a field with a missing, unknown or out of range value.
	ErrInvalidValue = errors.New("invalid technique value")
)

// strictJSON rejects unknown fields so a misspelled key fails the load instead of silently taking a default.
var strictJSON = jsoniter.Config{
	DisallowUnknownFields:  true,
	ValidateJsonRawMessage: true,
}.Froze()

// Stage is one shader stage of a technique.
type Stage struct {
	// Outputs are numbered by declaration order. Vertex outputs are the fragment stage's inputs.
	Outputs []Output
	Include string
	Main    string
}

// Output is a stage output variable with its WGSL type.
type Output struct {
	Name     string
	Type     string
	Location uint32
}

// Binding is one entry of the technique's binding table. Its slot is its index.
type Binding struct {
	Name          string
	Hash          uint64
	Kind          backend.DescriptorKind
	TextureType   backend.TextureType
	StorageFormat gputypes.TextureFormat
	// MinSize is the size of a buffer binding's content struct, filled in by the compiler.
	MinSize uint64
	// Content is the WGSL struct body of a buffer binding. It is not stored in blobs.
	Content string
}

// VertexAttribute is one vertex input. Its shader location is its index.
type VertexAttribute struct {
	Name     string
	Binding  uint32
	Format   gputypes.VertexFormat
	Offset   uint32
	StepMode gputypes.VertexStepMode
}

// ColorAttachment is a color target. BackBuffer attachments take the surface format when the pipeline is built.
type ColorAttachment struct {
	Format     gputypes.TextureFormat
	BackBuffer bool
}

// InputAssembly is the primitive assembly state.
type InputAssembly struct {
	Topology         gputypes.PrimitiveTopology
	PrimitiveRestart bool
}

// Rasterizer is the rasterizer state.
type Rasterizer struct {
	DepthClamp        bool
	Discard           bool
	PolygonMode       backend.PolygonMode
	CullMode          gputypes.CullMode
	FrontFace         gputypes.FrontFace
	DepthBias         bool
	DepthBiasConstant float32
	DepthBiasClamp    float32
	DepthBiasSlope    float32
	LineWidth         float32
}

// StencilFace is the stencil state of one face.
type StencilFace struct {
	FailOp      gputypes.StencilOperation
	PassOp      gputypes.StencilOperation
	DepthFailOp gputypes.StencilOperation
	Compare     gputypes.CompareFunction
	CompareMask uint32
	WriteMask   uint32
	Reference   uint32
}

// DepthStencil is the depth and stencil test state.
type DepthStencil struct {
	DepthTest       bool
	DepthWrite      bool
	DepthCompare    gputypes.CompareFunction
	DepthBoundsTest bool
	MinDepthBounds  float32
	MaxDepthBounds  float32
	StencilTest     bool
	Front           StencilFace
	Back            StencilFace
}

// BlendAttachment is the blend state of one color attachment.
type BlendAttachment struct {
	Enable    bool
	SrcColor  gputypes.BlendFactor
	DstColor  gputypes.BlendFactor
	ColorOp   gputypes.BlendOperation
	SrcAlpha  gputypes.BlendFactor
	DstAlpha  gputypes.BlendFactor
	AlphaOp   gputypes.BlendOperation
	WriteMask gputypes.ColorWriteMask
}

// PipelineState is everything a pipeline is built from apart from shader code.
type PipelineState struct {
	Bindings         []Binding
	VertexAttributes []VertexAttribute
	ColorAttachments []ColorAttachment
	// DepthFormat is TextureFormatUndefined without a depth attachment.
	DepthFormat   gputypes.TextureFormat
	InputAssembly InputAssembly
	Rasterizer    Rasterizer
	DepthStencil  DepthStencil
	// Blend holds one entry per color attachment.
	Blend []BlendAttachment
	// WorkgroupSize is the compute workgroup size; zero for graphics techniques.
	WorkgroupSize [3]uint32
}

// Description is a parsed technique.
type Description struct {
	// Checksum is the hash of the JSON bytes the description was parsed from.
	Checksum uint64
	// Vertex and Fragment are set for graphics techniques, Compute for compute techniques.
	Vertex   *Stage
	Fragment *Stage
	Compute  *Stage
	PipelineState
}

// IsCompute reports whether the description is a compute technique.
func (d *Description) IsCompute() bool {
	return d.Compute != nil
}

// VertexStrides returns the stride of every vertex buffer slot up to the highest used binding: the sum of the sizes
// of the attributes read from it.
func (s *PipelineState) VertexStrides() []uint64 {
	var strides []uint64
	for _, a := range s.VertexAttributes {
		for uint32(len(strides)) <= a.Binding {
			strides = append(strides, 0)
		}
		if info, ok := vertexFormatInfo(a.Format); ok {
			strides[a.Binding] += uint64(info.size)
		}
	}
	return strides
}

// Lookup returns the slot of the binding with the given name hash.
func (s *PipelineState) Lookup(hash uint64) (uint32, bool) {
	for i, b := range s.Bindings {
		if b.Hash == hash {
			return uint32(i), true
		}
	}
	return 0, false
}

type jsonOutput struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type jsonWorkGroupSize struct {
	X *uint32 `json:"x"`
	Y *uint32 `json:"y"`
	Z *uint32 `json:"z"`
}

type jsonStage struct {
	Outputs       []jsonOutput       `json:"outputs"`
	Include       string             `json:"include"`
	Main          string             `json:"main"`
	WorkGroupSize *jsonWorkGroupSize `json:"work_group_size"`
}

type jsonBinding struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Format  string `json:"format"`
	Content string `json:"content"`
}

type jsonVertexAttribute struct {
	Name      string  `json:"name"`
	Binding   *uint32 `json:"binding"`
	Format    string  `json:"format"`
	Offset    *uint32 `json:"offset"`
	InputRate string  `json:"input_rate"`
}

type jsonInputAssembly struct {
	Topology               string `json:"topology"`
	PrimitiveRestartEnable bool   `json:"primitive_restart_enable"`
}

type jsonRasterizer struct {
	DepthClampEnable        bool     `json:"depth_clamp_enable"`
	RasterizerDiscardEnable bool     `json:"rasterizer_discard_enable"`
	PolygonMode             string   `json:"polygon_mode"`
	CullMode                string   `json:"cull_mode"`
	FrontFace               string   `json:"front_face"`
	DepthBiasEnable         bool     `json:"depth_bias_enable"`
	DepthBiasConstantFactor float32  `json:"depth_bias_constant_factor"`
	DepthBiasClamp          float32  `json:"depth_bias_clamp"`
	DepthBiasSlopeFactor    float32  `json:"depth_bias_slope_factor"`
	LineWidth               *float32 `json:"line_width"`
}

type jsonStencilFace struct {
	FailOp      string `json:"fail_op"`
	PassOp      string `json:"pass_op"`
	DepthFailOp string `json:"depth_fail_op"`
	CompareOp   string `json:"compare_op"`
	CompareMask uint32 `json:"compare_mask"`
	WriteMask   uint32 `json:"write_mask"`
	Reference   uint32 `json:"reference"`
}

type jsonDepthStencil struct {
	DepthTestEnable       bool            `json:"depth_test_enable"`
	DepthWriteEnable      bool            `json:"depth_write_enable"`
	DepthCompareOp        string          `json:"depth_compare_op"`
	DepthBoundsTestEnable bool            `json:"depth_bounds_test_enable"`
	MinDepthBounds        float32         `json:"min_depth_bounds"`
	MaxDepthBounds        float32         `json:"max_depth_bounds"`
	StencilTestEnable     bool            `json:"stencil_test_enable"`
	Front                 jsonStencilFace `json:"front"`
	Back                  jsonStencilFace `json:"back"`
}

type jsonBlendAttachment struct {
	BlendEnable         bool   `json:"blend_enable"`
	SrcColorBlendFactor string `json:"src_color_blend_factor"`
	DstColorBlendFactor string `json:"dst_color_blend_factor"`
	ColorBlendOp        string `json:"color_blend_op"`
	SrcAlphaBlendFactor string `json:"src_alpha_blend_factor"`
	DstAlphaBlendFactor string `json:"dst_alpha_blend_factor"`
	AlphaBlendOp        string `json:"alpha_blend_op"`
	ColorWriteMask      string `json:"color_write_mask"`
}

type jsonTechnique struct {
	VertexShader      *jsonStage            `json:"vertex_shader"`
	FragmentShader    *jsonStage            `json:"fragment_shader"`
	ComputeShader     *jsonStage            `json:"compute_shader"`
	ShaderBindings    []jsonBinding         `json:"shader_bindings"`
	VertexAttributes  []jsonVertexAttribute `json:"vertex_attributes"`
	ColorAttachments  []string              `json:"color_attachments"`
	DepthAttachment   string                `json:"depth_attachment"`
	InputAssembly     jsonInputAssembly     `json:"input_assembly"`
	RasterizerState   jsonRasterizer        `json:"rasterizer_state"`
	DepthStencilState jsonDepthStencil      `json:"depth_stencil_state"`
	BlendAttachments  []jsonBlendAttachment `json:"blend_attachments"`
}

// Parse decodes and validates technique JSON.
//
// Parameters:
//   - data: the technique JSON
//
// Returns:
//   - *Description: the parsed technique with every default filled in
//   - error: a wrapped ErrNoStage, ErrStageConflict, ErrHashCollision or ErrInvalidValue, or the JSON decode error
func Parse(data []byte) (*Description, error) {
	var j jsonTechnique
	if err := strictJSON.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to decode technique json: %w", err)
	}

	graphics := j.VertexShader != nil || j.FragmentShader != nil
	switch {
	case graphics && j.ComputeShader != nil:
		return nil, ErrStageConflict
	case !graphics && j.ComputeShader == nil:
		return nil, ErrNoStage
	case j.FragmentShader != nil && j.VertexShader == nil:
		return nil, fmt.Errorf("fragment_shader without vertex_shader: %w", ErrNoStage)
	}

	d := &Description{Checksum: common.HashBytes(data)}

	bindings, err := parseBindings(j.ShaderBindings, graphics)
	if err != nil {
		return nil, err
	}
	d.Bindings = bindings

	if !graphics {
		if len(j.VertexAttributes) > 0 || len(j.ColorAttachments) > 0 || j.DepthAttachment != "" || len(j.BlendAttachments) > 0 {
			return nil, fmt.Errorf("compute technique declares graphics state: %w", ErrStageConflict)
		}
		d.Compute, d.WorkgroupSize, err = parseComputeStage(j.ComputeShader)
		if err != nil {
			return nil, err
		}
		return d, nil
	}

	if d.Vertex, err = parseStage("vertex_shader", j.VertexShader); err != nil {
		return nil, err
	}
	if j.FragmentShader != nil {
		if d.Fragment, err = parseStage("fragment_shader", j.FragmentShader); err != nil {
			return nil, err
		}
	}
	if d.VertexAttributes, err = parseVertexAttributes(j.VertexAttributes); err != nil {
		return nil, err
	}
	if err := parseAttachments(d, j.ColorAttachments, j.DepthAttachment); err != nil {
		return nil, err
	}
	if err := parseFixedFunction(d, &j); err != nil {
		return nil, err
	}
	return d, nil
}

func parseStage(field string, j *jsonStage) (*Stage, error) {
	if j.WorkGroupSize != nil {
		return nil, fmt.Errorf("%s.work_group_size: only compute shaders have a work group size: %w", field, ErrInvalidValue)
	}
	s := &Stage{Include: j.Include, Main: j.Main}
	seen := make(map[string]bool, len(j.Outputs))
	for i, o := range j.Outputs {
		name := fmt.Sprintf("%s.outputs[%d]", field, i)
		if !isIdentifier(o.Name) || o.Name == "position" {
			return nil, fmt.Errorf("%s.name: invalid output name %q: %w", name, o.Name, ErrInvalidValue)
		}
		if seen[o.Name] {
			return nil, fmt.Errorf("%s.name: duplicate output %q: %w", name, o.Name, ErrInvalidValue)
		}
		seen[o.Name] = true
		if o.Type == "" {
			return nil, fmt.Errorf("%s.type: missing: %w", name, ErrInvalidValue)
		}
		typ := o.Type
		if wgsl, ok := outputTypes[typ]; ok {
			typ = wgsl
		}
		s.Outputs = append(s.Outputs, Output{Name: o.Name, Type: typ, Location: uint32(i)})
	}
	return s, nil
}

func parseComputeStage(j *jsonStage) (*Stage, [3]uint32, error) {
	size := [3]uint32{1, 1, 1}
	if len(j.Outputs) > 0 {
		return nil, size, fmt.Errorf("compute_shader.outputs: compute shaders have no outputs: %w", ErrInvalidValue)
	}
	if wg := j.WorkGroupSize; wg != nil {
		for i, v := range []*uint32{wg.X, wg.Y, wg.Z} {
			if v == nil {
				continue
			}
			if *v == 0 {
				return nil, size, fmt.Errorf("compute_shader.work_group_size.%c: must be at least 1: %w", "xyz"[i], ErrInvalidValue)
			}
			size[i] = *v
		}
	}
	return &Stage{Include: j.Include, Main: j.Main}, size, nil
}

func parseBindings(in []jsonBinding, graphics bool) ([]Binding, error) {
	if len(in) > MaxBindings {
		return nil, fmt.Errorf("shader_bindings: %d bindings, at most %d allowed: %w", len(in), MaxBindings, ErrInvalidValue)
	}

	out := make([]Binding, 0, len(in))
	owners := make(map[uint64]string, len(in))
	for i, jb := range in {
		field := fmt.Sprintf("shader_bindings[%d]", i)
		if !isIdentifier(jb.Name) {
			return nil, fmt.Errorf("%s.name: invalid binding name %q: %w", field, jb.Name, ErrInvalidValue)
		}
		bt, ok := bindingTypes[jb.Type]
		if !ok {
			return nil, fmt.Errorf("%s.type: unknown value %q: %w", field, jb.Type, ErrInvalidValue)
		}

		b := Binding{
			Name:        jb.Name,
			Hash:        common.Hash(jb.Name),
			Kind:        bt.kind,
			TextureType: bt.textureType,
			Content:     jb.Content,
		}
		if b.Hash == 0 {
			return nil, fmt.Errorf("%s.name: %q hashes to zero: %w", field, jb.Name, ErrInvalidValue)
		}
		if other, ok := owners[b.Hash]; ok {
			return nil, fmt.Errorf("%s.name: %q and %q: %w", field, other, jb.Name, ErrHashCollision)
		}
		owners[b.Hash] = jb.Name

		switch {
		case b.Kind == backend.DescriptorKindStorageTexture:
			format, err := storageFormat(field+".format", jb.Format)
			if err != nil {
				return nil, err
			}
			b.StorageFormat = format
		case jb.Format != "":
			return nil, fmt.Errorf("%s.format: only image bindings take a format: %w", field, ErrInvalidValue)
		}

		if b.Kind.IsBuffer() && jb.Content == "" {
			return nil, fmt.Errorf("%s.content: %s bindings need a content struct body: %w", field, jb.Type, ErrInvalidValue)
		}
		if !b.Kind.IsBuffer() && jb.Content != "" {
			return nil, fmt.Errorf("%s.content: only cbuffer and buffer bindings take content: %w", field, ErrInvalidValue)
		}
		if graphics && b.Kind == backend.DescriptorKindStorageTexture && b.TextureType == backend.TextureType3D {
			return nil, fmt.Errorf("%s.type: image3d is only available to compute techniques: %w", field, ErrInvalidValue)
		}
		out = append(out, b)
	}
	return out, nil
}

func storageFormat(field, value string) (gputypes.TextureFormat, error) {
	if value == "" {
		return gputypes.TextureFormatUndefined, fmt.Errorf("%s: image bindings need a format: %w", field, ErrInvalidValue)
	}
	format, ok := storageImageAliases[value]
	if !ok {
		format, ok = textureFormats[value]
	}
	if !ok {
		return gputypes.TextureFormatUndefined, fmt.Errorf("%s: unknown value %q: %w", field, value, ErrInvalidValue)
	}
	if _, ok := storageImageFormats[format]; !ok {
		return gputypes.TextureFormatUndefined, fmt.Errorf("%s: %q cannot be used for storage images: %w", field, value, ErrInvalidValue)
	}
	return format, nil
}

func parseVertexAttributes(in []jsonVertexAttribute) ([]VertexAttribute, error) {
	if len(in) > MaxVertexAttributes {
		return nil, fmt.Errorf("vertex_attributes: %d attributes, at most %d allowed: %w", len(in), MaxVertexAttributes, ErrInvalidValue)
	}

	out := make([]VertexAttribute, 0, len(in))
	rates := make(map[uint32]gputypes.VertexStepMode)
	for i, ja := range in {
		field := fmt.Sprintf("vertex_attributes[%d]", i)
		if !isIdentifier(ja.Name) {
			return nil, fmt.Errorf("%s.name: invalid attribute name %q: %w", field, ja.Name, ErrInvalidValue)
		}
		if ja.Binding == nil {
			return nil, fmt.Errorf("%s.binding: missing: %w", field, ErrInvalidValue)
		}
		if *ja.Binding >= MaxVertexBuffers {
			return nil, fmt.Errorf("%s.binding: %d is not below %d: %w", field, *ja.Binding, MaxVertexBuffers, ErrInvalidValue)
		}
		if ja.Offset == nil {
			return nil, fmt.Errorf("%s.offset: missing: %w", field, ErrInvalidValue)
		}
		format, ok := vertexFormats[ja.Format]
		if !ok {
			return nil, fmt.Errorf("%s.format: unknown value %q: %w", field, ja.Format, ErrInvalidValue)
		}
		rate, err := lookup(stepModes, field+".input_rate", ja.InputRate, gputypes.VertexStepModeVertex)
		if err != nil {
			return nil, err
		}
		if prev, ok := rates[*ja.Binding]; ok && prev != rate {
			return nil, fmt.Errorf("%s.input_rate: binding %d mixes vertex and instance rates: %w", field, *ja.Binding, ErrInvalidValue)
		}
		rates[*ja.Binding] = rate

		out = append(out, VertexAttribute{
			Name:     ja.Name,
			Binding:  *ja.Binding,
			Format:   format.format,
			Offset:   *ja.Offset,
			StepMode: rate,
		})
	}
	return out, nil
}

func parseAttachments(d *Description, colors []string, depth string) error {
	if len(colors) > MaxColorAttachments {
		return fmt.Errorf("color_attachments: %d attachments, at most %d allowed: %w", len(colors), MaxColorAttachments, ErrInvalidValue)
	}
	for i, name := range colors {
		field := fmt.Sprintf("color_attachments[%d]", i)
		if name == BackBufferAttachment {
			d.ColorAttachments = append(d.ColorAttachments, ColorAttachment{BackBuffer: true})
			continue
		}
		format, err := lookup(textureFormats, field, name, gputypes.TextureFormatUndefined)
		if err != nil {
			return err
		}
		if format == gputypes.TextureFormatUndefined || backend.IsDepthFormat(format) {
			return fmt.Errorf("%s: %q is not a color format: %w", field, name, ErrInvalidValue)
		}
		d.ColorAttachments = append(d.ColorAttachments, ColorAttachment{Format: format})
	}

	format, err := lookup(textureFormats, "depth_attachment", depth, gputypes.TextureFormatUndefined)
	if err != nil {
		return err
	}
	if format != gputypes.TextureFormatUndefined && !backend.IsDepthFormat(format) {
		return fmt.Errorf("depth_attachment: %q is not a depth format: %w", depth, ErrInvalidValue)
	}
	d.DepthFormat = format
	return nil
}

func parseFixedFunction(d *Description, j *jsonTechnique) error {
	var err error
	ia := &d.InputAssembly
	if ia.Topology, err = lookup(topologies, "input_assembly.topology", j.InputAssembly.Topology, gputypes.PrimitiveTopologyTriangleList); err != nil {
		return err
	}
	ia.PrimitiveRestart = j.InputAssembly.PrimitiveRestartEnable

	jr := &j.RasterizerState
	rs := &d.Rasterizer
	rs.DepthClamp = jr.DepthClampEnable
	rs.Discard = jr.RasterizerDiscardEnable
	rs.DepthBias = jr.DepthBiasEnable
	rs.DepthBiasConstant = jr.DepthBiasConstantFactor
	rs.DepthBiasClamp = jr.DepthBiasClamp
	rs.DepthBiasSlope = jr.DepthBiasSlopeFactor
	rs.LineWidth = 1
	if jr.LineWidth != nil {
		rs.LineWidth = *jr.LineWidth
	}
	if rs.PolygonMode, err = lookup(polygonModes, "rasterizer_state.polygon_mode", jr.PolygonMode, backend.PolygonModeFill); err != nil {
		return err
	}
	if rs.CullMode, err = lookup(cullModes, "rasterizer_state.cull_mode", jr.CullMode, gputypes.CullModeNone); err != nil {
		return err
	}
	if rs.FrontFace, err = lookup(frontFaces, "rasterizer_state.front_face", jr.FrontFace, gputypes.FrontFaceCCW); err != nil {
		return err
	}

	jd := &j.DepthStencilState
	ds := &d.DepthStencil
	ds.DepthTest = jd.DepthTestEnable
	ds.DepthWrite = jd.DepthWriteEnable
	ds.DepthBoundsTest = jd.DepthBoundsTestEnable
	ds.MinDepthBounds = jd.MinDepthBounds
	ds.MaxDepthBounds = jd.MaxDepthBounds
	ds.StencilTest = jd.StencilTestEnable
	if ds.DepthCompare, err = lookup(compareFunctions, "depth_stencil_state.depth_compare_op", jd.DepthCompareOp, gputypes.CompareFunctionLessEqual); err != nil {
		return err
	}
	if ds.Front, err = parseStencilFace("depth_stencil_state.front", &jd.Front); err != nil {
		return err
	}
	if ds.Back, err = parseStencilFace("depth_stencil_state.back", &jd.Back); err != nil {
		return err
	}
	if (ds.DepthTest || ds.DepthWrite || ds.StencilTest) && d.DepthFormat == gputypes.TextureFormatUndefined {
		return fmt.Errorf("depth_stencil_state: depth or stencil testing needs a depth_attachment: %w", ErrInvalidValue)
	}

	if len(j.BlendAttachments) > len(d.ColorAttachments) {
		return fmt.Errorf("blend_attachments: %d entries for %d color attachments: %w", len(j.BlendAttachments), len(d.ColorAttachments), ErrInvalidValue)
	}
	d.Blend = make([]BlendAttachment, len(d.ColorAttachments))
	for i := range d.Blend {
		var jb jsonBlendAttachment
		if i < len(j.BlendAttachments) {
			jb = j.BlendAttachments[i]
		}
		if d.Blend[i], err = parseBlendAttachment(fmt.Sprintf("blend_attachments[%d]", i), &jb); err != nil {
			return err
		}
	}
	return nil
}

func parseStencilFace(field string, j *jsonStencilFace) (StencilFace, error) {
	f := StencilFace{
		CompareMask: j.CompareMask,
		WriteMask:   j.WriteMask,
		Reference:   j.Reference,
	}
	var err error
	if f.FailOp, err = lookup(stencilOperations, field+".fail_op", j.FailOp, gputypes.StencilOperationKeep); err != nil {
		return f, err
	}
	if f.PassOp, err = lookup(stencilOperations, field+".pass_op", j.PassOp, gputypes.StencilOperationKeep); err != nil {
		return f, err
	}
	if f.DepthFailOp, err = lookup(stencilOperations, field+".depth_fail_op", j.DepthFailOp, gputypes.StencilOperationKeep); err != nil {
		return f, err
	}
	if f.Compare, err = lookup(compareFunctions, field+".compare_op", j.CompareOp, gputypes.CompareFunctionAlways); err != nil {
		return f, err
	}
	return f, nil
}

func parseBlendAttachment(field string, j *jsonBlendAttachment) (BlendAttachment, error) {
	b := BlendAttachment{Enable: j.BlendEnable}
	var err error
	if b.SrcColor, err = lookup(blendFactors, field+".src_color_blend_factor", j.SrcColorBlendFactor, gputypes.BlendFactorZero); err != nil {
		return b, err
	}
	if b.DstColor, err = lookup(blendFactors, field+".dst_color_blend_factor", j.DstColorBlendFactor, gputypes.BlendFactorZero); err != nil {
		return b, err
	}
	if b.ColorOp, err = lookup(blendOperations, field+".color_blend_op", j.ColorBlendOp, gputypes.BlendOperationAdd); err != nil {
		return b, err
	}
	if b.SrcAlpha, err = lookup(blendFactors, field+".src_alpha_blend_factor", j.SrcAlphaBlendFactor, gputypes.BlendFactorZero); err != nil {
		return b, err
	}
	if b.DstAlpha, err = lookup(blendFactors, field+".dst_alpha_blend_factor", j.DstAlphaBlendFactor, gputypes.BlendFactorZero); err != nil {
		return b, err
	}
	if b.AlphaOp, err = lookup(blendOperations, field+".alpha_blend_op", j.AlphaBlendOp, gputypes.BlendOperationAdd); err != nil {
		return b, err
	}
	if b.WriteMask, err = colorWriteMask(field+".color_write_mask", j.ColorWriteMask); err != nil {
		return b, err
	}
	return b, nil
}

// isIdentifier reports whether s can be used as a WGSL identifier. Only ASCII identifiers are accepted, which keeps
// binding name hashes stable.
func isIdentifier(s string) bool {
	if s == "" || s == "_" || (len(s) > 1 && s[:2] == "__") {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
