// Package pipeline turns compiled technique blobs into backend pipelines. It owns the technique handle, its binding
// table and the render setups created against it, and rebuilds all of them in place when a technique is reloaded.
package pipeline

import (
	"fmt"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/technique"
	"github.com/gogpu/gputypes"
	"go.uber.org/zap"
)

// builder is the implementation of the Builder interface.
type builder struct {
	backend backend.Backend
	logger  *zap.Logger
	nextID  atomic.Uint64
}

// Builder creates and rebuilds techniques on a backend.
type Builder interface {
	// Build creates the bind group layout, pipeline layout, render pass and pipeline described by a blob.
	//
	// Parameters:
	//   - label: a label for the technique and its backend objects, usually the source path
	//   - blob: the compiled technique
	//   - surfaceFormat: the format back_buffer color attachments resolve to
	//
	// Returns:
	//   - *Technique: the compiled technique
	//   - error: a backend creation failure
	Build(label string, blob *technique.Blob, surfaceFormat gputypes.TextureFormat) (*Technique, error)

	// Rebuild replaces a technique's pipeline with one built from a new blob, refills its binding table and
	// recreates the framebuffers of every live render setup against the new render pass. The technique pointer,
	// its ID and every RenderSetupID stay valid. On failure the technique keeps its previous pipeline.
	//
	// Parameters:
	//   - tech: the technique to rebuild
	//   - blob: the recompiled technique
	//   - surfaceFormat: the format back_buffer color attachments resolve to
	//
	// Returns:
	//   - error: a backend failure, a switch between graphics and compute, or attachments the new render pass
	//     cannot use
	Rebuild(tech *Technique, blob *technique.Blob, surfaceFormat gputypes.TextureFormat) error

	// Destroy releases the technique's render setups and backend objects. The caller guarantees no in-flight
	// frame still uses them.
	Destroy(tech *Technique)

	// CreateRenderSetup binds attachments to a graphics technique. The extent is taken from the first color
	// attachment, or the depth attachment when there are no color attachments.
	//
	// Parameters:
	//   - tech: a compiled graphics technique
	//   - params: the attachments, matching the technique's attachment formats
	//
	// Returns:
	//   - RenderSetupID: the handle of the new setup
	//   - error: attachments that do not match the technique, or a backend failure
	CreateRenderSetup(tech *Technique, params RenderSetupParams) (RenderSetupID, error)

	// DestroyRenderSetup releases a render setup. It panics when the ID is stale.
	DestroyRenderSetup(tech *Technique, id RenderSetupID)
}

var _ Builder = &builder{}

// NewBuilder creates a Builder.
//
// Parameters:
//   - b: the backend pipelines are created on
//   - opts: optional configuration such as WithLogger
//
// Returns:
//   - Builder: the builder
func NewBuilder(b backend.Backend, opts ...BuilderOption) Builder {
	pb := &builder{backend: b}
	for _, opt := range opts {
		opt(pb)
	}
	if pb.logger == nil {
		pb.logger = zap.L()
	}
	return pb
}

func (b *builder) Build(label string, blob *technique.Blob, surfaceFormat gputypes.TextureFormat) (*Technique, error) {
	tech := &Technique{
		id:    b.nextID.Add(1),
		label: label,
	}
	objs, err := b.createObjects(label, blob, surfaceFormat)
	if err != nil {
		return nil, err
	}
	tech.apply(blob, objs, surfaceFormat)

	b.logger.Debug("built technique",
		zap.String("technique", label),
		zap.Bool("compute", blob.Compute),
		zap.Int("bindings", len(blob.Bindings)))
	return tech, nil
}

func (b *builder) Rebuild(tech *Technique, blob *technique.Blob, surfaceFormat gputypes.TextureFormat) error {
	if tech.state == StateDestroyed {
		panic(fmt.Sprintf("pipeline: rebuild of destroyed technique %q", tech.label))
	}
	if tech.state == StateCompiled && tech.compute != blob.Compute {
		return fmt.Errorf("technique %q cannot change between graphics and compute on reload", tech.label)
	}

	objs, err := b.createObjects(tech.label, blob, surfaceFormat)
	if err != nil {
		return err
	}

	rebuilt := make([]*RenderSetup, len(tech.setups))
	for i, slot := range tech.setups {
		if slot.setup == nil {
			continue
		}
		rs, err := newFramebuffer(b.backend, tech, objs.renderPass, slot.setup.colors, slot.setup.depth)
		if err != nil {
			for _, done := range rebuilt {
				if done != nil {
					done.framebuffer.Release()
				}
			}
			objs.release()
			return fmt.Errorf("failed to rebuild render setup %d: %w", i, err)
		}
		rebuilt[i] = rs
	}

	for i, rs := range rebuilt {
		if rs == nil {
			continue
		}
		tech.setups[i].setup.framebuffer.Release()
		tech.setups[i].setup = rs
	}
	tech.gpu.release()
	tech.apply(blob, objs, surfaceFormat)

	b.logger.Info("rebuilt technique",
		zap.String("technique", tech.label),
		zap.Int("render_setups", tech.RenderSetupCount()))
	return nil
}

func (b *builder) Destroy(tech *Technique) {
	if tech.state == StateDestroyed {
		return
	}
	for _, slot := range tech.setups {
		if slot.setup != nil {
			slot.setup.framebuffer.Release()
		}
	}
	tech.setups = nil
	tech.free = nil
	tech.gpu.release()
	tech.bindings = nil
	tech.slots = nil
	tech.state = StateDestroyed
}

func (b *builder) CreateRenderSetup(tech *Technique, params RenderSetupParams) (RenderSetupID, error) {
	tech.mustBeCompiled()
	if tech.compute {
		return RenderSetupID{}, fmt.Errorf("technique %q is a compute technique", tech.label)
	}
	rs, err := newFramebuffer(b.backend, tech, tech.gpu.renderPass, params.Colors, params.Depth)
	if err != nil {
		return RenderSetupID{}, err
	}
	return tech.insertSetup(rs), nil
}

func (b *builder) DestroyRenderSetup(tech *Technique, id RenderSetupID) {
	rs := tech.removeSetup(id)
	rs.framebuffer.Release()
}

// apply installs a freshly built object set and refills the binding table from the blob.
func (t *Technique) apply(blob *technique.Blob, objs *gpuObjects, surfaceFormat gputypes.TextureFormat) {
	t.gpu = *objs
	t.compute = blob.Compute
	t.checksum = blob.Checksum
	t.includes = blob.Includes
	t.workgroupSize = blob.WorkgroupSize
	t.colorFormats = colorFormats(blob, surfaceFormat)
	t.depthFormat = blob.DepthFormat

	t.bindings = make(map[uint64]Binding, len(blob.Bindings))
	t.slots = make([]Binding, len(blob.Bindings))
	for i, bd := range blob.Bindings {
		b := Binding{
			Name:        bd.Name,
			Slot:        uint32(i),
			Kind:        bd.Kind,
			TextureType: bd.TextureType,
			MinSize:     bd.MinSize,
		}
		t.bindings[bd.Hash] = b
		t.slots[i] = b
	}
	t.state = StateCompiled
}

func colorFormats(blob *technique.Blob, surfaceFormat gputypes.TextureFormat) []gputypes.TextureFormat {
	formats := make([]gputypes.TextureFormat, len(blob.ColorAttachments))
	for i, c := range blob.ColorAttachments {
		formats[i] = c.Format
		if c.BackBuffer {
			formats[i] = surfaceFormat
		}
	}
	return formats
}

// createObjects builds every backend object for a blob, releasing what was created when a later step fails.
func (b *builder) createObjects(label string, blob *technique.Blob, surfaceFormat gputypes.TextureFormat) (_ *gpuObjects, err error) {
	objs := &gpuObjects{}
	defer func() {
		if err != nil {
			objs.release()
		}
	}()

	// A technique without bindings gets a pipeline layout without groups: WebGPU requires every group of the
	// layout to be bound before a draw, and the recorder never binds an empty one.
	if len(blob.Bindings) > 0 {
		objs.layout, err = b.backend.CreateBindGroupLayout(label, layoutEntries(blob))
		if err != nil {
			return nil, fmt.Errorf("failed to create bind group layout: %w", err)
		}
	}
	objs.pipelineLayout, err = b.backend.CreatePipelineLayout(label, objs.layout)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline layout: %w", err)
	}

	module := func(stage gputypes.ShaderStage, code []uint32) (backend.ShaderModule, error) {
		m, err := b.backend.CreateShaderModule(label, stage, code)
		if err != nil {
			return nil, fmt.Errorf("failed to create shader module: %w", err)
		}
		objs.modules = append(objs.modules, m)
		return m, nil
	}

	if blob.Compute {
		cs, err := module(gputypes.ShaderStageCompute, blob.ComputeCode)
		if err != nil {
			return nil, err
		}
		objs.pipeline, err = b.backend.CreateComputePipeline(backend.ComputePipelineDescriptor{
			Label:  label,
			Layout: objs.pipelineLayout,
			Module: cs,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create compute pipeline: %w", err)
		}
		return objs, nil
	}

	formats := colorFormats(blob, surfaceFormat)
	objs.renderPass, err = b.backend.CreateRenderPass(backend.RenderPassDescriptor{
		Label:        label,
		ColorFormats: formats,
		DepthFormat:  blob.DepthFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create render pass: %w", err)
	}

	desc := renderPipelineDescriptor(label, blob, formats)
	desc.Layout = objs.pipelineLayout
	desc.RenderPass = objs.renderPass
	if desc.VertexModule, err = module(gputypes.ShaderStageVertex, blob.VertexCode); err != nil {
		return nil, err
	}
	if len(blob.FragmentCode) > 0 {
		if desc.FragmentModule, err = module(gputypes.ShaderStageFragment, blob.FragmentCode); err != nil {
			return nil, err
		}
	}
	objs.pipeline, err = b.backend.CreateRenderPipeline(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create render pipeline: %w", err)
	}
	return objs, nil
}

// layoutEntries maps the binding table to layout entries. Graphics bindings are visible to both stages except
// storage images, which vertex shaders cannot write; graphics storage buffers are read-only to match the
// generated <storage, read> declarations.
func layoutEntries(blob *technique.Blob) []backend.BindGroupLayoutEntry {
	entries := make([]backend.BindGroupLayoutEntry, len(blob.Bindings))
	for i, bd := range blob.Bindings {
		visibility := gputypes.ShaderStagesVertexFragment
		switch {
		case blob.Compute:
			visibility = gputypes.ShaderStageCompute
		case bd.Kind == backend.DescriptorKindStorageTexture:
			visibility = gputypes.ShaderStageFragment
		}
		entries[i] = backend.BindGroupLayoutEntry{
			Binding:       uint32(i),
			Kind:          bd.Kind,
			Visibility:    visibility,
			TextureType:   bd.TextureType,
			StorageFormat: bd.StorageFormat,
			ReadOnly:      bd.Kind == backend.DescriptorKindStorageBuffer && !blob.Compute,
		}
	}
	return entries
}

// renderPipelineDescriptor fills the fixed-function state of a graphics pipeline. Layout, render pass and shader
// modules are left to the caller.
func renderPipelineDescriptor(label string, blob *technique.Blob, formats []gputypes.TextureFormat) backend.RenderPipelineDescriptor {
	strides := blob.VertexStrides()
	buffers := make([]gputypes.VertexBufferLayout, len(strides))
	for i := range buffers {
		buffers[i] = gputypes.VertexBufferLayout{ArrayStride: strides[i], StepMode: gputypes.VertexStepModeVertex}
	}
	for loc, a := range blob.VertexAttributes {
		vb := &buffers[a.Binding]
		vb.StepMode = a.StepMode
		vb.Attributes = append(vb.Attributes, gputypes.VertexAttribute{
			Format:         a.Format,
			Offset:         uint64(a.Offset),
			ShaderLocation: uint32(loc),
		})
	}

	rs := &blob.Rasterizer
	desc := backend.RenderPipelineDescriptor{
		Label:         label,
		VertexBuffers: buffers,
		Primitive: gputypes.PrimitiveState{
			Topology:       blob.InputAssembly.Topology,
			FrontFace:      rs.FrontFace,
			CullMode:       rs.CullMode,
			UnclippedDepth: rs.DepthClamp,
		},
		Rasterizer: backend.RasterizerState{
			PolygonMode:       rs.PolygonMode,
			LineWidth:         rs.LineWidth,
			RasterizerDiscard: rs.Discard,
			PrimitiveRestart:  blob.InputAssembly.PrimitiveRestart,
		},
	}

	if blob.DepthFormat != gputypes.TextureFormatUndefined {
		ds := &blob.DepthStencil
		state := &gputypes.DepthStencilState{
			Format:            blob.DepthFormat,
			DepthWriteEnabled: ds.DepthTest && ds.DepthWrite,
			DepthCompare:      gputypes.CompareFunctionAlways,
			StencilFront:      disabledStencilFace(),
			StencilBack:       disabledStencilFace(),
		}
		if ds.DepthTest {
			state.DepthCompare = ds.DepthCompare
		}
		if ds.StencilTest {
			state.StencilFront = stencilFace(ds.Front)
			state.StencilBack = stencilFace(ds.Back)
			state.StencilReadMask = ds.Front.CompareMask
			state.StencilWriteMask = ds.Front.WriteMask
			desc.StencilReference = ds.Front.Reference
		}
		if rs.DepthBias {
			state.DepthBias = int32(rs.DepthBiasConstant)
			state.DepthBiasSlopeScale = rs.DepthBiasSlope
			state.DepthBiasClamp = rs.DepthBiasClamp
		}
		desc.DepthStencil = state
	}

	desc.Targets = make([]gputypes.ColorTargetState, len(formats))
	for i, format := range formats {
		target := gputypes.ColorTargetState{Format: format, WriteMask: gputypes.ColorWriteMaskAll}
		if i < len(blob.Blend) {
			bl := blob.Blend[i]
			target.WriteMask = bl.WriteMask
			if bl.Enable {
				target.Blend = &gputypes.BlendState{
					Color: gputypes.BlendComponent{SrcFactor: bl.SrcColor, DstFactor: bl.DstColor, Operation: bl.ColorOp},
					Alpha: gputypes.BlendComponent{SrcFactor: bl.SrcAlpha, DstFactor: bl.DstAlpha, Operation: bl.AlphaOp},
				}
			}
		}
		desc.Targets[i] = target
	}
	return desc
}

func stencilFace(f technique.StencilFace) gputypes.StencilFaceState {
	return gputypes.StencilFaceState{
		Compare:     f.Compare,
		FailOp:      f.FailOp,
		DepthFailOp: f.DepthFailOp,
		PassOp:      f.PassOp,
	}
}

func disabledStencilFace() gputypes.StencilFaceState {
	return gputypes.StencilFaceState{
		Compare:     gputypes.CompareFunctionAlways,
		FailOp:      gputypes.StencilOperationKeep,
		DepthFailOp: gputypes.StencilOperationKeep,
		PassOp:      gputypes.StencilOperationKeep,
	}
}
