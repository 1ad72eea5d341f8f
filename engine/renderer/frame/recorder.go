package frame

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/deferred"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/staging"
	"github.com/gogpu/gputypes"
	"go.uber.org/zap"
)

// State is the recording state of a CommandRecorder.
type State int

const (
	// StateIdle is a recorder outside of a frame.
	StateIdle State = iota
	// StateRecording is a recorder inside a frame with no technique bound.
	StateRecording
	// StateTechniqueBound is a recorder with a technique bound and, for graphics techniques, no render setup yet.
	StateTechniqueBound
	// StateTargetBound is a recorder with a graphics technique and a render setup bound: its render pass is open.
	StateTargetBound
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateTechniqueBound:
		return "technique_bound"
	case StateTargetBound:
		return "target_bound"
	default:
		return "idle"
	}
}

// Stats counts the work a recorder has issued since it was created.
type Stats struct {
	BindGroups       int
	DescriptorWrites int
	Draws            int
	Dispatches       int
}

type recorder struct {
	backend    backend.Backend
	ring       staging.Allocator
	ringBuffer backend.Buffer
	logger     *zap.Logger

	ctx   *Context
	state State

	tech  *pipeline.Technique
	setup *pipeline.RenderSetup

	// writes holds the pending descriptor write of every binding slot of the bound technique.
	writes  []backend.BindGroupEntry
	written []bool
	dirty   bool
	bound   bool

	stats      Stats
	frameStats Stats
}

// CommandRecorder records the commands of one frame. Every method panics when called in a state that does not
// allow it, or with arguments the bound technique cannot accept: those are programmer errors.
type CommandRecorder interface {
	// State returns the current recording state.
	State() State

	// BeginTechnique binds a technique's pipeline and starts a fresh set of descriptor writes.
	//
	// Parameters:
	//   - tech: a compiled technique
	BeginTechnique(tech *pipeline.Technique)

	// EndTechnique ends the open render pass, if any, and unbinds the technique.
	EndTechnique()

	// SetRenderSetup begins the render pass of a render setup of the bound graphics technique and sets the
	// viewport and scissor to its full extent with depth range 0 to 1. Setting another render setup ends the
	// current pass first.
	//
	// Parameters:
	//   - id: a live render setup of the bound technique
	SetRenderSetup(id pipeline.RenderSetupID)

	// SetViewport overrides the viewport inside the open render pass.
	SetViewport(x, y, width, height, minDepth, maxDepth float32)

	// SetScissor overrides the scissor rectangle inside the open render pass.
	SetScissor(x, y int32, width, height uint32)

	// ClearColor clears a color attachment of the open render pass.
	//
	// Parameters:
	//   - attachment: the color attachment index
	//   - color: the clear color as RGBA
	ClearColor(attachment uint32, color [4]float32)

	// ClearDepth clears the depth and stencil attachment of the open render pass.
	ClearDepth(depth float32, stencil uint32)

	// BindVertexBuffer binds a vertex buffer slot.
	//
	// Parameters:
	//   - slot: the vertex attribute binding the buffer feeds
	//   - buf: the vertex buffer
	//   - offset: the byte offset of the first vertex
	BindVertexBuffer(slot uint32, buf *resource.Buffer, offset uint64)

	// BindIndexBuffer binds the index buffer.
	//
	// Parameters:
	//   - buf: the index buffer
	//   - offset: the byte offset of the first index
	//   - stride: the index size in bytes, 2 or 4
	BindIndexBuffer(buf *resource.Buffer, offset uint64, stride uint32)

	// SetBuffer writes a uniform or storage buffer binding.
	//
	// Parameters:
	//   - hash: the common.Hash of the binding name
	//   - buf: the buffer
	//   - offset: the byte offset of the bound range
	//   - size: the byte size of the bound range, 0 for the rest of the buffer
	SetBuffer(hash uint64, buf *resource.Buffer, offset, size uint64)

	// SetTexture writes a sampled texture or storage image binding.
	//
	// Parameters:
	//   - hash: the common.Hash of the binding name
	//   - tex: the texture
	//   - state: the state the texture is in while the technique reads or writes it
	SetTexture(hash uint64, tex *resource.Texture, state backend.TextureState)

	// SetSampler writes a sampler binding.
	//
	// Parameters:
	//   - hash: the common.Hash of the binding name
	//   - s: the sampler
	SetSampler(hash uint64, s *resource.Sampler)

	// AllocUploadBuffer reserves per-draw data in the staging ring and binds that range to a uniform or storage
	// buffer binding. It panics on a storage binding of a compute technique: those are read-write, and the staging
	// ring cannot be bound writable next to the other ranges of the dispatch.
	//
	// Parameters:
	//   - hash: the common.Hash of the binding name
	//   - size: the number of bytes to reserve
	//
	// Returns:
	//   - []byte: the host memory of the reserved range, valid until the frame is retired
	AllocUploadBuffer(hash uint64, size uint64) []byte

	// Draw records a non-indexed draw inside the open render pass.
	Draw(vertexCount, instanceCount, firstVertex uint32)

	// DrawIndexed records an indexed draw inside the open render pass.
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32)

	// Dispatch records a dispatch of the bound compute technique.
	Dispatch(x, y, z uint32)

	// CopyBuffer copies size bytes between buffers outside of a render pass.
	CopyBuffer(dst *resource.Buffer, dstOffset uint64, src *resource.Buffer, srcOffset uint64, size uint64)

	// BlitTexture copies mip 0 of src into mip 0 of dst with linear filtering, scaling to dst's extent, outside of a
	// render pass.
	BlitTexture(dst, src *resource.Texture)

	// TransitionTexture declares a change of state for every mip of a texture outside of a render pass.
	TransitionTexture(tex *resource.Texture, from, to backend.TextureState)

	// TransitionBuffer declares a change of access for a buffer outside of a render pass.
	TransitionBuffer(buf *resource.Buffer, from, to backend.BufferAccess)

	// Stats returns the counters accumulated since the recorder was created.
	Stats() Stats
}

// Recorder is the CommandRecorder the device drives: it is begun on a frame context and ended before submission.
type Recorder interface {
	CommandRecorder

	// Begin starts recording into a context whose encoder has been begun.
	Begin(ctx *Context)

	// End checks that the frame left no technique bound and finishes the context's encoder.
	//
	// Returns:
	//   - error: the encoder failed to finish
	End() error
}

var _ Recorder = &recorder{}

// NewRecorder creates a recorder that allocates per-draw data from a staging ring.
//
// Parameters:
//   - b: the backend bind groups are created on
//   - ring: the staging allocator
//   - ringBuffer: the GPU buffer the ring is flushed to; AllocUploadBuffer bindings point into it
//   - opts: optional configuration such as WithLogger
//
// Returns:
//   - Recorder: the recorder, idle
func NewRecorder(b backend.Backend, ring staging.Allocator, ringBuffer backend.Buffer, opts ...RecorderBuilderOption) Recorder {
	r := &recorder{
		backend:    b,
		ring:       ring,
		ringBuffer: ringBuffer,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.L()
	}
	return r
}

func (r *recorder) State() State { return r.state }

func (r *recorder) Stats() Stats { return r.stats }

func (r *recorder) Begin(ctx *Context) {
	r.expect("Begin", StateIdle)
	r.ctx = ctx
	r.state = StateRecording
	r.frameStats = Stats{}
}

func (r *recorder) End() error {
	r.expect("End", StateRecording)
	ctx := r.ctx
	r.ctx = nil
	r.state = StateIdle

	r.logger.Debug("recorded frame",
		zap.Int("frame", ctx.Index),
		zap.Int("bind_groups", r.frameStats.BindGroups),
		zap.Int("draws", r.frameStats.Draws),
		zap.Int("dispatches", r.frameStats.Dispatches))

	if err := ctx.Encoder.End(); err != nil {
		return fmt.Errorf("failed to end frame %d: %w", ctx.Index, err)
	}
	return nil
}

func (r *recorder) BeginTechnique(tech *pipeline.Technique) {
	r.expect("BeginTechnique", StateRecording)
	if tech == nil || tech.State() != pipeline.StateCompiled {
		panic("frame: BeginTechnique needs a compiled technique")
	}

	r.tech = tech
	n := len(tech.Bindings())
	r.writes = make([]backend.BindGroupEntry, n)
	r.written = make([]bool, n)
	r.dirty = false
	r.bound = false
	r.state = StateTechniqueBound

	r.ctx.Encoder.SetPipeline(tech.Pipeline())
}

func (r *recorder) EndTechnique() {
	r.expect("EndTechnique", StateTechniqueBound, StateTargetBound)
	if r.state == StateTargetBound {
		r.ctx.Encoder.EndRenderPass()
	}
	r.tech = nil
	r.setup = nil
	r.writes = nil
	r.written = nil
	r.state = StateRecording
}

func (r *recorder) SetRenderSetup(id pipeline.RenderSetupID) {
	r.expect("SetRenderSetup", StateTechniqueBound, StateTargetBound)
	if r.tech.Compute() {
		panic(fmt.Sprintf("frame: SetRenderSetup on compute technique %q", r.tech.Label()))
	}
	setup := r.tech.RenderSetup(id)

	enc := r.ctx.Encoder
	if r.state == StateTargetBound {
		enc.EndRenderPass()
	}
	enc.BeginRenderPass(setup.Framebuffer())
	enc.SetViewport(0, 0, float32(setup.Width()), float32(setup.Height()), 0, 1)
	enc.SetScissor(0, 0, setup.Width(), setup.Height())

	r.setup = setup
	r.state = StateTargetBound
}

func (r *recorder) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	r.expect("SetViewport", StateTargetBound)
	r.ctx.Encoder.SetViewport(x, y, width, height, minDepth, maxDepth)
}

func (r *recorder) SetScissor(x, y int32, width, height uint32) {
	r.expect("SetScissor", StateTargetBound)
	if x < 0 || y < 0 {
		panic(fmt.Sprintf("frame: scissor origin %d,%d is negative", x, y))
	}
	r.ctx.Encoder.SetScissor(uint32(x), uint32(y), width, height)
}

func (r *recorder) ClearColor(attachment uint32, color [4]float32) {
	r.expect("ClearColor", StateTargetBound)
	if int(attachment) >= len(r.setup.Colors()) {
		panic(fmt.Sprintf("frame: clear of color attachment %d, render setup has %d", attachment, len(r.setup.Colors())))
	}
	r.ctx.Encoder.ClearColorAttachment(attachment, gputypes.Color{
		R: float64(color[0]),
		G: float64(color[1]),
		B: float64(color[2]),
		A: float64(color[3]),
	})
}

func (r *recorder) ClearDepth(depth float32, stencil uint32) {
	r.expect("ClearDepth", StateTargetBound)
	if r.setup.Depth() == nil {
		panic("frame: depth clear without a depth attachment")
	}
	r.ctx.Encoder.ClearDepthStencil(depth, stencil)
}

func (r *recorder) BindVertexBuffer(slot uint32, buf *resource.Buffer, offset uint64) {
	r.expectGraphics("BindVertexBuffer")
	r.ctx.Encoder.SetVertexBuffer(slot, buf.Backend(), offset)
}

func (r *recorder) BindIndexBuffer(buf *resource.Buffer, offset uint64, stride uint32) {
	r.expectGraphics("BindIndexBuffer")
	var format gputypes.IndexFormat
	switch stride {
	case 2:
		format = gputypes.IndexFormatUint16
	case 4:
		format = gputypes.IndexFormatUint32
	default:
		panic(fmt.Sprintf("frame: index stride %d is not 2 or 4", stride))
	}
	r.ctx.Encoder.SetIndexBuffer(buf.Backend(), format, offset)
}

func (r *recorder) SetBuffer(hash uint64, buf *resource.Buffer, offset, size uint64) {
	b := r.binding("SetBuffer", hash)
	if !b.Kind.IsBuffer() {
		panic(fmt.Sprintf("frame: SetBuffer on %s binding %q", b.Kind, b.Name))
	}
	if offset > buf.Size() {
		panic(fmt.Sprintf("frame: offset %d is past the end of buffer %q", offset, buf.Label()))
	}
	if size == 0 {
		size = buf.Size() - offset
	}
	if offset+size > buf.Size() {
		panic(fmt.Sprintf("frame: range %d+%d overruns buffer %q of %d bytes", offset, size, buf.Label(), buf.Size()))
	}
	r.writeBuffer(b, buf.Backend(), offset, size)
}

func (r *recorder) SetTexture(hash uint64, tex *resource.Texture, state backend.TextureState) {
	b := r.binding("SetTexture", hash)
	switch b.Kind {
	case backend.DescriptorKindSampledTexture:
		if state == backend.TextureStateShaderWrite {
			panic(fmt.Sprintf("frame: sampled texture binding %q bound in state %s", b.Name, state))
		}
	case backend.DescriptorKindStorageTexture:
		if state != backend.TextureStateShaderWrite {
			panic(fmt.Sprintf("frame: storage image binding %q bound in state %s", b.Name, state))
		}
	default:
		panic(fmt.Sprintf("frame: SetTexture on %s binding %q", b.Kind, b.Name))
	}
	if tex.Type() != b.TextureType {
		panic(fmt.Sprintf("frame: binding %q expects a %s texture, %q is %s", b.Name, b.TextureType, tex.Label(), tex.Type()))
	}
	r.write(b, backend.BindGroupEntry{Binding: b.Slot, Texture: tex.Backend()})
}

func (r *recorder) SetSampler(hash uint64, s *resource.Sampler) {
	b := r.binding("SetSampler", hash)
	if b.Kind != backend.DescriptorKindSampler {
		panic(fmt.Sprintf("frame: SetSampler on %s binding %q", b.Kind, b.Name))
	}
	r.write(b, backend.BindGroupEntry{Binding: b.Slot, Sampler: s.Backend()})
}

func (r *recorder) AllocUploadBuffer(hash uint64, size uint64) []byte {
	b := r.binding("AllocUploadBuffer", hash)
	if !b.Kind.IsBuffer() {
		panic(fmt.Sprintf("frame: AllocUploadBuffer on %s binding %q", b.Kind, b.Name))
	}
	// Every upload range lives in the one staging ring buffer, which a dispatch cannot also bind writable.
	if b.Kind == backend.DescriptorKindStorageBuffer && r.tech.Compute() {
		panic(fmt.Sprintf("frame: AllocUploadBuffer on read-write storage binding %q of compute technique %q, bind a buffer with SetBuffer", b.Name, r.tech.Label()))
	}
	alloc := r.ring.Allocate(size, 0)
	r.writeBuffer(b, r.ringBuffer, alloc.Offset, size)
	return alloc.Data
}

func (r *recorder) Draw(vertexCount, instanceCount, firstVertex uint32) {
	r.expect("Draw", StateTargetBound)
	r.flushBindings()
	r.ctx.Encoder.Draw(vertexCount, instanceCount, firstVertex, 0)
	r.stats.Draws++
	r.frameStats.Draws++
}

func (r *recorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32) {
	r.expect("DrawIndexed", StateTargetBound)
	r.flushBindings()
	r.ctx.Encoder.DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, 0)
	r.stats.Draws++
	r.frameStats.Draws++
}

func (r *recorder) Dispatch(x, y, z uint32) {
	r.expect("Dispatch", StateTechniqueBound)
	if !r.tech.Compute() {
		panic(fmt.Sprintf("frame: Dispatch on graphics technique %q", r.tech.Label()))
	}
	r.flushBindings()
	r.ctx.Encoder.Dispatch(x, y, z)
	r.stats.Dispatches++
	r.frameStats.Dispatches++
}

func (r *recorder) CopyBuffer(dst *resource.Buffer, dstOffset uint64, src *resource.Buffer, srcOffset uint64, size uint64) {
	r.expectOutsidePass("CopyBuffer")
	if srcOffset+size > src.Size() || dstOffset+size > dst.Size() {
		panic(fmt.Sprintf("frame: copy of %d bytes from %q@%d to %q@%d is out of range", size, src.Label(), srcOffset, dst.Label(), dstOffset))
	}
	r.ctx.Encoder.CopyBufferToBuffer(src.Backend(), srcOffset, dst.Backend(), dstOffset, size)
}

func (r *recorder) BlitTexture(dst, src *resource.Texture) {
	r.expectOutsidePass("BlitTexture")
	r.ctx.Encoder.BlitTexture(dst.Backend(), 0, src.Backend(), 0)
}

func (r *recorder) TransitionTexture(tex *resource.Texture, from, to backend.TextureState) {
	r.expectOutsidePass("TransitionTexture")
	deferred.Execute(r.ctx.Encoder, deferred.TransitionTexture{Texture: tex.Backend(), From: from, To: to})
}

func (r *recorder) TransitionBuffer(buf *resource.Buffer, from, to backend.BufferAccess) {
	r.expectOutsidePass("TransitionBuffer")
	r.ctx.Encoder.TransitionBuffer(buf.Backend(), from, to)
}

func (r *recorder) expect(op string, states ...State) {
	for _, s := range states {
		if r.state == s {
			return
		}
	}
	panic(fmt.Sprintf("frame: %s called while %s", op, r.state))
}

func (r *recorder) expectGraphics(op string) {
	r.expect(op, StateTechniqueBound, StateTargetBound)
	if r.tech.Compute() {
		panic(fmt.Sprintf("frame: %s on compute technique %q", op, r.tech.Label()))
	}
}

func (r *recorder) expectOutsidePass(op string) {
	r.expect(op, StateRecording, StateTechniqueBound)
}

// binding resolves a binding of the bound technique.
func (r *recorder) binding(op string, hash uint64) pipeline.Binding {
	r.expect(op, StateTechniqueBound, StateTargetBound)
	b, ok := r.tech.Lookup(hash)
	if !ok {
		panic(fmt.Sprintf("frame: technique %q has no binding with hash %#x", r.tech.Label(), hash))
	}
	return b
}

func (r *recorder) writeBuffer(b pipeline.Binding, buf backend.Buffer, offset, size uint64) {
	if size < b.MinSize {
		panic(fmt.Sprintf("frame: binding %q needs at least %d bytes, got %d", b.Name, b.MinSize, size))
	}
	r.write(b, backend.BindGroupEntry{Binding: b.Slot, Buffer: buf, Offset: offset, Size: size})
}

func (r *recorder) write(b pipeline.Binding, entry backend.BindGroupEntry) {
	r.writes[b.Slot] = entry
	r.written[b.Slot] = true
	r.dirty = true
	r.stats.DescriptorWrites++
	r.frameStats.DescriptorWrites++
}

// flushBindings allocates one bind group from the frame pool holding every pending write and binds it, but only
// when a write happened since the last flush.
func (r *recorder) flushBindings() {
	if !r.dirty {
		if len(r.writes) > 0 && !r.bound {
			panic(fmt.Sprintf("frame: technique %q used before its bindings were set", r.tech.Label()))
		}
		return
	}
	for slot, ok := range r.written {
		if !ok {
			panic(fmt.Sprintf("frame: binding %q of technique %q is not set", r.tech.Bindings()[slot].Name, r.tech.Label()))
		}
	}

	bg, err := r.backend.CreateBindGroup(r.tech.Label(), r.tech.BindGroupLayout(), r.writes)
	if err != nil {
		panic(fmt.Sprintf("frame: failed to create bind group for technique %q: %v", r.tech.Label(), err))
	}
	r.ctx.track(bg)
	r.ctx.Encoder.SetBindGroup(bg)
	r.dirty = false
	r.bound = true
	r.stats.BindGroups++
	r.frameStats.BindGroups++
}
