package backend

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
)

// Op names a command captured by the recording backend.
type Op string

const (
	OpCopyBufferToBuffer  Op = "copy_buffer_to_buffer"
	OpCopyBufferToTexture Op = "copy_buffer_to_texture"
	OpBlitTexture         Op = "blit_texture"
	OpTransitionTexture   Op = "transition_texture"
	OpTransitionBuffer    Op = "transition_buffer"
	OpBeginRenderPass     Op = "begin_render_pass"
	OpEndRenderPass       Op = "end_render_pass"
	OpClearColor          Op = "clear_color"
	OpClearDepthStencil   Op = "clear_depth_stencil"
	OpSetPipeline         Op = "set_pipeline"
	OpSetBindGroup        Op = "set_bind_group"
	OpSetViewport         Op = "set_viewport"
	OpSetScissor          Op = "set_scissor"
	OpSetVertexBuffer     Op = "set_vertex_buffer"
	OpSetIndexBuffer      Op = "set_index_buffer"
	OpDraw                Op = "draw"
	OpDrawIndexed         Op = "draw_indexed"
	OpDispatch            Op = "dispatch"
)

// Command is one recorded encoder call. Only the fields relevant to Op are set.
type Command struct {
	Op Op

	Buffer    Buffer
	DstBuffer Buffer
	Texture   Texture
	DstTex    Texture
	Offset    uint64
	DstOffset uint64
	Size      uint64
	Mip       uint32
	DstMip    uint32

	TextureFrom TextureState
	TextureTo   TextureState
	BufferFrom  BufferAccess
	BufferTo    BufferAccess

	Framebuffer Framebuffer
	Pipeline    Pipeline
	BindGroup   BindGroup
	IndexFormat gputypes.IndexFormat
	Color       gputypes.Color
	Depth       float32
	Stencil     uint32
	Rect        [6]float32
	Counts      [4]uint32
	BaseVertex  int32
}

// RecordedSubmission is one Submit call captured by the recording backend.
type RecordedSubmission struct {
	Commands []Command
	Wait     Semaphore
	Signal   Semaphore
	Fence    Fence
}

type recordingBackendImpl struct {
	mu *sync.Mutex

	surfaceFormat gputypes.TextureFormat
	backBuffers   []Texture
	nextImage     uint32

	submissions []RecordedSubmission
	written     map[Buffer]int
	created     map[string]int
	live        map[any]string
}

// RecordingBackend is a Backend that never touches a GPU. Objects are plain values, WriteBuffer and buffer copies
// are applied to host side buffer contents at submission, and every submission is kept for inspection.
type RecordingBackend interface {
	Backend

	// Submissions returns every submission recorded so far, oldest first.
	Submissions() []RecordedSubmission

	// Created returns how many objects of the given kind ("buffer", "texture", "bind_group", "pipeline", ...)
	// have been created.
	Created(kind string) int

	// Live returns how many created objects have not been released.
	Live() int

	// Contents returns the current host side contents of a buffer created by this backend.
	Contents(buf Buffer) []byte
}

var _ RecordingBackend = &recordingBackendImpl{}

// NewRecordingBackend creates the headless backend. Back buffers use BGRA8Unorm like a typical desktop surface.
//
// Returns:
//   - RecordingBackend: the headless backend
func NewRecordingBackend() RecordingBackend {
	return &recordingBackendImpl{
		mu:            &sync.Mutex{},
		surfaceFormat: gputypes.TextureFormatBGRA8Unorm,
		written:       make(map[Buffer]int),
		created:       make(map[string]int),
		live:          make(map[any]string),
	}
}

type recBuffer struct {
	b     *recordingBackendImpl
	desc  gputypes.BufferDescriptor
	bytes []byte
}

func (r *recBuffer) Label() string               { return r.desc.Label }
func (r *recBuffer) Size() uint64                { return r.desc.Size }
func (r *recBuffer) Usage() gputypes.BufferUsage { return r.desc.Usage }
func (r *recBuffer) Release()                    { r.b.release(r) }

type recTexture struct {
	b    *recordingBackendImpl
	desc TextureDescriptor
}

func (r *recTexture) Label() string                  { return r.desc.Label }
func (r *recTexture) Type() TextureType              { return r.desc.Type }
func (r *recTexture) Width() uint32                  { return r.desc.Width }
func (r *recTexture) Height() uint32                 { return r.desc.Height }
func (r *recTexture) Depth() uint32                  { return r.desc.Depth }
func (r *recTexture) MipLevelCount() uint32          { return r.desc.MipLevelCount }
func (r *recTexture) Format() gputypes.TextureFormat { return r.desc.Format }
func (r *recTexture) Usage() gputypes.TextureUsage   { return r.desc.Usage }
func (r *recTexture) Release()                       { r.b.release(r) }

type recSampler struct {
	b    *recordingBackendImpl
	desc gputypes.SamplerDescriptor
}

func (r *recSampler) Label() string { return r.desc.Label }
func (r *recSampler) Release()      { r.b.release(r) }

type recShaderModule struct {
	b     *recordingBackendImpl
	stage gputypes.ShaderStage
	code  []uint32
}

func (r *recShaderModule) Stage() gputypes.ShaderStage { return r.stage }
func (r *recShaderModule) Release()                    { r.b.release(r) }

type recBindGroupLayout struct {
	b       *recordingBackendImpl
	entries []BindGroupLayoutEntry
}

func (r *recBindGroupLayout) Entries() []BindGroupLayoutEntry { return r.entries }
func (r *recBindGroupLayout) Release()                        { r.b.release(r) }

type recPipelineLayout struct {
	b      *recordingBackendImpl
	layout BindGroupLayout
}

func (r *recPipelineLayout) Release() { r.b.release(r) }

type recRenderPass struct {
	b    *recordingBackendImpl
	desc RenderPassDescriptor
}

func (r *recRenderPass) ColorFormats() []gputypes.TextureFormat { return r.desc.ColorFormats }
func (r *recRenderPass) DepthFormat() gputypes.TextureFormat    { return r.desc.DepthFormat }
func (r *recRenderPass) Release()                               { r.b.release(r) }

type recFramebuffer struct {
	b    *recordingBackendImpl
	desc FramebufferDescriptor
}

func (r *recFramebuffer) RenderPass() RenderPass { return r.desc.RenderPass }
func (r *recFramebuffer) Width() uint32          { return r.desc.Width }
func (r *recFramebuffer) Height() uint32         { return r.desc.Height }
func (r *recFramebuffer) Release()               { r.b.release(r) }

type recPipeline struct {
	b       *recordingBackendImpl
	compute bool
	render  *RenderPipelineDescriptor
}

func (r *recPipeline) Compute() bool { return r.compute }
func (r *recPipeline) Release()      { r.b.release(r) }

// PipelineLayoutGroups returns the bind group layouts a recorded pipeline layout was created with.
func PipelineLayoutGroups(l PipelineLayout) []BindGroupLayout {
	rl, ok := l.(*recPipelineLayout)
	if !ok || rl.layout == nil {
		return nil
	}
	return []BindGroupLayout{rl.layout}
}

// RenderDescriptor returns the descriptor a recorded graphics pipeline was created from, or nil.
func RenderDescriptor(p Pipeline) *RenderPipelineDescriptor {
	if rp, ok := p.(*recPipeline); ok {
		return rp.render
	}
	return nil
}

type recBindGroup struct {
	b       *recordingBackendImpl
	layout  BindGroupLayout
	entries []BindGroupEntry
}

func (r *recBindGroup) Release() { r.b.release(r) }

// BindGroupEntries returns the writes a recorded bind group was created with, or nil.
func BindGroupEntries(bg BindGroup) []BindGroupEntry {
	if rb, ok := bg.(*recBindGroup); ok {
		return rb.entries
	}
	return nil
}

type recFence struct {
	b        *recordingBackendImpl
	signaled bool
}

func (r *recFence) Release() { r.b.release(r) }

type recSemaphore struct {
	b *recordingBackendImpl
}

func (r *recSemaphore) Release() { r.b.release(r) }

type recEncoder struct {
	b        *recordingBackendImpl
	label    string
	commands []Command
	open     bool
}

func (r *recordingBackendImpl) track(obj any, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created[kind]++
	r.live[obj] = kind
}

func (r *recordingBackendImpl) release(obj any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, obj)
}

func (r *recordingBackendImpl) Type() BackendType {
	return BackendTypeHeadless
}

func (r *recordingBackendImpl) CreateBuffer(desc gputypes.BufferDescriptor) (Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %q has zero size", desc.Label)
	}
	buf := &recBuffer{b: r, desc: desc, bytes: make([]byte, desc.Size)}
	r.track(buf, "buffer")
	return buf, nil
}

func (r *recordingBackendImpl) CreateTexture(desc TextureDescriptor) (Texture, error) {
	if desc.Width == 0 || desc.Height == 0 || desc.Depth == 0 {
		return nil, fmt.Errorf("texture %q has a zero extent", desc.Label)
	}
	tex := &recTexture{b: r, desc: desc}
	r.track(tex, "texture")
	return tex, nil
}

func (r *recordingBackendImpl) CreateSampler(desc gputypes.SamplerDescriptor) (Sampler, error) {
	s := &recSampler{b: r, desc: desc}
	r.track(s, "sampler")
	return s, nil
}

func (r *recordingBackendImpl) CreateShaderModule(label string, stage gputypes.ShaderStage, code []uint32) (ShaderModule, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("shader module %q has no code", label)
	}
	m := &recShaderModule{b: r, stage: stage, code: code}
	r.track(m, "shader_module")
	return m, nil
}

func (r *recordingBackendImpl) CreateBindGroupLayout(label string, entries []BindGroupLayoutEntry) (BindGroupLayout, error) {
	l := &recBindGroupLayout{b: r, entries: append([]BindGroupLayoutEntry(nil), entries...)}
	r.track(l, "bind_group_layout")
	return l, nil
}

func (r *recordingBackendImpl) CreatePipelineLayout(label string, layout BindGroupLayout) (PipelineLayout, error) {
	l := &recPipelineLayout{b: r, layout: layout}
	r.track(l, "pipeline_layout")
	return l, nil
}

func (r *recordingBackendImpl) CreateRenderPass(desc RenderPassDescriptor) (RenderPass, error) {
	p := &recRenderPass{b: r, desc: desc}
	r.track(p, "render_pass")
	return p, nil
}

func (r *recordingBackendImpl) CreateFramebuffer(desc FramebufferDescriptor) (Framebuffer, error) {
	if desc.RenderPass == nil {
		return nil, fmt.Errorf("framebuffer %q has no render pass", desc.Label)
	}
	if len(desc.ColorAttachments) != len(desc.RenderPass.ColorFormats()) {
		return nil, fmt.Errorf("framebuffer %q has %d color attachments, render pass expects %d",
			desc.Label, len(desc.ColorAttachments), len(desc.RenderPass.ColorFormats()))
	}
	f := &recFramebuffer{b: r, desc: desc}
	r.track(f, "framebuffer")
	return f, nil
}

func (r *recordingBackendImpl) CreateRenderPipeline(desc RenderPipelineDescriptor) (Pipeline, error) {
	if desc.VertexModule == nil {
		return nil, fmt.Errorf("render pipeline %q has no vertex module", desc.Label)
	}
	d := desc
	p := &recPipeline{b: r, render: &d}
	r.track(p, "pipeline")
	return p, nil
}

func (r *recordingBackendImpl) CreateComputePipeline(desc ComputePipelineDescriptor) (Pipeline, error) {
	if desc.Module == nil {
		return nil, fmt.Errorf("compute pipeline %q has no module", desc.Label)
	}
	p := &recPipeline{b: r, compute: true}
	r.track(p, "pipeline")
	return p, nil
}

func (r *recordingBackendImpl) CreateBindGroup(label string, layout BindGroupLayout, entries []BindGroupEntry) (BindGroup, error) {
	bg := &recBindGroup{b: r, layout: layout, entries: append([]BindGroupEntry(nil), entries...)}
	r.track(bg, "bind_group")
	return bg, nil
}

func (r *recordingBackendImpl) CreateFence(signaled bool) (Fence, error) {
	f := &recFence{b: r, signaled: signaled}
	r.track(f, "fence")
	return f, nil
}

func (r *recordingBackendImpl) CreateSemaphore() (Semaphore, error) {
	s := &recSemaphore{b: r}
	r.track(s, "semaphore")
	return s, nil
}

func (r *recordingBackendImpl) CreateCommandEncoder(label string) (CommandEncoder, error) {
	e := &recEncoder{b: r, label: label}
	r.track(e, "command_encoder")
	return e, nil
}

func (r *recordingBackendImpl) WriteBuffer(buf Buffer, offset uint64, data []byte) {
	rb := buf.(*recBuffer)
	if offset+uint64(len(data)) > uint64(len(rb.bytes)) {
		panic(fmt.Sprintf("backend: write of %d bytes at %d overruns buffer %q", len(data), offset, rb.desc.Label))
	}
	copy(rb.bytes[offset:], data)

	r.mu.Lock()
	r.written[buf]++
	r.mu.Unlock()
}

func (r *recordingBackendImpl) WaitForFence(f Fence) error {
	if !f.(*recFence).signaled {
		return fmt.Errorf("fence was never submitted")
	}
	return nil
}

func (r *recordingBackendImpl) ResetFence(f Fence) {
	f.(*recFence).signaled = false
}

func (r *recordingBackendImpl) Submit(info SubmitInfo) error {
	enc := info.Encoder.(*recEncoder)
	if enc.open {
		return fmt.Errorf("command encoder %q submitted while recording", enc.label)
	}

	// Execute the copies the host can see so tests can observe uploads landing.
	for _, c := range enc.commands {
		if c.Op == OpCopyBufferToBuffer {
			src := c.Buffer.(*recBuffer)
			dst := c.DstBuffer.(*recBuffer)
			copy(dst.bytes[c.DstOffset:c.DstOffset+c.Size], src.bytes[c.Offset:c.Offset+c.Size])
		}
	}

	if info.Fence != nil {
		info.Fence.(*recFence).signaled = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.submissions = append(r.submissions, RecordedSubmission{
		Commands: append([]Command(nil), enc.commands...),
		Wait:     info.Wait,
		Signal:   info.Signal,
		Fence:    info.Fence,
	})
	return nil
}

func (r *recordingBackendImpl) ConfigureSurface(width, height, imageCount uint32) ([]Texture, error) {
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("surface size %dx%d is empty", width, height)
	}
	for _, bb := range r.backBuffers {
		bb.Release()
	}
	r.backBuffers = make([]Texture, imageCount)
	for i := range r.backBuffers {
		tex, err := r.CreateTexture(TextureDescriptor{
			Label:         fmt.Sprintf("back buffer %d", i),
			Type:          TextureType2D,
			Width:         width,
			Height:        height,
			Depth:         1,
			MipLevelCount: 1,
			Format:        r.surfaceFormat,
			Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopyDst,
		})
		if err != nil {
			return nil, err
		}
		r.backBuffers[i] = tex
	}
	r.nextImage = 0
	return append([]Texture(nil), r.backBuffers...), nil
}

func (r *recordingBackendImpl) SurfaceFormat() gputypes.TextureFormat {
	return r.surfaceFormat
}

func (r *recordingBackendImpl) AcquireNextImage(signal Semaphore) (uint32, error) {
	if len(r.backBuffers) == 0 {
		return 0, fmt.Errorf("surface is not configured")
	}
	idx := r.nextImage
	r.nextImage = (r.nextImage + 1) % uint32(len(r.backBuffers))
	return idx, nil
}

func (r *recordingBackendImpl) Present(imageIndex uint32, wait Semaphore) error {
	if int(imageIndex) >= len(r.backBuffers) {
		return fmt.Errorf("image index %d out of range", imageIndex)
	}
	return nil
}

func (r *recordingBackendImpl) WaitIdle() {}

func (r *recordingBackendImpl) Release() {
	for _, bb := range r.backBuffers {
		bb.Release()
	}
	r.backBuffers = nil
}

func (r *recordingBackendImpl) Submissions() []RecordedSubmission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedSubmission(nil), r.submissions...)
}

func (r *recordingBackendImpl) Created(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created[kind]
}

func (r *recordingBackendImpl) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

func (r *recordingBackendImpl) Contents(buf Buffer) []byte {
	return buf.(*recBuffer).bytes
}

func (e *recEncoder) Release() { e.b.release(e) }

func (e *recEncoder) record(c Command) {
	if !e.open {
		panic(fmt.Sprintf("backend: %s recorded outside Begin/End on encoder %q", c.Op, e.label))
	}
	e.commands = append(e.commands, c)
}

func (e *recEncoder) Begin() error {
	if e.open {
		return fmt.Errorf("command encoder %q is already recording", e.label)
	}
	e.commands = e.commands[:0]
	e.open = true
	return nil
}

func (e *recEncoder) End() error {
	if !e.open {
		return fmt.Errorf("command encoder %q is not recording", e.label)
	}
	e.open = false
	return nil
}

func (e *recEncoder) CopyBufferToBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset uint64, size uint64) {
	e.record(Command{Op: OpCopyBufferToBuffer, Buffer: src, Offset: srcOffset, DstBuffer: dst, DstOffset: dstOffset, Size: size})
}

func (e *recEncoder) CopyBufferToTexture(src Buffer, srcOffset uint64, bytesPerRow uint32, dst Texture, mipLevel uint32) {
	e.record(Command{Op: OpCopyBufferToTexture, Buffer: src, Offset: srcOffset, Size: uint64(bytesPerRow), DstTex: dst, DstMip: mipLevel})
}

func (e *recEncoder) BlitTexture(dst Texture, dstMip uint32, src Texture, srcMip uint32) {
	e.record(Command{Op: OpBlitTexture, Texture: src, Mip: srcMip, DstTex: dst, DstMip: dstMip})
}

func (e *recEncoder) TransitionTexture(tex Texture, mipLevel uint32, from, to TextureState) {
	e.record(Command{Op: OpTransitionTexture, Texture: tex, Mip: mipLevel, TextureFrom: from, TextureTo: to})
}

func (e *recEncoder) TransitionBuffer(buf Buffer, from, to BufferAccess) {
	e.record(Command{Op: OpTransitionBuffer, Buffer: buf, BufferFrom: from, BufferTo: to})
}

func (e *recEncoder) BeginRenderPass(fb Framebuffer) {
	e.record(Command{Op: OpBeginRenderPass, Framebuffer: fb})
}

func (e *recEncoder) EndRenderPass() {
	e.record(Command{Op: OpEndRenderPass})
}

func (e *recEncoder) ClearColorAttachment(index uint32, color gputypes.Color) {
	e.record(Command{Op: OpClearColor, Mip: index, Color: color})
}

func (e *recEncoder) ClearDepthStencil(depth float32, stencil uint32) {
	e.record(Command{Op: OpClearDepthStencil, Depth: depth, Stencil: stencil})
}

func (e *recEncoder) SetPipeline(p Pipeline) {
	e.record(Command{Op: OpSetPipeline, Pipeline: p})
}

func (e *recEncoder) SetBindGroup(bg BindGroup) {
	e.record(Command{Op: OpSetBindGroup, BindGroup: bg})
}

func (e *recEncoder) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	e.record(Command{Op: OpSetViewport, Rect: [6]float32{x, y, width, height, minDepth, maxDepth}})
}

func (e *recEncoder) SetScissor(x, y, width, height uint32) {
	e.record(Command{Op: OpSetScissor, Counts: [4]uint32{x, y, width, height}})
}

func (e *recEncoder) SetVertexBuffer(slot uint32, buf Buffer, offset uint64) {
	e.record(Command{Op: OpSetVertexBuffer, Mip: slot, Buffer: buf, Offset: offset})
}

func (e *recEncoder) SetIndexBuffer(buf Buffer, format gputypes.IndexFormat, offset uint64) {
	e.record(Command{Op: OpSetIndexBuffer, Buffer: buf, IndexFormat: format, Offset: offset})
}

func (e *recEncoder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	e.record(Command{Op: OpDraw, Counts: [4]uint32{vertexCount, instanceCount, firstVertex, firstInstance}})
}

func (e *recEncoder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	e.record(Command{Op: OpDrawIndexed, Counts: [4]uint32{indexCount, instanceCount, firstIndex, firstInstance}, BaseVertex: baseVertex})
}

func (e *recEncoder) Dispatch(x, y, z uint32) {
	e.record(Command{Op: OpDispatch, Counts: [4]uint32{x, y, z, 0}})
}

// Count returns how many commands with the given op a submission holds.
func (s RecordedSubmission) Count(op Op) int {
	n := 0
	for _, c := range s.Commands {
		if c.Op == op {
			n++
		}
	}
	return n
}
