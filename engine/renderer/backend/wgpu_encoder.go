package backend

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/gputypes"
)

type vertexBinding struct {
	buf    *wgpu.Buffer
	offset uint64
}

type indexBinding struct {
	buf    *wgpu.Buffer
	format wgpu.IndexFormat
	offset uint64
}

type viewportState struct {
	x, y, width, height, minDepth, maxDepth float32
}

type scissorState struct {
	x, y, width, height uint32
}

// wgpuEncoder maps the explicit pass model onto WebGPU. WebGPU encoders are single use, so Begin creates a
// fresh one every frame. Render passes are begun lazily at the first draw and suspended around copies and
// clears; a suspended pass resumes with load ops that keep its attachments. All bound state is cached and
// replayed whenever a pass (re)starts because WebGPU pass state does not outlive the pass.
type wgpuEncoder struct {
	b     *wgpuBackendImpl
	label string

	enc      *wgpu.CommandEncoder
	finished *wgpu.CommandBuffer

	framebuffer *wgpuFramebuffer
	renderPass  *wgpu.RenderPassEncoder
	computePass *wgpu.ComputePassEncoder

	colorLoad    []wgpu.LoadOp
	colorClear   []wgpu.Color
	depthLoad    wgpu.LoadOp
	depthClear   float32
	stencilLoad  wgpu.LoadOp
	stencilClear uint32

	renderPipeline  *wgpuPipeline
	computePipeline *wgpuPipeline
	bindGroup       *wgpu.BindGroup
	vertexBuffers   map[uint32]vertexBinding
	indexBuffer     *indexBinding
	viewport        *viewportState
	scissor         *scissorState
}

var _ CommandEncoder = &wgpuEncoder{}

func (e *wgpuEncoder) Begin() error {
	if e.enc != nil {
		e.enc.Release()
		e.enc = nil
	}
	if e.finished != nil {
		e.finished.Release()
		e.finished = nil
	}
	enc, err := e.b.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: e.label})
	if err != nil {
		return fmt.Errorf("failed to create command encoder %q: %w", e.label, err)
	}
	e.enc = enc
	e.framebuffer = nil
	e.renderPass = nil
	e.computePass = nil
	e.renderPipeline = nil
	e.computePipeline = nil
	e.bindGroup = nil
	e.vertexBuffers = make(map[uint32]vertexBinding)
	e.indexBuffer = nil
	e.viewport = nil
	e.scissor = nil
	return nil
}

func (e *wgpuEncoder) End() error {
	if e.enc == nil {
		return errors.New("command encoder is not recording")
	}
	if e.framebuffer != nil {
		e.EndRenderPass()
	}
	e.endComputePass()

	cb, err := e.enc.Finish(nil)
	e.enc.Release()
	e.enc = nil
	if err != nil {
		return fmt.Errorf("failed to finish command encoder %q: %w", e.label, err)
	}
	e.finished = cb
	return nil
}

func (e *wgpuEncoder) Release() {
	if e.enc != nil {
		e.enc.Release()
		e.enc = nil
	}
	if e.finished != nil {
		e.finished.Release()
		e.finished = nil
	}
}

func (e *wgpuEncoder) mustRecord() {
	if e.enc == nil {
		panic(fmt.Sprintf("backend: command encoder %q used outside Begin/End", e.label))
	}
}

// suspend ends whatever pass is open so transfer commands can be encoded.
func (e *wgpuEncoder) suspend() {
	e.endComputePass()
	if e.renderPass != nil {
		e.renderPass.End()
		e.renderPass.Release()
		e.renderPass = nil
	}
}

func (e *wgpuEncoder) endComputePass() {
	if e.computePass != nil {
		e.computePass.End()
		e.computePass.Release()
		e.computePass = nil
	}
}

// ensureRenderPass begins or resumes the framebuffer's pass and replays cached state.
func (e *wgpuEncoder) ensureRenderPass() *wgpu.RenderPassEncoder {
	if e.renderPass != nil {
		return e.renderPass
	}
	if e.framebuffer == nil {
		panic("backend: draw recorded outside a render pass")
	}

	fb := e.framebuffer.desc
	desc := &wgpu.RenderPassDescriptor{
		Label:            fb.Label,
		ColorAttachments: make([]wgpu.RenderPassColorAttachment, len(fb.ColorAttachments)),
	}
	for i, tex := range fb.ColorAttachments {
		desc.ColorAttachments[i] = wgpu.RenderPassColorAttachment{
			View:       tex.(*wgpuTexture).view,
			LoadOp:     e.colorLoad[i],
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: e.colorClear[i],
		}
		e.colorLoad[i] = wgpu.LoadOpLoad
	}
	if fb.DepthAttachment != nil {
		depth := fb.DepthAttachment.(*wgpuTexture)
		attachment := &wgpu.RenderPassDepthStencilAttachment{
			View:            depth.view,
			DepthLoadOp:     e.depthLoad,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: e.depthClear,
		}
		if hasStencil(depth.desc.Format) {
			attachment.StencilLoadOp = e.stencilLoad
			attachment.StencilStoreOp = wgpu.StoreOpStore
			attachment.StencilClearValue = e.stencilClear
		}
		desc.DepthStencilAttachment = attachment
		e.depthLoad = wgpu.LoadOpLoad
		e.stencilLoad = wgpu.LoadOpLoad
	}

	e.endComputePass()
	e.renderPass = e.enc.BeginRenderPass(desc)

	if e.renderPipeline != nil {
		e.renderPass.SetPipeline(e.renderPipeline.render)
		e.renderPass.SetStencilReference(e.renderPipeline.stencilReference)
	}
	if e.bindGroup != nil {
		e.renderPass.SetBindGroup(0, e.bindGroup, nil)
	}
	for slot, vb := range e.vertexBuffers {
		e.renderPass.SetVertexBuffer(slot, vb.buf, vb.offset, wgpu.WholeSize)
	}
	if e.indexBuffer != nil {
		e.renderPass.SetIndexBuffer(e.indexBuffer.buf, e.indexBuffer.format, e.indexBuffer.offset, wgpu.WholeSize)
	}
	if e.viewport != nil {
		v := e.viewport
		e.renderPass.SetViewport(v.x, v.y, v.width, v.height, v.minDepth, v.maxDepth)
	}
	if e.scissor != nil {
		s := e.scissor
		e.renderPass.SetScissorRect(s.x, s.y, s.width, s.height)
	}
	return e.renderPass
}

func (e *wgpuEncoder) ensureComputePass() *wgpu.ComputePassEncoder {
	if e.computePass != nil {
		return e.computePass
	}
	if e.framebuffer != nil {
		panic("backend: dispatch recorded inside a render pass")
	}
	e.computePass = e.enc.BeginComputePass(nil)
	if e.computePipeline != nil {
		e.computePass.SetPipeline(e.computePipeline.compute)
	}
	if e.bindGroup != nil {
		e.computePass.SetBindGroup(0, e.bindGroup, nil)
	}
	return e.computePass
}

func hasStencil(format gputypes.TextureFormat) bool {
	switch format {
	case gputypes.TextureFormatStencil8, gputypes.TextureFormatDepth24PlusStencil8,
		gputypes.TextureFormatDepth32FloatStencil8:
		return true
	default:
		return false
	}
}

func (e *wgpuEncoder) CopyBufferToBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset uint64, size uint64) {
	e.mustRecord()
	e.suspend()
	e.enc.CopyBufferToBuffer(src.(*wgpuBuffer).buf, srcOffset, dst.(*wgpuBuffer).buf, dstOffset, size)
}

func (e *wgpuEncoder) CopyBufferToTexture(src Buffer, srcOffset uint64, bytesPerRow uint32, dst Texture, mipLevel uint32) {
	e.mustRecord()
	e.suspend()
	tex := dst.(*wgpuTexture)
	width := max(tex.desc.Width>>mipLevel, 1)
	height := max(tex.desc.Height>>mipLevel, 1)
	depth := max(tex.desc.Depth, 1)
	if tex.desc.Type == TextureType3D {
		depth = max(depth>>mipLevel, 1)
	}
	e.enc.CopyBufferToTexture(
		&wgpu.ImageCopyBuffer{
			Layout: wgpu.TextureDataLayout{
				Offset:       srcOffset,
				BytesPerRow:  bytesPerRow,
				RowsPerImage: height,
			},
			Buffer: src.(*wgpuBuffer).buf,
		},
		&wgpu.ImageCopyTexture{
			Texture:  tex.tex,
			MipLevel: mipLevel,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: depth,
		},
	)
}

func (e *wgpuEncoder) BlitTexture(dst Texture, dstMip uint32, src Texture, srcMip uint32) {
	e.mustRecord()
	e.suspend()
	e.b.blitter.blit(e.enc, dst.(*wgpuTexture), dstMip, src.(*wgpuTexture), srcMip)
}

// TransitionTexture is a no-op: WebGPU tracks resource usage itself.
func (e *wgpuEncoder) TransitionTexture(tex Texture, mipLevel uint32, from, to TextureState) {
	e.mustRecord()
}

// TransitionBuffer is a no-op: WebGPU tracks resource usage itself.
func (e *wgpuEncoder) TransitionBuffer(buf Buffer, from, to BufferAccess) {
	e.mustRecord()
}

func (e *wgpuEncoder) BeginRenderPass(fb Framebuffer) {
	e.mustRecord()
	if e.framebuffer != nil {
		panic("backend: render pass begun while another is open")
	}
	e.endComputePass()

	f := fb.(*wgpuFramebuffer)
	e.framebuffer = f
	e.colorLoad = make([]wgpu.LoadOp, len(f.desc.ColorAttachments))
	e.colorClear = make([]wgpu.Color, len(f.desc.ColorAttachments))
	for i := range e.colorLoad {
		e.colorLoad[i] = wgpu.LoadOpLoad
	}
	e.depthLoad = wgpu.LoadOpLoad
	e.depthClear = 1
	e.stencilLoad = wgpu.LoadOpLoad
	e.stencilClear = 0
	e.viewport = nil
	e.scissor = nil
}

func (e *wgpuEncoder) EndRenderPass() {
	e.mustRecord()
	if e.framebuffer == nil {
		panic("backend: no render pass to end")
	}
	// Flushes clears recorded after the last draw.
	e.ensureRenderPass()
	e.renderPass.End()
	e.renderPass.Release()
	e.renderPass = nil
	e.framebuffer = nil
}

func (e *wgpuEncoder) ClearColorAttachment(index uint32, color gputypes.Color) {
	e.mustRecord()
	if e.framebuffer == nil || int(index) >= len(e.colorLoad) {
		panic(fmt.Sprintf("backend: clear of color attachment %d outside its render pass", index))
	}
	e.suspend()
	e.colorLoad[index] = wgpu.LoadOpClear
	e.colorClear[index] = toWGPUColor(color)
}

func (e *wgpuEncoder) ClearDepthStencil(depth float32, stencil uint32) {
	e.mustRecord()
	if e.framebuffer == nil || e.framebuffer.desc.DepthAttachment == nil {
		panic("backend: depth clear without a depth attachment")
	}
	e.suspend()
	e.depthLoad = wgpu.LoadOpClear
	e.depthClear = depth
	e.stencilLoad = wgpu.LoadOpClear
	e.stencilClear = stencil
}

func (e *wgpuEncoder) SetPipeline(p Pipeline) {
	e.mustRecord()
	pipe := p.(*wgpuPipeline)
	if pipe.Compute() {
		e.computePipeline = pipe
		if e.computePass != nil {
			e.computePass.SetPipeline(pipe.compute)
		}
		return
	}
	e.renderPipeline = pipe
	if e.renderPass != nil {
		e.renderPass.SetPipeline(pipe.render)
		e.renderPass.SetStencilReference(pipe.stencilReference)
	}
}

func (e *wgpuEncoder) SetBindGroup(bg BindGroup) {
	e.mustRecord()
	e.bindGroup = bg.(*wgpuBindGroup).bg
	if e.renderPass != nil {
		e.renderPass.SetBindGroup(0, e.bindGroup, nil)
	}
	if e.computePass != nil {
		e.computePass.SetBindGroup(0, e.bindGroup, nil)
	}
}

func (e *wgpuEncoder) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	e.mustRecord()
	e.viewport = &viewportState{x, y, width, height, minDepth, maxDepth}
	if e.renderPass != nil {
		e.renderPass.SetViewport(x, y, width, height, minDepth, maxDepth)
	}
}

func (e *wgpuEncoder) SetScissor(x, y, width, height uint32) {
	e.mustRecord()
	e.scissor = &scissorState{x, y, width, height}
	if e.renderPass != nil {
		e.renderPass.SetScissorRect(x, y, width, height)
	}
}

func (e *wgpuEncoder) SetVertexBuffer(slot uint32, buf Buffer, offset uint64) {
	e.mustRecord()
	vb := vertexBinding{buf: buf.(*wgpuBuffer).buf, offset: offset}
	e.vertexBuffers[slot] = vb
	if e.renderPass != nil {
		e.renderPass.SetVertexBuffer(slot, vb.buf, offset, wgpu.WholeSize)
	}
}

func (e *wgpuEncoder) SetIndexBuffer(buf Buffer, format gputypes.IndexFormat, offset uint64) {
	e.mustRecord()
	e.indexBuffer = &indexBinding{buf: buf.(*wgpuBuffer).buf, format: toWGPUIndexFormat(format), offset: offset}
	if e.renderPass != nil {
		e.renderPass.SetIndexBuffer(e.indexBuffer.buf, e.indexBuffer.format, offset, wgpu.WholeSize)
	}
}

func (e *wgpuEncoder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	e.mustRecord()
	e.ensureRenderPass().Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (e *wgpuEncoder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	e.mustRecord()
	e.ensureRenderPass().DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

func (e *wgpuEncoder) Dispatch(x, y, z uint32) {
	e.mustRecord()
	e.ensureComputePass().DispatchWorkgroups(x, y, z)
}
