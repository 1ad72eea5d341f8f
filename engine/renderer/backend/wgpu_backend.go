package backend

import (
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/gputypes"
	"go.uber.org/zap"
)

const entryPoint = "main"

type wgpuBackendImpl struct {
	mu     *sync.Mutex
	logger *zap.Logger

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface
	device   *wgpu.Device
	queue    *wgpu.Queue

	forceFallbackAdapter bool
	presentMode          gputypes.PresentMode
	surfaceFormat        wgpu.TextureFormat

	// backBuffers are proxies whose view is swapped to the acquired surface texture.
	backBuffers    []*wgpuTexture
	imageCursor    uint32
	surfaceTexture *wgpu.Texture

	lastSubmission wgpu.SubmissionIndex
	blitter        *wgpuBlitter
}

var _ Backend = &wgpuBackendImpl{}

// NewWGPUBackend creates the WebGPU backend for the given surface. The calling goroutine is locked to its OS
// thread; all rendering must happen on it.
//
// Parameters:
//   - surfaceDescriptor: the platform surface descriptor from the window layer
//   - opts: functional options for the backend
//
// Returns:
//   - Backend: the WebGPU backend
//   - error: error if no adapter or device could be acquired
func NewWGPUBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, opts ...WGPUBackendOption) (Backend, error) {
	runtime.LockOSThread()
	b := &wgpuBackendImpl{
		mu:          &sync.Mutex{},
		logger:      zap.L(),
		presentMode: gputypes.PresentModeFifo,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.instance = wgpu.CreateInstance(nil)
	b.surface = b.instance.CreateSurface(surfaceDescriptor)

	adapter, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: b.forceFallbackAdapter,
		CompatibleSurface:    b.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	b.adapter = adapter

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "oxy-gfx device",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	b.device = device
	b.queue = device.GetQueue()

	capabilities := b.surface.GetCapabilities(b.adapter)
	if len(capabilities.Formats) == 0 {
		return nil, errors.New("surface reports no formats")
	}
	b.surfaceFormat = capabilities.Formats[0]

	b.blitter = newWGPUBlitter(b)
	return b, nil
}

type wgpuBuffer struct {
	buf  *wgpu.Buffer
	desc gputypes.BufferDescriptor
}

func (w *wgpuBuffer) Label() string               { return w.desc.Label }
func (w *wgpuBuffer) Size() uint64                { return w.desc.Size }
func (w *wgpuBuffer) Usage() gputypes.BufferUsage { return w.desc.Usage }
func (w *wgpuBuffer) Release()                    { w.buf.Release() }

type wgpuTexture struct {
	tex  *wgpu.Texture
	view *wgpu.TextureView
	desc TextureDescriptor

	// mipViews caches single level 2D views used as blit sources and targets.
	mipViews map[uint32]*wgpu.TextureView
	// proxy marks a back buffer whose view belongs to the surface.
	proxy bool
}

func (w *wgpuTexture) Label() string                  { return w.desc.Label }
func (w *wgpuTexture) Type() TextureType              { return w.desc.Type }
func (w *wgpuTexture) Width() uint32                  { return w.desc.Width }
func (w *wgpuTexture) Height() uint32                 { return w.desc.Height }
func (w *wgpuTexture) Depth() uint32                  { return w.desc.Depth }
func (w *wgpuTexture) MipLevelCount() uint32          { return w.desc.MipLevelCount }
func (w *wgpuTexture) Format() gputypes.TextureFormat { return w.desc.Format }
func (w *wgpuTexture) Usage() gputypes.TextureUsage   { return w.desc.Usage }

func (w *wgpuTexture) Release() {
	if w.proxy {
		return
	}
	for _, v := range w.mipViews {
		v.Release()
	}
	w.mipViews = nil
	if w.view != nil {
		w.view.Release()
	}
	if w.tex != nil {
		w.tex.Release()
	}
}

// mipView returns a 2D view of a single mip level.
func (w *wgpuTexture) mipView(level uint32) *wgpu.TextureView {
	if w.proxy || (level == 0 && w.desc.MipLevelCount <= 1 && w.desc.Type == TextureType2D) {
		return w.view
	}
	if v, ok := w.mipViews[level]; ok {
		return v
	}
	v, err := w.tex.CreateView(&wgpu.TextureViewDescriptor{
		Label:           fmt.Sprintf("%s mip %d", w.desc.Label, level),
		Format:          toWGPUTextureFormat(w.desc.Format),
		Dimension:       wgpu.TextureViewDimension2D,
		BaseMipLevel:    level,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: 1,
		Aspect:          wgpu.TextureAspectAll,
	})
	if err != nil {
		panic(fmt.Sprintf("backend: failed to create mip %d view of %q: %v", level, w.desc.Label, err))
	}
	if w.mipViews == nil {
		w.mipViews = make(map[uint32]*wgpu.TextureView)
	}
	w.mipViews[level] = v
	return v
}

type wgpuSampler struct {
	s     *wgpu.Sampler
	label string
}

func (w *wgpuSampler) Label() string { return w.label }
func (w *wgpuSampler) Release()      { w.s.Release() }

type wgpuShaderModule struct {
	module *wgpu.ShaderModule
	stage  gputypes.ShaderStage
}

func (w *wgpuShaderModule) Stage() gputypes.ShaderStage { return w.stage }
func (w *wgpuShaderModule) Release()                    { w.module.Release() }

type wgpuBindGroupLayout struct {
	layout  *wgpu.BindGroupLayout
	entries []BindGroupLayoutEntry
}

func (w *wgpuBindGroupLayout) Entries() []BindGroupLayoutEntry { return w.entries }
func (w *wgpuBindGroupLayout) Release()                        { w.layout.Release() }

type wgpuPipelineLayout struct {
	layout *wgpu.PipelineLayout
}

func (w *wgpuPipelineLayout) Release() { w.layout.Release() }

// wgpuRenderPass has no GPU object: WebGPU describes passes at encode time.
type wgpuRenderPass struct {
	desc RenderPassDescriptor
}

func (w *wgpuRenderPass) ColorFormats() []gputypes.TextureFormat { return w.desc.ColorFormats }
func (w *wgpuRenderPass) DepthFormat() gputypes.TextureFormat    { return w.desc.DepthFormat }
func (w *wgpuRenderPass) Release()                               {}

// wgpuFramebuffer keeps texture references and resolves views when the pass begins, so back buffer proxies
// always target the image acquired for the current frame.
type wgpuFramebuffer struct {
	desc FramebufferDescriptor
}

func (w *wgpuFramebuffer) RenderPass() RenderPass { return w.desc.RenderPass }
func (w *wgpuFramebuffer) Width() uint32          { return w.desc.Width }
func (w *wgpuFramebuffer) Height() uint32         { return w.desc.Height }
func (w *wgpuFramebuffer) Release()               {}

type wgpuPipeline struct {
	render           *wgpu.RenderPipeline
	compute          *wgpu.ComputePipeline
	stencilReference uint32
}

func (w *wgpuPipeline) Compute() bool { return w.compute != nil }

func (w *wgpuPipeline) Release() {
	if w.render != nil {
		w.render.Release()
	}
	if w.compute != nil {
		w.compute.Release()
	}
}

type wgpuBindGroup struct {
	bg *wgpu.BindGroup
}

func (w *wgpuBindGroup) Release() { w.bg.Release() }

// wgpuFence is emulated with the queue's submission index.
type wgpuFence struct {
	signaled  bool
	submitted bool
	index     wgpu.SubmissionIndex
}

func (w *wgpuFence) Release() {}

// wgpuSemaphore is a no-op: a single WebGPU queue orders acquire, submit and present.
type wgpuSemaphore struct{}

func (w *wgpuSemaphore) Release() {}

func (b *wgpuBackendImpl) Type() BackendType {
	return BackendTypeWGPU
}

func (b *wgpuBackendImpl) CreateBuffer(desc gputypes.BufferDescriptor) (Buffer, error) {
	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: wgpu.BufferUsage(desc.Usage | gputypes.BufferUsageCopyDst),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer %q: %w", desc.Label, err)
	}
	return &wgpuBuffer{buf: buf, desc: desc}, nil
}

// textureUsage widens the requested usage with what uploads, mip generation and blits need.
func textureUsage(desc TextureDescriptor) gputypes.TextureUsage {
	usage := desc.Usage | gputypes.TextureUsageTextureBinding
	if desc.Format.IsDepthStencil() {
		return usage | gputypes.TextureUsageRenderAttachment
	}
	usage |= gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	if desc.Format != gputypes.TextureFormatRG11B10Ufloat && desc.Type != TextureType3D {
		usage |= gputypes.TextureUsageRenderAttachment
	}
	return usage
}

func (b *wgpuBackendImpl) CreateTexture(desc TextureDescriptor) (Texture, error) {
	layers := desc.Depth
	switch desc.Type {
	case TextureTypeCube:
		layers = 6
	case TextureTypeCubeArray:
		layers = 6 * max(desc.Depth, 1)
	}
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: max(layers, 1),
		},
		MipLevelCount: max(desc.MipLevelCount, 1),
		SampleCount:   1,
		Dimension:     toWGPUTextureDimension(desc.Type),
		Format:        toWGPUTextureFormat(desc.Format),
		Usage:         wgpu.TextureUsage(textureUsage(desc)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create texture %q: %w", desc.Label, err)
	}

	view, err := tex.CreateView(&wgpu.TextureViewDescriptor{
		Label:           desc.Label,
		Format:          toWGPUTextureFormat(desc.Format),
		Dimension:       toWGPUViewDimension(desc.Type),
		BaseMipLevel:    0,
		MipLevelCount:   max(desc.MipLevelCount, 1),
		BaseArrayLayer:  0,
		ArrayLayerCount: max(layers, 1),
		Aspect:          wgpu.TextureAspectAll,
	})
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("failed to create view of texture %q: %w", desc.Label, err)
	}
	return &wgpuTexture{tex: tex, view: view, desc: desc}, nil
}

func (b *wgpuBackendImpl) CreateSampler(desc gputypes.SamplerDescriptor) (Sampler, error) {
	s, err := b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         desc.Label,
		AddressModeU:  toWGPUAddressMode(desc.AddressModeU),
		AddressModeV:  toWGPUAddressMode(desc.AddressModeV),
		AddressModeW:  toWGPUAddressMode(desc.AddressModeW),
		MagFilter:     toWGPUFilterMode(desc.MagFilter),
		MinFilter:     toWGPUFilterMode(desc.MinFilter),
		MipmapFilter:  toWGPUMipmapFilterMode(desc.MipmapFilter),
		LodMinClamp:   desc.LodMinClamp,
		LodMaxClamp:   desc.LodMaxClamp,
		Compare:       toWGPUCompareFunction(desc.Compare),
		MaxAnisotropy: max(desc.MaxAnisotropy, 1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sampler %q: %w", desc.Label, err)
	}
	return &wgpuSampler{s: s, label: desc.Label}, nil
}

func (b *wgpuBackendImpl) CreateShaderModule(label string, stage gputypes.ShaderStage, code []uint32) (ShaderModule, error) {
	spirv := make([]byte, len(code)*4)
	for i, word := range code {
		binary.LittleEndian.PutUint32(spirv[i*4:], word)
	}
	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: label,
		SPIRVDescriptor: &wgpu.ShaderModuleSPIRVDescriptor{
			Code: spirv,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create shader module %q: %w", label, err)
	}
	return &wgpuShaderModule{module: module, stage: stage}, nil
}

func (b *wgpuBackendImpl) CreateBindGroupLayout(label string, entries []BindGroupLayoutEntry) (BindGroupLayout, error) {
	wgpuEntries := make([]wgpu.BindGroupLayoutEntry, len(entries))
	for i, e := range entries {
		wgpuEntries[i] = toWGPUBindGroupLayoutEntry(e)
	}
	layout, err := b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   label,
		Entries: wgpuEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bind group layout %q: %w", label, err)
	}
	return &wgpuBindGroupLayout{layout: layout, entries: append([]BindGroupLayoutEntry(nil), entries...)}, nil
}

func (b *wgpuBackendImpl) CreatePipelineLayout(label string, layout BindGroupLayout) (PipelineLayout, error) {
	var groups []*wgpu.BindGroupLayout
	if layout != nil {
		groups = append(groups, layout.(*wgpuBindGroupLayout).layout)
	}
	pl, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: groups,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline layout %q: %w", label, err)
	}
	return &wgpuPipelineLayout{layout: pl}, nil
}

func (b *wgpuBackendImpl) CreateRenderPass(desc RenderPassDescriptor) (RenderPass, error) {
	for _, f := range desc.ColorFormats {
		if f.IsDepthStencil() {
			return nil, fmt.Errorf("render pass %q uses depth format %s as a color attachment", desc.Label, f)
		}
	}
	if desc.DepthFormat != gputypes.TextureFormatUndefined && !desc.DepthFormat.IsDepthStencil() {
		return nil, fmt.Errorf("render pass %q uses color format %s as the depth attachment", desc.Label, desc.DepthFormat)
	}
	return &wgpuRenderPass{desc: desc}, nil
}

func (b *wgpuBackendImpl) CreateFramebuffer(desc FramebufferDescriptor) (Framebuffer, error) {
	if desc.RenderPass == nil {
		return nil, fmt.Errorf("framebuffer %q has no render pass", desc.Label)
	}
	if len(desc.ColorAttachments) != len(desc.RenderPass.ColorFormats()) {
		return nil, fmt.Errorf("framebuffer %q has %d color attachments, render pass expects %d",
			desc.Label, len(desc.ColorAttachments), len(desc.RenderPass.ColorFormats()))
	}
	return &wgpuFramebuffer{desc: desc}, nil
}

func (b *wgpuBackendImpl) CreateRenderPipeline(desc RenderPipelineDescriptor) (Pipeline, error) {
	if desc.Rasterizer.PolygonMode != PolygonModeFill {
		b.logger.Warn("polygon mode is not supported by webgpu, falling back to fill", zap.String("pipeline", desc.Label))
	}
	if desc.Rasterizer.RasterizerDiscard {
		b.logger.Warn("rasterizer discard is not supported by webgpu", zap.String("pipeline", desc.Label))
	}

	buffers := make([]wgpu.VertexBufferLayout, len(desc.VertexBuffers))
	for i, vb := range desc.VertexBuffers {
		attrs := make([]wgpu.VertexAttribute, len(vb.Attributes))
		for j, a := range vb.Attributes {
			attrs[j] = wgpu.VertexAttribute{
				Format:         toWGPUVertexFormat(a.Format),
				Offset:         a.Offset,
				ShaderLocation: a.ShaderLocation,
			}
		}
		stepMode := toWGPUStepMode(vb.StepMode)
		if len(attrs) == 0 {
			stepMode = wgpu.VertexStepModeVertexBufferNotUsed
		}
		buffers[i] = wgpu.VertexBufferLayout{
			ArrayStride: vb.ArrayStride,
			StepMode:    stepMode,
			Attributes:  attrs,
		}
	}

	primitive := wgpu.PrimitiveState{
		Topology:  toWGPUTopology(desc.Primitive.Topology),
		FrontFace: toWGPUFrontFace(desc.Primitive.FrontFace),
		CullMode:  toWGPUCullMode(desc.Primitive.CullMode),
	}
	if desc.Primitive.StripIndexFormat != nil {
		primitive.StripIndexFormat = toWGPUIndexFormat(*desc.Primitive.StripIndexFormat)
	}

	var depthStencil *wgpu.DepthStencilState
	if ds := desc.DepthStencil; ds != nil {
		depthStencil = &wgpu.DepthStencilState{
			Format:              toWGPUTextureFormat(ds.Format),
			DepthWriteEnabled:   ds.DepthWriteEnabled,
			DepthCompare:        toWGPUCompareFunction(ds.DepthCompare),
			StencilFront:        toWGPUStencilFace(ds.StencilFront),
			StencilBack:         toWGPUStencilFace(ds.StencilBack),
			StencilReadMask:     ds.StencilReadMask,
			StencilWriteMask:    ds.StencilWriteMask,
			DepthBias:           ds.DepthBias,
			DepthBiasSlopeScale: ds.DepthBiasSlopeScale,
			DepthBiasClamp:      ds.DepthBiasClamp,
		}
	}

	var fragment *wgpu.FragmentState
	if desc.FragmentModule != nil {
		targets := make([]wgpu.ColorTargetState, len(desc.Targets))
		for i, t := range desc.Targets {
			targets[i] = wgpu.ColorTargetState{
				Format:    toWGPUTextureFormat(t.Format),
				WriteMask: wgpu.ColorWriteMask(t.WriteMask),
			}
			if t.Blend != nil {
				targets[i].Blend = &wgpu.BlendState{
					Color: wgpu.BlendComponent{
						SrcFactor: toWGPUBlendFactor(t.Blend.Color.SrcFactor),
						DstFactor: toWGPUBlendFactor(t.Blend.Color.DstFactor),
						Operation: toWGPUBlendOperation(t.Blend.Color.Operation),
					},
					Alpha: wgpu.BlendComponent{
						SrcFactor: toWGPUBlendFactor(t.Blend.Alpha.SrcFactor),
						DstFactor: toWGPUBlendFactor(t.Blend.Alpha.DstFactor),
						Operation: toWGPUBlendOperation(t.Blend.Alpha.Operation),
					},
				}
			}
		}
		fragment = &wgpu.FragmentState{
			Module:     desc.FragmentModule.(*wgpuShaderModule).module,
			EntryPoint: entryPoint,
			Targets:    targets,
		}
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: desc.Layout.(*wgpuPipelineLayout).layout,
		Vertex: wgpu.VertexState{
			Module:     desc.VertexModule.(*wgpuShaderModule).module,
			EntryPoint: entryPoint,
			Buffers:    buffers,
		},
		Primitive:    primitive,
		DepthStencil: depthStencil,
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		Fragment: fragment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create render pipeline %q: %w", desc.Label, err)
	}
	return &wgpuPipeline{render: created, stencilReference: desc.StencilReference}, nil
}

func (b *wgpuBackendImpl) CreateComputePipeline(desc ComputePipelineDescriptor) (Pipeline, error) {
	created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: desc.Layout.(*wgpuPipelineLayout).layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     desc.Module.(*wgpuShaderModule).module,
			EntryPoint: entryPoint,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create compute pipeline %q: %w", desc.Label, err)
	}
	return &wgpuPipeline{compute: created}, nil
}

func (b *wgpuBackendImpl) CreateBindGroup(label string, layout BindGroupLayout, entries []BindGroupEntry) (BindGroup, error) {
	wgpuEntries := make([]wgpu.BindGroupEntry, len(entries))
	for i, e := range entries {
		entry := wgpu.BindGroupEntry{Binding: e.Binding}
		switch {
		case e.Buffer != nil:
			entry.Buffer = e.Buffer.(*wgpuBuffer).buf
			entry.Offset = e.Offset
			entry.Size = e.Size
			if entry.Size == 0 {
				entry.Size = wgpu.WholeSize
			}
		case e.Texture != nil:
			entry.TextureView = e.Texture.(*wgpuTexture).view
		case e.Sampler != nil:
			entry.Sampler = e.Sampler.(*wgpuSampler).s
		default:
			return nil, fmt.Errorf("bind group %q entry %d has no resource", label, e.Binding)
		}
		wgpuEntries[i] = entry
	}
	bg, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label,
		Layout:  layout.(*wgpuBindGroupLayout).layout,
		Entries: wgpuEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bind group %q: %w", label, err)
	}
	return &wgpuBindGroup{bg: bg}, nil
}

func (b *wgpuBackendImpl) CreateFence(signaled bool) (Fence, error) {
	return &wgpuFence{signaled: signaled}, nil
}

func (b *wgpuBackendImpl) CreateSemaphore() (Semaphore, error) {
	return &wgpuSemaphore{}, nil
}

func (b *wgpuBackendImpl) CreateCommandEncoder(label string) (CommandEncoder, error) {
	return &wgpuEncoder{b: b, label: label}, nil
}

func (b *wgpuBackendImpl) WriteBuffer(buf Buffer, offset uint64, data []byte) {
	b.queue.WriteBuffer(buf.(*wgpuBuffer).buf, offset, data)
}

func (b *wgpuBackendImpl) WaitForFence(f Fence) error {
	fence := f.(*wgpuFence)
	if fence.signaled {
		return nil
	}
	if !fence.submitted {
		return errors.New("fence was never submitted")
	}
	b.device.Poll(true, &wgpu.WrappedSubmissionIndex{
		Queue:           b.queue,
		SubmissionIndex: fence.index,
	})
	fence.signaled = true
	return nil
}

func (b *wgpuBackendImpl) ResetFence(f Fence) {
	fence := f.(*wgpuFence)
	fence.signaled = false
	fence.submitted = false
}

func (b *wgpuBackendImpl) Submit(info SubmitInfo) error {
	enc := info.Encoder.(*wgpuEncoder)
	if enc.finished == nil {
		return fmt.Errorf("command encoder %q submitted without End", enc.label)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	index := b.queue.Submit(enc.finished)
	enc.finished.Release()
	enc.finished = nil
	b.lastSubmission = index

	if info.Fence != nil {
		fence := info.Fence.(*wgpuFence)
		fence.submitted = true
		fence.index = index
	}
	return nil
}

func (b *wgpuBackendImpl) ConfigureSurface(width, height, imageCount uint32) ([]Texture, error) {
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("surface size %dx%d is empty", width, height)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageCopyDst,
		Format:      b.surfaceFormat,
		Width:       width,
		Height:      height,
		PresentMode: toWGPUPresentMode(b.presentMode),
		AlphaMode:   capabilities.AlphaModes[0],
	})

	format := fromWGPUTextureFormat(b.surfaceFormat)
	b.backBuffers = make([]*wgpuTexture, imageCount)
	out := make([]Texture, imageCount)
	for i := range b.backBuffers {
		b.backBuffers[i] = &wgpuTexture{
			proxy: true,
			desc: TextureDescriptor{
				Label:         fmt.Sprintf("back buffer %d", i),
				Type:          TextureType2D,
				Width:         width,
				Height:        height,
				Depth:         1,
				MipLevelCount: 1,
				Format:        format,
				Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopyDst,
			},
		}
		out[i] = b.backBuffers[i]
	}
	b.imageCursor = 0
	return out, nil
}

func (b *wgpuBackendImpl) SurfaceFormat() gputypes.TextureFormat {
	return fromWGPUTextureFormat(b.surfaceFormat)
}

func (b *wgpuBackendImpl) AcquireNextImage(signal Semaphore) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.backBuffers) == 0 {
		return 0, errors.New("surface is not configured")
	}
	if b.surfaceTexture != nil {
		return 0, errors.New("previous surface image not yet presented")
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return 0, fmt.Errorf("failed to acquire surface texture: %w", err)
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return 0, fmt.Errorf("failed to create surface view: %w", err)
	}

	idx := b.imageCursor
	b.imageCursor = (b.imageCursor + 1) % uint32(len(b.backBuffers))
	b.backBuffers[idx].view = view
	b.surfaceTexture = surfaceTexture
	return idx, nil
}

func (b *wgpuBackendImpl) Present(imageIndex uint32, wait Semaphore) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.surfaceTexture == nil {
		return errors.New("no surface image acquired")
	}
	b.surface.Present()

	bb := b.backBuffers[imageIndex]
	if bb.view != nil {
		bb.view.Release()
		bb.view = nil
	}
	b.surfaceTexture.Release()
	b.surfaceTexture = nil
	return nil
}

func (b *wgpuBackendImpl) WaitIdle() {
	b.device.Poll(true, nil)
}

func (b *wgpuBackendImpl) Release() {
	b.WaitIdle()
	if b.blitter != nil {
		b.blitter.release()
	}
	b.queue.Release()
	b.device.Release()
	b.adapter.Release()
	b.surface.Release()
	b.instance.Release()
}
