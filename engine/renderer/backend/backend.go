// Package backend is the thin hardware abstraction the renderer records against. Object and descriptor
// types use the gputypes vocabulary so the same renderer code drives the WebGPU backend and the headless
// recording backend used by tests and offline tools.
package backend

import (
	"github.com/gogpu/gputypes"
)

// BackendType identifies the GPU backend implementation used by the Device.
type BackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based backend.
	BackendTypeWGPU BackendType = iota

	// BackendTypeHeadless selects the in-memory recording backend. Nothing reaches a GPU; every
	// command is logged so it can be inspected.
	BackendTypeHeadless
)

// TextureState is the access/layout state a texture is declared to be in at a transition.
type TextureState int

const (
	TextureStateUndefined TextureState = iota
	TextureStateShaderRead
	TextureStateShaderWrite
	TextureStateColorAttachment
	TextureStateDepthAttachment
	TextureStateCopySrc
	TextureStateCopyDst
	TextureStatePresent
)

func (s TextureState) String() string {
	switch s {
	case TextureStateShaderRead:
		return "shader_read"
	case TextureStateShaderWrite:
		return "shader_write"
	case TextureStateColorAttachment:
		return "color_attachment"
	case TextureStateDepthAttachment:
		return "depth_attachment"
	case TextureStateCopySrc:
		return "copy_src"
	case TextureStateCopyDst:
		return "copy_dst"
	case TextureStatePresent:
		return "present"
	default:
		return "undefined"
	}
}

// BufferAccess is the access a buffer is declared to be used with at a transition.
type BufferAccess int

const (
	BufferAccessNone BufferAccess = iota
	BufferAccessVertexRead
	BufferAccessIndexRead
	BufferAccessIndirectRead
	BufferAccessUniformRead
	BufferAccessShaderRead
	BufferAccessShaderWrite
	BufferAccessCopySrc
	BufferAccessCopyDst
)

// DescriptorKind is the kind of resource a shader binding slot accepts.
type DescriptorKind int

const (
	DescriptorKindUndefined DescriptorKind = iota
	DescriptorKindSampler
	DescriptorKindSampledTexture
	DescriptorKindStorageTexture
	DescriptorKindUniformBuffer
	DescriptorKindStorageBuffer
)

func (k DescriptorKind) String() string {
	switch k {
	case DescriptorKindSampler:
		return "sampler"
	case DescriptorKindSampledTexture:
		return "sampled_texture"
	case DescriptorKindStorageTexture:
		return "storage_texture"
	case DescriptorKindUniformBuffer:
		return "uniform_buffer"
	case DescriptorKindStorageBuffer:
		return "storage_buffer"
	default:
		return "undefined"
	}
}

// IsBuffer reports whether the kind binds a buffer range.
func (k DescriptorKind) IsBuffer() bool {
	return k == DescriptorKindUniformBuffer || k == DescriptorKindStorageBuffer
}

// IsTexture reports whether the kind binds a texture view.
func (k DescriptorKind) IsTexture() bool {
	return k == DescriptorKindSampledTexture || k == DescriptorKindStorageTexture
}

// TextureType is the dimensionality of a texture and its default view.
type TextureType int

const (
	TextureType2D TextureType = iota
	TextureType1D
	TextureType3D
	TextureTypeCube
	TextureType2DArray
	TextureTypeCubeArray
)

func (t TextureType) String() string {
	switch t {
	case TextureType1D:
		return "1d"
	case TextureType3D:
		return "3d"
	case TextureTypeCube:
		return "cube"
	case TextureType2DArray:
		return "2d_array"
	case TextureTypeCubeArray:
		return "cube_array"
	default:
		return "2d"
	}
}

// PolygonMode is the rasterizer fill mode. WebGPU only rasterizes filled polygons; the other modes are
// carried through the technique blob for backends that support them.
type PolygonMode int

const (
	PolygonModeFill PolygonMode = iota
	PolygonModeLine
	PolygonModePoint
)

// Buffer is a linear GPU allocation.
type Buffer interface {
	Label() string
	Size() uint64
	Usage() gputypes.BufferUsage
	Release()
}

// Texture is an image allocation together with its default view.
type Texture interface {
	Label() string
	Type() TextureType
	Width() uint32
	Height() uint32
	Depth() uint32
	MipLevelCount() uint32
	Format() gputypes.TextureFormat
	Usage() gputypes.TextureUsage
	Release()
}

// Sampler is a texture sampling state object.
type Sampler interface {
	Label() string
	Release()
}

// ShaderModule is compiled shader bytecode for a single stage.
type ShaderModule interface {
	Stage() gputypes.ShaderStage
	Release()
}

// BindGroupLayout describes the binding slots of a technique's single bind group.
type BindGroupLayout interface {
	Entries() []BindGroupLayoutEntry
	Release()
}

// PipelineLayout wraps the bind group layout used by a pipeline.
type PipelineLayout interface {
	Release()
}

// RenderPass describes the attachment formats of a graphics technique's single subpass.
type RenderPass interface {
	ColorFormats() []gputypes.TextureFormat
	DepthFormat() gputypes.TextureFormat
	Release()
}

// Framebuffer binds concrete attachments to a RenderPass.
type Framebuffer interface {
	RenderPass() RenderPass
	Width() uint32
	Height() uint32
	Release()
}

// Pipeline is a compiled graphics or compute pipeline.
type Pipeline interface {
	Compute() bool
	Release()
}

// BindGroup is a filled descriptor set.
type BindGroup interface {
	Release()
}

// Fence is signaled by the GPU when a submission completes.
type Fence interface {
	Release()
}

// Semaphore orders GPU work between acquire, submit and present.
type Semaphore interface {
	Release()
}

// TextureDescriptor describes a texture allocation.
type TextureDescriptor struct {
	Label         string
	Type          TextureType
	Width         uint32
	Height        uint32
	Depth         uint32
	MipLevelCount uint32
	Format        gputypes.TextureFormat
	Usage         gputypes.TextureUsage
}

// BindGroupLayoutEntry describes one binding slot.
type BindGroupLayoutEntry struct {
	Binding    uint32
	Kind       DescriptorKind
	Visibility gputypes.ShaderStages
	// TextureType is the view dimension for texture kinds.
	TextureType TextureType
	// StorageFormat is the texel format for storage textures.
	StorageFormat gputypes.TextureFormat
	// ReadOnly binds a storage buffer read-only. Graphics techniques need it: writable storage is not
	// allowed in vertex shaders.
	ReadOnly bool
}

// BindGroupEntry is one descriptor write.
type BindGroupEntry struct {
	Binding uint32
	Buffer  Buffer
	Offset  uint64
	Size    uint64
	Texture Texture
	Sampler Sampler
}

// RenderPassDescriptor describes the attachment formats of a render pass.
type RenderPassDescriptor struct {
	Label        string
	ColorFormats []gputypes.TextureFormat
	// DepthFormat is TextureFormatUndefined when the pass has no depth attachment.
	DepthFormat gputypes.TextureFormat
}

// FramebufferDescriptor binds attachments to a render pass.
type FramebufferDescriptor struct {
	Label            string
	RenderPass       RenderPass
	ColorAttachments []Texture
	DepthAttachment  Texture
	Width            uint32
	Height           uint32
}

// RasterizerState carries the rasterizer settings gputypes.PrimitiveState has no room for.
type RasterizerState struct {
	PolygonMode       PolygonMode
	LineWidth         float32
	RasterizerDiscard bool
	PrimitiveRestart  bool
}

// RenderPipelineDescriptor describes a graphics pipeline. Viewport and scissor are always dynamic.
type RenderPipelineDescriptor struct {
	Label          string
	Layout         PipelineLayout
	RenderPass     RenderPass
	VertexModule   ShaderModule
	FragmentModule ShaderModule
	VertexBuffers  []gputypes.VertexBufferLayout
	Primitive      gputypes.PrimitiveState
	Rasterizer     RasterizerState
	// DepthStencil is nil when the render pass has no depth attachment.
	DepthStencil     *gputypes.DepthStencilState
	StencilReference uint32
	Targets          []gputypes.ColorTargetState
}

// ComputePipelineDescriptor describes a compute pipeline.
type ComputePipelineDescriptor struct {
	Label  string
	Layout PipelineLayout
	Module ShaderModule
}

// SubmitInfo describes one queue submission.
type SubmitInfo struct {
	Encoder CommandEncoder
	Wait    Semaphore
	Signal  Semaphore
	Fence   Fence
}

// CommandEncoder records GPU commands for one frame.
type CommandEncoder interface {
	// Begin starts recording. An encoder is reused frame after frame; Begin discards anything recorded before.
	Begin() error
	// End finishes recording so the encoder can be submitted.
	End() error

	CopyBufferToBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset uint64, size uint64)
	// CopyBufferToTexture copies a full mip level from src. Rows in src are bytesPerRow apart.
	CopyBufferToTexture(src Buffer, srcOffset uint64, bytesPerRow uint32, dst Texture, mipLevel uint32)
	// BlitTexture copies src mip srcMip into dst mip dstMip with linear filtering, scaling as needed.
	BlitTexture(dst Texture, dstMip uint32, src Texture, srcMip uint32)
	TransitionTexture(tex Texture, mipLevel uint32, from, to TextureState)
	TransitionBuffer(buf Buffer, from, to BufferAccess)

	BeginRenderPass(fb Framebuffer)
	EndRenderPass()
	ClearColorAttachment(index uint32, color gputypes.Color)
	ClearDepthStencil(depth float32, stencil uint32)

	SetPipeline(p Pipeline)
	SetBindGroup(bg BindGroup)
	SetViewport(x, y, width, height, minDepth, maxDepth float32)
	SetScissor(x, y, width, height uint32)
	SetVertexBuffer(slot uint32, buf Buffer, offset uint64)
	SetIndexBuffer(buf Buffer, format gputypes.IndexFormat, offset uint64)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
	Dispatch(x, y, z uint32)

	Release()
}

// Backend creates GPU objects and drives the queue and swapchain.
// Create* failures are returned; the Device treats them as fatal.
type Backend interface {
	Type() BackendType

	CreateBuffer(desc gputypes.BufferDescriptor) (Buffer, error)
	CreateTexture(desc TextureDescriptor) (Texture, error)
	CreateSampler(desc gputypes.SamplerDescriptor) (Sampler, error)
	CreateShaderModule(label string, stage gputypes.ShaderStage, code []uint32) (ShaderModule, error)
	CreateBindGroupLayout(label string, entries []BindGroupLayoutEntry) (BindGroupLayout, error)
	// CreatePipelineLayout creates a layout with layout as group 0, or with no groups when layout is nil.
	CreatePipelineLayout(label string, layout BindGroupLayout) (PipelineLayout, error)
	CreateRenderPass(desc RenderPassDescriptor) (RenderPass, error)
	CreateFramebuffer(desc FramebufferDescriptor) (Framebuffer, error)
	CreateRenderPipeline(desc RenderPipelineDescriptor) (Pipeline, error)
	CreateComputePipeline(desc ComputePipelineDescriptor) (Pipeline, error)
	CreateBindGroup(label string, layout BindGroupLayout, entries []BindGroupEntry) (BindGroup, error)
	CreateFence(signaled bool) (Fence, error)
	CreateSemaphore() (Semaphore, error)
	CreateCommandEncoder(label string) (CommandEncoder, error)

	// WriteBuffer copies host data into buf ahead of the next submission.
	WriteBuffer(buf Buffer, offset uint64, data []byte)
	// WaitForFence blocks until the fence's submission has completed. An unsubmitted fence created
	// signaled returns immediately.
	WaitForFence(f Fence) error
	ResetFence(f Fence)
	Submit(info SubmitInfo) error

	// ConfigureSurface (re)creates the swapchain and returns its back buffers.
	ConfigureSurface(width, height, imageCount uint32) ([]Texture, error)
	SurfaceFormat() gputypes.TextureFormat
	AcquireNextImage(signal Semaphore) (uint32, error)
	Present(imageIndex uint32, wait Semaphore) error

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle()
	Release()
}
