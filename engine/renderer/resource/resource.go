package resource

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gfx/common"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/deferred"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/staging"
	"github.com/gogpu/gputypes"
	"go.uber.org/zap"
)

// rowPitchAlignment is the bytesPerRow alignment WebGPU requires for buffer to texture copies.
const rowPitchAlignment = 256

// Buffer is a GPU buffer handle.
type Buffer struct {
	label string
	size  uint64
	usage gputypes.BufferUsage
	gpu   backend.Buffer
}

func (b *Buffer) Label() string               { return b.label }
func (b *Buffer) Size() uint64                { return b.size }
func (b *Buffer) Usage() gputypes.BufferUsage { return b.usage }

// Backend returns the backend object behind the handle.
func (b *Buffer) Backend() backend.Buffer { return b.gpu }

// WrapBuffer makes a handle for a buffer the store did not create, such as the staging ring. Destroying the
// handle through the store is a programmer error.
func WrapBuffer(buf backend.Buffer) *Buffer {
	return &Buffer{label: buf.Label(), size: buf.Size(), usage: buf.Usage(), gpu: buf}
}

// Texture is a GPU texture handle.
type Texture struct {
	gpu backend.Texture
}

func (t *Texture) Label() string                  { return t.gpu.Label() }
func (t *Texture) Type() backend.TextureType      { return t.gpu.Type() }
func (t *Texture) Width() uint32                  { return t.gpu.Width() }
func (t *Texture) Height() uint32                 { return t.gpu.Height() }
func (t *Texture) Depth() uint32                  { return t.gpu.Depth() }
func (t *Texture) MipLevelCount() uint32          { return t.gpu.MipLevelCount() }
func (t *Texture) Format() gputypes.TextureFormat { return t.gpu.Format() }
func (t *Texture) Usage() gputypes.TextureUsage   { return t.gpu.Usage() }

// Backend returns the backend object behind the handle.
func (t *Texture) Backend() backend.Texture { return t.gpu }

// WrapTexture makes a handle for a texture the store did not create, such as a swapchain image. Destroying the
// handle through the store is a programmer error.
func WrapTexture(tex backend.Texture) *Texture {
	return &Texture{gpu: tex}
}

// Sampler is a sampler handle.
type Sampler struct {
	gpu backend.Sampler
}

func (s *Sampler) Label() string { return s.gpu.Label() }

// Backend returns the backend object behind the handle.
func (s *Sampler) Backend() backend.Sampler { return s.gpu }

// BufferParams describes a buffer to create.
type BufferParams struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
	// Data, when set, is uploaded at the next frame. It must not be longer than Size.
	Data []byte
}

// TextureParams describes a texture to create.
type TextureParams struct {
	Label  string
	Type   backend.TextureType
	Width  uint32
	Height uint32 // defaults to 1
	Depth  uint32 // defaults to 1
	Format gputypes.TextureFormat
	Usage  gputypes.TextureUsage
	// InitialState is the state the texture is left in once its setup runs. Defaults to ShaderRead.
	InitialState backend.TextureState
	// Data holds tightly packed texels of mip 0 for every depth slice or layer.
	Data            []byte
	GenerateMipmaps bool
}

// SamplerParams describes a sampler. Zero fields take the defaults: linear filtering, clamp to edge addressing,
// LOD range 0..32 and anisotropy 1.
type SamplerParams struct {
	Label         string
	MinFilter     gputypes.FilterMode
	MagFilter     gputypes.FilterMode
	MipmapFilter  gputypes.MipmapFilterMode
	AddressModeU  gputypes.AddressMode
	AddressModeV  gputypes.AddressMode
	AddressModeW  gputypes.AddressMode
	MinLod        float32
	MaxLod        float32
	MaxAnisotropy uint16
	Compare       gputypes.CompareFunction
}

type storeImpl struct {
	backend backend.Backend
	ring    staging.Allocator
	ringBuf backend.Buffer
	queue   deferred.Queue
	logger  *zap.Logger
}

// Store creates and destroys buffers, textures and samplers. Initial contents are written into the staging ring
// immediately and copied on the GPU by deferred commands at the start of the next frame.
//
// Backend creation failures are fatal and panic. Destroy releases immediately: the caller guarantees no frame in
// flight still uses the resource.
type Store interface {
	// CreateBuffer creates a buffer and stages Data, if any, for upload.
	//
	// Parameters:
	//   - params: the buffer description
	//
	// Returns:
	//   - *Buffer: the new buffer handle
	CreateBuffer(params BufferParams) *Buffer

	// DestroyBuffer releases a buffer created by CreateBuffer.
	DestroyBuffer(buf *Buffer)

	// CreateTexture creates a texture. With GenerateMipmaps the texture gets a full mip chain generated from Data.
	// Without Data the texture is only transitioned to its initial state.
	//
	// Parameters:
	//   - params: the texture description
	//
	// Returns:
	//   - *Texture: the new texture handle
	CreateTexture(params TextureParams) *Texture

	// DestroyTexture releases a texture created by CreateTexture.
	DestroyTexture(tex *Texture)

	// CreateSampler creates a sampler, filling zero fields with the defaults.
	CreateSampler(params SamplerParams) *Sampler

	// DestroySampler releases a sampler created by CreateSampler.
	DestroySampler(s *Sampler)
}

var _ Store = &storeImpl{}

// NewStore creates a resource store.
//
// Parameters:
//   - b: the backend resources are created on
//   - ring: the staging allocator initial data is written to
//   - ringBuffer: the GPU buffer mirroring ring, used as the copy source
//   - queue: the deferred queue uploads are pushed to
//   - opts: functional options for the store
//
// Returns:
//   - Store: the resource store
func NewStore(b backend.Backend, ring staging.Allocator, ringBuffer backend.Buffer, queue deferred.Queue, opts ...StoreBuilderOption) Store {
	s := &storeImpl{
		backend: b,
		ring:    ring,
		ringBuf: ringBuffer,
		queue:   queue,
		logger:  zap.L(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// accessForUsage is the access a buffer is made visible to after its upload.
func accessForUsage(usage gputypes.BufferUsage) backend.BufferAccess {
	switch {
	case usage&gputypes.BufferUsageVertex != 0:
		return backend.BufferAccessVertexRead
	case usage&gputypes.BufferUsageIndex != 0:
		return backend.BufferAccessIndexRead
	case usage&gputypes.BufferUsageUniform != 0:
		return backend.BufferAccessUniformRead
	case usage&gputypes.BufferUsageIndirect != 0:
		return backend.BufferAccessIndirectRead
	default:
		return backend.BufferAccessShaderRead
	}
}

func (s *storeImpl) CreateBuffer(params BufferParams) *Buffer {
	if uint64(len(params.Data)) > params.Size {
		panic(fmt.Sprintf("resource: %d bytes of data for buffer %q of size %d", len(params.Data), params.Label, params.Size))
	}

	usage := params.Usage
	if params.Data != nil {
		usage |= gputypes.BufferUsageCopyDst
	}
	gpu, err := s.backend.CreateBuffer(gputypes.BufferDescriptor{
		Label: params.Label,
		Size:  params.Size,
		Usage: usage,
	})
	if err != nil {
		panic(fmt.Sprintf("resource: %v", err))
	}
	buf := &Buffer{label: params.Label, size: params.Size, usage: usage, gpu: gpu}

	if len(params.Data) > 0 {
		alloc := s.ring.Allocate(uint64(len(params.Data)), 0)
		copy(alloc.Data, params.Data)
		s.queue.Push(deferred.UploadBuffer{
			Src:       s.ringBuf,
			SrcOffset: alloc.Offset,
			Dst:       gpu,
			Size:      uint64(len(params.Data)),
			Access:    accessForUsage(usage),
		})
	}
	return buf
}

func (s *storeImpl) DestroyBuffer(buf *Buffer) {
	if buf == nil || buf.gpu == nil {
		return
	}
	buf.gpu.Release()
	buf.gpu = nil
}

func (s *storeImpl) CreateTexture(params TextureParams) *Texture {
	height := common.Coalesce(params.Height, 1)
	depth := common.Coalesce(params.Depth, 1)
	state := common.Coalesce(params.InitialState, backend.TextureStateShaderRead)

	mips := uint32(1)
	if params.GenerateMipmaps {
		if params.Type != backend.TextureType2D || params.Format.IsDepthStencil() {
			panic(fmt.Sprintf("resource: mipmaps can only be generated for 2D color textures, %q is not", params.Label))
		}
		mips = common.MipCount(params.Width, height)
	}

	gpu, err := s.backend.CreateTexture(backend.TextureDescriptor{
		Label:         params.Label,
		Type:          params.Type,
		Width:         params.Width,
		Height:        height,
		Depth:         depth,
		MipLevelCount: mips,
		Format:        params.Format,
		Usage:         params.Usage,
	})
	if err != nil {
		panic(fmt.Sprintf("resource: %v", err))
	}
	tex := &Texture{gpu: gpu}

	if len(params.Data) == 0 {
		s.queue.Push(deferred.TransitionTexture{Texture: gpu, From: backend.TextureStateUndefined, To: state})
		return tex
	}

	offset, bytesPerRow := s.stageTexels(params, height, depth)
	if params.GenerateMipmaps {
		s.queue.Push(deferred.GenerateMipmaps{Src: s.ringBuf, SrcOffset: offset, BytesPerRow: bytesPerRow, Dst: gpu, State: state})
	} else {
		s.queue.Push(deferred.UploadTexture{Src: s.ringBuf, SrcOffset: offset, BytesPerRow: bytesPerRow, Dst: gpu, State: state})
	}
	s.logger.Debug("staged texture upload",
		zap.String("label", params.Label),
		zap.Uint32("width", params.Width),
		zap.Uint32("height", height),
		zap.Uint32("mips", mips))
	return tex
}

// stageTexels copies tightly packed mip 0 rows into the ring with each row padded to rowPitchAlignment.
func (s *storeImpl) stageTexels(params TextureParams, height, depth uint32) (uint64, uint32) {
	texelSize := backend.TexelSize(params.Format)
	if texelSize == 0 {
		panic(fmt.Sprintf("resource: cannot upload texels of format %v", params.Format))
	}
	layers := depth
	if params.Type == backend.TextureTypeCube {
		layers = 6
	}

	rowSize := uint64(params.Width) * uint64(texelSize)
	rows := uint64(height) * uint64(layers)
	if uint64(len(params.Data)) < rowSize*rows {
		panic(fmt.Sprintf("resource: texture %q needs %d bytes of data, got %d", params.Label, rowSize*rows, len(params.Data)))
	}

	pitch := common.AlignUp(rowSize, rowPitchAlignment)
	alloc := s.ring.Allocate(pitch*rows, rowPitchAlignment)
	for row := uint64(0); row < rows; row++ {
		copy(alloc.Data[row*pitch:row*pitch+rowSize], params.Data[row*rowSize:(row+1)*rowSize])
	}
	return alloc.Offset, uint32(pitch)
}

func (s *storeImpl) DestroyTexture(tex *Texture) {
	if tex == nil || tex.gpu == nil {
		return
	}
	tex.gpu.Release()
	tex.gpu = nil
}

func (s *storeImpl) CreateSampler(params SamplerParams) *Sampler {
	gpu, err := s.backend.CreateSampler(gputypes.SamplerDescriptor{
		Label:         params.Label,
		AddressModeU:  common.Coalesce(params.AddressModeU, gputypes.AddressModeClampToEdge),
		AddressModeV:  common.Coalesce(params.AddressModeV, gputypes.AddressModeClampToEdge),
		AddressModeW:  common.Coalesce(params.AddressModeW, gputypes.AddressModeClampToEdge),
		MagFilter:     common.Coalesce(params.MagFilter, gputypes.FilterModeLinear),
		MinFilter:     common.Coalesce(params.MinFilter, gputypes.FilterModeLinear),
		MipmapFilter:  common.Coalesce(params.MipmapFilter, gputypes.MipmapFilterModeLinear),
		LodMinClamp:   params.MinLod,
		LodMaxClamp:   common.Coalesce(params.MaxLod, 32.0),
		MaxAnisotropy: common.Coalesce(params.MaxAnisotropy, 1),
		Compare:       params.Compare,
	})
	if err != nil {
		panic(fmt.Sprintf("resource: %v", err))
	}
	return &Sampler{gpu: gpu}
}

func (s *storeImpl) DestroySampler(smp *Sampler) {
	if smp == nil || smp.gpu == nil {
		return
	}
	smp.gpu.Release()
	smp.gpu = nil
}
