// Package renderer is the front of the graphics layer. A Device owns the backend, the staging ring, the resource
// store, the per back buffer frame contexts and the technique cache, and hands out a command recorder for each
// frame between BeginFrame and EndFrame.
package renderer

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-gfx/engine/loader"
	"github.com/Carmen-Shannon/oxy-gfx/engine/model"
	"github.com/Carmen-Shannon/oxy-gfx/engine/profiler"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/deferred"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/frame"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/staging"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/technique"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/gputypes"
	"go.uber.org/zap"
)

// ErrAssetNotFound is returned by the loaders when neither the source asset nor its cached blob exists.
var ErrAssetNotFound = errors.New("asset not found")

// SurfaceProvider is the window a device presents to. window.Window satisfies it.
type SurfaceProvider interface {
	SurfaceDescriptor() *wgpu.SurfaceDescriptor
	Width() int
	Height() int
}

// UploadAllocation is a region of the staging ring handed to the caller. Data is host memory that reaches Buffer
// at Offset when the current frame is submitted.
type UploadAllocation struct {
	Buffer *resource.Buffer
	Offset uint64
	Data   []byte
}

// Stats counts device activity since creation.
type Stats struct {
	Frames int
	// TechniqueLoads and TechniqueRegenerations mirror the technique cache counters.
	TechniqueLoads         int
	TechniqueRegenerations int
	// AssetLoads and AssetRegenerations count texture and model blob loads and rebuilds.
	AssetLoads         int
	AssetRegenerations int
	TechniqueReloads   int
}

// device is the implementation of the Device interface.
type device struct {
	cfg      Config
	logger   *zap.Logger
	surface  SurfaceProvider
	profiler *profiler.Profiler

	backend        backend.Backend
	shaderCompiler shader.Compiler
	retryPrompt    func(path string, err error) bool
	meshLoader     loader.Loader

	ring       staging.Allocator
	ringBuffer *resource.Buffer
	queue      deferred.Queue
	store      resource.Store
	compiler   technique.Compiler
	cache      technique.Cache
	builder    pipeline.Builder
	recorder   frame.Recorder

	contexts    []*frame.Context
	backBuffers []*resource.Texture
	width       uint32
	height      uint32
	curr, next  int
	imageIndex  uint32
	inFrame     bool
	destroyed   bool

	techniques map[uint64]*techniqueEntry
	watcher    *watcher
	stats      Stats
}

// Device is the handle based front of the graphics layer. It is not safe for concurrent use: a device may be
// handed from one goroutine to another, but only one may call it at a time.
type Device interface {
	// BeginFrame starts recording the next frame. It waits until the GPU retired the frame that last used the
	// current frame context, frees that frame's staging memory and bind groups, applies pending technique
	// reloads, acquires a back buffer and runs the setup commands queued by resource creation.
	//
	// Returns:
	//   - frame.CommandRecorder: the recorder for this frame, valid until EndFrame
	BeginFrame() frame.CommandRecorder

	// EndFrame finishes recording, flushes the staging ring, submits the frame, presents the back buffer and
	// advances to the next frame context.
	EndFrame()

	// WaitForGpu blocks until the GPU has finished all submitted work.
	WaitForGpu()

	// Resize recreates the back buffers and frame contexts for a new surface size. Render setups that reference
	// back buffers must be recreated by the caller.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	//
	// Returns:
	//   - error: an error if the size is empty or the surface could not be configured
	Resize(width, height int) error

	// AllocateUploadBuffer reserves staging memory outside of any binding, for example as the source of a
	// CopyBuffer recorded in the current frame.
	//
	// Parameters:
	//   - size: the number of bytes to reserve
	//
	// Returns:
	//   - UploadAllocation: the staging buffer, offset and host memory of the reservation
	AllocateUploadBuffer(size uint64) UploadAllocation

	// BackBufferCount returns the number of back buffers and frame contexts.
	BackBufferCount() int

	// BackBufferIndex returns the back buffer acquired by the current frame.
	BackBufferIndex() int

	// BackBuffer returns a back buffer texture handle.
	//
	// Parameters:
	//   - index: the back buffer index, less than BackBufferCount
	//
	// Returns:
	//   - *resource.Texture: the back buffer
	BackBuffer(index int) *resource.Texture

	// SurfaceFormat returns the pixel format of the back buffers.
	SurfaceFormat() gputypes.TextureFormat

	// Store returns the resource store, e.g. to create a resource.Scoped over it.
	Store() resource.Store

	// CreateBuffer creates a buffer; initial data is uploaded at the next BeginFrame.
	CreateBuffer(params resource.BufferParams) *resource.Buffer

	// DestroyBuffer releases a buffer. No frame in flight may still use it.
	DestroyBuffer(buf *resource.Buffer)

	// CreateTexture creates a texture; initial data is uploaded at the next BeginFrame.
	CreateTexture(params resource.TextureParams) *resource.Texture

	// DestroyTexture releases a texture. No frame in flight may still use it.
	DestroyTexture(tex *resource.Texture)

	// CreateSampler creates a sampler.
	CreateSampler(params resource.SamplerParams) *resource.Sampler

	// DestroySampler releases a sampler. No frame in flight may still use it.
	DestroySampler(s *resource.Sampler)

	// LoadTechnique loads a technique JSON through the blob cache and builds its pipeline. Loading the same path
	// twice returns the same technique. With WithRetryPrompt a failed load is retried while the prompt returns
	// true.
	//
	// Parameters:
	//   - path: the technique JSON path
	//
	// Returns:
	//   - *pipeline.Technique: the technique
	//   - error: an error wrapping ErrAssetNotFound, a parse or compile failure, or a pipeline creation failure
	LoadTechnique(path string) (*pipeline.Technique, error)

	// ReloadAllTechniques rebuilds every loaded technique whose JSON changed since it was built. A technique that
	// fails to reload keeps its previous pipeline. Must not be called between BeginFrame and EndFrame.
	//
	// Returns:
	//   - int: the number of techniques rebuilt
	ReloadAllTechniques() int

	// DestroyTechnique releases a technique and its render setups and drops it from the cache.
	DestroyTechnique(tech *pipeline.Technique)

	// CreateRenderSetup creates a render target binding for a graphics technique.
	//
	// Parameters:
	//   - tech: the technique the setup renders with
	//   - params: the color and depth attachments
	//
	// Returns:
	//   - pipeline.RenderSetupID: the setup handle, stable across technique reloads
	//   - error: an error if the attachments do not match the technique
	CreateRenderSetup(tech *pipeline.Technique, params pipeline.RenderSetupParams) (pipeline.RenderSetupID, error)

	// DestroyRenderSetup releases a render setup.
	DestroyRenderSetup(tech *pipeline.Technique, id pipeline.RenderSetupID)

	// LoadTexture loads an image through the blob cache into a mipmapped RGBA8 texture. Every call creates a new
	// texture owned by the caller; the blob cache only saves the decode.
	//
	// Parameters:
	//   - path: the image file path
	//
	// Returns:
	//   - *resource.Texture: the texture
	//   - error: an error wrapping ErrAssetNotFound, or a decode failure
	LoadTexture(path string) (*resource.Texture, error)

	// LoadModel loads a mesh file through the blob cache into GPU buffers. Diffuse textures referenced by its
	// materials are loaded from materialDir.
	//
	// Parameters:
	//   - path: the mesh file path
	//   - materialDir: the directory material texture paths resolve against
	//
	// Returns:
	//   - model.Model: the model
	//   - error: an error wrapping ErrAssetNotFound, or a decode failure
	LoadModel(path, materialDir string) (model.Model, error)

	// DestroyModel releases a model's buffers and textures. No frame in flight may still use them.
	DestroyModel(m model.Model)

	// Stats returns the activity counters.
	Stats() Stats

	// Destroy waits for the GPU and releases everything the device owns. Resources created through the device
	// must be destroyed first.
	Destroy()
}

var _ Device = &device{}

// NewDevice creates a device presenting to a window, or a headless device when window is nil and a backend is
// given with WithBackend.
//
// Parameters:
//   - window: the surface to present to, or nil
//   - opts: functional options such as WithConfig, WithBackend and WithLogger
//
// Returns:
//   - Device: the device
//   - error: an invalid configuration or a backend failure
func NewDevice(window SurfaceProvider, opts ...DeviceBuilderOption) (Device, error) {
	d := &device{
		cfg:        DefaultConfig(),
		surface:    window,
		techniques: make(map[uint64]*techniqueEntry),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = zap.L()
	}
	d.cfg = d.cfg.withDefaults()
	if err := d.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid device config: %w", err)
	}

	if d.backend == nil {
		if window == nil {
			return nil, errors.New("a device without a window needs a backend")
		}
		mode, _ := d.cfg.presentMode()
		b, err := backend.NewWGPUBackend(window.SurfaceDescriptor(),
			backend.WithPresentMode(mode),
			backend.WithForceFallbackAdapter(d.cfg.ForceFallbackAdapter),
			backend.WithLogger(d.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create backend: %w", err)
		}
		d.backend = b
	}

	d.ring = staging.NewAllocator(staging.WithCapacity(d.cfg.StagingCapacity))
	ringBuf, err := d.backend.CreateBuffer(gputypes.BufferDescriptor{
		Label: "staging ring",
		Size:  d.ring.Capacity(),
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst |
			gputypes.BufferUsageUniform | gputypes.BufferUsageStorage,
	})
	if err != nil {
		d.backend.Release()
		return nil, fmt.Errorf("failed to create staging buffer: %w", err)
	}
	d.ringBuffer = resource.WrapBuffer(ringBuf)
	d.queue = deferred.NewQueue()
	d.store = resource.NewStore(d.backend, d.ring, ringBuf, d.queue, resource.WithLogger(d.logger))

	var ppOpts []shader.PreProcessorBuilderOption
	if d.cfg.IncludeDir != "" {
		ppOpts = append(ppOpts, shader.WithIncludeDir(d.cfg.IncludeDir))
	}
	compilerOpts := []technique.CompilerBuilderOption{
		technique.WithPreProcessor(shader.NewPreProcessor(ppOpts...)),
		technique.WithLogger(d.logger),
	}
	if d.shaderCompiler != nil {
		compilerOpts = append(compilerOpts, technique.WithShaderCompiler(d.shaderCompiler))
	}
	d.compiler = technique.NewCompiler(compilerOpts...)
	d.cache = technique.NewCache(d.compiler, technique.WithBlobRoot(d.cfg.BlobRoot), technique.WithCacheLogger(d.logger))
	d.builder = pipeline.NewBuilder(d.backend, pipeline.WithLogger(d.logger))
	d.recorder = frame.NewRecorder(d.backend, d.ring, ringBuf, frame.WithLogger(d.logger))
	if d.meshLoader == nil {
		d.meshLoader = loader.NewLoader(loader.BackendTypeGLTF, loader.WithLogger(d.logger))
	}

	width, height := d.cfg.Width, d.cfg.Height
	if window != nil {
		width, height = window.Width(), window.Height()
	}
	if err := d.createSwapchain(uint32(width), uint32(height)); err != nil {
		d.Destroy()
		return nil, err
	}

	if d.cfg.HotReload {
		w, err := newWatcher(d.logger)
		if err != nil {
			d.logger.Warn("hot reload disabled", zap.Error(err))
		} else {
			d.watcher = w
		}
	}

	d.logger.Info("created device",
		zap.Int("back_buffers", len(d.contexts)),
		zap.Uint32("width", d.width),
		zap.Uint32("height", d.height),
		zap.Uint64("staging_capacity", d.ring.Capacity()),
		zap.Bool("hot_reload", d.watcher != nil))
	return d, nil
}

// createSwapchain configures the surface and creates one frame context per back buffer.
func (d *device) createSwapchain(width, height uint32) error {
	images, err := d.backend.ConfigureSurface(width, height, uint32(d.cfg.BackBufferCount))
	if err != nil {
		return fmt.Errorf("failed to configure surface: %w", err)
	}

	d.backBuffers = make([]*resource.Texture, len(images))
	for i, img := range images {
		d.backBuffers[i] = resource.WrapTexture(img)
	}
	d.contexts = make([]*frame.Context, len(images))
	for i := range d.contexts {
		ctx, err := frame.NewContext(d.backend, i)
		if err != nil {
			d.destroyContexts()
			return fmt.Errorf("failed to create frame context %d: %w", i, err)
		}
		ctx.StagingTail = d.ring.Head()
		d.contexts[i] = ctx
	}
	d.width, d.height = width, height
	d.curr, d.next = 0, 1%len(d.contexts)
	return nil
}

func (d *device) destroyContexts() {
	for _, ctx := range d.contexts {
		if ctx != nil {
			ctx.Release()
		}
	}
	d.contexts = nil
}

func (d *device) BeginFrame() frame.CommandRecorder {
	if d.inFrame {
		panic("renderer: BeginFrame called twice without EndFrame")
	}
	d.processReloads()

	ctx := d.contexts[d.curr]
	if err := d.backend.WaitForFence(ctx.Fence); err != nil {
		panic(fmt.Sprintf("renderer: failed to wait for frame %d: %v", ctx.Index, err))
	}
	d.backend.ResetFence(ctx.Fence)
	d.ring.SetTail(ctx.StagingTail)
	ctx.ResetBindGroups()

	idx, err := d.backend.AcquireNextImage(ctx.ImageAcquired)
	if err != nil {
		panic(fmt.Sprintf("renderer: %v", err))
	}
	d.imageIndex = idx

	if err := ctx.Encoder.Begin(); err != nil {
		panic(fmt.Sprintf("renderer: %v", err))
	}
	if n := d.queue.Drain(ctx.Encoder); n > 0 {
		d.logger.Debug("ran deferred commands", zap.Int("count", n), zap.Int("frame", ctx.Index))
	}
	d.recorder.Begin(ctx)
	d.inFrame = true
	return d.recorder
}

func (d *device) EndFrame() {
	if !d.inFrame {
		panic("renderer: EndFrame called without BeginFrame")
	}
	ctx := d.contexts[d.curr]
	if err := d.recorder.End(); err != nil {
		panic(fmt.Sprintf("renderer: %v", err))
	}
	ctx.StagingTail = d.ring.Head()
	d.flushStaging()

	if err := d.backend.Submit(backend.SubmitInfo{
		Encoder: ctx.Encoder,
		Wait:    ctx.ImageAcquired,
		Signal:  ctx.RenderComplete,
		Fence:   ctx.Fence,
	}); err != nil {
		panic(fmt.Sprintf("renderer: failed to submit frame %d: %v", ctx.Index, err))
	}
	if err := d.backend.Present(d.imageIndex, ctx.RenderComplete); err != nil {
		panic(fmt.Sprintf("renderer: failed to present: %v", err))
	}

	d.curr = d.next
	d.next = (d.curr + 1) % len(d.contexts)
	d.inFrame = false
	d.stats.Frames++
	if d.profiler != nil {
		d.profiler.Tick()
	}
}

// flushStaging copies the ring ranges written since the last flush into the GPU staging buffer.
func (d *device) flushStaging() {
	bytes := d.ring.Bytes()
	for _, r := range d.ring.TakeDirty() {
		d.backend.WriteBuffer(d.ringBuffer.Backend(), r.Offset, bytes[r.Offset:r.Offset+r.Size])
	}
}

func (d *device) WaitForGpu() {
	d.backend.WaitIdle()
}

func (d *device) Resize(width, height int) error {
	if d.inFrame {
		panic("renderer: Resize called between BeginFrame and EndFrame")
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("cannot resize to %dx%d", width, height)
	}
	d.WaitForGpu()
	d.destroyContexts()
	d.ring.SetTail(d.ring.Head())
	if err := d.createSwapchain(uint32(width), uint32(height)); err != nil {
		return err
	}
	d.logger.Info("resized swapchain", zap.Int("width", width), zap.Int("height", height))
	return nil
}

func (d *device) AllocateUploadBuffer(size uint64) UploadAllocation {
	alloc := d.ring.Allocate(size, 0)
	return UploadAllocation{Buffer: d.ringBuffer, Offset: alloc.Offset, Data: alloc.Data}
}

func (d *device) BackBufferCount() int { return len(d.backBuffers) }

func (d *device) BackBufferIndex() int { return int(d.imageIndex) }

func (d *device) BackBuffer(index int) *resource.Texture {
	if index < 0 || index >= len(d.backBuffers) {
		panic(fmt.Sprintf("renderer: back buffer %d out of range [0, %d)", index, len(d.backBuffers)))
	}
	return d.backBuffers[index]
}

func (d *device) SurfaceFormat() gputypes.TextureFormat { return d.backend.SurfaceFormat() }

func (d *device) Store() resource.Store { return d.store }

func (d *device) CreateBuffer(params resource.BufferParams) *resource.Buffer {
	return d.store.CreateBuffer(params)
}

func (d *device) DestroyBuffer(buf *resource.Buffer) { d.store.DestroyBuffer(buf) }

func (d *device) CreateTexture(params resource.TextureParams) *resource.Texture {
	return d.store.CreateTexture(params)
}

func (d *device) DestroyTexture(tex *resource.Texture) { d.store.DestroyTexture(tex) }

func (d *device) CreateSampler(params resource.SamplerParams) *resource.Sampler {
	return d.store.CreateSampler(params)
}

func (d *device) DestroySampler(s *resource.Sampler) { d.store.DestroySampler(s) }

func (d *device) Stats() Stats {
	s := d.stats
	cs := d.cache.Stats()
	s.TechniqueLoads = cs.Loads
	s.TechniqueRegenerations = cs.Regenerations
	return s
}

func (d *device) Destroy() {
	if d.destroyed {
		return
	}
	d.destroyed = true
	d.backend.WaitIdle()

	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			d.logger.Warn("failed to close file watcher", zap.Error(err))
		}
	}
	for _, e := range d.techniques {
		d.builder.Destroy(e.tech)
	}
	clear(d.techniques)
	d.destroyContexts()
	d.ringBuffer.Backend().Release()
	d.compiler.Release()
	d.backend.Release()
	d.logger.Info("destroyed device", zap.Int("frames", d.stats.Frames))
}
