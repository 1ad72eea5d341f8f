// Package engine is the application loop around a renderer.Device: it polls the window, forwards resizes, reloads
// techniques on a key press and records one frame per iteration on a dedicated render goroutine.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-gfx/common"
	"github.com/Carmen-Shannon/oxy-gfx/engine/profiler"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/frame"
	"github.com/Carmen-Shannon/oxy-gfx/engine/window"
	"go.uber.org/zap"
)

// DefaultReloadKey rebuilds every changed technique when pressed.
const DefaultReloadKey = common.KeyF5

// ErrRunning is returned by Run while the engine is already running.
var ErrRunning = errors.New("engine is already running")

type size struct{ width, height int }

// engine implements the Engine interface.
// Coordinates the window event loop, the tick goroutine and the render goroutine.
type engine struct {
	logger     *zap.Logger
	window     window.Window
	configPath string
	deviceOpts []renderer.DeviceBuilderOption
	device     renderer.Device

	profiler         *profiler.Profiler
	profilingEnabled bool
	reloadKey        uint32
	retryOnFailure   bool

	engineTickRate   time.Duration
	tickRateChannel  chan time.Duration
	renderFrameLimit time.Duration

	setupCallback    func(dev renderer.Device) error
	tickCallback     func(deltaTime float32)
	renderCallback   func(dev renderer.Device, rec frame.CommandRecorder, deltaTime float32)
	resizeCallback   func(dev renderer.Device, width, height int)
	shutdownCallback func(dev renderer.Device)
	keyCallback      func(key uint32, down bool)

	resizeChannel   chan size
	reloadRequested atomic.Bool
	loopStarted     atomic.Bool
	minimized       bool

	running     atomic.Bool
	wg          sync.WaitGroup
	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	errMu sync.Mutex
	err   error
}

// Engine is the main entry point for applications.
// It creates the device, runs the tick and render loops and tears everything down when the window closes.
type Engine interface {
	// Window returns the window the engine presents to, or nil for a headless engine.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Logger returns the engine's logger, which is also installed as the global zap logger.
	Logger() *zap.Logger

	// SetTickRate sets the engine tick rate in ticks per second.
	// The tick callback will be called at this rate for application logic updates.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetSetupCallback registers the function called once after the device is created and before the first
	// frame. Load techniques, textures and models here. An error aborts Run.
	//
	// Parameters:
	//   - callback: function receiving the new device
	SetSetupCallback(callback func(dev renderer.Device) error)

	// SetTickCallback registers the function called each engine tick on the tick goroutine.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function that records each frame. It runs on the render goroutine between
	// BeginFrame and EndFrame.
	//
	// Parameters:
	//   - callback: function receiving the device, the frame's recorder and the delta time in seconds
	SetRenderCallback(callback func(dev renderer.Device, rec frame.CommandRecorder, deltaTime float32))

	// SetResizeCallback registers the function called on the render goroutine after the back buffers were
	// recreated. Render setups that reference back buffers are recreated here.
	//
	// Parameters:
	//   - callback: function receiving the device and the new size in pixels
	SetResizeCallback(callback func(dev renderer.Device, width, height int))

	// SetShutdownCallback registers the function called before the device is destroyed. Release everything
	// created in the setup callback here.
	//
	// Parameters:
	//   - callback: function receiving the device
	SetShutdownCallback(callback func(dev renderer.Device))

	// SetKeyCallback registers the function receiving window key events other than the reload key.
	//
	// Parameters:
	//   - callback: function receiving the key code and whether the key went down
	SetKeyCallback(callback func(key uint32, down bool))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// RequestReload asks the render goroutine to call ReloadAllTechniques before its next frame, as the reload key
	// does. Safe to call from any goroutine.
	RequestReload()

	// Run creates the device, calls the setup callback and runs until the window closes or Quit is called.
	// With a window, Run must be called from the goroutine that created it.
	//
	// Returns:
	//   - error: a config, device or setup failure, or the panic that stopped the render loop
	Run() error

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

var _ Engine = &engine{}

// NewEngine creates a new Engine with the provided options.
// Without WithLogger the engine builds a zap development logger.
//
// Parameters:
//   - options: functional options such as WithWindow, WithConfigFile and WithDeviceOptions
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		resizeChannel:   make(chan size, 1),
		quitChannel:     make(chan struct{}),
		engineTickRate:  time.Second / 60,
		reloadKey:       DefaultReloadKey,
	}

	for _, opt := range options {
		opt(e)
	}

	if e.logger == nil {
		logger, err := zap.NewDevelopment()
		if err != nil {
			logger = zap.NewNop()
		}
		e.logger = logger
	}
	zap.ReplaceGlobals(e.logger)
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(profiler.WithLogger(e.logger))
	}

	if e.window != nil {
		e.window.SetResizeCallback(e.requestResize)
		e.window.SetKeyCallback(e.onKey)
	}
	return e
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Logger() *zap.Logger {
	return e.logger
}

func (e *engine) Run() error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer e.running.Store(false)

	dev, err := e.createDevice()
	if err != nil {
		return err
	}
	e.device = dev
	if e.setupCallback != nil {
		if err := e.setupCallback(dev); err != nil {
			e.teardown()
			return fmt.Errorf("setup failed: %w", err)
		}
	}

	e.loopStarted.Store(true)
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()

	if e.window != nil {
		e.window.Run(nil)
		e.signalQuit()
	}
	e.wg.Wait()
	if e.window != nil {
		if err := e.window.Close(); err != nil {
			e.logger.Warn("failed to close window", zap.Error(err))
		}
	}
	return e.runErr()
}

// createDevice applies the config file, then the device options given to the engine.
func (e *engine) createDevice() (renderer.Device, error) {
	var opts []renderer.DeviceBuilderOption
	if e.configPath != "" {
		cfg, err := renderer.LoadConfig(e.configPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, renderer.WithConfig(cfg))
	}
	opts = append(opts, renderer.WithLogger(e.logger))
	if e.profilingEnabled {
		opts = append(opts, renderer.WithProfiler(e.profiler))
	}
	if e.retryOnFailure && e.window != nil {
		opts = append(opts, renderer.WithRetryPrompt(e.retryPrompt))
	}
	opts = append(opts, e.deviceOpts...)

	var surface renderer.SurfaceProvider
	if e.window != nil {
		surface = e.window
	}
	dev, err := renderer.NewDevice(surface, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}
	return dev, nil
}

// retryPrompt keeps the window responsive while the user fixes a technique that failed to load during setup.
// It returns true once the reload key is pressed and false when the window closes. Loads issued after the loop
// started are not retried since the window is owned by another goroutine by then.
func (e *engine) retryPrompt(path string, err error) bool {
	if e.loopStarted.Load() {
		return false
	}
	e.logger.Warn("fix the technique and press the reload key to retry, or close the window to give up",
		zap.String("path", path), zap.Error(err))
	e.reloadRequested.Store(false)
	for e.window.Poll() {
		if e.reloadRequested.Swap(false) {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// Quit signals all engine goroutines to stop and asks the window to close.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
		if e.window != nil {
			e.window.RequestClose()
		}
	})
}

func (e *engine) setErr(err error) {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	if e.err == nil {
		e.err = err
	}
}

func (e *engine) runErr() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

// handleEngine runs the fixed-rate tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender owns the device once Run started the loops. Each iteration applies a pending resize and reload,
// then records one frame. A panic is logged and stops the engine instead of crashing the process.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer e.teardown()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("render loop recovered from panic", zap.Any("panic", r), zap.Stack("stack"))
			e.setErr(fmt.Errorf("render loop panic: %v", r))
			e.signalQuit()
		}
	}()

	lastRender := time.Now()
	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		e.applyResize()
		if e.reloadRequested.Swap(false) {
			n := e.device.ReloadAllTechniques()
			e.logger.Info("reloaded techniques", zap.Int("count", n))
		}
		if e.minimized {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		rec := e.device.BeginFrame()
		if e.renderCallback != nil {
			e.renderCallback(e.device, rec, dt)
		}
		e.device.EndFrame()

		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - time.Since(now); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// teardown waits for the GPU, runs the shutdown callback and destroys the device.
func (e *engine) teardown() {
	if e.device == nil {
		return
	}
	e.device.WaitForGpu()
	if e.shutdownCallback != nil {
		e.shutdownCallback(e.device)
	}
	e.device.Destroy()
	e.device = nil
}

// requestResize queues the latest framebuffer size for the render goroutine. Only the newest size is kept.
func (e *engine) requestResize(width, height int) {
	s := size{width, height}
	select {
	case e.resizeChannel <- s:
	default:
		select {
		case <-e.resizeChannel:
		default:
		}
		e.resizeChannel <- s
	}
}

func (e *engine) applyResize() {
	var s size
	select {
	case s = <-e.resizeChannel:
	default:
		return
	}
	if s.width <= 0 || s.height <= 0 {
		e.minimized = true
		return
	}
	e.minimized = false
	if err := e.device.Resize(s.width, s.height); err != nil {
		e.logger.Error("failed to resize", zap.Int("width", s.width), zap.Int("height", s.height), zap.Error(err))
		return
	}
	if e.resizeCallback != nil {
		e.resizeCallback(e.device, s.width, s.height)
	}
}

func (e *engine) onKey(key uint32, down bool) {
	if key == e.reloadKey {
		if down {
			e.RequestReload()
		}
		return
	}
	if e.keyCallback != nil {
		e.keyCallback(key, down)
	}
}

func (e *engine) RequestReload() {
	e.reloadRequested.Store(true)
}

// SetTickRate sets the engine tick rate in ticks per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if e.running.Load() {
		// Non-blocking send - if a change is pending, replace it
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

func (e *engine) SetSetupCallback(callback func(dev renderer.Device) error) {
	e.setupCallback = callback
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(dev renderer.Device, rec frame.CommandRecorder, deltaTime float32)) {
	e.renderCallback = callback
}

func (e *engine) SetResizeCallback(callback func(dev renderer.Device, width, height int)) {
	e.resizeCallback = callback
}

func (e *engine) SetShutdownCallback(callback func(dev renderer.Device)) {
	e.shutdownCallback = callback
}

func (e *engine) SetKeyCallback(callback func(key uint32, down bool)) {
	e.keyCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}
