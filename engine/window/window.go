// Package window provides the native window a device presents to: it hands out a WebGPU surface
// descriptor, reports framebuffer resizes and forwards key presses.
package window

import (
	"errors"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-gfx/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// ErrClosed is returned by operations on a window that was already closed.
var ErrClosed = errors.New("window is closed")

// Window is a native window a device presents to. Apart from RequestClose and the size getters, every method
// must be called from the goroutine that created the window, which is locked to its OS thread.
type Window interface {
	// SurfaceDescriptor returns the platform surface the WebGPU backend renders into.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the surface descriptor, or nil once the window is closed
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// Width returns the framebuffer width in pixels.
	Width() int

	// Height returns the framebuffer height in pixels.
	Height() int

	// SetTitle changes the title bar text.
	SetTitle(title string)

	// SetResizeCallback sets the function called when the framebuffer is resized. A minimized window reports 0x0.
	//
	// Parameters:
	//   - callback: function receiving the new width and height in pixels, or nil
	SetResizeCallback(callback func(width, height int))

	// SetKeyCallback sets the function called for key presses, repeats and releases. Key codes are the
	// common.Key* values.
	//
	// Parameters:
	//   - callback: function receiving the key code and whether the key went down, or nil
	SetKeyCallback(callback func(key uint32, down bool))

	// Poll processes pending window events once without blocking.
	//
	// Returns:
	//   - bool: false once the window was asked to close
	Poll() bool

	// Run polls events until the window is asked to close, calling update after every poll.
	//
	// Parameters:
	//   - update: function called once per iteration, or nil
	Run(update func())

	// RequestClose asks the window to close. Safe to call from any goroutine.
	RequestClose()

	// IsRunning reports whether the window is open and no close was requested.
	IsRunning() bool

	// Close destroys the native window.
	//
	// Returns:
	//   - error: ErrClosed if the window was already closed
	Close() error
}

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	title         string
	width         atomic.Int32
	height        atomic.Int32
	minWidth      int
	minHeight     int
	maxWidth      int
	maxHeight     int
	resizable     bool
	closeOnEscape bool
	idleInterval  time.Duration

	closeRequested atomic.Bool
	closed         bool

	// native holds the platform window (glfwWindow).
	native any

	onResize func(width, height int)
	onKey    func(key uint32, down bool)
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a window. The calling goroutine is locked to its OS thread, which most platforms
// require for window event handling.
//
// Parameters:
//   - opts: functional options such as WithTitle, WithWidth and WithHeight
//
// Returns:
//   - Window: the window
//   - error: an error if the platform window could not be created
func NewWindow(opts ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		title:         "oxy-gfx",
		resizable:     true,
		closeOnEscape: true,
		idleInterval:  time.Millisecond,
	}
	w.width.Store(1280)
	w.height.Store(720)
	for _, opt := range opts {
		opt(w)
	}

	runtime.LockOSThread()
	if err := newPlatformWindow(w); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	return w, nil
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	if w.closed {
		return nil
	}
	return platformSurfaceDescriptor(w)
}

func (w *engineWindow) Width() int { return int(w.width.Load()) }

func (w *engineWindow) Height() int { return int(w.height.Load()) }

func (w *engineWindow) SetTitle(title string) {
	w.title = title
	if !w.closed {
		platformSetTitle(w, title)
	}
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SetKeyCallback(callback func(key uint32, down bool)) {
	w.onKey = callback
}

func (w *engineWindow) Poll() bool {
	if w.closed {
		return false
	}
	platformPollEvents(w)
	return w.IsRunning()
}

func (w *engineWindow) Run(update func()) {
	for w.Poll() {
		if update != nil {
			update()
		}
		// The render loop runs on its own goroutine, so the event loop only needs to stay responsive.
		time.Sleep(w.idleInterval)
	}
}

func (w *engineWindow) RequestClose() {
	w.closeRequested.Store(true)
}

func (w *engineWindow) IsRunning() bool {
	return !w.closed && !w.closeRequested.Load() && !platformShouldClose(w)
}

func (w *engineWindow) Close() error {
	if w.closed {
		return ErrClosed
	}
	w.closed = true
	platformDestroy(w)
	runtime.UnlockOSThread()
	return nil
}

// resized records a framebuffer size reported by the platform.
func (w *engineWindow) resized(width, height int) {
	w.width.Store(int32(width))
	w.height.Store(int32(height))
	if w.onResize != nil {
		w.onResize(width, height)
	}
}

// key forwards a key event, closing the window on Escape when configured to.
func (w *engineWindow) key(code uint32, down bool) {
	if w.closeOnEscape && down && code == common.KeyEsc {
		w.RequestClose()
		return
	}
	if w.onKey != nil {
		w.onKey(code, down)
	}
}
