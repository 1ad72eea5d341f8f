// Package frame holds the per back buffer frame state and the command recorder user code records a frame with.
package frame

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
)

// Context is the state of one in-flight frame. There is one per back buffer; a context is reused once its fence
// reports that the GPU has finished the previous submission recorded with it.
type Context struct {
	Index          int
	Encoder        backend.CommandEncoder
	Fence          backend.Fence
	ImageAcquired  backend.Semaphore
	RenderComplete backend.Semaphore

	// StagingTail is the staging ring head at the end of this context's last submission. Memory before it is
	// free once the fence has signaled.
	StagingTail uint64

	bindGroups []backend.BindGroup
}

// NewContext creates the encoder and synchronization objects of a frame. The fence starts signaled so the first
// BeginFrame does not wait.
//
// Parameters:
//   - b: the backend to create the objects on
//   - index: the back buffer index the context belongs to
//
// Returns:
//   - *Context: the frame context
//   - error: a backend creation failure
func NewContext(b backend.Backend, index int) (ctx *Context, err error) {
	ctx = &Context{Index: index}
	defer func() {
		if err != nil {
			ctx.Release()
			ctx = nil
		}
	}()

	if ctx.Encoder, err = b.CreateCommandEncoder(fmt.Sprintf("frame %d", index)); err != nil {
		return ctx, fmt.Errorf("failed to create command encoder: %w", err)
	}
	if ctx.Fence, err = b.CreateFence(true); err != nil {
		return ctx, fmt.Errorf("failed to create fence: %w", err)
	}
	if ctx.ImageAcquired, err = b.CreateSemaphore(); err != nil {
		return ctx, fmt.Errorf("failed to create semaphore: %w", err)
	}
	if ctx.RenderComplete, err = b.CreateSemaphore(); err != nil {
		return ctx, fmt.Errorf("failed to create semaphore: %w", err)
	}
	return ctx, nil
}

// track adds a bind group to the frame's pool.
func (c *Context) track(bg backend.BindGroup) {
	c.bindGroups = append(c.bindGroups, bg)
}

// BindGroupCount returns how many bind groups the frame has allocated since the pool was last reset.
func (c *Context) BindGroupCount() int {
	return len(c.bindGroups)
}

// ResetBindGroups releases every bind group allocated by the frame. Only call it after the frame's fence has
// signaled.
func (c *Context) ResetBindGroups() {
	for _, bg := range c.bindGroups {
		bg.Release()
	}
	c.bindGroups = c.bindGroups[:0]
}

// Release destroys the context's backend objects.
func (c *Context) Release() {
	c.ResetBindGroups()
	if c.Encoder != nil {
		c.Encoder.Release()
	}
	if c.Fence != nil {
		c.Fence.Release()
	}
	if c.ImageAcquired != nil {
		c.ImageAcquired.Release()
	}
	if c.RenderComplete != nil {
		c.RenderComplete.Release()
	}
	*c = Context{Index: c.Index}
}
