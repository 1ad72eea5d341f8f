package pipeline

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/resource"
	"github.com/gogpu/gputypes"
)

// RenderSetupID addresses a render setup in its technique's arena. An ID goes stale when the setup is destroyed;
// using a stale ID panics.
type RenderSetupID struct {
	index      uint32
	generation uint32
}

// IsZero reports whether the ID was never assigned.
func (id RenderSetupID) IsZero() bool { return id.generation == 0 }

// RenderSetupParams are the attachments of a render setup.
type RenderSetupParams struct {
	Colors []*resource.Texture
	Depth  *resource.Texture
}

// RenderSetup is a set of attachments bound to a graphics technique's render pass.
type RenderSetup struct {
	colors      []*resource.Texture
	depth       *resource.Texture
	framebuffer backend.Framebuffer
	width       uint32
	height      uint32
}

func (r *RenderSetup) Colors() []*resource.Texture      { return r.colors }
func (r *RenderSetup) Depth() *resource.Texture         { return r.depth }
func (r *RenderSetup) Framebuffer() backend.Framebuffer { return r.framebuffer }
func (r *RenderSetup) Width() uint32                    { return r.width }
func (r *RenderSetup) Height() uint32                   { return r.height }

type renderSetupSlot struct {
	setup      *RenderSetup
	generation uint32
}

// RenderSetup resolves an ID. It panics when the ID is stale or belongs to another technique's arena.
func (t *Technique) RenderSetup(id RenderSetupID) *RenderSetup {
	if int(id.index) >= len(t.setups) || t.setups[id.index].generation != id.generation || t.setups[id.index].setup == nil {
		panic(fmt.Sprintf("pipeline: stale render setup id %d/%d for technique %q", id.index, id.generation, t.label))
	}
	return t.setups[id.index].setup
}

// RenderSetupCount returns the number of live render setups.
func (t *Technique) RenderSetupCount() int {
	return len(t.setups) - len(t.free)
}

func (t *Technique) insertSetup(rs *RenderSetup) RenderSetupID {
	if n := len(t.free); n > 0 {
		index := t.free[n-1]
		t.free = t.free[:n-1]
		slot := &t.setups[index]
		slot.setup = rs
		return RenderSetupID{index: index, generation: slot.generation}
	}
	t.setups = append(t.setups, renderSetupSlot{setup: rs, generation: 1})
	return RenderSetupID{index: uint32(len(t.setups) - 1), generation: 1}
}

func (t *Technique) removeSetup(id RenderSetupID) *RenderSetup {
	rs := t.RenderSetup(id)
	slot := &t.setups[id.index]
	slot.setup = nil
	slot.generation++
	t.free = append(t.free, id.index)
	return rs
}

// newFramebuffer checks the attachments against the render pass formats and creates the framebuffer.
func newFramebuffer(b backend.Backend, t *Technique, rp backend.RenderPass, colors []*resource.Texture, depth *resource.Texture) (*RenderSetup, error) {
	colorFormats := rp.ColorFormats()
	if len(colors) != len(colorFormats) {
		return nil, fmt.Errorf("technique %q expects %d color attachments, got %d", t.label, len(colorFormats), len(colors))
	}
	for i, c := range colors {
		if c == nil {
			return nil, fmt.Errorf("technique %q: color attachment %d is nil", t.label, i)
		}
		if c.Format() != colorFormats[i] {
			return nil, fmt.Errorf("technique %q: color attachment %d is %s, expected %s", t.label, i, c.Format(), colorFormats[i])
		}
	}
	switch {
	case rp.DepthFormat() == gputypes.TextureFormatUndefined && depth != nil:
		return nil, fmt.Errorf("technique %q has no depth attachment", t.label)
	case rp.DepthFormat() != gputypes.TextureFormatUndefined && depth == nil:
		return nil, fmt.Errorf("technique %q expects a %s depth attachment", t.label, rp.DepthFormat())
	case depth != nil && depth.Format() != rp.DepthFormat():
		return nil, fmt.Errorf("technique %q: depth attachment is %s, expected %s", t.label, depth.Format(), rp.DepthFormat())
	}

	rs := &RenderSetup{colors: colors, depth: depth}
	switch {
	case len(colors) > 0:
		rs.width, rs.height = colors[0].Width(), colors[0].Height()
	case depth != nil:
		rs.width, rs.height = depth.Width(), depth.Height()
	default:
		return nil, fmt.Errorf("technique %q: render setup has no attachments", t.label)
	}

	gpuColors := make([]backend.Texture, len(colors))
	for i, c := range colors {
		if c.Width() != rs.width || c.Height() != rs.height {
			return nil, fmt.Errorf("technique %q: color attachment %d is %dx%d, expected %dx%d", t.label, i, c.Width(), c.Height(), rs.width, rs.height)
		}
		gpuColors[i] = c.Backend()
	}
	var gpuDepth backend.Texture
	if depth != nil {
		if depth.Width() != rs.width || depth.Height() != rs.height {
			return nil, fmt.Errorf("technique %q: depth attachment is %dx%d, expected %dx%d", t.label, depth.Width(), depth.Height(), rs.width, rs.height)
		}
		gpuDepth = depth.Backend()
	}

	fb, err := b.CreateFramebuffer(backend.FramebufferDescriptor{
		Label:            t.label,
		RenderPass:       rp,
		ColorAttachments: gpuColors,
		DepthAttachment:  gpuDepth,
		Width:            rs.width,
		Height:           rs.height,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create framebuffer: %w", err)
	}
	rs.framebuffer = fb
	return rs, nil
}
