// Package deferred holds setup work that must be recorded on a frame's command encoder. Resource creation happens
// outside of any frame, so uploads and initial layout transitions are queued here and drained at the start of the
// next frame, before user recording.
package deferred

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
)

// Kind tags a deferred command.
type Kind int

const (
	KindUploadBuffer Kind = iota
	KindUploadTexture
	KindTransitionTexture
	KindGenerateMipmaps
)

func (k Kind) String() string {
	switch k {
	case KindUploadBuffer:
		return "upload_buffer"
	case KindUploadTexture:
		return "upload_texture"
	case KindTransitionTexture:
		return "transition_texture"
	case KindGenerateMipmaps:
		return "generate_mipmaps"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Command is one unit of deferred setup work.
type Command interface {
	Kind() Kind
}

// UploadBuffer copies staged bytes into a buffer and makes them visible to Access.
type UploadBuffer struct {
	Src       backend.Buffer
	SrcOffset uint64
	Dst       backend.Buffer
	Size      uint64
	Access    backend.BufferAccess
}

// UploadTexture copies staged texels into mip 0 and moves the texture to State.
type UploadTexture struct {
	Src         backend.Buffer
	SrcOffset   uint64
	BytesPerRow uint32
	Dst         backend.Texture
	State       backend.TextureState
}

// TransitionTexture moves every mip of a texture from From to To.
type TransitionTexture struct {
	Texture backend.Texture
	From    backend.TextureState
	To      backend.TextureState
}

// GenerateMipmaps uploads mip 0 like UploadTexture, then fills every further level by a linear blit from the
// level above it and moves the whole chain to State.
type GenerateMipmaps struct {
	Src         backend.Buffer
	SrcOffset   uint64
	BytesPerRow uint32
	Dst         backend.Texture
	State       backend.TextureState
}

func (UploadBuffer) Kind() Kind      { return KindUploadBuffer }
func (UploadTexture) Kind() Kind     { return KindUploadTexture }
func (TransitionTexture) Kind() Kind { return KindTransitionTexture }
func (GenerateMipmaps) Kind() Kind   { return KindGenerateMipmaps }

// Execute records cmd on enc.
//
// Parameters:
//   - enc: an encoder between Begin and End, outside of any render pass
//   - cmd: the command to record
func Execute(enc backend.CommandEncoder, cmd Command) {
	switch c := cmd.(type) {
	case UploadBuffer:
		enc.TransitionBuffer(c.Dst, backend.BufferAccessNone, backend.BufferAccessCopyDst)
		enc.CopyBufferToBuffer(c.Src, c.SrcOffset, c.Dst, 0, c.Size)
		enc.TransitionBuffer(c.Dst, backend.BufferAccessCopyDst, c.Access)
	case UploadTexture:
		enc.TransitionTexture(c.Dst, 0, backend.TextureStateUndefined, backend.TextureStateCopyDst)
		enc.CopyBufferToTexture(c.Src, c.SrcOffset, c.BytesPerRow, c.Dst, 0)
		enc.TransitionTexture(c.Dst, 0, backend.TextureStateCopyDst, c.State)
	case TransitionTexture:
		for mip := range c.Texture.MipLevelCount() {
			enc.TransitionTexture(c.Texture, mip, c.From, c.To)
		}
	case GenerateMipmaps:
		generateMipmaps(enc, c)
	default:
		panic(fmt.Sprintf("deferred: unknown command %T", cmd))
	}
}

func generateMipmaps(enc backend.CommandEncoder, c GenerateMipmaps) {
	tex := c.Dst
	enc.TransitionTexture(tex, 0, backend.TextureStateUndefined, backend.TextureStateCopyDst)
	enc.CopyBufferToTexture(c.Src, c.SrcOffset, c.BytesPerRow, tex, 0)

	levels := tex.MipLevelCount()
	for mip := uint32(1); mip < levels; mip++ {
		enc.TransitionTexture(tex, mip-1, backend.TextureStateCopyDst, backend.TextureStateCopySrc)
		enc.TransitionTexture(tex, mip, backend.TextureStateUndefined, backend.TextureStateCopyDst)
		enc.BlitTexture(tex, mip, tex, mip-1)
	}

	for mip := range levels {
		from := backend.TextureStateCopySrc
		if mip == levels-1 {
			from = backend.TextureStateCopyDst
		}
		enc.TransitionTexture(tex, mip, from, c.State)
	}
}

type queueImpl struct {
	mu       *sync.Mutex
	commands []Command
}

// Queue collects deferred commands until the next frame drains them. It is safe for concurrent use.
type Queue interface {
	// Push appends cmd to the queue.
	Push(cmd Command)

	// Drain records every queued command on enc in submission order and empties the queue.
	//
	// Parameters:
	//   - enc: an encoder between Begin and End, outside of any render pass
	//
	// Returns:
	//   - int: the number of commands recorded
	Drain(enc backend.CommandEncoder) int

	// Len returns the number of queued commands.
	Len() int
}

var _ Queue = &queueImpl{}

// NewQueue creates an empty deferred command queue.
func NewQueue() Queue {
	return &queueImpl{mu: &sync.Mutex{}}
}

func (q *queueImpl) Push(cmd Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.commands = append(q.commands, cmd)
}

func (q *queueImpl) Drain(enc backend.CommandEncoder) int {
	q.mu.Lock()
	commands := q.commands
	q.commands = nil
	q.mu.Unlock()

	for _, cmd := range commands {
		Execute(enc, cmd)
	}
	return len(commands)
}

func (q *queueImpl) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}
