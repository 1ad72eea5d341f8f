// Package staging implements the circular upload ring every CPU to GPU transfer goes through: buffer and texture
// initial data as well as per-draw dynamic constants. The ring is mirrored on the host; the device flushes the
// dirty ranges into the GPU ring buffer before each submission.
package staging

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gfx/common"
)

const (
	// DefaultCapacity is the ring size used when WithCapacity is not given.
	DefaultCapacity uint64 = 32 << 20
	// DefaultAlignment matches WebGPU's minimum uniform buffer offset alignment.
	DefaultAlignment uint64 = 256
)

// Allocation is a region of the ring. Data aliases the host mirror at Offset and is valid for writing until the
// frame that allocated it is retired.
type Allocation struct {
	Offset uint64
	Data   []byte
}

// Range is a half open byte range [Offset, Offset+Size) of the ring.
type Range struct {
	Offset uint64
	Size   uint64
}

type allocatorImpl struct {
	capacity         uint64
	mask             uint64
	defaultAlignment uint64

	// head and tail are absolute byte positions; the ring offset is position & mask.
	head uint64
	tail uint64

	// dirty is the absolute position up to which writes have been handed out by TakeDirty.
	dirty uint64

	bytes []byte
}

// Allocator hands out regions of a fixed size byte ring. It is not safe for concurrent use; recording is
// single threaded.
type Allocator interface {
	// Allocate reserves size bytes aligned to alignment (0 selects the default alignment). An aligned range that
	// would cross the end of the ring wraps to offset 0.
	//
	// Panics when size exceeds the capacity or the allocation would overwrite memory at or past the current tail,
	// i.e. memory an in-flight frame may still read.
	//
	// Parameters:
	//   - size: the number of bytes to reserve
	//   - alignment: the required offset alignment in bytes, a power of two, or 0
	//
	// Returns:
	//   - Allocation: the ring offset and the host-writable bytes
	Allocate(size, alignment uint64) Allocation

	// Head returns the absolute position of the next free byte.
	Head() uint64

	// Tail returns the absolute position of the oldest byte that may still be in use by the GPU.
	Tail() uint64

	// SetTail retires every allocation below tail.
	//
	// Parameters:
	//   - tail: an absolute position previously returned by Head
	SetTail(tail uint64)

	// Capacity returns the ring size in bytes.
	Capacity() uint64

	// Bytes returns the host mirror of the whole ring.
	Bytes() []byte

	// TakeDirty returns the ring ranges allocated since the previous call, split at the wrap point, and marks
	// them clean. Padding skipped to honour alignment or wrapping is included.
	TakeDirty() []Range
}

var _ Allocator = &allocatorImpl{}

// NewAllocator creates a staging ring.
//
// Parameters:
//   - opts: functional options for the allocator
//
// Returns:
//   - Allocator: the staging ring
func NewAllocator(opts ...AllocatorBuilderOption) Allocator {
	a := &allocatorImpl{
		capacity:         DefaultCapacity,
		defaultAlignment: DefaultAlignment,
	}
	for _, opt := range opts {
		opt(a)
	}
	if !common.IsPowerOfTwo(a.capacity) {
		panic(fmt.Sprintf("staging: capacity %d is not a power of two", a.capacity))
	}
	if !common.IsPowerOfTwo(a.defaultAlignment) {
		panic(fmt.Sprintf("staging: alignment %d is not a power of two", a.defaultAlignment))
	}
	a.mask = a.capacity - 1
	a.bytes = make([]byte, a.capacity)
	return a
}

func (a *allocatorImpl) Allocate(size, alignment uint64) Allocation {
	if alignment == 0 {
		alignment = a.defaultAlignment
	}
	if !common.IsPowerOfTwo(alignment) {
		panic(fmt.Sprintf("staging: alignment %d is not a power of two", alignment))
	}
	if size > a.capacity {
		panic("staging: staging buffer is out of memory")
	}

	pos := common.AlignUp(a.head, alignment)
	offset := pos & a.mask
	if offset+size > a.capacity {
		pos += a.capacity - offset
		offset = 0
	}
	end := pos + size
	if end-a.tail > a.capacity {
		panic("staging: staging buffer is out of memory")
	}
	a.head = end

	return Allocation{
		Offset: offset,
		Data:   a.bytes[offset : offset+size : offset+size],
	}
}

func (a *allocatorImpl) Head() uint64 {
	return a.head
}

func (a *allocatorImpl) Tail() uint64 {
	return a.tail
}

func (a *allocatorImpl) SetTail(tail uint64) {
	if tail > a.head {
		panic(fmt.Sprintf("staging: tail %d is past head %d", tail, a.head))
	}
	a.tail = tail
}

func (a *allocatorImpl) Capacity() uint64 {
	return a.capacity
}

func (a *allocatorImpl) Bytes() []byte {
	return a.bytes
}

func (a *allocatorImpl) TakeDirty() []Range {
	start, end := a.dirty, a.head
	a.dirty = a.head
	if start == end {
		return nil
	}
	// Everything older than a full ring has been overwritten already.
	if end-start > a.capacity {
		start = end - a.capacity
	}

	from := start & a.mask
	size := end - start
	if from+size <= a.capacity {
		return []Range{{Offset: from, Size: size}}
	}
	first := a.capacity - from
	return []Range{
		{Offset: from, Size: first},
		{Offset: 0, Size: size - first},
	}
}
