package staging

// AllocatorBuilderOption is a functional option applied to an allocator during construction via NewAllocator.
type AllocatorBuilderOption func(*allocatorImpl)

// WithCapacity sets the ring size in bytes. It must be a power of two; zero keeps DefaultCapacity.
//
// Parameters:
//   - capacity: the ring size in bytes
//
// Returns:
//   - AllocatorBuilderOption: a function that applies the capacity option to an allocator
func WithCapacity(capacity uint64) AllocatorBuilderOption {
	return func(a *allocatorImpl) {
		if capacity != 0 {
			a.capacity = capacity
		}
	}
}

// WithDefaultAlignment sets the alignment used by Allocate when it is called with alignment 0.
//
// Parameters:
//   - alignment: the default offset alignment, a power of two
//
// Returns:
//   - AllocatorBuilderOption: a function that applies the alignment option to an allocator
func WithDefaultAlignment(alignment uint64) AllocatorBuilderOption {
	return func(a *allocatorImpl) {
		if alignment != 0 {
			a.defaultAlignment = alignment
		}
	}
}
