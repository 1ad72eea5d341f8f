package common

import (
	"math/bits"
	"path/filepath"
	"strings"
)

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// Hash computes the 64-bit sdbm string hash used to key shader bindings and cache entries.
// Each byte is folded in as hash = c + (hash << 6) + (hash << 16) - hash, starting from zero.
// Bytes are unsigned, so strings with bytes above 0x7F hash differently from a signed-char sdbm; binding
// names are restricted to ASCII identifiers and never contain them.
// Reference: http://www.cse.yorku.ca/~oz/hash.html
//
// Parameters:
//   - s: the string to hash
//
// Returns:
//   - uint64: the hash of s; the empty string hashes to 0
func Hash(s string) uint64 {
	var h uint64
	for i := 0; i < len(s); i++ {
		h = uint64(s[i]) + (h << 6) + (h << 16) - h
	}
	return h
}

// HashBytes is Hash over a byte slice. It is used for content checksums of source assets.
//
// Parameters:
//   - data: the bytes to hash
//
// Returns:
//   - uint64: the hash of data
func HashBytes(data []byte) uint64 {
	var h uint64
	for _, c := range data {
		h = uint64(c) + (h << 6) + (h << 16) - h
	}
	return h
}

// IsPowerOfTwo reports whether v is a non-zero power of two.
func IsPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

// AlignUp rounds v up to the next multiple of alignment, which must be a power of two.
//
// Parameters:
//   - v: the value to round
//   - alignment: a power of two alignment; 0 and 1 leave v unchanged
//
// Returns:
//   - uint64: the aligned value
func AlignUp(v, alignment uint64) uint64 {
	if alignment <= 1 {
		return v
	}
	return (v + alignment - 1) &^ (alignment - 1)
}

// MipCount returns the number of mip levels in a full chain for a texture of the given size,
// halving each dimension per level down to 1x1.
//
// Parameters:
//   - width: width of mip 0 in texels
//   - height: height of mip 0 in texels
//
// Returns:
//   - uint32: the mip count, at least 1
func MipCount(width, height uint32) uint32 {
	m := max(width, height, 1)
	return uint32(bits.Len32(m))
}

// MipExtent returns the size of one dimension at the given mip level, clamped to 1.
func MipExtent(size, level uint32) uint32 {
	return max(size>>level, 1)
}

// BlobPath maps a source asset path to its cache file below root. Leading '.', '/' and '\' characters
// are stripped from the source so relative paths such as "../Techniques/Quad.json" land inside root.
//
// Parameters:
//   - root: the cache directory, e.g. "Data"
//   - source: the source asset path
//
// Returns:
//   - string: root/<stripped source>.blob
func BlobPath(root, source string) string {
	trimmed := strings.TrimLeft(source, `./\`)
	return filepath.Join(root, filepath.FromSlash(strings.ReplaceAll(trimmed, `\`, "/"))+".blob")
}
