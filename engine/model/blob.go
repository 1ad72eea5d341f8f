package model

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-gfx/common"
	"github.com/chewxy/math32"
)

const (
	blobMagic   uint32 = 0x4c444d4f // "OMDL"
	blobVersion uint32 = 1

	// minQuantum keeps the quantization scale and per-vertex magnitude away from zero.
	minQuantum = float32(1) / 65535
)

// ErrCorruptBlob is returned when a model blob is truncated or was written by another version.
var ErrCorruptBlob = errors.New("corrupt model blob")

// Blob is a decoded mesh in its GPU ready form: quantized vertex streams, 32-bit indices, submesh ranges and the
// material texture table.
type Blob struct {
	// Checksum is the checksum of the mesh file the blob was built from.
	Checksum uint64
	Meshes   []common.Submesh
	// DiffuseTextures holds one entry per material indexing TexturePaths, or -1.
	DiffuseTextures []int32
	TexturePaths    []string

	BoundsMin         [3]float32
	BoundsMax         [3]float32
	QuantizationScale float32

	// Positions holds four values per vertex, see PackPosition.
	Positions []uint16
	// TexCoords holds one packed half float pair per vertex.
	TexCoords []uint32
	// Normals holds four bytes per vertex, see PackNormal.
	Normals []byte
	Indices []uint32
}

// VertexCount returns the number of vertices across all meshes.
func (b *Blob) VertexCount() int { return len(b.Positions) / 4 }

// Build quantizes decoded mesh data into a blob.
//
// Parameters:
//   - mesh: the decoded mesh, as returned by a loader.Loader
//   - checksum: the checksum of the source file
//
// Returns:
//   - *Blob: the quantized mesh
//   - error: an error if the streams disagree in length or an index is out of range
func Build(mesh *common.MeshData, checksum uint64) (*Blob, error) {
	n := len(mesh.Positions)
	if len(mesh.TexCoords) != 0 && len(mesh.TexCoords) != n {
		return nil, fmt.Errorf("mesh has %d positions but %d texture coordinates", n, len(mesh.TexCoords))
	}
	if len(mesh.Normals) != 0 && len(mesh.Normals) != n {
		return nil, fmt.Errorf("mesh has %d positions but %d normals", n, len(mesh.Normals))
	}
	for i, sm := range mesh.Submeshes {
		if uint64(sm.VertexOffset)+uint64(sm.VertexCount) > uint64(n) ||
			uint64(sm.IndexOffset)+uint64(sm.IndexCount) > uint64(len(mesh.Indices)) {
			return nil, fmt.Errorf("submesh %d range is outside the mesh", i)
		}
		for _, idx := range mesh.Indices[sm.IndexOffset : sm.IndexOffset+sm.IndexCount] {
			if idx >= sm.VertexCount {
				return nil, fmt.Errorf("submesh %d index %d exceeds its %d vertices", i, idx, sm.VertexCount)
			}
		}
	}

	b := &Blob{
		Checksum:          checksum,
		Meshes:            append([]common.Submesh(nil), mesh.Submeshes...),
		DiffuseTextures:   make([]int32, len(mesh.Materials)),
		TexturePaths:      append([]string(nil), mesh.TexturePaths...),
		BoundsMin:         mesh.BoundsMin,
		BoundsMax:         mesh.BoundsMax,
		QuantizationScale: math32.Max(mesh.QuantizationScale, QuantizationScale(mesh.Positions)),
		Positions:         make([]uint16, 0, n*4),
		TexCoords:         make([]uint32, n),
		Normals:           make([]byte, 0, n*4),
		Indices:           append([]uint32(nil), mesh.Indices...),
	}
	for i, m := range mesh.Materials {
		b.DiffuseTextures[i] = m.DiffuseTexture
	}
	for i, p := range mesh.Positions {
		q := PackPosition(p, b.QuantizationScale)
		b.Positions = append(b.Positions, q[:]...)
		if len(mesh.TexCoords) != 0 {
			b.TexCoords[i] = PackHalf2x16(mesh.TexCoords[i])
		}
		var nrm [3]float32
		if len(mesh.Normals) != 0 {
			nrm = mesh.Normals[i]
		}
		packed := PackNormal(nrm)
		b.Normals = append(b.Normals, packed[:]...)
	}
	return b, nil
}

// QuantizationScale returns the largest absolute position component, at least 1/65535.
func QuantizationScale(positions [][3]float32) float32 {
	q := minQuantum
	for _, p := range positions {
		q = math32.Max(q, math32.Abs(p[0]))
		q = math32.Max(q, math32.Abs(p[1]))
		q = math32.Max(q, math32.Abs(p[2]))
	}
	return q
}

// EncodeBlob serializes a model blob with the checksum in the first eight bytes.
func EncodeBlob(b *Blob) []byte {
	w := &writer{}
	w.u64(b.Checksum)
	w.u32(blobMagic)
	w.u32(blobVersion)

	w.u32(uint32(len(b.Meshes)))
	for _, m := range b.Meshes {
		w.u32(m.MaterialIndex)
		w.u32(m.VertexOffset)
		w.u32(m.VertexCount)
		w.u32(m.IndexOffset)
		w.u32(m.IndexCount)
	}
	w.u32(uint32(len(b.DiffuseTextures)))
	for _, t := range b.DiffuseTextures {
		w.u32(uint32(t))
	}
	w.u32(uint32(len(b.TexturePaths)))
	for _, p := range b.TexturePaths {
		w.u64(uint64(len(p)))
		w.buf = append(w.buf, p...)
	}
	for _, v := range b.BoundsMin {
		w.f32(v)
	}
	for _, v := range b.BoundsMax {
		w.f32(v)
	}
	w.f32(b.QuantizationScale)

	w.u32(uint32(b.VertexCount()))
	w.u32(uint32(len(b.Indices)))
	w.buf = append(w.buf, VertexData(b)...)
	for _, idx := range b.Indices {
		w.u32(idx)
	}
	return w.buf
}

// VertexData lays the vertex streams out back to back in attribute order: positions, texture coordinates,
// normals. This is the vertex buffer's content.
func VertexData(b *Blob) []byte {
	n := b.VertexCount()
	out := make([]byte, 0, n*(positionStride+texCoordStride+normalStride))
	for _, v := range b.Positions {
		out = binary.LittleEndian.AppendUint16(out, v)
	}
	for _, v := range b.TexCoords {
		out = binary.LittleEndian.AppendUint32(out, v)
	}
	return append(out, b.Normals...)
}

// DecodeBlob parses a model blob.
//
// Parameters:
//   - data: the encoded blob
//
// Returns:
//   - *Blob: the decoded blob
//   - error: an error wrapping ErrCorruptBlob
func DecodeBlob(data []byte) (*Blob, error) {
	r := &reader{buf: data}
	b := &Blob{Checksum: r.u64()}
	if magic, version := r.u32(), r.u32(); r.err == nil && (magic != blobMagic || version != blobVersion) {
		return nil, fmt.Errorf("unexpected header %#x v%d: %w", magic, version, ErrCorruptBlob)
	}

	b.Meshes = make([]common.Submesh, r.count(16))
	for i := range b.Meshes {
		b.Meshes[i] = common.Submesh{
			MaterialIndex: r.u32(),
			VertexOffset:  r.u32(),
			VertexCount:   r.u32(),
			IndexOffset:   r.u32(),
			IndexCount:    r.u32(),
		}
	}
	b.DiffuseTextures = make([]int32, r.count(4))
	for i := range b.DiffuseTextures {
		b.DiffuseTextures[i] = int32(r.u32())
	}
	b.TexturePaths = make([]string, r.count(8))
	for i := range b.TexturePaths {
		n := r.u64()
		if n > uint64(len(data)) {
			r.fail()
			break
		}
		b.TexturePaths[i] = string(r.take(int(n)))
	}
	for i := range b.BoundsMin {
		b.BoundsMin[i] = r.f32()
	}
	for i := range b.BoundsMax {
		b.BoundsMax[i] = r.f32()
	}
	b.QuantizationScale = r.f32()

	vertices := r.count(positionStride + texCoordStride + normalStride)
	indices := r.count(4)
	b.Positions = make([]uint16, vertices*4)
	for i := range b.Positions {
		b.Positions[i] = r.u16()
	}
	b.TexCoords = make([]uint32, vertices)
	for i := range b.TexCoords {
		b.TexCoords[i] = r.u32()
	}
	b.Normals = append([]byte(nil), r.take(vertices*4)...)
	b.Indices = make([]uint32, indices)
	for i := range b.Indices {
		b.Indices[i] = r.u32()
	}

	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(data) {
		return nil, fmt.Errorf("%d trailing bytes: %w", len(data)-r.off, ErrCorruptBlob)
	}
	return b, nil
}

type writer struct {
	buf []byte
}

func (w *writer) u32(v uint32)  { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64)  { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) f32(v float32) { w.u32(math.Float32bits(v)) }

// reader decodes fields in order. The first failure sticks and every later read returns zero.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = fmt.Errorf("truncated at byte %d: %w", r.off, ErrCorruptBlob)
	}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.fail()
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *reader) f32() float32 { return math.Float32frombits(r.u32()) }

// count reads an element count and rejects counts whose elements, at least minSize bytes each, cannot fit in the
// remaining data.
func (r *reader) count(minSize int) int {
	n := int(r.u32())
	if r.err != nil || n*minSize > len(r.buf)-r.off {
		r.fail()
		return 0
	}
	return n
}
