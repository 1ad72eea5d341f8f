package technique

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
	"github.com/gogpu/gputypes"
)

const (
	blobMagic   uint32 = 0x5459584f // "OXYT"
	blobVersion uint32 = 1
)

// ErrCorruptBlob is returned when a technique blob is truncated or was written by another version.
var ErrCorruptBlob = errors.New("corrupt technique blob")

// Blob is a compiled technique: the pipeline state and the SPIR-V of each stage.
type Blob struct {
	// Checksum is the checksum of the JSON the blob was compiled from.
	Checksum uint64
	Compute  bool
	PipelineState
	// Includes are the files the stage includes pulled in, relative to the include directory.
	Includes     []string
	VertexCode   []uint32
	FragmentCode []uint32
	ComputeCode  []uint32
}

// EncodeBlob serializes a blob. The checksum is always the first eight bytes so PeekChecksum can read it without
// decoding the rest.
//
// Parameters:
//   - b: the blob to encode
//
// Returns:
//   - []byte: the little-endian encoding
func EncodeBlob(b *Blob) []byte {
	w := &blobWriter{}
	w.u64(b.Checksum)
	w.u32(blobMagic)
	w.u32(blobVersion)
	w.boolean(b.Compute)
	for _, v := range b.WorkgroupSize {
		w.u32(v)
	}

	w.u32(uint32(len(b.Bindings)))
	for _, bd := range b.Bindings {
		w.str(bd.Name)
		w.u64(bd.Hash)
		w.u32(uint32(bd.Kind))
		w.u32(uint32(bd.TextureType))
		w.u32(uint32(bd.StorageFormat))
		w.u64(bd.MinSize)
	}

	w.u32(uint32(len(b.VertexAttributes)))
	for _, a := range b.VertexAttributes {
		w.str(a.Name)
		w.u32(a.Binding)
		w.u32(uint32(a.Format))
		w.u32(a.Offset)
		w.u32(uint32(a.StepMode))
	}

	w.u32(uint32(len(b.ColorAttachments)))
	for _, c := range b.ColorAttachments {
		w.boolean(c.BackBuffer)
		w.u32(uint32(c.Format))
	}
	w.u32(uint32(b.DepthFormat))

	w.u32(uint32(b.InputAssembly.Topology))
	w.boolean(b.InputAssembly.PrimitiveRestart)

	rs := &b.Rasterizer
	w.boolean(rs.DepthClamp)
	w.boolean(rs.Discard)
	w.u32(uint32(rs.PolygonMode))
	w.u32(uint32(rs.CullMode))
	w.u32(uint32(rs.FrontFace))
	w.boolean(rs.DepthBias)
	w.f32(rs.DepthBiasConstant)
	w.f32(rs.DepthBiasClamp)
	w.f32(rs.DepthBiasSlope)
	w.f32(rs.LineWidth)

	ds := &b.DepthStencil
	w.boolean(ds.DepthTest)
	w.boolean(ds.DepthWrite)
	w.u32(uint32(ds.DepthCompare))
	w.boolean(ds.DepthBoundsTest)
	w.f32(ds.MinDepthBounds)
	w.f32(ds.MaxDepthBounds)
	w.boolean(ds.StencilTest)
	for _, f := range []*StencilFace{&ds.Front, &ds.Back} {
		w.u32(uint32(f.FailOp))
		w.u32(uint32(f.PassOp))
		w.u32(uint32(f.DepthFailOp))
		w.u32(uint32(f.Compare))
		w.u32(f.CompareMask)
		w.u32(f.WriteMask)
		w.u32(f.Reference)
	}

	w.u32(uint32(len(b.Blend)))
	for _, bl := range b.Blend {
		w.boolean(bl.Enable)
		w.u32(uint32(bl.SrcColor))
		w.u32(uint32(bl.DstColor))
		w.u32(uint32(bl.ColorOp))
		w.u32(uint32(bl.SrcAlpha))
		w.u32(uint32(bl.DstAlpha))
		w.u32(uint32(bl.AlphaOp))
		w.u32(uint32(bl.WriteMask))
	}

	w.u32(uint32(len(b.Includes)))
	for _, inc := range b.Includes {
		w.str(inc)
	}

	w.words(b.VertexCode)
	w.words(b.FragmentCode)
	w.words(b.ComputeCode)
	return w.buf
}

// DecodeBlob parses a blob written by EncodeBlob.
//
// Parameters:
//   - data: the encoded blob
//
// Returns:
//   - *Blob: the decoded blob
//   - error: ErrCorruptBlob wrapped with the failing position
func DecodeBlob(data []byte) (*Blob, error) {
	r := &blobReader{buf: data}
	b := &Blob{Checksum: r.u64()}
	if magic := r.u32(); r.err == nil && magic != blobMagic {
		return nil, fmt.Errorf("bad magic %#x: %w", magic, ErrCorruptBlob)
	}
	if version := r.u32(); r.err == nil && version != blobVersion {
		return nil, fmt.Errorf("version %d, expected %d: %w", version, blobVersion, ErrCorruptBlob)
	}
	b.Compute = r.boolean()
	for i := range b.WorkgroupSize {
		b.WorkgroupSize[i] = r.u32()
	}

	if n := r.count(MaxBindings); n > 0 {
		b.Bindings = make([]Binding, n)
		for i := range b.Bindings {
			bd := &b.Bindings[i]
			bd.Name = r.str()
			bd.Hash = r.u64()
			bd.Kind = decodeEnum[backend.DescriptorKind](r)
			bd.TextureType = decodeEnum[backend.TextureType](r)
			bd.StorageFormat = decodeEnum[gputypes.TextureFormat](r)
			bd.MinSize = r.u64()
		}
	}

	if n := r.count(MaxVertexAttributes); n > 0 {
		b.VertexAttributes = make([]VertexAttribute, n)
		for i := range b.VertexAttributes {
			a := &b.VertexAttributes[i]
			a.Name = r.str()
			a.Binding = r.u32()
			a.Format = decodeEnum[gputypes.VertexFormat](r)
			a.Offset = r.u32()
			a.StepMode = decodeEnum[gputypes.VertexStepMode](r)
		}
	}

	if n := r.count(MaxColorAttachments); n > 0 {
		b.ColorAttachments = make([]ColorAttachment, n)
		for i := range b.ColorAttachments {
			b.ColorAttachments[i].BackBuffer = r.boolean()
			b.ColorAttachments[i].Format = decodeEnum[gputypes.TextureFormat](r)
		}
	}
	b.DepthFormat = decodeEnum[gputypes.TextureFormat](r)

	b.InputAssembly.Topology = decodeEnum[gputypes.PrimitiveTopology](r)
	b.InputAssembly.PrimitiveRestart = r.boolean()

	rs := &b.Rasterizer
	rs.DepthClamp = r.boolean()
	rs.Discard = r.boolean()
	rs.PolygonMode = decodeEnum[backend.PolygonMode](r)
	rs.CullMode = decodeEnum[gputypes.CullMode](r)
	rs.FrontFace = decodeEnum[gputypes.FrontFace](r)
	rs.DepthBias = r.boolean()
	rs.DepthBiasConstant = r.f32()
	rs.DepthBiasClamp = r.f32()
	rs.DepthBiasSlope = r.f32()
	rs.LineWidth = r.f32()

	ds := &b.DepthStencil
	ds.DepthTest = r.boolean()
	ds.DepthWrite = r.boolean()
	ds.DepthCompare = decodeEnum[gputypes.CompareFunction](r)
	ds.DepthBoundsTest = r.boolean()
	ds.MinDepthBounds = r.f32()
	ds.MaxDepthBounds = r.f32()
	ds.StencilTest = r.boolean()
	for _, f := range []*StencilFace{&ds.Front, &ds.Back} {
		f.FailOp = decodeEnum[gputypes.StencilOperation](r)
		f.PassOp = decodeEnum[gputypes.StencilOperation](r)
		f.DepthFailOp = decodeEnum[gputypes.StencilOperation](r)
		f.Compare = decodeEnum[gputypes.CompareFunction](r)
		f.CompareMask = r.u32()
		f.WriteMask = r.u32()
		f.Reference = r.u32()
	}

	if n := r.count(MaxColorAttachments); n > 0 {
		b.Blend = make([]BlendAttachment, n)
		for i := range b.Blend {
			bl := &b.Blend[i]
			bl.Enable = r.boolean()
			bl.SrcColor = decodeEnum[gputypes.BlendFactor](r)
			bl.DstColor = decodeEnum[gputypes.BlendFactor](r)
			bl.ColorOp = decodeEnum[gputypes.BlendOperation](r)
			bl.SrcAlpha = decodeEnum[gputypes.BlendFactor](r)
			bl.DstAlpha = decodeEnum[gputypes.BlendFactor](r)
			bl.AlphaOp = decodeEnum[gputypes.BlendOperation](r)
			bl.WriteMask = decodeEnum[gputypes.ColorWriteMask](r)
		}
	}

	if n := r.count(math.MaxUint16); n > 0 {
		b.Includes = make([]string, n)
		for i := range b.Includes {
			b.Includes[i] = r.str()
		}
	}

	b.VertexCode = r.words()
	b.FragmentCode = r.words()
	b.ComputeCode = r.words()

	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(data) {
		return nil, fmt.Errorf("%d trailing bytes: %w", len(data)-r.off, ErrCorruptBlob)
	}
	return b, nil
}

// PeekChecksum returns the checksum stored at the start of an encoded blob.
func PeekChecksum(data []byte) (uint64, error) {
	if len(data) < 8 {
		return 0, fmt.Errorf("blob of %d bytes has no checksum: %w", len(data), ErrCorruptBlob)
	}
	return binary.LittleEndian.Uint64(data), nil
}

type blobWriter struct {
	buf []byte
}

func (w *blobWriter) u32(v uint32)  { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *blobWriter) u64(v uint64)  { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *blobWriter) f32(v float32) { w.u32(math.Float32bits(v)) }

func (w *blobWriter) boolean(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *blobWriter) str(s string) {
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *blobWriter) words(code []uint32) {
	w.u64(uint64(len(code)))
	for _, word := range code {
		w.u32(word)
	}
}

// blobReader decodes fields in order. The first failure sticks and every later read returns zero.
type blobReader struct {
	buf []byte
	off int
	err error
}

func (r *blobReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.err = fmt.Errorf("truncated at byte %d: %w", r.off, ErrCorruptBlob)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *blobReader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *blobReader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *blobReader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *blobReader) boolean() bool {
	if b := r.take(1); b != nil {
		return b[0] != 0
	}
	return false
}

func (r *blobReader) str() string {
	return string(r.take(int(r.u32())))
}

// count reads a length prefix and fails when it exceeds limit.
func (r *blobReader) count(limit int) int {
	n := r.u32()
	if r.err == nil && int64(n) > int64(limit) {
		r.err = fmt.Errorf("count %d at byte %d exceeds %d: %w", n, r.off-4, limit, ErrCorruptBlob)
		return 0
	}
	return int(n)
}

func (r *blobReader) words() []uint32 {
	n := r.u64()
	if r.err != nil || n == 0 {
		return nil
	}
	if n > uint64(len(r.buf)-r.off)/4 {
		r.err = fmt.Errorf("code of %d words at byte %d: %w", n, r.off-8, ErrCorruptBlob)
		return nil
	}
	code := make([]uint32, n)
	for i := range code {
		code[i] = r.u32()
	}
	return code
}

func decodeEnum[T ~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64](r *blobReader) T {
	return T(r.u32())
}
