package loader

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Common errors returned by the parser
var (
	errInvalidGLTFVersion = errors.New("invalid glTF version: must be 2.0")
	errInvalidGLBVersion  = errors.New("invalid GLB version: must be 2")
	errMissingJSONChunk   = errors.New("GLB file missing JSON chunk")
	errInvalidBufferURI   = errors.New("invalid buffer URI")
	errBufferSizeMismatch = errors.New("buffer size mismatch")
	errAccessorRange      = errors.New("accessor reads outside its buffer")
)

var gltfJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// gltfParserImpl is the implementation of the gltfParser interface.
type gltfParserImpl struct {
	baseDir        string
	document       *gltfDocument
	glbBinaryChunk []byte
}

// gltfParser defines the interface for parsing glTF/GLB data held in memory.
// It handles JSON deserialization, buffer loading and typed accessor reads.
// This is internal to the loader package.
type gltfParser interface {
	// Parse parses a glTF JSON document or GLB container. GLB is detected by its magic number.
	//
	// Parameters:
	//   - data: the file contents
	//   - baseDir: the directory external buffer URIs are relative to
	//
	// Returns:
	//   - error: error if parsing fails
	Parse(data []byte, baseDir string) error

	// Document returns the parsed glTF document, or nil before a successful Parse.
	Document() *gltfDocument

	// ReadVec2Accessor reads a VEC2 accessor as floats. Normalized integer components are converted.
	//
	// Parameters:
	//   - accessorIndex: the index of the accessor
	//
	// Returns:
	//   - [][2]float32: the vec2 data
	//   - error: error if reading fails
	ReadVec2Accessor(accessorIndex int) ([][2]float32, error)

	// ReadVec3Accessor reads a VEC3 FLOAT accessor.
	//
	// Parameters:
	//   - accessorIndex: the index of the accessor
	//
	// Returns:
	//   - [][3]float32: the vec3 data
	//   - error: error if reading fails
	ReadVec3Accessor(accessorIndex int) ([][3]float32, error)

	// ReadIndicesAccessor reads a SCALAR accessor of UNSIGNED_BYTE, UNSIGNED_SHORT or UNSIGNED_INT as uint32.
	//
	// Parameters:
	//   - accessorIndex: the index of the accessor
	//
	// Returns:
	//   - []uint32: the index data
	//   - error: error if reading fails
	ReadIndicesAccessor(accessorIndex int) ([]uint32, error)
}

var _ gltfParser = &gltfParserImpl{}

// newGLTFParser creates a new glTF parser instance.
//
// Returns:
//   - gltfParser: a new parser instance
func newGLTFParser() gltfParser {
	return &gltfParserImpl{}
}

func (p *gltfParserImpl) Document() *gltfDocument {
	return p.document
}

func (p *gltfParserImpl) Parse(data []byte, baseDir string) error {
	p.baseDir = baseDir
	jsonData := data
	if len(data) >= 4 && binary.LittleEndian.Uint32(data) == gltfGLBMagic {
		var err error
		if jsonData, err = p.splitGLB(data); err != nil {
			return err
		}
	}

	var doc gltfDocument
	if err := gltfJSON.Unmarshal(jsonData, &doc); err != nil {
		return fmt.Errorf("failed to parse glTF JSON: %w", err)
	}
	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return errInvalidGLTFVersion
	}
	if len(doc.ExtensionsRequired) > 0 {
		return fmt.Errorf("unsupported required extensions %v", doc.ExtensionsRequired)
	}
	if err := p.loadBuffers(&doc); err != nil {
		return fmt.Errorf("failed to load buffers: %w", err)
	}

	p.document = &doc
	return nil
}

// splitGLB returns the JSON chunk of a GLB container and keeps its binary chunk for buffer 0.
func (p *gltfParserImpl) splitGLB(data []byte) ([]byte, error) {
	if len(data) < gltfGLBHeaderSize {
		return nil, errors.New("GLB file too small")
	}
	if binary.LittleEndian.Uint32(data[4:]) != gltfGLBVersion {
		return nil, errInvalidGLBVersion
	}

	var jsonData []byte
	for off := gltfGLBHeaderSize; off+8 <= len(data); {
		length := int(binary.LittleEndian.Uint32(data[off:]))
		kind := binary.LittleEndian.Uint32(data[off+4:])
		off += 8
		if length < 0 || length > len(data)-off {
			return nil, fmt.Errorf("GLB chunk of %d bytes at %d is truncated", length, off)
		}
		switch kind {
		case gltfGLBChunkJSON:
			jsonData = data[off : off+length]
		case gltfGLBChunkBIN:
			p.glbBinaryChunk = data[off : off+length]
		}
		off += length
	}
	if jsonData == nil {
		return nil, errMissingJSONChunk
	}
	return jsonData, nil
}

// loadBuffers loads all buffer data (from URIs, embedded data, or GLB binary chunk).
func (p *gltfParserImpl) loadBuffers(doc *gltfDocument) error {
	for i := range doc.Buffers {
		buf := &doc.Buffers[i]

		switch {
		case buf.URI == "" && i == 0 && p.glbBinaryChunk != nil:
			buf.Data = p.glbBinaryChunk
		case buf.URI == "":
			return fmt.Errorf("buffer %d has no URI and no GLB binary chunk", i)
		case strings.HasPrefix(buf.URI, "data:"):
			data, err := decodeDataURI(buf.URI)
			if err != nil {
				return fmt.Errorf("buffer %d: %w", i, err)
			}
			buf.Data = data
		default:
			data, err := os.ReadFile(resolveURI(p.baseDir, buf.URI))
			if err != nil {
				return fmt.Errorf("buffer %d: failed to load %q: %w", i, buf.URI, err)
			}
			buf.Data = data
		}

		if len(buf.Data) < buf.ByteLength {
			return fmt.Errorf("buffer %d: %w", i, errBufferSizeMismatch)
		}
	}
	return nil
}

// decodeDataURI decodes a base64 data URI of the form data:[<mediatype>];base64,<data>.
func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, errInvalidBufferURI
	}
	if header := uri[len("data:"):comma]; !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("unsupported data URI encoding %q", header)
	}
	data, err := base64.StdEncoding.DecodeString(uri[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	return data, nil
}

// resolveURI maps a relative, possibly percent encoded, URI to a file below dir.
func resolveURI(dir, uri string) string {
	if unescaped, err := url.PathUnescape(uri); err == nil {
		uri = unescaped
	}
	return filepath.Join(dir, filepath.FromSlash(uri))
}

// accessorData returns the accessor's elements packed tightly, elementSize bytes each.
func (p *gltfParserImpl) accessorData(acc *gltfAccessor) ([]byte, int, error) {
	if acc.Sparse != nil {
		return nil, 0, errors.New("sparse accessors are not supported")
	}
	if acc.BufferView == nil {
		return nil, 0, errors.New("accessor has no bufferView")
	}
	if *acc.BufferView < 0 || *acc.BufferView >= len(p.document.BufferViews) {
		return nil, 0, fmt.Errorf("bufferView %d out of range", *acc.BufferView)
	}
	bv := &p.document.BufferViews[*acc.BufferView]
	if bv.Buffer < 0 || bv.Buffer >= len(p.document.Buffers) {
		return nil, 0, fmt.Errorf("buffer %d out of range", bv.Buffer)
	}
	buf := p.document.Buffers[bv.Buffer].Data

	elementSize := gltfComponentTypeSize(acc.ComponentType) * gltfAccessorTypeComponentCount(acc.Type)
	if elementSize == 0 {
		return nil, 0, fmt.Errorf("unsupported accessor %s/%d", acc.Type, acc.ComponentType)
	}
	stride := elementSize
	if bv.ByteStride != nil && *bv.ByteStride > 0 {
		stride = *bv.ByteStride
	}
	if acc.Count == 0 {
		return nil, elementSize, nil
	}

	start := bv.ByteOffset + acc.ByteOffset
	end := start + (acc.Count-1)*stride + elementSize
	if acc.Count < 0 || start < 0 || end > bv.ByteOffset+bv.ByteLength || end > len(buf) {
		return nil, 0, errAccessorRange
	}

	out := make([]byte, acc.Count*elementSize)
	for i := 0; i < acc.Count; i++ {
		copy(out[i*elementSize:(i+1)*elementSize], buf[start+i*stride:])
	}
	return out, elementSize, nil
}

func (p *gltfParserImpl) accessor(index int) (*gltfAccessor, error) {
	if p.document == nil {
		return nil, errors.New("no document loaded")
	}
	if index < 0 || index >= len(p.document.Accessors) {
		return nil, fmt.Errorf("accessor index %d out of range", index)
	}
	return &p.document.Accessors[index], nil
}

func (p *gltfParserImpl) ReadVec2Accessor(accessorIndex int) ([][2]float32, error) {
	acc, err := p.accessor(accessorIndex)
	if err != nil {
		return nil, err
	}
	if acc.Type != gltfAccessorTypeVec2 {
		return nil, fmt.Errorf("accessor is not VEC2: type=%s", acc.Type)
	}
	component, ok := componentReader(acc)
	if !ok {
		return nil, fmt.Errorf("unsupported VEC2 component type %d", acc.ComponentType)
	}

	data, size, err := p.accessorData(acc)
	if err != nil {
		return nil, err
	}
	half := size / 2
	result := make([][2]float32, acc.Count)
	for i := range result {
		e := data[i*size:]
		result[i] = [2]float32{component(e), component(e[half:])}
	}
	return result, nil
}

func (p *gltfParserImpl) ReadVec3Accessor(accessorIndex int) ([][3]float32, error) {
	acc, err := p.accessor(accessorIndex)
	if err != nil {
		return nil, err
	}
	if acc.Type != gltfAccessorTypeVec3 || acc.ComponentType != gltfComponentTypeFloat {
		return nil, fmt.Errorf("accessor is not VEC3 FLOAT: type=%s, componentType=%d", acc.Type, acc.ComponentType)
	}

	data, _, err := p.accessorData(acc)
	if err != nil {
		return nil, err
	}
	result := make([][3]float32, acc.Count)
	for i := range result {
		for c := 0; c < 3; c++ {
			result[i][c] = math.Float32frombits(binary.LittleEndian.Uint32(data[(i*3+c)*4:]))
		}
	}
	return result, nil
}

func (p *gltfParserImpl) ReadIndicesAccessor(accessorIndex int) ([]uint32, error) {
	acc, err := p.accessor(accessorIndex)
	if err != nil {
		return nil, err
	}
	if acc.Type != gltfAccessorTypeScalar {
		return nil, fmt.Errorf("index accessor is not SCALAR: type=%s", acc.Type)
	}

	data, size, err := p.accessorData(acc)
	if err != nil {
		return nil, err
	}
	result := make([]uint32, acc.Count)
	for i := range result {
		switch acc.ComponentType {
		case gltfComponentTypeUnsignedByte:
			result[i] = uint32(data[i])
		case gltfComponentTypeUnsignedShort:
			result[i] = uint32(binary.LittleEndian.Uint16(data[i*size:]))
		case gltfComponentTypeUnsignedInt:
			result[i] = binary.LittleEndian.Uint32(data[i*size:])
		default:
			return nil, fmt.Errorf("unsupported index component type: %d", acc.ComponentType)
		}
	}
	return result, nil
}

// componentReader returns a decoder for one float or normalized unsigned integer component.
func componentReader(acc *gltfAccessor) (func([]byte) float32, bool) {
	switch {
	case acc.ComponentType == gltfComponentTypeFloat:
		return func(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }, true
	case acc.ComponentType == gltfComponentTypeUnsignedByte && acc.Normalized:
		return func(b []byte) float32 { return float32(b[0]) / 255 }, true
	case acc.ComponentType == gltfComponentTypeUnsignedShort && acc.Normalized:
		return func(b []byte) float32 { return float32(binary.LittleEndian.Uint16(b)) / 65535 }, true
	default:
		return nil, false
	}
}

// gltfComponentTypeSize returns the byte size of a component type.
func gltfComponentTypeSize(componentType int) int {
	switch componentType {
	case gltfComponentTypeByte, gltfComponentTypeUnsignedByte:
		return 1
	case gltfComponentTypeShort, gltfComponentTypeUnsignedShort:
		return 2
	case gltfComponentTypeUnsignedInt, gltfComponentTypeFloat:
		return 4
	default:
		return 0
	}
}

// gltfAccessorTypeComponentCount returns the number of components for an accessor type.
func gltfAccessorTypeComponentCount(accessorType string) int {
	switch accessorType {
	case gltfAccessorTypeScalar:
		return 1
	case gltfAccessorTypeVec2:
		return 2
	case gltfAccessorTypeVec3:
		return 3
	case gltfAccessorTypeVec4:
		return 4
	default:
		return 0
	}
}
