// Package common contains common types that are used throughout this module. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types shared between the loaders and the renderer.
package common

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/anthonynsimon/bild/clone"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodedImage holds tightly packed RGBA8 pixel data as produced by DecodeImage.
type DecodedImage struct {
	// Pixels is the RGBA pixel data, 4 bytes per pixel, row-major, no padding between rows.
	Pixels []byte
	// Width is the image width in pixels.
	Width uint32
	// Height is the image height in pixels.
	Height uint32
}

// DecodeImage decodes compressed image bytes (PNG, JPEG, GIF, BMP, TIFF or WebP) into RGBA8 pixels.
// Reference: https://pkg.go.dev/image
//
// Parameters:
//   - data: the compressed image file contents
//
// Returns:
//   - DecodedImage: the decoded pixels and dimensions
//   - error: error if the format is unknown or the data is corrupt
func DecodeImage(data []byte) (DecodedImage, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return DecodedImage{}, fmt.Errorf("failed to decode image: %w", err)
	}

	rgba := clone.AsRGBA(img)
	bounds := rgba.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	pixels := rgba.Pix
	if rgba.Stride != width*4 {
		pixels = make([]byte, width*height*4)
		for y := 0; y < height; y++ {
			copy(pixels[y*width*4:(y+1)*width*4], rgba.Pix[y*rgba.Stride:y*rgba.Stride+width*4])
		}
	}

	return DecodedImage{Pixels: pixels, Width: uint32(width), Height: uint32(height)}, nil
}

// NoMaterial marks a submesh without a material.
const NoMaterial = ^uint32(0)

// Submesh is a contiguous range of the shared vertex and index arrays drawn with one material.
type Submesh struct {
	// MaterialIndex indexes MeshData.Materials, or NoMaterial.
	MaterialIndex uint32
	VertexOffset  uint32
	VertexCount   uint32
	IndexOffset   uint32
	IndexCount    uint32
}

// ImportedMaterial is the subset of an imported material the renderer consumes.
type ImportedMaterial struct {
	// Name is the material identifier.
	Name string

	// DiffuseTexture indexes MeshData.TexturePaths, or -1 when the material has no diffuse texture
	// or the referenced file does not exist.
	DiffuseTexture int32
}

// MeshData is what a mesh loader produces: merged vertex streams for every submesh,
// per-material texture references and the position quantization scale.
type MeshData struct {
	Submeshes    []Submesh
	Materials    []ImportedMaterial
	TexturePaths []string

	Positions [][3]float32
	TexCoords [][2]float32
	Normals   [][3]float32
	Indices   []uint32

	BoundsMin [3]float32
	BoundsMax [3]float32

	// QuantizationScale is the largest absolute position component (at least 1/65535).
	// Positions divided by it fit the [-1, 1] range used by the packed vertex format.
	QuantizationScale float32
}
