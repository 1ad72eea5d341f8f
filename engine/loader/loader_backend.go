package loader

import "github.com/Carmen-Shannon/oxy-gfx/common"

// loaderBackend defines the generic interface for decoding a mesh file format.
// Concrete implementations (e.g., gltfLoaderBackend) handle format-specific details.
type loaderBackend interface {
	// Import decodes a mesh file held in memory.
	//
	// Parameters:
	//   - data: the file contents
	//   - materialDir: the directory material textures and external resources resolve against
	//
	// Returns:
	//   - *common.MeshData: the decoded mesh
	//   - error: error if decoding fails
	Import(data []byte, materialDir string) (*common.MeshData, error)

	// Extensions lists the lower case file extensions the backend decodes.
	Extensions() []string
}
