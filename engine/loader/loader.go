// Package loader decodes model files into common.MeshData: merged vertex
// streams, per submesh ranges with local indices, and materials whose diffuse textures are resolved to files.
package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-gfx/common"
	"go.uber.org/zap"
)

// LoaderBackendType identifies the model file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeGLTF selects the glTF/GLB loader backend.
	BackendTypeGLTF LoaderBackendType = iota
)

// loader is the implementation of the Loader interface.
type loader struct {
	logger  *zap.Logger
	backend loaderBackend
}

// Loader decodes mesh files. It keeps no cache: the device's blob cache sits in front of it.
type Loader interface {
	// Import decodes a mesh file held in memory. Every primitive becomes one submesh whose indices are local to
	// its vertex range. Missing normals are generated from the triangles and missing texture coordinates are
	// zero.
	//
	// Parameters:
	//   - data: the file contents
	//   - materialDir: the directory material textures and external buffers resolve against
	//
	// Returns:
	//   - *common.MeshData: the decoded mesh
	//   - error: error if the data cannot be decoded
	Import(data []byte, materialDir string) (*common.MeshData, error)

	// Supports reports whether the backend decodes files with the path's extension.
	//
	// Parameters:
	//   - path: the model file path
	//
	// Returns:
	//   - bool: true if Import can decode the file
	Supports(path string) bool
}

var _ Loader = &loader{}

// NewLoader creates a new Loader instance with the specified backend type and options applied.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeGLTF)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided backend and options
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{}
	for _, option := range options {
		option(l)
	}
	if l.logger == nil {
		l.logger = zap.L()
	}

	switch backendType {
	case BackendTypeGLTF:
		l.backend = newGLTFLoaderBackend(l.logger)
	default:
		panic(fmt.Sprintf("loader: unknown backend type %d", backendType))
	}
	return l
}

func (l *loader) Import(data []byte, materialDir string) (*common.MeshData, error) {
	return l.backend.Import(data, materialDir)
}

func (l *loader) Supports(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range l.backend.Extensions() {
		if e == ext {
			return true
		}
	}
	return false
}

// ImportMesh decodes a glTF or GLB file with the default loader.
//
// Parameters:
//   - data: the file contents
//   - materialDir: the directory material textures and external buffers resolve against
//
// Returns:
//   - *common.MeshData: the decoded mesh
//   - error: error if the data cannot be decoded
func ImportMesh(data []byte, materialDir string) (*common.MeshData, error) {
	return NewLoader(BackendTypeGLTF).Import(data, materialDir)
}
