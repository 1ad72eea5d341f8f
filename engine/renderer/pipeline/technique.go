package pipeline

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/backend"
	"github.com/gogpu/gputypes"
)

// State is the lifecycle state of a Technique.
type State int

const (
	// StateUninitialized is a technique whose pipeline has not been built.
	StateUninitialized State = iota
	// StateCompiled is a technique with a usable pipeline.
	StateCompiled
	// StateDestroyed is a technique whose GPU objects were released.
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCompiled:
		return "compiled"
	case StateDestroyed:
		return "destroyed"
	default:
		return "uninitialized"
	}
}

// Binding is one entry of a technique's binding table.
type Binding struct {
	Name string
	Slot uint32
	Kind backend.DescriptorKind
	// TextureType is the view type expected by texture kinds.
	TextureType backend.TextureType
	// MinSize is the smallest range a buffer binding accepts.
	MinSize uint64
}

// gpuObjects are the backend objects built from one blob. Rebuild swaps the whole set.
type gpuObjects struct {
	modules        []backend.ShaderModule
	layout         backend.BindGroupLayout
	pipelineLayout backend.PipelineLayout
	renderPass     backend.RenderPass
	pipeline       backend.Pipeline
}

func (o *gpuObjects) release() {
	if o.pipeline != nil {
		o.pipeline.Release()
	}
	if o.renderPass != nil {
		o.renderPass.Release()
	}
	if o.pipelineLayout != nil {
		o.pipelineLayout.Release()
	}
	if o.layout != nil {
		o.layout.Release()
	}
	for _, m := range o.modules {
		m.Release()
	}
	*o = gpuObjects{}
}

// Technique is a compiled graphics or compute pipeline together with its binding table and the render setups
// created against it. The pointer and ID stay the same across rebuilds, so callers can hold on to them through a
// hot reload.
type Technique struct {
	id    uint64
	label string
	state State

	compute       bool
	checksum      uint64
	includes      []string
	workgroupSize [3]uint32
	colorFormats  []gputypes.TextureFormat
	depthFormat   gputypes.TextureFormat

	bindings map[uint64]Binding
	slots    []Binding

	gpu gpuObjects

	setups []renderSetupSlot
	free   []uint32
}

// ID returns the technique's identifier, unique within the builder that created it.
func (t *Technique) ID() uint64 { return t.id }

// Label returns the label the technique was built with, usually its source path.
func (t *Technique) Label() string { return t.label }

// State returns the lifecycle state.
func (t *Technique) State() State { return t.state }

// Compute reports whether the technique is a compute technique.
func (t *Technique) Compute() bool { return t.compute }

// Checksum returns the checksum of the JSON the current pipeline was compiled from.
func (t *Technique) Checksum() uint64 { return t.checksum }

// Includes returns the files the technique's shaders include.
func (t *Technique) Includes() []string { return t.includes }

// WorkgroupSize returns the compute workgroup size; zero for graphics techniques.
func (t *Technique) WorkgroupSize() [3]uint32 { return t.workgroupSize }

// ColorFormats returns the color attachment formats with back buffer attachments resolved.
func (t *Technique) ColorFormats() []gputypes.TextureFormat { return t.colorFormats }

// DepthFormat returns the depth attachment format, TextureFormatUndefined without one.
func (t *Technique) DepthFormat() gputypes.TextureFormat { return t.depthFormat }

// Lookup returns the binding whose name hashes to hash.
//
// Parameters:
//   - hash: the common.Hash of the binding name
//
// Returns:
//   - Binding: the binding
//   - bool: false when the technique declares no such binding
func (t *Technique) Lookup(hash uint64) (Binding, bool) {
	b, ok := t.bindings[hash]
	return b, ok
}

// Bindings returns the binding table in slot order.
func (t *Technique) Bindings() []Binding { return t.slots }

// Pipeline returns the backend pipeline. It panics unless the technique is compiled.
func (t *Technique) Pipeline() backend.Pipeline {
	t.mustBeCompiled()
	return t.gpu.pipeline
}

// BindGroupLayout returns the layout of the technique's single bind group, or nil when the technique declares no
// bindings. It panics unless the technique is compiled.
func (t *Technique) BindGroupLayout() backend.BindGroupLayout {
	t.mustBeCompiled()
	return t.gpu.layout
}

func (t *Technique) mustBeCompiled() {
	if t.state != StateCompiled {
		panic(fmt.Sprintf("pipeline: technique %q is %s", t.label, t.state))
	}
}
