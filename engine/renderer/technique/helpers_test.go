package technique

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/shader"
	"github.com/gogpu/gputypes"
)

const texturedJSON = `{
  "vertex_shader": {
    "outputs": [{"name": "uv", "type": "vec2"}],
    "main": "output.position = Constants.world * vec4<f32>(input.position, 1.0);\noutput.uv = input.uv;"
  },
  "fragment_shader": {
    "outputs": [{"name": "color", "type": "vec4"}],
    "main": "output.color = textureSample(Albedo, LinearClamp, input.uv) * Constants.tint;"
  },
  "shader_bindings": [
    {"name": "Albedo", "type": "texture2d"},
    {"name": "LinearClamp", "type": "sampler"},
    {"name": "Constants", "type": "cbuffer", "content": "world: mat4x4<f32>,\ntint: vec4<f32>,"}
  ],
  "vertex_attributes": [
    {"name": "position", "binding": 0, "format": "r32g32b32_sfloat", "offset": 0},
    {"name": "uv", "binding": 0, "format": "r32g32_sfloat", "offset": 12}
  ],
  "color_attachments": ["back_buffer"],
  "depth_attachment": "d32_sfloat",
  "depth_stencil_state": {"depth_test_enable": true, "depth_write_enable": true},
  "blend_attachments": [{
    "blend_enable": true,
    "src_color_blend_factor": "src_alpha",
    "dst_color_blend_factor": "inv_src_alpha",
    "color_write_mask": "rgb"
  }]
}`

const computeJSON = `{
  "compute_shader": {
    "work_group_size": {"x": 8, "y": 8},
    "main": "textureStore(Output, vec2<i32>(global_id.xy), vec4<f32>(Params.scale));"
  },
  "shader_bindings": [
    {"name": "Output", "type": "image2d", "format": "rgba16f"},
    {"name": "Params", "type": "cbuffer", "content": "scale: f32,"}
  ]
}`

// fakeShaderCompiler returns a recognizable word stream per stage instead of compiling.
type fakeShaderCompiler struct {
	mu      sync.Mutex
	calls   int
	sources map[gputypes.ShaderStage]string
	fail    map[gputypes.ShaderStage]bool
}

var _ shader.Compiler = &fakeShaderCompiler{}

func newFakeShaderCompiler() *fakeShaderCompiler {
	return &fakeShaderCompiler{
		sources: make(map[gputypes.ShaderStage]string),
		fail:    make(map[gputypes.ShaderStage]bool),
	}
}

func (f *fakeShaderCompiler) Compile(stage gputypes.ShaderStage, source string) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sources[stage] = source
	if f.fail[stage] {
		return nil, &shader.CompileError{Stage: stage, Source: source, Line: 1, Column: 1, Message: "rejected"}
	}
	return []uint32{0x07230203, uint32(stage), uint32(len(source))}, nil
}

func (f *fakeShaderCompiler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
