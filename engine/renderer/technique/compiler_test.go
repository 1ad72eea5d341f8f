package technique

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-gfx/common"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/shader"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileGraphics(t *testing.T) {
	fake := newFakeShaderCompiler()
	c := NewCompiler(WithShaderCompiler(fake), WithMaxWorkers(2))
	defer c.Release()

	blob, err := c.Compile([]byte(texturedJSON))
	require.NoError(t, err)

	assert.Equal(t, common.HashBytes([]byte(texturedJSON)), blob.Checksum)
	assert.False(t, blob.Compute)
	assert.Equal(t, 2, fake.callCount())
	require.Len(t, blob.VertexCode, 3)
	require.Len(t, blob.FragmentCode, 3)
	assert.Empty(t, blob.ComputeCode)
	assert.Equal(t, uint32(gputypes.ShaderStageVertex), blob.VertexCode[1])
	assert.Equal(t, uint32(gputypes.ShaderStageFragment), blob.FragmentCode[1])
	assert.Equal(t, uint64(80), blob.Bindings[2].MinSize)
	assert.Contains(t, fake.sources[gputypes.ShaderStageVertex], "@vertex")
}

func TestCompileCompute(t *testing.T) {
	c := NewCompiler(WithShaderCompiler(newFakeShaderCompiler()))
	defer c.Release()

	blob, err := c.Compile([]byte(computeJSON))
	require.NoError(t, err)
	assert.True(t, blob.Compute)
	assert.NotEmpty(t, blob.ComputeCode)
	assert.Empty(t, blob.VertexCode)
	assert.Equal(t, [3]uint32{8, 8, 1}, blob.WorkgroupSize)
}

func TestCompileReportsStageError(t *testing.T) {
	fake := newFakeShaderCompiler()
	fake.fail[gputypes.ShaderStageFragment] = true
	c := NewCompiler(WithShaderCompiler(fake))
	defer c.Release()

	_, err := c.Compile([]byte(texturedJSON))
	require.Error(t, err)

	var ce *shader.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, gputypes.ShaderStageFragment, ce.Stage)
	assert.Contains(t, err.Error(), "rejected")
}

func TestCompileReportsParseError(t *testing.T) {
	c := NewCompiler(WithShaderCompiler(newFakeShaderCompiler()))
	defer c.Release()

	_, err := c.Compile([]byte(`{}`))
	assert.ErrorIs(t, err, ErrNoStage)
}

func TestCompileWithNaga(t *testing.T) {
	c := NewCompiler()
	defer c.Release()

	blob, err := c.Compile([]byte(`{
		"compute_shader": {
			"work_group_size": {"x": 64},
			"main": "Data.values[global_id.x] = global_id.x * 2u;"
		},
		"shader_bindings": [{"name": "Data", "type": "buffer", "content": "values: array<u32>,"}]
	}`))
	require.NoError(t, err)
	require.NotEmpty(t, blob.ComputeCode)
	assert.Equal(t, uint32(0x07230203), blob.ComputeCode[0])
	assert.Equal(t, uint64(4), blob.Bindings[0].MinSize)
}
