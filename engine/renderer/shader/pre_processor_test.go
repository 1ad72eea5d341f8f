package shader

import (
	"os"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessPassesPlainSource(t *testing.T) {
	src := "// an ordinary comment\nfn f() -> f32 { return 1.0; }"
	out, err := NewPreProcessor().Process(src)
	require.NoError(t, err)
	assert.Equal(t, src, out)
}

func TestProcessIncludesSnippet(t *testing.T) {
	out, err := NewPreProcessor().Process("//@oxy:include color\nfn f() {}")
	require.NoError(t, err)
	assert.Contains(t, out, "fn srgb_to_linear")
	assert.True(t, strings.HasSuffix(out, "fn f() {}"))
}

func TestProcessIncludesSnippetOnce(t *testing.T) {
	out, err := NewPreProcessor().Process("//@oxy:include hash\n//@oxy:include hash")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "fn pcg_hash"))
}

func TestProcessDefine(t *testing.T) {
	out, err := NewPreProcessor().Process("  //@oxy:define MAX_LIGHTS 16u")
	require.NoError(t, err)
	assert.Equal(t, "const MAX_LIGHTS = 16u;", out)
}

func TestProcessRejectsMalformedAnnotations(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"empty", "//@oxy:", "empty @oxy annotation"},
		{"unknown type", "//@oxy:provider 0 0 camera", "unknown @oxy annotation type"},
		{"unknown snippet", "\n//@oxy:include camera", "line 2: unknown snippet"},
		{"include arity", "//@oxy:include color hash", "exactly one argument"},
		{"define arity", "//@oxy:define PI", "a name and a value"},
		{"define name", "//@oxy:define 9lives 1", "invalid constant name"},
		{"escape", "//@oxy:include ../secret.wgsl", "escapes the include directory"},
		{"no include dir", "//@oxy:include common.wgsl", "no include directory configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPreProcessor().Process(tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestProcessIncludesFilesRecursively(t *testing.T) {
	fsys := fstest.MapFS{
		"lib/common.wgsl": {Data: []byte("//@oxy:include lib/math.wgsl\n//@oxy:include hash\nfn common() {}")},
		"lib/math.wgsl":   {Data: []byte("fn square(x: f32) -> f32 { return x * x; }")},
	}
	p := NewPreProcessor(WithIncludeFS(fsys))

	out, err := p.Process("//@oxy:include lib/common.wgsl\n//@oxy:include lib/math.wgsl\nfn main() {}")
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(out, "fn square"))
	assert.Less(t, strings.Index(out, "fn square"), strings.Index(out, "fn common"))
	assert.Contains(t, out, "fn pcg_hash")
	assert.Equal(t, []string{"lib/common.wgsl", "lib/math.wgsl"}, p.Includes())

	_, err = p.Process("fn main() {}")
	require.NoError(t, err)
	assert.Empty(t, p.Includes())
}

func TestProcessDetectsIncludeCycle(t *testing.T) {
	fsys := fstest.MapFS{
		"a.wgsl": {Data: []byte("//@oxy:include b.wgsl")},
		"b.wgsl": {Data: []byte("\n//@oxy:include a.wgsl")},
	}
	_, err := NewPreProcessor(WithIncludeFS(fsys)).Process("//@oxy:include a.wgsl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in b.wgsl: line 2: include cycle through \"a.wgsl\"")
}

func TestProcessMissingFile(t *testing.T) {
	_, err := NewPreProcessor(WithIncludeFS(fstest.MapFS{})).Process("//@oxy:include gone.wgsl")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestProcessIncludeDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/shared.wgsl", []byte("fn shared() {}"), 0o644))

	out, err := NewPreProcessor(WithIncludeDir(dir)).Process("//@oxy:include shared.wgsl")
	require.NoError(t, err)
	assert.Equal(t, "fn shared() {}", out)
}
