package renderer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/staging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "device.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
back_buffer_count = 3
present_mode = "mailbox"
hot_reload = true
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.BackBufferCount)
	assert.Equal(t, "mailbox", cfg.PresentMode)
	assert.True(t, cfg.HotReload)
	assert.Equal(t, uint64(staging.DefaultCapacity), cfg.StagingCapacity)
	assert.Equal(t, DefaultConfig().BlobRoot, cfg.BlobRoot)
	assert.Equal(t, 1280, cfg.Width)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", `back_bufer_count = 2`, "decode"},
		{"syntax", `back_buffer_count = `, "decode"},
		{"too many back buffers", `back_buffer_count = 5`, "back_buffer_count"},
		{"staging not power of two", `staging_capacity = 3000`, "staging_capacity"},
		{"present mode", `present_mode = "vsync"`, "present_mode"},
		{"negative size", `width = -1`, "width"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			assert.ErrorContains(t, err, tt.want)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	mode, err := DefaultConfig().presentMode()
	require.NoError(t, err)
	assert.NotZero(t, mode)
}
