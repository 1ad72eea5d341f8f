package window

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-gfx/common"
	"github.com/stretchr/testify/assert"
)

func TestBuilderOptions(t *testing.T) {
	w := &engineWindow{}
	for _, opt := range []WindowBuilderOption{
		WithTitle("demo"),
		WithWidth(640),
		WithHeight(480),
		WithSizeLimits(320, 240, 0, 0),
		WithResizable(false),
		WithCloseOnEscape(false),
		WithIdleInterval(5 * time.Millisecond),
	} {
		opt(w)
	}

	assert.Equal(t, "demo", w.title)
	assert.Equal(t, 640, w.Width())
	assert.Equal(t, 480, w.Height())
	assert.Equal(t, [4]int{320, 240, 0, 0}, [4]int{w.minWidth, w.minHeight, w.maxWidth, w.maxHeight})
	assert.False(t, w.resizable)
	assert.False(t, w.closeOnEscape)
	assert.Equal(t, 5*time.Millisecond, w.idleInterval)
}

func TestResizedUpdatesSizeAndNotifies(t *testing.T) {
	w := &engineWindow{}
	var got [2]int
	w.SetResizeCallback(func(width, height int) { got = [2]int{width, height} })

	w.resized(800, 600)
	assert.Equal(t, [2]int{800, 600}, got)
	assert.Equal(t, 800, w.Width())
	assert.Equal(t, 600, w.Height())

	// minimized
	w.resized(0, 0)
	assert.Equal(t, [2]int{0, 0}, got)
}

func TestKeyForwarding(t *testing.T) {
	w := &engineWindow{closeOnEscape: true}
	var keys []uint32
	w.SetKeyCallback(func(key uint32, down bool) {
		if down {
			keys = append(keys, key)
		}
	})

	w.key(common.KeyR, true)
	w.key(common.KeyR, false)
	assert.Equal(t, []uint32{common.KeyR}, keys)
	assert.False(t, w.closeRequested.Load())

	w.key(common.KeyEsc, true)
	assert.True(t, w.closeRequested.Load())
	assert.Equal(t, []uint32{common.KeyR}, keys)
}

func TestEscapeForwardedWhenNotClosing(t *testing.T) {
	w := &engineWindow{}
	var keys []uint32
	w.SetKeyCallback(func(key uint32, down bool) { keys = append(keys, key) })

	w.key(common.KeyEsc, true)
	assert.False(t, w.closeRequested.Load())
	assert.Equal(t, []uint32{common.KeyEsc}, keys)
}

func TestClosedWindow(t *testing.T) {
	w := &engineWindow{closed: true}
	assert.Nil(t, w.SurfaceDescriptor())
	assert.False(t, w.Poll())
	assert.False(t, w.IsRunning())
	assert.ErrorIs(t, w.Close(), ErrClosed)

	w.SetTitle("still settable")
	assert.Equal(t, "still settable", w.title)
}
