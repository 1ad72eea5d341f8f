package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecordAccumulatesPerEvent(t *testing.T) {
	p := NewProfiler()
	p.Record("technique_load", 2*time.Millisecond)
	p.Record("technique_load", 6*time.Millisecond)
	p.Record("texture_load", time.Millisecond)

	timings := p.Timings()
	require.Len(t, timings, 2)
	assert.Equal(t, Timing{Count: 2, Total: 8 * time.Millisecond, Max: 6 * time.Millisecond}, timings["technique_load"])
	assert.Equal(t, 1, timings["texture_load"].Count)
}

func TestTickReportsAndClearsTimings(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewProfiler(WithLogger(zap.New(core)), WithInterval(time.Nanosecond))
	p.Record("model_load", 3*time.Millisecond)

	time.Sleep(time.Millisecond)
	require.True(t, p.Tick())

	assert.Equal(t, 1, logs.FilterMessage("profiler").Len())
	events := logs.FilterMessage("profiler event").All()
	require.Len(t, events, 1)
	assert.Equal(t, "model_load", events[0].ContextMap()["event"])
	assert.Empty(t, p.Timings())
}

func TestTickWaitsForInterval(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewProfiler(WithLogger(zap.New(core)), WithInterval(time.Hour))
	assert.False(t, p.Tick())
	assert.Zero(t, logs.Len())
}
