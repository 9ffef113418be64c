package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickBelowInterval(t *testing.T) {
	p := NewProfiler()

	assert.False(t, p.Tick())
	assert.False(t, p.Tick())
	assert.Equal(t, 2, p.frameCount)
}

func TestTickEmitsAfterInterval(t *testing.T) {
	p := NewProfiler()
	p.updateInterval = time.Millisecond

	p.Tick()
	time.Sleep(5 * time.Millisecond)
	assert.True(t, p.Tick())
	assert.Equal(t, 0, p.frameCount)
}
