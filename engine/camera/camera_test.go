package camera

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := NewCamera()

	assert.Equal(t, mgl32.Vec3{0, 0, 2}, c.Position())
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, c.Target())
	assert.InDelta(t, mgl32.DegToRad(90), c.Fov(), 1e-6)
	assert.InDelta(t, 1.0, c.Aspect(), 1e-6)
}

func TestProjectionFlipsY(t *testing.T) {
	c := NewCamera(WithFov(mgl32.DegToRad(60)), WithAspect(16.0/9.0))

	reference := mgl32.Perspective(mgl32.DegToRad(60), 16.0/9.0, 0.01, 1000)
	proj := c.ProjectionMatrix()

	assert.InDelta(t, -reference[5], proj[5], 1e-6)
	assert.InDelta(t, reference[0], proj[0], 1e-6)
}

func TestViewProjectionIsProduct(t *testing.T) {
	c := NewCamera(WithPosition(3, 1, 4), WithTarget(0, 1, 0))

	want := c.ProjectionMatrix().Mul4(c.ViewMatrix())
	got := c.ViewProjectionMatrix()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-6)
	}
}

func TestViewTransformsTargetToNegativeZ(t *testing.T) {
	c := NewCamera(WithPosition(0, 0, 5), WithTarget(0, 0, 0))

	p := c.ViewMatrix().Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	require.InDelta(t, 0, p.X(), 1e-6)
	require.InDelta(t, 0, p.Y(), 1e-6)
	assert.InDelta(t, -5, p.Z(), 1e-6)
}

func TestSettersRecomputeMatrices(t *testing.T) {
	c := NewCamera()
	before := c.ViewProjectionMatrix()

	c.SetAspect(2)
	afterAspect := c.ViewProjectionMatrix()
	assert.NotEqual(t, before, afterAspect)

	c.SetPosition(mgl32.Vec3{0, 5, 5})
	afterMove := c.ViewProjectionMatrix()
	assert.NotEqual(t, afterAspect, afterMove)

	c.SetTarget(mgl32.Vec3{1, 0, 0})
	assert.NotEqual(t, afterMove, c.ViewProjectionMatrix())
}
