package frame

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBackend drives the frame ring without a GPU. Errors are consumed
// per call in order; a nil entry (or exhaustion) means success. It models the
// fence wait in Acquire by retiring the slot's previous submission.
type scriptedBackend struct {
	acquireErrs []error
	presentErrs []error

	acquires  int
	submits   int
	presents  int
	recreates int

	inFlight    map[int]bool
	maxInFlight int
	nextImage   uint32
}

var _ backend = &scriptedBackend{}

func newScriptedBackend() *scriptedBackend {
	return &scriptedBackend{inFlight: map[int]bool{}}
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (s *scriptedBackend) Acquire(slot int) (uint32, error) {
	s.acquires++
	delete(s.inFlight, slot)
	if err := popErr(&s.acquireErrs); err != nil {
		return 0, err
	}
	idx := s.nextImage
	s.nextImage = (s.nextImage + 1) % 3
	return idx, nil
}

func (s *scriptedBackend) Submit(slot int, imageIndex uint32, record func(cmd vk.CommandBuffer) error) error {
	if err := record(nil); err != nil {
		return err
	}
	s.submits++
	s.inFlight[slot] = true
	if len(s.inFlight) > s.maxInFlight {
		s.maxInFlight = len(s.inFlight)
	}
	return nil
}

func (s *scriptedBackend) Present(slot int, imageIndex uint32) error {
	s.presents++
	return popErr(&s.presentErrs)
}

func (s *scriptedBackend) Recreate(width, height uint32) error {
	s.recreates++
	return nil
}

func (s *scriptedBackend) SurfaceExtent() vk.Extent2D {
	return vk.Extent2D{Width: 800, Height: 600}
}

func (s *scriptedBackend) SurfaceFormat() vk.Format { return vk.FormatB8g8r8a8Srgb }

func (s *scriptedBackend) Images() []vk.Image { return []vk.Image{vk.NullImage, vk.NullImage, vk.NullImage} }

func (s *scriptedBackend) Destroy() {}

func renderN(t *testing.T, f *Frames, n int) []SurfaceState {
	t.Helper()
	var states []SurfaceState
	for i := 0; i < n; i++ {
		require.NoError(t, f.Render(800, 600, func(cmd vk.CommandBuffer, state SurfaceState) error {
			states = append(states, state)
			return nil
		}))
	}
	return states
}

func TestRenderAdvancesSlotRing(t *testing.T) {
	b := newScriptedBackend()
	f := newWithBackend(b)

	renderN(t, f, 5)

	assert.Equal(t, 5, b.submits)
	assert.Equal(t, 5, b.presents)
	// Five frames on a two-slot ring leave the index on slot one.
	assert.Equal(t, 1, f.index)
}

func TestAtMostTwoFramesInFlight(t *testing.T) {
	b := newScriptedBackend()
	f := newWithBackend(b)

	renderN(t, f, 20)

	assert.LessOrEqual(t, b.maxInFlight, MaxFramesInFlight)
	assert.Equal(t, MaxFramesInFlight, b.maxInFlight, "the ring should saturate both slots")
}

func TestAcquireOutOfDateSkipsFrameAndFlagsOnce(t *testing.T) {
	b := newScriptedBackend()
	b.acquireErrs = []error{nil, nil, ErrSurfaceOutOfDate}
	f := newWithBackend(b)

	var states []SurfaceState
	for i := 0; i < 6; i++ {
		require.NoError(t, f.Render(800, 600, func(cmd vk.CommandBuffer, state SurfaceState) error {
			states = append(states, state)
			return nil
		}))
	}

	// The out-of-date frame never recorded: six calls, five recordings.
	require.Len(t, states, 5)
	assert.Equal(t, 5, b.submits)
	assert.Equal(t, 1, b.recreates)

	// Exactly the call after recreation sees the flag.
	assert.Equal(t, []bool{false, false, true, false, false},
		[]bool{states[0].RecreatedSwapchain, states[1].RecreatedSwapchain,
			states[2].RecreatedSwapchain, states[3].RecreatedSwapchain,
			states[4].RecreatedSwapchain})
}

func TestPresentOutOfDateStillSubmitsFrame(t *testing.T) {
	b := newScriptedBackend()
	b.presentErrs = []error{nil, ErrSurfaceOutOfDate}
	f := newWithBackend(b)

	states := renderN(t, f, 4)

	// Every frame recorded and submitted; recreation happened between the
	// second and third.
	require.Len(t, states, 4)
	assert.Equal(t, 4, b.submits)
	assert.Equal(t, 1, b.recreates)
	assert.True(t, states[2].RecreatedSwapchain)
	assert.False(t, states[3].RecreatedSwapchain)
}

func TestRenderPropagatesFatalErrors(t *testing.T) {
	fatal := errors.New("device lost")

	b := newScriptedBackend()
	b.acquireErrs = []error{fatal}
	f := newWithBackend(b)
	err := f.Render(800, 600, func(vk.CommandBuffer, SurfaceState) error { return nil })
	require.ErrorIs(t, err, fatal)

	b = newScriptedBackend()
	f = newWithBackend(b)
	recordErr := errors.New("bad draw")
	err = f.Render(800, 600, func(vk.CommandBuffer, SurfaceState) error { return recordErr })
	require.ErrorIs(t, err, recordErr)
	assert.Equal(t, 0, b.submits, "a failed recording must not be submitted")
}

func TestSurfaceStateCarriesImageIndex(t *testing.T) {
	b := newScriptedBackend()
	f := newWithBackend(b)

	states := renderN(t, f, 3)
	assert.Equal(t, uint32(0), states[0].ImageIndex)
	assert.Equal(t, uint32(1), states[1].ImageIndex)
	assert.Equal(t, uint32(2), states[2].ImageIndex)
	assert.Equal(t, vk.Extent2D{Width: 800, Height: 600}, states[0].Extent)
}
