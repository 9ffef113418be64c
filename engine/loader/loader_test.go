package loader

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestLoadDecodesAndCaches(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir, "albedo.png", 16, 8)
	l := NewLoader(WithWorkerCount(2))

	data, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(16), data.Width)
	assert.Equal(t, uint32(8), data.Height)
	assert.Equal(t, vk.FormatR8g8b8a8Unorm, data.Format)
	assert.Len(t, data.Pixels, 16*8*4)

	again, err := l.Load(path)
	require.NoError(t, err)
	assert.Same(t, data, again, "repeat loads must come from the cache")
}

func TestLoadAllPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writePNG(t, dir, "a.png", 4, 4),
		writePNG(t, dir, "b.png", 8, 4),
		writePNG(t, dir, "c.png", 16, 4),
	}
	l := NewLoader(WithWorkerCount(3))

	results, err := l.LoadAll(paths)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, uint32(4), results[0].Width)
	assert.Equal(t, uint32(8), results[1].Width)
	assert.Equal(t, uint32(16), results[2].Width)

	// A second batch is served entirely from the cache.
	again, err := l.LoadAll(paths)
	require.NoError(t, err)
	for i := range results {
		assert.Same(t, results[i], again[i])
	}
}

func TestLoadAllReportsFirstError(t *testing.T) {
	dir := t.TempDir()
	good := writePNG(t, dir, "good.png", 4, 4)
	l := NewLoader(WithWorkerCount(2))

	_, err := l.LoadAll([]string{good, filepath.Join(dir, "missing.png")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.png")
}

func TestEvictAndClear(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir, "tile.png", 4, 4)
	l := NewLoader(WithWorkerCount(1))

	first, err := l.Load(path)
	require.NoError(t, err)

	l.Evict(path)
	second, err := l.Load(path)
	require.NoError(t, err)
	assert.NotSame(t, first, second, "eviction must force a re-decode")

	l.Clear()
	third, err := l.Load(path)
	require.NoError(t, err)
	assert.NotSame(t, second, third)
}
