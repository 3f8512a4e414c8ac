package render

import (
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircularLayout(t *testing.T) {
	renderer := NewPngRenderer()

	positions := renderer.CircularLayout(4)
	require.Len(t, positions, 4)

	radius := float64(renderer.Width)/2 - renderer.Padding
	for _, position := range positions {
		distance := math.Hypot(position.X-400, position.Y-400)
		assert.InDelta(t, radius, distance, 1e-9)
	}

	single := renderer.CircularLayout(1)
	assert.Equal(t, Position{X: 400, Y: 400}, single[0])
	assert.Empty(t, renderer.CircularLayout(0))
}

func TestRenderWritesPng(t *testing.T) {
	ring, err := topology.Generate(topology.Ring, 6, topology.Params{BSymmetric: true})
	require.NoError(t, err)
	require.NoError(t, ring.SetRoles([]string{"start", "participant", "participant", "participant", "participant", "participant"}))

	path := filepath.Join(t.TempDir(), "scenario", "topology.png")
	renderer := NewPngRenderer()
	require.NoError(t, renderer.Render(path, ring))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	img, err := png.Decode(file)
	require.NoError(t, err)
	assert.Equal(t, 800, img.Bounds().Dx())

	// the start node is drawn at the top of the circle
	start := renderer.CircularLayout(6)[0]
	r, g, b, _ := img.At(int(start.X), int(start.Y)).RGBA()
	assert.Equal(t, uint32(214), r>>8)
	assert.Equal(t, uint32(39), g>>8)
	assert.Equal(t, uint32(40), b>>8)
}
