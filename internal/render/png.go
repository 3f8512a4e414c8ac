package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/topology"
)

// IGraphRenderer turns a topology with role labels into an image artifact.
type IGraphRenderer interface {
	Render(path string, t *topology.Topology) error
}

// Position represents a 2D coordinate
type Position struct {
	X float64
	Y float64
}

var roleColors = map[string]color.RGBA{
	common.ROLE_START:       {R: 214, G: 39, B: 40, A: 255},
	common.ROLE_SERVER:      {R: 255, G: 127, B: 14, A: 255},
	common.ROLE_PARTICIPANT: {R: 31, G: 119, B: 180, A: 255},
}

var defaultNodeColor = color.RGBA{R: 44, G: 160, B: 44, A: 255}
var edgeColor = color.RGBA{R: 150, G: 150, B: 150, A: 255}

// PngRenderer draws nodes on a circle, coloured by role, with straight edges.
type PngRenderer struct {
	Width      int
	Height     int
	Padding    float64
	NodeRadius int
}

func NewPngRenderer() *PngRenderer {
	return &PngRenderer{
		Width:      800,
		Height:     800,
		Padding:    60,
		NodeRadius: 12,
	}
}

// CircularLayout arranges n nodes evenly on a circle centred in the canvas.
func (r *PngRenderer) CircularLayout(n int) []Position {
	positions := make([]Position, n)
	if n == 0 {
		return positions
	}

	centerX := float64(r.Width) / 2
	centerY := float64(r.Height) / 2
	radius := math.Min(centerX, centerY) - r.Padding
	if n == 1 {
		radius = 0
	}

	angleStep := 2 * math.Pi / float64(n)
	for i := range positions {
		angle := float64(i)*angleStep - math.Pi/2
		positions[i] = Position{
			X: centerX + radius*math.Cos(angle),
			Y: centerY + radius*math.Sin(angle),
		}
	}

	return positions
}

func (r *PngRenderer) Render(path string, t *topology.Topology) error {
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	positions := r.CircularLayout(t.NodeCount)
	for _, edge := range t.Edges() {
		drawLine(img, positions[edge[0]], positions[edge[1]], edgeColor)
	}

	for i, position := range positions {
		nodeColor, found := roleColors[t.Role(i)]
		if !found {
			nodeColor = defaultNodeColor
		}
		drawDisc(img, position, r.NodeRadius, nodeColor)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("encode topology image: %w", err)
	}

	return nil
}

func drawLine(img *image.RGBA, from, to Position, c color.RGBA) {
	steps := int(math.Max(math.Abs(to.X-from.X), math.Abs(to.Y-from.Y)))
	if steps == 0 {
		img.SetRGBA(int(from.X), int(from.Y), c)
		return
	}

	for s := 0; s <= steps; s++ {
		ratio := float64(s) / float64(steps)
		x := from.X + (to.X-from.X)*ratio
		y := from.Y + (to.Y-from.Y)*ratio
		img.SetRGBA(int(math.Round(x)), int(math.Round(y)), c)
	}
}

func drawDisc(img *image.RGBA, center Position, radius int, c color.RGBA) {
	cx, cy := int(math.Round(center.X)), int(math.Round(center.Y))
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				img.SetRGBA(cx+dx, cy+dy, c)
			}
		}
	}
}
