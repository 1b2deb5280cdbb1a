// Package render draws top-down plots of navigation graphs and the
// trajectories taken on them
package render

import (
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"
	"github.com/samuelfneumann/vlnav/environment"
)

// Options determine the appearance of a plot
type Options struct {
	Width, Height int
	Margin        float64 // Pixels left free around the graph

	// GoalRadius draws a ring of this radius in meters around the goal,
	// usually the success radius of the task. No ring is drawn if 0.
	GoalRadius float64

	Background color.Color
	Edge       color.Color
	Node       color.Color
	Path       color.Color
	Start      color.Color
	Goal       color.Color
}

// DefaultOptions returns the options of a 512x512 plot with a ring of
// the standard 3 meter success radius around the goal
func DefaultOptions() Options {
	return Options{
		Width:      512,
		Height:     512,
		Margin:     24,
		GoalRadius: environment.NewProgress().SuccessRadius,
		Background: color.White,
		Edge:       color.RGBA{200, 200, 200, 255},
		Node:       color.RGBA{120, 120, 120, 255},
		Path:       color.RGBA{220, 40, 40, 255},
		Start:      color.RGBA{30, 160, 60, 255},
		Goal:       color.RGBA{40, 70, 220, 255},
	}
}

// projection maps positions in the x-y plane of a graph to pixels
type projection struct {
	minX, maxY float64
	scale      float64
	margin     float64
}

func newProjection(g *environment.Graph, opts Options) projection {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, id := range g.Viewpoints() {
		p, _ := g.Position(id)
		minX, maxX = math.Min(minX, p[0]), math.Max(maxX, p[0])
		minY, maxY = math.Min(minY, p[1]), math.Max(maxY, p[1])
	}

	w := float64(opts.Width) - 2*opts.Margin
	h := float64(opts.Height) - 2*opts.Margin
	span := math.Max(maxX-minX, maxY-minY)
	scale := 1.0
	if span > 0 {
		scale = math.Min(w, h) / span
	}
	return projection{minX: minX, maxY: maxY, scale: scale,
		margin: opts.Margin}
}

// pixel returns the pixel coordinates of viewpoint id, with y pointing
// down the image
func (p projection) pixel(g *environment.Graph, id string) (float64,
	float64) {
	pos, _ := g.Position(id)
	return p.margin + (pos[0]-p.minX)*p.scale,
		p.margin + (p.maxY-pos[1])*p.scale
}

// Trajectory draws the navigation graph g from above, with path drawn
// over it from its first viewpoint to its last and the goal marked
func Trajectory(g *environment.Graph, path []string, goal string,
	opts Options) (image.Image, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, errors.Errorf("trajectory: invalid image size %vx%v",
			opts.Width, opts.Height)
	}
	if len(g.Viewpoints()) == 0 {
		return nil, errors.Errorf("trajectory: empty graph %v", g.Scan())
	}
	for _, id := range path {
		if !g.Has(id) {
			return nil, errors.Wrapf(environment.ErrUnknownViewpoint,
				"trajectory: %v", id)
		}
	}
	if !g.Has(goal) {
		return nil, errors.Wrapf(environment.ErrUnknownViewpoint,
			"trajectory: goal %v", goal)
	}

	proj := newProjection(g, opts)
	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetColor(opts.Background)
	dc.Clear()

	// Edges are drawn once, from the lexically smaller viewpoint
	dc.SetColor(opts.Edge)
	dc.SetLineWidth(2)
	for _, a := range g.Viewpoints() {
		for _, b := range g.Neighbours(a) {
			if a < b {
				x1, y1 := proj.pixel(g, a)
				x2, y2 := proj.pixel(g, b)
				dc.DrawLine(x1, y1, x2, y2)
			}
		}
	}
	dc.Stroke()

	dc.SetColor(opts.Node)
	for _, id := range g.Viewpoints() {
		x, y := proj.pixel(g, id)
		dc.DrawCircle(x, y, 3)
	}
	dc.Fill()

	if opts.GoalRadius > 0 {
		x, y := proj.pixel(g, goal)
		dc.SetColor(opts.Goal)
		dc.SetLineWidth(1)
		dc.DrawCircle(x, y, opts.GoalRadius*proj.scale)
		dc.Stroke()
	}

	if len(path) > 0 {
		dc.SetColor(opts.Path)
		dc.SetLineWidth(4)
		x, y := proj.pixel(g, path[0])
		dc.MoveTo(x, y)
		for _, id := range path[1:] {
			x, y = proj.pixel(g, id)
			dc.LineTo(x, y)
		}
		dc.Stroke()
	}

	x, y := proj.pixel(g, goal)
	dc.SetColor(opts.Goal)
	dc.DrawCircle(x, y, 7)
	dc.Fill()

	if len(path) > 0 {
		x, y := proj.pixel(g, path[0])
		dc.SetColor(opts.Start)
		dc.DrawCircle(x, y, 6)
		dc.Fill()
	}
	return dc.Image(), nil
}

// SavePNG draws a trajectory as Trajectory does and saves it to
// filename
func SavePNG(filename string, g *environment.Graph, path []string,
	goal string, opts Options) error {
	img, err := Trajectory(g, path, goal, opts)
	if err != nil {
		return err
	}
	return errors.Wrap(gg.SavePNG(filename, img), "savePNG")
}
