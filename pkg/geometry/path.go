// Package geometry maps circuit coordinates onto a closed 2-D path and
// answers position queries along that path.
//
// Longitude and latitude are treated as a flat cartesian plane. For the size
// of a race circuit this is good enough, the path only has to be consistent,
// not geographically accurate.
package geometry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrTooFewPoints = errors.New("at least 2 coordinates are required")

type Coordinate struct {
	Lon float64 `json:"lon" yaml:"lon"`
	Lat float64 `json:"lat" yaml:"lat"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Viewport struct {
	Width   float64
	Height  float64
	Padding float64
}

// DefaultViewport is the drawing area used by the renderer.
var DefaultViewport = Viewport{Width: 400, Height: 300, Padding: 20}

func (v Viewport) center() Point {
	return Point{X: v.Width / 2, Y: v.Height / 2}
}

// Path is a closed polyline. The last point is implicitly joined to the first.
// A Path is immutable after construction and may be shared between goroutines.
type Path struct {
	points   []Point
	segments []float64 // segments[i] is the length from points[i] to points[i+1] (wrapping)
	total    float64
	viewport Viewport
}

type PathOption func(*pathConfig)

type pathConfig struct {
	viewport Viewport
}

func WithViewport(v Viewport) PathOption {
	return func(c *pathConfig) {
		c.viewport = v
	}
}

// BuildPath maps the coordinates into the viewport. Each axis is scaled
// independently into the usable area (viewport minus padding) and the
// vertical axis is flipped so that north is up.
func BuildPath(coords []Coordinate, opts ...PathOption) (*Path, error) {
	if len(coords) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewPoints, len(coords))
	}
	cfg := pathConfig{viewport: DefaultViewport}
	for _, opt := range opts {
		opt(&cfg)
	}
	vp := cfg.viewport

	minLon, maxLon := coords[0].Lon, coords[0].Lon
	minLat, maxLat := coords[0].Lat, coords[0].Lat
	for _, c := range coords[1:] {
		minLon = math.Min(minLon, c.Lon)
		maxLon = math.Max(maxLon, c.Lon)
		minLat = math.Min(minLat, c.Lat)
		maxLat = math.Max(maxLat, c.Lat)
	}
	usableW := vp.Width - 2*vp.Padding
	usableH := vp.Height - 2*vp.Padding
	spanLon := maxLon - minLon
	spanLat := maxLat - minLat

	points := make([]Point, len(coords))
	for i, c := range coords {
		// a zero span axis is placed in the middle of the viewport
		x := vp.Width / 2
		if spanLon > 0 {
			x = vp.Padding + (c.Lon-minLon)/spanLon*usableW
		}
		y := vp.Height / 2
		if spanLat > 0 {
			y = vp.Padding + (maxLat-c.Lat)/spanLat*usableH
		}
		points[i] = Point{X: x, Y: y}
	}
	return newPath(points, vp), nil
}

func newPath(points []Point, vp Viewport) *Path {
	p := &Path{
		points:   points,
		segments: make([]float64, len(points)),
		viewport: vp,
	}
	for i := range points {
		next := points[(i+1)%len(points)]
		p.segments[i] = distance(points[i], next)
		p.total += p.segments[i]
	}
	return p
}

func distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// TotalLength is the length of the closed polyline including the closing segment.
func (p *Path) TotalLength() float64 {
	return p.total
}

// Points returns a copy of the vertices
func (p *Path) Points() []Point {
	ret := make([]Point, len(p.points))
	copy(ret, p.points)
	return ret
}

// FallbackPoint is returned by PointAtFraction if the path has no length.
func (p *Path) FallbackPoint() Point {
	return p.viewport.center()
}

// PointAtFraction returns the point at arc length f*TotalLength.
// f is wrapped into [0,1), so 1.0 is the start again and -0.25 equals 0.75.
func (p *Path) PointAtFraction(f float64) Point {
	if p.total <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return p.FallbackPoint()
	}
	f -= math.Floor(f)
	target := f * p.total
	for i, segLen := range p.segments {
		if segLen == 0 {
			continue
		}
		if target <= segLen {
			a := p.points[i]
			b := p.points[(i+1)%len(p.points)]
			t := target / segLen
			return Point{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t}
		}
		target -= segLen
	}
	// only reached by float rounding at the very end of the path
	return p.points[0]
}

// SVG renders the path as value for the d attribute of an svg path element.
func (p *Path) SVG() string {
	var sb strings.Builder
	for i, pt := range p.points {
		if i == 0 {
			sb.WriteString("M ")
		} else {
			sb.WriteString(" L ")
		}
		sb.WriteString(formatFloat(pt.X))
		sb.WriteString(" ")
		sb.WriteString(formatFloat(pt.Y))
	}
	sb.WriteString(" Z")
	return sb.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
