// Package render draws stick figures from pose landmarks onto a styled canvas.
//
// The camera image is never composited: only the frame size is reused, so the
// output shows the background and the skeleton alone.
package render

import (
	"image"
	"image/color"
	"math"

	"github.com/pose2stick/stickfigure-service/internal/domain/entity"
)

// Palette shared by every rendered frame.
var (
	GridFill   = color.RGBA{R: 30, G: 30, B: 30, A: 255}
	GridLine   = color.RGBA{R: 50, G: 50, B: 50, A: 255}
	SolidFill  = color.RGBA{R: 20, G: 20, B: 20, A: 255}
	PlainFill  = color.RGBA{A: 255}
	BoneColor  = color.RGBA{G: 255, A: 255}
	JointColor = color.RGBA{R: 255, A: 255}
)

// Stroke geometry in pixels. Grid lines are one pixel wide.
const (
	GridSpacing = 40
	BoneWidth   = 2
	JointRadius = 4

	// coordinates further out than this are clamped before pixel conversion
	maxCoord = 1 << 20
)

// Renderer draws poses for one video. The background is rasterized once and
// copied into a reused canvas for every frame.
type Renderer struct {
	background  *image.RGBA
	canvas      *image.RGBA
	connections []entity.Connection
}

func New(width, height int, style entity.Background) *Renderer {
	rect := image.Rect(0, 0, width, height)
	bg := image.NewRGBA(rect)
	FillBackground(bg, style)
	return &Renderer{
		background:  bg,
		canvas:      image.NewRGBA(rect),
		connections: entity.PoseConnections,
	}
}

// Render returns the canvas for pose. The returned image is owned by the
// Renderer and is overwritten by the next call.
func (r *Renderer) Render(pose entity.Pose) *image.RGBA {
	copy(r.canvas.Pix, r.background.Pix)
	DrawSkeleton(r.canvas, pose, r.connections)
	return r.canvas
}

// Render draws pose on a fresh canvas of the given size.
func Render(size image.Point, pose entity.Pose, style entity.Background) *image.RGBA {
	img := image.NewRGBA(image.Rectangle{Max: size})
	FillBackground(img, style)
	DrawSkeleton(img, pose, entity.PoseConnections)
	return img
}

// FillBackground initializes every pixel of img according to style.
func FillBackground(img *image.RGBA, style entity.Background) {
	b := img.Bounds()
	switch style {
	case entity.BackgroundGrid:
		fill(img, GridFill)
		for x := b.Min.X; x < b.Max.X; x += GridSpacing {
			for y := b.Min.Y; y < b.Max.Y; y++ {
				img.SetRGBA(x, y, GridLine)
			}
		}
		for y := b.Min.Y; y < b.Max.Y; y += GridSpacing {
			for x := b.Min.X; x < b.Max.X; x++ {
				img.SetRGBA(x, y, GridLine)
			}
		}
	case entity.BackgroundSolid:
		fill(img, SolidFill)
	case entity.BackgroundGradient:
		h := b.Dy()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			c := GradientRow(y-b.Min.Y, h)
			for x := b.Min.X; x < b.Max.X; x++ {
				img.SetRGBA(x, y, c)
			}
		}
	default:
		fill(img, PlainFill)
	}
}

// GradientRow is the colour of row i of an h-row gradient, running from red at
// the top to blue at the bottom.
func GradientRow(i, h int) color.RGBA {
	c := int(255 * (float64(i) / float64(h)))
	return color.RGBA{R: uint8(255 - c), G: uint8(c / 2), B: uint8(c), A: 255}
}

func fill(img *image.RGBA, c color.RGBA) {
	px := []uint8{c.R, c.G, c.B, c.A}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			copy(row[i:i+4], px)
		}
	}
}

// DrawSkeleton draws every connection whose endpoints are both present in
// pose, then a joint at every landmark. Connections with a missing endpoint
// are skipped.
func DrawSkeleton(img *image.RGBA, pose entity.Pose, connections []entity.Connection) {
	if !pose.Detected() {
		return
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	for _, c := range connections {
		if !pose.Has(c.From) || !pose.Has(c.To) {
			continue
		}
		x1, y1, ok1 := PixelPoint(pose[c.From], w, h)
		x2, y2, ok2 := PixelPoint(pose[c.To], w, h)
		if !ok1 || !ok2 {
			continue
		}
		DrawLine(img, x1, y1, x2, y2, BoneWidth, BoneColor)
	}

	for _, lm := range pose {
		x, y, ok := PixelPoint(lm, w, h)
		if !ok {
			continue
		}
		FillCircle(img, x, y, JointRadius, JointColor)
	}
}

// PixelPoint scales a normalized landmark to pixel coordinates, truncating
// toward zero. ok is false for non-finite coordinates.
func PixelPoint(lm entity.Landmark, width, height int) (x, y int, ok bool) {
	fx, fy := lm.X*float64(width), lm.Y*float64(height)
	if math.IsNaN(fx) || math.IsNaN(fy) || math.IsInf(fx, 0) || math.IsInf(fy, 0) {
		return 0, 0, false
	}
	return int(clamp(fx)), int(clamp(fy)), true
}

func clamp(v float64) float64 {
	return math.Max(-maxCoord, math.Min(maxCoord, v))
}

// DrawLine strokes the segment (x1,y1)-(x2,y2) with round caps: every pixel
// within width/2 of the segment is set.
func DrawLine(img *image.RGBA, x1, y1, x2, y2, width int, c color.RGBA) {
	half := float64(width) / 2
	pad := int(math.Ceil(half))
	area := image.Rect(min(x1, x2)-pad, min(y1, y2)-pad, max(x1, x2)+pad+1, max(y1, y2)+pad+1).
		Intersect(img.Bounds())

	dx, dy := float64(x2-x1), float64(y2-y1)
	lenSq := dx*dx + dy*dy
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			px, py := float64(x-x1), float64(y-y1)
			t := 0.0
			if lenSq > 0 {
				t = math.Max(0, math.Min(1, (px*dx+py*dy)/lenSq))
			}
			ex, ey := px-t*dx, py-t*dy
			if ex*ex+ey*ey <= half*half {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// FillCircle paints a filled disc of radius r centred on (cx, cy).
func FillCircle(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	area := image.Rect(cx-r, cy-r, cx+r+1, cy+r+1).Intersect(img.Bounds())
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				img.SetRGBA(x, y, c)
			}
		}
	}
}
