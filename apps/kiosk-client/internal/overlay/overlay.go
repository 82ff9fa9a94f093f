// Package overlay paints detection boxes and labels over the live frame.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/metrics"
	"github.com/Harshitk-cp/smartcart/libs/wire"
)

const (
	strokeWidth   = 3
	labelHeight   = 25
	labelPadding  = 10
	textInsetX    = 5
	textBaselineY = 7

	// UnknownLabel is shown for a detection with neither product nor class.
	UnknownLabel = "unknown"
)

var (
	BoxColor  = color.RGBA{R: 0x00, G: 0xff, B: 0x00, A: 0xff}
	TextColor = color.RGBA{A: 0xff}
)

// Box is one drawn detection, in frame coordinates.
type Box struct {
	Rect      image.Rectangle
	LabelRect image.Rectangle
	Label     string
}

// FrameProvider yields the current live frame. ok is false when there is
// nothing to draw on yet.
type FrameProvider interface {
	Image() (img image.Image, ok bool, err error)
}

// Surface receives each composited frame.
type Surface interface {
	Present(img *image.RGBA, boxes []Box)
}

// Renderer composites detections over the newest frame.
type Renderer struct {
	frames  FrameProvider
	surface Surface
	face    font.Face
	logger  *slog.Logger
	metrics metrics.Collector
}

// NewRenderer draws detections over frames onto surface.
func NewRenderer(frames FrameProvider, surface Surface, logger *slog.Logger, m metrics.Collector) *Renderer {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Renderer{
		frames:  frames,
		surface: surface,
		face:    basicfont.Face7x13,
		logger:  logger.With("component", "overlay"),
		metrics: m,
	}
}

// Render repaints the surface with the live frame and one box per
// detection. The previous overlay is always discarded. If no frame is
// available the surface is left untouched and Render returns nil.
func (r *Renderer) Render(detections []wire.Detection) ([]Box, error) {
	src, ok, err := r.frames.Image()
	if err != nil {
		return nil, fmt.Errorf("load live frame: %w", err)
	}
	if !ok {
		r.logger.Debug("no live frame, skipping overlay", "detections", len(detections))
		return nil, nil
	}

	bounds := src.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Src)

	boxes := make([]Box, 0, len(detections))
	for _, d := range detections {
		boxes = append(boxes, r.drawDetection(canvas, d))
	}

	r.surface.Present(canvas, boxes)
	r.metrics.OverlayRendered(len(boxes))
	return boxes, nil
}

func (r *Renderer) drawDetection(dst *image.RGBA, d wire.Detection) Box {
	rect := image.Rect(
		int(math.Round(d.BBox[0])), int(math.Round(d.BBox[1])),
		int(math.Round(d.BBox[2])), int(math.Round(d.BBox[3])),
	)
	strokeRect(dst, rect, strokeWidth, BoxColor)

	label := Label(d)
	textWidth := font.MeasureString(r.face, label).Ceil()
	bg := image.Rect(rect.Min.X, rect.Min.Y-labelHeight, rect.Min.X+textWidth+labelPadding, rect.Min.Y)
	draw.Draw(dst, bg, image.NewUniform(BoxColor), image.Point{}, draw.Src)

	drawer := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(TextColor),
		Face: r.face,
		Dot:  fixed.P(rect.Min.X+textInsetX, rect.Min.Y-textBaselineY),
	}
	drawer.DrawString(label)

	return Box{Rect: rect, LabelRect: bg, Label: label}
}

// Label picks the caption for a detection: the product name with its
// confidence as a whole percentage, else the class name, else UnknownLabel.
func Label(d wire.Detection) string {
	if d.Product != nil && d.Product.Name != "" {
		if d.Confidence == nil {
			return d.Product.Name
		}
		return fmt.Sprintf("%s (%d%%)", d.Product.Name, int(math.Round(*d.Confidence*100)))
	}
	if d.ClassName != "" {
		return d.ClassName
	}
	return UnknownLabel
}

// strokeRect outlines r with a line of the given width centred on its edges.
func strokeRect(dst draw.Image, r image.Rectangle, width int, c color.Color) {
	outer := r.Inset(-(width / 2))
	inner := outer.Inset(width)
	fill := image.NewUniform(c)
	if inner.Empty() {
		draw.Draw(dst, outer, fill, image.Point{}, draw.Src)
		return
	}
	for _, strip := range []image.Rectangle{
		image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, inner.Min.Y), // top
		image.Rect(outer.Min.X, inner.Max.Y, outer.Max.X, outer.Max.Y), // bottom
		image.Rect(outer.Min.X, inner.Min.Y, inner.Min.X, inner.Max.Y), // left
		image.Rect(inner.Max.X, inner.Min.Y, outer.Max.X, inner.Max.Y), // right
	} {
		draw.Draw(dst, strip, fill, image.Point{}, draw.Src)
	}
}

// LatestSurface keeps the most recent composite for the preview endpoint.
type LatestSurface struct {
	mu        sync.RWMutex
	img       *image.RGBA
	boxes     []Box
	updatedAt time.Time
}

// Present stores the composite and its boxes.
func (s *LatestSurface) Present(img *image.RGBA, boxes []Box) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.img = img
	s.boxes = boxes
	s.updatedAt = time.Now()
}

// Latest returns the last composite. The image must not be modified.
func (s *LatestSurface) Latest() (img *image.RGBA, boxes []Box, updatedAt time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.img == nil {
		return nil, nil, time.Time{}, false
	}
	return s.img, append([]Box(nil), s.boxes...), s.updatedAt, true
}
