// Package annotate burns detection boxes and labels into a copy of a frame
// and summarizes what was seen.
package annotate

import (
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/teslashibe/animal-detect/pkg/detection"
)

var labelFont *truetype.Font

func init() {
	var err error
	labelFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Catalog resolves class ids and carnivorous membership.
type Catalog interface {
	NameOf(classID int) string
	IsCarnivorous(name string) bool
}

// Annotator draws detections. It holds no mutable state and is safe for
// concurrent use.
type Annotator struct {
	catalog Catalog
	style   Style
}

// New creates an annotator over an injected catalog.
func New(catalog Catalog, style Style) *Annotator {
	return &Annotator{catalog: catalog, style: style.withDefaults()}
}

// Style returns the effective drawing style.
func (a *Annotator) Style() Style {
	return a.style
}

// Label composes the text drawn above a box.
func (a *Annotator) Label(name string, confidence float64, carnivorous bool) string {
	label := fmt.Sprintf("%s: %.2f", name, confidence)
	if carnivorous {
		label += a.style.CarnivorousSuffix
	}
	return label
}

// Annotate returns an annotated copy of frame and the pass summary. frame is
// never modified. Boxes are relative to frame.Bounds().Min; the returned
// image is anchored at the origin.
func (a *Annotator) Annotate(frame image.Image, dets []detection.Detection) (*image.RGBA, Summary) {
	b := frame.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), frame, b.Min, draw.Src)

	var summary Summary
	if len(dets) == 0 {
		return dst, summary
	}

	dc := gg.NewContextForRGBA(dst)
	face := truetype.NewFace(labelFont, &truetype.Options{Size: a.style.FontSize})
	defer face.Close()
	dc.SetFontFace(face)

	metrics := face.Metrics()
	ascent, descent := metrics.Ascent.Ceil(), metrics.Descent.Ceil()
	labelHeight := ascent + descent + a.style.LabelPadding

	for _, det := range dets {
		name := a.catalog.NameOf(det.ClassID)
		carnivorous := a.catalog.IsCarnivorous(name)
		summary.add(name, carnivorous)

		col := a.style.OtherColor
		if carnivorous {
			col = a.style.CarnivorousColor
		}

		box := det.Box.Sub(b.Min)
		dc.SetColor(col)
		dc.SetLineWidth(a.style.StrokeWidth)
		dc.DrawRectangle(float64(box.Min.X), float64(box.Min.Y), float64(box.Dx()), float64(box.Dy()))
		dc.Stroke()

		label := a.Label(name, det.Confidence, carnivorous)
		textWidth, _ := dc.MeasureString(label)
		bg := LabelRect(box, int(math.Ceil(textWidth)), labelHeight, dst.Bounds())

		dc.DrawRectangle(float64(bg.Min.X), float64(bg.Min.Y), float64(bg.Dx()), float64(bg.Dy()))
		dc.Fill()

		dc.SetColor(a.style.TextColor)
		dc.DrawString(label, float64(bg.Min.X), float64(bg.Max.Y-descent-2))
	}

	if a.style.CountBanner && summary.CarnivorousCount > 0 {
		a.drawBanner(dc, summary.CarnivorousCount)
	}

	return dst, summary
}

func (a *Annotator) drawBanner(dc *gg.Context, count int) {
	face := truetype.NewFace(labelFont, &truetype.Options{Size: a.style.BannerFontSize})
	defer face.Close()
	dc.SetFontFace(face)
	dc.SetColor(a.style.CarnivorousColor)
	dc.DrawString(fmt.Sprintf("Carnivorous: %d", count), 10, 30)
}

// LabelRect places a w×h label background on top of box, left-aligned with
// it. When the box touches the top of the frame the label is pushed down to
// stay inside, overlapping the box. The result is never degenerate for
// positive w and h.
func LabelRect(box image.Rectangle, w, h int, frame image.Rectangle) image.Rectangle {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	x := box.Min.X
	if x < frame.Min.X {
		x = frame.Min.X
	}
	top := box.Min.Y - h
	if top < frame.Min.Y {
		top = frame.Min.Y
	}
	return image.Rect(x, top, x+w, top+h)
}
