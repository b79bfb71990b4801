package annotate

import "image/color"

// Style controls how detections are drawn. Exactly two box colors exist:
// one for carnivorous species and one for everything else.
type Style struct {
	StrokeWidth float64
	FontSize    float64

	CarnivorousColor color.RGBA
	OtherColor       color.RGBA
	TextColor        color.RGBA

	// CarnivorousSuffix is appended to carnivorous labels.
	CarnivorousSuffix string

	// LabelPadding is the extra vertical room in the label background.
	LabelPadding int

	// CountBanner draws "Carnivorous: N" in the top-left corner when N > 0.
	CountBanner    bool
	BannerFontSize float64
}

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// StillStyle is used for single-image detection.
func StillStyle() Style {
	return Style{
		StrokeWidth:       2,
		FontSize:          13,
		CarnivorousColor:  red,
		OtherColor:        green,
		TextColor:         white,
		CarnivorousSuffix: " (CARNIVOROUS)",
		LabelPadding:      5,
		BannerFontSize:    24,
	}
}

// VideoStyle is used during playback: a shorter suffix and the count banner.
func VideoStyle() Style {
	s := StillStyle()
	s.CarnivorousSuffix = " (CARN)"
	s.CountBanner = true
	return s
}

// withDefaults fills zero fields from StillStyle.
func (s Style) withDefaults() Style {
	def := StillStyle()
	if s.StrokeWidth <= 0 {
		s.StrokeWidth = def.StrokeWidth
	}
	if s.FontSize <= 0 {
		s.FontSize = def.FontSize
	}
	if s.BannerFontSize <= 0 {
		s.BannerFontSize = def.BannerFontSize
	}
	if s.LabelPadding < 0 {
		s.LabelPadding = 0
	}
	if s.CarnivorousColor == (color.RGBA{}) {
		s.CarnivorousColor = def.CarnivorousColor
	}
	if s.OtherColor == (color.RGBA{}) {
		s.OtherColor = def.OtherColor
	}
	if s.TextColor == (color.RGBA{}) {
		s.TextColor = def.TextColor
	}
	return s
}
