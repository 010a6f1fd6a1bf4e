// Package chart renders detection summaries as bar charts.
// The look is fixed: transparent background, white text, a single bar color,
// value labels above each bar, and no y axis.
package chart

import (
	"fmt"
	"image"
	"io"
	"math"
	"sync"

	"github.com/cyclopcam/visiondemo/pkg/detections"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	BarColor        = "#7289DA"
	TextColor       = "#FFFFFF"
	BottomLineColor = "#FFFFFF"
	FrameLineColor  = "#1e2b3a" // left, right, and top border lines
)

// Style controls the geometry of a chart.
// Sizes that are given in points are scaled by DPI/72.
type Style struct {
	Width        int     // Pixels
	Height       int     // Pixels
	DPI          float64 // Used to convert points to pixels
	TitleSize    float64 // Points
	TickSize     float64 // Points
	ValueSize    float64 // Points
	ValueSpacing float64 // Points between the top of a bar and its value label
	BarWidth     float64 // Fraction of each bar's slot (0..1)
	YHeadroom    float64 // The y axis extends to max(value) * YHeadroom

	// Fractions of the image that the plot area occupies
	Left, Right, Bottom, Top float64
}

// DefaultStyle is a 6.4 x 4.8 inch figure at 100 DPI
func DefaultStyle() Style {
	return Style{
		Width:        640,
		Height:       480,
		DPI:          100,
		TitleSize:    14,
		TickSize:     10,
		ValueSize:    14,
		ValueSpacing: 5,
		BarWidth:     0.5,
		YHeadroom:    1.3,
		Left:         0.125,
		Right:        0.9,
		Bottom:       0.11,
		Top:          0.88,
	}
}

// Filename returns the file name of the summary chart for the given granularity
func Filename(g detections.Granularity) string {
	return fmt.Sprintf("summary_plot_%v.png", g)
}

var (
	fontsOnce   sync.Once
	fontRegular *truetype.Font
	fontBold    *truetype.Font
	fontsErr    error
)

func loadFonts() error {
	fontsOnce.Do(func() {
		if fontRegular, fontsErr = truetype.Parse(goregular.TTF); fontsErr != nil {
			return
		}
		fontBold, fontsErr = truetype.Parse(gobold.TTF)
	})
	return fontsErr
}

func (s Style) face(f *truetype.Font, points float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{Size: points, DPI: s.DPI, Hinting: font.HintingFull})
}

func (s Style) px(points float64) float64 {
	return points * s.DPI / 72
}

// Render draws the summary as a bar chart.
// An empty summary produces an error, because there is nothing to scale the chart against.
func (s Style) Render(summary *detections.Summary) (image.Image, error) {
	if len(summary.Entries) == 0 {
		return nil, fmt.Errorf("Cannot render an empty summary (%v)", summary.Granularity)
	}
	if err := loadFonts(); err != nil {
		return nil, fmt.Errorf("Failed to load chart fonts: %w", err)
	}

	dc := gg.NewContext(s.Width, s.Height)
	// A new context is fully transparent, so we only draw the foreground

	W, H := float64(s.Width), float64(s.Height)
	x0 := s.Left * W
	x1 := s.Right * W
	y0 := (1 - s.Top) * H    // top of plot area, in image coordinates
	y1 := (1 - s.Bottom) * H // bottom of plot area
	plotW := x1 - x0
	plotH := y1 - y0

	yMax := summary.MaxValue() * s.YHeadroom
	if yMax <= 0 || math.IsNaN(yMax) {
		yMax = 1
	}

	n := len(summary.Entries)
	slot := plotW / float64(n)
	barW := slot * s.BarWidth

	// Bars
	dc.SetHexColor(BarColor)
	for i, e := range summary.Entries {
		cx := x0 + slot*(float64(i)+0.5)
		h := plotH * e.Value / yMax
		dc.DrawRectangle(cx-barW/2, y1-h, barW, h)
	}
	dc.Fill()

	// Border lines. The bottom line doubles as the x axis.
	dc.SetLineWidth(s.px(0.8))
	dc.SetHexColor(FrameLineColor)
	dc.DrawLine(x0, y0, x0, y1)
	dc.DrawLine(x1, y0, x1, y1)
	dc.DrawLine(x0, y0, x1, y0)
	dc.Stroke()
	dc.SetHexColor(BottomLineColor)
	dc.DrawLine(x0, y1, x1, y1)
	dc.Stroke()

	dc.SetHexColor(TextColor)

	// X tick labels (no axis title)
	dc.SetFontFace(s.face(fontRegular, s.TickSize))
	for i, e := range summary.Entries {
		cx := x0 + slot*(float64(i)+0.5)
		dc.DrawStringAnchored(e.Label, cx, y1+s.px(3.5), 0.5, 1)
	}

	// Value labels
	dc.SetFontFace(s.face(fontBold, s.ValueSize))
	for i, e := range summary.Entries {
		cx := x0 + slot*(float64(i)+0.5)
		top := y1 - plotH*e.Value/yMax
		dc.DrawStringAnchored(fmt.Sprintf("%.1f", e.Value), cx, top-s.px(s.ValueSpacing), 0.5, 0)
	}

	// Title
	dc.SetFontFace(s.face(fontRegular, s.TitleSize))
	dc.DrawStringAnchored(summary.Title, x0+plotW/2, y0-s.px(6), 0.5, 0)

	return dc.Image(), nil
}

// WritePNG renders the summary and encodes it as a PNG
func (s Style) WritePNG(w io.Writer, summary *detections.Summary) error {
	img, err := s.Render(summary)
	if err != nil {
		return err
	}
	return gg.NewContextForImage(img).EncodePNG(w)
}

// SavePNG renders the summary into filename
func (s Style) SavePNG(filename string, summary *detections.Summary) error {
	img, err := s.Render(summary)
	if err != nil {
		return err
	}
	return gg.SavePNG(filename, img)
}
