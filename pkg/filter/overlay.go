package filter

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/tauraamui/wormhole/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

var (
	parsedFont    *truetype.Font
	parseFontErr  error
	parseFontOnce sync.Once
)

func regularFont() (*truetype.Font, error) {
	parseFontOnce.Do(func() {
		parsedFont, parseFontErr = freetype.ParseFont(goregular.TTF)
	})
	return parsedFont, parseFontErr
}

// Overlay composites lines of text onto a copy of the frame, over a
// translucent dark box so the text stays readable on any footage.
type Overlay struct {
	Lines    func(frame videoframe.Frame, index uint64) []string
	X, Y     int
	FontSize float64
	Color    color.Color
	Backdrop bool
}

func (o Overlay) Apply(frame videoframe.Frame, index uint64) (videoframe.Frame, error) {
	if err := frame.Validate(); err != nil {
		return videoframe.Frame{}, err
	}
	if o.Lines == nil {
		return frame, nil
	}
	lines := o.Lines(frame, index)
	if len(lines) == 0 {
		return frame, nil
	}

	ttf, err := regularFont()
	if err != nil {
		return videoframe.Frame{}, xerror.Errorf("unable to parse overlay font: %w", err)
	}

	size := o.FontSize
	if size <= 0 {
		size = 14
	}
	var fg image.Image = image.White
	if o.Color != nil {
		fg = image.NewUniform(o.Color)
	}

	canvas := frame.ToImage()
	drawer := &font.Drawer{
		Dst: canvas,
		Src: fg,
		Face: truetype.NewFace(ttf, &truetype.Options{
			Size:    size,
			Hinting: font.HintingFull,
		}),
	}
	lineHeight := drawer.Face.Metrics().Height.Ceil()

	if o.Backdrop {
		width := 0
		for _, line := range lines {
			if w := drawer.MeasureString(line).Ceil(); w > width {
				width = w
			}
		}
		box := image.Rect(o.X-4, o.Y-4, o.X+width+4, o.Y+lineHeight*len(lines)+4)
		draw.Draw(canvas, box, image.NewUniform(color.RGBA{A: 0x99}), image.Point{}, draw.Over)
	}

	for i, line := range lines {
		drawer.Dot = fixed.Point26_6{
			X: fixed.I(o.X),
			Y: fixed.I(o.Y + lineHeight*(i+1)),
		}
		drawer.DrawString(line)
	}

	out := videoframe.FromImage(canvas, frame.Channels)
	out.Seq = frame.Seq
	return out, nil
}

// Watermark stamps a fixed line of text in the top left corner.
func Watermark(text string) Overlay {
	return Overlay{
		X: 8, Y: 4, FontSize: 16, Backdrop: true,
		Lines: func(videoframe.Frame, uint64) []string { return []string{text} },
	}
}

// DebugInfo reports frame geometry, index and wall clock time.
func DebugInfo(name string) Overlay {
	return Overlay{
		X: 8, Y: 40, FontSize: 12, Backdrop: true,
		Lines: func(f videoframe.Frame, index uint64) []string {
			return []string{
				fmt.Sprintf("feed: %s", name),
				fmt.Sprintf("resolution: %dx%d", f.Width, f.Height),
				fmt.Sprintf("frame: %d", index),
				time.Now().Format("2006-01-02 15:04:05.000"),
			}
		},
	}
}

// FPSOverlay renders the rate reported by fps below the debug block.
func FPSOverlay(fps func() float64) Overlay {
	return Overlay{
		X: 8, Y: 120, FontSize: 14, Backdrop: true, Color: color.RGBA{G: 0xff, A: 0xff},
		Lines: func(videoframe.Frame, uint64) []string {
			if fps == nil {
				return nil
			}
			return []string{fmt.Sprintf("FPS: %.1f", fps())}
		},
	}
}
