package filter

import (
	"math"

	"github.com/tauraamui/wormhole/pkg/video/videoframe"
)

const (
	DefaultCellWidth  = 12
	DefaultCellHeight = 12
	DefaultRadius     = 5
	DefaultThickness  = 2
)

// Mosaic redraws the frame as a grid of circles, one per cell, each
// coloured with the cell's nearest neighbour sample. A negative
// Thickness draws filled circles.
type Mosaic struct {
	CellWidth  int
	CellHeight int
	Radius     int
	Thickness  int
}

func NewMosaic() Mosaic {
	return Mosaic{
		CellWidth:  DefaultCellWidth,
		CellHeight: DefaultCellHeight,
		Radius:     DefaultRadius,
		Thickness:  DefaultThickness,
	}
}

func (m Mosaic) Apply(frame videoframe.Frame, _ uint64) (videoframe.Frame, error) {
	if err := frame.Validate(); err != nil {
		return videoframe.Frame{}, err
	}
	cw, ch := m.CellWidth, m.CellHeight
	if cw <= 0 {
		cw = DefaultCellWidth
	}
	if ch <= 0 {
		ch = DefaultCellHeight
	}

	output := videoframe.NewLike(frame)
	small := ResizeNearest(frame, frame.Width/cw, frame.Height/ch)
	for i := 0; i < small.Height; i++ {
		for j := 0; j < small.Width; j++ {
			drawCircle(output, j*cw+cw, i*ch, m.Radius, m.Thickness, small.At(j, i))
		}
	}
	return output, nil
}

// ResizeNearest downsamples with nearest neighbour sampling, taking
// source index floor(d*S/D) for destination index d.
func ResizeNearest(frame videoframe.Frame, w, h int) videoframe.Frame {
	out := videoframe.New(w, h, frame.Channels)
	out.Seq = frame.Seq
	for y := 0; y < h; y++ {
		sy := y * frame.Height / h
		for x := 0; x < w; x++ {
			sx := x * frame.Width / w
			out.Set(x, y, frame.At(sx, sy))
		}
	}
	return out
}

func drawCircle(canvas videoframe.Frame, cx, cy, radius, thickness int, px []byte) {
	outer := float64(radius)
	inner := -1.0
	if thickness >= 0 {
		half := float64(thickness) / 2
		outer = float64(radius) + half
		inner = math.Max(float64(radius)-half, 0)
	}

	reach := int(math.Ceil(outer))
	for dy := -reach; dy <= reach; dy++ {
		for dx := -reach; dx <= reach; dx++ {
			d := math.Hypot(float64(dx), float64(dy))
			if d > outer || d < inner {
				continue
			}
			canvas.Set(cx+dx, cy+dy, px)
		}
	}
}
