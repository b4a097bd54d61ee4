package filter

import (
	"image"

	"github.com/tauraamui/wormhole/pkg/video/videoframe"
	"golang.org/x/image/draw"
)

// Invert flips every colour sample, alpha is left alone.
var Invert = Func(func(frame videoframe.Frame, _ uint64) (videoframe.Frame, error) {
	if err := frame.Validate(); err != nil {
		return videoframe.Frame{}, err
	}
	out := frame.Clone()
	for i := range out.Pix {
		if frame.Channels == videoframe.BGRA && i%4 == 3 {
			continue
		}
		out.Pix[i] = 255 - out.Pix[i]
	}
	return out, nil
})

// Grayscale replaces each pixel with its luma while keeping the
// channel layout, so downstream encoders see the same shape.
var Grayscale = Func(func(frame videoframe.Frame, _ uint64) (videoframe.Frame, error) {
	if err := frame.Validate(); err != nil {
		return videoframe.Frame{}, err
	}
	if frame.Channels == videoframe.Gray {
		return frame, nil
	}
	out := frame.Clone()
	for o := 0; o < len(out.Pix); o += out.Channels {
		b, g, r := uint32(out.Pix[o]), uint32(out.Pix[o+1]), uint32(out.Pix[o+2])
		// BT.601 weights, same as OpenCV's BGR2GRAY
		y := byte((299*r + 587*g + 114*b + 500) / 1000)
		out.Pix[o], out.Pix[o+1], out.Pix[o+2] = y, y, y
	}
	return out, nil
})

// Resize scales frames to a fixed size with bilinear interpolation.
type Resize struct {
	Width, Height int
}

func (r Resize) Apply(frame videoframe.Frame, _ uint64) (videoframe.Frame, error) {
	if err := frame.Validate(); err != nil {
		return videoframe.Frame{}, err
	}
	if r.Width <= 0 || r.Height <= 0 || (r.Width == frame.Width && r.Height == frame.Height) {
		return frame, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.BiLinear.Scale(dst, dst.Bounds(), frame.ToImage(), image.Rect(0, 0, frame.Width, frame.Height), draw.Src, nil)
	out := videoframe.FromImage(dst, frame.Channels)
	out.Seq = frame.Seq
	return out, nil
}

// Scale resizes frames relative to their own dimensions.
type Scale struct {
	Factor float64
}

func (s Scale) Apply(frame videoframe.Frame, index uint64) (videoframe.Frame, error) {
	if s.Factor <= 0 || s.Factor == 1 {
		return frame, frame.Validate()
	}
	w := int(float64(frame.Width) * s.Factor)
	h := int(float64(frame.Height) * s.Factor)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return Resize{Width: w, Height: h}.Apply(frame, index)
}
