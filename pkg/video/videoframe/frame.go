package videoframe

import (
	"image"
	"image/color"

	"github.com/tauraamui/xerror"
)

const (
	Gray = 1
	BGR  = 3
	BGRA = 4
)

var ErrInvalidShape = xerror.NewWithKind("invalid_frame_shape", "frame shape is invalid")

type Dimensions struct {
	W, H int
}

// Frame is a rectangular buffer of interleaved 8 bit samples stored in
// OpenCV channel order (BGR/BGRA). Once published a frame is shared
// read only, anything wanting to modify Pix must Clone first.
type Frame struct {
	Width    int
	Height   int
	Channels int
	Seq      uint64
	Pix      []byte
}

// New allocates a blank (all zero) frame.
func New(w, h, channels int) Frame {
	if w < 0 || h < 0 || channels < 0 {
		return Frame{}
	}
	return Frame{Width: w, Height: h, Channels: channels, Pix: make([]byte, w*h*channels)}
}

// NewLike allocates a blank frame with the same shape and sequence as f.
func NewLike(f Frame) Frame {
	out := New(f.Width, f.Height, f.Channels)
	out.Seq = f.Seq
	return out
}

func (f Frame) Dimensions() Dimensions {
	return Dimensions{W: f.Width, H: f.Height}
}

// Validate checks the frame has a drawable shape and a buffer matching it.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return xerror.Errorf("%w: zero sized %dx%d", ErrInvalidShape, f.Width, f.Height)
	}
	switch f.Channels {
	case Gray, BGR, BGRA:
	default:
		return xerror.Errorf("%w: unsupported channel count %d", ErrInvalidShape, f.Channels)
	}
	if len(f.Pix) != f.Width*f.Height*f.Channels {
		return xerror.Errorf(
			"%w: buffer holds %d samples, expected %d", ErrInvalidShape, len(f.Pix), f.Width*f.Height*f.Channels,
		)
	}
	return nil
}

func (f Frame) Clone() Frame {
	c := f
	c.Pix = make([]byte, len(f.Pix))
	copy(c.Pix, f.Pix)
	return c
}

func (f Frame) offset(x, y int) int {
	return (y*f.Width + x) * f.Channels
}

func (f Frame) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < f.Width && y < f.Height
}

// At returns the samples of the pixel at x, y. The returned slice
// aliases Pix.
func (f Frame) At(x, y int) []byte {
	o := f.offset(x, y)
	return f.Pix[o : o+f.Channels]
}

// Set writes px into the pixel at x, y. Out of bounds writes are ignored.
func (f Frame) Set(x, y int, px []byte) {
	if !f.In(x, y) {
		return
	}
	copy(f.Pix[f.offset(x, y):f.offset(x, y)+f.Channels], px)
}

// ToImage converts the frame into a freshly allocated RGBA image.
func (f Frame) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			px := f.At(x, y)
			o := img.PixOffset(x, y)
			switch f.Channels {
			case Gray:
				img.Pix[o], img.Pix[o+1], img.Pix[o+2] = px[0], px[0], px[0]
				img.Pix[o+3] = 0xff
			case BGR:
				img.Pix[o], img.Pix[o+1], img.Pix[o+2] = px[2], px[1], px[0]
				img.Pix[o+3] = 0xff
			case BGRA:
				img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = px[2], px[1], px[0], px[3]
			}
		}
	}
	return img
}

// FromImage converts any image into a frame with the requested channel count.
func FromImage(img image.Image, channels int) Frame {
	b := img.Bounds()
	f := New(b.Dx(), b.Dy(), channels)
	if rgba, ok := img.(*image.RGBA); ok {
		fromRGBA(rgba, f)
		return f
	}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			o := f.offset(x, y)
			switch channels {
			case Gray:
				f.Pix[o] = color.GrayModel.Convert(c).(color.Gray).Y
			case BGR:
				f.Pix[o], f.Pix[o+1], f.Pix[o+2] = c.B, c.G, c.R
			case BGRA:
				f.Pix[o], f.Pix[o+1], f.Pix[o+2], f.Pix[o+3] = c.B, c.G, c.R, c.A
			}
		}
	}
	return f
}

func fromRGBA(img *image.RGBA, f Frame) {
	b := img.Bounds()
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			s := img.Pix[img.PixOffset(b.Min.X+x, b.Min.Y+y):]
			o := f.offset(x, y)
			switch f.Channels {
			case Gray:
				f.Pix[o] = color.GrayModel.Convert(color.RGBA{s[0], s[1], s[2], s[3]}).(color.Gray).Y
			case BGR:
				f.Pix[o], f.Pix[o+1], f.Pix[o+2] = s[2], s[1], s[0]
			case BGRA:
				f.Pix[o], f.Pix[o+1], f.Pix[o+2], f.Pix[o+3] = s[2], s[1], s[0], s[3]
			}
		}
	}
}
