package videoframe_test

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/matryer/is"
	"github.com/tauraamui/wormhole/pkg/video/videoframe"
)

func TestNewFrameHasBufferMatchingShape(t *testing.T) {
	is := is.New(t)
	f := videoframe.New(4, 3, videoframe.BGR)
	is.Equal(len(f.Pix), 4*3*3)
	is.NoErr(f.Validate())
	is.Equal(f.Dimensions(), videoframe.Dimensions{W: 4, H: 3})
}

func TestValidateRejectsBadShapes(t *testing.T) {
	is := is.New(t)

	err := videoframe.Frame{}.Validate()
	is.True(errors.Is(err, videoframe.ErrInvalidShape))

	err = videoframe.Frame{Width: 2, Height: 2, Channels: 2, Pix: make([]byte, 8)}.Validate()
	is.True(errors.Is(err, videoframe.ErrInvalidShape))

	err = videoframe.Frame{Width: 2, Height: 2, Channels: 3, Pix: make([]byte, 11)}.Validate()
	is.True(errors.Is(err, videoframe.ErrInvalidShape))
}

func TestCloneDoesNotShareBuffer(t *testing.T) {
	is := is.New(t)
	f := videoframe.New(2, 2, videoframe.BGR)
	f.Seq = 9
	c := f.Clone()
	c.Set(0, 0, []byte{1, 2, 3})

	is.Equal(f.At(0, 0), []byte{0, 0, 0})
	is.Equal(c.At(0, 0), []byte{1, 2, 3})
	is.Equal(c.Seq, uint64(9))
}

func TestSetIgnoresOutOfBoundsWrites(t *testing.T) {
	is := is.New(t)
	f := videoframe.New(2, 2, videoframe.Gray)
	f.Set(-1, 0, []byte{5})
	f.Set(2, 1, []byte{5})
	is.Equal(f.Pix, []byte{0, 0, 0, 0})
}

func TestImageRoundTripKeepsChannelOrder(t *testing.T) {
	is := is.New(t)
	f := videoframe.New(2, 1, videoframe.BGR)
	f.Set(0, 0, []byte{10, 20, 30})
	f.Set(1, 0, []byte{200, 100, 50})

	img := f.ToImage()
	is.Equal(img.RGBAAt(0, 0), color.RGBA{R: 30, G: 20, B: 10, A: 255})

	back := videoframe.FromImage(img, videoframe.BGR)
	is.Equal(back.Pix, f.Pix)
}

func TestFromImageConvertsGenericImages(t *testing.T) {
	is := is.New(t)
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.NRGBA{R: 1, G: 2, B: 3, A: 255})

	f := videoframe.FromImage(img, videoframe.BGRA)
	is.Equal(f.Pix, []byte{3, 2, 1, 255})
}
