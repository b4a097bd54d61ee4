// Package encoder compresses raw frames into the payloads carried by a
// multipart stream.
package encoder

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/tauraamui/wormhole/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

const (
	MinQuality     = 1
	MaxQuality     = 100
	DefaultQuality = 100

	ContentTypeJPEG = "image/jpeg"
)

var ErrEncode = xerror.NewWithKind("encode_error", "unable to encode frame")

// Flags trade encode latency for a small amount of quality. An encoder
// which has no faster path ignores them.
type Flags uint8

const (
	FastUpsample Flags = 1 << iota
	FastDCT
)

func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}

type Encoder interface {
	Encode(frame videoframe.Frame, quality int, flags Flags) ([]byte, error)
	ContentType() string
}

// Check validates the inputs common to every encoder.
func Check(frame videoframe.Frame, quality int) error {
	if err := frame.Validate(); err != nil {
		return xerror.Errorf("%w: %v", ErrEncode, err)
	}
	if quality < MinQuality || quality > MaxQuality {
		return xerror.Errorf("%w: quality %d outside of %d..%d", ErrEncode, quality, MinQuality, MaxQuality)
	}
	return nil
}

// JPEG returns the pure Go encoder, used wherever OpenCV is not.
func JPEG() Encoder {
	return jpegEncoder{}
}

type jpegEncoder struct{}

func (jpegEncoder) ContentType() string { return ContentTypeJPEG }

func (jpegEncoder) Encode(frame videoframe.Frame, quality int, _ Flags) ([]byte, error) {
	if err := Check(frame, quality); err != nil {
		return nil, err
	}

	var img image.Image
	if frame.Channels == videoframe.Gray {
		img = &image.Gray{Pix: frame.Pix, Stride: frame.Width, Rect: image.Rect(0, 0, frame.Width, frame.Height)}
	} else {
		img = frame.ToImage()
	}

	buf := bytes.Buffer{}
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, xerror.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}
