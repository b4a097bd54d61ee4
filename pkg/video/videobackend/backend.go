package videobackend

import (
	"context"

	"github.com/spf13/afero"
	"github.com/tauraamui/wormhole/pkg/encoder"
	"github.com/tauraamui/wormhole/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

var fs = afero.NewOsFs()

var (
	ErrEndOfStream   = xerror.NewWithKind("end_of_stream", "video source has no more frames")
	ErrSourceMissing = xerror.NewWithKind("source_missing", "video source does not exist")
)

type Connection interface {
	UUID() string
	// Read returns the next decoded frame, or ErrEndOfStream once a
	// finite source runs out.
	Read() (videoframe.Frame, error)
	// Rewind seeks a finite source back to its first frame.
	Rewind() error
	FPS() float64
	IsOpen() bool
	Close() error
}

type Backend interface {
	Connect(context.Context, string) (Connection, error)
	NewEncoder() encoder.Encoder
}

func Default() Backend {
	return OpenCV()
}

func OpenCV() Backend {
	return &openCVBackend{}
}

func Mock() Backend {
	return &mockVideoBackend{}
}

func Resolve(t string) Backend {
	switch t {
	case "mock":
		return Mock()
	default:
		return Default()
	}
}
