package videobackend

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/tauraamui/wormhole/pkg/encoder"
	"github.com/tauraamui/wormhole/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
	"gocv.io/x/gocv"
)

type openCVBackend struct{}

func (b *openCVBackend) Connect(cancel context.Context, addr string) (Connection, error) {
	if err := ensureLocalSourceExists(addr); err != nil {
		return nil, err
	}
	conn := openCVConnection{addr: addr}
	err := conn.connect(cancel, addr)
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (b *openCVBackend) NewEncoder() encoder.Encoder {
	return openCVEncoder{}
}

// addresses without a scheme are treated as files on disk
func ensureLocalSourceExists(addr string) error {
	if len(addr) == 0 {
		return xerror.Errorf("%w: address is undefined", ErrSourceMissing)
	}
	if strings.Contains(addr, "://") {
		return nil
	}
	exists, err := afero.Exists(fs, addr)
	if err != nil {
		return xerror.Errorf("unable to check video source %s: %w", addr, err)
	}
	if !exists {
		return xerror.Errorf("%w: %s", ErrSourceMissing, addr)
	}
	return nil
}

type openCVConnection struct {
	uuid   string
	addr   string
	mu     sync.Mutex
	isOpen bool
	vc     *gocv.VideoCapture
}

func (c *openCVConnection) connect(cancel context.Context, addr string) error {
	connAndError := make(chan openVideoStreamResult, 1)
	go openVideoStream(addr, connAndError)
	select {
	case r := <-connAndError:
		if r.err != nil {
			return r.err
		}
		c.vc = r.vc
		c.isOpen = true
		return nil
	case <-cancel.Done():
		return xerror.New("connection cancelled")
	}
}

type openVideoStreamResult struct {
	vc  *gocv.VideoCapture
	err error
}

func openVideoStream(addr string, d chan openVideoStreamResult) {
	vc, err := openVideoCapture(addr)
	d <- openVideoStreamResult{vc: vc, err: err}
}

var openVideoCapture = func(addr string) (*gocv.VideoCapture, error) {
	return gocv.OpenVideoCapture(addr)
}

var readFromVideoConnection = func(vc *gocv.VideoCapture, mat *gocv.Mat) bool {
	if vc.IsOpened() {
		return vc.Read(mat)
	}
	return false
}

func (c *openCVConnection) UUID() string {
	if len(c.uuid) == 0 {
		c.uuid = uuid.NewString()
	}
	return c.uuid
}

func (c *openCVConnection) Read() (videoframe.Frame, error) {
	mat := gocv.NewMat()
	defer mat.Close()

	c.mu.Lock()
	ok := readFromVideoConnection(c.vc, &mat)
	c.mu.Unlock()
	if !ok || mat.Empty() {
		return videoframe.Frame{}, xerror.Errorf("%w: %s", ErrEndOfStream, c.addr)
	}
	return matToFrame(mat)
}

func (c *openCVConnection) Rewind() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vc.Set(gocv.VideoCapturePosFrames, 0)
	return nil
}

func (c *openCVConnection) FPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vc.Get(gocv.VideoCaptureFPS)
}

func (c *openCVConnection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isOpen {
		return c.vc.IsOpened()
	}
	return false
}

func (c *openCVConnection) Close() error {
	c.mu.Lock()
	c.isOpen = false
	c.mu.Unlock()
	return c.vc.Close()
}

func matType(channels int) (gocv.MatType, error) {
	switch channels {
	case videoframe.Gray:
		return gocv.MatTypeCV8UC1, nil
	case videoframe.BGR:
		return gocv.MatTypeCV8UC3, nil
	case videoframe.BGRA:
		return gocv.MatTypeCV8UC4, nil
	default:
		return 0, xerror.Errorf("%w: unsupported channel count %d", videoframe.ErrInvalidShape, channels)
	}
}

func matToFrame(mat gocv.Mat) (videoframe.Frame, error) {
	if _, err := matType(mat.Channels()); err != nil {
		return videoframe.Frame{}, err
	}
	frame := videoframe.Frame{
		Width:    mat.Cols(),
		Height:   mat.Rows(),
		Channels: mat.Channels(),
		Pix:      mat.ToBytes(),
	}
	return frame, frame.Validate()
}

func frameToMat(frame videoframe.Frame) (gocv.Mat, error) {
	mt, err := matType(frame.Channels)
	if err != nil {
		return gocv.Mat{}, err
	}
	return gocv.NewMatFromBytes(frame.Height, frame.Width, mt, frame.Pix)
}

type openCVEncoder struct{}

func (openCVEncoder) ContentType() string { return encoder.ContentTypeJPEG }

func (openCVEncoder) Encode(frame videoframe.Frame, quality int, flags encoder.Flags) ([]byte, error) {
	if err := encoder.Check(frame, quality); err != nil {
		return nil, err
	}

	mat, err := frameToMat(frame)
	if err != nil {
		return nil, xerror.Errorf("%w: %v", encoder.ErrEncode, err)
	}
	defer mat.Close()

	// huffman table optimisation costs time, skip it when asked to be fast
	optimize := 1
	if flags.Has(encoder.FastDCT) || flags.Has(encoder.FastUpsample) {
		optimize = 0
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{
		int(gocv.IMWriteJpegQuality), quality,
		int(gocv.IMWriteJpegOptimize), optimize,
	})
	if err != nil {
		return nil, xerror.Errorf("%w: %v", encoder.ErrEncode, err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}
