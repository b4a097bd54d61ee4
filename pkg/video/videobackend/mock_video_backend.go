package videobackend

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
	"time"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/google/uuid"
	"github.com/tauraamui/wormhole/pkg/encoder"
	"github.com/tauraamui/wormhole/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

const mockFPS = 30

type mockVideoBackend struct{}

func (b *mockVideoBackend) Connect(cancel context.Context, addr string) (Connection, error) {
	if err := cancel.Err(); err != nil {
		return nil, xerror.New("connection cancelled")
	}
	return &mockVideoConnection{title: addr, isOpen: true}, nil
}

func (b *mockVideoBackend) NewEncoder() encoder.Encoder {
	return encoder.JPEG()
}

type mockVideoConnection struct {
	uuid   string
	title  string
	mu     sync.Mutex
	isOpen bool
	frames uint64
	canvas image.Image
}

func (mvc *mockVideoConnection) UUID() string {
	if len(mvc.uuid) == 0 {
		mvc.uuid = uuid.NewString()
	}
	return mvc.uuid
}

func (mvc *mockVideoConnection) Read() (videoframe.Frame, error) {
	mvc.mu.Lock()
	defer mvc.mu.Unlock()

	if !mvc.isOpen {
		return videoframe.Frame{}, xerror.Errorf("%w: mock connection closed", ErrEndOfStream)
	}
	if mvc.canvas == nil {
		mvc.canvas = renderBaseFrameCanvas()
	}
	mvc.frames++

	img, err := drawTextLayerOntoBaseFrameClone(mvc.canvas, mvc.title)
	if err != nil {
		return videoframe.Frame{}, err
	}
	return videoframe.FromImage(img, videoframe.BGR), nil
}

func (mvc *mockVideoConnection) Rewind() error { return nil }

func (mvc *mockVideoConnection) FPS() float64 { return mockFPS }

func (mvc *mockVideoConnection) IsOpen() bool {
	mvc.mu.Lock()
	defer mvc.mu.Unlock()
	return mvc.isOpen
}

func (mvc *mockVideoConnection) Close() error {
	mvc.mu.Lock()
	defer mvc.mu.Unlock()
	mvc.isOpen = false
	mvc.canvas = nil
	return nil
}

func drawTextLayerOntoBaseFrameClone(base image.Image, title string) (*image.RGBA, error) {
	baseClone := cloneImage(base)
	lines := []struct {
		y    int
		text string
	}{
		{50, "WORMHOLE_TEST_PATTERN"},
		{180, title},
		{310, time.Now().Format("2006-01-02 15:04:05.000")},
	}
	for _, line := range lines {
		if err := drawText(baseClone, 5, line.y, line.text); err != nil {
			return nil, xerror.Errorf("unable to draw text onto in-mem test pattern: %w", err)
		}
	}
	return baseClone, nil
}

func renderBaseFrameCanvas() image.Image {
	var w, h int = 600, 400
	var hw, hh float64 = float64(w / 2), float64(h / 2)
	r := 200.0
	θ := 2 * math.Pi / 3
	cr := &circle{hw - r*math.Sin(0), hh - r*math.Cos(0), 300}
	cg := &circle{hw - r*math.Sin(θ), hh - r*math.Cos(θ), 300}
	cb := &circle{hw - r*math.Sin(-θ), hh - r*math.Cos(-θ), 300}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{
				cr.Brightness(float64(x), float64(y)),
				cg.Brightness(float64(x), float64(y)),
				cb.Brightness(float64(x), float64(y)),
				255,
			})
		}
	}
	return img
}

func cloneImage(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}

var (
	patternFont     *truetype.Font
	patternFontErr  error
	patternFontOnce sync.Once
)

func drawText(canvas *image.RGBA, x, y int, text string) error {
	patternFontOnce.Do(func() {
		patternFont, patternFontErr = freetype.ParseFont(goregular.TTF)
	})
	if patternFontErr != nil {
		return patternFontErr
	}

	fontDrawer := &font.Drawer{
		Dst: canvas,
		Src: image.White,
		Face: truetype.NewFace(patternFont, &truetype.Options{
			Size:    48,
			Hinting: font.HintingFull,
		}),
	}
	textBounds, _ := fontDrawer.BoundString(text)
	textHeight := textBounds.Max.Y - textBounds.Min.Y
	fontDrawer.Dot = fixed.Point26_6{
		X: fixed.I(x),
		Y: fixed.I(y-textHeight.Ceil())/2 + fixed.I(textHeight.Ceil()),
	}
	fontDrawer.DrawString(text)
	return nil
}

type circle struct {
	X, Y, R float64
}

func (c *circle) Brightness(x, y float64) uint8 {
	var dx, dy float64 = c.X - x, c.Y - y
	if math.Sqrt(dx*dx+dy*dy)/c.R > 1 {
		return 0
	}
	return 255
}
