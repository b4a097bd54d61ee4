package filter_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/matryer/is"
	"github.com/tauraamui/wormhole/pkg/filter"
	"github.com/tauraamui/wormhole/pkg/video/videoframe"
)

func patternedFrame(w, h, channels int) videoframe.Frame {
	f := videoframe.New(w, h, channels)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := make([]byte, channels)
			for c := range px {
				px[c] = byte(1 + (x*7+y*13+c*31)%250)
			}
			f.Set(x, y, px)
		}
	}
	return f
}

func tagFilter(tag byte) filter.Filter {
	return filter.Func(func(f videoframe.Frame, _ uint64) (videoframe.Frame, error) {
		out := f.Clone()
		out.Pix = append(out.Pix, tag)
		return out, nil
	})
}

func TestChainAppliesFiltersInInsertionOrder(t *testing.T) {
	is := is.New(t)
	chain := filter.NewChain(tagFilter(1), tagFilter(2))
	chain.Append(tagFilter(3))

	out, err := chain.Apply(videoframe.Frame{}, 0)
	is.NoErr(err)
	is.Equal(out.Pix, []byte{1, 2, 3})
	is.Equal(chain.Len(), 3)
}

func TestNilChainPassesFrameThrough(t *testing.T) {
	is := is.New(t)
	var chain *filter.Chain
	in := patternedFrame(2, 2, 3)
	out, err := chain.Apply(in, 4)
	is.NoErr(err)
	is.Equal(out.Pix, in.Pix)
}

func TestChainWrapsStageErrorsAsFilterErrors(t *testing.T) {
	is := is.New(t)
	chain := filter.NewChain(filter.Func(func(videoframe.Frame, uint64) (videoframe.Frame, error) {
		return videoframe.Frame{}, errors.New("boom")
	}))

	_, err := chain.Apply(patternedFrame(2, 2, 3), 0)
	is.True(errors.Is(err, filter.ErrFilter))
}

func TestAppendDuringApplyIsSeenOnNextApplyOnly(t *testing.T) {
	is := is.New(t)
	chain := filter.NewChain()
	appended := false
	chain.Append(filter.Func(func(f videoframe.Frame, _ uint64) (videoframe.Frame, error) {
		if !appended {
			appended = true
			chain.Append(tagFilter(9))
		}
		return f, nil
	}))

	out, err := chain.Apply(videoframe.Frame{}, 0)
	is.NoErr(err)
	is.Equal(len(out.Pix), 0) // in flight apply keeps its snapshot

	out, err = chain.Apply(videoframe.Frame{}, 1)
	is.NoErr(err)
	is.Equal(out.Pix, []byte{9})
}

func TestConcurrentAppendsAreNeverLost(t *testing.T) {
	is := is.New(t)
	chain := filter.NewChain()
	wg := sync.WaitGroup{}
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			chain.Append(tagFilter(1))
		}()
		go func() {
			defer wg.Done()
			if _, err := chain.Apply(videoframe.Frame{}, 0); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	is.Equal(chain.Len(), 32)
}

func TestInvertDoesNotMutateInput(t *testing.T) {
	is := is.New(t)
	in := patternedFrame(3, 3, 3)
	original := in.Clone()

	out, err := filter.Invert.Apply(in, 0)
	is.NoErr(err)
	is.Equal(in.Pix, original.Pix)
	for i := range out.Pix {
		is.Equal(out.Pix[i], 255-in.Pix[i])
	}
}

func TestGrayscaleEqualisesChannels(t *testing.T) {
	is := is.New(t)
	in := patternedFrame(4, 2, 3)
	out, err := filter.Grayscale.Apply(in, 0)
	is.NoErr(err)
	is.Equal(len(out.Pix), len(in.Pix))
	for o := 0; o < len(out.Pix); o += 3 {
		is.Equal(out.Pix[o], out.Pix[o+1])
		is.Equal(out.Pix[o+1], out.Pix[o+2])
	}
}

func TestResizeProducesRequestedShape(t *testing.T) {
	is := is.New(t)
	in := patternedFrame(64, 32, 3)
	in.Seq = 5
	out, err := filter.Resize{Width: 16, Height: 8}.Apply(in, 0)
	is.NoErr(err)
	is.NoErr(out.Validate())
	is.Equal(out.Dimensions(), videoframe.Dimensions{W: 16, H: 8})
	is.Equal(out.Seq, uint64(5))
}

func TestOverlayKeepsShapeAndLeavesInputAlone(t *testing.T) {
	is := is.New(t)
	in := videoframe.New(200, 160, 3)
	original := in.Clone()

	out, err := filter.NewChain(
		filter.Watermark("wormhole"), filter.DebugInfo("test"), filter.FPSOverlay(func() float64 { return 9.5 }),
	).Apply(in, 3)
	is.NoErr(err)
	is.NoErr(out.Validate())
	is.Equal(out.Dimensions(), in.Dimensions())
	is.Equal(in.Pix, original.Pix)

	drawn := false
	for _, s := range out.Pix {
		if s != 0 {
			drawn = true
			break
		}
	}
	is.True(drawn)
}

func TestFiltersRejectInvalidFrames(t *testing.T) {
	is := is.New(t)
	bad := videoframe.Frame{Width: 2, Height: 2, Channels: 3}
	for _, f := range []filter.Filter{
		filter.NewMosaic(), filter.NewRowWarp(), filter.Invert, filter.Grayscale,
		filter.Resize{Width: 1, Height: 1}, filter.Watermark("x"),
	} {
		_, err := f.Apply(bad, 0)
		is.True(errors.Is(err, videoframe.ErrInvalidShape))
	}
}

func TestScaleResizesRelativeToInput(t *testing.T) {
	is := is.New(t)
	in := patternedFrame(64, 30, 3)

	out, err := filter.Scale{Factor: 0.5}.Apply(in, 0)
	is.NoErr(err)
	is.Equal(out.Dimensions(), videoframe.Dimensions{W: 32, H: 15})

	out, err = filter.Scale{Factor: 0.001}.Apply(in, 0)
	is.NoErr(err)
	is.Equal(out.Dimensions(), videoframe.Dimensions{W: 1, H: 1})

	out, err = filter.Scale{}.Apply(in, 0)
	is.NoErr(err)
	is.Equal(out.Pix, in.Pix)
}

func TestNestedChainSeesLaterAppends(t *testing.T) {
	is := is.New(t)
	inner := filter.NewChain(tagFilter(1))
	outer := filter.NewChain(tagFilter(0), inner)

	inner.Append(tagFilter(2))
	out, err := outer.Apply(videoframe.Frame{}, 0)
	is.NoErr(err)
	is.Equal(out.Pix, []byte{0, 1, 2})
}
