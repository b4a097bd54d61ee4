package wormhole

import (
	"context"

	"github.com/tauraamui/wormhole/pkg/configdef"
	"github.com/tauraamui/wormhole/pkg/filter"
	"github.com/tauraamui/wormhole/pkg/pacing"
	"github.com/tauraamui/wormhole/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

var ErrUnknownFilter = xerror.NewWithKind("unknown_filter", "unknown filter kind")

// buildChain turns filter definitions into a chain, returning the
// deferred ones separately so they can be appended once live.
func buildChain(name string, defs []configdef.Filter) (*filter.Chain, []filter.Filter, error) {
	chain := filter.NewChain()
	var deferred []filter.Filter
	for _, def := range defs {
		f, err := buildFilter(name, def)
		if err != nil {
			return nil, nil, err
		}
		if def.Deferred {
			deferred = append(deferred, f)
			continue
		}
		chain.Append(f)
	}
	return chain, deferred, nil
}

func buildFilter(name string, def configdef.Filter) (filter.Filter, error) {
	switch def.Kind {
	case configdef.FilterMosaic:
		m := filter.NewMosaic()
		if def.CellWidth > 0 {
			m.CellWidth = def.CellWidth
		}
		if def.CellHeight > 0 {
			m.CellHeight = def.CellHeight
		}
		if def.Radius > 0 {
			m.Radius = def.Radius
		}
		if def.Thickness != 0 {
			m.Thickness = def.Thickness
		}
		return m, nil
	case configdef.FilterWarp:
		w := filter.NewRowWarp()
		if def.Amplitude != 0 {
			w.Amplitude = def.Amplitude
		}
		if def.Wavelength > 0 {
			w.Wavelength = def.Wavelength
		}
		if def.PhaseStep != 0 {
			w.PhaseStep = def.PhaseStep
		}
		return w, nil
	case configdef.FilterInvert:
		return filter.Invert, nil
	case configdef.FilterGrayscale:
		return filter.Grayscale, nil
	case configdef.FilterWatermark:
		text := def.Text
		if len(text) == 0 {
			text = "Wormhole"
		}
		return filter.Watermark(text), nil
	case configdef.FilterDebugInfo:
		return filter.DebugInfo(name), nil
	case configdef.FilterFPSOverlay:
		return meteredFPSOverlay(), nil
	default:
		return nil, xerror.Errorf("%w: %s", ErrUnknownFilter, def.Kind)
	}
}

// meteredFPSOverlay prints the rate at which frames pass through it,
// which on a feed chain is the rate the feed publishes at.
func meteredFPSOverlay() filter.Filter {
	meter := pacing.NewController(0, pacing.Options{})
	overlay := filter.FPSOverlay(meter.FPS)
	return filter.Func(func(frame videoframe.Frame, index uint64) (videoframe.Frame, error) {
		if err := meter.Next(context.Background()); err != nil {
			return videoframe.Frame{}, err
		}
		return overlay.Apply(frame, index)
	})
}
