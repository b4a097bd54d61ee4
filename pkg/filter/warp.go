package filter

import (
	"math"

	"github.com/tauraamui/wormhole/pkg/video/videoframe"
)

const (
	DefaultAmplitude  = 16.0
	DefaultWavelength = 150.0
)

// RowWarp shears every column vertically by a sine wave whose phase
// advances PhaseStep radians per frame index.
type RowWarp struct {
	Amplitude  float64
	Wavelength float64
	PhaseStep  float64
}

func NewRowWarp() RowWarp {
	return RowWarp{Amplitude: DefaultAmplitude, Wavelength: DefaultWavelength, PhaseStep: 1}
}

func (w RowWarp) Apply(frame videoframe.Frame, index uint64) (videoframe.Frame, error) {
	return w.Warp(frame, float64(index)*w.PhaseStep)
}

// Offset is the vertical shift applied to column j at the given phase.
func (w RowWarp) Offset(j int, phase float64) int {
	wavelength := w.Wavelength
	if wavelength == 0 {
		wavelength = DefaultWavelength
	}
	return int(math.Round(w.Amplitude * math.Sin(2*math.Pi*float64(j)/wavelength+phase)))
}

// Warp applies the shear with an explicit phase in radians.
func (w RowWarp) Warp(frame videoframe.Frame, phase float64) (videoframe.Frame, error) {
	if err := frame.Validate(); err != nil {
		return videoframe.Frame{}, err
	}

	h := frame.Height
	output := videoframe.NewLike(frame)
	for j := 0; j < frame.Width; j++ {
		offset := w.Offset(j, phase)
		for i := 0; i < h; i++ {
			src := i + offset
			if src >= h {
				continue
			}
			output.Set(j, i, frame.At(j, ((src%h)+h)%h))
		}
	}
	return output, nil
}
