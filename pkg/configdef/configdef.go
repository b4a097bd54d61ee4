package configdef

import (
	"strings"

	"github.com/tauraamui/wormhole/pkg/stream"
	"github.com/tauraamui/xerror"
	"gopkg.in/dealancer/validate.v2"
)

const (
	FilterMosaic     = "mosaic"
	FilterWarp       = "warp"
	FilterInvert     = "invert"
	FilterGrayscale  = "grayscale"
	FilterWatermark  = "watermark"
	FilterDebugInfo  = "debug_info"
	FilterFPSOverlay = "fps_overlay"
)

type Filter struct {
	Kind       string  `json:"kind" validate:"one_of=mosaic,warp,invert,grayscale,watermark,debug_info,fps_overlay"`
	CellWidth  int     `json:"cell_width,omitempty" validate:"gte=0"`
	CellHeight int     `json:"cell_height,omitempty" validate:"gte=0"`
	Radius     int     `json:"radius,omitempty" validate:"gte=0"`
	Thickness  int     `json:"thickness,omitempty"`
	Amplitude  float64 `json:"amplitude,omitempty"`
	Wavelength float64 `json:"wavelength,omitempty" validate:"gte=0"`
	PhaseStep  float64 `json:"phase_step,omitempty"`
	Text       string  `json:"text,omitempty"`
	// Deferred filters are appended once the route is already serving.
	Deferred bool `json:"deferred,omitempty"`
}

type Source struct {
	Name    string  `json:"name" validate:"empty=false"`
	Address string  `json:"address" validate:"empty=false"`
	FPS     float64 `json:"fps" validate:"gte=0 & lte=240"`
	Loop    bool    `json:"loop"`
}

type Feed struct {
	Name     string   `json:"name" validate:"empty=false"`
	Parent   string   `json:"parent" validate:"empty=false"`
	Width    int      `json:"width,omitempty" validate:"gte=0"`
	Height   int      `json:"height,omitempty" validate:"gte=0"`
	Scale    float64  `json:"scale,omitempty" validate:"gte=0 & lte=1"`
	MaxFPS   float64  `json:"max_fps,omitempty" validate:"gte=0"`
	PrintFPS bool     `json:"print_fps,omitempty"`
	Filters  []Filter `json:"filters,omitempty"`
}

// Hard reports whether the feed resizes or caps its rate, needing its
// own pacing rather than following its parent.
func (f Feed) Hard() bool {
	return f.Width > 0 || f.Height > 0 || f.Scale > 0 || f.MaxFPS > 0
}

type Stream struct {
	Route      string   `json:"route" validate:"empty=false"`
	Feed       string   `json:"feed" validate:"empty=false"`
	Boundary   string   `json:"boundary,omitempty"`
	Quality    int      `json:"quality" validate:"gte=1 & lte=100"`
	TargetFPS  float64  `json:"target_fps" validate:"gte=0"`
	PrintFPS   bool     `json:"print_fps,omitempty"`
	FastEncode bool     `json:"fast_encode,omitempty"`
	BackoffMS  int      `json:"backoff_ms" validate:"gte=0"`
	Filters    []Filter `json:"filters,omitempty"`
}

type History struct {
	Enabled    bool `json:"enabled"`
	MaxRecords int  `json:"max_records" validate:"gte=0"`
}

type Dashboard struct {
	Enabled    bool `json:"enabled"`
	IntervalMS int  `json:"interval_ms" validate:"gte=0"`
	MaxClients int  `json:"max_clients" validate:"gte=0"`
}

type Values struct {
	Host      string    `json:"host"`
	Port      int       `json:"port" validate:"gte=1 & lte=65535"`
	Debug     bool      `json:"debug"`
	Backend   string    `json:"backend" validate:"one_of=opencv,mock"`
	Sources   []Source  `json:"sources"`
	Feeds     []Feed    `json:"feeds"`
	Streams   []Stream  `json:"streams"`
	History   History   `json:"history"`
	Dashboard Dashboard `json:"dashboard"`
}

// RunValidate checks field constraints and then the relationships
// between sources, feeds and streams.
func (v Values) RunValidate() error {
	if err := validate.Validate(&v); err != nil {
		return xerror.Errorf("validation failed: %w", err)
	}
	return v.Validate()
}

func (v Values) Validate() error {
	const validationErrorHeader = "validation failed: %w"
	if len(v.Sources) == 0 {
		return xerror.Errorf(validationErrorHeader, xerror.New("at least one source is required"))
	}
	if hasDupFeedNames(v.Sources, v.Feeds) {
		return xerror.Errorf(validationErrorHeader, xerror.New("source and feed names must be unique"))
	}
	if err := checkFeedParents(v.Sources, v.Feeds); err != nil {
		return xerror.Errorf(validationErrorHeader, err)
	}
	if err := checkStreams(v.Sources, v.Feeds, v.Streams); err != nil {
		return xerror.Errorf(validationErrorHeader, err)
	}
	return nil
}

func hasDupFeedNames(sources []Source, feeds []Feed) bool {
	seen := map[string]struct{}{}
	for _, name := range feedNames(sources, feeds) {
		if _, ok := seen[name]; ok {
			return true
		}
		seen[name] = struct{}{}
	}
	return false
}

func feedNames(sources []Source, feeds []Feed) []string {
	names := make([]string, 0, len(sources)+len(feeds))
	for _, s := range sources {
		names = append(names, s.Name)
	}
	for _, f := range feeds {
		names = append(names, f.Name)
	}
	return names
}

func checkFeedParents(sources []Source, feeds []Feed) error {
	parents := map[string]string{}
	for _, s := range sources {
		parents[s.Name] = ""
	}
	for _, f := range feeds {
		parents[f.Name] = f.Parent
	}

	for _, f := range feeds {
		if _, ok := parents[f.Parent]; !ok {
			return xerror.Errorf("feed %s has unknown parent %s", f.Name, f.Parent)
		}
		// walk up to a source, a revisit means a cycle
		visited := map[string]struct{}{f.Name: {}}
		for parent := f.Parent; len(parent) > 0; parent = parents[parent] {
			if _, ok := visited[parent]; ok {
				return xerror.Errorf("feed %s is its own ancestor", f.Name)
			}
			visited[parent] = struct{}{}
		}
	}
	return nil
}

func checkStreams(sources []Source, feeds []Feed, streams []Stream) error {
	known := map[string]struct{}{}
	for _, name := range feedNames(sources, feeds) {
		known[name] = struct{}{}
	}

	routes := map[string]struct{}{}
	for _, s := range streams {
		if !strings.HasPrefix(s.Route, "/") {
			return xerror.Errorf("stream route %s must start with /", s.Route)
		}
		if _, ok := routes[s.Route]; ok {
			return xerror.Errorf("stream routes must be unique: %s", s.Route)
		}
		routes[s.Route] = struct{}{}

		if _, ok := known[s.Feed]; !ok {
			return xerror.Errorf("stream %s reads unknown feed %s", s.Route, s.Feed)
		}
		if len(s.Boundary) > 0 {
			if err := stream.ValidateBoundary(s.Boundary); err != nil {
				return xerror.Errorf("stream %s boundary: %w", s.Route, err)
			}
		}
		if err := s.CheckFilters(); err != nil {
			return err
		}
	}
	return nil
}

// CheckFilters rejects filters which only make sense on a feed. A
// route's chain is shared by every client on it, so an fps overlay
// there would print their combined rate.
func (s Stream) CheckFilters() error {
	for _, f := range s.Filters {
		if f.Kind == FilterFPSOverlay {
			return xerror.Errorf("stream %s: %s is only supported on feeds", s.Route, FilterFPSOverlay)
		}
	}
	return nil
}
