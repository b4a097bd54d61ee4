package config

import "github.com/tauraamui/wormhole/pkg/configdef"

type defaultSettingKey uint

const (
	HOST                defaultSettingKey = 0x0
	PORT                defaultSettingKey = 0x1
	BACKEND             defaultSettingKey = 0x2
	BOUNDARY            defaultSettingKey = 0x3
	QUALITY             defaultSettingKey = 0x4
	BACKOFFMS           defaultSettingKey = 0x5
	MAXHISTORYRECORDS   defaultSettingKey = 0x6
	DASHBOARDINTERVALMS defaultSettingKey = 0x7
	DASHBOARDMAXCLIENTS defaultSettingKey = 0x8
	TARGETFPS           defaultSettingKey = 0x9
)

var defaultSettings = map[defaultSettingKey]interface{}{
	HOST:                "0.0.0.0",
	PORT:                8000,
	BACKEND:             "opencv",
	BOUNDARY:            "WORMHOLE",
	QUALITY:             100,
	BACKOFFMS:           1000,
	MAXHISTORYRECORDS:   1000,
	DASHBOARDINTERVALMS: 1000,
	DASHBOARDMAXCLIENTS: 16,
	TARGETFPS:           30.0,
}

// DefaultValues is the config written by setup: one looping video file
// served raw, downscaled, grayscale, inverted and post processed.
func DefaultValues() configdef.Values {
	overlays := []configdef.Filter{
		{Kind: configdef.FilterDebugInfo},
		{Kind: configdef.FilterFPSOverlay},
	}
	withOverlays := func(filters ...configdef.Filter) []configdef.Filter {
		return append(append([]configdef.Filter{}, overlays...), filters...)
	}
	targetFPS := defaultSettings[TARGETFPS].(float64)
	stream := func(route, feed string, quality int, fps float64, filters ...configdef.Filter) configdef.Stream {
		return configdef.Stream{
			Route:     route,
			Feed:      feed,
			Boundary:  defaultSettings[BOUNDARY].(string),
			Quality:   quality,
			TargetFPS: fps,
			BackoffMS: defaultSettings[BACKOFFMS].(int),
			Filters:   filters,
		}
	}

	return configdef.Values{
		Host:    defaultSettings[HOST].(string),
		Port:    defaultSettings[PORT].(int),
		Backend: defaultSettings[BACKEND].(string),
		Sources: []configdef.Source{
			{Name: "default", Address: "video.webm", Loop: true},
		},
		Feeds: []configdef.Feed{
			{Name: "managed", Parent: "default", PrintFPS: true, Filters: withOverlays(
				configdef.Filter{Kind: configdef.FilterWatermark, Text: "Wormhole"},
			)},
			{Name: "lowres", Parent: "default", Width: 640, Height: 360, MaxFPS: 1, Filters: withOverlays()},
			{Name: "grayscale", Parent: "default", Filters: withOverlays(
				configdef.Filter{Kind: configdef.FilterGrayscale},
			)},
			{Name: "inverted", Parent: "default", Filters: withOverlays(
				configdef.Filter{Kind: configdef.FilterInvert, Deferred: true},
			)},
			{Name: "postprocessing", Parent: "default", Scale: 0.5, Filters: []configdef.Filter{
				{Kind: configdef.FilterMosaic},
				{Kind: configdef.FilterWarp},
				{Kind: configdef.FilterDebugInfo},
				{Kind: configdef.FilterFPSOverlay},
			}},
		},
		Streams: []configdef.Stream{
			stream("/", "managed", 100, targetFPS),
			stream("/original", "default", 100, targetFPS),
			stream("/lowres", "lowres", 5, 1),
			stream("/grayscale", "grayscale", 100, targetFPS),
			stream("/inverted", "inverted", 100, targetFPS),
			stream("/postprocessing", "postprocessing", 100, targetFPS),
		},
		History: configdef.History{
			Enabled:    true,
			MaxRecords: defaultSettings[MAXHISTORYRECORDS].(int),
		},
		Dashboard: configdef.Dashboard{
			Enabled:    true,
			IntervalMS: defaultSettings[DASHBOARDINTERVALMS].(int),
			MaxClients: defaultSettings[DASHBOARDMAXCLIENTS].(int),
		},
	}
}
