package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/tauraamui/wormhole/pkg/configdef"
	"github.com/tauraamui/wormhole/pkg/log"
	"github.com/tauraamui/xerror"
)

const (
	vendorName     = "tacusci"
	appName        = "wormhole"
	configFileName = "config.json"
)

var fs afero.Fs = afero.NewOsFs()

func load() (configdef.Values, error) {
	var values configdef.Values

	configPath, err := resolveConfigPath()
	if err != nil {
		return configdef.Values{}, err
	}

	log.Info("Resolved config file location: %s", configPath)
	file, err := readConfigFile(configPath)
	if err != nil {
		return configdef.Values{}, err
	}

	if err := unmarshal(file, &values); err != nil {
		return configdef.Values{}, err
	}

	loadDefaults(&values)

	if err = values.RunValidate(); err != nil {
		return configdef.Values{}, err
	}

	return values, nil
}

// loadDefaults fills in everything left unset by the config file.
func loadDefaults(values *configdef.Values) {
	if len(values.Host) == 0 {
		values.Host = defaultSettings[HOST].(string)
	}
	if values.Port == 0 {
		values.Port = defaultSettings[PORT].(int)
	}
	if len(values.Backend) == 0 {
		values.Backend = defaultSettings[BACKEND].(string)
	}
	if values.History.MaxRecords == 0 {
		values.History.MaxRecords = defaultSettings[MAXHISTORYRECORDS].(int)
	}
	if values.Dashboard.IntervalMS == 0 {
		values.Dashboard.IntervalMS = defaultSettings[DASHBOARDINTERVALMS].(int)
	}
	if values.Dashboard.MaxClients == 0 {
		values.Dashboard.MaxClients = defaultSettings[DASHBOARDMAXCLIENTS].(int)
	}
	for i := range values.Streams {
		s := &values.Streams[i]
		if len(s.Boundary) == 0 {
			s.Boundary = defaultSettings[BOUNDARY].(string)
		}
		if s.Quality == 0 {
			s.Quality = defaultSettings[QUALITY].(int)
		}
		if s.BackoffMS == 0 {
			s.BackoffMS = defaultSettings[BACKOFFMS].(int)
		}
		// an unpaced stream resends the latest frame as fast as it can encode
		if s.TargetFPS == 0 {
			s.TargetFPS = defaultSettings[TARGETFPS].(float64)
		}
	}
}

var readConfigFile = func(path string) ([]byte, error) {
	return afero.ReadFile(fs, path)
}

func unmarshal(content []byte, values *configdef.Values) error {
	err := json.Unmarshal(content, values)
	if err != nil {
		return errors.Errorf("parsing configuration error: %v", err)
	}
	return nil
}

func resolveConfigPath() (string, error) {
	configPath := os.Getenv("WORMHOLE_CONFIG")
	if len(configPath) > 0 {
		return configPath, nil
	}

	configParentDir, err := userConfigDir()
	if err != nil {
		return "", xerror.Errorf("unable to resolve %s location: %w", configFileName, err)
	}

	return filepath.Join(
		configParentDir,
		vendorName,
		appName,
		configFileName), nil
}

var userConfigDir = func() (string, error) {
	return os.UserConfigDir()
}
