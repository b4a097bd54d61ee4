package config

import (
	"errors"
	"testing"

	"github.com/matryer/is"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/tacusci/logging/v2"
	"github.com/tauraamui/wormhole/pkg/configdef"
)

type CreateConfigTestSuite struct {
	suite.Suite
	is                   *is.I
	configCreateResolver configdef.CreateResolver
	fs                   afero.Fs
	fsRef                afero.Fs
}

func (suite *CreateConfigTestSuite) SetupSuite() {
	logging.CurrentLoggingLevel = logging.SilentLevel
	suite.is = is.New(suite.T())
	suite.fs = afero.NewMemMapFs()
	suite.configCreateResolver = DefaultCreateResolver()

	// use in memory FS in implementation for tests
	suite.fsRef = fs
	fs = suite.fs
}

func (suite *CreateConfigTestSuite) TearDownSuite() {
	fs = suite.fsRef
	logging.CurrentLoggingLevel = logging.WarnLevel
}

func (suite *CreateConfigTestSuite) TearDownTest() {
	suite.is.NoErr(suite.fs.RemoveAll("/"))
}

func (suite *CreateConfigTestSuite) TestConfigCreate() {
	require.NoError(suite.T(), suite.configCreateResolver.Create())
	loadedConfig, err := suite.configCreateResolver.Resolve()

	assert.NoError(suite.T(), err)
	assert.EqualValues(suite.T(), DefaultValues(), loadedConfig)
}

func (suite *CreateConfigTestSuite) TestDefaultConfigServesDemoRoutes() {
	routes := []string{}
	for _, s := range DefaultValues().Streams {
		routes = append(routes, s.Route)
	}
	assert.Equal(suite.T(), []string{"/", "/original", "/lowres", "/grayscale", "/inverted", "/postprocessing"}, routes)
}

func (suite *CreateConfigTestSuite) TestDefaultConfigPacesEveryStream() {
	for _, s := range DefaultValues().Streams {
		if s.Route == "/lowres" {
			assert.Equal(suite.T(), 1.0, s.TargetFPS)
			continue
		}
		assert.Equal(suite.T(), 30.0, s.TargetFPS, s.Route)
	}
}

func (suite *CreateConfigTestSuite) TestConfigCreateFailsDueToAlreadyExisting() {
	suite.is.NoErr(suite.configCreateResolver.Create())
	err := suite.configCreateResolver.Create()
	suite.is.Equal(err.Error(), "config file already exists")
	suite.is.True(errors.Is(err, configdef.ErrConfigAlreadyExists))
}

func (suite *CreateConfigTestSuite) TestConfigDestroyRemovesFile() {
	suite.is.NoErr(suite.configCreateResolver.Create())
	suite.is.NoErr(DefaultDestroyer().Destroy())

	path, err := resolveConfigPath()
	suite.is.NoErr(err)
	exists, err := afero.Exists(suite.fs, path)
	suite.is.NoErr(err)
	suite.is.True(!exists)
}

func TestCreateConfigTestSuite(t *testing.T) {
	suite.Run(t, &CreateConfigTestSuite{})
}
