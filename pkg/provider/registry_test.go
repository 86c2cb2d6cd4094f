package provider

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/histcache/pkg/errors"
)

type RegistryTestSuite struct {
	suite.Suite
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func (suite *RegistryTestSuite) TestSupported() {
	suite.Equal([]string{"polygon", "refinitiv", "refinitiv-desktop"}, Supported())
}

func (suite *RegistryTestSuite) TestGetInfo() {
	info, err := GetInfo("refinitiv")
	suite.NoError(err)
	suite.Equal("refinitiv", info.Name)
	suite.True(info.RequiresAuth)
}

func (suite *RegistryTestSuite) TestGetInfoUnknown() {
	_, err := GetInfo("bloomberg")
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidProvider))
}

func (suite *RegistryTestSuite) TestNewUnsupportedType() {
	_, err := New(Config{Type: "bloomberg"})
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidProvider))
}

func (suite *RegistryTestSuite) TestNewPolygonRequiresAPIKey() {
	_, err := New(Config{Type: TypePolygon})
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *RegistryTestSuite) TestNewPolygon() {
	client, err := New(Config{Type: TypePolygon, PolygonAPIKey: "key"})
	suite.NoError(err)
	suite.NotNil(client)
}

func (suite *RegistryTestSuite) TestNewRefinitiv() {
	client, err := New(Config{
		Type:     TypeRefinitiv,
		AppKey:   "app-key",
		Username: "machine-user",
		Password: "secret",
	})
	suite.NoError(err)
	suite.NotNil(client)
}

func (suite *RegistryTestSuite) TestNewRefinitivDesktop() {
	client, err := New(Config{Type: TypeRefinitivDesktop, AppKey: "app-key"})
	suite.NoError(err)
	suite.NotNil(client)
}
