package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	s := &Settings{}
	s.Server.Host = "omero.example.org"
	s.Server.Port = 4064
	s.Import.BaseServerPath = "/hyperfile/omero/autoimport"
	s.Import.MaxMoveTries = 3
	return s
}

func TestValidateSettingsAcceptsDefaults(t *testing.T) {
	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateSettingsRejectsBadPort(t *testing.T) {
	s := validSettings()
	s.Server.Port = 0
	err := ValidateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestValidateSettingsRejectsZeroTries(t *testing.T) {
	s := validSettings()
	s.Import.MaxMoveTries = 0
	require.Error(t, ValidateSettings(s))
}

func TestValidateSettingsRequiresBasePath(t *testing.T) {
	s := validSettings()
	s.Import.BaseServerPath = ""
	require.Error(t, ValidateSettings(s))
}
