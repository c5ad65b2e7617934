// Package conf holds the viper-backed configuration for the intake
// pipeline and exposes it through a process-wide Settings instance.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"github.com/imagingrc/omero-intake/internal/errors"
)

// ServerSettings describes the image server connection used by the
// session-bound stages.
type ServerSettings struct {
	Host string `yaml:"host"` // server hostname
	Port int    `yaml:"port"` // server port
	User string `yaml:"user"` // service account used to open the root session
}

// ImportSettings controls batch intake and staging behaviour.
type ImportSettings struct {
	BaseServerPath string `yaml:"baseserverpath"` // root under which staged batches are namespaced
	MetadataSheet  string `yaml:"metadatasheet"`  // worksheet holding the submission form
	Namespace      string `yaml:"namespace"`      // map annotation namespace for user-submitted metadata
	MaxMoveTries   int    `yaml:"maxmovetries"`   // copy attempts before a move is abandoned
	CLIPath        string `yaml:"clipath"`        // path to the bulk-import CLI binary
	BulkIncludeYML string `yaml:"bulkincludeyml"` // shared include file referenced from import.yml
	SessionTTLMs   int64  `yaml:"sessionttlms"`   // delegated session time to live
}

// LogSettings controls the optional per-stage log file.
type LogSettings struct {
	Enabled bool   `yaml:"enabled"` // true to enable file logging
	Path    string `yaml:"path"`    // directory for stage log files
}

// MainSettings contains top level settings.
type MainSettings struct {
	Name string      `yaml:"name"` // instance name used in log records
	Log  LogSettings `yaml:"log"`  // log settings
}

// Settings is the root configuration structure.
type Settings struct {
	Debug bool `yaml:"debug"` // true to enable debug logging

	Main   MainSettings   `yaml:"main"`
	Server ServerSettings `yaml:"server"`
	Import ImportSettings `yaml:"import"`
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new
// Settings instance and installs it as the process-wide instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the
// configuration file, if one exists.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("OMERO_INTAKE")
	viper.AutomaticEnv()

	// function defined in defaults.go
	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// No config file is fine, defaults plus env apply.
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the list of directories searched for
// config.yaml, most specific first.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	home, err := os.UserHomeDir()
	if err == nil {
		paths = append(paths, filepath.Join(home, ".config", "omero-intake"))
	}
	paths = append(paths, "/etc/omero-intake")
	return paths, nil
}

// Setting returns the current settings instance, loading it on first use.
func Setting() *Settings {
	settingsMutex.RLock()
	if settingsInstance != nil {
		defer settingsMutex.RUnlock()
		return settingsInstance
	}
	settingsMutex.RUnlock()

	if _, err := Load(); err != nil {
		return nil
	}
	return settingsInstance
}

// ValidateSettings checks settings for values that would make a stage
// fail long after startup.
func ValidateSettings(s *Settings) error {
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		return errors.Newf("server port %d out of range", s.Server.Port).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if s.Import.MaxMoveTries < 1 {
		return errors.Newf("import.maxmovetries must be at least 1, got %d", s.Import.MaxMoveTries).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if s.Import.BaseServerPath == "" {
		return errors.Newf("import.baseserverpath must be set").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}
