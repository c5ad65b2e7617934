// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "omero-intake")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/")

	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 4064)
	viper.SetDefault("server.user", "root")

	viper.SetDefault("import.baseserverpath", "/hyperfile/omero/autoimport")
	viper.SetDefault("import.metadatasheet", "Submission Form")
	viper.SetDefault("import.namespace", "omero-intake/user_submitted/v0")
	viper.SetDefault("import.maxmovetries", 3)
	viper.SetDefault("import.clipath", "omero")
	viper.SetDefault("import.bulkincludeyml", "/hyperfile/omero/import_base.yml")
	// 6 hours, matches the delegated session TTL used by the importer
	viper.SetDefault("import.sessionttlms", 21600000)
}
