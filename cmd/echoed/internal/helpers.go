package internal

import (
	"fmt"
	"runtime"

	"github.com/tgrady18/EchoedSDK/pkg/config"
)

const Logo = "📣"

var (
	version   = "dev"
	gitCommit string
	buildTime string
)

// LoadConfig reads the config file from its standard location with
// environment overrides applied.
func LoadConfig() (*config.Config, error) {
	return config.LoadConfig(config.DefaultConfigPath())
}

func GetVersion() string {
	return version
}

// FormatVersion returns the version string with optional build metadata.
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (%s)", gitCommit)
	}
	if buildTime != "" {
		v += fmt.Sprintf(" built %s", buildTime)
	}
	return v + " " + runtime.Version()
}
