package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Loader handles configuration loading from the layered sources.
type Loader struct{}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load assembles the full configuration for a command invocation.
func (l *Loader) Load(cmd *cobra.Command) (*Config, error) {
	l.setupViperDefaults()
	l.bindEnvironment()
	l.loadGlobalConfig()
	l.loadLocalConfig()
	l.bindCommandFlags(cmd)

	return Load()
}

func (l *Loader) setupViperDefaults() {
	viper.SetDefault("verbose", DefaultVerbose)
	viper.SetDefault("cache_unsafe", DefaultCacheUnsafe)
	viper.SetDefault("require_checksum_match", DefaultRequireChecksumMatch)
	viper.SetDefault("weak_exe_match", DefaultWeakExecutableMatch)
}

// bindEnvironment wires the conventional debugger environment variables as
// fallbacks for the search and source paths.
func (l *Loader) bindEnvironment() {
	_ = viper.BindEnv("sympath", "SYMFIND_SYMPATH", "_NT_SYMBOL_PATH")
	_ = viper.BindEnv("source_path", "SYMFIND_SRCPATH", "_NT_SOURCE_PATH")
	_ = viper.BindEnv("cache", "SYMFIND_CACHE")
}

// loadGlobalConfig loads the per-user config file, if any.
func (l *Loader) loadGlobalConfig() {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return
	}

	globalDir := filepath.Join(configDir, "symfind")

	for _, ext := range []string{"yml", "yaml", "json", "toml"} {
		globalPath := filepath.Join(globalDir, "config."+ext)

		if _, err := os.Stat(globalPath); err == nil {
			viper.SetConfigFile(globalPath)

			if err := viper.ReadInConfig(); err == nil {
				break
			}
		}
	}
}

// loadLocalConfig loads a project-level config found by walking up from the
// working directory.
func (l *Loader) loadLocalConfig() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	localPath := FindLocalConfig(cwd)
	if localPath != "" {
		viper.SetConfigFile(localPath)
		_ = viper.MergeInConfig()
	}
}

func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	_ = viper.BindPFlag("sympath", cmd.Flags().Lookup("sympath"))
	_ = viper.BindPFlag("cache", cmd.Flags().Lookup("cache"))
	_ = viper.BindPFlag("verbose", cmd.Flags().Lookup("verbose"))
	_ = viper.BindPFlag("cache_unsafe", cmd.Flags().Lookup("cache-unsafe"))
}
