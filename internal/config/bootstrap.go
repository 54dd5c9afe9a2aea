package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Bootstrap holds daemon-level settings that never enter the persisted
// supervisor document: where the command API listens, where state lives and
// how the daemon itself logs. Loaded from an optional TOML file and
// WATCHDOG_* environment variables.
type Bootstrap struct {
	Listen     string  `mapstructure:"listen"`
	DataDir    string  `mapstructure:"data_dir"`
	LogLevel   string  `mapstructure:"log_level"`
	LogDir     string  `mapstructure:"log_dir"`
	History    History `mapstructure:"history"`
	WatchFiles []Watch `mapstructure:"watch_files"`
}

// History configures the optional crash-history mirror.
type History struct {
	SQLitePath string `mapstructure:"sqlite_path"`
}

// Watch describes one tailed log file and the category its lines default to.
type Watch struct {
	Path     string `mapstructure:"path"`
	Category string `mapstructure:"category"`
}

// DefaultBootstrap returns daemon settings used when no file is present.
func DefaultBootstrap() Bootstrap {
	return Bootstrap{
		Listen:   "127.0.0.1:8199",
		DataDir:  defaultDataDir(),
		LogLevel: "info",
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claude-launcher"
	}
	return filepath.Join(home, ".claude-launcher")
}

// LoadBootstrap reads daemon settings from path (optional; "" skips the file)
// overlaid with WATCHDOG_* environment variables.
func LoadBootstrap(path string) (Bootstrap, error) {
	v := viper.New()
	v.SetEnvPrefix("WATCHDOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	b := DefaultBootstrap()
	// Every key needs a default for its environment variable to be seen
	// by Unmarshal.
	v.SetDefault("listen", b.Listen)
	v.SetDefault("data_dir", b.DataDir)
	v.SetDefault("log_level", b.LogLevel)
	v.SetDefault("log_dir", b.LogDir)
	v.SetDefault("history.sqlite_path", b.History.SQLitePath)
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Bootstrap{}, err
		}
	}
	if err := v.Unmarshal(&b); err != nil {
		return Bootstrap{}, err
	}
	if b.Listen == "" {
		b.Listen = DefaultBootstrap().Listen
	}
	if b.DataDir == "" {
		b.DataDir = defaultDataDir()
	}
	return b, nil
}
