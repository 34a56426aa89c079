// Package config loads plotsync settings through viper.
//
// Sources, lowest precedence first: built-in defaults, the user config
// (~/.config/plotsync/config.yaml), the project config
// (./.plotsync/config.yaml), PLOTSYNC_* environment variables, and finally
// command-line flags bound by the CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides; "classify.ai.enabled"
// becomes PLOTSYNC_CLASSIFY_AI_ENABLED.
const EnvPrefix = "PLOTSYNC"

// Config keys
const (
	KeyDB              = "db"
	KeyBackend         = "backend"
	KeyActor           = "actor"
	KeyJSON            = "json"
	KeyReviewThreshold = "classify.review_threshold"
	KeyAIEnabled       = "classify.ai.enabled"
	KeyAIModel         = "classify.ai.model"
	KeyCacheSize       = "cache.size"
	KeyLockTimeout     = "lock.timeout"
	KeyServeAddr       = "serve.addr"
	KeyServeCORS       = "serve.cors_origins"
	KeyWatchDebounce   = "watch.debounce"
)

var v *viper.Viper

// Initialize (re)builds the configuration from defaults, config files and
// the environment. It is safe to call more than once.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, path := range configFiles() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyDB, defaultDBPath())
	v.SetDefault(KeyBackend, "sqlite")
	v.SetDefault(KeyActor, "")
	v.SetDefault(KeyJSON, false)
	v.SetDefault(KeyReviewThreshold, 0.25)
	v.SetDefault(KeyAIEnabled, false)
	v.SetDefault(KeyAIModel, "")
	v.SetDefault(KeyCacheSize, 64)
	v.SetDefault(KeyLockTimeout, "30s")
	v.SetDefault(KeyServeAddr, "127.0.0.1:7420")
	v.SetDefault(KeyServeCORS, []string{})
	v.SetDefault(KeyWatchDebounce, "500ms")
}

// configFiles lists config files in merge order.
func configFiles() []string {
	var files []string
	if dir, err := os.UserConfigDir(); err == nil {
		files = append(files, filepath.Join(dir, "plotsync", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		files = append(files, filepath.Join(cwd, ".plotsync", "config.yaml"))
	}
	return files
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".plotsync", "plotsync.db")
	}
	return filepath.Join(home, ".local", "share", "plotsync", "plotsync.db")
}

// DataDir is the directory holding the database; lock files live beside it.
func DataDir() string {
	return filepath.Dir(GetString(KeyDB))
}

// ResetForTesting drops all loaded configuration.
func ResetForTesting() {
	v = nil
}

// Set overrides a key for the rest of the process, as a flag would.
func Set(key string, value interface{}) {
	if v == nil {
		_ = Initialize()
	}
	v.Set(key, value)
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetFloat64 retrieves a float configuration value
func GetFloat64(key string) float64 {
	if v == nil {
		return 0
	}
	return v.GetFloat64(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice retrieves a string slice configuration value
func GetStringSlice(key string) []string {
	if v == nil {
		return nil
	}
	return v.GetStringSlice(key)
}

// ConfigFileUsed returns the last config file merged, if any.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// AllSettings returns every resolved setting.
func AllSettings() map[string]interface{} {
	if v == nil {
		return nil
	}
	return v.AllSettings()
}
