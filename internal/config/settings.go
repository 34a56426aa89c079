package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// GetReviewThreshold returns the share of guessed classifications at which
// a manual review is suggested. Invalid values fall back to 0.25.
//
// Config key: classify.review_threshold
// Valid values: 0 < x <= 1
func GetReviewThreshold() float64 {
	value := GetFloat64(KeyReviewThreshold)
	if value <= 0 || value > 1 {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s %v in config (valid: 0 < x <= 1), using default 0.25\n", KeyReviewThreshold, value)
		return 0.25
	}
	return value
}

// GetCacheSize returns the parse cache capacity.
//
// Config key: cache.size
func GetCacheSize() int {
	value := GetInt(KeyCacheSize)
	if value <= 0 {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s %d in config (must be positive), using default 64\n", KeyCacheSize, value)
		return 64
	}
	return value
}

// GetLockTimeout returns how long apply and reimport wait for the project
// lock. Zero is allowed and means fail immediately when the lock is held.
//
// Config key: lock.timeout
func GetLockTimeout() time.Duration {
	raw := GetString(KeyLockTimeout)
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d < 0 {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s %q in config, using default 30s\n", KeyLockTimeout, raw)
		return 30 * time.Second
	}
	return d
}

// GetWatchDebounce returns the quiet period before watch recomputes a preview.
//
// Config key: watch.debounce
func GetWatchDebounce() time.Duration {
	raw := GetString(KeyWatchDebounce)
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s %q in config, using default 500ms\n", KeyWatchDebounce, raw)
		return 500 * time.Millisecond
	}
	return d
}

// GetServeAddr returns the HTTP listen address.
//
// Config key: serve.addr
func GetServeAddr() string {
	value := strings.TrimSpace(GetString(KeyServeAddr))
	if _, _, err := net.SplitHostPort(value); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s %q in config, using default 127.0.0.1:7420\n", KeyServeAddr, value)
		return "127.0.0.1:7420"
	}
	return value
}

// GetCORSOrigins returns the origins allowed to call the HTTP API.
//
// Config key: serve.cors_origins (list or comma separated)
func GetCORSOrigins() []string {
	var out []string
	for _, item := range GetStringSlice(KeyServeCORS) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// AISettings controls the optional classification suggester.
type AISettings struct {
	Enabled bool   `json:"enabled"`
	Model   string `json:"model,omitempty"`
}

// GetAISettings returns the classify.ai.* settings.
func GetAISettings() AISettings {
	return AISettings{
		Enabled: GetBool(KeyAIEnabled),
		Model:   strings.TrimSpace(GetString(KeyAIModel)),
	}
}
