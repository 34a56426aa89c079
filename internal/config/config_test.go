package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	tests := []struct {
		name     string
		expected interface{}
		get      func() interface{}
	}{
		{"review threshold", 0.25, func() interface{} { return GetReviewThreshold() }},
		{"cache size", 64, func() interface{} { return GetCacheSize() }},
		{"lock timeout", 30 * time.Second, func() interface{} { return GetLockTimeout() }},
		{"watch debounce", 500 * time.Millisecond, func() interface{} { return GetWatchDebounce() }},
		{"serve addr", "127.0.0.1:7420", func() interface{} { return GetServeAddr() }},
		{"ai enabled", false, func() interface{} { return GetAISettings().Enabled }},
		{"json", false, func() interface{} { return GetBool(KeyJSON) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.get(); got != tt.expected {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.expected)
			}
		})
	}
	if got := GetString(KeyDB); filepath.Base(got) != "plotsync.db" {
		t.Errorf("default db = %q", got)
	}
	if len(GetCORSOrigins()) != 0 {
		t.Errorf("default cors origins = %v", GetCORSOrigins())
	}
}

func TestEnvironmentBinding(t *testing.T) {
	tests := []struct {
		envVar   string
		value    string
		expected interface{}
		get      func() interface{}
	}{
		{"PLOTSYNC_DB", "/tmp/x.db", "/tmp/x.db", func() interface{} { return GetString(KeyDB) }},
		{"PLOTSYNC_ACTOR", "ann", "ann", func() interface{} { return GetString(KeyActor) }},
		{"PLOTSYNC_CLASSIFY_REVIEW_THRESHOLD", "0.5", 0.5, func() interface{} { return GetReviewThreshold() }},
		{"PLOTSYNC_CLASSIFY_AI_ENABLED", "true", true, func() interface{} { return GetAISettings().Enabled }},
		{"PLOTSYNC_LOCK_TIMEOUT", "2s", 2 * time.Second, func() interface{} { return GetLockTimeout() }},
		{"PLOTSYNC_CACHE_SIZE", "8", 8, func() interface{} { return GetCacheSize() }},
	}
	for _, tt := range tests {
		t.Run(tt.envVar, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.value)
			if err := Initialize(); err != nil {
				t.Fatalf("Initialize() returned error: %v", err)
			}
			if got := tt.get(); got != tt.expected {
				t.Errorf("%s=%s gave %v, want %v", tt.envVar, tt.value, got, tt.expected)
			}
		})
	}
}

func TestProjectConfigFile(t *testing.T) {
	dir := filepath.Join(workDir, ".plotsync")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "serve:\n  addr: 0.0.0.0:9000\n  cors_origins: [\"http://a\", \"http://b, http://c\"]\nwatch:\n  debounce: 2s\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetServeAddr(); got != "0.0.0.0:9000" {
		t.Errorf("serve addr = %q", got)
	}
	if got := GetWatchDebounce(); got != 2*time.Second {
		t.Errorf("watch debounce = %v", got)
	}
	if got := GetCORSOrigins(); len(got) != 3 || got[2] != "http://c" {
		t.Errorf("cors origins = %v", got)
	}
	if ConfigFileUsed() == "" {
		t.Errorf("config file not recorded")
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatal(err)
	}
	Set(KeyReviewThreshold, 7.0)
	Set(KeyLockTimeout, "soon")
	Set(KeyServeAddr, "nope")
	Set(KeyCacheSize, -1)

	if got := GetReviewThreshold(); got != 0.25 {
		t.Errorf("threshold = %v", got)
	}
	if got := GetLockTimeout(); got != 30*time.Second {
		t.Errorf("lock timeout = %v", got)
	}
	if got := GetServeAddr(); got != "127.0.0.1:7420" {
		t.Errorf("serve addr = %q", got)
	}
	if got := GetCacheSize(); got != 64 {
		t.Errorf("cache size = %d", got)
	}
}

func TestUninitializedGetters(t *testing.T) {
	ResetForTesting()
	t.Cleanup(func() { _ = Initialize() })
	if GetString(KeyDB) != "" || GetBool(KeyAIEnabled) || GetInt(KeyCacheSize) != 0 || AllSettings() != nil {
		t.Fatal("getters must return zero values before Initialize")
	}
}
