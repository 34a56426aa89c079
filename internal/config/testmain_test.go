package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

var workDir string

// TestMain isolates tests from the user's own config files.
func TestMain(m *testing.M) {
	tmp, err := os.MkdirTemp("", "plotsync-config-tests-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}
	oldWD, _ := os.Getwd()

	_ = os.Chdir(tmp)
	workDir, _ = os.Getwd()
	_ = os.Setenv("HOME", tmp)
	_ = os.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "xdg-config"))

	code := m.Run()

	_ = os.Chdir(oldWD)
	_ = os.RemoveAll(tmp)
	os.Exit(code)
}
