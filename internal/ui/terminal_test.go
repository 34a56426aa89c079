package ui

import (
	"os"
	"testing"
)

func TestShouldUseColor(t *testing.T) {
	origNoColor := os.Getenv("NO_COLOR")
	origCliColor := os.Getenv("CLICOLOR")
	origCliColorForce := os.Getenv("CLICOLOR_FORCE")
	defer func() {
		setEnv("NO_COLOR", origNoColor)
		setEnv("CLICOLOR", origCliColor)
		setEnv("CLICOLOR_FORCE", origCliColorForce)
	}()

	tests := []struct {
		name            string
		noColor         string
		cliColor        string
		cliColorForce   string
		wantColor       bool
		skipTTYDepCheck bool // Some tests don't depend on TTY state
	}{
		{
			name:            "NO_COLOR disables color",
			noColor:         "1",
			wantColor:       false,
			skipTTYDepCheck: true,
		},
		{
			name:            "no variables falls back to TTY detection",
			noColor:         "",
			cliColor:        "",
			cliColorForce:   "",
			wantColor:       false,
			skipTTYDepCheck: false,
		},
		{
			name:            "CLICOLOR=0 disables color",
			cliColor:        "0",
			wantColor:       false,
			skipTTYDepCheck: true,
		},
		{
			name:            "CLICOLOR_FORCE enables color even in non-TTY",
			cliColorForce:   "1",
			wantColor:       true,
			skipTTYDepCheck: true,
		},
		{
			name:            "NO_COLOR takes precedence over CLICOLOR_FORCE",
			noColor:         "1",
			cliColorForce:   "1",
			wantColor:       false,
			skipTTYDepCheck: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("NO_COLOR")
			os.Unsetenv("CLICOLOR")
			os.Unsetenv("CLICOLOR_FORCE")

			if tt.noColor != "" {
				os.Setenv("NO_COLOR", tt.noColor)
			}
			if tt.cliColor != "" {
				os.Setenv("CLICOLOR", tt.cliColor)
			}
			if tt.cliColorForce != "" {
				os.Setenv("CLICOLOR_FORCE", tt.cliColorForce)
			}

			got := ShouldUseColor()
			if tt.skipTTYDepCheck && got != tt.wantColor {
				t.Errorf("ShouldUseColor() = %v, want %v", got, tt.wantColor)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	// stdout is normally not a TTY under go test; only check it doesn't panic
	t.Logf("IsTerminal() = %v", IsTerminal())
	if w := TerminalWidth(72); w <= 0 {
		t.Errorf("TerminalWidth = %d, want positive", w)
	}
}

// setEnv sets or unsets an environment variable
func setEnv(key, value string) {
	if value == "" {
		os.Unsetenv(key)
	} else {
		os.Setenv(key, value)
	}
}
