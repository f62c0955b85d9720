package hatari

import (
	"os"
	"strings"
	"time"
)

// Environment variable names for Hatari configuration.
const (
	envBin           = "STBUILD_HATARI_BIN"
	envTOSDir        = "STBUILD_HATARI_TOS_DIR"
	envArgs          = "STBUILD_HATARI_ARGS"
	envWindowTimeout = "STBUILD_HATARI_WINDOW_TIMEOUT"
	envStopTimeout   = "STBUILD_HATARI_STOP_TIMEOUT"
)

// Config holds configuration for the Hatari host.
type Config struct {
	// Bin is the path to the Hatari binary.
	Bin string

	// TOSDir holds firmware images named after the profile's TOS value
	// (e.g. "tos206.img"). Empty leaves firmware selection to Hatari.
	TOSDir string

	// ExtraArgs are appended to every command line.
	ExtraArgs []string

	// WindowTimeout bounds the wait for the emulator window to appear.
	WindowTimeout time.Duration

	// StopTimeout is how long a terminated emulator gets to exit before it
	// is killed.
	StopTimeout time.Duration
}

// LoadConfig reads Hatari configuration from environment variables,
// applying sensible defaults for values not set.
func LoadConfig() Config {
	cfg := Config{
		Bin:           DefaultBin,
		WindowTimeout: DefaultWindowTimeout,
		StopTimeout:   DefaultStopTimeout,
	}

	if v := os.Getenv(envBin); v != "" {
		cfg.Bin = v
	}
	if v := os.Getenv(envTOSDir); v != "" {
		cfg.TOSDir = v
	}
	if v := os.Getenv(envArgs); v != "" {
		cfg.ExtraArgs = strings.Fields(v)
	}
	if v := os.Getenv(envWindowTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.WindowTimeout = d
		}
	}
	if v := os.Getenv(envStopTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.StopTimeout = d
		}
	}

	return cfg
}
