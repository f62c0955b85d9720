package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr    = ":8080"
	defaultDBPath        = "stbuild.db"
	defaultWorkDir       = "build/drivec"
	defaultTemplateDir   = "resources/gfabasic/hatari_hdd"
	defaultHost          = "hatari"
	defaultPollInterval  = 250 * time.Millisecond
	defaultStableSamples = 5
	defaultMaxWait       = 60 * time.Second
	defaultBootDelay     = time.Second
	defaultRunBootDelay  = 10 * time.Second
	defaultStepDelay     = 500 * time.Millisecond
	defaultCompileDelay  = 2 * time.Second
	defaultRunTimeout    = 5 * time.Minute
	defaultObjectFile    = "SOURCE.O"

	envListenAddr    = "STBUILD_LISTEN_ADDR"
	envDBPath        = "STBUILD_DB_PATH"
	envLogLevel      = "STBUILD_LOG_LEVEL"
	envWorkDir       = "STBUILD_WORKDIR"
	envTemplateDir   = "STBUILD_TEMPLATE_DIR"
	envHost          = "STBUILD_HOST"
	envProfiles      = "STBUILD_PROFILES"
	envPollInterval  = "STBUILD_POLL_INTERVAL"
	envStableSamples = "STBUILD_STABLE_SAMPLES"
	envMaxWait       = "STBUILD_MAX_WAIT"
	envBootDelay     = "STBUILD_BOOT_DELAY"
	envRunBootDelay  = "STBUILD_RUN_BOOT_DELAY"
	envStepDelay     = "STBUILD_STEP_DELAY"
	envCompileDelay  = "STBUILD_COMPILE_DELAY"
	envRunTimeout    = "STBUILD_RUN_TIMEOUT"
	envObjectFile    = "STBUILD_OBJECT_FILE"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	// WorkDir is the host directory mounted as the guest's hard disk.
	WorkDir string
	// TemplateDir seeds WorkDir when it holds no editor yet.
	TemplateDir string
	// Host names the default guest host.
	Host string
	// ProfilesPath is an optional YAML file of machine profiles.
	ProfilesPath string

	PollInterval  time.Duration
	StableSamples int
	MaxWait       time.Duration

	BootDelay    time.Duration
	RunBootDelay time.Duration
	StepDelay    time.Duration
	CompileDelay time.Duration
	RunTimeout   time.Duration

	// ObjectFile is the compiler's intermediate output. Empty when the
	// compiler writes none.
	ObjectFile string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:    defaultListenAddr,
		DBPath:        defaultDBPath,
		LogLevel:      slog.LevelInfo,
		WorkDir:       defaultWorkDir,
		TemplateDir:   defaultTemplateDir,
		Host:          defaultHost,
		PollInterval:  defaultPollInterval,
		StableSamples: defaultStableSamples,
		MaxWait:       defaultMaxWait,
		BootDelay:     defaultBootDelay,
		RunBootDelay:  defaultRunBootDelay,
		StepDelay:     defaultStepDelay,
		CompileDelay:  defaultCompileDelay,
		RunTimeout:    defaultRunTimeout,
		ObjectFile:    defaultObjectFile,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envWorkDir); v != "" {
		cfg.WorkDir = v
	}
	if v := os.Getenv(envTemplateDir); v != "" {
		cfg.TemplateDir = v
	}
	if v := os.Getenv(envHost); v != "" {
		cfg.Host = v
	}
	cfg.ProfilesPath = os.Getenv(envProfiles)
	if v := os.Getenv(envStableSamples); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StableSamples = n
		}
	}
	// An explicitly empty value means the compiler writes no object file.
	if v, ok := os.LookupEnv(envObjectFile); ok {
		cfg.ObjectFile = v
	}

	durations := []struct {
		env  string
		into *time.Duration
	}{
		{envPollInterval, &cfg.PollInterval},
		{envMaxWait, &cfg.MaxWait},
		{envBootDelay, &cfg.BootDelay},
		{envRunBootDelay, &cfg.RunBootDelay},
		{envStepDelay, &cfg.StepDelay},
		{envCompileDelay, &cfg.CompileDelay},
		{envRunTimeout, &cfg.RunTimeout},
	}
	for _, d := range durations {
		if v := os.Getenv(d.env); v != "" {
			if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
				*d.into = parsed
			}
		}
	}

	return cfg
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
