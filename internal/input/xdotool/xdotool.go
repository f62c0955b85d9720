// Package xdotool injects keystrokes into X11 windows by shelling out to the
// xdotool utility, and locates emulator windows by process ID.
package xdotool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/seantiz/stbuild/internal/input"
	"github.com/seantiz/stbuild/internal/keys"
)

// Environment variable names for xdotool configuration.
const (
	envBin  = "STBUILD_XDOTOOL_BIN"
	envHold = "STBUILD_KEY_HOLD"
)

// Defaults.
const (
	DefaultBin  = "xdotool"
	DefaultHold = 50 * time.Millisecond

	// releaseTimeout bounds the key-up calls issued during cleanup.
	releaseTimeout = 2 * time.Second
)

// Config holds xdotool settings.
type Config struct {
	// Bin is the xdotool executable.
	Bin string

	// Hold is how long chord keys stay pressed before release.
	Hold time.Duration
}

// LoadConfig reads xdotool configuration from the environment.
func LoadConfig() Config {
	cfg := Config{Bin: DefaultBin, Hold: DefaultHold}
	if v := os.Getenv(envBin); v != "" {
		cfg.Bin = v
	}
	if v := os.Getenv(envHold); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.Hold = d
		}
	}
	return cfg
}

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return out, fmt.Errorf("%s %s: %s: %w", name, strings.Join(args, " "),
				strings.TrimSpace(string(exitErr.Stderr)), err)
		}
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

var keysyms = map[keys.Code]string{
	keys.Period:    "period",
	keys.Minus:     "minus",
	keys.Space:     "space",
	keys.Enter:     "Return",
	keys.Backspace: "BackSpace",
	keys.Escape:    "Escape",
	keys.Tab:       "Tab",
	keys.Shift:     "Shift_L",
	keys.Control:   "Control_L",
	keys.Alternate: "Alt_L",
}

// Keysym returns the X keysym name xdotool uses for c.
func Keysym(c keys.Code) (string, error) {
	if s, ok := keysyms[c]; ok {
		return s, nil
	}
	switch {
	case c >= keys.A && c <= keys.Z, c >= keys.Digit0 && c <= keys.Digit9:
		return c.String(), nil
	case c >= keys.F1 && c <= keys.F10:
		return strings.ToUpper(c.String()), nil
	}
	return "", fmt.Errorf("no keysym for key %v", c)
}

// Injector implements input.Injector with xdotool.
type Injector struct {
	cfg    Config
	run    Runner
	logger *slog.Logger
}

var _ input.Injector = (*Injector)(nil)

// NewInjector creates an injector. A nil runner uses ExecRunner.
func NewInjector(cfg Config, run Runner, logger *slog.Logger) *Injector {
	if run == nil {
		run = ExecRunner
	}
	return &Injector{cfg: cfg, run: run, logger: logger}
}

// Focus activates the window and waits for the window manager to confirm.
func (in *Injector) Focus(ctx context.Context, window string) error {
	if window == "" {
		return input.ErrInvalidWindow
	}
	if _, err := in.run(ctx, in.cfg.Bin, "windowactivate", "--sync", window); err != nil {
		return focusError(ctx, "activate", window, err)
	}
	if _, err := in.run(ctx, in.cfg.Bin, "windowfocus", "--sync", window); err != nil {
		return focusError(ctx, "focus", window, err)
	}
	return nil
}

// focusError reports a cancelled focus as the context's error and any other
// failure as an invalid window.
func focusError(ctx context.Context, verb, window string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s %s: %w", verb, window, ctxErr)
	}
	return fmt.Errorf("%w: %s %s: %w", input.ErrInvalidWindow, verb, window, err)
}

// SendSequential types each key in order.
func (in *Injector) SendSequential(ctx context.Context, window string, codes []keys.Code) (err error) {
	syms, err := in.resolve(window, codes)
	if err != nil {
		return err
	}

	var held []string
	defer func() { err = errors.Join(err, in.release(held)) }()

	for _, s := range syms {
		held = []string{s}
		if err := in.key(ctx, "keydown", s); err != nil {
			return err
		}
		if err := in.key(ctx, "keyup", s); err != nil {
			return err
		}
		held = nil
	}
	return nil
}

// SendSimultaneous presses all keys, holds for cfg.Hold, then releases them in
// reverse order.
func (in *Injector) SendSimultaneous(ctx context.Context, window string, codes []keys.Code) (err error) {
	syms, err := in.resolve(window, codes)
	if err != nil {
		return err
	}

	var held []string
	defer func() { err = errors.Join(err, in.release(held)) }()

	for _, s := range syms {
		held = append(held, s)
		if err := in.key(ctx, "keydown", s); err != nil {
			return err
		}
	}

	if in.cfg.Hold > 0 {
		t := time.NewTimer(in.cfg.Hold)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

func (in *Injector) resolve(window string, codes []keys.Code) ([]string, error) {
	if window == "" {
		return nil, input.ErrInvalidWindow
	}
	syms := make([]string, len(codes))
	for i, c := range codes {
		s, err := Keysym(c)
		if err != nil {
			return nil, err
		}
		syms[i] = s
	}
	return syms, nil
}

func (in *Injector) key(ctx context.Context, verb, sym string) error {
	if _, err := in.run(ctx, in.cfg.Bin, verb, sym); err != nil {
		return fmt.Errorf("%s %s: %w", verb, sym, err)
	}
	return nil
}

// release lifts every held key, last pressed first. It uses its own context
// so keys are released even when the caller's context is already cancelled.
func (in *Injector) release(held []string) error {
	if len(held) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	var errs []error
	for _, s := range slices.Backward(held) {
		if err := in.key(ctx, "keyup", s); err != nil {
			in.logger.Warn("key release failed", "key", s, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
