package xdotool

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Locator finds the top-level window belonging to a process.
type Locator struct {
	cfg Config
	run Runner
}

// NewLocator creates a locator. A nil runner uses ExecRunner.
func NewLocator(cfg Config, run Runner) *Locator {
	if run == nil {
		run = ExecRunner
	}
	return &Locator{cfg: cfg, run: run}
}

// Locate blocks until a visible window owned by pid appears and returns its
// ID. The caller bounds the wait through ctx.
func (l *Locator) Locate(ctx context.Context, pid int) (string, error) {
	out, err := l.run(ctx, l.cfg.Bin, "search", "--sync", "--onlyvisible", "--pid", strconv.Itoa(pid))
	if err != nil {
		return "", fmt.Errorf("search window for pid %d: %w", pid, err)
	}

	// xdotool lists windows oldest first; the emulator's main window is the
	// last one it maps.
	var window string
	for line := range strings.Lines(string(out)) {
		if id := strings.TrimSpace(line); id != "" {
			window = id
		}
	}
	if window == "" {
		return "", fmt.Errorf("no window for pid %d", pid)
	}
	return window, nil
}
