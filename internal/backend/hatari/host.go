// Package hatari runs the Hatari Atari ST emulator as a backend.Host.
package hatari

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/seantiz/stbuild/internal/backend"
	"github.com/seantiz/stbuild/internal/model"
)

// WindowLocator finds the window a process maps once it has booted.
type WindowLocator interface {
	Locate(ctx context.Context, pid int) (string, error)
}

// sessionState tracks a running emulator process.
type sessionState struct {
	session *backend.Session
	cmd     *exec.Cmd
	exited  chan struct{} // closed by the reaper once the process is gone
}

// Host implements backend.Host by launching Hatari processes.
type Host struct {
	cfg     Config
	locator WindowLocator
	logger  *slog.Logger

	mu     sync.Mutex
	active map[string]*sessionState // session ID → state

	terminate func(ctx context.Context, pid int32, exited <-chan struct{}, grace time.Duration) error
}

// NewHost creates a Hatari host.
func NewHost(cfg Config, locator WindowLocator, logger *slog.Logger) *Host {
	return &Host{
		cfg:     cfg,
		locator: locator,
		logger:  logger,
		active:  make(map[string]*sessionState),

		terminate: terminate,
	}
}

// Verify checks that the Hatari binary can be found.
func (h *Host) Verify() error {
	if _, err := exec.LookPath(h.cfg.Bin); err != nil {
		return fmt.Errorf("hatari binary: %w", err)
	}
	return nil
}

// Start launches Hatari and waits for its window.
func (h *Host) Start(ctx context.Context, p model.MachineProfile, workDir string) (*backend.Session, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	// The process outlives ctx, so it is not bound to it.
	cmd := exec.Command(h.cfg.Bin, Args(h.cfg, p, workDir)...)
	cmd.Dir = workDir

	bootStart := time.Now()
	if err := cmd.Start(); err != nil {
		sessionsTotal.WithLabelValues(p.Name, outcomeFailed).Inc()
		return nil, fmt.Errorf("start hatari: %w", err)
	}

	state := &sessionState{cmd: cmd, exited: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		h.logger.Debug("hatari exited", "pid", cmd.Process.Pid, "error", err)
		close(state.exited)
	}()

	window, err := h.locateWindow(ctx, cmd.Process.Pid, state.exited)
	bootDuration.Observe(time.Since(bootStart).Seconds())
	if err != nil {
		sessionsTotal.WithLabelValues(p.Name, outcomeFailed).Inc()
		h.kill(state)
		return nil, err
	}

	state.session = &backend.Session{
		ID:        model.NewID(),
		Host:      HostName,
		PID:       cmd.Process.Pid,
		Window:    window,
		Profile:   p,
		WorkDir:   workDir,
		StartedAt: time.Now().UTC(),
	}

	h.mu.Lock()
	h.active[state.session.ID] = state
	h.mu.Unlock()
	activeSessions.Inc()
	sessionsTotal.WithLabelValues(p.Name, outcomeStarted).Inc()

	h.logger.Info("hatari started",
		"session_id", state.session.ID,
		"pid", state.session.PID,
		"window", window,
		"profile", p.Name,
		"work_dir", workDir,
	)
	return state.session, nil
}

// locateWindow waits for the process's window, giving up when the process
// exits or the window timeout passes.
func (h *Host) locateWindow(ctx context.Context, pid int, exited <-chan struct{}) (string, error) {
	lctx, cancel := context.WithTimeout(ctx, h.cfg.WindowTimeout)
	defer cancel()

	go func() {
		select {
		case <-exited:
			cancel()
		case <-lctx.Done():
		}
	}()

	window, err := h.locator.Locate(lctx, pid)
	if err == nil {
		return window, nil
	}

	select {
	case <-exited:
		return "", fmt.Errorf("hatari exited during boot: %w", err)
	default:
	}
	if errors.Is(lctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return "", fmt.Errorf("no hatari window after %s: %w", h.cfg.WindowTimeout, err)
	}
	return "", fmt.Errorf("locate hatari window: %w", err)
}

// Stop terminates a session. Unknown sessions and processes that have
// already exited are not errors. A session that could not be stopped stays
// tracked so a later Stop can retry.
func (h *Host) Stop(ctx context.Context, s *backend.Session) error {
	if s == nil {
		return nil
	}

	h.mu.Lock()
	state, exists := h.active[s.ID]
	delete(h.active, s.ID)
	h.mu.Unlock()
	if !exists {
		return nil
	}
	activeSessions.Dec()

	stopStart := time.Now()
	defer func() { stopDuration.Observe(time.Since(stopStart).Seconds()) }()

	select {
	case <-state.exited:
		h.logger.Debug("hatari already exited", "session_id", s.ID)
		return nil
	default:
	}

	if err := h.terminate(ctx, int32(s.PID), state.exited, h.cfg.StopTimeout); err != nil {
		h.retrack(state)
		return fmt.Errorf("stop hatari session %s: %w", s.ID, err)
	}
	h.logger.Info("hatari stopped", "session_id", s.ID, "pid", s.PID)
	return nil
}

// retrack puts a session that survived Stop back under tracking.
func (h *Host) retrack(state *sessionState) {
	select {
	case <-state.exited:
		return
	default:
	}
	h.mu.Lock()
	h.active[state.session.ID] = state
	h.mu.Unlock()
	activeSessions.Inc()
}

// Capabilities reports what this host supports.
func (h *Host) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Name:           HostName,
		Machines:       SupportedMachines,
		Interactive:    true,
		MaxConcurrency: MaxSessions,
	}
}

// Sessions returns the sessions this host is tracking.
func (h *Host) Sessions() []*backend.Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*backend.Session, 0, len(h.active))
	for _, st := range h.active {
		out = append(out, st.session)
	}
	return out
}

// Shutdown stops every tracked session.
func (h *Host) Shutdown(ctx context.Context) {
	for _, s := range h.Sessions() {
		if err := h.Stop(ctx, s); err != nil {
			h.logger.Error("shutdown stop failed", "session_id", s.ID, "error", err)
		}
	}
}

// kill is used when boot fails and the session was never handed out.
func (h *Host) kill(state *sessionState) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.StopTimeout)
	defer cancel()
	if err := h.terminate(ctx, int32(state.cmd.Process.Pid), state.exited, h.cfg.StopTimeout); err != nil {
		h.logger.Warn("failed to stop hatari after boot failure", "pid", state.cmd.Process.Pid, "error", err)
	}
}

// terminate sends SIGTERM, waits up to grace for the process to go, then
// kills it. exited may be nil for processes this host did not start.
func terminate(ctx context.Context, pid int32, exited <-chan struct{}, grace time.Duration) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if errors.Is(err, process.ErrorProcessNotRunning) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := p.TerminateWithContext(ctx); err != nil {
		if gone(ctx, p) {
			return nil
		}
		return fmt.Errorf("terminate pid %d: %w", pid, err)
	}
	if waitExit(ctx, p, exited, grace) {
		return nil
	}

	if err := p.KillWithContext(ctx); err != nil && !gone(ctx, p) {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	if !waitExit(ctx, p, exited, grace) {
		return fmt.Errorf("pid %d still running after kill", pid)
	}
	return nil
}

// waitExit reports whether the process went away within grace.
func waitExit(ctx context.Context, p *process.Process, exited <-chan struct{}, grace time.Duration) bool {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-exited:
			return true
		case <-ticker.C:
			// A child we started stays a zombie until reaped, so only the
			// exited channel is trusted for those.
			if exited == nil && gone(ctx, p) {
				return true
			}
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

func gone(ctx context.Context, p *process.Process) bool {
	running, err := p.IsRunningWithContext(ctx)
	return err != nil || !running
}
