package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/seantiz/stbuild/internal/backend"
	"github.com/seantiz/stbuild/internal/macro"
	"github.com/seantiz/stbuild/internal/model"
	"github.com/seantiz/stbuild/internal/source"
	"github.com/seantiz/stbuild/internal/workdir"
)

// workflow is the state of one run while it executes.
type workflow struct {
	engine  *Engine
	job     *job
	logger  *slog.Logger
	session *backend.Session
}

func (w *workflow) fail(state string, err error) error {
	return &StepError{Task: w.job.run.Task, State: state, Err: err}
}

// drive walks the job's plan from Idle to its last state.
func (w *workflow) drive(ctx context.Context) (err error) {
	e, run := w.engine, w.job.run
	layout := e.opts.Layout

	if err := workdir.Prepare(run.WorkDir, e.opts.TemplateDir, layout); err != nil {
		return w.fail(model.StateIdle, kind(ErrStaging, err))
	}

	if err := w.transition(ctx, model.StateSessionStarting, ""); err != nil {
		return w.fail(model.StateSessionStarting, err)
	}
	if err := w.stage(); err != nil {
		return w.fail(model.StateSessionStarting, err)
	}

	started := time.Now()
	session, err := w.job.host.Start(ctx, w.job.profile, run.WorkDir)
	if err != nil {
		return w.fail(model.StateSessionStarting, kind(ErrSession, err))
	}
	w.session = session
	w.logger = w.logger.With("session_id", session.ID)
	w.logger.Info("session started", "window", session.Window, "boot_ms", time.Since(started).Milliseconds())

	defer func() {
		if err != nil || !w.job.plan.keepSession {
			w.teardown()
		}
	}()

	for _, st := range w.job.plan.steps {
		if err := w.step(ctx, st); err != nil {
			return w.fail(st.state, err)
		}
	}
	return nil
}

// stage replaces the per-run files with a fresh, normalised copy of the
// source.
func (w *workflow) stage() error {
	run, layout := w.job.run, w.engine.opts.Layout
	stale := layout.StaleFiles(run.Task)

	if err := workdir.CheckSource(run.SourcePath, run.WorkDir, stale); err != nil {
		return kind(ErrStaging, err)
	}
	if err := workdir.Clean(run.WorkDir, stale); err != nil {
		return kind(ErrStaging, err)
	}
	staged, err := workdir.Stage(run.SourcePath, run.WorkDir, layout)
	if err != nil {
		return kind(ErrStaging, err)
	}
	changed, err := source.NormalizeFile(staged)
	if err != nil {
		return kind(ErrNormalize, err)
	}
	w.logger.Debug("source staged", "path", staged, "normalized", changed)
	return nil
}

// step emits a state's macros, waits for the guest and records the
// transition.
func (w *workflow) step(ctx context.Context, st step) error {
	start := time.Now()

	for _, a := range st.actions {
		if err := w.emit(ctx, a); err != nil {
			return err
		}
	}

	message, err := w.await(ctx, st)
	if err != nil {
		return err
	}

	stepDuration.WithLabelValues(st.state).Observe(time.Since(start).Seconds())
	return w.transition(ctx, st.state, message)
}

// emit focuses the session window and delivers one macro.
func (w *workflow) emit(ctx context.Context, a macro.Action) error {
	m, ok := macro.Lookup(a)
	if !ok {
		return kind(ErrInjection, fmt.Errorf("no macro %q", a))
	}

	inj, window := w.job.injector, w.session.Window
	if err := inj.Focus(ctx, window); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return kind(ErrInjection, fmt.Errorf("focus for %s: %w", a, err))
	}

	var err error
	switch m.Mode {
	case macro.Simultaneous:
		err = inj.SendSimultaneous(ctx, window, m.Keys)
	default:
		err = inj.SendSequential(ctx, window, m.Keys)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return kind(ErrInjection, fmt.Errorf("%s: %w", a, err))
	}
	w.logger.Debug("macro sent", "action", string(a), "keys", len(m.Keys))
	return nil
}

// await blocks until the step's output settles or its delay passes.
func (w *workflow) await(ctx context.Context, st step) (string, error) {
	e := w.engine
	if st.file != nil {
		if name := st.file(e.opts.Layout); name != "" {
			path := filepath.Join(w.job.run.WorkDir, name)
			res, err := e.opts.Detector.Wait(ctx, path)
			if err != nil {
				return "", err
			}
			if st.state == model.StateLinked {
				size := res.Size
				w.job.run.ArtifactPath = path
				w.job.run.ArtifactSize = &size
			}
			return fmt.Sprintf("%s settled at %d bytes after %d samples", name, res.Size, res.Samples), nil
		}
	}
	if st.delay != nil {
		if err := sleep(ctx, st.delay(e.opts.Timing)); err != nil {
			return "", err
		}
	}
	return "", nil
}

// transition validates, persists and publishes a state change.
func (w *workflow) transition(ctx context.Context, state, message string) error {
	run := w.job.run
	if !model.ValidTransition(run.State, state) {
		return fmt.Errorf("invalid transition %s → %s", run.State, state)
	}

	ev, err := w.engine.store.AdvanceRunState(ctx, run.ID, state, message)
	if err != nil {
		return fmt.Errorf("record state %s: %w", state, err)
	}
	run.State = state
	w.engine.broker.Publish(*ev)
	w.logger.Info("state entered", "state", state, "seq", ev.Seq)
	return nil
}

// teardown stops the session exactly once. Errors are logged and never
// replace the workflow's own result.
func (w *workflow) teardown() {
	if w.session == nil {
		return
	}
	s := w.session
	w.session = nil

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if err := w.job.host.Stop(ctx, s); err != nil {
		w.logger.Error("session stop failed", "error", err)
	}
	if err := w.transition(ctx, model.StateSessionStopped, ""); err != nil {
		w.logger.Error("failed to record session stop", "error", err)
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
