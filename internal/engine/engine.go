package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"sync"
	"time"

	"github.com/seantiz/stbuild/internal/backend"
	"github.com/seantiz/stbuild/internal/completion"
	"github.com/seantiz/stbuild/internal/input"
	"github.com/seantiz/stbuild/internal/model"
	"github.com/seantiz/stbuild/internal/store"
	"github.com/seantiz/stbuild/internal/workdir"
)

// Defaults.
const (
	DefaultRunTimeout = 5 * time.Minute

	// teardownTimeout bounds stopping a session, which runs on a fresh
	// context so it still works after the workflow's context is done.
	teardownTimeout = 30 * time.Second
)

// Waiter waits for a file written by the guest to settle.
type Waiter interface {
	Wait(ctx context.Context, path string) (completion.Result, error)
}

// Options configures an Engine.
type Options struct {
	// Injectors maps host names to the injector that drives their windows.
	Injectors map[string]input.Injector
	Detector  Waiter
	Layout    workdir.Layout
	Timing    Timing
	Profiles  map[string]model.MachineProfile

	// TemplateDir seeds an empty working directory.
	TemplateDir string
	// WorkDir and Host are used when a request leaves them empty.
	WorkDir string
	Host    string

	// RunTimeout bounds a whole workflow.
	RunTimeout time.Duration
}

// Request asks for one workflow run.
type Request struct {
	Task    string `json:"task"`
	Source  string `json:"source"`
	WorkDir string `json:"workdir,omitempty"`
	Host    string `json:"host,omitempty"`
	Profile string `json:"profile,omitempty"`
}

// liveSession is a guest the run workflow left running.
type liveSession struct {
	host    backend.Host
	session *backend.Session
}

// Engine orchestrates compile and run workflows.
type Engine struct {
	store    store.Store
	registry *backend.Registry
	opts     Options
	logger   *slog.Logger
	wg       sync.WaitGroup
	broker   *EventBroker

	mu   sync.Mutex
	live map[string]liveSession // session ID → session
}

// NewEngine creates a new workflow engine.
func NewEngine(s store.Store, reg *backend.Registry, opts Options, logger *slog.Logger) *Engine {
	if opts.Detector == nil {
		opts.Detector = completion.New(0, 0, 0)
	}
	if opts.Layout == (workdir.Layout{}) {
		opts.Layout = workdir.DefaultLayout()
	}
	if opts.Timing == (Timing{}) {
		opts.Timing = DefaultTiming()
	}
	profiles := model.DefaultProfiles()
	maps.Copy(profiles, opts.Profiles)
	opts.Profiles = profiles
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultRunTimeout
	}

	return &Engine{
		store:    s,
		registry: reg,
		opts:     opts,
		logger:   logger,
		broker:   NewEventBroker(),
		live:     make(map[string]liveSession),
	}
}

// Broker returns the engine's event broker for SSE subscription.
func (e *Engine) Broker() *EventBroker {
	return e.broker
}

// Compile converts, compiles and links a source file, then stops the guest.
// It blocks until the workflow finishes and returns the final run record.
func (e *Engine) Compile(ctx context.Context, req Request) (*model.Run, error) {
	req.Task = model.TaskCompile
	return e.runSync(ctx, req)
}

// Run loads a source file into the editor and starts it. The guest is left
// running on success.
func (e *Engine) Run(ctx context.Context, req Request) (*model.Run, error) {
	req.Task = model.TaskRun
	return e.runSync(ctx, req)
}

func (e *Engine) runSync(ctx context.Context, req Request) (*model.Run, error) {
	j, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	err = e.execute(ctx, j)
	return j.run, err
}

// Submit creates a run record and launches the workflow in a goroutine. The
// run is stored with status "pending" before returning. The goroutine
// operates on its own copy of the run.
func (e *Engine) Submit(ctx context.Context, req Request) (*model.Run, error) {
	j, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	snapshot := *j.run
	e.wg.Go(func() {
		if err := e.execute(context.Background(), j); err != nil {
			e.logger.Debug("submitted run failed", "run_id", j.run.ID, "error", err)
		}
	})
	return &snapshot, nil
}

// Wait blocks until all in-flight submitted workflows complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// job is a validated request ready to execute.
type job struct {
	run      *model.Run
	plan     plan
	profile  model.MachineProfile
	host     backend.Host
	injector input.Injector
}

// prepare validates a request and records a pending run for it.
func (e *Engine) prepare(ctx context.Context, req Request) (*job, error) {
	p, ok := plans[req.Task]
	if !ok {
		return nil, fmt.Errorf("unknown task %q", req.Task)
	}
	if req.Source == "" {
		return nil, errors.New("source is required")
	}
	if req.WorkDir == "" {
		req.WorkDir = e.opts.WorkDir
	}
	if req.WorkDir == "" {
		return nil, errors.New("working directory is required")
	}
	if req.Host == "" {
		req.Host = e.opts.Host
	}
	if req.Profile == "" {
		req.Profile = p.profile
	}

	host, err := e.registry.Resolve(req.Host)
	if err != nil {
		return nil, err
	}
	injector, ok := e.opts.Injectors[req.Host]
	if !ok {
		return nil, fmt.Errorf("no injector for host %q", req.Host)
	}
	profile, ok := e.opts.Profiles[req.Profile]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q", req.Profile)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	src, err := filepath.Abs(req.Source)
	if err != nil {
		return nil, fmt.Errorf("source path: %w", err)
	}
	dir, err := filepath.Abs(req.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("working directory path: %w", err)
	}

	run := &model.Run{
		ID:         model.NewID(),
		Task:       p.task,
		Status:     model.StatusPending,
		State:      model.StateIdle,
		Host:       req.Host,
		Profile:    profile.Name,
		WorkDir:    dir,
		SourcePath: src,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	return &job{run: run, plan: p, profile: profile, host: host, injector: injector}, nil
}

// execute drives a prepared job to completion and records the outcome.
func (e *Engine) execute(ctx context.Context, j *job) error {
	// Close the event stream when execution finishes, regardless of outcome.
	defer e.broker.Close(j.run.ID)

	logger := e.logger.With("run_id", j.run.ID, "task", j.run.Task)

	if err := e.store.UpdateRunStatus(context.Background(), j.run.ID, model.StatusRunning); err != nil {
		logger.Error("failed to transition to running", "error", err)
		e.finish(j.run, nil, err)
		return err
	}

	// Capture start time immediately after the running transition so that
	// started_at stays consistent across every exit path.
	start := time.Now().UTC()
	j.run.Status = model.StatusRunning
	j.run.StartedAt = &start

	ctx, cancel := context.WithTimeout(ctx, e.opts.RunTimeout)
	defer cancel()

	wf := &workflow{engine: e, job: j, logger: logger}
	err := wf.drive(ctx)
	if wf.session != nil && err == nil && j.plan.keepSession {
		e.track(j.host, wf.session)
	}

	e.finish(j.run, &start, err)
	if err != nil {
		var se *StepError
		if errors.As(err, &se) {
			stepFailures.WithLabelValues(se.State).Inc()
		}
		logger.Error("run failed", "state", j.run.State, "error", err)
		return err
	}
	logger.Info("run completed", "duration_ms", *j.run.DurationMS)
	return nil
}

// finish writes the run's final status. startedAt may be nil if execution
// never started.
func (e *Engine) finish(r *model.Run, startedAt *time.Time, runErr error) {
	now := time.Now().UTC()
	var durationMS int
	if startedAt != nil {
		durationMS = int(now.Sub(*startedAt).Milliseconds())
	}

	r.Status = model.StatusCompleted
	if runErr != nil {
		r.Status = model.StatusFailed
		r.Error = runErr.Error()
	}
	r.DurationMS = &durationMS
	r.StartedAt = startedAt
	r.FinishedAt = &now

	runsTotal.WithLabelValues(r.Task, r.Status).Inc()
	runDuration.WithLabelValues(r.Task).Observe(float64(durationMS) / 1000)

	if err := e.store.UpdateRun(context.Background(), r); err != nil {
		e.logger.Error("failed to update finished run", "run_id", r.ID, "error", err)
	}
}

func (e *Engine) track(h backend.Host, s *backend.Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.live[s.ID] = liveSession{host: h, session: s}
}

// Sessions returns the guests left running by run workflows.
func (e *Engine) Sessions() []*backend.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*backend.Session, 0, len(e.live))
	for _, ls := range e.live {
		out = append(out, ls.session)
	}
	return out
}

// StopSessions stops the guests this engine left running. When workDir is
// set, only guests serving it are stopped, and hosts that can find guests
// started by other processes are asked to stop those too. It returns how
// many guests were stopped.
func (e *Engine) StopSessions(ctx context.Context, workDir string) (int, error) {
	if workDir != "" {
		abs, err := filepath.Abs(workDir)
		if err != nil {
			return 0, err
		}
		workDir = abs
	}

	e.mu.Lock()
	var targets []liveSession
	for _, ls := range e.live {
		if workDir == "" || ls.session.WorkDir == workDir {
			targets = append(targets, ls)
		}
	}
	e.mu.Unlock()

	stopped := 0
	var errs []error
	for _, ls := range targets {
		// A session that fails to stop stays live for the next call.
		if err := ls.host.Stop(ctx, ls.session); err != nil {
			errs = append(errs, err)
			continue
		}
		e.mu.Lock()
		delete(e.live, ls.session.ID)
		e.mu.Unlock()
		e.logger.Info("session stopped", "session_id", ls.session.ID)
		stopped++
	}

	if workDir != "" {
		for _, name := range e.registry.Names() {
			h, err := e.registry.Resolve(name)
			if err != nil {
				continue
			}
			ss, ok := h.(backend.SessionStopper)
			if !ok {
				continue
			}
			n, err := ss.StopMatching(ctx, workDir)
			stopped += n
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}

	return stopped, errors.Join(errs...)
}
