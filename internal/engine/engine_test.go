package engine_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/stbuild/internal/backend"
	"github.com/seantiz/stbuild/internal/backend/sim"
	"github.com/seantiz/stbuild/internal/completion"
	"github.com/seantiz/stbuild/internal/engine"
	"github.com/seantiz/stbuild/internal/input"
	"github.com/seantiz/stbuild/internal/model"
	"github.com/seantiz/stbuild/internal/store"
	"github.com/seantiz/stbuild/internal/workdir"
)

// Keys delivered before each macro of the compile workflow, used to aim
// injected faults.
const (
	keysBeforeSaveNative = 11 + 13 + 1 + 11
	keysBeforeCompile    = keysBeforeSaveNative + 2 + 1 + 2 + 1 + 11 + 9 + 2 + 11
)

type fixture struct {
	eng    *engine.Engine
	store  store.Store
	guest  *sim.Guest
	dir    string
	source string

	reg    *backend.Registry
	opts   engine.Options
	logger *slog.Logger
}

func fastTiming() engine.Timing {
	return engine.Timing{
		Boot:    time.Millisecond,
		RunBoot: time.Millisecond,
		Program: time.Millisecond,
		Dialog:  time.Millisecond,
		Quit:    time.Millisecond,
		Compile: time.Millisecond,
	}
}

func newTemplate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"GFABASIC.PRG", "MENU.PRG"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}
	return dir
}

func newFixture(t *testing.T, mutate ...func(*engine.Options)) *fixture {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	opts := engine.Options{
		Detector:    completion.New(5*time.Millisecond, 2, 2*time.Second),
		Layout:      workdir.DefaultLayout(),
		Timing:      fastTiming(),
		TemplateDir: newTemplate(t),
		Host:        sim.HostName,
		RunTimeout:  10 * time.Second,
	}
	for _, m := range mutate {
		m(&opts)
	}

	guest := sim.NewGuest(opts.Layout, logger)
	opts.Injectors = map[string]input.Injector{sim.HostName: guest}

	reg := backend.NewRegistry()
	reg.Register(sim.HostName, guest)

	src := filepath.Join(t.TempDir(), "hello.lst")
	require.NoError(t, os.WriteFile(src, []byte("PRINT \"HELLO\"\r\nPRINT 42\r\n"), 0o644))

	return &fixture{
		eng:    engine.NewEngine(s, reg, opts, logger),
		store:  s,
		guest:  guest,
		dir:    filepath.Join(t.TempDir(), "drivec"),
		source: src,
		reg:    reg,
		opts:   opts,
		logger: logger,
	}
}

// withInjector rebuilds the engine with the sim injector wrapped by wrap.
func (f *fixture) withInjector(wrap func(input.Injector) input.Injector) {
	opts := f.opts
	opts.Injectors = map[string]input.Injector{sim.HostName: wrap(f.guest)}
	f.eng = engine.NewEngine(f.store, f.reg, opts, f.logger)
}

// withHost rebuilds the engine with the sim host wrapped by wrap.
func (f *fixture) withHost(wrap func(backend.Host) backend.Host) {
	f.reg = backend.NewRegistry()
	f.reg.Register(sim.HostName, wrap(f.guest))
	f.eng = engine.NewEngine(f.store, f.reg, f.opts, f.logger)
}

// stubbornHost fails Stop while fail is set, leaving the guest running.
type stubbornHost struct {
	backend.Host
	fail bool
}

func (h *stubbornHost) Stop(ctx context.Context, s *backend.Session) error {
	if h.fail {
		return errors.New("operation not permitted")
	}
	return h.Host.Stop(ctx, s)
}

// cancellingInjector cancels the run's context on its nth Focus.
type cancellingInjector struct {
	input.Injector
	cancel context.CancelFunc
	n      int
	seen   int
}

func (c *cancellingInjector) Focus(ctx context.Context, window string) error {
	c.seen++
	if c.seen == c.n {
		c.cancel()
	}
	return c.Injector.Focus(ctx, window)
}

func (f *fixture) request() engine.Request {
	return engine.Request{Source: f.source, WorkDir: f.dir}
}

func (f *fixture) states(t *testing.T, runID string) []string {
	t.Helper()
	events, err := f.store.GetEvents(context.Background(), runID)
	require.NoError(t, err)
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.State)
	}
	return out
}

func TestCompileWalksEveryState(t *testing.T) {
	f := newFixture(t)

	run, err := f.eng.Compile(context.Background(), f.request())
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, run.Status)
	assert.Equal(t, model.StateSessionStopped, run.State)
	assert.Equal(t, model.CompileStates[1:], f.states(t, run.ID))
	assert.Equal(t, 1, f.guest.Starts())
	assert.Equal(t, 1, f.guest.Stops(), "session must be stopped exactly once")

	assert.Equal(t, filepath.Join(f.dir, "TEST.PRG"), run.ArtifactPath)
	info, err := os.Stat(run.ArtifactPath)
	require.NoError(t, err)
	require.NotNil(t, run.ArtifactSize)
	assert.Equal(t, info.Size(), *run.ArtifactSize)

	stored, err := f.store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	assert.Equal(t, run.ArtifactPath, stored.ArtifactPath)
	require.NotNil(t, stored.DurationMS)
	assert.NotNil(t, stored.FinishedAt)
}

func TestCompileFaultMidSequenceStillStopsOnce(t *testing.T) {
	f := newFixture(t)
	f.guest.SetFaults(sim.Faults{FailAfterKeys: keysBeforeSaveNative + 1})

	run, err := f.eng.Compile(context.Background(), f.request())
	require.Error(t, err)

	var se *engine.StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, model.TaskCompile, se.Task)
	assert.Equal(t, model.StateSavedAsNative, se.State)
	assert.ErrorIs(t, err, engine.ErrInjection)
	assert.ErrorIs(t, err, sim.ErrInjected)
	assert.NotErrorIs(t, err, completion.ErrNotCompleted)

	assert.Equal(t, 1, f.guest.Stops(), "session must be stopped exactly once")
	assert.Equal(t, []string{
		model.StateSessionStarting,
		model.StateDesktopReady,
		model.StateEditorOpen,
		model.StateSourceMerged,
		model.StateSessionStopped,
	}, f.states(t, run.ID))

	stored, err := f.store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, stored.Status)
	assert.Contains(t, stored.Error, model.StateSavedAsNative)
}

func TestStaleArtifactsRemovedBetweenRuns(t *testing.T) {
	f := newFixture(t)

	_, err := f.eng.Compile(context.Background(), f.request())
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(f.dir, "TEST.PRG"))
	require.FileExists(t, filepath.Join(f.dir, "SOURCE.O"))

	// The second run dies before compiling, so anything left in place came
	// from the first run.
	f.guest.SetFaults(sim.Faults{FailAfterKeys: keysBeforeCompile + 1})
	_, err = f.eng.Compile(context.Background(), f.request())

	var se *engine.StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, model.StateCompiled, se.State)
	assert.NoFileExists(t, filepath.Join(f.dir, "TEST.PRG"))
	assert.NoFileExists(t, filepath.Join(f.dir, "SOURCE.O"))
	assert.Equal(t, 2, f.guest.Stops())
}

// stuckWaiter never sees the native source settle.
type stuckWaiter struct {
	inner engine.Waiter
	stuck string
}

func (w stuckWaiter) Wait(ctx context.Context, path string) (completion.Result, error) {
	if filepath.Base(path) == w.stuck {
		return completion.Result{}, fmt.Errorf("%s not stable: %w", path, completion.ErrNotCompleted)
	}
	return w.inner.Wait(ctx, path)
}

func TestTimeoutReportedDistinctly(t *testing.T) {
	f := newFixture(t, func(o *engine.Options) {
		o.Detector = stuckWaiter{inner: o.Detector, stuck: "SOURCE.GFA"}
	})

	_, err := f.eng.Compile(context.Background(), f.request())
	require.Error(t, err)

	var se *engine.StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, model.StateSavedAsNative, se.State)
	assert.ErrorIs(t, err, completion.ErrNotCompleted)
	assert.NotErrorIs(t, err, engine.ErrInjection)
	assert.Equal(t, 1, f.guest.Stops())
}

func TestBareLineFeedsNormalizedOnStagedCopyOnly(t *testing.T) {
	f := newFixture(t)
	original := []byte("PRINT 1\nPRINT 2\n")
	require.NoError(t, os.WriteFile(f.source, original, 0o644))

	_, err := f.eng.Compile(context.Background(), f.request())
	require.NoError(t, err)

	staged, err := os.ReadFile(filepath.Join(f.dir, "SOURCE.LST"))
	require.NoError(t, err)
	assert.Equal(t, "PRINT 1\r\nPRINT 2\r\n", string(staged))

	got, err := os.ReadFile(f.source)
	require.NoError(t, err)
	assert.Equal(t, original, got, "caller's source must not change")
}

func TestStagingErrorsStartNoSession(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		state string
	}{
		{
			name:  "missing source",
			setup: func(f *fixture) { f.source = filepath.Join(t.TempDir(), "missing.lst") },
			state: model.StateSessionStarting,
		},
		{
			name: "missing tools",
			setup: func(f *fixture) {
				require.NoError(t, os.MkdirAll(f.dir, 0o755))
				require.NoError(t, os.WriteFile(filepath.Join(f.dir, "GFABASIC.PRG"), nil, 0o644))
			},
			state: model.StateIdle,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			run, err := f.eng.Compile(context.Background(), f.request())
			var se *engine.StepError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.state, se.State)
			assert.ErrorIs(t, err, engine.ErrStaging)
			assert.Zero(t, f.guest.Starts())
			assert.Zero(t, f.guest.Stops())

			stored, err := f.store.GetRun(context.Background(), run.ID)
			require.NoError(t, err)
			assert.Equal(t, model.StatusFailed, stored.Status)
		})
	}
}

func TestSessionStartFailure(t *testing.T) {
	f := newFixture(t)
	f.guest.SetFaults(sim.Faults{StartErr: errors.New("no TOS image")})

	run, err := f.eng.Compile(context.Background(), f.request())
	assert.ErrorIs(t, err, engine.ErrSession)
	assert.Zero(t, f.guest.Stops())
	assert.Equal(t, []string{model.StateSessionStarting}, f.states(t, run.ID))
}

func TestTeardownErrorDoesNotOverrideSuccess(t *testing.T) {
	f := newFixture(t)
	f.guest.SetFaults(sim.Faults{StopErr: errors.New("already gone")})

	run, err := f.eng.Compile(context.Background(), f.request())
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, run.Status)
	assert.Equal(t, 1, f.guest.Stops())
}

func TestCompileWithoutObjectFileUsesDelay(t *testing.T) {
	f := newFixture(t, func(o *engine.Options) { o.Layout.Object = "" })

	run, err := f.eng.Compile(context.Background(), f.request())
	require.NoError(t, err)
	assert.FileExists(t, run.ArtifactPath)
	assert.NoFileExists(t, filepath.Join(f.dir, "SOURCE.O"))
}

func TestRunLeavesSessionRunning(t *testing.T) {
	f := newFixture(t)

	run, err := f.eng.Run(context.Background(), f.request())
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, run.Status)
	assert.Equal(t, model.ProfileRun, run.Profile)
	assert.Equal(t, model.RunStates[1:], f.states(t, run.ID))
	assert.Zero(t, f.guest.Stops())

	sessions := f.eng.Sessions()
	require.Len(t, sessions, 1)
	screen, ok := f.guest.Screen(sessions[0].Window)
	require.True(t, ok)
	assert.Equal(t, sim.ScreenProgram, screen)

	n, err := f.eng.StopSessions(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.guest.Stops())
	assert.Empty(t, f.eng.Sessions())
}

func TestRunFailureTearsDown(t *testing.T) {
	f := newFixture(t)
	f.guest.SetFaults(sim.Faults{FailAfterKeys: 5})

	run, err := f.eng.Run(context.Background(), f.request())
	var se *engine.StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, model.TaskRun, se.Task)
	assert.Equal(t, model.StateEditorOpen, se.State)
	assert.Equal(t, 1, f.guest.Stops())
	assert.Empty(t, f.eng.Sessions())

	states := f.states(t, run.ID)
	assert.Equal(t, model.StateSessionStopped, states[len(states)-1])
}

func TestRunCleansOnlySourceFiles(t *testing.T) {
	f := newFixture(t)

	_, err := f.eng.Compile(context.Background(), f.request())
	require.NoError(t, err)

	_, err = f.eng.Run(context.Background(), f.request())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(f.dir, "TEST.PRG"), "run must keep the last build")
}

func TestStopSessionsByWorkDir(t *testing.T) {
	f := newFixture(t)

	_, err := f.eng.Run(context.Background(), f.request())
	require.NoError(t, err)

	n, err := f.eng.StopSessions(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.eng.StopSessions(context.Background(), f.dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSubmitRunsAsync(t *testing.T) {
	f := newFixture(t)

	run, err := f.eng.Submit(context.Background(), engine.Request{Task: model.TaskCompile, Source: f.source, WorkDir: f.dir})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, run.Status)

	events, unsub := f.eng.Broker().Subscribe(run.ID)
	defer unsub()

	f.eng.Wait()

	stored, err := f.store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)

	// The stream is closed once the run finishes.
	for range events {
	}
}

func TestPrepareRejectsBadRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  engine.Request
	}{
		{"unknown task", engine.Request{Task: "deploy", Source: f.source, WorkDir: f.dir}},
		{"no source", engine.Request{Task: model.TaskCompile, WorkDir: f.dir}},
		{"unknown host", engine.Request{Task: model.TaskCompile, Source: f.source, WorkDir: f.dir, Host: "steem"}},
		{"unknown profile", engine.Request{Task: model.TaskCompile, Source: f.source, WorkDir: f.dir, Profile: "falcon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.eng.Submit(ctx, tt.req)
			assert.Error(t, err)
		})
	}

	_, total, err := f.store.ListRuns(ctx, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total, "rejected requests must not be recorded")
}

func TestCancelledContextFailsRun(t *testing.T) {
	f := newFixture(t, func(o *engine.Options) { o.Timing.Boot = time.Hour })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := f.eng.Compile(ctx, f.request())
	var se *engine.StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, model.StateDesktopReady, se.State)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.guest.Stops())
}

func TestCompileRejectsSourceInsideWorkDir(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.Compile(context.Background(), f.request())
	require.NoError(t, err)

	for _, name := range []string{"SOURCE.LST", "SOURCE.GFA", "TEST.PRG"} {
		src := filepath.Join(f.dir, name)
		original := []byte("PRINT \"MINE\"\n")
		require.NoError(t, os.WriteFile(src, original, 0o644))

		run, err := f.eng.Compile(context.Background(), engine.Request{Source: src, WorkDir: f.dir})
		var se *engine.StepError
		require.ErrorAs(t, err, &se, name)
		assert.Equal(t, model.StateSessionStarting, se.State)
		assert.ErrorIs(t, err, engine.ErrStaging)
		assert.ErrorIs(t, err, workdir.ErrSourceInWorkDir)
		assert.Equal(t, model.StatusFailed, run.Status)

		got, readErr := os.ReadFile(src)
		require.NoError(t, readErr, "%s was removed", name)
		assert.Equal(t, original, got)
		require.NoError(t, os.Remove(src))
	}
	assert.Equal(t, 1, f.guest.Starts())
}

func TestCancelDuringInjectionIsNotAnInjectionError(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.withInjector(func(inj input.Injector) input.Injector {
		return &cancellingInjector{Injector: inj, cancel: cancel, n: 1}
	})

	_, err := f.eng.Compile(ctx, f.request())
	var se *engine.StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, model.StateEditorOpen, se.State)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, engine.ErrInjection)
	assert.Equal(t, 1, f.guest.Stops())
}

func TestStopSessionsKeepsSessionThatFailedToStop(t *testing.T) {
	f := newFixture(t)
	host := &stubbornHost{fail: true}
	f.withHost(func(h backend.Host) backend.Host {
		host.Host = h
		return host
	})

	_, err := f.eng.Run(context.Background(), f.request())
	require.NoError(t, err)
	require.Len(t, f.eng.Sessions(), 1)

	n, err := f.eng.StopSessions(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, f.eng.Sessions(), 1)
	assert.Equal(t, 0, f.guest.Stops())

	host.fail = false
	n, err = f.eng.StopSessions(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, f.eng.Sessions())
	assert.Equal(t, 1, f.guest.Stops())
}
