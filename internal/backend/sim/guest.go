// Package sim provides a simulated guest: a backend.Host and input.Injector
// pair that interprets keystrokes the way the GFA-BASIC desktop, editor and
// compiler respond to them, writing the same files into the working
// directory. It needs no emulator or display.
package sim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/seantiz/stbuild/internal/backend"
	"github.com/seantiz/stbuild/internal/input"
	"github.com/seantiz/stbuild/internal/keys"
	"github.com/seantiz/stbuild/internal/model"
	"github.com/seantiz/stbuild/internal/workdir"
)

// HostName is the name used when registering with the host registry.
const HostName = "sim"

// Screens the guest can show.
const (
	ScreenDesktop  = "desktop"
	ScreenEditor   = "editor"
	ScreenCompiler = "compiler"
	ScreenProgram  = "program"
	ScreenHung     = "hung"
)

// File headers written by the simulated tools.
var (
	NativeMagic   = []byte("GFA-BASIC3\x00")
	ObjectMagic   = []byte("GFAO")
	ArtifactMagic = []byte{0x60, 0x1a}
)

// ErrInjected is returned by deliberately failed operations.
var ErrInjected = errors.New("sim: injected fault")

// Faults makes the guest fail on purpose.
type Faults struct {
	// StartErr is returned by Start.
	StartErr error
	// FailAfterKeys fails the key delivery that would exceed this many keys
	// in total. Zero disables it.
	FailAfterKeys int
	// StopErr is returned by Stop after the session is removed.
	StopErr error
}

// dialog is an open text field waiting for Enter.
type dialog struct {
	kind  string
	field []rune
}

// machine is one simulated guest.
type machine struct {
	session *backend.Session
	screen  string
	dialog  *dialog

	program  []byte // source merged into the editor
	selected string // file chosen in the compiler
	compiled []byte
	messages []string
}

// Guest implements backend.Host and input.Injector in process.
type Guest struct {
	layout workdir.Layout
	logger *slog.Logger

	// WriteDelay postpones every file write, so completion detection has
	// something to wait for.
	WriteDelay time.Duration

	mu       sync.Mutex
	faults   Faults
	machines map[string]*machine // window → machine
	keyCount int
	starts   int
	stops    int
	pending  sync.WaitGroup
}

// NewGuest creates a simulated guest that uses layout's file names.
func NewGuest(layout workdir.Layout, logger *slog.Logger) *Guest {
	return &Guest{
		layout:   layout,
		logger:   logger,
		machines: make(map[string]*machine),
	}
}

// SetFaults replaces the configured faults and resets the key counter.
func (g *Guest) SetFaults(f Faults) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.faults = f
	g.keyCount = 0
}

// Start boots a simulated machine showing the desktop.
func (g *Guest) Start(ctx context.Context, p model.MachineProfile, workDir string) (*backend.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.faults.StartErr != nil {
		return nil, g.faults.StartErr
	}

	id := model.NewID()
	s := &backend.Session{
		ID:        id,
		Host:      HostName,
		Window:    "sim-" + id,
		Profile:   p,
		WorkDir:   workDir,
		StartedAt: time.Now().UTC(),
	}
	g.machines[s.Window] = &machine{session: s, screen: ScreenDesktop}
	g.starts++
	g.logger.Debug("sim guest started", "session_id", id, "profile", p.Name)
	return s, nil
}

// Stop removes the machine. Unknown sessions are not errors.
func (g *Guest) Stop(_ context.Context, s *backend.Session) error {
	if s == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stops++
	delete(g.machines, s.Window)
	return g.faults.StopErr
}

// Capabilities reports what this host supports.
func (g *Guest) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Name: HostName,
		Machines: []string{
			model.MachineST, model.MachineMegaST, model.MachineSTE,
			model.MachineMegaSTE, model.MachineTT, model.MachineFalcon,
		},
		MaxConcurrency: 16,
	}
}

// StopMatching stops every machine serving workDir.
func (g *Guest) StopMatching(_ context.Context, workDir string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for w, m := range g.machines {
		if m.session.WorkDir == workDir {
			delete(g.machines, w)
			g.stops++
			n++
		}
	}
	return n, nil
}

// Starts returns how many sessions have been started.
func (g *Guest) Starts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.starts
}

// Stops returns how many times Stop or StopMatching removed a session.
func (g *Guest) Stops() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stops
}

// Screen returns what the machine behind window is showing.
func (g *Guest) Screen(window string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.machines[window]
	if !ok {
		return "", false
	}
	return m.screen, true
}

// Messages returns the alerts the machine behind window has shown.
func (g *Guest) Messages(window string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.machines[window]
	if !ok {
		return nil
	}
	return append([]string(nil), m.messages...)
}

// Flush waits for delayed writes to land.
func (g *Guest) Flush() {
	g.pending.Wait()
}

// Focus checks the window exists.
func (g *Guest) Focus(ctx context.Context, window string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.machines[window]; !ok {
		return fmt.Errorf("%w: %q", input.ErrInvalidWindow, window)
	}
	return nil
}

// SendSequential types each key in turn.
func (g *Guest) SendSequential(ctx context.Context, window string, ks []keys.Code) error {
	return g.deliver(ctx, window, ks, func(m *machine) {
		for _, k := range ks {
			g.press(m, k, false, false)
		}
	})
}

// SendSimultaneous delivers ks as one chord.
func (g *Guest) SendSimultaneous(ctx context.Context, window string, ks []keys.Code) error {
	return g.deliver(ctx, window, ks, func(m *machine) {
		var shift, ctrl bool
		var main []keys.Code
		for _, k := range ks {
			switch k {
			case keys.Shift:
				shift = true
			case keys.Control:
				ctrl = true
			case keys.Alternate:
			default:
				main = append(main, k)
			}
		}
		for _, k := range main {
			g.press(m, k, shift, ctrl)
		}
	})
}

func (g *Guest) deliver(ctx context.Context, window string, ks []keys.Code, apply func(*machine)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.machines[window]
	if !ok {
		return fmt.Errorf("%w: %q", input.ErrInvalidWindow, window)
	}
	if limit := g.faults.FailAfterKeys; limit > 0 && g.keyCount+len(ks) > limit {
		return fmt.Errorf("deliver %d keys: %w", len(ks), ErrInjected)
	}
	g.keyCount += len(ks)
	apply(m)
	return nil
}

// press applies one key to the machine. Called with g.mu held.
func (g *Guest) press(m *machine, k keys.Code, shift, ctrl bool) {
	if m.screen == ScreenHung {
		return
	}
	if m.dialog != nil {
		g.typeInto(m, k)
		return
	}

	switch m.screen {
	case ScreenDesktop:
		if k == keys.O && !shift && !ctrl {
			m.dialog = &dialog{kind: "open"}
		}
	case ScreenEditor:
		switch {
		case k == keys.F2 && !shift && !ctrl:
			m.dialog = &dialog{kind: "merge"}
		case k == keys.F1 && shift:
			m.dialog = &dialog{kind: "save", field: []rune(g.layout.NativeSource)}
		case k == keys.F3 && shift:
			m.dialog = &dialog{kind: "quit"}
		case k == keys.F10 && shift:
			if len(m.program) > 0 {
				m.screen = ScreenProgram
			} else {
				m.alert("no program in memory")
			}
		}
	case ScreenCompiler:
		switch {
		case k == keys.S && ctrl:
			m.dialog = &dialog{kind: "select"}
		case k == keys.C && ctrl:
			g.compile(m)
		case k == keys.L && ctrl:
			g.link(m)
		}
	}
}

// typeInto edits the open dialog's field. Enter commits it.
func (g *Guest) typeInto(m *machine, k keys.Code) {
	d := m.dialog
	switch k {
	case keys.Backspace:
		if len(d.field) > 0 {
			d.field = d.field[:len(d.field)-1]
		}
		return
	case keys.Escape:
		m.dialog = nil
		return
	case keys.Enter:
		m.dialog = nil
		g.commit(m, d.kind, string(d.field))
		return
	}
	if r, ok := k.Rune(); ok {
		d.field = append(d.field, r)
	}
}

func (g *Guest) commit(m *machine, kind, name string) {
	dir := m.session.WorkDir
	switch kind {
	case "open":
		switch strings.ToUpper(name) {
		case strings.ToUpper(g.layout.Editor):
			if m.exists(g.layout.Editor) {
				m.screen = ScreenEditor
				return
			}
		case strings.ToUpper(g.layout.Compiler):
			if m.exists(g.layout.Compiler) {
				m.screen = ScreenCompiler
				return
			}
		}
		m.alert("cannot open " + name)

	case "merge":
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			m.alert("file not found " + name)
			return
		}
		if hasBareLF(b) {
			// The editor waits forever for a CR that never comes.
			m.screen = ScreenHung
			m.alert("bare line feed in " + name)
			return
		}
		m.program = b

	case "save":
		if len(m.program) == 0 {
			m.alert("nothing to save")
			return
		}
		g.write(dir, name, append(bytes.Clone(NativeMagic), m.program...))

	case "quit":
		m.screen = ScreenDesktop
		m.program = nil

	case "select":
		if !m.exists(name) {
			m.alert("file not found " + name)
			return
		}
		m.selected = name
		m.compiled = nil
	}
}

func (g *Guest) compile(m *machine) {
	if m.selected == "" {
		m.alert("no file selected")
		return
	}
	b, err := os.ReadFile(filepath.Join(m.session.WorkDir, m.selected))
	if err != nil || !bytes.HasPrefix(b, NativeMagic) {
		m.alert("not a GFA-BASIC file " + m.selected)
		return
	}
	m.compiled = append(bytes.Clone(ObjectMagic), b[len(NativeMagic):]...)
	if g.layout.Object != "" {
		g.write(m.session.WorkDir, g.layout.Object, m.compiled)
	}
}

func (g *Guest) link(m *machine) {
	if m.compiled == nil {
		m.alert("nothing compiled")
		return
	}
	g.write(m.session.WorkDir, g.layout.Artifact, append(bytes.Clone(ArtifactMagic), m.compiled...))
}

// write stores a file now or after WriteDelay.
func (g *Guest) write(dir, name string, b []byte) {
	path := filepath.Join(dir, name)
	do := func() {
		if err := os.WriteFile(path, b, 0o644); err != nil {
			g.logger.Warn("sim write failed", "path", path, "error", err)
		}
	}
	if g.WriteDelay <= 0 {
		do()
		return
	}
	g.pending.Add(1)
	time.AfterFunc(g.WriteDelay, func() {
		defer g.pending.Done()
		do()
	})
}

func (m *machine) exists(name string) bool {
	_, err := os.Stat(filepath.Join(m.session.WorkDir, name))
	return err == nil
}

func (m *machine) alert(msg string) {
	m.messages = append(m.messages, msg)
}

func hasBareLF(b []byte) bool {
	for i, c := range b {
		if c == '\n' && (i == 0 || b[i-1] != '\r') {
			return true
		}
	}
	return false
}
