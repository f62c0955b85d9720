package backend

import (
	"context"
	"time"

	"github.com/seantiz/stbuild/internal/model"
)

// Host is the interface that all emulator hosts must implement. A host boots
// a guest machine with a working directory mounted as its hard disk and can
// shut it down again.
type Host interface {
	// Start launches a guest with the given profile and returns once its
	// window can receive input. The context bounds the boot, not the session.
	Start(ctx context.Context, profile model.MachineProfile, workDir string) (*Session, error)

	// Stop terminates the session. Stopping an already stopped session is a
	// no-op.
	Stop(ctx context.Context, s *Session) error

	// Capabilities reports what this host supports.
	Capabilities() Capabilities
}

// Session is a running guest.
type Session struct {
	ID        string               `json:"id"`
	Host      string               `json:"host"`
	PID       int                  `json:"pid"`
	Window    string               `json:"window"`
	Profile   model.MachineProfile `json:"profile"`
	WorkDir   string               `json:"work_dir"`
	StartedAt time.Time            `json:"started_at"`
}

// Capabilities describes what a host supports.
type Capabilities struct {
	Name           string   `json:"name"`
	Machines       []string `json:"machines"`
	Interactive    bool     `json:"interactive"`
	MaxConcurrency int      `json:"max_concurrency"`
}

// SessionStopper is implemented by hosts that can find and stop guests they
// did not start themselves, such as ones left behind by an earlier process.
type SessionStopper interface {
	StopMatching(ctx context.Context, workDir string) (int, error)
}
