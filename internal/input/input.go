// Package input defines how the orchestrator delivers keystrokes to an
// emulator window.
package input

import (
	"context"
	"errors"

	"github.com/seantiz/stbuild/internal/keys"
)

// ErrInvalidWindow is returned when the target window does not exist or can
// no longer receive input.
var ErrInvalidWindow = errors.New("invalid window")

// Injector delivers synthetic key events to a window.
//
// Implementations must release every key they pressed on all exit paths,
// including failures, so the guest is never left with a stuck key.
type Injector interface {
	// Focus brings the window to the foreground and gives it keyboard focus.
	Focus(ctx context.Context, window string) error

	// SendSequential presses and releases each key in turn.
	SendSequential(ctx context.Context, window string, codes []keys.Code) error

	// SendSimultaneous presses all keys, holds them, then releases them all.
	SendSimultaneous(ctx context.Context, window string, codes []keys.Code) error
}
