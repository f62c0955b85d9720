package hatari

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/seantiz/stbuild/internal/model"
)

// HostName is the name used when registering with the host registry.
const HostName = "hatari"

// Defaults.
const (
	DefaultBin           = "hatari"
	DefaultWindowTimeout = 30 * time.Second
	DefaultStopTimeout   = 5 * time.Second

	// MaxSessions is the number of emulators one host will run at once.
	// Each needs its own working directory.
	MaxSessions = 4

	// soundFrequency is used when a profile enables sound.
	soundFrequency = 44100
)

// TOSFilename is the format string for firmware image filenames (e.g. "tos206.img").
const TOSFilename = "%s.img"

// SupportedMachines lists the machine types Hatari emulates.
var SupportedMachines = []string{
	model.MachineST, model.MachineMegaST, model.MachineSTE,
	model.MachineMegaSTE, model.MachineTT, model.MachineFalcon,
}

// memsize maps profile memory sizes to Hatari's --memsize values, where 0
// means 512 KiB.
var memsize = map[string]int{
	model.Memory512K: 0,
	model.Memory1M:   1,
	model.Memory2M:   2,
	model.Memory4M:   4,
}

// TOSPath returns the firmware image for a TOS version.
func TOSPath(tosDir, tos string) string {
	return filepath.Join(tosDir, fmt.Sprintf(TOSFilename, tos))
}

// Args builds the Hatari command line for a profile with dir mounted as the
// GEMDOS hard drive.
func Args(cfg Config, p model.MachineProfile, dir string) []string {
	args := []string{"--machine", p.Machine}

	if cfg.TOSDir != "" {
		args = append(args, "--tos", TOSPath(cfg.TOSDir, p.TOS))
	}

	monitor := "rgb"
	if p.Video == model.VideoHigh {
		monitor = "mono"
	}
	args = append(args, "--monitor", monitor)
	args = append(args, "--memsize", strconv.Itoa(memsize[p.Memory]))

	if p.HardDisk {
		args = append(args, "--harddrive", dir)
	}

	sound := "off"
	if p.Sound {
		sound = strconv.Itoa(soundFrequency)
	}
	args = append(args,
		"--blitter", strconv.FormatBool(p.Blitter),
		"--sound", sound,
		"--fast-forward", strconv.FormatBool(p.FastForward),
		"--fast-boot", strconv.FormatBool(p.FastBoot),
		"--confirm-quit", strconv.FormatBool(p.ConfirmQuit),
		"-w",
	)

	return append(args, cfg.ExtraArgs...)
}
