package model

import (
	"fmt"
	"slices"
)

// Machine variants.
const (
	MachineST      = "st"
	MachineMegaST  = "megast"
	MachineSTE     = "ste"
	MachineMegaSTE = "megaste"
	MachineTT      = "tt"
	MachineFalcon  = "falcon"
)

// Firmware (TOS) versions.
const (
	TOS100 = "tos100"
	TOS102 = "tos102"
	TOS104 = "tos104"
	TOS162 = "tos162"
	TOS205 = "tos205"
	TOS206 = "tos206"
)

// Video modes.
const (
	VideoLow  = "low"
	VideoHigh = "high"
)

// Memory sizes.
const (
	Memory512K = "512k"
	Memory1M   = "1m"
	Memory2M   = "2m"
	Memory4M   = "4m"
)

// Built-in profile names.
const (
	ProfileCompile = "compile"
	ProfileRun     = "run"
)

var (
	machines = []string{MachineST, MachineMegaST, MachineSTE, MachineMegaSTE, MachineTT, MachineFalcon}
	tosList  = []string{TOS100, TOS102, TOS104, TOS162, TOS205, TOS206}
	videos   = []string{VideoLow, VideoHigh}
	memories = []string{Memory512K, Memory1M, Memory2M, Memory4M}
)

// MachineProfile describes the emulated hardware for one session. Profiles
// are values: callers copy them, nobody mutates a shared one.
type MachineProfile struct {
	Name    string `json:"name" yaml:"name"`
	Machine string `json:"machine" yaml:"machine"`
	TOS     string `json:"tos" yaml:"tos"`
	Video   string `json:"video" yaml:"video"`
	Memory  string `json:"memory" yaml:"memory"`

	HardDisk    bool `json:"hard_disk" yaml:"hard_disk"`
	Blitter     bool `json:"blitter" yaml:"blitter"`
	Sound       bool `json:"sound" yaml:"sound"`
	FastForward bool `json:"fast_forward" yaml:"fast_forward"`
	FastBoot    bool `json:"fast_boot" yaml:"fast_boot"`
	ConfirmQuit bool `json:"confirm_quit" yaml:"confirm_quit"`
}

// Validate reports the first field holding an unknown value.
func (p MachineProfile) Validate() error {
	checks := []struct {
		field, value string
		allowed      []string
	}{
		{"machine", p.Machine, machines},
		{"tos", p.TOS, tosList},
		{"video", p.Video, videos},
		{"memory", p.Memory, memories},
	}
	for _, c := range checks {
		if !slices.Contains(c.allowed, c.value) {
			return fmt.Errorf("profile %q: unsupported %s %q: must be one of %v", p.Name, c.field, c.value, c.allowed)
		}
	}
	return nil
}

// CompileProfile is the build machine: a fast-forwarded STE in monochrome
// high resolution with the working directory mounted as its hard disk.
func CompileProfile() MachineProfile {
	return MachineProfile{
		Name:        ProfileCompile,
		Machine:     MachineSTE,
		TOS:         TOS206,
		Video:       VideoHigh,
		Memory:      Memory4M,
		HardDisk:    true,
		Blitter:     true,
		FastForward: true,
		FastBoot:    true,
	}
}

// RunProfile is the interactive machine used to try a program at original
// hardware speed in colour low resolution.
func RunProfile() MachineProfile {
	return MachineProfile{
		Name:     ProfileRun,
		Machine:  MachineSTE,
		TOS:      TOS206,
		Video:    VideoLow,
		Memory:   Memory1M,
		HardDisk: true,
		Blitter:  true,
		Sound:    true,
		FastBoot: true,
	}
}

// DefaultProfiles returns the built-in profiles keyed by name.
func DefaultProfiles() map[string]MachineProfile {
	return map[string]MachineProfile{
		ProfileCompile: CompileProfile(),
		ProfileRun:     RunProfile(),
	}
}
