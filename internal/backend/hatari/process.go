package hatari

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// StopMatching stops every Hatari process serving workDir, including ones
// started by other stbuild processes. It returns how many were stopped.
func (h *Host) StopMatching(ctx context.Context, workDir string) (int, error) {
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return 0, err
	}

	stopped := 0
	var errs []error

	// Sessions this host started are stopped through Stop so the reaper and
	// gauges stay consistent.
	for _, s := range h.Sessions() {
		if s.WorkDir != workDir && s.WorkDir != abs {
			continue
		}
		if err := h.Stop(ctx, s); err != nil {
			errs = append(errs, err)
			continue
		}
		stopped++
	}

	pids, err := h.findMatching(ctx, []string{workDir, abs})
	if err != nil {
		return stopped, errors.Join(append(errs, err)...)
	}
	for _, pid := range pids {
		if err := h.terminate(ctx, pid, nil, h.cfg.StopTimeout); err != nil {
			errs = append(errs, err)
			continue
		}
		h.logger.Info("stopped stray hatari", "pid", pid, "work_dir", workDir)
		stopped++
	}

	return stopped, errors.Join(errs...)
}

// findMatching returns PIDs of Hatari processes whose command line mounts
// one of dirs as the hard drive.
func (h *Host) findMatching(ctx context.Context, dirs []string) ([]int32, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	bin := filepath.Base(h.cfg.Bin)
	self := int32(os.Getpid())

	var found []int32
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		args, err := p.CmdlineSliceWithContext(ctx)
		if err != nil || len(args) == 0 {
			continue // Process may have exited
		}
		if matches(args, bin, dirs) {
			found = append(found, p.Pid)
		}
	}
	return found, nil
}

// matches reports whether a command line runs bin with --harddrive set to
// one of dirs. The binary may appear as argv[0] or, for wrapper scripts, as
// the first argument.
func matches(args []string, bin string, dirs []string) bool {
	isHatari := false
	for _, a := range args[:min(2, len(args))] {
		if strings.EqualFold(filepath.Base(a), bin) {
			isHatari = true
		}
	}
	if !isHatari {
		return false
	}

	for i := 0; i+1 < len(args); i++ {
		if args[i] != "--harddrive" {
			continue
		}
		for _, d := range dirs {
			if filepath.Clean(args[i+1]) == filepath.Clean(d) {
				return true
			}
		}
	}
	return false
}
