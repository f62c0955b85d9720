package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/stbuild/internal/api"
	"github.com/seantiz/stbuild/internal/engine"
	"github.com/seantiz/stbuild/internal/model"
)

// stopTimeout bounds "stop".
const stopTimeout = 30 * time.Second

func runCompile(cmd *cobra.Command, args []string) error {
	return runTask(cmd, model.TaskCompile, args[0])
}

func runRun(cmd *cobra.Command, args []string) error {
	return runTask(cmd, model.TaskRun, args[0])
}

// runTask drives one workflow in the foreground. Interrupting it cancels the
// workflow, which still stops the emulator.
func runTask(cmd *cobra.Command, task, source string) error {
	a, err := newApp(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req := engine.Request{Source: source, Profile: flagProfile}
	var run *model.Run
	if task == model.TaskCompile {
		run, err = a.engine.Compile(ctx, req)
	} else {
		run, err = a.engine.Run(ctx, req)
	}
	if run == nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(run); encErr != nil {
			return encErr
		}
		return err
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", task, err)
	}

	switch task {
	case model.TaskCompile:
		size := int64(0)
		if run.ArtifactSize != nil {
			size = *run.ArtifactSize
		}
		fmt.Fprintf(out, "%s (%d bytes) in %dms\n", run.ArtifactPath, size, *run.DurationMS)
	case model.TaskRun:
		fmt.Fprintf(out, "running %s on %s; stop with \"stbuild stop\"\n", run.SourcePath, run.Host)
	}
	return nil
}

func runStop(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), stopTimeout)
	defer cancel()

	n, err := a.engine.StopSessions(ctx, cfg.WorkDir)
	fmt.Fprintf(cmd.OutOrStdout(), "stopped %d session(s)\n", n)
	return err
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	a.logger.Info("stbuild: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"workdir", cfg.WorkDir,
		"host", cfg.Host,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return api.NewServer(cfg.ListenAddr, a.store, a.registry, a.engine, a.logger).Run(ctx)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	runs, total, err := a.store.ListRuns(cmd.Context(), flagLimit, 0)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if runs == nil {
			runs = []*model.Run{}
		}
		return json.NewEncoder(out).Encode(runs)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTASK\tSTATUS\tSTATE\tHOST\tCREATED\tSOURCE")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Task, r.Status, r.State, r.Host, r.CreatedAt.Local().Format(time.DateTime), r.SourcePath)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d of %d runs\n", len(runs), total)
	return nil
}

func runVersion(cmd *cobra.Command, _ []string) {
	out := cmd.OutOrStdout()
	if jsonOutput {
		_ = json.NewEncoder(out).Encode(map[string]string{
			"version":    Version,
			"commit":     Commit,
			"build_time": BuildTime,
		})
		return
	}
	fmt.Fprintf(out, "stbuild %s (commit %s, built %s)\n", Version, Commit, BuildTime)
}
