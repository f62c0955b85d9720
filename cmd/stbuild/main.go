// Package main is the CLI entry point for stbuild.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/seantiz/stbuild/internal/config"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stbuild",
	Short: "Build and run GFA-BASIC programs in an emulated Atari ST",
	Long: `stbuild drives the GFA-BASIC editor and compiler inside the Hatari
emulator by typing into its window, the way a person at the keyboard would.

A working directory is mounted into the guest as drive C. It holds the
editor, the compiler and the per-run source and output files.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var compileCmd = &cobra.Command{
	Use:   "compile <source>",
	Short: "Compile a listing into a program",
	Long: `Stages the listing, converts it to the editor's native format, compiles
and links it, and stops the emulator. The program is left in the working
directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

var runCmd = &cobra.Command{
	Use:   "run <source>",
	Short: "Load a listing into the editor and start it",
	Long: `Stages the listing, merges it into the editor and starts it at original
hardware speed. The emulator is left running; use "stbuild stop" to end it.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop emulators serving the working directory",
	RunE:  runStop,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long:  `Serves run submission, history, event streams and metrics over HTTP.`,
	RunE:  runServe,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs",
	RunE:  runHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

// Flag values. Empty strings leave the environment configuration alone.
var (
	flagWorkDir  string
	flagTemplate string
	flagHost     string
	flagDB       string
	flagProfiles string
	flagVerbose  bool

	flagProfile string
	flagListen  string
	flagLimit   int
	jsonOutput  bool
)

// cfg is the configuration every command runs with.
var cfg config.Config

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagWorkDir, "workdir", "", "working directory mounted as drive C")
	pf.StringVar(&flagTemplate, "template", "", "directory that seeds an empty working directory")
	pf.StringVar(&flagHost, "host", "", "guest host (hatari or sim)")
	pf.StringVar(&flagDB, "db", "", "run history database")
	pf.StringVar(&flagProfiles, "profiles", "", "YAML file of machine profiles")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "log at debug level")

	for _, c := range []*cobra.Command{compileCmd, runCmd} {
		c.Flags().StringVar(&flagProfile, "profile", "", "machine profile (defaults to the task's own)")
		c.Flags().BoolVar(&jsonOutput, "json", false, "print the run as JSON")
	}
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "listen address")
	historyCmd.Flags().IntVar(&flagLimit, "limit", 20, "number of runs to show")
	historyCmd.Flags().BoolVar(&jsonOutput, "json", false, "print runs as JSON")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(_ *cobra.Command, _ []string) error {
	cfg = config.Load()

	overrides := []struct {
		flag string
		into *string
	}{
		{flagWorkDir, &cfg.WorkDir},
		{flagTemplate, &cfg.TemplateDir},
		{flagHost, &cfg.Host},
		{flagDB, &cfg.DBPath},
		{flagProfiles, &cfg.ProfilesPath},
		{flagListen, &cfg.ListenAddr},
	}
	for _, o := range overrides {
		if o.flag != "" {
			*o.into = o.flag
		}
	}
	if flagVerbose {
		cfg.LogLevel = slog.LevelDebug
	}
	return nil
}
