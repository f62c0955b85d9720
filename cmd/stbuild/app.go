package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/seantiz/stbuild/internal/backend"
	"github.com/seantiz/stbuild/internal/backend/hatari"
	"github.com/seantiz/stbuild/internal/backend/sim"
	"github.com/seantiz/stbuild/internal/completion"
	"github.com/seantiz/stbuild/internal/config"
	"github.com/seantiz/stbuild/internal/engine"
	"github.com/seantiz/stbuild/internal/input"
	"github.com/seantiz/stbuild/internal/input/xdotool"
	"github.com/seantiz/stbuild/internal/store"
	"github.com/seantiz/stbuild/internal/workdir"
)

// app holds the wired components shared by the commands.
type app struct {
	logger   *slog.Logger
	store    *store.SQLiteStore
	registry *backend.Registry
	engine   *engine.Engine
}

// newApp opens the run history and wires both guest hosts into an engine.
func newApp(cfg config.Config, logOut io.Writer) (*app, error) {
	logger := config.NewLogger(logOut, cfg.LogLevel)

	profiles, err := config.LoadProfiles(cfg.ProfilesPath)
	if err != nil {
		return nil, err
	}

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	layout := workdir.DefaultLayout()
	layout.Object = cfg.ObjectFile

	xcfg := xdotool.LoadConfig()
	hatariHost := hatari.NewHost(hatari.LoadConfig(), xdotool.NewLocator(xcfg, nil), logger)
	if err := hatariHost.Verify(); err != nil && cfg.Host == hatari.HostName {
		logger.Warn("hatari host unavailable", "error", err)
	}
	simGuest := sim.NewGuest(layout, logger)

	reg := backend.NewRegistry()
	reg.Register(hatari.HostName, hatariHost)
	reg.Register(sim.HostName, simGuest)

	eng := engine.NewEngine(db, reg, engine.Options{
		Injectors: map[string]input.Injector{
			hatari.HostName: xdotool.NewInjector(xcfg, nil, logger),
			sim.HostName:    simGuest,
		},
		Detector: completion.New(cfg.PollInterval, cfg.StableSamples, cfg.MaxWait),
		Layout:   layout,
		Timing: engine.Timing{
			Boot:    cfg.BootDelay,
			RunBoot: cfg.RunBootDelay,
			Program: cfg.StepDelay,
			Dialog:  cfg.StepDelay,
			Quit:    cfg.StepDelay,
			Compile: cfg.CompileDelay,
		},
		Profiles:    profiles,
		TemplateDir: cfg.TemplateDir,
		WorkDir:     cfg.WorkDir,
		Host:        cfg.Host,
		RunTimeout:  cfg.RunTimeout,
	}, logger)

	return &app{logger: logger, store: db, registry: reg, engine: eng}, nil
}

func (a *app) Close() error {
	a.engine.Wait()
	return a.store.Close()
}
