package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuan-noorazman/desktop-agent/actuator"
	"github.com/hairizuan-noorazman/desktop-agent/agent"
	"github.com/hairizuan-noorazman/desktop-agent/capture"
	"github.com/hairizuan-noorazman/desktop-agent/database"
	"github.com/hairizuan-noorazman/desktop-agent/execlog"
	"github.com/hairizuan-noorazman/desktop-agent/hud"
	"github.com/hairizuan-noorazman/desktop-agent/logger"
	"github.com/hairizuan-noorazman/desktop-agent/model"
	"github.com/hairizuan-noorazman/desktop-agent/run"
	"github.com/hairizuan-noorazman/desktop-agent/status"
	"github.com/hairizuan-noorazman/desktop-agent/storage"
	"github.com/hairizuan-noorazman/desktop-agent/toolcall"
	"github.com/hairizuan-noorazman/desktop-agent/window"
	"github.com/spf13/cobra"
)

// ExecutionLogName is the log file written inside every run folder.
const ExecutionLogName = "execution.log"

var (
	flagScripted      bool
	flagMaxIterations int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the agent on the primary display",
	RunE:  runAgent,
}

func init() {
	runCmd.Flags().BoolVar(&flagScripted, "test", false, "use the scripted endpoint instead of a model")
	runCmd.Flags().IntVarP(&flagMaxIterations, "max-iterations", "n", 0, "stop after this many turns (overrides config)")
	rootCmd.AddCommand(runCmd)
}

// runDirName names the dump folder of a run started at t.
func runDirName(t time.Time) string {
	return "run_" + t.Format("20060102_150405")
}

func runAgent(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if flagScripted {
		cfg.Model.Provider = model.ProviderScripted
	}
	if flagMaxIterations > 0 {
		cfg.Agent.MaxIterations = flagMaxIterations
	}

	log := logger.NewLogrusLogger(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log.Info(ctx, "starting franz", map[string]interface{}{
		"version":  Version,
		"commit":   Commit,
		"date":     BuildDate,
		"provider": cfg.Model.Provider,
	})

	identity, err := window.CurrentIdentity(ctx)
	if err != nil {
		log.Warn(ctx, "process name unavailable", map[string]interface{}{
			"pid":   identity.PID,
			"error": err.Error(),
		})
	}

	bounds, err := window.PrimaryDisplayBounds()
	if err != nil {
		return fmt.Errorf("failed to resolve primary display: %w", err)
	}

	spec := toolcall.DefaultSpec()
	if cfg.Tools.SpecFile != "" {
		if spec, err = toolcall.LoadSpec(cfg.Tools.SpecFile); err != nil {
			return fmt.Errorf("failed to load tool spec: %w", err)
		}
	}

	prompt := model.DefaultSystemPrompt
	if cfg.Model.SystemPromptFile != "" {
		data, err := os.ReadFile(cfg.Model.SystemPromptFile)
		if err != nil {
			return fmt.Errorf("failed to read system prompt: %w", err)
		}
		prompt = string(data)
	}

	endpoint, err := model.NewEndpoint(cfg.modelConfig(prompt), log)
	if err != nil {
		return fmt.Errorf("failed to create model endpoint: %w", err)
	}

	preset, err := capture.ParsePreset(cfg.Capture.Resolution)
	if err != nil {
		return err
	}

	runName := runDirName(time.Now())
	runDir := filepath.Join(cfg.Dump.Dir, runName)
	screenshots, err := storage.NewLocalStorage(runDir)
	if err != nil {
		return fmt.Errorf("failed to create run folder: %w", err)
	}

	// The HUD is up before the orchestrator exists; buttons pressed in
	// between do nothing.
	var bound atomic.Pointer[agent.Orchestrator]
	display, shown, err := openDisplay(ctx, cfg.HUD, hud.Controls{
		Pause: func() {
			if o := bound.Load(); o != nil {
				o.Pause()
			}
		},
		Resume: func() {
			if o := bound.Load(); o != nil {
				o.Resume()
			}
		},
		Stop: func() {
			if o := bound.Load(); o != nil {
				o.Stop()
			}
		},
	}, log)
	if err != nil {
		return err
	}
	defer display.Close()

	deps := agent.Deps{
		Capturer: capture.NewCapturer(capture.NewScreenGrabber(), screenshots, preset, log),
		Inspector: window.NewInspector(window.NewPlatform(), identity, bounds, log,
			window.WithTextTimeout(cfg.Inspector.TextTimeout),
			window.WithChildDepth(cfg.Inspector.ChildDepth),
		),
		Endpoint:    endpoint,
		Actuator:    actuator.NewActuator(actuator.NewRobotDriver(), log, actuator.WithOverlay(display)),
		Log:         execlog.NewWriter(filepath.Join(screenshots.Dir(), ExecutionLogName)),
		Screenshots: screenshots,
		Spec:        spec,
		Identity:    identity,
		Narrator:    display,
	}

	if cfg.Archive.Type != "" {
		archive, err := storage.New(ctx, cfg.archiveConfig(runName))
		if err != nil {
			return fmt.Errorf("failed to create archive: %w", err)
		}
		deps.Archive = archive
	}

	var (
		runs   *run.SQLStore
		record *run.Run
	)
	if cfg.Database.Enabled {
		runs, record, err = openRunRegistry(ctx, cfg, screenshots.Dir(), identity, log)
		if err != nil {
			return err
		}
		deps.Recorder = run.NewRecorder(runs, record.ID)
	}

	orch, err := agent.NewOrchestrator(agent.Config{
		MaxIterations: cfg.Agent.MaxIterations,
		TimeLimit:     cfg.Agent.TimeLimit,
		TurnDelay:     cfg.Agent.TurnDelay,
		Sampling:      cfg.Model.Sampling,
	}, deps, log)
	if err != nil {
		return err
	}
	bound.Store(orch)
	if shown && cfg.HUD.StartPaused {
		orch.Pause()
	}

	if cfg.Status.Addr != "" {
		var (
			turns run.TurnStore
			runID uuid.UUID
		)
		if record != nil {
			turns, runID = runs, record.ID
		}
		handler := status.NewHandler(orch, turns, runID, screenshots.Dir(), Version, log)
		go func() {
			if err := status.Serve(ctx, cfg.Status.Addr, handler.Router(), log); err != nil {
				log.Error(ctx, "status server error", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}()
	}

	// First signal stops the run between turns, the second aborts it.
	quit := make(chan os.Signal, 2)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	go func() {
		select {
		case <-quit:
		case <-ctx.Done():
			return
		}
		log.Info(ctx, "stop requested", nil)
		orch.Stop()
		select {
		case <-quit:
			log.Warn(ctx, "aborting run", nil)
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Info(ctx, "run started", map[string]interface{}{
		"dir":   screenshots.Dir(),
		"pid":   identity.PID,
		"tools": spec.Names(),
	})

	runErr := orch.Run(ctx)

	if record != nil {
		finishRunRecord(runs, record, orch.Status(), runErr, log)
	}

	if runErr != nil && !errors.Is(runErr, agent.ErrStopped) {
		return runErr
	}
	log.Info(ctx, "franz exiting", map[string]interface{}{
		"turns": orch.Status().Turn,
		"dir":   screenshots.Dir(),
	})
	return nil
}

// openDisplay opens the HUD window, or an in-memory stand-in when the HUD is
// disabled or the platform has none. shown reports whether a window is up.
func openDisplay(ctx context.Context, cfg HUDConfig, controls hud.Controls, log logger.Logger) (hud.Display, bool, error) {
	story := ""
	if cfg.StoryFile != "" {
		data, err := os.ReadFile(cfg.StoryFile)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read hud story: %w", err)
		}
		story = string(data)
	}
	if !cfg.Enabled {
		return hud.NewHeadless(story), false, nil
	}

	display, err := hud.New(hud.Options{
		Controls:    controls,
		StartPaused: cfg.StartPaused,
		Story:       story,
	}, log)
	if errors.Is(err, hud.ErrUnsupported) {
		log.Warn(ctx, "hud unavailable, running headless", nil)
		return hud.NewHeadless(story), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to open hud: %w", err)
	}
	return display, true, nil
}

// openRunRegistry connects the database, applies migrations and registers
// a new running Run.
func openRunRegistry(ctx context.Context, cfg *Config, dir string, identity window.Identity, log logger.Logger) (*run.SQLStore, *run.Run, error) {
	dbCfg := cfg.databaseConfig()
	db, err := database.Connect(dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := database.RunMigrations(sqlDB, dbCfg.Driver); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	store := run.NewSQLStore(db, log)
	record := &run.Run{
		Dir:       dir,
		ProcessID: identity.PID,
		Provider:  cfg.Model.Provider,
		Config: run.JSONMap{
			"max_iterations": cfg.Agent.MaxIterations,
			"time_limit":     cfg.Agent.TimeLimit.String(),
			"resolution":     cfg.Capture.Resolution,
			"model":          cfg.Model.Name,
		},
	}
	if err := store.Create(ctx, record); err != nil {
		return nil, nil, fmt.Errorf("failed to register run: %w", err)
	}
	if err := store.Start(ctx, record.ID); err != nil {
		return nil, nil, fmt.Errorf("failed to start run: %w", err)
	}

	return store, record, nil
}

// finishRunRecord stores the outcome of a run. The run context may already
// be cancelled, so a fresh one is used.
func finishRunRecord(store run.Store, record *run.Run, st agent.Status, runErr error, log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	final := run.StatusSuccess
	result := run.JSONMap{"turns": st.Turn}
	switch {
	case errors.Is(runErr, agent.ErrStopped):
		final = run.StatusStopped
	case runErr != nil:
		final = run.StatusFailed
		result["error"] = runErr.Error()
	}
	if st.LastOutcome != "" {
		result["last_outcome"] = string(st.LastOutcome)
	}

	if err := store.Complete(ctx, record.ID, final, result); err != nil {
		log.Error(ctx, "failed to complete run record", map[string]interface{}{
			"run_id": record.ID.String(),
			"error":  err.Error(),
		})
	}
}
