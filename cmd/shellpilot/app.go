package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"shellpilot/internal/config"
	"shellpilot/internal/logger"
	"shellpilot/internal/orchestrator"
	"shellpilot/internal/shellintegration"
	"shellpilot/internal/stringprocessing"
	"shellpilot/internal/terminal"
	"shellpilot/internal/testutils"
	"shellpilot/pkg/shelltypes"
)

// app is the engine wired for the CLI. Request defaults follow cfg, which the
// interactive shell swaps when the config file changes.
type app struct {
	orch    *orchestrator.Orchestrator
	locator shelltypes.ShellLocator
	log     *log.Logger

	mu  sync.RWMutex
	cfg *config.Config
}

// runOptions are the per-request settings that do not come from configuration.
type runOptions struct {
	session string
	reuse   bool
	cwd     string
	env     map[string]string
}

// newApp builds the engine from the effective settings.
func newApp(v *viper.Viper, deterministic bool) (*app, error) {
	if v == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	filter, err := loadFilter(cfg.PatternFile)
	if err != nil {
		return nil, err
	}

	locator := terminal.NewLocator()
	orch := orchestrator.New(orchestrator.Deps{
		Spawner:    terminal.NewSpawner(locator),
		Locator:    locator,
		Negotiator: shellintegration.NewNegotiator(cfg.CacheTTL, cfg.HandshakeTimeout),
	},
		orchestrator.WithConfig(cfg),
		orchestrator.WithFilter(filter),
		orchestrator.WithIDFunc(testutils.NewIDFunc(deterministic)),
	)
	return newAppWith(orch, locator, cfg), nil
}

// newAppWith wraps an existing orchestrator.
func newAppWith(orch *orchestrator.Orchestrator, locator shelltypes.ShellLocator, cfg *config.Config) *app {
	return &app{
		orch:    orch,
		locator: locator,
		log:     logger.NewStyledLogger("CLI"),
		cfg:     cfg,
	}
}

func loadFilter(path string) (*stringprocessing.Filter, error) {
	if path == "" {
		return stringprocessing.DefaultFilter(), nil
	}
	table, err := stringprocessing.LoadPatternTable(path)
	if err != nil {
		return nil, err
	}
	return stringprocessing.NewFilter(table)
}

func (a *app) config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// reload replaces the request defaults. The orchestrator keeps the shell and
// budgets it was built with; requests pick up the new values.
func (a *app) reload(cfg *config.Config) {
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	a.log.Info("Request defaults updated", "timeout", cfg.Timeout, "sandbox", cfg.Sandbox, "monitor", cfg.AutoMonitor)
}

// request builds an execution request for command from the current defaults.
func (a *app) request(command string, opts runOptions) shelltypes.ExecutionRequest {
	cfg := a.config()
	return shelltypes.ExecutionRequest{
		Command:          command,
		Timeout:          cfg.Timeout,
		CaptureOutput:    true,
		AutoMonitor:      cfg.AutoMonitor,
		SandboxEnabled:   cfg.Sandbox,
		RequireApproval:  cfg.RequireApproval,
		PreFilter:        cfg.PreFilter,
		MaxOutputChars:   cfg.MaxOutputChars,
		WorkingDirectory: opts.cwd,
		SessionName:      opts.session,
		ReuseSession:     opts.reuse,
		Env:              opts.env,
	}
}

// follow polls a handed-off command until it stops running. Cancelling ctx
// stops the monitor but leaves the command alone.
func (a *app) follow(ctx context.Context, session string, every time.Duration) (orchestrator.MonitorSnapshot, error) {
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		snap, ok := a.orch.Poll(session)
		if !ok {
			return snap, fmt.Errorf("no monitored command in session %q", session)
		}
		if snap.State != orchestrator.MonitorRunning {
			return snap, nil
		}

		select {
		case <-ctx.Done():
			a.orch.Cancel(session)
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *app) close() {
	if err := a.orch.Close(); err != nil {
		a.log.Warn("Failed to close sessions", "error", err)
	}
}
