package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/untoldecay/obsbridge/internal/config"
	"github.com/untoldecay/obsbridge/internal/gateway"
	"github.com/untoldecay/obsbridge/internal/gateway/memory"
	"github.com/untoldecay/obsbridge/internal/safeio"
)

// runtime is the shared per-invocation wiring: config, logging, the gateway,
// and state-dir layout.
type runtime struct {
	cfg    config.Config
	logger *slog.Logger
	gw     *memory.Gateway
	runID  string
}

func newRuntime() (*runtime, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.StateDir, 0750); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	logger := setupLogging(cfg.StateDir)
	for _, verr := range cfg.Validate() {
		logger.Warn("dropping config entry", "err", verr)
		fmt.Fprintln(os.Stderr, "warning:", verr)
	}
	if len(cfg.Vaults) == 0 {
		return nil, errors.New("no usable vaults configured")
	}
	if len(cfg.Lists) == 0 {
		return nil, errors.New("no usable reminders lists configured")
	}

	r := &runtime{cfg: cfg, logger: logger, runID: safeio.NewRunID()}
	if err := r.openGateway(); err != nil {
		return nil, err
	}
	r.logger.Info("run started", "run_id", r.runID)
	return r, nil
}

// setupLogging routes structured logs to a rotating file under the state
// dir. The terminal stays reserved for the run report.
func setupLogging(stateDir string) *slog.Logger {
	rotor := &lumberjack.Logger{
		Filename:   filepath.Join(stateDir, "logs", "obr.log"),
		MaxSize:    10, // MiB
		MaxBackups: 3,
		MaxAge:     30, // days
	}
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(rotor, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// openGateway builds the gateway for this run. Only the file-backed
// in-memory gateway ships in this build; the platform gateway is linked in
// elsewhere.
func (r *runtime) openGateway() error {
	if !flagFakeGateway {
		return errors.New("platform gateway is not available in this build; run with --fake-gateway")
	}
	g := memory.New(r.cfg.ListIDs()...)
	var items []gateway.Item
	if _, err := safeio.LoadJSONBounded(r.gatewayPath(), &items, 0); err != nil {
		return fmt.Errorf("loading gateway state: %w", err)
	}
	for _, item := range items {
		g.Seed(item)
	}
	r.gw = g
	return nil
}

// saveGateway persists the fake gateway's items for the next invocation.
func (r *runtime) saveGateway() error {
	return safeio.SaveJSON(r.gatewayPath(), r.gw.Snapshot())
}

// vaultPaths maps vault names to their absolute roots.
func (r *runtime) vaultPaths() map[string]string {
	paths := make(map[string]string, len(r.cfg.Vaults))
	for _, v := range r.cfg.Vaults {
		paths[v.Name] = v.Path
	}
	return paths
}

func (r *runtime) statePath(name string) string {
	return filepath.Join(r.cfg.StateDir, name)
}

func (r *runtime) mdIndexPath() string  { return r.statePath("md_index.json") }
func (r *runtime) remIndexPath() string { return r.statePath("rem_index.json") }
func (r *runtime) linksPath() string    { return r.statePath("links.json") }
func (r *runtime) gatewayPath() string  { return r.statePath("gateway.json") }
func (r *runtime) cachePath() string    { return r.statePath("parse_cache.db") }
func (r *runtime) lockPath() string     { return r.statePath("sync") }

func (r *runtime) changesetPath() string {
	return filepath.Join(r.cfg.StateDir, "changesets", r.runID+".json")
}
