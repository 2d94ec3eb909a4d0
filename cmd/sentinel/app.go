package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/songzhibin97/gkit/generator"
	"github.com/spf13/cobra"

	"github.com/songzhibin97/sentinel/classifier"
	"github.com/songzhibin97/sentinel/config"
	"github.com/songzhibin97/sentinel/events"
	"github.com/songzhibin97/sentinel/logging"
	"github.com/songzhibin97/sentinel/metrics"
	"github.com/songzhibin97/sentinel/model"
	"github.com/songzhibin97/sentinel/storage"
	"github.com/songzhibin97/sentinel/workflow"
)

// idEpoch is the snowflake epoch for evaluation IDs.
var idEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// app wires the workflow engine and its dependencies.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	engine  *workflow.WorkflowEngine
	metrics *metrics.Metrics
	closers []io.Closer
}

func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(cmd.ErrOrStderr(), level, cfg.LogFormat), nil
}

// newApp loads the model artifacts and builds the engine. Artifact
// failures are returned so the process exits before serving anything.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	artifacts, err := model.LoadArtifacts(cfg.ScalerPath, cfg.ModelPath, cfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to load model artifacts: %w", err)
	}
	logger.Info("model artifacts loaded",
		"scaler", cfg.ScalerPath,
		"model", cfg.ModelPath,
		"trees", artifacts.Booster.Trees(),
		"threshold", cfg.Threshold,
	)

	adapter, err := classifier.NewAdapter(artifacts.Scaler, artifacts.Booster, logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	store, err := a.openStorage()
	if err != nil {
		return nil, err
	}

	engine, err := workflow.NewWorkflowEngine(
		generator.NewSnowflake(idEpoch, cfg.MachineID),
		store,
		nil,
		adapter,
		workflow.WithLogger(logger),
		workflow.WithEventBufferSize(cfg.EventBufferSize),
	)
	if err != nil {
		a.closeAll()
		return nil, err
	}

	a.engine = engine
	a.metrics = metrics.NewMetrics()
	engine.SubscribeEvent(events.EventEvaluationCompleted, a.metrics)
	return a, nil
}

func (a *app) openStorage() (storage.Storage, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendRedis:
		store, err := storage.NewRedisStorage(storage.RedisOptions{
			Addr:     a.cfg.Storage.RedisAddr,
			Password: a.cfg.Storage.RedisPassword,
			DB:       a.cfg.Storage.RedisDB,
			TTL:      a.cfg.Storage.RedisTTL,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		a.logger.Info("audit storage", "backend", config.BackendRedis, "addr", a.cfg.Storage.RedisAddr)
		return store, nil
	default:
		a.logger.Info("audit storage", "backend", config.BackendMemory, "capacity", a.cfg.Storage.AuditCapacity)
		return storage.NewMemoryStorage(a.cfg.Storage.AuditCapacity), nil
	}
}

// Close drains pending events and releases storage connections.
func (a *app) Close(ctx context.Context) {
	if a.engine != nil {
		if err := a.engine.Stop(ctx); err != nil {
			a.logger.Error("failed to stop engine", "error", err)
		}
	}
	a.closeAll()
}

func (a *app) closeAll() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Error("failed to close resource", "error", err)
		}
	}
	a.closers = nil
}
