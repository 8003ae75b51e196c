// Package app wires configuration into the pipelines and the HTTP handler.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tripsense/config"
	"tripsense/db"
	qhttp "tripsense/http"
	"tripsense/ml"
	"tripsense/monitoring"
)

// App holds everything built at startup. Close releases the store.
type App struct {
	Handler *qhttp.Handler
	Hub     *monitoring.Hub
	Metrics *monitoring.Metrics
	Store   *db.Store
	Server  qhttp.ServerConfig
}

// Build loads every artifact named by cfg. Any failure is a startup failure.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	artifacts := ml.NewArtifactReader(cfg.Artifacts.Region)
	deps := qhttp.Dependencies{Logger: logger}

	if cfg.Trajectory.Enabled {
		pipeline, err := buildTrajectory(ctx, artifacts, cfg.Trajectory)
		if err != nil {
			return nil, fmt.Errorf("trajectory pipeline: %w", err)
		}
		deps.Trajectory = pipeline
		logger.Info("trajectory pipeline ready",
			zap.Int("window", pipeline.Shape().Length),
			zap.String("model", cfg.Trajectory.Model.Type),
		)
	}
	if cfg.Activity.Enabled {
		pipeline, err := buildActivity(ctx, artifacts, cfg.Activity)
		if err != nil {
			return nil, fmt.Errorf("activity pipeline: %w", err)
		}
		deps.Activity = pipeline
		logger.Info("activity pipeline ready",
			zap.Int("window", pipeline.Shape().Length),
			zap.Int("features", pipeline.Shape().Width),
			zap.String("model", cfg.Activity.Model.Type),
		)
	}

	a := &App{
		Hub:     monitoring.NewHub(logger),
		Metrics: monitoring.NewMetrics(),
		Server: qhttp.ServerConfig{
			Port:           cfg.HTTP.Port,
			Timeout:        cfg.HTTP.Timeout,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		},
	}
	if cfg.Database.Driver != "" {
		store, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("prediction store: %w", err)
		}
		a.Store = store
		deps.Store = store
	}
	deps.Hub = a.Hub
	deps.Metrics = a.Metrics
	a.Handler = qhttp.NewHandler(deps)
	return a, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

func buildTrajectory(ctx context.Context, artifacts *ml.ArtifactReader, cfg config.TrajectoryConfig) (*ml.Pipeline, error) {
	shape := ml.Shape{Length: cfg.WindowSize, Width: ml.TrajectoryFeatures}

	scaler, err := ml.LoadScaler(ctx, artifacts, cfg.Scaler)
	if err != nil {
		return nil, err
	}
	labels := ml.TrajectoryLabels
	if cfg.Labels != "" {
		if labels, err = ml.LoadLabels(ctx, artifacts, cfg.Labels); err != nil {
			return nil, err
		}
	}
	decoder, err := ml.NewDirectDecoder(labels)
	if err != nil {
		return nil, err
	}
	classifier, err := loadClassifier(ctx, artifacts, cfg.Model, shape, cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return ml.NewPipeline(ml.PipelineConfig{
		Name:       qhttp.VariantTrajectory,
		Shape:      shape,
		Scaler:     scaler,
		Classifier: classifier,
		Decoder:    decoder,
	})
}

func buildActivity(ctx context.Context, artifacts *ml.ArtifactReader, cfg config.ActivityConfig) (*ml.Pipeline, error) {
	params, err := ml.LoadPreprocessingParams(ctx, artifacts, cfg.Params)
	if err != nil {
		return nil, err
	}
	shape := params.Shape()

	scaler, err := ml.LoadScaler(ctx, artifacts, cfg.Scaler)
	if err != nil {
		return nil, err
	}
	labels := ml.ActivityLabels
	if cfg.Labels != "" {
		if labels, err = ml.LoadLabels(ctx, artifacts, cfg.Labels); err != nil {
			return nil, err
		}
	}
	classes := ml.ActivityCodes
	if cfg.LabelEncoder != "" {
		if classes, err = ml.LoadEncoderClasses(ctx, artifacts, cfg.LabelEncoder); err != nil {
			return nil, err
		}
	}
	decoder, err := ml.NewIndirectDecoder(classes, labels)
	if err != nil {
		return nil, err
	}
	classifier, err := loadClassifier(ctx, artifacts, cfg.Model, shape, cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return ml.NewPipeline(ml.PipelineConfig{
		Name:       qhttp.VariantActivity,
		Shape:      shape,
		Scaler:     scaler,
		Classifier: classifier,
		Decoder:    decoder,
	})
}

func loadClassifier(ctx context.Context, artifacts *ml.ArtifactReader, cfg ml.ModelConfig, shape ml.Shape, cacheSize int) (ml.Classifier, error) {
	classifier, err := ml.LoadModel(ctx, artifacts, cfg, shape)
	if err != nil {
		return nil, err
	}
	if cacheSize <= 0 {
		return classifier, nil
	}
	cached, err := ml.NewCachedClassifier(classifier, cacheSize)
	if err != nil {
		return nil, err
	}
	return cached, nil
}
