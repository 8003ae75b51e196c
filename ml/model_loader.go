package ml

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sagemakerruntime"
)

type ModelConfig struct {
	Type     string        `yaml:"type"`
	Path     string        `yaml:"path"`
	Endpoint string        `yaml:"endpoint"`
	Region   string        `yaml:"region"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LoadModel builds the classifier named by cfg.Type. Local models are checked
// against the pipeline shape here so a mismatch stops startup.
func LoadModel(ctx context.Context, artifacts *ArtifactReader, cfg ModelConfig, shape Shape) (Classifier, error) {
	switch cfg.Type {
	case "linear":
		model := &LinearModel{}
		if err := loadJSON(ctx, artifacts, cfg.Path, model); err != nil {
			return nil, err
		}
		if err := model.validate(shape.Size()); err != nil {
			return nil, err
		}
		return model, nil
	case "decision_tree":
		model := &DecisionTree{}
		if err := loadJSON(ctx, artifacts, cfg.Path, model); err != nil {
			return nil, err
		}
		if err := model.validate(shape.Size()); err != nil {
			return nil, err
		}
		return model, nil
	case "sagemaker":
		if cfg.Endpoint == "" {
			return nil, configError("sagemaker model: endpoint is required")
		}
		awsCfg := &aws.Config{}
		if cfg.Region != "" {
			awsCfg.Region = aws.String(cfg.Region)
		}
		if cfg.Timeout > 0 {
			awsCfg.HTTPClient = newHTTPClient(cfg.Timeout)
		}
		sess, err := session.NewSession(awsCfg)
		if err != nil {
			return nil, configError("sagemaker model: %v", err)
		}
		return NewSageMakerClassifier(sagemakerruntime.New(sess), cfg.Endpoint), nil
	case "http":
		if cfg.Endpoint == "" {
			return nil, configError("http model: endpoint is required")
		}
		return NewHTTPClassifier(cfg.Endpoint, cfg.Timeout), nil
	default:
		return nil, configError("unsupported model type %q", cfg.Type)
	}
}

func loadJSON(ctx context.Context, artifacts *ArtifactReader, uri string, v any) error {
	data, err := artifacts.Read(ctx, uri)
	if err != nil {
		return configError("model %s: %v", uri, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return configError("model %s: %v", uri, err)
	}
	return nil
}
