package ml

import (
	"context"
	"encoding/json"
	"fmt"
)

// PipelineConfig holds the parts loaded once at startup.
type PipelineConfig struct {
	Name       string
	Shape      Shape
	Scaler     *Scaler
	Classifier Classifier
	Decoder    LabelDecoder
}

// Pipeline validates, normalizes, classifies and decodes one window. It holds
// no mutable state and is shared by all requests.
type Pipeline struct {
	name       string
	shape      Shape
	scaler     *Scaler
	classifier Classifier
	decoder    LabelDecoder
}

type Prediction struct {
	Label      string    `json:"label"`
	ClassIndex int       `json:"class_index"`
	Code       int       `json:"code"`
	Scores     []float64 `json:"scores,omitempty"`
}

func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	switch {
	case cfg.Shape.Length <= 0 || cfg.Shape.Width <= 0:
		return nil, configError("%s: invalid window shape %dx%d", cfg.Name, cfg.Shape.Length, cfg.Shape.Width)
	case cfg.Scaler == nil:
		return nil, configError("%s: scaler is required", cfg.Name)
	case cfg.Classifier == nil:
		return nil, configError("%s: classifier is required", cfg.Name)
	case cfg.Decoder == nil:
		return nil, configError("%s: label decoder is required", cfg.Name)
	}
	if cfg.Scaler.Features() != cfg.Shape.Width {
		return nil, configError("%s: scaler has %d features, window width is %d", cfg.Name, cfg.Scaler.Features(), cfg.Shape.Width)
	}
	if counter, ok := cfg.Classifier.(ClassCounter); ok && counter.NumClasses() > 0 {
		if n := counter.NumClasses(); n != cfg.Decoder.Size() {
			return nil, configError("%s: model has %d classes, label decoder accepts %d", cfg.Name, n, cfg.Decoder.Size())
		}
	}
	return &Pipeline{
		name:       cfg.Name,
		shape:      cfg.Shape,
		scaler:     cfg.Scaler,
		classifier: cfg.Classifier,
		decoder:    cfg.Decoder,
	}, nil
}

func (p *Pipeline) Name() string {
	return p.name
}

func (p *Pipeline) Shape() Shape {
	return p.shape
}

func (p *Pipeline) Labels() []string {
	return p.decoder.Labels()
}

// Predict runs the full pipeline. Shape errors are returned before any
// numeric work; classifier errors are wrapped as ErrPrediction.
func (p *Pipeline) Predict(ctx context.Context, window Window) (Prediction, error) {
	if err := p.shape.Validate(window); err != nil {
		return Prediction{}, err
	}
	scaled, err := p.scaler.Transform(window)
	if err != nil {
		return Prediction{}, err
	}
	idx, scores, err := p.classifier.Classify(ctx, scaled)
	if err != nil {
		return Prediction{}, predictionError(err)
	}
	label, code, err := p.decoder.Decode(idx)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{
		Label:      label,
		ClassIndex: idx,
		Code:       code,
		Scores:     scores,
	}, nil
}

// PreprocessingParams is the activity model's preprocessing_params.json.
type PreprocessingParams struct {
	WindowSize int      `json:"window_size"`
	SensorCols []string `json:"sensor_cols"`
}

func (p PreprocessingParams) Shape() Shape {
	return Shape{Length: p.WindowSize, Width: len(p.SensorCols)}
}

func LoadPreprocessingParams(ctx context.Context, artifacts *ArtifactReader, uri string) (PreprocessingParams, error) {
	var params PreprocessingParams
	data, err := artifacts.Read(ctx, uri)
	if err != nil {
		return params, configError("preprocessing params %s: %v", uri, err)
	}
	if err := json.Unmarshal(data, &params); err != nil {
		return params, configError("preprocessing params %s: %v", uri, err)
	}
	if params.WindowSize <= 0 || len(params.SensorCols) == 0 {
		return params, fmt.Errorf("%w: preprocessing params %s: window_size %d with %d sensor columns",
			ErrConfiguration, uri, params.WindowSize, len(params.SensorCols))
	}
	return params, nil
}
