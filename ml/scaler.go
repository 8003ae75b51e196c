package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// ScalerParams is the persisted form of a fitted per-feature scaler. The field
// names follow what the training side exports for each scaler kind.
type ScalerParams struct {
	Kind    string    `json:"kind"`
	Offset  []float64 `json:"offset,omitempty"`
	Mean    []float64 `json:"mean,omitempty"`
	Center  []float64 `json:"center,omitempty"`
	Scale   []float64 `json:"scale,omitempty"`
	DataMin []float64 `json:"data_min,omitempty"`
	DataMax []float64 `json:"data_max,omitempty"`
}

// Scaler applies (x - offset[f]) / scale[f] column-wise.
type Scaler struct {
	kind   string
	offset []float64
	scale  []float64
}

func NewScaler(params ScalerParams) (*Scaler, error) {
	kind := params.Kind
	if kind == "" {
		kind = inferScalerKind(params)
	}

	var offset, scale []float64
	switch kind {
	case "standard":
		offset, scale = params.Mean, params.Scale
	case "robust":
		offset, scale = params.Center, params.Scale
	case "affine":
		offset, scale = params.Offset, params.Scale
	case "minmax":
		if len(params.DataMin) != len(params.DataMax) {
			return nil, configError("scaler: data_min has %d features, data_max has %d", len(params.DataMin), len(params.DataMax))
		}
		offset = params.DataMin
		scale = make([]float64, len(params.DataMax))
		for i := range params.DataMax {
			scale[i] = params.DataMax[i] - params.DataMin[i]
		}
	default:
		return nil, configError("scaler: unsupported kind %q", kind)
	}

	if len(offset) == 0 {
		return nil, configError("scaler: no %s parameters", kind)
	}
	if len(offset) != len(scale) {
		return nil, configError("scaler: %d offsets but %d scales", len(offset), len(scale))
	}

	s := &Scaler{
		kind:   kind,
		offset: make([]float64, len(offset)),
		scale:  make([]float64, len(scale)),
	}
	for i := range offset {
		if !isFinite(offset[i]) || !isFinite(scale[i]) {
			return nil, configError("scaler: feature %d has non-finite parameters", i)
		}
		s.offset[i] = offset[i]
		// constant columns are stored with a zero scale; they are only centered
		if scale[i] == 0 {
			s.scale[i] = 1
		} else {
			s.scale[i] = scale[i]
		}
	}
	return s, nil
}

// LoadScaler reads scaler parameters from a local path or s3:// URI.
func LoadScaler(ctx context.Context, artifacts *ArtifactReader, uri string) (*Scaler, error) {
	data, err := artifacts.Read(ctx, uri)
	if err != nil {
		return nil, configError("scaler %s: %v", uri, err)
	}
	var params ScalerParams
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, configError("scaler %s: %v", uri, err)
	}
	scaler, err := NewScaler(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", uri, err)
	}
	return scaler, nil
}

func (s *Scaler) Kind() string {
	return s.kind
}

func (s *Scaler) Features() int {
	return len(s.offset)
}

// Transform returns a normalized copy of window; the input is not modified.
func (s *Scaler) Transform(window Window) (Window, error) {
	out := make(Window, len(window))
	for i, row := range window {
		if len(row) != len(s.offset) {
			return nil, &ShapeError{Expected: Shape{Length: len(window), Width: len(s.offset)}, Row: i, Want: len(s.offset), Got: len(row)}
		}
		scaled := make([]float64, len(row))
		for f, x := range row {
			scaled[f] = (x - s.offset[f]) / s.scale[f]
		}
		out[i] = scaled
	}
	return out, nil
}

func inferScalerKind(params ScalerParams) string {
	switch {
	case len(params.DataMin) > 0 || len(params.DataMax) > 0:
		return "minmax"
	case len(params.Center) > 0:
		return "robust"
	case len(params.Mean) > 0:
		return "standard"
	default:
		return "affine"
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
