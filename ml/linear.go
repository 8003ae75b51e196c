package ml

import (
	"context"
	"fmt"
)

// LinearModel is a softmax classifier over the flattened window.
type LinearModel struct {
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

func (m *LinearModel) validate(inputSize int) error {
	if len(m.Weights) == 0 {
		return configError("linear model: no weights")
	}
	if len(m.Bias) != 0 && len(m.Bias) != len(m.Weights) {
		return configError("linear model: %d classes but %d biases", len(m.Weights), len(m.Bias))
	}
	for i, row := range m.Weights {
		if len(row) != inputSize {
			return configError("linear model: class %d expects %d inputs, window has %d", i, len(row), inputSize)
		}
	}
	return nil
}

func (m *LinearModel) NumClasses() int {
	return len(m.Weights)
}

func (m *LinearModel) Classify(ctx context.Context, tensor Window) (int, []float64, error) {
	x := tensor.Flatten()
	logits := make([]float64, len(m.Weights))
	for c, row := range m.Weights {
		if len(row) != len(x) {
			return 0, nil, fmt.Errorf("linear model expects %d inputs, got %d", len(row), len(x))
		}
		sum := 0.0
		if len(m.Bias) > 0 {
			sum = m.Bias[c]
		}
		for i, w := range row {
			sum += w * x[i]
		}
		logits[c] = sum
	}
	scores := softmax(logits)
	idx, err := Argmax(scores)
	if err != nil {
		return 0, nil, err
	}
	return idx, scores, nil
}
