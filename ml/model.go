package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Classifier is the trained model behind a pipeline. It maps a normalized
// window to a class index and one score per class. Implementations must be
// safe for concurrent calls; the pipeline never serializes them.
type Classifier interface {
	Classify(ctx context.Context, tensor Window) (int, []float64, error)
}

// ClassCounter is implemented by classifiers that know their output size
// before the first call.
type ClassCounter interface {
	NumClasses() int
}

// Argmax returns the index of the highest score, the lowest index on ties.
func Argmax(scores []float64) (int, error) {
	if len(scores) == 0 {
		return 0, errors.New("empty score vector")
	}
	best := 0
	for i, s := range scores {
		if math.IsNaN(s) {
			return 0, fmt.Errorf("score %d is NaN", i)
		}
		if s > scores[best] {
			best = i
		}
	}
	return best, nil
}

func softmax(logits []float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	out := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		out[i] = math.Exp(v - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
