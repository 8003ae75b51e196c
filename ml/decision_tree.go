package ml

import (
	"context"
	"errors"
)

// DecisionTree is a pre-built tree evaluated over the flattened window. The
// reached leaf gets score 1, every other class 0.
type DecisionTree struct {
	Classes int        `json:"num_classes"`
	Nodes   []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	IsLeaf     bool    `json:"is_leaf"`
}

func (dt *DecisionTree) NumClasses() int {
	return dt.Classes
}

func (dt *DecisionTree) validate(inputSize int) error {
	if len(dt.Nodes) == 0 {
		return configError("decision tree: no nodes")
	}
	if dt.Classes <= 0 {
		return configError("decision tree: num_classes must be positive")
	}
	for i, node := range dt.Nodes {
		if node.IsLeaf {
			if node.ClassLabel < 0 || node.ClassLabel >= dt.Classes {
				return configError("decision tree: leaf %d has class %d outside [0, %d)", i, node.ClassLabel, dt.Classes)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= inputSize {
			return configError("decision tree: node %d splits on feature %d, window has %d", i, node.FeatureIdx, inputSize)
		}
		// children always follow their parent, which rules out cycles
		for _, child := range []int{node.LeftChild, node.RightChild} {
			if child <= i || child >= len(dt.Nodes) {
				return configError("decision tree: node %d has invalid child %d", i, child)
			}
		}
	}
	return nil
}

func (dt *DecisionTree) Classify(ctx context.Context, tensor Window) (int, []float64, error) {
	label, err := dt.predict(tensor.Flatten())
	if err != nil {
		return 0, nil, err
	}
	scores := make([]float64, dt.Classes)
	scores[label] = 1
	return label, scores, nil
}

func (dt *DecisionTree) predict(features []float64) (int, error) {
	if len(dt.Nodes) == 0 {
		return 0, errors.New("model not loaded")
	}
	idx := 0
	for steps := 0; steps <= len(dt.Nodes); steps++ {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.ClassLabel, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
	return 0, errors.New("invalid tree state")
}
