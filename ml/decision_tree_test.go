package ml

import (
	"context"
	"testing"
)

func testTree() *DecisionTree {
	return &DecisionTree{
		Classes: 3,
		Nodes: []TreeNode{
			{FeatureIdx: 1, Threshold: 0.5, LeftChild: 1, RightChild: 2},
			{IsLeaf: true, ClassLabel: 0, FeatureIdx: -1, LeftChild: -1, RightChild: -1},
			{FeatureIdx: 3, Threshold: 2, LeftChild: 3, RightChild: 4},
			{IsLeaf: true, ClassLabel: 2, FeatureIdx: -1, LeftChild: -1, RightChild: -1},
			{IsLeaf: true, ClassLabel: 1, FeatureIdx: -1, LeftChild: -1, RightChild: -1},
		},
	}
}

func TestDecisionTreeClassify(t *testing.T) {
	tree := testTree()
	if err := tree.validate(4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		window Window
		want   int
	}{
		{window: Window{{0, 0.1}, {0, 0}}, want: 0},
		{window: Window{{0, 0.9}, {0, 1}}, want: 2},
		{window: Window{{0, 0.9}, {0, 3}}, want: 1},
	}
	for _, tt := range tests {
		label, scores, err := tree.Classify(context.Background(), tt.window)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if label != tt.want {
			t.Fatalf("expected label %d, got %d", tt.want, label)
		}
		if len(scores) != 3 || scores[tt.want] != 1 {
			t.Fatalf("expected one-hot scores for %d, got %v", tt.want, scores)
		}
	}
}

func TestDecisionTreeValidate(t *testing.T) {
	tree := testTree()
	if err := tree.validate(3); err == nil {
		t.Fatal("expected error for split feature outside the window")
	}

	cyclic := testTree()
	cyclic.Nodes[2].RightChild = 0
	if err := cyclic.validate(4); err == nil {
		t.Fatal("expected error for backward child")
	}

	badLeaf := testTree()
	badLeaf.Nodes[4].ClassLabel = 3
	if err := badLeaf.validate(4); err == nil {
		t.Fatal("expected error for leaf class outside num_classes")
	}

	if err := (&DecisionTree{Classes: 2}).validate(4); err == nil {
		t.Fatal("expected error for empty tree")
	}
}
