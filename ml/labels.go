package ml

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var TrajectoryLabels = []string{
	"Normal",
	"Drop-Off",
	"Inactivity",
	"Route Deviation",
}

var ActivityLabels = []string{
	"Standing still (1 min)",
	"Sitting and relaxing (1 min)",
	"Lying down (1 min)",
	"Walking (1 min)",
	"Climbing stairs (1 min)",
	"Waist bends forward (20x)",
	"Frontal elevation of arms (20x)",
	"Knees bending (crouching) (20x)",
	"Cycling (1 min)",
	"Jogging (1 min)",
	"Running (1 min)",
	"Jump front & back (20x)",
}

// ActivityCodes are the label encoder classes the activity model was fitted
// with: class index i stands for activity code i+1.
var ActivityCodes = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

// LabelDecoder maps a predicted class index to a label.
type LabelDecoder interface {
	Decode(classIndex int) (label string, code int, err error)
	// Size is the number of class indices the decoder accepts.
	Size() int
	Labels() []string
}

// DirectDecoder indexes the label table by class index.
type DirectDecoder struct {
	table []string
}

func NewDirectDecoder(table []string) (*DirectDecoder, error) {
	if len(table) == 0 {
		return nil, configError("label table is empty")
	}
	return &DirectDecoder{table: append([]string(nil), table...)}, nil
}

func (d *DirectDecoder) Decode(classIndex int) (string, int, error) {
	if classIndex < 0 || classIndex >= len(d.table) {
		return "", classIndex, &LabelDecodeError{Index: classIndex, Code: classIndex, Size: len(d.table)}
	}
	return d.table[classIndex], classIndex, nil
}

func (d *DirectDecoder) Size() int {
	return len(d.table)
}

func (d *DirectDecoder) Labels() []string {
	return append([]string(nil), d.table...)
}

// IndirectDecoder first recovers the training code through the label
// encoder classes, then looks up table[code-1].
//
// The codes are 1-based and the table is 0-based. The table order is defined
// against this offset, so changing it relabels every activity.
type IndirectDecoder struct {
	classes []int
	table   []string
}

func NewIndirectDecoder(classes []int, table []string) (*IndirectDecoder, error) {
	if len(classes) == 0 {
		return nil, configError("label encoder has no classes")
	}
	if len(table) == 0 {
		return nil, configError("label table is empty")
	}
	return &IndirectDecoder{
		classes: append([]int(nil), classes...),
		table:   append([]string(nil), table...),
	}, nil
}

// RecoverCode is the label encoder inverse transform.
func (d *IndirectDecoder) RecoverCode(classIndex int) (int, bool) {
	if classIndex < 0 || classIndex >= len(d.classes) {
		return 0, false
	}
	return d.classes[classIndex], true
}

func (d *IndirectDecoder) Decode(classIndex int) (string, int, error) {
	code, ok := d.RecoverCode(classIndex)
	if !ok {
		return "", classIndex, &LabelDecodeError{Index: classIndex, Code: classIndex, Size: len(d.classes)}
	}
	pos := code - 1
	if pos < 0 || pos >= len(d.table) {
		return "", code, &LabelDecodeError{Index: classIndex, Code: code, Recovered: true, Size: len(d.table)}
	}
	return d.table[pos], code, nil
}

func (d *IndirectDecoder) Size() int {
	return len(d.classes)
}

func (d *IndirectDecoder) Labels() []string {
	return append([]string(nil), d.table...)
}

// LoadLabels reads a label table stored either as a JSON array of strings or
// as one label per line.
func LoadLabels(ctx context.Context, artifacts *ArtifactReader, uri string) ([]string, error) {
	data, err := artifacts.Read(ctx, uri)
	if err != nil {
		return nil, configError("labels %s: %v", uri, err)
	}

	var raw []string
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, configError("labels %s: %v", uri, err)
		}
	} else {
		scanner := bufio.NewScanner(bytes.NewReader(trimmed))
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				raw = append(raw, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, configError("labels %s: %v", uri, err)
		}
	}

	labels := make([]string, 0, len(raw))
	for i, label := range raw {
		label = norm.NFC.String(strings.TrimSpace(label))
		if label == "" {
			return nil, configError("labels %s: entry %d is empty", uri, i)
		}
		labels = append(labels, label)
	}
	if len(labels) == 0 {
		return nil, configError("labels %s: no labels", uri)
	}
	return labels, nil
}

// LoadEncoderClasses reads the label encoder classes as a JSON int array.
func LoadEncoderClasses(ctx context.Context, artifacts *ArtifactReader, uri string) ([]int, error) {
	data, err := artifacts.Read(ctx, uri)
	if err != nil {
		return nil, configError("label encoder %s: %v", uri, err)
	}
	var classes []int
	if err := json.Unmarshal(data, &classes); err != nil {
		return nil, configError("label encoder %s: %v", uri, err)
	}
	if len(classes) == 0 {
		return nil, configError("label encoder %s: no classes", uri)
	}
	return classes, nil
}
