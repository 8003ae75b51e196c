package ml

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidShape  = errors.New("invalid window shape")
	ErrConfiguration = errors.New("configuration error")
	ErrPrediction    = errors.New("prediction failure")
	ErrLabelDecode   = errors.New("label decode error")
)

// ShapeError reports a window whose dimensions differ from the pipeline shape.
// Row is -1 when the sequence length is wrong, otherwise the offending sample.
type ShapeError struct {
	Expected Shape
	Row      int
	Want     int
	Got      int
}

func (e *ShapeError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("%s: expected %d, got %d samples", ErrInvalidShape, e.Want, e.Got)
	}
	return fmt.Sprintf("%s: sample %d: expected %d, got %d features", ErrInvalidShape, e.Row, e.Want, e.Got)
}

func (e *ShapeError) Is(target error) bool {
	return target == ErrInvalidShape
}

// LabelDecodeError reports a class index (or recovered code) with no label.
type LabelDecodeError struct {
	Index     int
	Code      int
	Recovered bool
	Size      int
}

func (e *LabelDecodeError) Error() string {
	if e.Recovered {
		return fmt.Sprintf("%s: class %d decoded to code %d, label table has %d entries", ErrLabelDecode, e.Index, e.Code, e.Size)
	}
	return fmt.Sprintf("%s: class index %d out of range [0, %d)", ErrLabelDecode, e.Index, e.Size)
}

func (e *LabelDecodeError) Is(target error) bool {
	return target == ErrLabelDecode
}

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func predictionError(err error) error {
	return fmt.Errorf("%w: %w", ErrPrediction, err)
}
