package ml

// Window is one inference unit: Length samples of Width features each.
type Window [][]float64

// Shape is the fixed window geometry a pipeline accepts.
type Shape struct {
	Length int `json:"length"`
	Width  int `json:"width"`
}

func (s Shape) Size() int {
	return s.Length * s.Width
}

// Validate rejects ragged or wrongly sized windows. The sequence length is
// checked before any row.
func (s Shape) Validate(window Window) error {
	if len(window) != s.Length {
		return &ShapeError{Expected: s, Row: -1, Want: s.Length, Got: len(window)}
	}
	for i, row := range window {
		if len(row) != s.Width {
			return &ShapeError{Expected: s, Row: i, Want: s.Width, Got: len(row)}
		}
	}
	return nil
}

// Flatten returns the row-major concatenation of the window.
func (w Window) Flatten() []float64 {
	size := 0
	for _, row := range w {
		size += len(row)
	}
	flat := make([]float64, 0, size)
	for _, row := range w {
		flat = append(flat, row...)
	}
	return flat
}
