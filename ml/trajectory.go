package ml

// SecondsPerDay converts elapsed seconds into the day fraction the trajectory
// model was trained on.
const SecondsPerDay = 86400.0

// TrajectoryFeatures is the width of a derived trajectory sample:
// lat, lon, alt, elapsed day fraction.
const TrajectoryFeatures = 4

type GPSPoint struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Alt       float64 `json:"alt"`
	Timestamp float64 `json:"timestamp"`
}

type TrajectoryRequest struct {
	SessionStart float64    `json:"session_start"`
	Points       []GPSPoint `json:"points"`
}

// TrajectoryWindow checks the point count and derives the model input rows.
// The elapsed fraction depends on the request's session start, so it cannot
// be folded into the scaler offsets.
func TrajectoryWindow(req TrajectoryRequest, length int) (Window, error) {
	if len(req.Points) != length {
		return nil, &ShapeError{
			Expected: Shape{Length: length, Width: TrajectoryFeatures},
			Row:      -1,
			Want:     length,
			Got:      len(req.Points),
		}
	}
	window := make(Window, len(req.Points))
	for i, p := range req.Points {
		window[i] = []float64{p.Lat, p.Lon, p.Alt, ElapsedFraction(p.Timestamp, req.SessionStart)}
	}
	return window, nil
}

func ElapsedFraction(timestamp, sessionStart float64) float64 {
	return (timestamp - sessionStart) / SecondsPerDay
}
