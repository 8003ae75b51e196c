package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"tripsense/ml"
)

// Request payloads decode into pointers so an absent or null field can be
// told apart from a zero reading.

type gpsPointPayload struct {
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Alt       *float64 `json:"alt"`
	Timestamp *float64 `json:"timestamp"`
}

type trajectoryPayload struct {
	SessionStart *float64           `json:"session_start"`
	Points       []*gpsPointPayload `json:"points"`
}

type activityPayload struct {
	Data [][]*float64 `json:"data"`
}

func missingField(name string) error {
	return fmt.Errorf("%w: %s is required", errBadRequest, name)
}

func (p trajectoryPayload) request() (ml.TrajectoryRequest, error) {
	if p.SessionStart == nil {
		return ml.TrajectoryRequest{}, missingField("session_start")
	}
	if p.Points == nil {
		return ml.TrajectoryRequest{}, missingField("points")
	}

	req := ml.TrajectoryRequest{
		SessionStart: *p.SessionStart,
		Points:       make([]ml.GPSPoint, len(p.Points)),
	}
	for i, point := range p.Points {
		if point == nil {
			return ml.TrajectoryRequest{}, fmt.Errorf("%w: points[%d] is null", errBadRequest, i)
		}
		fields := []struct {
			name  string
			value *float64
		}{
			{"lat", point.Lat},
			{"lon", point.Lon},
			{"alt", point.Alt},
			{"timestamp", point.Timestamp},
		}
		for _, field := range fields {
			if field.value == nil {
				return ml.TrajectoryRequest{}, missingField(fmt.Sprintf("points[%d].%s", i, field.name))
			}
		}
		req.Points[i] = ml.GPSPoint{Lat: *point.Lat, Lon: *point.Lon, Alt: *point.Alt, Timestamp: *point.Timestamp}
	}
	return req, nil
}

// window copies the readings out. Row lengths are left to the pipeline's
// shape check.
func (p activityPayload) window() (ml.Window, error) {
	if p.Data == nil {
		return nil, missingField("data")
	}
	window := make(ml.Window, len(p.Data))
	for i, row := range p.Data {
		values := make([]float64, len(row))
		for j, v := range row {
			if v == nil {
				return nil, fmt.Errorf("%w: data[%d][%d] is null", errBadRequest, i, j)
			}
			values[j] = *v
		}
		window[i] = values
	}
	return window, nil
}

// decodeJSON reads exactly one JSON value from the body.
func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(v); err != nil {
		return bodyError(err, "invalid JSON body")
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return bodyError(err, "unexpected data after JSON body")
	}
	return nil
}

func bodyError(err error, reason string) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	if err == nil {
		return fmt.Errorf("%w: %s", errBadRequest, reason)
	}
	return fmt.Errorf("%w: %s: %v", errBadRequest, reason, err)
}
