package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"tripsense/db"
	"tripsense/ml"
	"tripsense/monitoring"
)

type fakeModel struct {
	index int
	err   error
	calls atomic.Int32
}

func (f *fakeModel) Classify(ctx context.Context, tensor ml.Window) (int, []float64, error) {
	f.calls.Add(1)
	if f.err != nil {
		return 0, nil, f.err
	}
	return f.index, []float64{1}, nil
}

type memoryStore struct {
	mu      sync.Mutex
	records []db.PredictionRecord
	delay   time.Duration
	err     error
}

func (m *memoryStore) SavePrediction(ctx context.Context, record db.PredictionRecord) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *memoryStore) RecentPredictions(ctx context.Context, variant string, limit int) ([]db.PredictionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.PredictionRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if variant == "" || m.records[i].Variant == variant {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

func unitScaler(t *testing.T, width int) *ml.Scaler {
	t.Helper()
	offset := make([]float64, width)
	scale := make([]float64, width)
	for i := range scale {
		scale[i] = 1
	}
	scaler, err := ml.NewScaler(ml.ScalerParams{Offset: offset, Scale: scale})
	if err != nil {
		t.Fatalf("scaler: %v", err)
	}
	return scaler
}

func newTrajectoryPipeline(t *testing.T, model ml.Classifier) *ml.Pipeline {
	t.Helper()
	decoder, err := ml.NewDirectDecoder(ml.TrajectoryLabels)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	pipeline, err := ml.NewPipeline(ml.PipelineConfig{
		Name:       VariantTrajectory,
		Shape:      ml.Shape{Length: 10, Width: ml.TrajectoryFeatures},
		Scaler:     unitScaler(t, ml.TrajectoryFeatures),
		Classifier: model,
		Decoder:    decoder,
	})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return pipeline
}

func newActivityPipeline(t *testing.T, model ml.Classifier) *ml.Pipeline {
	t.Helper()
	decoder, err := ml.NewIndirectDecoder(ml.ActivityCodes, ml.ActivityLabels)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	pipeline, err := ml.NewPipeline(ml.PipelineConfig{
		Name:       VariantActivity,
		Shape:      ml.Shape{Length: 3, Width: 2},
		Scaler:     unitScaler(t, 2),
		Classifier: model,
		Decoder:    decoder,
	})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return pipeline
}

func newTestRouter(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return NewRouter(DefaultServerConfig(), NewHandler(deps), deps.Logger)
}

func trajectoryBody(points int) string {
	req := ml.TrajectoryRequest{SessionStart: 1000}
	for i := 0; i < points; i++ {
		req.Points = append(req.Points, ml.GPSPoint{Lat: 47.6, Lon: -122.3, Alt: 12, Timestamp: 1000 + float64(i*60)})
	}
	body, _ := json.Marshal(req)
	return string(body)
}

func post(router http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v (%s)", err, w.Body.String())
	}
	return resp
}

func TestTrajectoryPredict(t *testing.T) {
	model := &fakeModel{index: 2}
	store := &memoryStore{}
	metrics := monitoring.NewMetrics()
	handler := NewHandler(Dependencies{Trajectory: newTrajectoryPipeline(t, model), Store: store, Metrics: metrics})
	router := NewRouter(DefaultServerConfig(), handler, zap.NewNop())

	for _, path := range []string{"/predict/trajectory", "/predict"} {
		w := post(router, path, trajectoryBody(10))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, w.Code, w.Body.String())
		}
		var resp trajectoryResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if resp.Prediction != "Inactivity" || resp.Code != 2 {
			t.Fatalf("unexpected response: %+v", resp)
		}
		if w.Header().Get(requestIDHeader) == "" {
			t.Fatalf("missing request id header")
		}
	}

	if got := model.calls.Load(); got != 2 {
		t.Fatalf("expected 2 model calls, got %d", got)
	}
	handler.Wait()
	if len(store.records) != 2 || store.records[0].Label != "Inactivity" {
		t.Fatalf("unexpected stored records: %+v", store.records)
	}
	if got := metrics.Snapshot().Labels[VariantTrajectory]["Inactivity"]; got != 2 {
		t.Fatalf("expected 2 counted labels, got %d", got)
	}
}

func TestTrajectoryRejectsShortWindow(t *testing.T) {
	model := &fakeModel{index: 0}
	router := newTestRouter(t, Dependencies{Trajectory: newTrajectoryPipeline(t, model)})

	w := post(router, "/predict/trajectory", trajectoryBody(9))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	resp := decodeError(t, w)
	if !strings.Contains(resp.Error, "expected 10, got 9") {
		t.Fatalf("unexpected error message: %q", resp.Error)
	}
	if resp.Kind != "invalid_shape" {
		t.Fatalf("unexpected kind: %q", resp.Kind)
	}
	if len(resp.Expected) != 2 || resp.Expected[0] != 10 || resp.Expected[1] != ml.TrajectoryFeatures {
		t.Fatalf("unexpected expected shape: %v", resp.Expected)
	}
	if got := model.calls.Load(); got != 0 {
		t.Fatalf("model must not be called, got %d calls", got)
	}
}

func TestTrajectoryRejectsBadJSON(t *testing.T) {
	model := &fakeModel{}
	router := newTestRouter(t, Dependencies{Trajectory: newTrajectoryPipeline(t, model)})

	w := post(router, "/predict/trajectory", `{"points": [`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Kind != "bad_request" {
		t.Fatalf("unexpected kind: %q", resp.Kind)
	}
	if model.calls.Load() != 0 {
		t.Fatalf("model must not be called")
	}
}

func TestActivityPredict(t *testing.T) {
	model := &fakeModel{index: 4}
	router := newTestRouter(t, Dependencies{Activity: newActivityPipeline(t, model)})

	w := post(router, "/predict/activity", `{"data": [[1, 2], [3, 4], [5, 6]]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp activityResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	// class 4 recovers code 5, which reads table entry 4.
	if resp.PredictedLabel != ml.ActivityLabels[4] {
		t.Fatalf("unexpected label: %q", resp.PredictedLabel)
	}
	if got := model.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one model call, got %d", got)
	}
}

func TestActivityShapeMismatch(t *testing.T) {
	cases := map[string]string{
		"rows":     `{"data": [[1, 2], [3, 4]]}`,
		"features": `{"data": [[1, 2], [3, 4, 5], [5, 6]]}`,
		"missing":  `{}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			model := &fakeModel{}
			router := newTestRouter(t, Dependencies{Activity: newActivityPipeline(t, model)})

			w := post(router, "/predict/activity", body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			resp := decodeError(t, w)
			if len(resp.Expected) != 2 || resp.Expected[0] != 3 || resp.Expected[1] != 2 {
				t.Fatalf("unexpected expected shape: %v", resp.Expected)
			}
			if model.calls.Load() != 0 {
				t.Fatalf("model must not be called")
			}
		})
	}
}

func TestPredictionFailures(t *testing.T) {
	t.Run("backend", func(t *testing.T) {
		metrics := monitoring.NewMetrics()
		model := &fakeModel{err: errors.New("endpoint unavailable")}
		router := newTestRouter(t, Dependencies{Activity: newActivityPipeline(t, model), Metrics: metrics})

		w := post(router, "/predict/activity", `{"data": [[1, 2], [3, 4], [5, 6]]}`)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", w.Code)
		}
		resp := decodeError(t, w)
		if resp.Kind != "prediction_failure" || !strings.Contains(resp.Error, "endpoint unavailable") {
			t.Fatalf("unexpected error: %+v", resp)
		}
		if got := metrics.Snapshot().Errors["prediction_failure"]; got != 1 {
			t.Fatalf("expected one counted failure, got %d", got)
		}
	})

	t.Run("decode", func(t *testing.T) {
		model := &fakeModel{index: 12}
		router := newTestRouter(t, Dependencies{Activity: newActivityPipeline(t, model)})

		w := post(router, "/predict/activity", `{"data": [[1, 2], [3, 4], [5, 6]]}`)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", w.Code)
		}
		if resp := decodeError(t, w); resp.Kind != "label_decode" {
			t.Fatalf("unexpected kind: %q", resp.Kind)
		}
	})
}

func TestDisabledPipeline(t *testing.T) {
	router := newTestRouter(t, Dependencies{Trajectory: newTrajectoryPipeline(t, &fakeModel{})})

	w := post(router, "/predict/activity", `{"data": [[1, 2]]}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestRequestBodyLimit(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.MaxBodyBytes = 64
	handler := NewHandler(Dependencies{Trajectory: newTrajectoryPipeline(t, &fakeModel{})})
	router := NewRouter(cfg, handler, zap.NewNop())

	w := post(router, "/predict/trajectory", trajectoryBody(10))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	router := newTestRouter(t, Dependencies{Trajectory: newTrajectoryPipeline(t, &fakeModel{})})

	req := httptest.NewRequest(http.MethodPost, "/predict/trajectory", bytes.NewBufferString(trajectoryBody(10)))
	req.Header.Set(requestIDHeader, "trace-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get(requestIDHeader); got != "trace-123" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
}

func TestPredictionIgnoresStoreProblems(t *testing.T) {
	cases := map[string]*memoryStore{
		"failing": {err: errors.New("disk full")},
		"slow":    {delay: 300 * time.Millisecond},
	}
	for name, store := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			cfg.Timeout = 100 * time.Millisecond
			handler := NewHandler(Dependencies{Trajectory: newTrajectoryPipeline(t, &fakeModel{index: 1}), Store: store})
			router := NewRouter(cfg, handler, zap.NewNop())

			w := post(router, "/predict/trajectory", trajectoryBody(10))
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
			}
			if body := strings.TrimSpace(w.Body.String()); body != `{"prediction":"Drop-Off","code":1}` {
				t.Fatalf("unexpected body: %s", body)
			}
			handler.Wait()
		})
	}
}

func TestTrajectoryRejectsMissingFields(t *testing.T) {
	point := `{"lat": 47.6, "lon": -122.3, "alt": 12, "timestamp": 1060}`
	points := func(first string) string {
		list := []string{first}
		for i := 1; i < 10; i++ {
			list = append(list, point)
		}
		return "[" + strings.Join(list, ",") + "]"
	}
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{name: "empty points", body: `{"session_start": 1000, "points": ` + points(`{}`) + `}`, field: "points[0].lat"},
		{name: "no altitude", body: `{"session_start": 1000, "points": ` + points(`{"lat": 1, "lon": 2, "timestamp": 3}`) + `}`, field: "points[0].alt"},
		{name: "null point", body: `{"session_start": 1000, "points": ` + points(`null`) + `}`, field: "points[0]"},
		{name: "no session start", body: `{"points": ` + points(point) + `}`, field: "session_start"},
		{name: "no points", body: `{"session_start": 1000}`, field: "points"},
		{name: "trailing data", body: `{"session_start": 1000, "points": ` + points(point) + `} {}`, field: "after JSON body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := &fakeModel{}
			router := newTestRouter(t, Dependencies{Trajectory: newTrajectoryPipeline(t, model)})

			w := post(router, "/predict/trajectory", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			resp := decodeError(t, w)
			if resp.Kind != "bad_request" || !strings.Contains(resp.Error, tc.field) {
				t.Fatalf("unexpected error: %+v", resp)
			}
			if model.calls.Load() != 0 {
				t.Fatalf("model must not be called")
			}
		})
	}
}

func TestActivityRejectsNullReadings(t *testing.T) {
	model := &fakeModel{}
	router := newTestRouter(t, Dependencies{Activity: newActivityPipeline(t, model)})

	w := post(router, "/predict/activity", `{"data": [[1, 2], [3, null], [5, 6]]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	resp := decodeError(t, w)
	if resp.Kind != "bad_request" || !strings.Contains(resp.Error, "data[1][1] is null") {
		t.Fatalf("unexpected error: %+v", resp)
	}
	if model.calls.Load() != 0 {
		t.Fatalf("model must not be called")
	}
}
