package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"tripsense/db"
	"tripsense/ml"
	"tripsense/monitoring"
)

const (
	VariantTrajectory = "trajectory"
	VariantActivity   = "activity"
)

// storeTimeout bounds a history write, which outlives its request.
const storeTimeout = 5 * time.Second

var errBadRequest = errors.New("bad request")

// PredictionStore persists served predictions.
type PredictionStore interface {
	SavePrediction(ctx context.Context, record db.PredictionRecord) error
	RecentPredictions(ctx context.Context, variant string, limit int) ([]db.PredictionRecord, error)
}

// Dependencies are built once at startup. Nil pipelines disable their route;
// nil Store, Metrics and Hub disable history, counters and the live feed.
type Dependencies struct {
	Trajectory *ml.Pipeline
	Activity   *ml.Pipeline
	Store      PredictionStore
	Metrics    *monitoring.Metrics
	Hub        *monitoring.Hub
	Logger     *zap.Logger
}

type Handler struct {
	trajectory *ml.Pipeline
	activity   *ml.Pipeline
	store      PredictionStore
	metrics    *monitoring.Metrics
	hub        *monitoring.Hub
	logger     *zap.Logger
	started    time.Time
	background sync.WaitGroup
}

func NewHandler(deps Dependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	return &Handler{
		trajectory: deps.Trajectory,
		activity:   deps.Activity,
		store:      deps.Store,
		metrics:    metrics,
		hub:        deps.Hub,
		logger:     logger,
		started:    time.Now(),
	}
}

// Wait blocks until pending history writes have finished.
func (h *Handler) Wait() {
	h.background.Wait()
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /predict", h.handleTrajectory)
	mux.HandleFunc("POST /predict/trajectory", h.handleTrajectory)
	mux.HandleFunc("POST /predict/activity", h.handleActivity)

	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/labels/{variant}", h.handleLabels)
	mux.HandleFunc("GET /api/metrics", h.handleMetrics)
	mux.HandleFunc("GET /api/predictions", h.handlePredictions)
	if h.hub != nil {
		mux.Handle("GET "+wsPrefix+"predictions", h.hub)
	}
}

type trajectoryResponse struct {
	Prediction string `json:"prediction"`
	Code       int    `json:"code"`
}

type activityResponse struct {
	PredictedLabel string `json:"predicted_label"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Expected  []int  `json:"expected,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (h *Handler) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	pipeline := h.trajectory
	if pipeline == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "trajectory pipeline is not enabled", Kind: "not_enabled"})
		return
	}

	var payload trajectoryPayload
	if err := decodeJSON(r, &payload); err != nil {
		h.fail(w, r, pipeline, start, err)
		return
	}
	req, err := payload.request()
	if err != nil {
		h.fail(w, r, pipeline, start, err)
		return
	}
	window, err := ml.TrajectoryWindow(req, pipeline.Shape().Length)
	if err != nil {
		h.fail(w, r, pipeline, start, err)
		return
	}
	prediction, err := pipeline.Predict(r.Context(), window)
	if err != nil {
		h.fail(w, r, pipeline, start, err)
		return
	}

	writeJSON(w, http.StatusOK, trajectoryResponse{Prediction: prediction.Label, Code: prediction.ClassIndex})
	h.record(r, pipeline.Name(), prediction, start)
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	pipeline := h.activity
	if pipeline == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "activity pipeline is not enabled", Kind: "not_enabled"})
		return
	}

	var payload activityPayload
	if err := decodeJSON(r, &payload); err != nil {
		h.fail(w, r, pipeline, start, err)
		return
	}
	window, err := payload.window()
	if err != nil {
		h.fail(w, r, pipeline, start, err)
		return
	}
	prediction, err := pipeline.Predict(r.Context(), window)
	if err != nil {
		h.fail(w, r, pipeline, start, err)
		return
	}

	writeJSON(w, http.StatusOK, activityResponse{PredictedLabel: prediction.Label})
	h.record(r, pipeline.Name(), prediction, start)
}

// fail maps pipeline errors to a status: client mistakes are 4xx, anything
// past validation is 5xx.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, pipeline *ml.Pipeline, start time.Time, err error) {
	status, kind := errorStatus(err)
	shape := pipeline.Shape()
	requestID := GetRequestID(r.Context())

	h.metrics.ObserveError(pipeline.Name(), kind, time.Since(start))
	if status >= http.StatusInternalServerError {
		h.logger.Error("prediction failed",
			zap.String("request_id", requestID),
			zap.String("variant", pipeline.Name()),
			zap.String("kind", kind),
			zap.Error(err),
		)
	} else {
		h.logger.Info("rejected request",
			zap.String("request_id", requestID),
			zap.String("variant", pipeline.Name()),
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
	if h.hub != nil && status >= http.StatusInternalServerError {
		h.hub.Publish(monitoring.Event{Type: "error", RequestID: requestID, Variant: pipeline.Name(), Error: err.Error()})
	}

	writeJSON(w, status, ErrorResponse{
		Error:     err.Error(),
		Kind:      kind,
		Expected:  []int{shape.Length, shape.Width},
		RequestID: requestID,
	})
}

func errorStatus(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ml.ErrInvalidShape):
		return http.StatusBadRequest, "invalid_shape"
	case errors.Is(err, ml.ErrLabelDecode):
		return http.StatusInternalServerError, "label_decode"
	case errors.Is(err, ml.ErrPrediction):
		return http.StatusInternalServerError, "prediction_failure"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// record updates counters, history and the live feed. The history write runs
// in the background on a detached context, so a slow or failing store never
// reaches the response or the request timeout.
func (h *Handler) record(r *http.Request, variant string, prediction ml.Prediction, start time.Time) {
	latency := time.Since(start)
	requestID := GetRequestID(r.Context())
	h.metrics.ObservePrediction(variant, prediction.Label, latency)

	if h.store != nil {
		record := db.PredictionRecord{
			RequestID:  requestID,
			Variant:    variant,
			Label:      prediction.Label,
			ClassIndex: prediction.ClassIndex,
			Code:       prediction.Code,
			LatencyMS:  float64(latency) / float64(time.Millisecond),
			CreatedAt:  time.Now().UTC(),
		}
		ctx := context.WithoutCancel(r.Context())
		h.background.Add(1)
		go func() {
			defer h.background.Done()
			ctx, cancel := context.WithTimeout(ctx, storeTimeout)
			defer cancel()
			if err := h.store.SavePrediction(ctx, record); err != nil {
				h.logger.Warn("failed to store prediction", zap.String("request_id", requestID), zap.Error(err))
			}
		}()
	}
	if h.hub != nil {
		h.hub.Publish(monitoring.Event{
			Type:       "prediction",
			RequestID:  requestID,
			Variant:    variant,
			Label:      prediction.Label,
			ClassIndex: prediction.ClassIndex,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
