// Package http 提供API处理器
package http

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"tripsense/db"
	"tripsense/ml"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

type healthResponse struct {
	Status    string          `json:"status"`
	Uptime    string          `json:"uptime"`
	Pipelines map[string]bool `json:"pipelines"`
	Clients   int             `json:"ws_clients"`
	Timestamp time.Time       `json:"timestamp"`
}

type labelsResponse struct {
	Variant  string   `json:"variant"`
	Labels   []string `json:"labels"`
	Expected []int    `json:"expected"`
}

type predictionsResponse struct {
	Variant     string                `json:"variant,omitempty"`
	Predictions []db.PredictionRecord `json:"predictions"`
}

// ============ 状态 ============

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Pipelines: map[string]bool{VariantTrajectory: h.trajectory != nil, VariantActivity: h.activity != nil},
		Timestamp: time.Now().UTC(),
	}
	if h.hub != nil {
		resp.Clients = h.hub.Clients()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}

// ============ 标签 ============

func (h *Handler) handleLabels(w http.ResponseWriter, r *http.Request) {
	variant := r.PathValue("variant")
	pipeline := h.pipeline(variant)
	if pipeline == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown variant: " + variant, Kind: "not_found"})
		return
	}
	shape := pipeline.Shape()
	writeJSON(w, http.StatusOK, labelsResponse{
		Variant:  variant,
		Labels:   pipeline.Labels(),
		Expected: []int{shape.Length, shape.Width},
	})
}

// ============ 历史记录 ============

func (h *Handler) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "prediction history is not enabled", Kind: "not_enabled"})
		return
	}

	query := r.URL.Query()
	variant := query.Get("variant")
	if variant != "" && variant != VariantTrajectory && variant != VariantActivity {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unknown variant: " + variant, Kind: "bad_request"})
		return
	}

	limit := defaultHistoryLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer", Kind: "bad_request"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := h.store.RecentPredictions(r.Context(), variant, limit)
	if err != nil {
		h.logger.Error("failed to load predictions", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to load predictions", Kind: "internal"})
		return
	}
	if records == nil {
		records = []db.PredictionRecord{}
	}
	writeJSON(w, http.StatusOK, predictionsResponse{Variant: variant, Predictions: records})
}

func (h *Handler) pipeline(variant string) *ml.Pipeline {
	switch variant {
	case VariantTrajectory:
		return h.trajectory
	case VariantActivity:
		return h.activity
	default:
		return nil
	}
}
