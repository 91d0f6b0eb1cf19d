package http

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"etaengine/db"
	"etaengine/geo"
	"etaengine/ml"
	"etaengine/monitoring"
)

// app 持有所有处理器共享的依赖
type app struct {
	deps    Deps
	origins []string
	pages   *pageRenderer
}

func (a *app) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.HandleFunc("GET /api/schema", a.handleSchema)
	mux.HandleFunc("GET /api/distance", a.handleDistance)
	mux.HandleFunc("POST /api/predict", a.handlePredict)
	mux.HandleFunc("GET /api/metrics", a.handleMetrics)
	mux.HandleFunc("GET /api/training/runs", a.handleTrainingRuns)
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	art := a.deps.Predictor.Artifacts()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"features":    art.Schema.Len(),
		"fingerprint": art.Schema.Fingerprint(),
		"loaded_at":   art.LoadedAt,
	})
}

func (a *app) handleSchema(w http.ResponseWriter, r *http.Request) {
	art := a.deps.Predictor.Artifacts()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"columns":     art.Schema.Columns(),
		"features":    art.Schema.Len(),
		"fingerprint": art.Schema.Fingerprint(),
		"model_path":  art.ModelPath,
		"trees":       art.Model.NumTrees(),
		"params":      art.Model.Params(),
	})
}

// handleDistance 计算两点直线距离
func (a *app) handleDistance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fields := map[string]string{}
	coord := func(name string, limit float64) float64 {
		v, err := strconv.ParseFloat(q.Get(name), 64)
		switch {
		case err != nil || math.IsNaN(v):
			fields[name] = "must be a number"
		case v < -limit || v > limit:
			fields[name] = "out of range"
		}
		return v
	}

	from := geo.Point{Lat: coord("restaurant_lat", 90), Lon: coord("restaurant_lon", 180)}
	to := geo.Point{Lat: coord("delivery_lat", 90), Lon: coord("delivery_lon", 180)}
	if len(fields) > 0 {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid coordinates", Fields: fields})
		return
	}

	respondJSON(w, http.StatusOK, NewRouteView(from, to))
}

func (a *app) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req ml.Request
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	pred, err := a.instrumented(r.Context()).Predict(r.Context(), req)
	if err != nil {
		var verr *ml.ValidationError
		if errors.As(err, &verr) {
			respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Fields: verr.Fields})
			return
		}
		respondError(w, http.StatusInternalServerError, "prediction failed")
		return
	}
	respondJSON(w, http.StatusOK, pred)
}

func (a *app) record(pred ml.Prediction, err error, elapsed time.Duration, requestID string) {
	mc := a.deps.Metrics
	if err != nil {
		var verr *ml.ValidationError
		if !errors.As(err, &verr) {
			mc.Inc(monitoring.MetricPredictionErrors)
			zap.L().Error("prediction failed", zap.String("request_id", requestID), zap.Error(err))
		}
		return
	}
	mc.Inc(monitoring.MetricPredictions)
	if pred.Cached {
		mc.Inc(monitoring.MetricCacheHits)
	}
	mc.ObserveDuration(monitoring.MetricPredictLatency, elapsed)
}

func (a *app) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.deps.Metrics.Snapshot())
}

func (a *app) handleTrainingRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l <= 0 || l > 500 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = l
	}

	runs := []db.TrainingRun{}
	if a.deps.TrainingRuns != nil {
		var err error
		runs, err = a.deps.TrainingRuns(limit)
		if err != nil {
			zap.L().Error("query training runs", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to query training runs")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondJSON 统一JSON响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode JSON", zap.Error(err))
	}
}
