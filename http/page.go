package http

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"etaengine/ml"
)

//go:embed templates/*.html static/*
var assets embed.FS

var (
	ratingOptions   = []int{1, 2, 3, 4, 5}
	deliveryOptions = []int{0, 1, 2, 3}
)

type pageRenderer struct {
	tmpl *template.Template
}

// pageData 页面渲染数据
type pageData struct {
	SessionID  string
	State      SessionState
	Request    ml.Request
	Route      RouteView
	Prediction *ml.Prediction
	Fields     map[string]string
	Error      string
	Model      modelInfo
	Ratings    []int
	Deliveries []int
	Elapsed    time.Duration
}

type modelInfo struct {
	Features    int
	Trees       int
	Fingerprint string
	LoadedAt    time.Time
}

func (a *app) registerPages(mux *http.ServeMux) error {
	tmpl, err := template.New("pages").Funcs(template.FuncMap{
		"km":     func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) },
		"coord":  func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) },
		"short":  shortFingerprint,
		"millis": func(d time.Duration) string { return strconv.FormatFloat(d.Seconds()*1000, 'f', 1, 64) },
	}).ParseFS(assets, "templates/*.html")
	if err != nil {
		return err
	}
	a.pages = &pageRenderer{tmpl: tmpl}

	static, err := fs.Sub(assets, "static")
	if err != nil {
		return err
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	mux.HandleFunc("GET /{$}", a.handleIndex)
	mux.HandleFunc("POST /{$}", a.handleSubmit)
	return nil
}

// handleIndex 初始表单（Idle）
func (a *app) handleIndex(w http.ResponseWriter, r *http.Request) {
	session := NewSession(ml.DefaultRequest())
	a.render(w, r, http.StatusOK, a.pageFor(session))
}

// handleSubmit 表单提交：action=predict 时预测，否则仅刷新距离与地图
func (a *app) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form")
		return
	}

	session := NewSession(ml.DefaultRequest())
	req, fields := parseRequestForm(r.Form, ml.DefaultRequest())
	if err := session.Edit(req); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	data := a.pageFor(session)
	if len(fields) > 0 {
		data.Fields = fields
		a.render(w, r, http.StatusUnprocessableEntity, data)
		return
	}
	if r.PostForm.Get("action") != "predict" {
		a.render(w, r, http.StatusOK, data)
		return
	}

	pred, err := session.Predict(r.Context(), a.instrumented(r.Context()))
	data = a.pageFor(session)
	switch {
	case err == nil:
		data.Prediction = &pred
		if start := GetStartTime(r.Context()); !start.IsZero() {
			data.Elapsed = time.Since(start)
		}
		a.render(w, r, http.StatusOK, data)
	default:
		var verr *ml.ValidationError
		if errors.As(err, &verr) {
			data.Fields = verr.Fields
			a.render(w, r, http.StatusUnprocessableEntity, data)
			return
		}
		data.Error = "The ETA engine could not produce an estimate. Please try again."
		a.render(w, r, http.StatusInternalServerError, data)
	}
}

func (a *app) pageFor(s *Session) pageData {
	req := s.Request()
	from, to := req.Route()
	art := a.deps.Predictor.Artifacts()
	return pageData{
		SessionID:  s.ID,
		State:      s.State(),
		Request:    req,
		Route:      NewRouteView(from, to),
		Prediction: s.Result(),
		Model: modelInfo{
			Features:    art.Schema.Len(),
			Trees:       art.Model.NumTrees(),
			Fingerprint: art.Schema.Fingerprint(),
			LoadedAt:    art.LoadedAt,
		},
		Ratings:    ratingOptions,
		Deliveries: deliveryOptions,
	}
}

func (a *app) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	var buf bytes.Buffer
	if err := a.pages.tmpl.ExecuteTemplate(&buf, "index.html", data); err != nil {
		zap.L().Error("render page",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// instrumented 带指标记录的预测器
func (a *app) instrumented(ctx context.Context) Predictor {
	return instrumentedPredictor{app: a, requestID: GetRequestID(ctx)}
}

type instrumentedPredictor struct {
	app       *app
	requestID string
}

func (p instrumentedPredictor) Predict(ctx context.Context, req ml.Request) (ml.Prediction, error) {
	start := time.Now()
	pred, err := p.app.deps.Predictor.Predict(ctx, req)
	p.app.record(pred, err, time.Since(start), p.requestID)
	return pred, err
}

func (p instrumentedPredictor) Validate(req ml.Request) error {
	return p.app.deps.Predictor.Validate(req)
}

func (p instrumentedPredictor) Artifacts() *ml.Artifacts {
	return p.app.deps.Predictor.Artifacts()
}

// formValues 表单字段访问
type formValues interface {
	Get(key string) string
}

// parseRequestForm 解析表单，缺失字段使用base中的值，无法解析的字段记录错误
func parseRequestForm(form formValues, base ml.Request) (ml.Request, map[string]string) {
	req := base
	fields := map[string]string{}

	intField := func(name string, dst *int) {
		s := form.Get(name)
		if s == "" {
			return
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			fields[name] = "must be a whole number"
			return
		}
		*dst = v
	}
	floatField := func(name string, dst *float64) {
		s := form.Get(name)
		if s == "" {
			return
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			fields[name] = "must be a number"
			return
		}
		*dst = v
	}

	intField("age", &req.Age)
	intField("rating", &req.Rating)
	intField("multiple_deliveries", &req.MultipleDeliveries)
	intField("order_hour", &req.OrderHour)
	intField("pickup_hour", &req.PickupHour)
	floatField("restaurant_lat", &req.RestaurantLat)
	floatField("restaurant_lon", &req.RestaurantLon)
	floatField("delivery_lat", &req.DeliveryLat)
	floatField("delivery_lon", &req.DeliveryLon)

	if len(fields) == 0 {
		return req, nil
	}
	return req, fields
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
