package ml

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"etaengine/schema"
)

// Prediction is the answer to one Request.
type Prediction struct {
	ETAMinutes        int      `json:"eta_minutes"`
	RawMinutes        float64  `json:"raw_minutes"`
	DistanceKM        float64  `json:"distance_km"`
	Defaulted         []string `json:"defaulted,omitempty"`
	SchemaFingerprint string   `json:"schema_fingerprint"`
	Cached            bool     `json:"cached"`
}

type snapshot struct {
	artifacts *Artifacts
	cache     *lru.Cache[Request, Prediction]
}

// Predictor serves predictions from a loaded artifact pair. The pair is
// read-only once loaded; Swap installs a new one atomically and starts a
// fresh cache with it.
type Predictor struct {
	current   atomic.Pointer[snapshot]
	cacheSize int
	validate  *validator.Validate
}

// NewPredictor wraps loaded artifacts. A cacheSize of zero disables the
// prediction cache.
func NewPredictor(art *Artifacts, cacheSize int) (*Predictor, error) {
	if art == nil || art.Model == nil {
		return nil, errors.New("predictor: no artifacts loaded")
	}
	p := &Predictor{cacheSize: cacheSize, validate: newValidator()}
	if err := p.Swap(art); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Predictor) Swap(art *Artifacts) error {
	if art == nil || art.Model == nil {
		return errors.New("predictor: no artifacts loaded")
	}
	snap := &snapshot{artifacts: art}
	if p.cacheSize > 0 {
		cache, err := lru.New[Request, Prediction](p.cacheSize)
		if err != nil {
			return err
		}
		snap.cache = cache
	}
	p.current.Store(snap)
	return nil
}

func (p *Predictor) Artifacts() *Artifacts {
	return p.current.Load().artifacts
}

func (p *Predictor) Validate(req Request) error {
	return validateRequest(p.validate, req)
}

func (p *Predictor) Predict(ctx context.Context, req Request) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	if err := p.Validate(req); err != nil {
		return Prediction{}, err
	}

	snap := p.current.Load()
	if snap.cache != nil {
		if cached, ok := snap.cache.Get(req); ok {
			cached.Cached = true
			cached.Defaulted = slices.Clone(cached.Defaulted)
			return cached, nil
		}
	}

	s := snap.artifacts.Schema
	features := req.Features()
	aligned := s.Reindex(features)
	if len(aligned.Defaulted) > 0 {
		zap.L().Debug("schema columns defaulted to 0",
			zap.Strings("columns", aligned.Defaulted))
	}
	if len(aligned.Ignored) > 0 {
		zap.L().Warn("request features not in schema",
			zap.Strings("columns", aligned.Ignored))
	}

	raw, err := snap.artifacts.Model.Predict(aligned.Values)
	if err != nil {
		return Prediction{}, err
	}

	pred := Prediction{
		ETAMinutes:        int(raw),
		RawMinutes:        raw,
		DistanceKM:        features[schema.DistanceKM],
		Defaulted:         aligned.Defaulted,
		SchemaFingerprint: s.Fingerprint(),
	}
	if snap.cache != nil {
		snap.cache.Add(req, pred)
	}
	pred.Defaulted = slices.Clone(pred.Defaulted)
	return pred, nil
}
