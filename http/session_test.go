package http

import (
	"context"
	"errors"
	"math"
	"testing"

	"etaengine/geo"
	"etaengine/ml"
)

func TestSessionState_Next(t *testing.T) {
	tests := []struct {
		from    SessionState
		event   SessionEvent
		want    SessionState
		wantErr bool
	}{
		{StateIdle, EventEdit, StateIdle, false},
		{StateIdle, EventPredict, StateComputing, false},
		{StateComputing, EventPredicted, StateResult, false},
		{StateComputing, EventFailed, StateIdle, false},
		{StateResult, EventEdit, StateIdle, false},
		{StateResult, EventPredict, StateComputing, false},
		{StateIdle, EventPredicted, StateIdle, true},
		{StateComputing, EventEdit, StateComputing, true},
		{StateComputing, EventPredict, StateComputing, true},
		{StateResult, EventFailed, StateResult, true},
	}
	for _, tt := range tests {
		got, err := tt.from.Next(tt.event)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s + %d: unexpected error %v", tt.from, tt.event, err)
		}
		if err != nil && !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
		if got != tt.want {
			t.Errorf("%s + %d: got %s want %s", tt.from, tt.event, got, tt.want)
		}
	}
}

func TestSession_Flow(t *testing.T) {
	p := newTestPredictor(t)
	s := NewSession(ml.DefaultRequest())

	var seen []SessionState
	s.onChange = func(state SessionState) { seen = append(seen, state) }

	if s.State() != StateIdle || s.Result() != nil {
		t.Fatal("new session must be idle without result")
	}

	pred, err := s.Predict(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if s.State() != StateResult || s.Result() == nil || s.Result().RawMinutes != pred.RawMinutes {
		t.Fatalf("expected result state, got %s", s.State())
	}

	edited := ml.DefaultRequest()
	edited.Age = 45
	if err := s.Edit(edited); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateIdle || s.Result() != nil || s.Request().Age != 45 {
		t.Fatal("edit must return to idle and clear the result")
	}

	want := []SessionState{StateComputing, StateResult, StateIdle}
	if len(seen) != len(want) {
		t.Fatalf("unexpected transitions %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("unexpected transitions %v", seen)
		}
	}
}

func TestSession_FailedPredictionReturnsToIdle(t *testing.T) {
	fake := &fakePredictor{err: errors.New("boom")}
	s := NewSession(ml.DefaultRequest())

	if _, err := s.Predict(context.Background(), fake); err == nil {
		t.Fatal("expected error")
	}
	if s.State() != StateIdle {
		t.Fatalf("expected idle after failure, got %s", s.State())
	}
}

func TestNewRouteView(t *testing.T) {
	same := geo.Point{Lat: 12.97, Lon: 77.59}
	view := NewRouteView(same, same)
	if view.DistanceKM != 0 || view.X1 != mapWidth/2 || view.Y2 != mapHeight/2 {
		t.Errorf("identical points must sit at the center: %+v", view)
	}

	north := NewRouteView(geo.Point{Lat: 10, Lon: 77}, geo.Point{Lat: 11, Lon: 77})
	if north.Y2 >= north.Y1 || north.X1 != north.X2 {
		t.Errorf("north must be up: %+v", north)
	}

	wide := NewRouteView(geo.Point{Lat: 12.97, Lon: 77.59}, geo.Point{Lat: 13.08, Lon: 80.27})
	for _, v := range []float64{wide.X1, wide.X2} {
		if v < mapPadding-0.01 || v > mapWidth-mapPadding+0.01 {
			t.Errorf("x out of padded canvas: %v", v)
		}
	}
	for _, v := range []float64{wide.Y1, wide.Y2} {
		if v < 0 || v > mapHeight {
			t.Errorf("y out of canvas: %v", v)
		}
	}
	if math.Abs(wide.DistanceKM-290.5914813031398) > 1e-9 {
		t.Errorf("unexpected distance %v", wide.DistanceKM)
	}
}
