package http

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"etaengine/ml"
)

// SessionState 前端会话状态
type SessionState int

const (
	StateIdle SessionState = iota
	StateComputing
	StateResult
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComputing:
		return "computing"
	case StateResult:
		return "result"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SessionState) UnmarshalText(text []byte) error {
	for _, state := range []SessionState{StateIdle, StateComputing, StateResult} {
		if state.String() == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// SessionEvent 会话事件
type SessionEvent int

const (
	EventEdit SessionEvent = iota
	EventPredict
	EventPredicted
	EventFailed
)

var ErrInvalidTransition = errors.New("invalid session transition")

// Next 状态转换: Idle -编辑-> Idle -预测-> Computing -完成-> Result -编辑-> Idle
func (s SessionState) Next(e SessionEvent) (SessionState, error) {
	switch {
	case e == EventEdit && (s == StateIdle || s == StateResult):
		return StateIdle, nil
	case e == EventPredict && (s == StateIdle || s == StateResult):
		return StateComputing, nil
	case e == EventPredicted && s == StateComputing:
		return StateResult, nil
	case e == EventFailed && s == StateComputing:
		return StateIdle, nil
	}
	return s, fmt.Errorf("%w: event %d in state %s", ErrInvalidTransition, e, s)
}

// Session 单个前端会话，不跨会话持久化，不可并发使用
type Session struct {
	ID      string
	state   SessionState
	request ml.Request
	result  *ml.Prediction

	// onChange 在每次状态变化后调用
	onChange func(SessionState)
}

func NewSession(req ml.Request) *Session {
	return &Session{
		ID:      uuid.NewString(),
		state:   StateIdle,
		request: req,
	}
}

func (s *Session) State() SessionState {
	return s.state
}

func (s *Session) Request() ml.Request {
	return s.request
}

// Result 最近一次预测结果，仅在Result状态下有效
func (s *Session) Result() *ml.Prediction {
	if s.state != StateResult {
		return nil
	}
	return s.result
}

// Edit 更新输入，回到Idle
func (s *Session) Edit(req ml.Request) error {
	if err := s.transition(EventEdit); err != nil {
		return err
	}
	s.request = req
	s.result = nil
	return nil
}

// Predict 同步执行一次预测: Computing，然后Result或（失败时）Idle
func (s *Session) Predict(ctx context.Context, p Predictor) (ml.Prediction, error) {
	if err := s.transition(EventPredict); err != nil {
		return ml.Prediction{}, err
	}

	pred, err := p.Predict(ctx, s.request)
	if err != nil {
		if terr := s.transition(EventFailed); terr != nil {
			return ml.Prediction{}, terr
		}
		return ml.Prediction{}, err
	}

	s.result = &pred
	if err := s.transition(EventPredicted); err != nil {
		return ml.Prediction{}, err
	}
	return pred, nil
}

func (s *Session) transition(e SessionEvent) error {
	next, err := s.state.Next(e)
	if err != nil {
		return err
	}
	s.state = next
	if s.onChange != nil {
		s.onChange(next)
	}
	return nil
}
