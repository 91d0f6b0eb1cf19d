package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"etaengine/ml"
	"etaengine/monitoring"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 16
)

// 会话消息类型
const (
	msgUpdate  = "update"
	msgPredict = "predict"
	msgState   = "state"
	msgResult  = "result"
	msgError   = "error"
)

// clientMessage 客户端消息
type clientMessage struct {
	Type    string      `json:"type"`
	Request *ml.Request `json:"request,omitempty"`
}

// serverMessage 服务端消息
type serverMessage struct {
	Type       string            `json:"type"`
	SessionID  string            `json:"session_id"`
	State      SessionState      `json:"state"`
	Route      *RouteView        `json:"route,omitempty"`
	Prediction *ml.Prediction    `json:"prediction,omitempty"`
	Error      string            `json:"error,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

func (a *app) registerLive(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/session", a.handleLiveSession)
}

func (a *app) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
				return true
			}
			return originAllowed(a.origins, origin)
		},
	}
}

// handleLiveSession 处理实时会话连接，每个连接一个会话
func (a *app) handleLiveSession(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader().Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	a.deps.Metrics.Inc(monitoring.MetricSessionsConnected)

	session := NewSession(ml.DefaultRequest())
	logger := zap.L().With(zap.String("session_id", session.ID))
	logger.Debug("session connected")

	send := make(chan serverMessage, sendBuffer)
	done := make(chan struct{})
	go writePump(conn, send, done)

	session.onChange = func(state SessionState) {
		if state == StateComputing {
			send <- serverMessage{Type: msgState, SessionID: session.ID, State: state}
		}
	}

	// 初始状态
	route := a.routeFor(session.Request())
	send <- serverMessage{Type: msgState, SessionID: session.ID, State: session.State(), Route: &route}

	a.readPump(r.Context(), conn, session, send, logger)
	close(send)
	<-done
	logger.Debug("session closed")
}

// readPump 顺序处理客户端消息，预测是同步的
func (a *app) readPump(ctx context.Context, conn *websocket.Conn, session *Session, send chan<- serverMessage, logger *zap.Logger) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	predictor := a.instrumented(ctx)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			send <- a.errorMessage(session, "malformed message", nil)
			continue
		}
		send <- a.handleMessage(ctx, session, msg, predictor)
	}
}

func (a *app) handleMessage(ctx context.Context, session *Session, msg clientMessage, p Predictor) serverMessage {
	switch msg.Type {
	case msgUpdate, msgPredict:
	default:
		return a.errorMessage(session, "unknown message type "+msg.Type, nil)
	}

	if msg.Request != nil {
		if err := session.Edit(*msg.Request); err != nil {
			return a.errorMessage(session, err.Error(), nil)
		}
	}
	route := a.routeFor(session.Request())

	if msg.Type == msgUpdate {
		if err := p.Validate(session.Request()); err != nil {
			reply := a.errorMessage(session, "invalid input", fieldsOf(err))
			reply.Route = &route
			return reply
		}
		return serverMessage{Type: msgState, SessionID: session.ID, State: session.State(), Route: &route}
	}

	pred, err := session.Predict(ctx, p)
	if err != nil {
		message := "prediction failed"
		fields := fieldsOf(err)
		if fields != nil {
			message = "invalid input"
		}
		reply := a.errorMessage(session, message, fields)
		reply.Route = &route
		return reply
	}
	return serverMessage{
		Type:       msgResult,
		SessionID:  session.ID,
		State:      session.State(),
		Route:      &route,
		Prediction: &pred,
	}
}

func (a *app) routeFor(req ml.Request) RouteView {
	from, to := req.Route()
	return NewRouteView(from, to)
}

func (a *app) errorMessage(session *Session, message string, fields map[string]string) serverMessage {
	return serverMessage{
		Type:      msgError,
		SessionID: session.ID,
		State:     session.State(),
		Error:     message,
		Fields:    fields,
	}
}

func fieldsOf(err error) map[string]string {
	var verr *ml.ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	return nil
}

// writePump WebSocket写入泵
func writePump(conn *websocket.Conn, send <-chan serverMessage, done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		close(done)
	}()

	for {
		select {
		case msg, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				zap.L().Debug("websocket write error", zap.Error(err))
				conn.Close()
				drain(send)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				drain(send)
				return
			}
		}
	}
}

// drain 写入失败后丢弃剩余消息直到读端退出
func drain(send <-chan serverMessage) {
	for range send {
	}
}
