// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"etaengine/db"
	"etaengine/ml"
	"etaengine/monitoring"
)

// Predictor 推理服务所需的模型能力
type Predictor interface {
	Predict(ctx context.Context, req ml.Request) (ml.Prediction, error)
	Validate(req ml.Request) error
	Artifacts() *ml.Artifacts
}

// Server HTTP服务器
type Server struct {
	server *http.Server
	config ServerConfig
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// Deps 处理器依赖
type Deps struct {
	Predictor Predictor
	Metrics   *monitoring.MetricsCollector
	// TrainingRuns 为空时训练记录接口返回空列表
	TrainingRuns func(limit int) ([]db.TrainingRun, error)
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   1 << 20,
	}
}

// NewServer 创建HTTP服务器
func NewServer(config ServerConfig, deps Deps) (*Server, error) {
	handler, err := NewHandler(config, deps)
	if err != nil {
		return nil, err
	}

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       config.Timeout,
			WriteTimeout:      config.Timeout + 5*time.Second,
			IdleTimeout:       120 * time.Second,
		},
		config: config,
	}, nil
}

// NewHandler 注册所有路由并包装中间件
func NewHandler(config ServerConfig, deps Deps) (http.Handler, error) {
	if deps.Predictor == nil {
		return nil, errors.New("http: predictor is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewMetricsCollector()
	}

	mux := http.NewServeMux()
	app := &app{deps: deps, origins: config.AllowedOrigins}

	// 注册所有处理器
	if err := app.registerPages(mux); err != nil {
		return nil, err
	}
	app.registerAPI(mux)
	app.registerLive(mux)

	// 创建中间件链
	chain := Chain(
		RecoveryMiddleware,                    // 1. 恢复中间件（最先执行，捕获panic）
		LoggerMiddleware,                      // 2. 日志中间件
		MetricsMiddleware(deps.Metrics),       // 3. 请求计数
		SecurityHeadersMiddleware,             // 4. 安全头中间件
		CORSMiddleware(config.AllowedOrigins), // 5. CORS中间件
		TimeoutMiddleware(config.Timeout),     // 6. 超时中间件
		RequestSizeMiddleware(config.MaxBodyBytes),
	)

	return chain(mux), nil
}

// Start 启动服务器
func (s *Server) Start() error {
	zap.L().Info("starting HTTP server",
		zap.String("addr", s.server.Addr),
		zap.String("session_endpoint", "/ws/session"))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	zap.L().Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}

// Handler 返回完整的处理器链
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
