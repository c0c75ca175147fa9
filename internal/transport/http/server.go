package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"helmsman/internal/engine"
	"helmsman/internal/logger"
	"helmsman/internal/position"

	"github.com/gin-gonic/gin"
)

// StatusSource 提供引擎运行时快照。由 engine.Engine 实现。
type StatusSource interface {
	Status() engine.Status
	Positions() []position.Position
}

// Server 提供只读的 /api 查询服务：引擎状态、持仓与交易日志。
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 描述 HTTP 服务依赖。
type ServerConfig struct {
	Addr    string
	Engine  StatusSource
	Journal JournalReader
}

// NewServer 构建 HTTP server。
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("http server 需要 engine 状态源")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9917"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r := &Router{Engine: cfg.Engine, Journal: cfg.Journal}
	r.Register(router.Group("/api"))

	return &Server{addr: cfg.Addr, router: router}, nil
}

// requestLogger 记录接口调用，便于追踪人工查询。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Handler 暴露底层 http.Handler，测试用。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
