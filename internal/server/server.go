package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"ensemble_recommender/internal/metrics"
	"ensemble_recommender/internal/router"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server 代表 HTTP API 服务器
type Server struct {
	engine         *gin.Engine
	router         *router.Router
	requestTimeout time.Duration
}

// NewServer 创建新的 HTTP 服务器
func NewServer(r *router.Router, requestTimeout time.Duration) *Server {
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	s := &Server{
		engine:         gin.Default(),
		router:         r,
		requestTimeout: requestTimeout,
	}
	s.engine.Use(s.corsMiddleware())
	s.engine.Use(s.requestIDMiddleware())
	s.setupRoutes()
	return s
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// requestIDMiddleware 为每个请求分配追踪 ID，写入响应头和日志上下文
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := uuid.New().String()
		c.Set("request_id", reqID)
		c.Writer.Header().Set("X-Request-ID", reqID)
		c.Next()
	}
}

// Run 启动服务器
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// Handler 暴露底层 http.Handler，便于测试
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes() {
	s.engine.GET("/rec/ensemble", s.handleEnsemble)
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// handleEnsemble 处理混排推荐请求
// GET /rec/ensemble?liked_id=<id>&session_key=<optional>&count=<optional>
func (s *Server) handleEnsemble(c *gin.Context) {
	start := time.Now()

	likedID := c.Query("liked_id")
	sessionKey := c.Query("session_key")
	count := 0
	if v := c.Query("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			metrics.EnsembleRequests.WithLabelValues("invalid").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "count must be a non-negative integer"})
			return
		}
		count = n
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()

	result, err := s.router.Handle(ctx, likedID, sessionKey, count)
	if err != nil {
		switch {
		case errors.Is(err, router.ErrInvalidRequest):
			metrics.EnsembleRequests.WithLabelValues("invalid").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "liked_id parameter is required"})
		case errors.Is(err, router.ErrAllBackendsUnavailable):
			metrics.EnsembleRequests.WithLabelValues("unavailable").Inc()
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "all recommendation backends unavailable"})
		default:
			metrics.EnsembleRequests.WithLabelValues("error").Inc()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "recommendation failed: " + err.Error()})
		}
		return
	}

	metrics.EnsembleRequests.WithLabelValues("ok").Inc()
	metrics.EnsembleLatency.Observe(time.Since(start).Seconds())

	c.JSON(http.StatusOK, gin.H{
		"dist":    result.Distribution,
		"ids":     result.MovieIDs(),
		"sources": result.SourceMap(),
	})
}
