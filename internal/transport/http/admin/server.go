package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"perpbot/internal/logger"

	"github.com/gin-gonic/gin"
)

var log = logger.With("admin")

// ErrInsecure 表示未配置 jwt_secret 且未显式允许无鉴权访问。
var ErrInsecure = errors.New("admin api requires http.jwt_secret or http.allow_insecure")

// Server 提供运维后台 HTTP 服务。
type Server struct {
	addr   string
	router *gin.Engine
}

type ServerConfig struct {
	Addr          string
	JWTSecret     string
	AllowInsecure bool
	Deps          Deps
}

func NewServer(cfg ServerConfig) (*Server, error) {
	secret := strings.TrimSpace(cfg.JWTSecret)
	if secret == "" && !cfg.AllowInsecure {
		return nil, ErrInsecure
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := router.Group("/api")
	if secret != "" {
		api.Use(AuthMiddleware(secret))
	} else {
		log.Warnf("admin api running without authentication on %s", cfg.Addr)
	}
	NewRouter(cfg.Deps).Register(api)

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Handler exposes the router for httptest.
func (s *Server) Handler() http.Handler { return s.router }

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		log.Debugf("HTTP %s %s status=%d ip=%s op=%s dur=%s", method, fullPath, c.Writer.Status(), client, CurrentOperator(c), time.Since(start))
	}
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	log.Infof("admin api listening on %s", s.addr)

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
