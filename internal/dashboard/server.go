// Package dashboard serves the admin surface: credential submission, a live
// log stream and status, health and metrics endpoints.
package dashboard

import (
	"crypto/subtle"
	_ "embed"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/salini0110200/lockbot/internal/loghub"
	"github.com/salini0110200/lockbot/internal/policy"
	"github.com/salini0110200/lockbot/internal/supervisor"
)

//go:embed index.html
var indexHTML []byte

// Bot is the part of the supervisor the dashboard drives.
type Bot interface {
	Restart()
	Running() bool
	State() supervisor.State
	Attempts() int
}

type Options struct {
	Store    *policy.Store
	Bot      Bot
	Hub      *loghub.Hub
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	// AuthToken, when set, is required as a bearer token on /configure and
	// /status.
	AuthToken string
}

type Server struct {
	store    *policy.Store
	bot      Bot
	hub      *loghub.Hub
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	token    string
	validate *validator.Validate
	upgrader websocket.Upgrader
	engine   *gin.Engine
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		store:    opts.Store,
		bot:      opts.Bot,
		hub:      opts.Hub,
		gatherer: gatherer,
		logger:   logger,
		token:    strings.TrimSpace(opts.AuthToken),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	r.GET("/logs", s.handleLogs)

	authed := r.Group("/", s.requireAuth())
	authed.POST("/configure", s.handleConfigure)
	authed.GET("/status", s.handleStatus)
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Debug("http_request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
		)
	}
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.token == "" {
			c.Next()
			return
		}
		got := strings.TrimSpace(c.GetHeader("Authorization"))
		want := "Bearer " + s.token
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := gin.H{
		"running":          false,
		"state":            string(supervisor.StateDisconnected),
		"reconnect_count":  0,
		"prefix":           s.store.Prefix(),
		"bot_nickname":     s.store.BotNickname(),
		"admin_configured": s.store.AdminID() != "",
		"locks":            s.store.LockCount(),
	}
	if s.bot != nil {
		resp["running"] = s.bot.Running()
		resp["state"] = string(s.bot.State())
		resp["reconnect_count"] = s.bot.Attempts()
	}
	c.JSON(http.StatusOK, resp)
}
