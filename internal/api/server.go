// Package api exposes the moderation engine over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"chat-moderation-engine/internal/cache"
	"chat-moderation-engine/internal/engine"
	"chat-moderation-engine/internal/models"
	"chat-moderation-engine/internal/store"
)

const (
	defaultTopThreats = 10
	maxTopThreats     = 100
	defaultBanLimit   = 50
	maxBanLimit       = 500
)

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// CacheMetrics is implemented by the caching store decorator
type CacheMetrics interface {
	GetMetrics() cache.Metrics
}

type Options struct {
	Engine     *engine.Engine
	Logger     *zap.Logger
	AdminToken string
	Checks     map[string]HealthCheck
	// Cache adds hit rates to /v1/stats when set
	Cache CacheMetrics
}

type Server struct {
	engine *engine.Engine
	logger *zap.Logger
	checks map[string]HealthCheck
	cache  CacheMetrics
}

// NewRouter builds the gin router with every route registered
func NewRouter(opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{engine: opts.Engine, logger: logger, checks: opts.Checks, cache: opts.Cache}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.POST("/evaluate", s.evaluate)

	admin := v1.Group("", adminAuth(opts.AdminToken))
	admin.GET("/warnings/:device", s.warningCount)
	admin.DELETE("/warnings/:device", s.clearWarnings)
	admin.DELETE("/risk/:actor", s.resetRisk)
	admin.GET("/threats/top", s.topThreats)
	admin.GET("/bans", s.listBans)
	admin.GET("/stats", s.stats)
	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// adminAuth accepts "Authorization: Bearer <token>"; an empty token disables it
func adminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		authz := strings.TrimSpace(c.GetHeader("Authorization"))
		if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		got := strings.TrimSpace(authz[len("bearer "):])
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

type evaluateResponse struct {
	engine.Outcome
	PersistError string `json:"persist_error,omitempty"`
}

func (s *Server) evaluate(c *gin.Context) {
	var evt models.MessageEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := s.engine.Evaluate(c.Request.Context(), evt)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	resp := evaluateResponse{Outcome: out}
	if out.PersistErr != nil {
		resp.PersistError = out.PersistErr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) warningCount(c *gin.Context) {
	device := c.Param("device")
	c.JSON(http.StatusOK, gin.H{"device": device, "warnings": s.engine.WarningCount(device)})
}

func (s *Server) clearWarnings(c *gin.Context) {
	s.engine.ClearWarnings(c.Param("device"))
	c.Status(http.StatusNoContent)
}

func (s *Server) resetRisk(c *gin.Context) {
	actor := c.Param("actor")
	if err := s.engine.ResetRiskProfile(c.Request.Context(), actor); err != nil {
		s.logger.Error("Risk profile reset failed", zap.String("actor", actor), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) topThreats(c *gin.Context) {
	n, ok := queryInt(c, "n", defaultTopThreats, maxTopThreats)
	if !ok {
		return
	}
	threats, err := s.engine.TopThreats(c.Request.Context(), n)
	if errors.Is(err, engine.ErrNoLeaderboard) {
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if threats == nil {
		threats = []models.Threat{}
	}
	c.JSON(http.StatusOK, gin.H{"threats": threats})
}

func (s *Server) listBans(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultBanLimit, maxBanLimit)
	if !ok {
		return
	}
	bans, err := s.engine.ListBans(c.Request.Context(), store.BanFilter{
		ActorName: c.Query("actor"),
		DeviceID:  c.Query("device"),
		Limit:     limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if bans == nil {
		bans = []*models.BanRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"bans": bans})
}

type statsResponse struct {
	engine.Stats
	Cache *cache.Metrics `json:"cache,omitempty"`
}

func (s *Server) stats(c *gin.Context) {
	resp := statsResponse{Stats: s.engine.GetStats()}
	if s.cache != nil {
		m := s.cache.GetMetrics()
		resp.Cache = &m
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}
	c.JSON(status, gin.H{"checks": results})
}

// queryInt reads a positive integer query parameter, writing a 400 when malformed
func queryInt(c *gin.Context, name string, def, max int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	if n > max {
		n = max
	}
	return n, true
}
