package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"checkin/internal/checkin"
	"checkin/internal/httpmiddleware"
	"checkin/internal/navigator"
)

// OperatorHeader names the person performing a write, for the audit log.
const OperatorHeader = "X-Operator"

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Options configures the router.
type Options struct {
	RateLimitPerMin int
	Limiter         *httpmiddleware.TokenBucket // overrides RateLimitPerMin
	AllowOrigins    []string
	Gatherer        prometheus.Gatherer
	Checks          map[string]HealthCheck
}

// Handler serves the check-in HTTP API.
type Handler struct {
	svc      *checkin.Service
	sessions *navigator.Sessions
	checks   map[string]HealthCheck
	logger   *zap.Logger
}

// New creates a handler over svc. Sessions live in memory.
func New(svc *checkin.Service, sessions *navigator.Sessions, logger *zap.Logger) *Handler {
	return &Handler{
		svc:      svc,
		sessions: sessions,
		logger:   logger.With(zap.String("component", "api")),
	}
}

// Router builds the gin engine with middleware and every route.
func (h *Handler) Router(opts Options) *gin.Engine {
	h.checks = opts.Checks

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.AccessLog(h.logger, "/healthz", "/metrics"))
	r.Use(cors.New(corsConfig(opts.AllowOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())
	limiter := opts.Limiter
	if limiter == nil {
		limiter = httpmiddleware.NewTokenBucket(opts.RateLimitPerMin, opts.RateLimitPerMin)
	}
	r.Use(limiter.GinMiddleware())

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	{
		roster := v1.Group("/roster/:kind")
		roster.GET("", h.Roster)
		roster.GET("/search", h.Search)
		roster.GET("/export", h.Export)
		roster.POST("/reload", h.Reload)
		roster.GET("/people", h.PeopleByState)
		roster.GET("/people/:id", h.Person)
		roster.PATCH("/people/:id", h.UpdatePerson)
		roster.POST("/people/:id/checkin", h.CheckIn)
		roster.POST("/people/:id/checkout", h.CheckOut)

		sessions := v1.Group("/sessions")
		sessions.POST("", h.CreateSession)
		sessions.GET("/:sid", h.GetSession)
		sessions.DELETE("/:sid", h.DeleteSession)
		sessions.POST("/:sid/select", h.SessionSelect)
		sessions.POST("/:sid/back", h.SessionBack)
		sessions.POST("/:sid/tab", h.SessionTab)
		sessions.POST("/:sid/query", h.SessionQuery)
		sessions.POST("/:sid/mode", h.SessionMode)
		sessions.POST("/:sid/checkin", h.SessionCheckIn)
		sessions.POST("/:sid/checkout", h.SessionCheckOut)
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", OperatorHeader, httpmiddleware.RequestIDHeader},
		ExposeHeaders: []string{httpmiddleware.RequestIDHeader, "Content-Disposition"},
		MaxAge:        24 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}
