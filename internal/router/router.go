package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/retina-api/internal/handler/auth"
	"github.com/jwalitptl/retina-api/internal/handler/dashboard"
	"github.com/jwalitptl/retina-api/internal/handler/health"
	"github.com/jwalitptl/retina-api/internal/handler/notification"
	"github.com/jwalitptl/retina-api/internal/handler/patient"
	"github.com/jwalitptl/retina-api/internal/handler/prometheus"
	"github.com/jwalitptl/retina-api/internal/handler/scan"
	"github.com/jwalitptl/retina-api/internal/middleware"
	"github.com/jwalitptl/retina-api/internal/service/screening"
	"github.com/jwalitptl/retina-api/internal/service/session"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth         *auth.Handler
	Patient      *patient.Handler
	Scan         *scan.Handler
	Dashboard    *dashboard.Handler
	Notification *notification.Handler
	Health       *health.Handler
	Metrics      *prometheus.Handler
}

type RouterConfig struct {
	Mode       string
	RateLimit  rate.Limit
	RateBurst  int
	CORSConfig middleware.CORSConfig
	SizeLimit  middleware.SizeLimitConfig
	Security   middleware.SecurityConfig
	UploadDir  string
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	sessions session.Store
	handlers Handlers
	config   RouterConfig
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	sessions session.Store,
	handlers Handlers,
	config RouterConfig,
) (*Router, error) {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if err := middleware.RegisterBindingValidators(); err != nil {
		return nil, err
	}

	engine := gin.New()

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		handlers.Metrics.Middleware(),
		middleware.ErrorHandler(),
		middleware.SecurityHeaders(config.Security),
		middleware.CORS(config.CORSConfig),
	)

	if config.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
			Idle:  10 * time.Minute,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return &Router{
		engine:   engine,
		auth:     auth,
		sessions: sessions,
		handlers: handlers,
		config:   config,
	}, nil
}

func (r *Router) Setup() {
	r.handlers.Health.RegisterRoutes(r.engine)
	r.engine.GET("/metrics", r.handlers.Metrics.Handler())

	api := r.engine.Group("/api/v1")
	api.Use(
		func(c *gin.Context) {
			c.Header("X-API-Version", "1.0")
			c.Next()
		},
		middleware.SizeLimit(r.config.SizeLimit),
	)

	// Public routes
	r.handlers.Auth.RegisterRoutes(api)
	r.handlers.Scan.RegisterPublicRoutes(api)
	r.handlers.Notification.RegisterRoutes(api)
	views := &viewsHandler{sessions: r.sessions}
	api.GET("/views/resolve", views.resolve)

	// Signed-in routes
	authed := api.Group("")
	authed.Use(r.auth.Authenticate())
	r.handlers.Dashboard.RegisterRoutes(authed)

	// Doctor routes
	doctors := authed.Group("")
	doctors.Use(r.auth.RequireDoctor())
	r.handlers.Patient.RegisterRoutes(doctors)
	r.handlers.Scan.RegisterRoutes(authed, doctors)

	if r.config.UploadDir != "" {
		uploads := r.engine.Group(screening.URLPrefix)
		uploads.Use(r.auth.Authenticate())
		uploads.Static("/", r.config.UploadDir)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
