package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/inkwell/account-service/docs"
	"github.com/inkwell/account-service/internal/api/handler"
	"github.com/inkwell/account-service/internal/api/middleware"
	"github.com/inkwell/account-service/internal/core/domain"
	"github.com/inkwell/account-service/internal/core/ports"
)

// RouterDeps carries everything the HTTP layer needs.
type RouterDeps struct {
	Accounts ports.AccountService
	Access   ports.AccessService
	// Health maps a dependency name to its readiness check.
	Health map[string]handler.Pinger
	Log    zerolog.Logger
	// Registry receives the HTTP metrics and backs /metrics. Nil selects the
	// default Prometheus registry.
	Registry *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d RouterDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if d.Registry != nil {
		registerer, gatherer = d.Registry, d.Registry
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "accounts",
		Registerer: registerer,
	}))

	// --- Operational endpoints (no auth required) ---
	health := handler.NewHealthHandler(d.Health)
	e.GET("/health", health.Liveness)        // liveness  – is the process alive?
	e.GET("/health/ready", health.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- Account routes ---
	h := handler.NewAccountHandler(d.Accounts)
	authn := middleware.Auth(d.Access)
	adminOrSelf := middleware.AdminOrSelf(d.Access, "id")
	notSelf := middleware.NotSelf("id")

	auth := e.Group("/api/v1/auth")
	auth.POST("/register", h.Register, middleware.OptionalAuth(d.Access))
	auth.POST("/login", h.Login)
	auth.POST("/confirm-email", h.ConfirmEmail)
	auth.POST("/resend-confirmation", h.ResendConfirmation)

	auth.GET("/profile", h.Profile, authn)
	auth.GET("/check-role", h.CheckRole, authn)
	auth.PATCH("/change-password", h.ChangePassword, authn)
	auth.GET("/profile/:id", h.ProfileByID, authn, adminOrSelf)
	auth.GET("/confirmation-status/:id", h.ConfirmationStatus, authn, adminOrSelf)

	users := auth.Group("/users", authn, middleware.Require(d.Access, domain.RoleAdmin))
	users.GET("", h.List)
	users.DELETE("/:id", h.Delete, notSelf)
	users.PATCH("/:id/deactivate", h.Deactivate, notSelf)
	users.PATCH("/:id/role", h.ChangeRole, notSelf)

	return e
}

// requestLogger writes one access log line per request through zerolog.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			switch {
			case v.Status >= 500:
				ev = log.Error().Err(v.Error)
			case v.Status >= 400:
				ev = log.Warn()
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
