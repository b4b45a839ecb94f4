// routes.go - Route and middleware registration helpers
package api

import (
	"net/http"

	"github.com/draganddrop/backend/internal/config"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Classifier Classifier
	Version    string
	// MaxUploadSize caps upload bodies. NewServer fills it from the
	// configured body limit when zero.
	MaxUploadSize int64
}

// Handlers holds all handler instances
type Handlers struct {
	Health HealthHandler
	Upload UploadHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health: NewHealthHandler(deps.Version),
		Upload: NewUploadHandler(deps.Classifier, deps.MaxUploadSize),
	}
}

// UploadPath is the route of the upload endpoint.
const UploadPath = "/api/upload"

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")
	apiGroup.GET("/health", handlers.Health.HandleHealth)
	apiGroup.POST("/upload", handlers.Upload.HandleUpload)
	apiGroup.RouteNotFound("/*", func(c echo.Context) error {
		return NewNotFoundError("Resource not found")
	})
}

// corsMethods is every method a browser may preflight.
var corsMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

// CORSConfig builds the echo CORS settings. Credentials, all methods and
// all request headers are allowed whatever the origin list is; an empty
// AllowHeaders makes echo echo back Access-Control-Request-Headers.
func CORSConfig(cfg config.CORSConfig) middleware.CORSConfig {
	return middleware.CORSConfig{
		AllowOrigins:     cfg.Origins(),
		AllowMethods:     corsMethods,
		AllowCredentials: true,
		// "*" with credentials reflects the caller's origin.
		UnsafeWildcardOriginWithAllowCredentials: true,
	}
}

// SetupMiddleware configures the error handler and common middleware
func SetupMiddleware(e *echo.Echo, cfg *config.AppConfig, logger zerolog.Logger) {
	e.HTTPErrorHandler = NewErrorHandler(logger, cfg.Server.ExposeInternalErrors)

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string {
			return uuid.New().String()
		},
	}))

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/api/health"
		},
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := logger.Info()
			if v.Status >= http.StatusInternalServerError {
				event = logger.Error().Err(v.Error)
			}
			event.
				Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error().Err(err).Bytes("stack", stack).Msg("panic recovered")
			return err
		},
	}))

	e.Use(middleware.CORSWithConfig(CORSConfig(cfg.CORS)))

	if cfg.Server.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{Level: 5}))
	}

	// Uploads are capped by the handler while streaming so the error can
	// name the file that crossed the limit.
	e.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
		Limit: cfg.Server.BodyLimit,
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == UploadPath
		},
	}))
}

// NewServer creates the echo instance with middleware and routes registered.
func NewServer(cfg *config.AppConfig, logger zerolog.Logger, deps *Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Server.IdleTimeout = cfg.Server.IdleTimeout

	d := *deps
	if d.MaxUploadSize == 0 {
		if limit, err := cfg.Server.BodyLimitBytes(); err == nil {
			d.MaxUploadSize = limit
		}
	}

	SetupMiddleware(e, cfg, logger)
	RegisterRoutes(e, NewHandlers(&d))
	return e
}
