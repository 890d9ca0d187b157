package api

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"quicktext/internal/server/config"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))
	e.Use(RequestLogger(logger))

	var createLimit, retrieveLimit []echo.MiddlewareFunc
	if cfg.RateLimitEnabled {
		createLimit = append(createLimit,
			NewRateLimiter(cfg.CreateRatePerMin, cfg.CreateBurst, logger).Middleware())
		retrieveLimit = append(retrieveLimit,
			NewRateLimiter(cfg.RetrieveRatePerMin, cfg.RetrieveBurst, logger).Middleware())
	}

	// Health & stats
	e.GET("/health", handler.HandleHealth)
	e.GET("/api/health", handler.HandleHealth)
	e.GET("/api/stats", handler.HandleStats)

	// Create (rate-limited)
	e.POST("/api/share", handler.HandleCreate, createLimit...)

	// Retrieve, plus the legacy path
	for _, path := range []string{"/api/retrieve/:code", "/api/share/:code"} {
		e.GET(path, handler.HandleRetrieve, retrieveLimit...)
		e.POST(path, handler.HandleRetrieve, retrieveLimit...)
	}

	// Update & live updates
	e.PUT("/api/share/:code", handler.HandleUpdate)
	e.GET("/api/share/:code/events", handler.HandleEvents, retrieveLimit...)

	return e
}
