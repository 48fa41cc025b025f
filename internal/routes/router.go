package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleet-mds-provider/internal/cache"
	"fleet-mds-provider/internal/config"
	"fleet-mds-provider/internal/delivery/http/handler"
	"fleet-mds-provider/internal/freshness"
	"fleet-mds-provider/internal/identity"
	"fleet-mds-provider/internal/infrastructure/database/postgres"
	"fleet-mds-provider/internal/logger"
	"fleet-mds-provider/internal/middleware"
	"fleet-mds-provider/internal/observability"
	"fleet-mds-provider/internal/transform"
	"fleet-mds-provider/internal/usecase/event"
	"fleet-mds-provider/internal/usecase/telemetry"
	"fleet-mds-provider/internal/usecase/trip"
	"fleet-mds-provider/internal/usecase/vehicle"
)

func SetupRoutes(cfg *config.Config, db *postgres.DB) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware in order: recovery, request ID, logging, security headers,
	// CORS, request size limit, general rate limit
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware(&cfg.CORS))
	router.Use(middleware.RequestSizeLimitMiddleware(middleware.DefaultMaxRequestSize))
	router.Use(middleware.RateLimitMiddleware(cfg.RateLimit.GeneralRPS, cfg.RateLimit.GeneralBurst))

	router.GET("/health", func(c *gin.Context) {
		if err := db.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"message": "Database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"message": "Service is running",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	clock := clockwork.NewRealClock()
	metrics := observability.NewMetrics()
	ids := identity.NewDeriver(cfg.Provider.ID)
	tf := transform.NewTransformer(ids, cfg.Data.MinLocationAccuracy, cfg.Data.CoordinatePrecision, logger.Named("transform"))

	warehouseRepo := postgres.NewWarehouseRepository(db)
	materializedRepo := postgres.NewMaterializedRepository(db, clock)

	// Trips are kept for the whole operating history; events and telemetry
	// expire with the raw sample retention.
	tripResolver := freshness.NewResolver(clock, 0, cfg.Data.OperationsStart)
	eventResolver := freshness.NewResolver(clock, cfg.Data.EventRetention(), cfg.Data.OperationsStart)

	statusCache := cache.New(clock)
	ttlMS := cfg.Data.StatusCacheTTL.Milliseconds()

	vehicleService := vehicle.NewService(materializedRepo, warehouseRepo, ids, tf, statusCache, metrics, clock, logger.Named("vehicle"), cfg.Data.StatusCacheTTL, cfg.Data.VehicleRetention())
	vehicleHandler := handler.NewVehicleHandler(vehicleService, ttlMS)

	tripService := trip.NewService(materializedRepo, tf, tripResolver)
	tripHandler := handler.NewTripHandler(tripService)

	telemetryService := telemetry.NewService(materializedRepo, warehouseRepo, tf, eventResolver)
	telemetryHandler := handler.NewTelemetryHandler(telemetryService)

	eventService := event.NewService(materializedRepo, tf, eventResolver, logger.Named("event"))
	eventHandler := handler.NewEventHandler(eventService)

	provider := router.Group(cfg.Provider.APIPrefix)
	if cfg.JWT.Secret != "" {
		provider.Use(middleware.AuthMiddleware(cfg))
	}
	{
		vehicleHandler.RegisterRoutes(provider)
		tripHandler.RegisterRoutes(provider)
		telemetryHandler.RegisterRoutes(provider)
		eventHandler.RegisterRoutes(provider)
	}

	logger.Info("All routes initialized")
	return router
}
