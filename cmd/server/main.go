package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/summitcamp/booking-backend/internal/config"
	"github.com/summitcamp/booking-backend/internal/database"
	"github.com/summitcamp/booking-backend/internal/handlers"
	"github.com/summitcamp/booking-backend/internal/middleware"
	"github.com/summitcamp/booking-backend/internal/queue"
	"github.com/summitcamp/booking-backend/internal/services"
	"github.com/summitcamp/booking-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting SummitCamp Booking Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Initialize repositories
	tripRepo := database.NewTripRepository(db)
	bookingRepo := database.NewBookingRepository(db)
	auditRepo := database.NewReconcileAuditRepository(db)

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, 15*time.Minute)
	snapGateway := services.NewSnapGatewayService(&cfg.Gateway, logger)
	gatewayService := services.NewRetryingGateway(snapGateway, cfg.Gateway.RetryAttempts, cfg.Gateway.RetryBackoff, logger)

	// Event dispatcher: RabbitMQ when configured, log-only otherwise
	var dispatcher services.NotificationDispatcher
	var publisher *queue.Publisher
	if cfg.Queue.URL != "" {
		publisher, err = queue.NewPublisher(cfg.Queue, logger)
		if err != nil {
			logger.WithError(err).Warn("Message queue unavailable, falling back to log-only dispatch")
			dispatcher = services.NewLogDispatcher(logger)
		} else {
			dispatcher = publisher
			logger.WithField("queue", cfg.Queue.QueueName).Info("Message queue dispatcher initialized")
		}
	} else {
		dispatcher = services.NewLogDispatcher(logger)
	}

	bookingService := services.NewBookingService(bookingRepo, tripRepo, gatewayService, logger)
	tripService := services.NewTripService(tripRepo, logger)
	reconcileService := services.NewReconcileService(
		bookingRepo,
		tripRepo,
		gatewayService,
		dispatcher,
		auditRepo,
		cfg.Booking.CASRetries,
		logger,
	)

	// Start payment-window expiry sweeper
	expiryService := services.NewBookingExpiryService(
		bookingRepo,
		reconcileService,
		cfg.Booking.PaymentWindow,
		cfg.Booking.SweepInterval,
		logger,
	)
	expiryService.Start()

	logger.Info("Services initialized")

	// Initialize handlers
	bookingHandler := handlers.NewBookingHandler(bookingService, reconcileService, logger)
	paymentHandler := handlers.NewPaymentHandler(reconcileService, logger)
	tripHandler := handlers.NewTripHandler(tripService, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// Idempotency cache for booking creation retries
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.WithError(err).Warn("Redis unavailable, idempotency caching disabled")
			redisClient = nil
		}
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Trip catalog (public)
		trips := v1.Group("/trips")
		{
			trips.GET("", tripHandler.ListTrips)
			trips.GET("/:trip_id", tripHandler.GetTrip)
		}

		// Booking routes (protected)
		bookings := v1.Group("/bookings")
		bookings.Use(middleware.AuthMiddleware(jwtService))
		if redisClient != nil {
			bookings.Use(middleware.IdempotencyMiddleware(
				middleware.NewRedisResponseCache(redisClient),
				cfg.Redis.IdempotencyTTL,
				logger,
			))
		}
		{
			bookings.POST("", bookingHandler.CreateBooking)
			bookings.GET("/:booking_id/status", bookingHandler.GetBookingStatus)
		}

		// Gateway-facing payment callbacks (public; validated internally)
		payments := v1.Group("/payments")
		{
			payments.GET("/return", paymentHandler.PaymentReturn)
			payments.POST("/notify", paymentHandler.PaymentNotify)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop the expiry sweeper before the HTTP surface drains
	expiryService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close queue publisher")
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close redis client")
		}
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}

		if userCtx, exists := middleware.GetUserContext(c); exists {
			fields["user_id"] = userCtx.UserID
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
		} else {
			status := c.Writer.Status()
			if status >= 500 {
				entry.Error("Request completed with server error")
			} else if status >= 400 {
				entry.Warn("Request completed with client error")
			} else {
				entry.Info("Request completed successfully")
			}
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
