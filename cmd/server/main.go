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
	"github.com/poojaseva/checkout-reconciler/internal/config"
	"github.com/poojaseva/checkout-reconciler/internal/database"
	"github.com/poojaseva/checkout-reconciler/internal/handlers"
	"github.com/poojaseva/checkout-reconciler/internal/middleware"
	"github.com/poojaseva/checkout-reconciler/internal/reconciliation"
	"github.com/poojaseva/checkout-reconciler/internal/services"
	"github.com/poojaseva/checkout-reconciler/internal/session"
	"github.com/poojaseva/checkout-reconciler/pkg/jwt"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting checkout reconciler")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	// Audit trail (optional)
	var (
		db          *database.PostgresDB
		auditRepo   *database.ReconciliationAuditRepository
		auditReader handlers.AuditReader
		auditPruner services.AuditPruner
		engineOpts  []reconciliation.Option
	)
	if cfg.Database.URL != "" && cfg.Reconciliation.AuditEnabled {
		logger.Info("Connecting to database...")
		db, err = database.NewConnection(startupCtx, cfg.Database)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := database.EnsureSchema(startupCtx, db); err != nil {
			logger.Fatalf("Failed to prepare audit schema: %v", err)
		}
		auditRepo = database.NewReconciliationAuditRepository(db, logger)
		auditReader = auditRepo
		auditPruner = auditRepo
		engineOpts = append(engineOpts, reconciliation.WithAuditRecorder(auditRepo))
		logger.Info("✓ Reconciliation audit trail enabled")
	} else {
		logger.Warn("DATABASE_URL not set or audit disabled - reconciliation audit trail is off")
	}

	// Session references
	var (
		references    session.ReferenceStore
		expiringStore services.ExpiringReferenceStore
		redisClient   *redis.Client
	)
	if cfg.Redis.URL != "" {
		logger.Info("Connecting to Redis...")
		redisClient, err = session.NewRedisClient(startupCtx, cfg.Redis.URL)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		references = session.NewRedisReferenceStore(redisClient, cfg.Redis.KeyPrefix, cfg.Redis.ReferenceTTL, logger)
		logger.Info("✓ Session references stored in Redis")
	} else {
		memoryStore := session.NewMemoryReferenceStore(cfg.Redis.ReferenceTTL)
		references = memoryStore
		expiringStore = memoryStore
		logger.Info("Session references kept in memory")
	}

	// Remote booking API
	bookingAPI := services.NewBookingAPIService(&cfg.BookingAPI, logger)
	logger.WithFields(logrus.Fields{
		"base_url":   cfg.BookingAPI.BaseURL,
		"rate_limit": cfg.BookingAPI.RateLimit,
	}).Info("Booking API client configured")

	registry := reconciliation.NewRegistry(bookingAPI, cfg.Reconciliation.Policies, logger, engineOpts...)

	cronCfg := services.DefaultCronConfig()
	cronCfg.SweepSchedule = cfg.Reconciliation.SweepSchedule
	cronCfg.SessionMaxAge = cfg.Reconciliation.SessionMaxAge
	cronService := services.NewCronService(cronCfg, registry, expiringStore, auditPruner, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	logger.Info("✓ Cron service started - abandoned reconciliations are swept")

	var jwtService *jwt.Service
	if cfg.JWT.Secret != "" {
		jwtService = jwt.NewService(cfg.JWT.Secret)
	}

	reconciliationHandler := handlers.NewReconciliationHandler(
		registry,
		references,
		auditReader,
		logger,
		cfg.Reconciliation.SessionMaxAge,
		cfg.IsProduction(),
	)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "X-Session-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", healthCheckHandler(db, redisClient, registry, cronService))

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(jwtService, cfg.JWT.RequireAuth, logger))
	reconciliationHandler.RegisterRoutes(api)

	// Admin cron management, only with signed tokens
	if jwtService != nil {
		admin := router.Group("/api/v1/admin")
		admin.Use(middleware.AuthMiddleware(jwtService, true, logger))
		admin.Use(middleware.RequireRole("admin", logger))
		handlers.NewAdminHandler(cronService, logger).RegisterRoutes(admin)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second, // covers ?wait= long polls
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	cronService.Stop()

	logger.WithField("open_reconciliations", registry.Len()).Info("Cancelling open reconciliations...")
	registry.CloseAll()

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
			"has_auth":   c.GetHeader("Authorization") != "",
		}
		if userCtx, ok := middleware.GetUserContext(c); ok {
			fields["user_id"] = userCtx.UserID
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler reports the state of the optional dependencies
func healthCheckHandler(db *database.PostgresDB, redisClient *redis.Client, registry *reconciliation.Registry, cronService *services.CronService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		healthy := true
		dbStatus := "disabled"
		if db != nil {
			dbStatus = "healthy"
			if err := db.PingContext(ctx); err != nil {
				dbStatus = "unhealthy"
				healthy = false
			}
		}

		redisStatus := "disabled"
		if redisClient != nil {
			redisStatus = "healthy"
			if err := redisClient.Ping(ctx).Err(); err != nil {
				redisStatus = "unhealthy"
				healthy = false
			}
		}

		status, code := "healthy", http.StatusOK
		if !healthy {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":               status,
			"database":             dbStatus,
			"redis":                redisStatus,
			"open_reconciliations": registry.Len(),
			"cron":                 cronService.GetJobStatus(),
			"version":              version,
			"timestamp":            time.Now().Unix(),
		})
	}
}
