package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/guildbank/backend/docs"
	"github.com/guildbank/backend/internal/audit"
	"github.com/guildbank/backend/internal/config"
	"github.com/guildbank/backend/internal/database"
	"github.com/guildbank/backend/internal/handlers"
	"github.com/guildbank/backend/internal/logger"
	"github.com/guildbank/backend/internal/metrics"
	mW "github.com/guildbank/backend/internal/middleware"
	"github.com/guildbank/backend/internal/services"
	"github.com/guildbank/backend/internal/store"
	"github.com/guildbank/backend/internal/store/memory"
	"github.com/guildbank/backend/internal/store/postgres"
	"github.com/guildbank/backend/internal/store/sqlite"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Guild Bank API
// @version 1.0
// @description Guild-scoped virtual currency ledger: signed gateway for game servers and an admin API.
// @host localhost:8080
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	configPath := flag.String("config", "", "path to a .env or YAML config file (default .env)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	// Initialize Swagger docs
	docs.SwaggerInfo.Host = "localhost:" + cfg.Server.Port
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	st, err := openStore(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize store")
	}
	defer st.Close()

	redisClient := database.InitRedis(cfg.Redis, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	if cfg.Gateway.Secret == "" {
		log.Warn("gateway.secret is not set; every gateway request will be rejected")
	}

	auditLogger := audit.NewAuditLogger(log)
	ledgerService := services.NewLedgerService(st, cfg.Ledger, cfg.Store.Timeout, auditLogger, log)
	tierService := services.NewTierService(st, cfg.Store.Timeout, auditLogger)
	linkService := services.NewLinkService(st, ledgerService, cfg.Store.Timeout, auditLogger)
	permissions := services.NewPermissionTable(cfg.Permissions)

	signer := mW.NewSigner(cfg.Gateway.Secret)
	replay := handlers.NewReplayCache(redisClient, cfg.Gateway.ReplayTTL, log)
	gatewayHandler := handlers.NewGatewayHandler(ledgerService, linkService, signer, replay, cfg.Gateway.GuildID, log)
	adminHandler := handlers.NewAdminHandler(ledgerService, tierService, linkService, st, cfg.Currency, permissions, log)
	tokens := mW.NewTokenIssuer(cfg.JWT.SecretKey, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	limiter := mW.NewRateLimiter(cfg.Gateway.RatePerSecond, cfg.Gateway.Burst, log)

	// Background jobs
	scheduler := metrics.NewScheduler(log)
	if err := scheduler.AddSupplySnapshot("@every 1m", st, cfg.Store.Timeout); err != nil {
		log.WithError(err).Fatal("Failed to schedule supply snapshot")
	}
	if err := scheduler.AddFunc("@every 10m", "limiter_cleanup", func() {
		if n := limiter.Cleanup(10 * time.Minute); n > 0 {
			log.WithField("removed", n).Debug("rate limiters pruned")
		}
	}); err != nil {
		log.WithError(err).Fatal("Failed to schedule limiter cleanup")
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(metrics.InstrumentHandler)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mW.SignatureHeader, handlers.RequestIDHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "healthy", http.StatusOK
		if err := st.Ping(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})

	r.Handle("/metrics", metrics.Handler())

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// Signed gateway for trusted game servers
	r.Group(func(r chi.Router) {
		r.Use(limiter.Handler)
		gatewayHandler.Routes(r)
	})

	// Admin API
	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(tokens.Authenticate)
		adminHandler.Routes(r)
	})

	// Start server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.WithFields(logrus.Fields{
			"addr":  server.Addr,
			"store": cfg.Store.Driver,
			"guild": cfg.Gateway.GuildID,
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server stopped")
}

func openStore(cfg *config.Config, log *logrus.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		db, err := database.InitDB(cfg.Database, log)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(db, log); err != nil {
			db.Close()
			return nil, err
		}
		return postgres.New(db), nil

	case "sqlite":
		db, err := database.InitSQLite(cfg.Store, cfg.Log.Level == "debug")
		if err != nil {
			return nil, err
		}
		st, err := sqlite.New(db)
		if err != nil {
			return nil, err
		}
		return st, nil

	case "memory":
		log.Warn("Using in-memory store; balances are lost on restart")
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
