package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/andresuchdata/stocklens/internal/api"
	"github.com/andresuchdata/stocklens/internal/cache"
	"github.com/andresuchdata/stocklens/internal/config"
	"github.com/andresuchdata/stocklens/internal/domain"
	"github.com/andresuchdata/stocklens/internal/platform"
	"github.com/andresuchdata/stocklens/internal/repository"
	"github.com/andresuchdata/stocklens/internal/repository/postgres"
	"github.com/andresuchdata/stocklens/internal/sellthrough"
	"github.com/andresuchdata/stocklens/internal/service"
	"github.com/andresuchdata/stocklens/pkg/logger"
)

func main() {
	// Derived ratios serialize as bare JSON numbers, not quoted strings
	decimal.MarshalJSONWithoutQuotes = true

	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.SetLevel(cfg.Server.Mode)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := cfg.Validate(); err != nil {
		logger.Log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Platform client
	client := platform.NewClient(platform.Config{
		StoreDomain: cfg.Platform.StoreDomain,
		AccessToken: cfg.Platform.AccessToken,
		APIVersion:  cfg.Platform.APIVersion,
	}, nil)

	// Optional sell-through source
	var loader service.SellThroughLoader
	if cfg.SellThrough.URL != "" {
		url := cfg.SellThrough.URL
		loader = func(ctx context.Context) (map[string]domain.ExternalSkuRecord, error) {
			body, err := sellthrough.Fetch(ctx, client.HTTPClient(), url)
			if err != nil {
				return nil, err
			}
			return sellthrough.Records(body)
		}
	}

	// Report cache (noop when disabled)
	reportCache, err := cache.NewReportCache(cfg.Cache)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize report cache")
	}

	// Optional run bookkeeping
	var runs repository.ReportRunRepository
	if cfg.Database.Enabled {
		db, err := postgres.NewDB(&cfg.Database)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		runs = repository.NewReportRunRepository(db)
	}

	reportService := service.NewReportService(client, loader, reportCache, runs, cfg.Report, cfg.SellThrough.Required)

	// Initialize HTTP server
	router := api.NewRouter(&api.Services{ReportService: reportService}, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}
