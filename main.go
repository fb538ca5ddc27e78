package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockscreener/config"
	"stockscreener/logger"
	"stockscreener/models"
	"stockscreener/providers"
	"stockscreener/routes"
	"stockscreener/scheduler"
	"stockscreener/services/analysis"
	"stockscreener/services/orchestrator"
	"stockscreener/services/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	refreshOnce := flag.Bool("refresh", false, "run one refresh and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Config load failed")
	}
	if err := logger.Setup(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		log.Fatal().Err(err).Msg("Logger setup failed")
	}

	log.Info().Str("environment", cfg.Environment).Msg("Stock screener backend starting")

	db, err := config.InitDB()
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	if err := models.MigrateModels(db); err != nil {
		log.Fatal().Err(err).Msg("Database migration failed")
	}

	sectors := loadSectorMapper(cfg)
	manager := providers.NewManager(cfg.ProviderPriority,
		providers.NewYahooProvider(),
		providers.NewAlphaVantageProvider(cfg.AlphaVantageAPIKey),
		providers.NewPolygonProvider(cfg.PolygonAPIKey),
	)
	log.Info().Strs("active", manager.Available()).Msg("Provider chain configured")

	st := store.NewGormStore(db)
	orch := orchestrator.New(st, manager, sectors, orchestrator.Config{
		Workers: cfg.RefreshWorkers,
	})

	if *refreshOnce {
		runOnce(orch, cfg.SymbolsFile)
		return
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	routes.SetupRoutes(router, st, orch, cfg.SymbolsFile)

	var sched *scheduler.Scheduler
	if cfg.ScheduleEnabled {
		sched = scheduler.NewScheduler(orch, cfg.SymbolsFile)
		if err := sched.Start(cfg.ScheduleTime); err != nil {
			log.Error().Err(err).Msg("Could not start refresh scheduler")
		}
	}

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	if sched != nil {
		sched.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Forced shutdown")
	}
}

func runOnce(orch *orchestrator.Orchestrator, symbolsFile string) {
	universe, err := orchestrator.LoadUniverse(symbolsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load symbol universe")
	}
	result, err := orch.Run(context.Background(), universe)
	if err != nil {
		log.Fatal().Err(err).Msg("Refresh run failed")
	}
	log.Info().
		Str("status", result.Status).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("Refresh run completed")
	if result.Status == models.RefreshStatusFailed {
		os.Exit(1)
	}
}

func loadSectorMapper(cfg *config.Config) *analysis.SectorMapper {
	if cfg.SectorMapFile == "" {
		return analysis.NewSectorMapper()
	}
	sectors, err := analysis.LoadSectorMapper(cfg.SectorMapFile)
	if err != nil {
		log.Warn().Err(err).Str("file", cfg.SectorMapFile).
			Msg("Could not load sector map override, using built-in table")
		return analysis.NewSectorMapper()
	}
	return sectors
}
