package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/sathizz7/streetview-capturing-sys/internal/api"
	"github.com/sathizz7/streetview-capturing-sys/internal/config"
	"github.com/sathizz7/streetview-capturing-sys/internal/database"
	"github.com/sathizz7/streetview-capturing-sys/internal/handler"
	"github.com/sathizz7/streetview-capturing-sys/internal/maps"
	"github.com/sathizz7/streetview-capturing-sys/internal/oracle"
	"github.com/sathizz7/streetview-capturing-sys/internal/repository"
	"github.com/sathizz7/streetview-capturing-sys/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	if cfg.MapsAPIKey == "" {
		log.Fatal("MAPS_API_KEY is required")
	}

	if err := database.Init(database.Config{Path: cfg.DBPath}); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.Close()

	if err := database.NewMigrationManager(database.GetDB()).Migrate(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	mapsClient := maps.NewHTTPClient(cfg.MapsAPIKey,
		maps.WithMaxRetries(uint64(cfg.MapsMaxRetries)))
	judge := oracle.NewHTTPJudge(oracle.HTTPJudgeConfig{
		BaseURL: cfg.OracleURL,
		APIKey:  cfg.OracleAPIKey,
		Batch:   cfg.OracleBatch,
	})

	repo := repository.NewCaptureRunRepository(database.GetDB())
	captureService := service.NewCaptureService(repo, mapsClient, judge, cfg.Capture)
	captureHandler := handler.NewCaptureHandler(captureService)

	router := api.SetupRouter(cfg, captureHandler)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := router.Run(cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
