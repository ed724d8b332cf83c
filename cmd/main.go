package main

import (
	"context"
	"fmt"
	"os"

	"github.com/openvoices/insights-backend/internal/config"
	"github.com/openvoices/insights-backend/internal/dataset"
	"github.com/openvoices/insights-backend/internal/export"
	"github.com/openvoices/insights-backend/internal/handlers"
	"github.com/openvoices/insights-backend/internal/localization"
	"github.com/openvoices/insights-backend/internal/platform/gtranslate"
	"github.com/openvoices/insights-backend/internal/platform/logger"
	"github.com/openvoices/insights-backend/internal/platform/objectstore"
	"github.com/openvoices/insights-backend/internal/server"
	"github.com/openvoices/insights-backend/internal/services"
	"github.com/openvoices/insights-backend/internal/taxonomy"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// Env
	log.Info("Loading environment variables from main...")
	settings := config.LoadSettings(log)

	// Campaign configs
	log.Info("Loading campaign configurations...", "dir", settings.CampaignsConfigDir)
	campaigns, err := config.LoadCampaigns(settings.CampaignsConfigDir)
	if err != nil {
		log.Error("Could not load campaign configurations", "error", err)
		os.Exit(1)
	}
	if len(campaigns) == 0 {
		log.Error("No campaigns configured", "dir", settings.CampaignsConfigDir)
		os.Exit(1)
	}

	// Object storage
	var store objectstore.Store
	if settings.ObjectStoreBucket != "" {
		gcs, err := objectstore.NewGCS(ctx, log, settings.ObjectStoreBucket)
		if err != nil {
			log.Error("Could not init object storage", "error", err)
			os.Exit(1)
		}
		store = gcs
	} else {
		log.Warn("OBJECT_STORE_BUCKET not set, exports and translation persistence are in-memory only")
		store = objectstore.NewMemory()
	}

	// Dataset cache
	log.Info("Setting up dataset cache from main...")
	loader := dataset.NewLoader(log, store, settings.SourceFetchTimeout, settings.UnresolvedCodeMaxFraction)
	cache := dataset.NewCache(log, loader)
	for code, cfg := range campaigns {
		tax, err := taxonomy.Validate(cfg.ParentCategories)
		if err != nil {
			log.Error("Invalid category taxonomy", "campaign", code, "error", err)
			os.Exit(1)
		}
		cache.Register(code, sourceFor(cfg), tax)
	}

	// Reload scheduler
	scheduler, err := dataset.NewScheduler(log, cache, settings.DatasetReloadCron)
	if err != nil {
		log.Error("Could not init reload scheduler", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Translations
	var backend localization.Backend
	if settings.TranslationsEnabled {
		client, err := gtranslate.New(ctx, log, settings.GoogleProjectID)
		if err != nil {
			log.Warn("Could not init translation backend, serving source text", "error", err)
		} else {
			backend = client
		}
	}
	translations := localization.NewCache(log, backend, store, settings.DefaultLanguage)
	translations.Warm(ctx)
	defer func() {
		if err := translations.Persist(context.Background()); err != nil {
			log.Warn("Could not persist translation cache", "error", err)
		}
	}()

	// Services
	log.Info("Setting up services from main...")
	exports := export.NewBuilder(log, store)
	campaignService := services.NewCampaignService(log, campaigns, cache, translations, exports, settings.DefaultLanguage)

	// Handlers
	campaignHandler := handlers.NewCampaignHandler(log, campaignService)
	adminHandler := handlers.NewAdminHandler(log, campaignService)

	// Router
	router := server.NewRouter(server.RouterConfig{
		CampaignHandler: campaignHandler,
		AdminHandler:    adminHandler,
		CampaignService: campaignService,
	})

	log.Info("Starting server...", "port", settings.Port)
	if err := router.Run(":" + settings.Port); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

func sourceFor(cfg *config.CampaignConfig) dataset.Source {
	switch {
	case cfg.Filepath != "":
		return dataset.Source{Kind: dataset.SourceLocalFile, Value: cfg.Filepath}
	case cfg.FileLink != "":
		return dataset.Source{Kind: dataset.SourceURL, Value: cfg.FileLink}
	default:
		return dataset.Source{Kind: dataset.SourceObjectKey, Value: cfg.CloudObjectKey}
	}
}
