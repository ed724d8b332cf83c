package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/openvoices/insights-backend/internal/handlers"
	"github.com/openvoices/insights-backend/internal/services"
)

type RouterConfig struct {
	CampaignHandler *handlers.CampaignHandler
	AdminHandler    *handlers.AdminHandler
	CampaignService *services.CampaignService
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5173",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)
	router.GET("/readiness", handlers.Readiness(cfg.CampaignService))

	api := router.Group("/api")
	{
		api.GET("/campaigns", cfg.CampaignHandler.ListCampaigns)
		api.GET("/campaigns/:campaign", cfg.CampaignHandler.GetMeta)
		api.GET("/campaigns/:campaign/filters", cfg.CampaignHandler.GetFilterOptions)
		api.POST("/campaigns/:campaign/questions/:question/query", cfg.CampaignHandler.Query)
		api.POST("/campaigns/:campaign/questions/:question/export", cfg.CampaignHandler.Export)
		api.POST("/merged/questions/:question/query", cfg.CampaignHandler.QueryMerged)
	}

	admin := router.Group("/admin")
	{
		admin.POST("/campaigns/:campaign/reload", cfg.AdminHandler.Reload)
		admin.POST("/campaigns/reload", cfg.AdminHandler.ReloadAll)
		admin.DELETE("/campaigns/:campaign/cache", cfg.AdminHandler.Evict)
	}

	return router
}
