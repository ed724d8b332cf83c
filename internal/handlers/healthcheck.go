package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openvoices/insights-backend/internal/services"
)

func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Readiness reports dataset availability so deploys do not route traffic
// to an instance still loading.
func Readiness(svc *services.CampaignService) gin.HandlerFunc {
	return func(c *gin.Context) {
		RespondOK(c, gin.H{
			"loading":   svc.Loading(),
			"campaigns": svc.Campaigns(),
		})
	}
}
