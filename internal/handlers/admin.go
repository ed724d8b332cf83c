package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/openvoices/insights-backend/internal/platform/logger"
	"github.com/openvoices/insights-backend/internal/services"
)

type AdminHandler struct {
	log *logger.Logger
	svc *services.CampaignService
}

func NewAdminHandler(log *logger.Logger, svc *services.CampaignService) *AdminHandler {
	return &AdminHandler{
		log: log.With("handler", "AdminHandler"),
		svc: svc,
	}
}

func (h *AdminHandler) Reload(c *gin.Context) {
	campaign := c.Param("campaign")
	if err := h.svc.Reload(c.Request.Context(), campaign); err != nil {
		h.log.Error("Reload failed", "error", err, "campaign", campaign)
		respondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"reloaded": campaign})
}

func (h *AdminHandler) ReloadAll(c *gin.Context) {
	if err := h.svc.ReloadAll(c.Request.Context()); err != nil {
		h.log.Error("ReloadAll failed", "error", err)
		respondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"reloaded": h.svc.Campaigns()})
}

func (h *AdminHandler) Evict(c *gin.Context) {
	campaign := c.Param("campaign")
	h.svc.Evict(campaign)
	RespondOK(c, gin.H{"evicted": campaign})
}
