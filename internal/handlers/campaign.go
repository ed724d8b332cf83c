package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openvoices/insights-backend/internal/engine"
	"github.com/openvoices/insights-backend/internal/platform/logger"
	"github.com/openvoices/insights-backend/internal/services"
)

type CampaignHandler struct {
	log *logger.Logger
	svc *services.CampaignService
}

func NewCampaignHandler(log *logger.Logger, svc *services.CampaignService) *CampaignHandler {
	return &CampaignHandler{
		log: log.With("handler", "CampaignHandler"),
		svc: svc,
	}
}

func (h *CampaignHandler) ListCampaigns(c *gin.Context) {
	RespondOK(c, gin.H{"campaigns": h.svc.Campaigns()})
}

func (h *CampaignHandler) GetMeta(c *gin.Context) {
	campaign := c.Param("campaign")
	meta, err := h.svc.Meta(campaign, c.Query("lang"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	RespondOK(c, meta)
}

func (h *CampaignHandler) GetFilterOptions(c *gin.Context) {
	campaign := c.Param("campaign")
	options, err := h.svc.FilterOptions(c.Request.Context(), campaign)
	if err != nil {
		h.log.Error("GetFilterOptions failed", "error", err, "campaign", campaign)
		respondDomainError(c, err)
		return
	}
	RespondOK(c, options)
}

type queryRequest struct {
	Filter      json.RawMessage `json:"filter"`
	Aggregation engine.Spec     `json:"aggregation"`
	Language    string          `json:"lang"`
}

func (h *CampaignHandler) Query(c *gin.Context) {
	campaign := c.Param("campaign")
	question := c.Param("question")

	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	filter, err := engine.ParseFilter(req.Filter)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if req.Aggregation.Kind == "" {
		req.Aggregation.Kind = engine.KindCategoryBreakdown
	}

	result, err := h.svc.Query(c.Request.Context(), campaign, question, filter, req.Aggregation, req.Language)
	if err != nil {
		h.log.Error("Query failed", "error", err, "campaign", campaign, "question", question)
		respondDomainError(c, err)
		return
	}
	RespondOK(c, result)
}

type mergedQueryRequest struct {
	Campaigns []string        `json:"campaigns"`
	Filter    json.RawMessage `json:"filter"`
	Language  string          `json:"lang"`
}

func (h *CampaignHandler) QueryMerged(c *gin.Context) {
	question := c.Param("question")

	var req mergedQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	filter, err := engine.ParseFilter(req.Filter)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	result, err := h.svc.QueryMerged(c.Request.Context(), req.Campaigns, question, filter, req.Language)
	if err != nil {
		h.log.Error("QueryMerged failed", "error", err, "question", question)
		respondDomainError(c, err)
		return
	}
	RespondOK(c, result)
}

type exportRequest struct {
	Filter json.RawMessage `json:"filter"`
}

func (h *CampaignHandler) Export(c *gin.Context) {
	campaign := c.Param("campaign")
	question := c.Param("question")

	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	filter, err := engine.ParseFilter(req.Filter)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	artifact, err := h.svc.Export(c.Request.Context(), campaign, question, filter)
	if err != nil {
		h.log.Error("Export failed", "error", err, "campaign", campaign, "question", question)
		respondDomainError(c, err)
		return
	}
	if artifact.URL == "" && len(artifact.Data) > 0 {
		c.Header("Content-Disposition", `attachment; filename="export.csv"`)
		c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
		return
	}
	RespondOK(c, artifact)
}
