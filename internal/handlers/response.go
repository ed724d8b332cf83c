package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openvoices/insights-backend/internal/dataset"
	"github.com/openvoices/insights-backend/internal/engine"
	"github.com/openvoices/insights-backend/internal/export"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// respondDomainError maps domain errors onto HTTP statuses and stable
// error codes the dashboard switches on.
func respondDomainError(c *gin.Context, err error) {
	var ferr *engine.FilterError
	switch {
	case errors.As(err, &ferr):
		RespondError(c, http.StatusBadRequest, string(ferr.Code), err)
	case errors.Is(err, dataset.ErrUnknownCampaign):
		RespondError(c, http.StatusNotFound, "unknown_campaign", err)
	case errors.Is(err, dataset.ErrEmptyDataset),
		errors.Is(err, dataset.ErrTooManyUnresolvedCodes),
		errors.Is(err, dataset.ErrMalformedData):
		RespondError(c, http.StatusUnprocessableEntity, "dataset_invalid", err)
	case errors.Is(err, dataset.ErrSourceUnavailable):
		RespondError(c, http.StatusBadGateway, "source_unavailable", err)
	case errors.Is(err, export.ErrExportTimeout):
		RespondError(c, http.StatusGatewayTimeout, "export_timeout", err)
	case errors.Is(err, export.ErrStorageUnavailable):
		RespondError(c, http.StatusBadGateway, "storage_unavailable", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}
