package labeling

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sls/sls/internal/platform/fhir"
)

// Handler exposes the labeling operation on the FHIR surface.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(fhirGroup *echo.Group) {
	fhirGroup.POST("/Bundle/$label", h.LabelBundle)
}

// LabelBundle handles POST /fhir/Bundle/$label?mode=narrowed|full.
//
// The request body is a Bundle of clinical records. The response is the
// output Bundle for the selected mode; the analyzed/labeled/skipped counters
// travel in X- response headers.
func (h *Handler) LabelBundle(c echo.Context) error {
	mode, err := ParseMode(c.QueryParam("mode"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}

	var bundle fhir.Bundle
	if err := json.NewDecoder(c.Request().Body).Decode(&bundle); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("invalid Bundle JSON: "+err.Error()))
	}
	if bundle.ResourceType != "Bundle" {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("request body must be a Bundle resource"))
	}

	result, err := h.svc.Label(c.Request().Context(), &bundle, mode)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyBatch):
			return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
		case errors.Is(err, ErrRulesNotLoaded):
			return c.JSON(http.StatusPreconditionFailed,
				fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeBusinessRule, err.Error()))
		}
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}

	header := c.Response().Header()
	header.Set("X-Analyzed-Count", strconv.Itoa(result.Counters.Analyzed))
	header.Set("X-Labeled-Count", strconv.Itoa(result.Counters.Labeled))
	header.Set("X-Skipped-Count", strconv.Itoa(result.Counters.Skipped))
	header.Set(echo.HeaderContentType, "application/fhir+json")

	return c.JSON(http.StatusOK, result.Bundle)
}
