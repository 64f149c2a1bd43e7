package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/sls/sls/internal/platform/fhir"
	"github.com/sls/sls/pkg/pagination"
)

// Handler exposes rule compilation over the FHIR surface: topic sources are
// submitted as ValueSet resources, singly or as a Bundle.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	fhirGroup.POST("/ValueSet", h.SubmitSource)
	fhirGroup.PUT("/ValueSet/:id", h.SubmitSource)
	fhirGroup.POST("", h.SubmitBundle)
	fhirGroup.GET("/ValueSet", h.ListSources)
	fhirGroup.GET("/ValueSet/:id", h.GetSource)
	fhirGroup.DELETE("/ValueSet/:id", h.RetireSource)

	api.GET("/rules/status", h.RulesStatus)
}

// SubmitSource handles POST /fhir/ValueSet and PUT /fhir/ValueSet/:id with a
// single topic source.
func (h *Handler) SubmitSource(c echo.Context) error {
	var raw map[string]interface{}
	if err := json.NewDecoder(c.Request().Body).Decode(&raw); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("invalid ValueSet JSON: "+err.Error()))
	}
	result := h.svc.CompileSources(c.Request().Context(), []map[string]interface{}{raw})
	return h.respond(c, result)
}

// SubmitBundle handles POST /fhir with a Bundle of ValueSet topic sources.
func (h *Handler) SubmitBundle(c echo.Context) error {
	var bundle fhir.Bundle
	if err := json.NewDecoder(c.Request().Body).Decode(&bundle); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("invalid Bundle JSON: "+err.Error()))
	}
	if bundle.ResourceType != "Bundle" {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("request body must be a Bundle resource"))
	}
	if len(bundle.Entry) == 0 {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("Bundle has no entries"))
	}

	raws := make([]map[string]interface{}, 0, len(bundle.Entry))
	for _, entry := range bundle.Entry {
		if entry.Resource != nil {
			raws = append(raws, entry.Resource)
		}
	}
	result := h.svc.CompileSources(c.Request().Context(), raws)
	return h.respond(c, result)
}

// respond maps a CompileResult onto an OperationOutcome: failure when zero
// sources validated, warnings for rejected siblings on partial success.
func (h *Handler) respond(c echo.Context, result *CompileResult) error {
	b := fhir.NewOutcomeBuilder()
	if result.Compiled > 0 {
		b.AddIssue(fhir.IssueSeverityInformation, fhir.IssueTypeProcessing,
			fmt.Sprintf("compiled %d of %d topic sources into rule table version %d",
				result.Compiled, result.Total, result.Table.Version))
	}
	severity := fhir.IssueSeverityWarning
	if result.Compiled == 0 {
		severity = fhir.IssueSeverityError
	}
	for _, d := range result.Rejected {
		b.AddIssueAt(severity, fhir.IssueTypeInvalid, d.Err.Error(), d.SourceID)
	}
	if result.Compiled == 0 && len(result.Rejected) == 0 {
		b.AddIssue(fhir.IssueSeverityError, fhir.IssueTypeRequired, "no topic sources found in request")
	}

	status := http.StatusOK
	if result.Compiled == 0 {
		status = http.StatusBadRequest
	}
	return c.JSON(status, b.Build())
}

// ListSources handles GET /fhir/ValueSet, paging through stored sources.
func (h *Handler) ListSources(c echo.Context) error {
	pg := pagination.FromContext(c)
	sources, total, err := h.svc.ListSources(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(sources, total, pg.Limit, pg.Offset))
}

// GetSource handles GET /fhir/ValueSet/:id, returning the stored ValueSet
// as submitted.
func (h *Handler) GetSource(c echo.Context) error {
	id := c.Param("id")
	if unescaped, err := url.PathUnescape(id); err == nil {
		id = unescaped
	}
	stored, err := h.svc.GetSource(c.Request().Context(), id)
	if errors.Is(err, ErrSourceNotFound) {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("ValueSet", id))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.Blob(http.StatusOK, "application/fhir+json", stored.Raw)
}

// RetireSource handles DELETE /fhir/ValueSet/:id. The id is the source
// identifier (canonical url, escaped, or resource id).
func (h *Handler) RetireSource(c echo.Context) error {
	id := c.Param("id")
	if unescaped, err := url.PathUnescape(id); err == nil {
		id = unescaped
	}
	ok, err := h.svc.RetireSource(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	if !ok {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("ValueSet", id))
	}
	return c.JSON(http.StatusOK, fhir.SuccessOutcome("source retired: "+id))
}

// RulesStatus handles GET /api/v1/rules/status.
func (h *Handler) RulesStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Status())
}
