package patient

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/ehr/omopfhir/internal/platform/fhir"
	"github.com/ehr/omopfhir/internal/platform/search"
	"github.com/ehr/omopfhir/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(fhirGroup *echo.Group) {
	fhirGroup.GET("/Patient", h.SearchPatientsFHIR)
	fhirGroup.POST("/Patient/_search", h.SearchPatientsFHIR)
	fhirGroup.GET("/Patient/:id", h.GetPatientFHIR)
}

func (h *Handler) GetPatientFHIR(c echo.Context) error {
	p, err := h.svc.Read(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(fhir.OutcomeForError(err))
	}
	return c.JSON(http.StatusOK, p.ToFHIR())
}

func (h *Handler) SearchPatientsFHIR(c echo.Context) error {
	values, err := requestValues(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	params, err := search.ParseQuery(h.svc.Def(), values)
	if err != nil {
		return c.JSON(fhir.OutcomeForError(err))
	}

	pg := pagination.FromValues(values)
	items, total, err := h.svc.SearchResources(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return c.JSON(fhir.OutcomeForError(err))
	}
	resources := make([]map[string]interface{}, len(items))
	for i, item := range items {
		resources[i] = item.ToFHIR()
	}
	return c.JSON(http.StatusOK, fhir.NewSearchBundle(resources, fhir.SearchBundleParams{
		BaseURL:  "/fhir/Patient",
		QueryStr: pagination.FilterQuery(values),
		Page:     pg,
		Total:    total,
	}))
}

// requestValues returns the query string, merged with the form body for
// POST _search.
func requestValues(c echo.Context) (url.Values, error) {
	if c.Request().Method == http.MethodPost {
		return c.FormParams()
	}
	return c.QueryParams(), nil
}
