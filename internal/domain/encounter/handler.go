package encounter

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
	fhirGroup.GET("/Encounter", h.SearchEncountersFHIR)
	fhirGroup.POST("/Encounter/_search", h.SearchEncountersFHIR)
	fhirGroup.GET("/Encounter/:id", h.GetEncounterFHIR)
}

func (h *Handler) GetEncounterFHIR(c echo.Context) error {
	v, err := h.svc.Read(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(fhir.OutcomeForError(err))
	}
	return c.JSON(http.StatusOK, v.ToFHIR())
}

func (h *Handler) SearchEncountersFHIR(c echo.Context) error {
	var values url.Values
	if c.Request().Method == http.MethodPost {
		form, err := c.FormParams()
		if err != nil {
			return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
		}
		values = form
	} else {
		values = c.QueryParams()
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
		BaseURL:  "/fhir/Encounter",
		QueryStr: pagination.FilterQuery(values),
		Page:     pg,
		Total:    total,
	}))
}
