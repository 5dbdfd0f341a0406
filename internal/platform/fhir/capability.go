package fhir

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// CapabilityStatement represents the FHIR CapabilityStatement (metadata).
type CapabilityStatement struct {
	ResourceType   string            `json:"resourceType"`
	Status         string            `json:"status"`
	Date           string            `json:"date"`
	Kind           string            `json:"kind"`
	FHIRVersion    string            `json:"fhirVersion"`
	Format         []string          `json:"format"`
	Implementation *CSImplementation `json:"implementation,omitempty"`
	Rest           []CSRest          `json:"rest"`
}

type CSImplementation struct {
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
}

type CSRest struct {
	Mode     string       `json:"mode"`
	Resource []CSResource `json:"resource"`
}

type CSResource struct {
	Type        string          `json:"type"`
	Interaction []CSInteraction `json:"interaction"`
	SearchParam []CSSearchParam `json:"searchParam,omitempty"`
	Versioning  string          `json:"versioning,omitempty"`
}

type CSInteraction struct {
	Code string `json:"code"`
}

type CSSearchParam struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Documentation string `json:"documentation,omitempty"`
}

// NewCapabilityStatement creates the server's capability statement.
func NewCapabilityStatement(baseURL string, resources []CSResource) *CapabilityStatement {
	return &CapabilityStatement{
		ResourceType: "CapabilityStatement",
		Status:       "active",
		Date:         time.Now().UTC().Format("2006-01-02"),
		Kind:         "instance",
		FHIRVersion:  "4.0.1",
		Format:       []string{"json"},
		Implementation: &CSImplementation{
			Description: "OMOP CDM FHIR R4 search server",
			URL:         baseURL,
		},
		Rest: []CSRest{
			{Mode: "server", Resource: resources},
		},
	}
}

// ResourceCapability creates a read-only CSResource: read and type-level search.
func ResourceCapability(resourceType string, searchParams []CSSearchParam) CSResource {
	return CSResource{
		Type: resourceType,
		Interaction: []CSInteraction{
			{Code: "read"},
			{Code: "search-type"},
		},
		SearchParam: searchParams,
		Versioning:  "no-version",
	}
}

// CapabilityHandler serves GET /metadata from a prebuilt statement.
type CapabilityHandler struct {
	statement *CapabilityStatement
}

func NewCapabilityHandler(cs *CapabilityStatement) *CapabilityHandler {
	return &CapabilityHandler{statement: cs}
}

func (h *CapabilityHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/metadata", h.GetMetadata)
}

func (h *CapabilityHandler) GetMetadata(c echo.Context) error {
	return c.JSON(http.StatusOK, h.statement)
}
