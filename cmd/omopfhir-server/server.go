package main

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/omopfhir/internal/config"
	"github.com/ehr/omopfhir/internal/domain/encounter"
	"github.com/ehr/omopfhir/internal/domain/patient"
	"github.com/ehr/omopfhir/internal/platform/auth"
	"github.com/ehr/omopfhir/internal/platform/db"
	"github.com/ehr/omopfhir/internal/platform/fhir"
	"github.com/ehr/omopfhir/internal/platform/middleware"
	"github.com/ehr/omopfhir/internal/platform/search"
)

const maxSearchBody = "1M"

// servedResources are the resource types with a REST surface.
var servedResources = []string{"Patient", "Encounter"}

func newServer(cfg *config.Config, b *backend, reg *search.Registry, logger zerolog.Logger) (*echo.Echo, error) {
	compiler, err := newCompiler(cfg, b, logger)
	if err != nil {
		return nil, err
	}
	patientDef, err := resourceDef(reg, "Patient")
	if err != nil {
		return nil, err
	}
	encounterDef, err := resourceDef(reg, "Encounter")
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.BodyLimit(maxSearchBody))

	e.GET("/health", db.HealthHandler(b.checker))

	fhirGroup := e.Group("/fhir")
	if cfg.AuthEnabled() {
		fhirGroup.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	} else {
		fhirGroup.Use(auth.DevAuthMiddleware())
	}
	fhirGroup.Use(b.requestMW...)

	baseURL := fmt.Sprintf("http://localhost:%s/fhir", cfg.Port)
	cs := fhir.NewCapabilityStatement(baseURL, reg.Capabilities(servedResources...))
	fhir.NewCapabilityHandler(cs).RegisterRoutes(fhirGroup)

	patientSvc := patient.NewService(b.persons, compiler, patientDef, logger)
	patient.NewHandler(patientSvc).RegisterRoutes(fhirGroup)

	encounterSvc := encounter.NewService(b.visits, compiler, encounterDef, logger)
	encounter.NewHandler(encounterSvc).RegisterRoutes(fhirGroup)

	return e, nil
}
