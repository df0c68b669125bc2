package observationdefinition

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/domain/conceptsync"
	"github.com/ehr/conceptsync/internal/platform/auth"
	"github.com/ehr/conceptsync/internal/platform/fhir"
	"github.com/ehr/conceptsync/internal/platform/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(fhirGroup *echo.Group) {
	read := fhirGroup.Group("", auth.ReadAccess())
	read.GET("/ObservationDefinition", h.SearchObservationDefinitionsFHIR)
	read.GET("/ObservationDefinition/:id", h.GetObservationDefinitionFHIR)

	write := fhirGroup.Group("", auth.WriteAccess())
	write.POST("/ObservationDefinition", h.CreateObservationDefinitionFHIR)
	write.PUT("/ObservationDefinition/:id", h.UpdateObservationDefinitionFHIR)
}

// SearchObservationDefinitionsFHIR supports _id, name and code. Each matches at
// most one concept.
func (h *Handler) SearchObservationDefinitionsFHIR(c echo.Context) error {
	ctx := c.Request().Context()
	locale := middleware.LocaleFromContext(ctx)

	var found []*fhir.ObservationDefinition
	var err error
	switch {
	case c.QueryParam("_id") != "":
		var od *fhir.ObservationDefinition
		if od, _, err = h.svc.Get(ctx, c.QueryParam("_id"), locale); err == nil {
			found = append(found, od)
		}
	case c.QueryParam("code") != "":
		found, err = h.svc.SearchByCode(ctx, c.QueryParam("code"), locale)
	case c.QueryParam("name") != "":
		found, err = h.svc.SearchByName(ctx, c.QueryParam("name"), locale)
	default:
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("search requires the _id, name or code parameter"))
	}
	if err != nil && !notFound(err) {
		return writeError(c, err)
	}

	resources := make([]interface{}, len(found))
	for i, od := range found {
		resources[i] = od
	}
	bundle, err := fhir.NewSearchBundle(resources, len(resources), "/fhir/ObservationDefinition")
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, bundle)
}

func (h *Handler) GetObservationDefinitionFHIR(c echo.Context) error {
	ctx := c.Request().Context()
	r, cpt, err := h.svc.Get(ctx, c.Param("id"), middleware.LocaleFromContext(ctx))
	if err != nil {
		return writeError(c, err)
	}
	fhir.SetVersionHeaders(c, cpt.VersionID, cpt.UpdatedAt)
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) CreateObservationDefinitionFHIR(c echo.Context) error {
	od, err := decodeObservationDefinition(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}
	ctx := c.Request().Context()
	res, err := h.svc.Import(ctx, od, middleware.LocaleFromContext(ctx), false)
	if err != nil {
		return writeError(c, err)
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return writeImported(c, status, res)
}

func (h *Handler) UpdateObservationDefinitionFHIR(c echo.Context) error {
	od, err := decodeObservationDefinition(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}
	ctx := c.Request().Context()
	id := c.Param("id")
	version, err := fhir.IfMatchVersion(c)
	if err != nil {
		return fhir.IfMatchFailed(c, err)
	}
	res, err := h.svc.Put(ctx, id, od, middleware.LocaleFromContext(ctx), version)
	if err != nil {
		return writeError(c, err)
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return writeImported(c, status, res)
}

func writeImported(c echo.Context, status int, res *Imported) error {
	if status == http.StatusCreated {
		c.Response().Header().Set("Location", "/fhir/ObservationDefinition/"+res.Concept.FHIRID)
	}
	fhir.SetVersionHeaders(c, res.Concept.VersionID, res.Concept.UpdatedAt)
	return fhir.WriteResult(c, status, res.Resource, conceptsync.WarningMessages(res.Warnings))
}

func decodeObservationDefinition(c echo.Context) (*fhir.ObservationDefinition, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, err
	}
	var r fhir.ObservationDefinition
	if err := fhir.DecodeResource(body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func notFound(err error) bool {
	return errors.Is(err, concept.ErrNotFound) || errors.Is(err, conceptsync.ErrNotApplicable)
}

func writeError(c echo.Context, err error) error {
	status, oo := conceptsync.Outcome(err)
	return c.JSON(status, oo)
}
