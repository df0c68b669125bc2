package valueset

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/platform/auth"
	"github.com/ehr/conceptsync/internal/platform/fhir"
	"github.com/ehr/conceptsync/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(fhirGroup *echo.Group) {
	read := fhirGroup.Group("", auth.ReadAccess())
	read.GET("/ValueSet", h.SearchValueSetsFHIR)
	read.GET("/ValueSet/:id", h.GetValueSetFHIR)

	write := fhirGroup.Group("", auth.WriteAccess())
	write.POST("/ValueSet", h.CreateValueSetFHIR)
	write.PUT("/ValueSet/:id", h.UpdateValueSetFHIR)
}

func (h *Handler) SearchValueSetsFHIR(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListValueSets(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	resources := make([]interface{}, len(items))
	for i, item := range items {
		resources[i] = item.ToFHIR()
	}
	bundle, err := fhir.NewSearchBundle(resources, total, "/fhir/ValueSet")
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	pagination.AddLinks(bundle, pg, total)
	return c.JSON(http.StatusOK, bundle)
}

func (h *Handler) GetValueSetFHIR(c echo.Context) error {
	vs, err := h.svc.GetValueSetByFHIRID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, concept.ErrNotFound) {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("ValueSet", c.Param("id")))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	fhir.SetVersionHeaders(c, vs.VersionID, vs.UpdatedAt)
	return c.JSON(http.StatusOK, vs.ToFHIR())
}

func (h *Handler) CreateValueSetFHIR(c echo.Context) error {
	vs, err := decodeValueSet(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}
	if err := h.svc.CreateValueSet(c.Request().Context(), vs); err != nil {
		return writeError(c, err)
	}
	c.Response().Header().Set("Location", "/fhir/ValueSet/"+vs.FHIRID)
	fhir.SetVersionHeaders(c, vs.VersionID, vs.UpdatedAt)
	return fhir.WriteResult(c, http.StatusCreated, vs.ToFHIR(), nil)
}

func (h *Handler) UpdateValueSetFHIR(c echo.Context) error {
	vs, err := decodeValueSet(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}
	id := c.Param("id")
	if existing, err := h.svc.GetValueSetByFHIRID(c.Request().Context(), id); err == nil {
		if err := fhir.CheckIfMatch(c, existing.VersionID); err != nil {
			return fhir.IfMatchFailed(c, err)
		}
	}
	created, err := h.svc.PutValueSet(c.Request().Context(), id, vs)
	if err != nil {
		return writeError(c, err)
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		c.Response().Header().Set("Location", "/fhir/ValueSet/"+vs.FHIRID)
	}
	fhir.SetVersionHeaders(c, vs.VersionID, vs.UpdatedAt)
	return fhir.WriteResult(c, status, vs.ToFHIR(), nil)
}

func decodeValueSet(c echo.Context) (*ValueSet, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, err
	}
	var r fhir.ValueSet
	if err := fhir.DecodeResource(body, &r); err != nil {
		return nil, err
	}
	return FromFHIR(&r), nil
}

func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrDuplicate):
		return c.JSON(http.StatusConflict, fhir.ConflictOutcome(err.Error()))
	case errors.Is(err, ErrInvalid):
		return c.JSON(http.StatusUnprocessableEntity, fhir.InvalidOutcome(err.Error()))
	case errors.Is(err, concept.ErrNotFound):
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("ValueSet", c.Param("id")))
	}
	return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
}
