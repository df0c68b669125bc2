package fhirlist

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
	read.GET("/List", h.SearchListsFHIR)
	read.GET("/List/:id", h.GetListFHIR)

	write := fhirGroup.Group("", auth.WriteAccess())
	write.POST("/List", h.CreateListFHIR)
	write.PUT("/List/:id", h.UpdateListFHIR)
}

func (h *Handler) SearchListsFHIR(c echo.Context) error {
	name := c.QueryParam("title")
	if name == "" {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("search requires the title parameter"))
	}
	ctx := c.Request().Context()
	found, err := h.svc.SearchByName(ctx, name, middleware.LocaleFromContext(ctx))
	if err != nil && !notFound(err) {
		return writeError(c, err)
	}
	resources := make([]interface{}, 0, len(found))
	for _, list := range found {
		resources = append(resources, list)
	}
	bundle, err := fhir.NewSearchBundle(resources, len(resources), "/fhir/List")
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, bundle)
}

func (h *Handler) GetListFHIR(c echo.Context) error {
	ctx := c.Request().Context()
	r, cpt, err := h.svc.Get(ctx, c.Param("id"), middleware.LocaleFromContext(ctx))
	if err != nil {
		return writeError(c, err)
	}
	fhir.SetVersionHeaders(c, cpt.VersionID, cpt.UpdatedAt)
	return c.JSON(http.StatusOK, r)
}

// CreateListFHIR imports a panel. Entries that name no known test come back
// as Warning headers rather than failing the request.
func (h *Handler) CreateListFHIR(c echo.Context) error {
	list, err := decodeList(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}
	ctx := c.Request().Context()
	res, err := h.svc.Import(ctx, list, middleware.LocaleFromContext(ctx), false)
	if err != nil {
		return writeError(c, err)
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return writeImported(c, status, res)
}

func (h *Handler) UpdateListFHIR(c echo.Context) error {
	list, err := decodeList(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}
	ctx := c.Request().Context()
	id := c.Param("id")
	version, err := fhir.IfMatchVersion(c)
	if err != nil {
		return fhir.IfMatchFailed(c, err)
	}
	res, err := h.svc.Put(ctx, id, list, middleware.LocaleFromContext(ctx), version)
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
		c.Response().Header().Set("Location", "/fhir/List/"+res.Concept.FHIRID)
	}
	fhir.SetVersionHeaders(c, res.Concept.VersionID, res.Concept.UpdatedAt)
	return fhir.WriteResult(c, status, res.Resource, conceptsync.WarningMessages(res.Warnings))
}

func decodeList(c echo.Context) (*fhir.ListResource, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, err
	}
	var r fhir.ListResource
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
