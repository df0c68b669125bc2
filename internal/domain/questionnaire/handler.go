package questionnaire

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
	read.GET("/Questionnaire", h.SearchQuestionnairesFHIR)
	read.GET("/Questionnaire/:id", h.GetQuestionnaireFHIR)

	write := fhirGroup.Group("", auth.WriteAccess())
	write.POST("/Questionnaire", h.CreateQuestionnaireFHIR)
	write.PUT("/Questionnaire/:id", h.UpdateQuestionnaireFHIR)
}

func (h *Handler) SearchQuestionnairesFHIR(c echo.Context) error {
	ctx := c.Request().Context()
	var resources []interface{}
	switch {
	case c.QueryParam("_id") != "":
		q, _, err := h.svc.Get(ctx, c.QueryParam("_id"), middleware.LocaleFromContext(ctx))
		if err == nil {
			resources = append(resources, q)
		} else if !notFound(err) {
			return writeError(c, err)
		}
	case c.QueryParam("name") != "":
		found, err := h.svc.SearchByName(ctx, c.QueryParam("name"), middleware.LocaleFromContext(ctx))
		if err != nil && !notFound(err) {
			return writeError(c, err)
		}
		for _, q := range found {
			resources = append(resources, q)
		}
	default:
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("search requires the name or _id parameter"))
	}
	bundle, err := fhir.NewSearchBundle(resources, len(resources), "/fhir/Questionnaire")
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, bundle)
}

func (h *Handler) GetQuestionnaireFHIR(c echo.Context) error {
	ctx := c.Request().Context()
	q, cpt, err := h.svc.Get(ctx, c.Param("id"), middleware.LocaleFromContext(ctx))
	if err != nil {
		return writeError(c, err)
	}
	fhir.SetVersionHeaders(c, cpt.VersionID, cpt.UpdatedAt)
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) CreateQuestionnaireFHIR(c echo.Context) error {
	q, err := decodeQuestionnaire(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}
	ctx := c.Request().Context()
	res, err := h.svc.Import(ctx, q, middleware.LocaleFromContext(ctx), false)
	if err != nil {
		return writeError(c, err)
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return writeImported(c, status, res)
}

func (h *Handler) UpdateQuestionnaireFHIR(c echo.Context) error {
	q, err := decodeQuestionnaire(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}
	ctx := c.Request().Context()
	id := c.Param("id")
	version, err := fhir.IfMatchVersion(c)
	if err != nil {
		return fhir.IfMatchFailed(c, err)
	}
	res, err := h.svc.Put(ctx, id, q, middleware.LocaleFromContext(ctx), version)
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
		c.Response().Header().Set("Location", "/fhir/Questionnaire/"+res.Concept.FHIRID)
	}
	fhir.SetVersionHeaders(c, res.Concept.VersionID, res.Concept.UpdatedAt)
	return fhir.WriteResult(c, status, res.Resource, conceptsync.WarningMessages(res.Warnings))
}

func decodeQuestionnaire(c echo.Context) (*fhir.Questionnaire, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, err
	}
	var q fhir.Questionnaire
	if err := fhir.DecodeResource(body, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func notFound(err error) bool {
	return errors.Is(err, concept.ErrNotFound) || errors.Is(err, conceptsync.ErrNotApplicable)
}

func writeError(c echo.Context, err error) error {
	status, oo := conceptsync.Outcome(err)
	return c.JSON(status, oo)
}
