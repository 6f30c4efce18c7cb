package advice

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medcenter/medcenter/internal/platform/auth"
	"github.com/medcenter/medcenter/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Public endpoints, listed in the auth skipper
	api.GET("/advice/public", h.ListPublic)
	api.GET("/advice/public/:id", h.GetPublic)

	// Read endpoints – any signed-in user
	read := api.Group("", auth.RequireAuthenticated())
	read.GET("/advice", h.List)
	read.GET("/advice/:id", h.Get)
	read.GET("/advice/:id/sections", h.ListSections)
	read.GET("/advice/:id/resources", h.ListResources)
	read.GET("/advice/:id/recommendations", h.ListRecommendations)
	read.GET("/pathologies/:id/advice", h.ListByPathology)

	// Write endpoints – clinicians
	write := api.Group("", auth.RequireRole(auth.RoleClinician))
	write.POST("/advice", h.Create)
	write.PUT("/advice/:id", h.Update)
	write.PUT("/advice/:id/status", h.ChangeStatus)
	write.DELETE("/advice/:id", h.Delete)
	write.POST("/advice/:id/sections", h.AddSection)
	write.PUT("/advice/sections/:sectionId", h.UpdateSection)
	write.DELETE("/advice/sections/:sectionId", h.DeleteSection)
	write.POST("/advice/:id/resources", h.AddResource)
	write.PUT("/advice/resources/:resourceId", h.UpdateResource)
	write.DELETE("/advice/resources/:resourceId", h.DeleteResource)
	write.POST("/advice/:id/recommendations", h.AddRecommendation)
	write.PUT("/advice/recommendations/:recommendationId", h.UpdateRecommendation)
	write.DELETE("/advice/recommendations/:recommendationId", h.DeleteRecommendation)
}

func (h *Handler) Create(c echo.Context) error {
	var a Advice
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &a); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GetPublic(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetPublic(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

// List returns advice, optionally narrowed by ?status=.
func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{Status: Status(c.QueryParam("status"))}
	list, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(c, list, total, pg))
}

func (h *Handler) ListPublic(c echo.Context) error {
	pg := pagination.FromContext(c)
	list, total, err := h.svc.ListPublic(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(c, list, total, pg))
}

func (h *Handler) ListByPathology(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	list, total, err := h.svc.ListByPathology(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(c, list, total, pg))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	// Fields absent from the body keep their stored values.
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	a.Public = nil
	if err := c.Bind(a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a.ID = id
	if err := h.svc.Update(c.Request().Context(), a); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type statusRequest struct {
	Status       Status     `json:"status"`
	ApprovedByID *uuid.UUID `json:"approved_by_id"`
}

func (h *Handler) ChangeStatus(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.ChangeStatus(c.Request().Context(), id, req.Status, req.ApprovedByID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Sections --

func (h *Handler) ListSections(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	list, err := h.svc.ListSections(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) AddSection(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var s Section
	if err := c.Bind(&s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.AdviceID = id
	if err := h.svc.AddSection(c.Request().Context(), &s); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) UpdateSection(c echo.Context) error {
	id, err := idParam(c, "sectionId")
	if err != nil {
		return err
	}
	var s Section
	if err := c.Bind(&s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.ID = id
	if err := h.svc.UpdateSection(c.Request().Context(), &s); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) DeleteSection(c echo.Context) error {
	id, err := idParam(c, "sectionId")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSection(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Resources --

func (h *Handler) ListResources(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	list, err := h.svc.ListResources(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) AddResource(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var r Resource
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r.AdviceID = id
	if err := h.svc.AddResource(c.Request().Context(), &r); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) UpdateResource(c echo.Context) error {
	id, err := idParam(c, "resourceId")
	if err != nil {
		return err
	}
	var r Resource
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r.ID = id
	if err := h.svc.UpdateResource(c.Request().Context(), &r); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteResource(c echo.Context) error {
	id, err := idParam(c, "resourceId")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteResource(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Recommendations --

func (h *Handler) ListRecommendations(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	list, err := h.svc.ListRecommendations(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) AddRecommendation(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var r Recommendation
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r.AdviceID = id
	if err := h.svc.AddRecommendation(c.Request().Context(), &r); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) UpdateRecommendation(c echo.Context) error {
	id, err := idParam(c, "recommendationId")
	if err != nil {
		return err
	}
	var r Recommendation
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r.ID = id
	if err := h.svc.UpdateRecommendation(c.Request().Context(), &r); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteRecommendation(c echo.Context) error {
	id, err := idParam(c, "recommendationId")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteRecommendation(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func idParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}
