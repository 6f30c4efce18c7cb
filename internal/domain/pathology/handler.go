package pathology

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medcenter/medcenter/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – any signed-in user
	read := api.Group("", auth.RequireAuthenticated())
	read.GET("/categories", h.ListCategories)
	read.GET("/categories/:id", h.GetCategory)
	read.GET("/categories/:id/pathologies", h.ListCategoryPathologies)
	read.GET("/pathologies", h.ListPathologies)
	read.GET("/pathologies/:id", h.GetPathology)
	read.GET("/pathologies/slug/:slug", h.GetPathologyBySlug)

	// Write endpoints – clinicians curate the catalog
	write := api.Group("", auth.RequireRole(auth.RoleClinician))
	write.POST("/categories", h.CreateCategory)
	write.PUT("/categories/:id", h.UpdateCategory)
	write.DELETE("/categories/:id", h.DeleteCategory)
	write.POST("/pathologies", h.CreatePathology)
	write.PUT("/pathologies/:id", h.UpdatePathology)
	write.PUT("/pathologies/:id/related", h.SetRelated)
	write.DELETE("/pathologies/:id", h.DeletePathology)
}

// -- Category --

func (h *Handler) CreateCategory(c echo.Context) error {
	var cat Category
	if err := c.Bind(&cat); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateCategory(c.Request().Context(), &cat); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cat)
}

func (h *Handler) GetCategory(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	cat, err := h.svc.GetCategory(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cat)
}

// ListCategories returns every category, or only active ones with ?active=true.
func (h *Handler) ListCategories(c echo.Context) error {
	activeOnly, err := boolQuery(c, "active")
	if err != nil {
		return err
	}
	list, err := h.svc.ListCategories(c.Request().Context(), activeOnly)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) UpdateCategory(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	// Fields absent from the body keep their stored values.
	cat, err := h.svc.GetCategory(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if err := c.Bind(cat); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cat.ID = id
	if err := h.svc.UpdateCategory(c.Request().Context(), cat); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cat)
}

func (h *Handler) DeleteCategory(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteCategory(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListCategoryPathologies(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	list, err := h.svc.ListCategoryPathologies(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

// -- Pathology --

func (h *Handler) CreatePathology(c echo.Context) error {
	var p Pathology
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePathology(c.Request().Context(), &p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPathology(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPathology(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetPathologyBySlug(c echo.Context) error {
	p, err := h.svc.GetPathologyBySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// ListPathologies returns every pathology, or only published ones with
// ?published=true.
func (h *Handler) ListPathologies(c echo.Context) error {
	publishedOnly, err := boolQuery(c, "published")
	if err != nil {
		return err
	}
	list, err := h.svc.ListPathologies(c.Request().Context(), publishedOnly)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) UpdatePathology(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPathology(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if err := c.Bind(p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = id
	if err := h.svc.UpdatePathology(c.Request().Context(), p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SetRelated(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var body struct {
		Related []uuid.UUID `json:"related"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetRelated(c.Request().Context(), id, body.Related); err != nil {
		return httpError(err)
	}
	p, err := h.svc.GetPathology(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePathology(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePathology(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func idParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func boolQuery(c echo.Context, name string) (bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return v, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, ErrSlugTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}
