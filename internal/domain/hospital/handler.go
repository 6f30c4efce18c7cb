package hospital

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
	// Read endpoints – any signed-in user
	readGroup := api.Group("", auth.RequireAuthenticated())
	readGroup.GET("/hospitals", h.ListHospitals)
	readGroup.GET("/hospitals/:id", h.GetHospital)
	readGroup.GET("/hospitals/:id/dicom-url", h.GetDicomURL)

	// Write endpoints – admin only
	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	writeGroup.POST("/hospitals", h.CreateHospital)
	writeGroup.PUT("/hospitals/:id", h.UpdateHospital)
	writeGroup.DELETE("/hospitals/:id", h.DeleteHospital)
	writeGroup.GET("/hospitals/:id/dicom-servers", h.ListServers)
	writeGroup.POST("/hospitals/:id/dicom-servers", h.AddServer)
	writeGroup.DELETE("/hospitals/:id/dicom-servers/:serverId", h.DeleteServer)
}

func (h *Handler) CreateHospital(c echo.Context) error {
	var hosp Hospital
	if err := c.Bind(&hosp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateHospital(c.Request().Context(), &hosp); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, hosp)
}

func (h *Handler) GetHospital(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	hosp, err := h.svc.GetHospital(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, hosp)
}

func (h *Handler) ListHospitals(c echo.Context) error {
	p := pagination.FromContext(c)
	hospitals, total, err := h.svc.ListHospitals(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.Page(c, hospitals, total, p))
}

func (h *Handler) UpdateHospital(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	// Fields absent from the body keep their stored values.
	hosp, err := h.svc.GetHospital(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if err := c.Bind(hosp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	hosp.ID = id
	if err := h.svc.UpdateHospital(c.Request().Context(), hosp); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, hosp)
}

func (h *Handler) DeleteHospital(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteHospital(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetDicomURL(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	url, err := h.svc.DicomURL(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no DICOM server configured for this hospital")
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"hospital_id": id.String(),
		"dicom_url":   url,
	})
}

// -- DICOM servers --

func (h *Handler) ListServers(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	servers, err := h.svc.ListServers(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, servers)
}

func (h *Handler) AddServer(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var in DicomServerInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	srv, err := h.svc.AddServer(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, srv)
}

func (h *Handler) DeleteServer(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	serverID, err := idParam(c, "serverId")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteServer(c.Request().Context(), id, serverID); err != nil {
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
		return echo.NewHTTPError(http.StatusNotFound, "hospital not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
