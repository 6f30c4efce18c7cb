package imaging

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medcenter/medcenter/internal/platform/auth"
	"github.com/medcenter/medcenter/internal/platform/orthanc"
)

const maxUploadBytes = 256 << 20

type Handler struct {
	agg *Aggregator
}

func NewHandler(agg *Aggregator) *Handler {
	return &Handler{agg: agg}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleRadiologist))
	read.GET("/imaging/patients/:patientId", h.FindPatient)
	read.GET("/hospitals/:id/imaging/patients", h.ListPatients)
	read.GET("/hospitals/:id/imaging/patients/:patientId", h.GetPatient)
	read.GET("/hospitals/:id/imaging/patients/:patientId/studies", h.ListPatientStudies)
	read.GET("/hospitals/:id/imaging/statistics", h.GetStatistics)
	read.GET("/hospitals/:id/imaging/system", h.GetSystem)
	read.GET("/hospitals/:id/imaging/studies/:studyId", h.GetStudy)
	read.GET("/hospitals/:id/imaging/studies/:studyId/series", h.ListStudySeries)
	read.GET("/hospitals/:id/imaging/series/:seriesId", h.GetSeries)
	read.GET("/hospitals/:id/imaging/instances/:instanceId", h.GetInstance)
	read.POST("/hospitals/:id/imaging/tools/find", h.FindStudies)

	write := api.Group("", auth.RequireRole(auth.RoleRadiologist))
	write.POST("/hospitals/:id/imaging/instances", h.UploadInstance)
	write.POST("/hospitals/:id/imaging/studies/:studyId/export", h.ExportStudy)
}

func (h *Handler) ListPatients(c echo.Context) error {
	hospitalID, err := hospitalParam(c)
	if err != nil {
		return err
	}
	list, err := h.agg.ListPatients(c.Request().Context(), hospitalID)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) GetPatient(c echo.Context) error {
	hospitalID, err := hospitalParam(c)
	if err != nil {
		return err
	}
	res, err := h.agg.PatientDetail(c.Request().Context(), hospitalID, c.Param("patientId"))
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) FindPatient(c echo.Context) error {
	res, err := h.agg.FindPatient(c.Request().Context(), c.Param("patientId"))
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) GetStatistics(c echo.Context) error {
	hospitalID, err := hospitalParam(c)
	if err != nil {
		return err
	}
	rec, err := h.agg.Statistics(c.Request().Context(), hospitalID)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetSystem(c echo.Context) error {
	hospitalID, err := hospitalParam(c)
	if err != nil {
		return err
	}
	rec, err := h.agg.System(c.Request().Context(), hospitalID)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetStudy(c echo.Context) error {
	hospitalID, err := hospitalParam(c)
	if err != nil {
		return err
	}
	s, err := h.agg.Study(c.Request().Context(), hospitalID, c.Param("studyId"))
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) ListPatientStudies(c echo.Context) error {
	hospitalID, err := hospitalParam(c)
	if err != nil {
		return err
	}
	studies, err := h.agg.PatientStudies(c.Request().Context(), hospitalID, c.Param("patientId"))
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, studies)
}

func (h *Handler) ListStudySeries(c echo.Context) error {
	hospitalID, err := hospitalParam(c)
	if err != nil {
		return err
	}
	series, err := h.agg.StudySeries(c.Request().Context(), hospitalID, c.Param("studyId"))
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, series)
}

func (h *Handler) GetSeries(c echo.Context) error {
	hospitalID, err := hospitalParam(c)
	if err != nil {
		return err
	}
	s, err := h.agg.Series(c.Request().Context(), hospitalID, c.Param("seriesId"))
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) GetInstance(c echo.Context) error {
	hospitalID, err := hospitalParam(c)
	if err != nil {
		return err
	}
	inst, err := h.agg.Instance(c.Request().Context(), hospitalID, c.Param("instanceId"))
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, inst)
}

func (h *Handler) UploadInstance(c echo.Context) error {
	hospitalID, err := hospitalParam(c)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxUploadBytes+1))
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	if len(body) > maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "DICOM file too large")
	}
	rec, err := h.agg.UploadInstance(c.Request().Context(), hospitalID, body)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

type exportRequest struct {
	TargetAET string `json:"target_aet"`
}

func (h *Handler) ExportStudy(c echo.Context) error {
	hospitalID, err := hospitalParam(c)
	if err != nil {
		return err
	}
	var req exportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rec, err := h.agg.ExportStudy(c.Request().Context(), hospitalID, c.Param("studyId"), req.TargetAET)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

type findRequest struct {
	Query map[string]string `json:"query"`
}

func (h *Handler) FindStudies(c echo.Context) error {
	hospitalID, err := hospitalParam(c)
	if err != nil {
		return err
	}
	var req findRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	studies, err := h.agg.FindStudies(c.Request().Context(), hospitalID, req.Query)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, studies)
}

func hospitalParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid hospital id")
	}
	return id, nil
}

// httpError maps aggregator and archive errors onto HTTP statuses.
// Unclassified errors are logged and answered with a generic message.
func (h *Handler) httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNoArchiveConfigured):
		return echo.NewHTTPError(http.StatusNotFound, "no archive configured for hospital")
	case errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case orthanc.IsNotFound(err):
		return echo.NewHTTPError(http.StatusNotFound, "resource not found in archive")
	case orthanc.IsUnreachable(err):
		return echo.NewHTTPError(http.StatusBadGateway, "archive unreachable")
	default:
		h.agg.logger.Error().Err(err).Msg("archive request failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "archive error").SetInternal(err)
	}
}
