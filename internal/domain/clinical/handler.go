package clinical

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medcenter/medcenter/internal/platform/auth"
	"github.com/medcenter/medcenter/pkg/pagination"
)

const dateLayout = "2006-01-02"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – care staff
	read := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleRadiologist))
	read.GET("/patients", h.ListPatients)
	read.GET("/patients/:id", h.GetPatient)
	read.GET("/patients/:id/record", h.GetRecord)
	read.GET("/patients/:id/consultations", h.ListPatientConsultations)
	read.GET("/patients/:id/conditions", h.ListConditions)
	read.GET("/patients/:id/health-data", h.ListHealthData)
	read.GET("/consultations/:id", h.GetConsultation)
	read.GET("/consultations/:id/prescriptions", h.ListPrescriptions)
	read.GET("/practitioners", h.ListPractitioners)
	read.GET("/practitioners/:id", h.GetPractitioner)
	read.GET("/practitioners/:id/consultations", h.ListPractitionerConsultations)
	read.GET("/practitioners/:id/patients", h.ListPractitionerPatients)
	read.GET("/hospitals/:id/practitioners", h.ListHospitalPractitioners)

	// Clinician endpoints
	care := api.Group("", auth.RequireRole(auth.RoleClinician))
	care.POST("/patients", h.CreatePatient)
	care.POST("/patients/:id/conditions", h.AddCondition)
	care.POST("/patients/:id/health-data", h.AddHealthData)
	care.POST("/consultations", h.CreateConsultation)
	care.POST("/consultations/:id/prescriptions", h.AddPrescription)
	care.GET("/practitioners/:id/stats", h.PractitionerStats)
	care.GET("/practitioners/:id/stats/periods", h.PractitionerPeriodStats)

	// Admin endpoints
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/practitioners", h.CreatePractitioner)
	admin.GET("/stats/consultations", h.PeriodStats)
}

// -- Patient --

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.ListPatients(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(c, patients, total, pg))
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	rec, err := h.svc.GetRecord(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListPatientConsultations(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	list, err := h.svc.ListPatientConsultations(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) AddCondition(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var cond ChronicCondition
	if err := c.Bind(&cond); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cond.PatientID = id
	if err := h.svc.AddCondition(c.Request().Context(), &cond); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cond)
}

func (h *Handler) ListConditions(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	list, err := h.svc.ListConditions(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) AddHealthData(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var d HealthData
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.PatientID = id
	if err := h.svc.AddHealthData(c.Request().Context(), &d); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) ListHealthData(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	list, err := h.svc.ListHealthData(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

// -- Consultation --

func (h *Handler) CreateConsultation(c echo.Context) error {
	var cons Consultation
	if err := c.Bind(&cons); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateConsultation(c.Request().Context(), &cons); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cons)
}

func (h *Handler) GetConsultation(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	cons, err := h.svc.GetConsultation(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) AddPrescription(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var p Prescription
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ConsultationID = id
	if err := h.svc.AddPrescription(c.Request().Context(), &p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	list, err := h.svc.ListPrescriptions(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

// -- Practitioner --

func (h *Handler) CreatePractitioner(c echo.Context) error {
	var p Practitioner
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePractitioner(c.Request().Context(), &p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPractitioner(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.GetPractitioner(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPractitioners(c echo.Context) error {
	pg := pagination.FromContext(c)
	list, total, err := h.svc.ListPractitioners(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(c, list, total, pg))
}

func (h *Handler) ListHospitalPractitioners(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	list, err := h.svc.ListHospitalPractitioners(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) ListPractitionerConsultations(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	list, err := h.svc.ListPractitionerConsultations(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) ListPractitionerPatients(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	list, err := h.svc.ListPractitionerPatients(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) PractitionerStats(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	stats, err := h.svc.PractitionerStats(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) PractitionerPeriodStats(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	q, err := periodQuery(c)
	if err != nil {
		return err
	}
	q.PractitionerID = &id
	stats, err := h.svc.PeriodStats(c.Request().Context(), q)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// PeriodStats counts consultations across all practitioners, or one when
// ?practitioner_id= is set.
func (h *Handler) PeriodStats(c echo.Context) error {
	q, err := periodQuery(c)
	if err != nil {
		return err
	}
	if raw := c.QueryParam("practitioner_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid practitioner_id")
		}
		q.PractitionerID = &id
	}
	stats, err := h.svc.PeriodStats(c.Request().Context(), q)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func periodQuery(c echo.Context) (PeriodQuery, error) {
	q := PeriodQuery{Period: c.QueryParam("period")}
	var err error
	if q.Start, err = time.Parse(dateLayout, c.QueryParam("start")); err != nil {
		return q, echo.NewHTTPError(http.StatusBadRequest, "start must be a YYYY-MM-DD date")
	}
	if q.End, err = time.Parse(dateLayout, c.QueryParam("end")); err != nil {
		return q, echo.NewHTTPError(http.StatusBadRequest, "end must be a YYYY-MM-DD date")
	}
	return q, nil
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
	case errors.Is(err, ErrDuplicate):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}
