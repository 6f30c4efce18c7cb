package notification

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medcenter/medcenter/internal/platform/auth"
	"github.com/medcenter/medcenter/pkg/pagination"
)

// Handler exposes email sending and the email log over HTTP.
type Handler struct {
	manager *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{manager: mgr}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/emails")
	g.POST("", h.HandleSend, auth.RequireRole(auth.RoleClinician))

	admin := auth.RequireRole(auth.RoleAdmin)
	g.GET("", h.HandleList, admin)
	g.GET("/:id", h.HandleGet, admin)
	g.POST("/:id/retry", h.HandleRetry, admin)
}

// HandleSend handles POST /emails. With ?async=true delivery happens in the
// background and the pending entry is returned with 202.
func (h *Handler) HandleSend(c echo.Context) error {
	var req SendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	createdBy := auth.UserIDFromContext(ctx)

	if async, _ := strconv.ParseBool(c.QueryParam("async")); async {
		entry, err := h.manager.SendAsync(ctx, req, createdBy)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusAccepted, entry)
	}

	entry, err := h.manager.Send(ctx, req, createdBy)
	if err != nil && !errors.Is(err, ErrDelivery) {
		return httpError(err)
	}
	// A failed delivery is still logged; the entry carries the error.
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) HandleList(c echo.Context) error {
	p := pagination.FromContext(c)
	status := Status(c.QueryParam("status"))
	switch status {
	case "", StatusPending, StatusSuccess, StatusError:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "status must be PENDING, SUCCESS or ERROR")
	}

	entries, total, err := h.manager.List(c.Request().Context(), status, p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(c, entries, total, p))
}

func (h *Handler) HandleGet(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entry, err := h.manager.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) HandleRetry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entry, err := h.manager.Retry(c.Request().Context(), id)
	if err != nil && !errors.Is(err, ErrDelivery) {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotRetryable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
