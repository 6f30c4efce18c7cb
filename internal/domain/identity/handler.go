package identity

import (
	"errors"
	"net/http"

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
	// Public; the auth skipper lets this path through.
	api.POST("/auth/login", h.Login)

	session := api.Group("/auth", auth.RequireAuthenticated())
	session.POST("/logout", h.Logout)
	session.GET("/me", h.Me)

	admin := api.Group("/users", auth.RequireRole(auth.RoleAdmin))
	admin.POST("", h.CreateUser)
	admin.GET("", h.ListUsers)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	expiresAt, _ := auth.ExpiresAtFromContext(ctx)
	if err := h.svc.Logout(ctx, auth.TokenIDFromContext(ctx), expiresAt); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Me(c echo.Context) error {
	u, err := h.svc.Me(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) CreateUser(c echo.Context) error {
	var in CreateUserInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.CreateUser(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) ListUsers(c echo.Context) error {
	pg := pagination.FromContext(c)
	users, total, err := h.svc.ListUsers(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(c, users, total, pg))
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid), errors.Is(err, ErrNoToken):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUsernameTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
