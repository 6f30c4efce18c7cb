package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// maxRevocationTTL bounds how long an admin revocation is kept when the
// caller does not know the token's expiry.
const maxRevocationTTL = 24 * time.Hour

// revokeTokenRequest is the request body for POST /auth/revoke.
type revokeTokenRequest struct {
	JTI       string    `json:"jti"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RevocationHandler lets administrators revoke another session's token.
type RevocationHandler struct {
	store RevocationStore
	now   func() time.Time
}

func NewRevocationHandler(store RevocationStore) *RevocationHandler {
	return &RevocationHandler{store: store, now: time.Now}
}

// RegisterRoutes registers token revocation endpoints. All require the
// admin role.
func (h *RevocationHandler) RegisterRoutes(g *echo.Group) {
	admin := g.Group("/auth", RequireRole(RoleAdmin))
	admin.POST("/revoke", h.Revoke)
}

func (h *RevocationHandler) Revoke(c echo.Context) error {
	var req revokeTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.JTI == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "jti is required")
	}

	now := h.now()
	if req.ExpiresAt.IsZero() || req.ExpiresAt.After(now.Add(maxRevocationTTL)) {
		req.ExpiresAt = now.Add(maxRevocationTTL)
	}
	if !req.ExpiresAt.After(now) {
		return c.NoContent(http.StatusNoContent)
	}

	if err := h.store.Revoke(c.Request().Context(), req.JTI, req.ExpiresAt); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "revocation store unavailable")
	}
	return c.NoContent(http.StatusNoContent)
}
