package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func rolesContext(roles ...string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), UserRolesKey, roles)
	return e.NewContext(req.WithContext(ctx), httptest.NewRecorder())
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRequireRole_Allowed(t *testing.T) {
	c := rolesContext(RoleClinician)

	err := RequireRole(RoleClinician, RoleRadiologist)(okHandler)(c)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	c := rolesContext(RolePatient)

	err := RequireRole(RoleClinician, RoleRadiologist)(okHandler)(c)
	if err == nil {
		t.Fatal("expected error for unauthorized role")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", httpErr.Code)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	c := rolesContext(RoleAdmin)

	if err := RequireRole(RoleRadiologist)(okHandler)(c); err != nil {
		t.Error("admin should bypass role checks")
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	c := rolesContext()

	if err := RequireRole(RoleClinician)(okHandler)(c); err == nil {
		t.Error("expected error when no roles present")
	}
}

func TestRequireAuthenticated(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if err := RequireAuthenticated()(okHandler)(c); err == nil {
		t.Error("expected error without user")
	}

	ctx := context.WithValue(req.Context(), UserIDKey, "user-1")
	c = e.NewContext(req.WithContext(ctx), httptest.NewRecorder())
	if err := RequireAuthenticated()(okHandler)(c); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestValidRole(t *testing.T) {
	for _, r := range []string{RoleAdmin, RoleClinician, RoleRadiologist, RolePatient} {
		if !ValidRole(r) {
			t.Errorf("expected %s to be valid", r)
		}
	}
	if ValidRole("physician") {
		t.Error("unexpected valid role physician")
	}
}
