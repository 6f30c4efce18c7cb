package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func runHealth(t *testing.T, version func(context.Context) (int, error), usage PoolUsage, logger zerolog.Logger) (*httptest.ResponseRecorder, Health) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)

	if err := healthHandler(version, func() PoolUsage { return usage }, logger)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body Health
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return rec, body
}

func TestHealthHandler_ReportsSchemaVersion(t *testing.T) {
	rec, body := runHealth(t, func(ctx context.Context) (int, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected the check to run with a deadline")
		}
		return 6, nil
	}, PoolUsage{Total: 4, Idle: 3, InUse: 1, Max: 10}, zerolog.Nop())

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if body.Status != "ok" || body.SchemaVersion != 6 {
		t.Errorf("unexpected body %+v", body)
	}
	if body.Pool.InUse != 1 || body.Pool.Max != 10 {
		t.Errorf("unexpected pool usage %+v", body.Pool)
	}
}

func TestHealthHandler_SaturatedPool(t *testing.T) {
	rec, body := runHealth(t, func(context.Context) (int, error) { return 6, nil },
		PoolUsage{Total: 10, InUse: 10, Max: 10, Saturated: true}, zerolog.Nop())

	if rec.Code != http.StatusOK {
		t.Errorf("a saturated pool still serves, expected 200, got %d", rec.Code)
	}
	if body.Status != "saturated" {
		t.Errorf("expected saturated status, got %q", body.Status)
	}
}

func TestHealthHandler_DatabaseDown(t *testing.T) {
	var logs bytes.Buffer
	rec, body := runHealth(t, func(context.Context) (int, error) {
		return 0, errors.New("dial tcp 10.0.0.5:5432: connection refused")
	}, PoolUsage{Max: 10}, zerolog.New(&logs))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if body.Status != "unavailable" {
		t.Errorf("unexpected body %+v", body)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Errorf("expected driver error to stay out of the body, got %s", rec.Body.String())
	}
	if !strings.Contains(logs.String(), "connection refused") {
		t.Errorf("expected driver error to be logged, got %q", logs.String())
	}
}
