package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const findPatientRoute = "/api/v1/imaging/patients/:patientId"

// chainedAPI mounts Recovery, RequestID and Logger in the server's order,
// with a stand-in for the JWT middleware setting "user_id".
func chainedAPI(logs *bytes.Buffer, handler echo.HandlerFunc) *echo.Echo {
	logger := zerolog.New(logs)
	e := echo.New()
	e.Use(Recovery(logger))
	e.Use(RequestID())
	e.Use(Logger(logger))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("user_id", radiologistA)
			return next(c)
		}
	})
	e.GET(findPatientRoute, handler)
	return e
}

// logLines decodes one JSON object per log line.
func logLines(t *testing.T, logs *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestRequestID_GeneratedAndEchoed(t *testing.T) {
	var logs bytes.Buffer
	var seen string
	e := chainedAPI(&logs, func(c echo.Context) error {
		seen, _ = c.Get("request_id").(string)
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/imaging/patients/PAT001", nil))

	if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("expected generated id %q echoed, got %q", seen, rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_CallerIDKeptUnlessOversized(t *testing.T) {
	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"gateway id", "gw-7f3a-0001", true},
		{"oversized", strings.Repeat("x", 200), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			e := chainedAPI(&logs, func(c echo.Context) error { return c.NoContent(http.StatusOK) })
			req := httptest.NewRequest(http.MethodGet, "/api/v1/imaging/patients/PAT001", nil)
			req.Header.Set(RequestIDHeader, tt.header)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if tt.keep && got != tt.header {
				t.Errorf("expected %q, got %q", tt.header, got)
			}
			if !tt.keep && len(got) != 36 {
				t.Errorf("expected a generated uuid, got %q", got)
			}
		})
	}
}

func TestLogger_RecordsRouteUserAndRequestID(t *testing.T) {
	var logs bytes.Buffer
	e := chainedAPI(&logs, func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/imaging/patients/PAT001", nil)
	req.Header.Set(RequestIDHeader, "gw-7f3a-0002")
	e.ServeHTTP(httptest.NewRecorder(), req)

	lines := logLines(t, &logs)
	if len(lines) != 1 {
		t.Fatalf("expected one log line, got %d", len(lines))
	}
	entry := lines[0]
	for field, want := range map[string]any{
		"level":      "info",
		"route":      findPatientRoute,
		"path":       "/api/v1/imaging/patients/PAT001",
		"user_id":    radiologistA,
		"request_id": "gw-7f3a-0002",
		"status":     float64(http.StatusOK),
	} {
		if entry[field] != want {
			t.Errorf("%s: expected %v, got %v", field, want, entry[field])
		}
	}
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		err   error
		level string
	}{
		{echo.NewHTTPError(http.StatusBadGateway, "archive unreachable"), "error"},
		{echo.NewHTTPError(http.StatusNotFound, "patient not found"), "warn"},
	}
	for _, tt := range tests {
		var logs bytes.Buffer
		e := chainedAPI(&logs, func(c echo.Context) error { return tt.err })
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/imaging/patients/PAT001", nil))

		lines := logLines(t, &logs)
		if len(lines) != 1 || lines[0]["level"] != tt.level {
			t.Errorf("expected one %s entry for %v, got %v", tt.level, tt.err, lines)
		}
	}
}

func TestRecovery_PanicBecomes500WithRequestID(t *testing.T) {
	var logs bytes.Buffer
	e := chainedAPI(&logs, func(c echo.Context) error {
		var studies []string
		_ = studies[3] // index out of range
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/imaging/patients/PAT001", nil)
	req.Header.Set(RequestIDHeader, "gw-7f3a-0003")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "index out of range") {
		t.Errorf("expected the panic value to stay out of the body, got %s", rec.Body.String())
	}

	var recovered map[string]any
	for _, entry := range logLines(t, &logs) {
		if entry["message"] == "panic recovered" {
			recovered = entry
		}
	}
	if recovered == nil {
		t.Fatalf("expected a panic entry, got %s", logs.String())
	}
	if recovered["request_id"] != "gw-7f3a-0003" || recovered["route"] != findPatientRoute {
		t.Errorf("unexpected panic entry %v", recovered)
	}
}
