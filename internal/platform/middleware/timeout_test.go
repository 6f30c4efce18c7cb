package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

const statisticsRoute = "/api/v1/hospitals/:id/imaging/statistics"

// slowArchive stands in for an archive call that honours ctx.
func slowArchive(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func timedAPI(timeout time.Duration, handler echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.Use(RequestTimeout(timeout, uploadRoute))
	e.GET(statisticsRoute, handler)
	e.POST(uploadRoute, handler)
	return e
}

func TestRequestTimeout_ArchiveCallWithinBudget(t *testing.T) {
	e := timedAPI(time.Second, func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected the archive call to inherit a deadline")
		}
		if err := slowArchive(c.Request().Context(), time.Millisecond); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]int{"CountStudies": 3})
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/hospitals/h1/imaging/statistics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequestTimeout_SlowArchiveAnswers504(t *testing.T) {
	cancelled := make(chan error, 1)
	e := timedAPI(50*time.Millisecond, func(c echo.Context) error {
		err := slowArchive(c.Request().Context(), 5*time.Second)
		cancelled <- err
		return err
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/hospitals/h1/imaging/statistics", nil))

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
		t.Errorf("expected JSON error body, got %s", rec.Body.String())
	}
	if err := <-cancelled; err != context.DeadlineExceeded {
		t.Errorf("expected the archive call to be cancelled, got %v", err)
	}
}

func TestRequestTimeout_UploadRouteHasNoDeadline(t *testing.T) {
	e := timedAPI(20*time.Millisecond, func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); ok {
			t.Error("expected no deadline on the upload route")
		}
		// Outlives the budget that applies to every other route.
		if err := slowArchive(c.Request().Context(), 60*time.Millisecond); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]string{"ID": "inst-1", "Status": "Success"})
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/hospitals/h1/imaging/instances", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected the upload to complete, got %d", rec.Code)
	}
}

func TestRequestTimeout_ZeroDisables(t *testing.T) {
	e := timedAPI(0, func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); ok {
			t.Error("expected no deadline when the timeout is disabled")
		}
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/hospitals/h1/imaging/statistics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequestTimeout_PropagatesHandlerError(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/hospitals/h1/imaging/statistics", nil), httptest.NewRecorder())
	c.SetPath(statisticsRoute)

	err := RequestTimeout(time.Second, uploadRoute)(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadGateway, "archive unreachable")
	})(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", httpErr.Code)
	}
}
