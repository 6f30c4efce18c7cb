package hospital

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), echo.New()
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func expectHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestHandler_CreateHospital(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"name":"General Hospital","phone":"+221 33 000 00 00"}`), rec)

	if err := h.CreateHospital(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var hosp Hospital
	json.Unmarshal(rec.Body.Bytes(), &hosp)
	if hosp.Name != "General Hospital" || hosp.ID == uuid.Nil {
		t.Errorf("unexpected hospital %+v", hosp)
	}
}

func TestHandler_CreateHospital_BadRequest(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"phone":"123"}`), httptest.NewRecorder())

	expectHTTPError(t, h.CreateHospital(c), http.StatusBadRequest)
}

func TestHandler_GetHospital(t *testing.T) {
	h, e := newTestHandler()
	hosp := &Hospital{Name: "General"}
	h.svc.CreateHospital(context.Background(), hosp)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(hosp.ID.String())

	if err := h.GetHospital(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetHospital_NotFoundAndInvalid(t *testing.T) {
	h, e := newTestHandler()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	expectHTTPError(t, h.GetHospital(c), http.StatusNotFound)

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("42")
	expectHTTPError(t, h.GetHospital(c), http.StatusBadRequest)
}

func TestHandler_UpdateHospital_KeepsUnsetFields(t *testing.T) {
	h, e := newTestHandler()
	phone := "123"
	hosp := &Hospital{Name: "General", Phone: &phone}
	h.svc.CreateHospital(context.Background(), hosp)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPut, `{"name":"General Hospital"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(hosp.ID.String())

	if err := h.UpdateHospital(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Hospital
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Name != "General Hospital" {
		t.Errorf("expected updated name, got %q", got.Name)
	}
	if got.Phone == nil || *got.Phone != "123" || !got.Active {
		t.Errorf("expected phone and active flag to be preserved, got %+v", got)
	}
}

func TestHandler_ListHospitals(t *testing.T) {
	h, e := newTestHandler()
	for _, name := range []string{"A", "B", "C"} {
		h.svc.CreateHospital(context.Background(), &Hospital{Name: name})
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?limit=2", nil), rec)

	if err := h.ListHospitals(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data    []Hospital `json:"data"`
		Total   int        `json:"total"`
		HasMore bool       `json:"has_more"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 3 || len(resp.Data) != 2 || !resp.HasMore {
		t.Errorf("unexpected page %+v", resp)
	}
}

func TestHandler_DicomServersAndURL(t *testing.T) {
	h, e := newTestHandler()
	hosp := &Hospital{Name: "General"}
	h.svc.CreateHospital(context.Background(), hosp)

	// No server yet.
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(hosp.ID.String())
	expectHTTPError(t, h.GetDicomURL(c), http.StatusNotFound)

	rec := httptest.NewRecorder()
	c = e.NewContext(jsonRequest(http.MethodPost, `{"host":"pacs.local","port":8042,"username":"orthanc","password":"secret"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(hosp.ID.String())
	if err := h.AddServer(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Error("password must not be echoed")
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(hosp.ID.String())
	if err := h.GetDicomURL(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["dicom_url"] != "http://pacs.local:8042" {
		t.Errorf("unexpected dicom url %q", body["dicom_url"])
	}
}

func TestHandler_DeleteServer_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id", "serverId")
	c.SetParamValues(uuid.New().String(), uuid.New().String())

	expectHTTPError(t, h.DeleteServer(c), http.StatusNotFound)
}

func TestHandler_RouteRoles(t *testing.T) {
	h, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))

	// Without an authenticated user every hospital route is refused.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/hospitals", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/hospitals", strings.NewReader(`{"name":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}
