package pathology

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _, _ := newTestService()
	return NewHandler(svc), echo.New()
}

func newContext(e *echo.Echo, method, target, body string, params ...string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	var names, values []string
	for i := 0; i+1 < len(params); i += 2 {
		names = append(names, params[i])
		values = append(values, params[i+1])
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	return c, rec
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected echo.HTTPError, got %T (%v)", err, err)
	return httpErr.Code
}

func TestHandler_CreateAndGetBySlug(t *testing.T) {
	h, e := newTestHandler()
	cat := mustCategory(t, h.svc, "Pneumologie")

	c, rec := newContext(e, http.MethodPost, "/", `{"category_id":"`+cat.ID.String()+`","name":"Bronchite chronique"}`)
	require.NoError(t, h.CreatePathology(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	c, rec = newContext(e, http.MethodGet, "/", "", "slug", "bronchite-chronique")
	require.NoError(t, h.GetPathologyBySlug(c))
	var p Pathology
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "Bronchite chronique", p.Name)
}

func TestHandler_CreatePathology_Conflict(t *testing.T) {
	h, e := newTestHandler()
	cat := mustCategory(t, h.svc, "Pneumologie")
	mustPathology(t, h.svc, cat.ID, "Asthme")

	c, _ := newContext(e, http.MethodPost, "/", `{"category_id":"`+cat.ID.String()+`","name":"Asthme"}`)
	assert.Equal(t, http.StatusConflict, httpCode(t, h.CreatePathology(c)))
}

func TestHandler_ListCategoryPathologies(t *testing.T) {
	h, e := newTestHandler()
	cat := mustCategory(t, h.svc, "Cardiologie")
	mustPathology(t, h.svc, cat.ID, "AVC")

	c, rec := newContext(e, http.MethodGet, "/", "", "id", cat.ID.String())
	require.NoError(t, h.ListCategoryPathologies(c))
	var list []Pathology
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	c, _ = newContext(e, http.MethodGet, "/", "", "id", "nope")
	assert.Equal(t, http.StatusBadRequest, httpCode(t, h.ListCategoryPathologies(c)))
}

func TestHandler_ListCategories_BadFlag(t *testing.T) {
	h, e := newTestHandler()
	c, _ := newContext(e, http.MethodGet, "/?active=maybe", "")
	assert.Equal(t, http.StatusBadRequest, httpCode(t, h.ListCategories(c)))
}

func TestHandler_UpdateCategory_KeepsAbsentFields(t *testing.T) {
	h, e := newTestHandler()
	icon := "heart"
	cat := &Category{Name: "Cardiologie", Icon: &icon, Position: 3}
	require.NoError(t, h.svc.CreateCategory(context.Background(), cat))

	c, rec := newContext(e, http.MethodPut, "/", `{"name":"Cardio"}`, "id", cat.ID.String())
	require.NoError(t, h.UpdateCategory(c))
	var got Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Cardio", got.Name)
	assert.Equal(t, 3, got.Position)
	require.NotNil(t, got.Icon)
	assert.Equal(t, "heart", *got.Icon)
}

func TestHandler_DeletePathology(t *testing.T) {
	h, e := newTestHandler()
	cat := mustCategory(t, h.svc, "Cardiologie")
	p := mustPathology(t, h.svc, cat.ID, "AVC")

	c, rec := newContext(e, http.MethodDelete, "/", "", "id", p.ID.String())
	require.NoError(t, h.DeletePathology(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	c, _ = newContext(e, http.MethodDelete, "/", "", "id", p.ID.String())
	assert.Equal(t, http.StatusNotFound, httpCode(t, h.DeletePathology(c)))
}
