package orthanc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(timeout time.Duration) *Client {
	return NewClient(Config{Timeout: timeout}, zerolog.Nop())
}

func TestClient_ListPatientIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/patients", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`["p1","p2"]`))
	}))
	defer srv.Close()

	ids, err := newTestClient(time.Second).ListPatientIDs(context.Background(), Target{BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids)
}

func TestClient_ListPatientIDs_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	ids, err := newTestClient(time.Second).ListPatientIDs(context.Background(), Target{BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestClient_GetPatient_DecodesNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/patients/abc", r.URL.Path)
		_, _ = w.Write([]byte(`{"ID":"abc","IsStable":true,"Size":12345678901234,"MainDicomTags":{"PatientName":"DOE^JOHN"}}`))
	}))
	defer srv.Close()

	rec, err := newTestClient(time.Second).GetPatient(context.Background(), Target{BaseURL: srv.URL}, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", rec["ID"])
	assert.Equal(t, true, rec["IsStable"])
	assert.Equal(t, json.Number("12345678901234"), rec["Size"])
	tags, ok := rec["MainDicomTags"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "DOE^JOHN", tags["PatientName"])
}

func TestClient_BasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "orthanc" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"Name":"ORTHANC"}`))
	}))
	defer srv.Close()

	c := newTestClient(time.Second)
	rec, err := c.GetSystem(context.Background(), Target{BaseURL: srv.URL, Username: "orthanc", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "ORTHANC", rec["Name"])

	_, err = c.GetSystem(context.Background(), Target{BaseURL: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArchiveResponse)

	var archiveErr *Error
	require.True(t, errors.As(err, &archiveErr))
	assert.Equal(t, http.StatusUnauthorized, archiveErr.StatusCode)
}

func TestClient_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestClient(time.Second).GetStudy(context.Background(), Target{BaseURL: srv.URL}, "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsUnreachable(err))
}

func TestClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	_, err := newTestClient(time.Second).GetSeries(context.Background(), Target{BaseURL: srv.URL}, "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArchiveResponse)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(time.Second).ListPatientIDs(context.Background(), Target{BaseURL: url})
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	start := time.Now()
	_, err := newTestClient(50*time.Millisecond).GetStatistics(context.Background(), Target{BaseURL: srv.URL})
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestClient_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(time.Second).GetPatient(ctx, Target{BaseURL: srv.URL}, "p1")
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_ListStudySeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/studies/st1/series", r.URL.Path)
		_, _ = w.Write([]byte(`[{"ID":"se1"},{"ID":"se2"}]`))
	}))
	defer srv.Close()

	recs, err := newTestClient(time.Second).ListStudySeries(context.Background(), Target{BaseURL: srv.URL}, "st1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "se2", recs[1]["ID"])
}

func TestClient_ListPatientStudies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/patients/p1/studies", r.URL.Path)
		_, _ = w.Write([]byte(`[{"ID":"st1","ParentPatient":"p1"}]`))
	}))
	defer srv.Close()

	recs, err := newTestClient(time.Second).ListPatientStudies(context.Background(), Target{BaseURL: srv.URL}, "p1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "p1", recs[0]["ParentPatient"])
}

func TestClient_UploadInstance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/instances", r.URL.Path)
		assert.Equal(t, "application/dicom", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte("DICM"), body)
		_, _ = w.Write([]byte(`{"ID":"i1","Status":"Success","ParentStudy":"st1"}`))
	}))
	defer srv.Close()

	rec, err := newTestClient(time.Second).UploadInstance(context.Background(), Target{BaseURL: srv.URL}, []byte("DICM"))
	require.NoError(t, err)
	assert.Equal(t, "Success", rec["Status"])
}

func TestClient_ExportStudy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/studies/st1/export", r.URL.Path)
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "PACS", payload["TargetAet"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec, err := newTestClient(time.Second).ExportStudy(context.Background(), Target{BaseURL: srv.URL}, "st1", "PACS")
	require.NoError(t, err)
	assert.Empty(t, rec)
}

func TestClient_Find_BareIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var q map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		assert.Equal(t, "Study", q["Level"])
		_, _ = w.Write([]byte(`["st1",{"ID":"st2","MainDicomTags":{}}]`))
	}))
	defer srv.Close()

	recs, err := newTestClient(time.Second).Find(context.Background(), Target{BaseURL: srv.URL}, Record{"Level": "Study", "Query": map[string]string{}})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, Record{"ID": "st1"}, recs[0])
	assert.Equal(t, "st2", recs[1]["ID"])
}
