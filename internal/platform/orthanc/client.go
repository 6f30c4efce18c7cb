// Package orthanc is a thin REST client for Orthanc DICOM archives. Every
// method performs exactly one HTTP call and returns the decoded JSON body.
// Callers pass the archive to talk to on each call, so one Client serves any
// number of hospitals.
package orthanc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Record is a resource as returned by the archive. Numbers decode as
// json.Number.
type Record map[string]any

// Target identifies one archive and the credentials to reach it.
type Target struct {
	Name     string `json:"name" yaml:"name"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	Username string `json:"-" yaml:"username"`
	Password string `json:"-" yaml:"password"`
}

// Config holds client wide transport settings.
type Config struct {
	Timeout             time.Duration
	MaxIdleConnsPerHost int
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Timeout:             10 * time.Second,
		MaxIdleConnsPerHost: 16,
	}
}

// Client talks to Orthanc archives over REST. It is safe for concurrent use.
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

// NewClient builds a Client. Retries are disabled: a failed call is reported
// to the caller, who decides whether to degrade.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = DefaultConfig().MaxIdleConnsPerHost
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConnsPerHost * 4,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}

	rc := resty.New().
		SetTransport(transport).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   rc,
		logger: logger.With().Str("component", "orthanc").Logger(),
	}
}

// ListPatientIDs returns the ids of every patient stored in the archive.
func (c *Client) ListPatientIDs(ctx context.Context, t Target) ([]string, error) {
	body, err := c.do(ctx, t, "list patients", http.MethodGet, "/patients", nil)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := decode(body, &ids); err != nil {
		return nil, c.malformed(t, "list patients", "/patients", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (c *Client) GetPatient(ctx context.Context, t Target, id string) (Record, error) {
	return c.getRecord(ctx, t, "get patient", "/patients/{id}", id)
}

func (c *Client) GetStudy(ctx context.Context, t Target, id string) (Record, error) {
	return c.getRecord(ctx, t, "get study", "/studies/{id}", id)
}

func (c *Client) GetSeries(ctx context.Context, t Target, id string) (Record, error) {
	return c.getRecord(ctx, t, "get series", "/series/{id}", id)
}

func (c *Client) GetInstance(ctx context.Context, t Target, id string) (Record, error) {
	return c.getRecord(ctx, t, "get instance", "/instances/{id}", id)
}

// ListPatientStudies returns the expanded studies of one patient.
func (c *Client) ListPatientStudies(ctx context.Context, t Target, patientID string) ([]Record, error) {
	return c.getRecords(ctx, t, "list patient studies", "/patients/{id}/studies", patientID)
}

// ListStudySeries returns the expanded series of one study.
func (c *Client) ListStudySeries(ctx context.Context, t Target, studyID string) ([]Record, error) {
	return c.getRecords(ctx, t, "list study series", "/studies/{id}/series", studyID)
}

// GetStatistics returns the archive's storage statistics.
func (c *Client) GetStatistics(ctx context.Context, t Target) (Record, error) {
	return c.getRecord(ctx, t, "get statistics", "/statistics", "")
}

// GetSystem returns the archive's version and identity.
func (c *Client) GetSystem(ctx context.Context, t Target) (Record, error) {
	return c.getRecord(ctx, t, "get system", "/system", "")
}

// UploadInstance stores one DICOM file in the archive.
func (c *Client) UploadInstance(ctx context.Context, t Target, dicom []byte) (Record, error) {
	body, err := c.do(ctx, t, "upload instance", http.MethodPost, "/instances", func(r *resty.Request) {
		r.SetHeader("Content-Type", "application/dicom").SetBody(dicom)
	})
	if err != nil {
		return nil, err
	}
	rec := Record{}
	if err := decode(body, &rec); err != nil {
		return nil, c.malformed(t, "upload instance", "/instances", err)
	}
	return rec, nil
}

// ExportStudy asks the archive to send a study to a remote modality.
func (c *Client) ExportStudy(ctx context.Context, t Target, studyID, targetAET string) (Record, error) {
	const op = "export study"
	body, err := c.do(ctx, t, op, http.MethodPost, "/studies/{id}/export", func(r *resty.Request) {
		r.SetPathParam("id", studyID).
			SetHeader("Content-Type", "application/json").
			SetBody(map[string]string{"TargetAet": targetAET})
	})
	if err != nil {
		return nil, err
	}
	rec := Record{}
	if len(bytes.TrimSpace(body)) == 0 {
		return rec, nil
	}
	if err := decode(body, &rec); err != nil {
		return nil, c.malformed(t, op, "/studies/"+studyID+"/export", err)
	}
	return rec, nil
}

// Find runs a /tools/find query. Non expanded answers (bare ids) come back as
// records holding only "ID".
func (c *Client) Find(ctx context.Context, t Target, query Record) ([]Record, error) {
	const op = "find"
	body, err := c.do(ctx, t, op, http.MethodPost, "/tools/find", func(r *resty.Request) {
		r.SetHeader("Content-Type", "application/json").SetBody(query)
	})
	if err != nil {
		return nil, err
	}
	var raw []any
	if err := decode(body, &raw); err != nil {
		return nil, c.malformed(t, op, "/tools/find", err)
	}
	out := make([]Record, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			out = append(out, Record{"ID": v})
		case map[string]any:
			out = append(out, Record(v))
		}
	}
	return out, nil
}

func (c *Client) getRecord(ctx context.Context, t Target, op, path, id string) (Record, error) {
	body, err := c.do(ctx, t, op, http.MethodGet, path, withID(id))
	if err != nil {
		return nil, err
	}
	rec := Record{}
	if err := decode(body, &rec); err != nil {
		return nil, c.malformed(t, op, expand(path, id), err)
	}
	return rec, nil
}

func (c *Client) getRecords(ctx context.Context, t Target, op, path, id string) ([]Record, error) {
	body, err := c.do(ctx, t, op, http.MethodGet, path, withID(id))
	if err != nil {
		return nil, err
	}
	var recs []Record
	if err := decode(body, &recs); err != nil {
		return nil, c.malformed(t, op, expand(path, id), err)
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}

func (c *Client) do(ctx context.Context, t Target, op, method, path string, build func(*resty.Request)) ([]byte, error) {
	start := time.Now()
	url := strings.TrimRight(t.BaseURL, "/") + path

	req := c.http.R().SetContext(ctx)
	if t.Username != "" {
		req.SetBasicAuth(t.Username, t.Password)
	}
	if build != nil {
		build(req)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, c.fail(t, &Error{Op: op, URL: url, Kind: ErrArchiveUnreachable, Cause: err}, time.Since(start))
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, c.fail(t, &Error{Op: op, URL: resp.Request.URL, StatusCode: resp.StatusCode(), Kind: ErrRecordNotFound}, time.Since(start))
	case !resp.IsSuccess():
		return nil, c.fail(t, &Error{Op: op, URL: resp.Request.URL, StatusCode: resp.StatusCode(), Kind: ErrArchiveResponse}, time.Since(start))
	}

	c.logger.Debug().
		Str("archive", t.Name).
		Str("op", op).
		Int("status", resp.StatusCode()).
		Dur("latency", time.Since(start)).
		Msg("archive call")
	return resp.Body(), nil
}

func (c *Client) fail(t Target, e *Error, latency time.Duration) error {
	evt := c.logger.Warn()
	if e.Kind == ErrRecordNotFound {
		evt = c.logger.Debug()
	}
	evt.Err(e.Cause).
		Str("archive", t.Name).
		Str("op", e.Op).
		Str("url", e.URL).
		Int("status", e.StatusCode).
		Dur("latency", latency).
		Msg("archive call failed")
	return e
}

func (c *Client) malformed(t Target, op, path string, cause error) error {
	url := strings.TrimRight(t.BaseURL, "/") + path
	return c.fail(t, &Error{Op: op, URL: url, Kind: ErrArchiveResponse, Cause: fmt.Errorf("decode body: %w", cause)}, 0)
}

func withID(id string) func(*resty.Request) {
	if id == "" {
		return nil
	}
	return func(r *resty.Request) { r.SetPathParam("id", id) }
}

func expand(path, id string) string {
	return strings.ReplaceAll(path, "{id}", id)
}

func decode(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}
