package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medcenter/medcenter/internal/platform/auth"
)

// AuditEntry records one access to patient or imaging data.
type AuditEntry struct {
	Timestamp  time.Time
	RequestID  string
	UserID     string
	UserRoles  []string
	Route      string
	Method     string
	Action     string // read, create, update, delete
	HospitalID string
	PatientID  string
	IPAddress  string
	StatusCode int
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit returns middleware that logs every request routed to an imaging
// endpoint, including failed and forbidden ones. The entry is built after
// the handler returns so that the authenticated user and final status are
// known. Recorder failures are logged and never fail the request.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if !isAuditableRoute(route) {
				return next(c)
			}

			err := next(c)

			req := c.Request()
			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Route:      route,
				Method:     req.Method,
				Action:     httpMethodToAction(req.Method),
				HospitalID: c.Param("id"),
				PatientID:  c.Param("patientId"),
				IPAddress:  c.RealIP(),
				StatusCode: auditStatus(c, err),
				UserID:     auth.UserIDFromContext(req.Context()),
				UserRoles:  auth.RolesFromContext(req.Context()),
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "imaging_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("route", entry.Route).
				Str("hospital_id", entry.HospitalID).
				Str("patient_id", entry.PatientID).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("imaging_access")

			return err
		}
	}
}

func isAuditableRoute(route string) bool {
	return strings.Contains(route, "/imaging/") || strings.HasSuffix(route, "/imaging")
}

// auditStatus reports the status the client will see. When the handler
// returned an error the response has not been written yet.
func auditStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return http.StatusInternalServerError
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
