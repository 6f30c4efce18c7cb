package middleware

import (
	"net/http"
	"strings"
	"unicode"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// maxHeaderValueSize is the maximum allowed size for any single header value.
const maxHeaderValueSize = 8192

// Sanitize rejects requests carrying path traversal, null bytes or control
// characters. Route parameters are checked after routing because they are
// substituted into archive URLs verbatim; an identifier containing a slash
// or ".." could otherwise reach a different archive resource.
func Sanitize(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rawPath := req.URL.RawPath
			if rawPath == "" {
				rawPath = req.URL.Path
			}

			if containsPathTraversal(req.URL.Path) || containsPathTraversal(rawPath) {
				return reject(c, logger, "path traversal detected")
			}
			if containsNullByte(req.URL.Path) || containsNullByte(rawPath) {
				return reject(c, logger, "null byte in path")
			}

			for name, values := range req.Header {
				for _, v := range values {
					if len(v) > maxHeaderValueSize {
						return reject(c, logger, "header value too large: "+name)
					}
					if strings.ContainsAny(v, "\r\n") {
						return reject(c, logger, "invalid header value: "+name)
					}
				}
			}

			for key, values := range req.URL.Query() {
				if containsNullByte(key) {
					return reject(c, logger, "null byte in query parameter")
				}
				for _, v := range values {
					if containsNullByte(v) {
						return reject(c, logger, "null byte in query parameter")
					}
				}
			}

			names := c.ParamNames()
			for i, v := range c.ParamValues() {
				if i >= len(names) || names[i] == "*" {
					continue
				}
				if !validParam(v) {
					return reject(c, logger, "invalid value for "+names[i])
				}
			}

			return next(c)
		}
	}
}

// validParam reports whether a route parameter is safe to place in
// an archive URL path segment.
func validParam(v string) bool {
	if v == "." || strings.Contains(v, "..") || strings.ContainsAny(v, "/\\") {
		return false
	}
	lower := strings.ToLower(v)
	if strings.Contains(lower, "%2f") || strings.Contains(lower, "%5c") {
		return false
	}
	for _, r := range v {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// containsPathTraversal checks for path traversal sequences in raw and
// percent-encoded forms.
func containsPathTraversal(s string) bool {
	if strings.Contains(s, "..") {
		return true
	}
	lower := strings.ToLower(s)
	return strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%252e")
}

// containsNullByte checks for null bytes in raw and percent-encoded forms.
func containsNullByte(s string) bool {
	return strings.ContainsRune(s, '\x00') || strings.Contains(strings.ToLower(s), "%00")
}

func reject(c echo.Context, logger zerolog.Logger, msg string) error {
	logger.Warn().
		Str("path", c.Request().URL.Path).
		Str("remote_ip", c.RealIP()).
		Str("reason", msg).
		Msg("request rejected by sanitizer")
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}
