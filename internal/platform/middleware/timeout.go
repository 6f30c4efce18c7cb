package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout bounds each request with a context deadline. Archive calls
// made by handlers inherit the deadline, so an exceeded budget cancels
// outstanding archive requests and the client receives 504.
//
// Paths listed in skip keep the server's context; handlers that stream large
// uploads register there.
func RequestTimeout(timeout time.Duration, skip ...string) echo.MiddlewareFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 || skipped[c.Path()] {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					// Let the handler observe cancellation before the
					// response is written.
					<-done
					return gatewayTimeoutError(c)
				}
				return ctx.Err()
			}
		}
	}
}

func gatewayTimeoutError(c echo.Context) error {
	if c.Response().Committed {
		return nil
	}
	return c.JSON(http.StatusGatewayTimeout, map[string]string{
		"error": "request processing exceeded the allowed time limit",
	})
}
