package api

import (
	"net/http"
	"strings"
	"time"

	"termin/internal/metrics"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	requestIDHeader = "X-Request-ID"

	ctxRequestID = "request_id"
	ctxStaff     = "staff"
)

// RequestLogger tags each request with an id and logs it once the response is written.
func RequestLogger(logger *zerolog.Logger) echo.MiddlewareFunc {
	base := zerolog.Nop()
	if logger != nil {
		base = *logger
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := strings.TrimSpace(req.Header.Get(requestIDHeader))
			if id == "" {
				id = uuid.NewString()
			}
			c.Set(ctxRequestID, id)
			c.Response().Header().Set(requestIDHeader, id)

			start := time.Now()
			if err := next(c); err != nil {
				// commit the error response so the status below is final
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = req.URL.Path
			}
			metrics.IncHTTP(path)

			base.Info().
				Str("request_id", id).
				Str("method", req.Method).
				Str("path", path).
				Int("status", c.Response().Status).
				Str("remote", c.RealIP()).
				Dur("duration", time.Since(start)).
				Msg("http request")
			return nil
		}
	}
}

// requireStaff accepts a staff Bearer token or a machine api key holding permission.
func (s *HTTPServer) requireStaff(permission string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if auth := c.Request().Header.Get(echo.HeaderAuthorization); auth != "" {
				if !strings.HasPrefix(auth, "Bearer ") {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
				}
				subject, err := s.deps.Staff.Verify(strings.TrimPrefix(auth, "Bearer "))
				if err != nil {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
				}
				c.Set(ctxStaff, subject)
				return next(c)
			}

			key := strings.TrimSpace(c.Request().Header.Get(s.clients.header))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			client, ok := s.clients.lookup(key)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid api key"})
			}
			if !allowed(client, permission) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "permission denied"})
			}
			if !s.clients.limiter.allow(key) {
				return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "rate limit exceeded"})
			}
			c.Set(ctxStaff, "api:"+client.Name)
			return next(c)
		}
	}
}

func staffName(c echo.Context) string {
	name, _ := c.Get(ctxStaff).(string)
	return name
}
