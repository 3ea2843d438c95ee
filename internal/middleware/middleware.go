package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"panelhub/internal/access"
	"panelhub/internal/apperr"
	"panelhub/internal/models"
)

const requestIDHeader = "X-Request-ID"

// deny answers with the standard error envelope.
func deny(c echo.Context, kind apperr.Kind, msg string) error {
	SetErrorKind(c, kind)
	return c.JSON(apperr.HTTPStatus(kind), models.APIResponse{
		Status: false,
		Msg:    msg,
		Kind:   string(kind),
	})
}

// CORS configures CORS headers.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("Access-Control-Allow-Origin", "*")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key, "+requestIDHeader)
			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}

// RequestID propagates or assigns X-Request-ID.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(requestIDHeader, id)
			return next(c)
		}
	}
}

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := []zap.Field{
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(requestIDHeader)),
			}
			if caller, ok := access.FromContext(c.Request().Context()); ok {
				fields = append(fields, zap.Uint("caller_id", caller.ID))
			}
			if c.Response().Status >= http.StatusInternalServerError {
				logger.Warn("request failed", fields...)
			} else {
				logger.Info("request", fields...)
			}
			return nil
		}
	}
}

// RootOnly rejects callers that are not root administrators.
func RootOnly() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller, ok := access.FromContext(c.Request().Context())
			if !ok {
				return deny(c, apperr.Unauthorized, "authentication required")
			}
			if err := access.RequireRoot(caller); err != nil {
				return deny(c, apperr.Forbidden, "root administrator required")
			}
			return next(c)
		}
	}
}
