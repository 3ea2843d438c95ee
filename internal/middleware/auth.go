package middleware

import (
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"panelhub/internal/access"
	"panelhub/internal/apperr"
	"panelhub/internal/models"
	"panelhub/internal/repository"
)

// tokenTypeAccess is the only token type accepted for API calls.
const tokenTypeAccess = "access"

// Claims are the claims of an access token. Subject holds the user id.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"type"`
}

// UserLookup loads the user behind a token.
type UserLookup interface {
	FindByID(id uint) (*models.User, error)
}

// JWTAuth verifies an HS256 bearer token, loads the active user and stores
// the resolved caller in the request context.
func JWTAuth(secret string, users UserLookup, policy *access.RootAdminPolicy, logger *zap.Logger) echo.MiddlewareFunc {
	key := []byte(secret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				return deny(c, apperr.Unauthorized, "bearer token is required")
			}

			claims := &Claims{}
			if _, err := parser.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (interface{}, error) {
				return key, nil
			}); err != nil {
				return deny(c, apperr.Unauthorized, "invalid token")
			}
			if claims.Type != tokenTypeAccess {
				return deny(c, apperr.Unauthorized, "invalid token type")
			}
			id, err := strconv.ParseUint(claims.Subject, 10, 64)
			if err != nil || id == 0 {
				return deny(c, apperr.Unauthorized, "invalid token subject")
			}

			user, err := users.FindByID(uint(id))
			if err != nil {
				if repository.IsNotFound(err) {
					return deny(c, apperr.Unauthorized, "user not found")
				}
				logger.Error("failed to load caller", zap.Uint64("user_id", id), zap.Error(err))
				return deny(c, apperr.Internal, "failed to load caller")
			}
			if !user.IsActive {
				return deny(c, apperr.Unauthorized, "user is inactive")
			}

			caller, err := policy.Resolve(user)
			if err != nil {
				logger.Error("failed to resolve root grant", zap.Uint("user_id", user.ID), zap.Error(err))
				return deny(c, apperr.Internal, "failed to resolve caller")
			}
			c.SetRequest(c.Request().WithContext(access.WithCaller(c.Request().Context(), caller)))
			return next(c)
		}
	}
}
