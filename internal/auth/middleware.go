package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const SubjectKey contextKey = "subject"

// Middleware validates the bearer token and stores its subject in the context.
func (s *Service) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing Authorization header")
		}

		raw, ok := bearer(authHeader)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid Authorization header format")
		}

		sub, err := s.ParseToken(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}

		c.Set(string(SubjectKey), sub)
		return next(c)
	}
}

// AdminMiddleware accepts the admin secret in X-Admin-Secret or as a bearer value.
func (s *Service) AdminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.CheckAdminSecret(c.Request().Header.Get("X-Admin-Secret")) == nil {
			return next(c)
		}
		if raw, ok := bearer(c.Request().Header.Get("Authorization")); ok && s.CheckAdminSecret(raw) == nil {
			return next(c)
		}
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

// GetSubjectFromContext returns the token subject set by Middleware.
func GetSubjectFromContext(c echo.Context) (string, error) {
	sub, ok := c.Get(string(SubjectKey)).(string)
	if !ok || sub == "" {
		return "", errors.New("subject not found in context")
	}
	return sub, nil
}

func bearer(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
