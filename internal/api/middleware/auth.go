package middleware

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/inkwell/account-service/internal/api/metrics"
	"github.com/inkwell/account-service/internal/core/domain"
	"github.com/inkwell/account-service/internal/core/ports"
)

// AccountKey is the echo context key holding the resolved *domain.Account.
const AccountKey = "account"

// Auth resolves the bearer token into a live account and stores it in the
// context. Requests without a usable token fail with domain.ErrUnauthenticated.
func Auth(access ports.AccessService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c)
			if err != nil {
				metrics.AccessDeniedTotal.WithLabelValues("unauthenticated").Inc()
				return err
			}
			acc, err := access.Resolve(c.Request().Context(), token)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthenticated) {
					metrics.AccessDeniedTotal.WithLabelValues("unauthenticated").Inc()
				}
				return err
			}
			c.Set(AccountKey, acc)
			return next(c)
		}
	}
}

// OptionalAuth behaves like Auth when an Authorization header is present and
// lets anonymous requests through untouched.
func OptionalAuth(access ports.AccessService) echo.MiddlewareFunc {
	auth := Auth(access)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withAuth := auth(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get(echo.HeaderAuthorization) == "" {
				return next(c)
			}
			return withAuth(c)
		}
	}
}

// CurrentAccount returns the account stored by Auth, or nil.
func CurrentAccount(c echo.Context) *domain.Account {
	acc, _ := c.Get(AccountKey).(*domain.Account)
	return acc
}

func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return "", domain.ErrUnauthenticated
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", domain.ErrUnauthenticated
	}
	return strings.TrimSpace(parts[1]), nil
}
