package middleware

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/inkwell/account-service/internal/api/metrics"
	"github.com/inkwell/account-service/internal/core/domain"
	"github.com/inkwell/account-service/internal/core/ports"
)

// Require admits accounts the configured policy allows for required. It must
// run after Auth.
func Require(access ports.AccessService, required string) echo.MiddlewareFunc {
	return authorize(access, func(echo.Context) (domain.Rule, error) {
		return domain.Require(required), nil
	})
}

// AdminOrSelf admits administrators and the account named by the path
// parameter param.
func AdminOrSelf(access ports.AccessService, param string) echo.MiddlewareFunc {
	return authorize(access, func(c echo.Context) (domain.Rule, error) {
		id, err := PathID(c, param)
		if err != nil {
			return nil, err
		}
		return domain.AdminOrSelf(id), nil
	})
}

// NotSelf rejects requests whose path parameter param names the caller.
func NotSelf(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acc := CurrentAccount(c)
			if acc == nil {
				return domain.ErrUnauthenticated
			}
			id, err := PathID(c, param)
			if err != nil {
				return err
			}
			if id == acc.ID {
				metrics.AccessDeniedTotal.WithLabelValues("self_target").Inc()
				return domain.ErrSelfTarget
			}
			return next(c)
		}
	}
}

func authorize(access ports.AccessService, rule func(echo.Context) (domain.Rule, error)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r, err := rule(c)
			if err != nil {
				return err
			}
			if err := access.Authorize(CurrentAccount(c), r); err != nil {
				reason := "forbidden"
				if errors.Is(err, domain.ErrUnauthenticated) {
					reason = "unauthenticated"
				}
				metrics.AccessDeniedTotal.WithLabelValues(reason).Inc()
				return err
			}
			return next(c)
		}
	}
}

// PathID parses a positive numeric account id from the path parameter param.
func PathID(c echo.Context, param string) (int64, error) {
	raw := c.Param(param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Field: param, Value: raw, Reason: "must be a positive integer"}
	}
	return id, nil
}
