package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/inkwell/account-service/internal/api/middleware"
	"github.com/inkwell/account-service/internal/core/domain"
)

// currentAccount returns the caller resolved by the Auth middleware. A missing
// account means the route was registered without it and is reported as
// unauthenticated rather than dereferenced.
func currentAccount(c echo.Context) (*domain.Account, error) {
	acc := middleware.CurrentAccount(c)
	if acc == nil {
		return nil, domain.ErrUnauthenticated
	}
	return acc, nil
}
