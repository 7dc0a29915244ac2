package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/inkwell/account-service/internal/api/metrics"
	"github.com/inkwell/account-service/internal/api/middleware"
	"github.com/inkwell/account-service/internal/core/domain"
	"github.com/inkwell/account-service/internal/core/ports"
)

// AccountHandler exposes the account lifecycle over HTTP.
type AccountHandler struct {
	accounts ports.AccountService
}

func NewAccountHandler(accounts ports.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// Register creates a new account.
//
// @Summary      Register a new account
// @Description  An administrative grant is only honoured for an admin caller.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Account details"
// @Success      201   {object}  registerResponse
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /api/v1/auth/register [post]
func (h *AccountHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		return err
	}

	policy := h.accounts.Policy()
	grant := domain.Grant{Role: req.Role, Permissions: req.Permissions}
	if policy.Elevated(grant) && !policy.Allows(middleware.CurrentAccount(c), domain.RoleAdmin) {
		metrics.RegistrationsTotal.WithLabelValues("forbidden").Inc()
		metrics.AccessDeniedTotal.WithLabelValues("forbidden").Inc()
		return domain.ErrForbidden
	}

	acc, err := h.accounts.Register(c.Request().Context(), ports.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
		Name:     req.Name,
		LastName: req.LastName,
		Grant:    grant,
	})
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues(registrationResult(err)).Inc()
		return err
	}
	metrics.RegistrationsTotal.WithLabelValues("created").Inc()

	msg := "account created"
	if !acc.EmailConfirmed {
		msg = "account created, check your e-mail for the confirmation code"
	}
	return c.JSON(http.StatusCreated, registerResponse{Message: msg, User: toAccountResponse(acc)})
}

// Login authenticates an account and issues a session token.
//
// @Summary      Login
// @Description  Accepts JSON or the OAuth2 password form (username carries the e-mail).
// @Tags         auth
// @Accept       json,x-www-form-urlencoded
// @Produce      json
// @Param        body  body      loginRequest  true  "Credentials"
// @Success      200   {object}  loginResponse
// @Failure      401   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /api/v1/auth/login [post]
func (h *AccountHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		metrics.LoginsTotal.WithLabelValues("invalid").Inc()
		return err
	}
	if req.identity() == "" {
		metrics.LoginsTotal.WithLabelValues("invalid").Inc()
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "email is required")
	}

	session, err := h.accounts.Authenticate(c.Request().Context(), req.identity(), req.Password)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(loginResult(err)).Inc()
		return err
	}
	metrics.LoginsTotal.WithLabelValues("success").Inc()

	return c.JSON(http.StatusOK, loginResponse{
		AccessToken: session.Token,
		TokenType:   "bearer",
		ExpiresIn:   session.ExpiresIn,
		User:        toAccountResponse(session.Account),
	})
}

// ConfirmEmail redeems a confirmation code.
//
// @Summary      Confirm e-mail address
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      confirmEmailRequest  true  "Confirmation code"
// @Success      200   {object}  confirmEmailResponse
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/auth/confirm-email [post]
func (h *AccountHandler) ConfirmEmail(c echo.Context) error {
	var req confirmEmailRequest
	if err := bindAndValidate(c, &req); err != nil {
		metrics.ConfirmationsTotal.WithLabelValues("invalid").Inc()
		return err
	}

	acc, err := h.accounts.ConfirmEmail(c.Request().Context(), req.Token)
	if err != nil {
		metrics.ConfirmationsTotal.WithLabelValues(confirmationResult(err)).Inc()
		return err
	}
	metrics.ConfirmationsTotal.WithLabelValues("confirmed").Inc()

	return c.JSON(http.StatusOK, confirmEmailResponse{Message: "email confirmed", User: toAccountResponse(acc)})
}

// ResendConfirmation issues a fresh confirmation code.
//
// @Summary      Resend confirmation code
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      resendConfirmationRequest  true  "Account e-mail"
// @Success      200   {object}  messageResponse
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Router       /api/v1/auth/resend-confirmation [post]
func (h *AccountHandler) ResendConfirmation(c echo.Context) error {
	var req resendConfirmationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.accounts.ResendConfirmation(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "confirmation code sent"})
}

// Profile returns the caller's own account.
//
// @Summary      Own profile
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  accountResponse
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/auth/profile [get]
func (h *AccountHandler) Profile(c echo.Context) error {
	acc, err := currentAccount(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAccountResponse(acc))
}

// CheckRole summarises the caller's authorization.
//
// @Summary      Own authorization summary
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  checkRoleResponse
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/auth/check-role [get]
func (h *AccountHandler) CheckRole(c echo.Context) error {
	acc, err := currentAccount(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toCheckRoleResponse(acc))
}

// ProfileByID returns any account to an administrator, or the caller's own.
//
// @Summary      Profile by id
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Account id"
// @Success      200  {object}  accountResponse
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/auth/profile/{id} [get]
func (h *AccountHandler) ProfileByID(c echo.Context) error {
	id, err := middleware.PathID(c, "id")
	if err != nil {
		return err
	}
	acc, err := h.accounts.GetAccount(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAccountResponse(acc))
}

// ConfirmationStatus reports whether an account has confirmed its e-mail.
//
// @Summary      Confirmation status
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Account id"
// @Success      200  {object}  confirmationStatusResponse
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/auth/confirmation-status/{id} [get]
func (h *AccountHandler) ConfirmationStatus(c echo.Context) error {
	id, err := middleware.PathID(c, "id")
	if err != nil {
		return err
	}
	acc, err := h.accounts.GetAccount(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toConfirmationStatusResponse(acc))
}

// ChangePassword replaces the caller's password.
//
// @Summary      Change own password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      changePasswordRequest  true  "Current and new password"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/auth/change-password [patch]
func (h *AccountHandler) ChangePassword(c echo.Context) error {
	acc, err := currentAccount(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if _, err := h.accounts.UpdatePassword(c.Request().Context(), acc.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "password updated"})
}

// List returns a page of accounts.
//
// @Summary      List accounts
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        skip        query     int     false  "Offset (default 0)"
// @Param        limit       query     int     false  "Page size 1-1000 (default 100)"
// @Param        role        query     string  false  "Role filter (role model)"
// @Param        permission  query     string  false  "Permission filter (permission model)"
// @Param        active      query     bool    false  "Active filter"
// @Success      200         {object}  accountListResponse
// @Failure      400         {object}  map[string]string
// @Failure      403         {object}  map[string]string
// @Router       /api/v1/auth/users [get]
func (h *AccountHandler) List(c echo.Context) error {
	in := ports.ListAccountsInput{
		Role:       c.QueryParam("role"),
		Permission: c.QueryParam("permission"),
	}
	if err := echo.QueryParamsBinder(c).
		Int("skip", &in.Skip).
		Int("limit", &in.Limit).
		BindError(); err != nil {
		return domain.InvalidField("skip/limit", "must be integers")
	}
	if c.QueryParam("limit") != "" && in.Limit == 0 {
		return &domain.ValidationError{Field: "limit", Value: "0", Reason: "must be between 1 and 1000"}
	}
	if raw := c.QueryParam("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return &domain.ValidationError{Field: "active", Value: raw, Reason: "must be a boolean"}
		}
		in.Active = &active
	}

	page, err := h.accounts.ListAccounts(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAccountListResponse(page))
}

// Delete removes an account.
//
// @Summary      Delete account
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Account id"
// @Success      200  {object}  messageResponse
// @Failure      400  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/auth/users/{id} [delete]
func (h *AccountHandler) Delete(c echo.Context) error {
	id, err := middleware.PathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.accounts.DeleteAccount(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "account deleted"})
}

// Deactivate disables an account.
//
// @Summary      Deactivate account
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Account id"
// @Success      200  {object}  accountResponse
// @Failure      400  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/auth/users/{id}/deactivate [patch]
func (h *AccountHandler) Deactivate(c echo.Context) error {
	id, err := middleware.PathID(c, "id")
	if err != nil {
		return err
	}
	acc, err := h.accounts.DeactivateAccount(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAccountResponse(acc))
}

// ChangeRole replaces an account's role or permission set.
//
// @Summary      Change authorization
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int                true  "Account id"
// @Param        body  body      changeRoleRequest  true  "Role or permissions"
// @Success      200   {object}  accountResponse
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/auth/users/{id}/role [patch]
func (h *AccountHandler) ChangeRole(c echo.Context) error {
	id, err := middleware.PathID(c, "id")
	if err != nil {
		return err
	}
	var req changeRoleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	acc, err := h.accounts.ChangeAuthorization(c.Request().Context(), id, req.grant())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAccountResponse(acc))
}

func registrationResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrAccountExists):
		return "conflict"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrAccountDisabled):
		return "disabled"
	case errors.Is(err, domain.ErrEmailUnconfirmed):
		return "unconfirmed"
	default:
		return "error"
	}
}

func confirmationResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrConfirmationExpired):
		return "expired"
	case errors.Is(err, domain.ErrInvalidConfirmationToken):
		return "invalid"
	case errors.Is(err, domain.ErrAlreadyConfirmed):
		return "already_confirmed"
	default:
		return "error"
	}
}
