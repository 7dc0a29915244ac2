package handler

import (
	"time"

	"github.com/inkwell/account-service/internal/core/domain"
	"github.com/inkwell/account-service/internal/core/ports"
)

// --- Requests ---

type registerRequest struct {
	Email       string   `json:"email" validate:"required,email"`
	Password    string   `json:"password" validate:"required"`
	Username    string   `json:"username,omitempty"`
	Name        string   `json:"name,omitempty"`
	LastName    string   `json:"last_name,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// loginRequest accepts JSON {email, password} and the OAuth2 password form,
// where the e-mail travels as "username".
type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Username string `json:"-" form:"username"`
	Password string `json:"password" form:"password" validate:"required"`
}

func (r loginRequest) identity() string {
	if r.Email != "" {
		return r.Email
	}
	return r.Username
}

type confirmEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

type resendConfirmationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

type changeRoleRequest struct {
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

func (r changeRoleRequest) grant() domain.Grant {
	return domain.Grant{Role: r.Role, Permissions: r.Permissions}
}

// --- Responses ---

type accountResponse struct {
	ID             int64      `json:"id"`
	Email          string     `json:"email"`
	Username       string     `json:"username,omitempty"`
	Name           string     `json:"name,omitempty"`
	LastName       string     `json:"last_name,omitempty"`
	Role           string     `json:"role,omitempty"`
	Permissions    []string   `json:"permissions,omitempty"`
	IsActive       bool       `json:"is_active"`
	EmailConfirmed bool       `json:"email_confirmed"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
}

type registerResponse struct {
	Message string          `json:"message"`
	User    accountResponse `json:"user"`
}

type loginResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   int64           `json:"expires_in"`
	User        accountResponse `json:"user"`
}

type confirmEmailResponse struct {
	Message string          `json:"message"`
	User    accountResponse `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type checkRoleResponse struct {
	ID             int64    `json:"id"`
	Email          string   `json:"email"`
	Username       string   `json:"username,omitempty"`
	Name           string   `json:"name,omitempty"`
	LastName       string   `json:"last_name,omitempty"`
	Role           string   `json:"role,omitempty"`
	Permissions    []string `json:"permissions,omitempty"`
	EmailConfirmed bool     `json:"email_confirmed"`
}

type confirmationStatusResponse struct {
	ID                 int64      `json:"id"`
	Email              string     `json:"email"`
	EmailConfirmed     bool       `json:"email_confirmed"`
	ConfirmationSentAt *time.Time `json:"confirmation_sent_at,omitempty"`
	Role               string     `json:"role,omitempty"`
	Permissions        []string   `json:"permissions,omitempty"`
}

type accountListResponse struct {
	Users []accountResponse `json:"users"`
	Total int64             `json:"total"`
	Skip  int               `json:"skip"`
	Limit int               `json:"limit"`
}

// --- Mapping ---

func toAccountResponse(a *domain.Account) accountResponse {
	return accountResponse{
		ID:             a.ID,
		Email:          a.Email,
		Username:       a.Username,
		Name:           a.Name,
		LastName:       a.LastName,
		Role:           a.Role,
		Permissions:    a.Permissions,
		IsActive:       a.Active,
		EmailConfirmed: a.EmailConfirmed,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
		LastLogin:      a.LastLogin,
	}
}

func toCheckRoleResponse(a *domain.Account) checkRoleResponse {
	return checkRoleResponse{
		ID:             a.ID,
		Email:          a.Email,
		Username:       a.Username,
		Name:           a.Name,
		LastName:       a.LastName,
		Role:           a.Role,
		Permissions:    a.Permissions,
		EmailConfirmed: a.EmailConfirmed,
	}
}

func toConfirmationStatusResponse(a *domain.Account) confirmationStatusResponse {
	return confirmationStatusResponse{
		ID:                 a.ID,
		Email:              a.Email,
		EmailConfirmed:     a.EmailConfirmed,
		ConfirmationSentAt: a.ConfirmationSentAt,
		Role:               a.Role,
		Permissions:        a.Permissions,
	}
}

func toAccountListResponse(page *ports.AccountPage) accountListResponse {
	users := make([]accountResponse, 0, len(page.Accounts))
	for _, a := range page.Accounts {
		users = append(users, toAccountResponse(a))
	}
	return accountListResponse{
		Users: users,
		Total: page.Total,
		Skip:  page.Skip,
		Limit: page.Limit,
	}
}
