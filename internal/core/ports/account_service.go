package ports

import (
	"context"

	"github.com/inkwell/account-service/internal/core/domain"
)

// RegisterInput carries the fields accepted on registration.
type RegisterInput struct {
	Email    string
	Password string
	Username string
	Name     string
	LastName string
	Grant    domain.Grant
}

// ListAccountsInput carries the raw list parameters before validation.
type ListAccountsInput struct {
	Skip       int
	Limit      int
	Role       string
	Permission string
	Active     *bool
}

// AccountPage is one page of accounts.
type AccountPage struct {
	Accounts []*domain.Account
	Total    int64
	Skip     int
	Limit    int
}

// Session is the result of a successful authentication.
type Session struct {
	Account   *domain.Account
	Token     string
	ExpiresIn int64
}

// AccountService is the account lifecycle use-case boundary.
type AccountService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.Account, error)
	ConfirmEmail(ctx context.Context, token string) (*domain.Account, error)
	ResendConfirmation(ctx context.Context, email string) error
	Authenticate(ctx context.Context, email, password string) (*Session, error)
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	UpdatePassword(ctx context.Context, id int64, current, next string) (*domain.Account, error)
	ChangeAuthorization(ctx context.Context, id int64, grant domain.Grant) (*domain.Account, error)
	DeactivateAccount(ctx context.Context, id int64) (*domain.Account, error)
	DeleteAccount(ctx context.Context, id int64) error
	ListAccounts(ctx context.Context, in ListAccountsInput) (*AccountPage, error)
	Policy() domain.AuthorizationPolicy
}

// AccessService resolves bearer tokens to accounts and evaluates rules.
type AccessService interface {
	Resolve(ctx context.Context, bearer string) (*domain.Account, error)
	Authorize(acc *domain.Account, rule domain.Rule) error
	Policy() domain.AuthorizationPolicy
}
