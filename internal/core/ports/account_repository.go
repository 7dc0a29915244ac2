package ports

import (
	"context"

	"github.com/inkwell/account-service/internal/core/domain"
)

// ListAccountsFilter carries pagination and the optional equality filters for
// listing accounts. Empty / nil fields are not applied.
type ListAccountsFilter struct {
	Role       string
	Permission string
	Active     *bool
	Skip       int
	Limit      int
}

// AccountRepository persists accounts. Implementations must enforce email and
// username uniqueness atomically and report violations as
// domain.ErrEmailTaken / domain.ErrUsernameTaken.
type AccountRepository interface {
	// Create assigns the numeric id and stores the account.
	Create(ctx context.Context, acc *domain.Account) (*domain.Account, error)
	FindByID(ctx context.Context, id int64) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByUsername(ctx context.Context, username string) (*domain.Account, error)
	FindByConfirmationToken(ctx context.Context, token string) (*domain.Account, error)
	// Update replaces every mutable field of the stored account.
	Update(ctx context.Context, acc *domain.Account) error
	Delete(ctx context.Context, id int64) error
	// List returns a page of accounts ordered by id, plus the total match count.
	List(ctx context.Context, filter ListAccountsFilter) ([]*domain.Account, int64, error)
}
