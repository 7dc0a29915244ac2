package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/inkwell/account-service/internal/core/domain"
	"github.com/inkwell/account-service/internal/core/security"
)

// TokenVerifier validates session tokens.
type TokenVerifier interface {
	Verify(token string) (*security.Claims, error)
}

// AccessService turns a bearer token into a live account and evaluates
// authorization rules against it.
type AccessService struct {
	repo   accountFinder
	tokens TokenVerifier
	policy domain.AuthorizationPolicy
	log    zerolog.Logger
}

type accountFinder interface {
	FindByID(ctx context.Context, id int64) (*domain.Account, error)
}

func NewAccessService(repo accountFinder, tokens TokenVerifier, policy domain.AuthorizationPolicy, log zerolog.Logger) *AccessService {
	return &AccessService{repo: repo, tokens: tokens, policy: policy, log: log}
}

func (s *AccessService) Policy() domain.AuthorizationPolicy { return s.policy }

// Resolve returns the account behind bearer. The account is loaded fresh so
// a deactivation or deletion takes effect on the next request. Every failure
// is reported as domain.ErrUnauthenticated except storage errors.
func (s *AccessService) Resolve(ctx context.Context, bearer string) (*domain.Account, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return nil, domain.ErrUnauthenticated
	}
	claims, err := s.tokens.Verify(bearer)
	if err != nil {
		return nil, domain.ErrUnauthenticated
	}
	id, err := claims.SubjectID()
	if err != nil {
		return nil, domain.ErrUnauthenticated
	}

	acc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, err
	}
	if !acc.CanAuthenticate() {
		s.log.Debug().Int64("account_id", acc.ID).Msg("token presented for gated account")
		return nil, domain.ErrUnauthenticated
	}
	return acc, nil
}

// Authorize evaluates rule for acc.
func (s *AccessService) Authorize(acc *domain.Account, rule domain.Rule) error {
	if acc == nil {
		return domain.ErrUnauthenticated
	}
	if rule == nil || !rule(s.policy, acc) {
		return domain.ErrForbidden
	}
	return nil
}
