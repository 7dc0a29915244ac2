package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/inkwell/account-service/internal/core/domain"
	"github.com/inkwell/account-service/internal/core/ports"
	"github.com/inkwell/account-service/internal/core/security"
)

const (
	MinPasswordLength = 6
	// bcrypt ignores input past 72 bytes.
	MaxPasswordBytes = 72

	maxNameLength     = 50
	minUsernameLength = 3
	maxUsernameLength = 50

	DefaultListLimit = 100
	MaxListLimit     = 1000

	timingPassword = "timing-equalisation-password"

	// maxCodeAttempts bounds regeneration when a code collides with one
	// already stored on another account.
	maxCodeAttempts = 3
)

// PasswordHasher hashes and verifies credentials.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(sub security.Subject, ttl time.Duration) (string, error)
	TTL() time.Duration
}

// CodeGenerator issues confirmation codes.
type CodeGenerator interface {
	Generate() (string, error)
}

// Options tunes the account lifecycle.
type Options struct {
	// RequireConfirmation creates accounts unconfirmed and issues a code.
	RequireConfirmation bool
	ConfirmationTTL     time.Duration
	ResendCooldown      time.Duration
}

// AccountService implements the account lifecycle: registration, e-mail
// confirmation, authentication and administrative mutations.
type AccountService struct {
	repo     ports.AccountRepository
	hasher   PasswordHasher
	tokens   TokenIssuer
	codes    CodeGenerator
	notifier ports.Notifier
	policy   domain.AuthorizationPolicy
	opts     Options
	log      zerolog.Logger
	validate *validator.Validate
	now      func() time.Time

	dummyHash string
}

func NewAccountService(
	repo ports.AccountRepository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	codes CodeGenerator,
	notifier ports.Notifier,
	policy domain.AuthorizationPolicy,
	opts Options,
	log zerolog.Logger,
) *AccountService {
	if opts.ConfirmationTTL <= 0 {
		opts.ConfirmationTTL = 24 * time.Hour
	}
	if opts.ResendCooldown <= 0 {
		opts.ResendCooldown = 2 * time.Minute
	}
	s := &AccountService{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		codes:    codes,
		notifier: notifier,
		policy:   policy,
		opts:     opts,
		log:      log,
		validate: validator.New(),
		now:      time.Now,
	}
	if h, err := hasher.Hash(timingPassword); err == nil {
		s.dummyHash = h
	}
	return s
}

// WithClock replaces the time source. Intended for tests.
func (s *AccountService) WithClock(now func() time.Time) *AccountService {
	s.now = now
	return s
}

func (s *AccountService) Policy() domain.AuthorizationPolicy { return s.policy }

func (s *AccountService) Register(ctx context.Context, in ports.RegisterInput) (*domain.Account, error) {
	email := domain.NormalizeEmail(in.Email)
	if err := s.validate.Var(email, "required,email,max=255"); err != nil {
		return nil, &domain.ValidationError{Field: "email", Value: in.Email, Reason: "must be a valid email address"}
	}
	if err := validatePassword("password", in.Password); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(in.Username)
	if username == "" && s.policy.Model() == domain.ModelPermission {
		return nil, domain.InvalidField("username", "is required")
	}
	if username != "" {
		if n := utf8.RuneCountInString(username); n < minUsernameLength || n > maxUsernameLength {
			return nil, &domain.ValidationError{Field: "username", Value: username,
				Reason: fmt.Sprintf("must be between %d and %d characters", minUsernameLength, maxUsernameLength)}
		}
	}
	name := strings.TrimSpace(in.Name)
	lastName := strings.TrimSpace(in.LastName)
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, domain.InvalidField("name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}
	if utf8.RuneCountInString(lastName) > maxNameLength {
		return nil, domain.InvalidField("last_name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}

	grant, err := s.policy.Normalize(in.Grant)
	if err != nil {
		return nil, err
	}

	if err := s.ensureAvailable(ctx, email, username); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}

	now := s.now().UTC()
	acc := &domain.Account{
		Email:          email,
		Username:       username,
		Name:           name,
		LastName:       lastName,
		PasswordHash:   hash,
		Active:         true,
		EmailConfirmed: !s.opts.RequireConfirmation,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.policy.Apply(acc, grant)

	var (
		code    string
		created *domain.Account
	)
	if s.opts.RequireConfirmation {
		code, err = s.issueCode(acc, now, func() error {
			var err error
			created, err = s.repo.Create(ctx, acc)
			return err
		})
	} else {
		created, err = s.repo.Create(ctx, acc)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("account_id", created.ID).Str("email", created.Email).Msg("account registered")

	if code != "" {
		s.notify("confirmation", created, func() error {
			return s.notifier.SendConfirmation(ctx, created, code)
		})
	}
	return created, nil
}

// issueCode sets a fresh confirmation code on acc and persists it with save.
// A code that collides with another account's live code is replaced and
// saved again, up to maxCodeAttempts times.
func (s *AccountService) issueCode(acc *domain.Account, now time.Time, save func() error) (string, error) {
	for attempt := 1; ; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return "", err
		}
		acc.SetConfirmation(code, now, s.opts.ConfirmationTTL)

		err = save()
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, domain.ErrConfirmationCodeTaken) || attempt == maxCodeAttempts {
			return "", err
		}
		s.log.Warn().Int("attempt", attempt).Msg("confirmation code collision, regenerating")
	}
}

func (s *AccountService) ensureAvailable(ctx context.Context, email, username string) error {
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return domain.ErrEmailTaken
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		return fmt.Errorf("register: lookup email: %w", err)
	}
	if username == "" {
		return nil
	}
	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return domain.ErrUsernameTaken
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		return fmt.Errorf("register: lookup username: %w", err)
	}
	return nil
}

func (s *AccountService) ConfirmEmail(ctx context.Context, token string) (*domain.Account, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrInvalidConfirmationToken
	}

	acc, err := s.repo.FindByConfirmationToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrInvalidConfirmationToken
		}
		return nil, fmt.Errorf("confirm email: %w", err)
	}
	if acc.EmailConfirmed {
		return nil, domain.ErrAlreadyConfirmed
	}

	now := s.now().UTC()
	if acc.ConfirmationExpires == nil || now.After(*acc.ConfirmationExpires) {
		// The code is spent; issued-at stays so the resend cooldown still applies.
		acc.ConfirmationToken = ""
		acc.ConfirmationExpires = nil
		acc.UpdatedAt = now
		if err := s.repo.Update(ctx, acc); err != nil {
			return nil, fmt.Errorf("confirm email: consume expired token: %w", err)
		}
		return nil, domain.ErrConfirmationExpired
	}

	acc.EmailConfirmed = true
	acc.ClearConfirmation()
	acc.UpdatedAt = now
	if err := s.repo.Update(ctx, acc); err != nil {
		return nil, fmt.Errorf("confirm email: %w", err)
	}

	s.log.Info().Int64("account_id", acc.ID).Msg("email confirmed")
	s.notify("welcome", acc, func() error {
		return s.notifier.SendWelcome(ctx, acc)
	})
	return acc, nil
}

func (s *AccountService) ResendConfirmation(ctx context.Context, email string) error {
	acc, err := s.repo.FindByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return err
	}
	if acc.EmailConfirmed {
		return domain.ErrAlreadyConfirmed
	}

	now := s.now().UTC()
	if acc.ConfirmationSentAt != nil && now.Sub(*acc.ConfirmationSentAt) < s.opts.ResendCooldown {
		return domain.ErrRateLimited
	}

	acc.UpdatedAt = now
	code, err := s.issueCode(acc, now, func() error {
		return s.repo.Update(ctx, acc)
	})
	if err != nil {
		return fmt.Errorf("resend confirmation: %w", err)
	}

	s.log.Info().Int64("account_id", acc.ID).Msg("confirmation code reissued")
	s.notify("confirmation", acc, func() error {
		return s.notifier.SendConfirmation(ctx, acc, code)
	})
	return nil
}

// Authenticate checks existence, then the lifecycle gate, then the password.
// The password comparison always runs so every branch costs one bcrypt
// verification.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*ports.Session, error) {
	acc, err := s.repo.FindByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	passwordOK := s.hasher.Verify(password, acc.PasswordHash)
	if !acc.Active {
		return nil, domain.ErrAccountDisabled
	}
	if !acc.EmailConfirmed {
		return nil, domain.ErrEmailUnconfirmed
	}
	if !passwordOK {
		return nil, domain.ErrInvalidCredentials
	}

	now := s.now().UTC()
	acc.LastLogin = &now
	acc.UpdatedAt = now
	if err := s.repo.Update(ctx, acc); err != nil {
		s.log.Warn().Err(err).Int64("account_id", acc.ID).Msg("failed to stamp last login")
	}

	grant := s.policy.GrantOf(acc)
	token, err := s.tokens.Issue(security.Subject{
		ID:          acc.ID,
		Email:       acc.Email,
		Username:    acc.Username,
		Role:        grant.Role,
		Permissions: grant.Permissions,
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("authenticate: issue token: %w", err)
	}

	return &ports.Session{
		Account:   acc,
		Token:     token,
		ExpiresIn: int64(s.tokens.TTL().Seconds()),
	}, nil
}

func (s *AccountService) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *AccountService) UpdatePassword(ctx context.Context, id int64, current, next string) (*domain.Account, error) {
	if err := validatePassword("new_password", next); err != nil {
		return nil, err
	}

	acc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(current, acc.PasswordHash) {
		return nil, domain.ErrInvalidCurrentPassword
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return nil, fmt.Errorf("update password: hash: %w", err)
	}
	acc.PasswordHash = hash
	acc.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, acc); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}

	s.log.Info().Int64("account_id", acc.ID).Msg("password changed")
	return acc, nil
}

func (s *AccountService) ChangeAuthorization(ctx context.Context, id int64, grant domain.Grant) (*domain.Account, error) {
	if grant.IsZero() {
		field := "role"
		if s.policy.Model() == domain.ModelPermission {
			field = "permissions"
		}
		return nil, &domain.ValidationError{Field: field, Reason: "is required", Allowed: s.policy.Legal()}
	}
	normalized, err := s.policy.Normalize(grant)
	if err != nil {
		return nil, err
	}

	acc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.policy.Apply(acc, normalized)
	acc.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, acc); err != nil {
		return nil, fmt.Errorf("change authorization: %w", err)
	}

	s.log.Info().Int64("account_id", acc.ID).Msg("authorization changed")
	return acc, nil
}

func (s *AccountService) DeactivateAccount(ctx context.Context, id int64) (*domain.Account, error) {
	acc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	acc.Active = false
	acc.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, acc); err != nil {
		return nil, fmt.Errorf("deactivate account: %w", err)
	}

	s.log.Info().Int64("account_id", acc.ID).Msg("account deactivated")
	return acc, nil
}

func (s *AccountService) DeleteAccount(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Int64("account_id", id).Msg("account deleted")
	return nil
}

func (s *AccountService) ListAccounts(ctx context.Context, in ports.ListAccountsInput) (*ports.AccountPage, error) {
	if in.Skip < 0 {
		return nil, &domain.ValidationError{Field: "skip", Value: fmt.Sprint(in.Skip), Reason: "must be zero or greater"}
	}
	limit := in.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}
	if limit < 1 || limit > MaxListLimit {
		return nil, &domain.ValidationError{Field: "limit", Value: fmt.Sprint(in.Limit),
			Reason: fmt.Sprintf("must be between 1 and %d", MaxListLimit)}
	}

	filter := ports.ListAccountsFilter{Active: in.Active, Skip: in.Skip, Limit: limit}
	if in.Role != "" {
		if s.policy.Model() != domain.ModelRole {
			return nil, domain.InvalidField("role", "filter not supported by the permission authorization model")
		}
		if err := s.policy.ValidateFilter(in.Role); err != nil {
			return nil, err
		}
		filter.Role = in.Role
	}
	if in.Permission != "" {
		if s.policy.Model() != domain.ModelPermission {
			return nil, domain.InvalidField("permission", "filter not supported by the role authorization model")
		}
		if err := s.policy.ValidateFilter(in.Permission); err != nil {
			return nil, err
		}
		filter.Permission = in.Permission
	}

	accounts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return &ports.AccountPage{Accounts: accounts, Total: total, Skip: in.Skip, Limit: limit}, nil
}

// EnsureAdmin creates a confirmed administrator for email unless an account
// with that email already exists.
func (s *AccountService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = domain.NormalizeEmail(email)
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		return fmt.Errorf("ensure admin: %w", err)
	}
	if err := validatePassword("password", password); err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("ensure admin: hash: %w", err)
	}

	grant := domain.Grant{Role: domain.RoleAdmin}
	if s.policy.Model() == domain.ModelPermission {
		grant = domain.Grant{Permissions: []string{domain.PermissionAdmin}}
	}
	now := s.now().UTC()
	acc := &domain.Account{
		Email:          email,
		PasswordHash:   hash,
		Active:         true,
		EmailConfirmed: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if s.policy.Model() == domain.ModelPermission {
		acc.Username = "admin"
	}
	s.policy.Apply(acc, grant)

	created, err := s.repo.Create(ctx, acc)
	if err != nil {
		if errors.Is(err, domain.ErrAccountExists) {
			return nil
		}
		return fmt.Errorf("ensure admin: %w", err)
	}
	s.log.Info().Int64("account_id", created.ID).Str("email", created.Email).Msg("bootstrap admin created")
	return nil
}

func (s *AccountService) notify(kind string, acc *domain.Account, send func() error) {
	if s.notifier == nil {
		return
	}
	if err := send(); err != nil {
		s.log.Warn().Err(err).Int64("account_id", acc.ID).Str("kind", kind).Msg("notification dispatch failed")
	}
}

func validatePassword(field, password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return domain.InvalidField(field, fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	if len(password) > MaxPasswordBytes {
		return domain.InvalidField(field, fmt.Sprintf("must be at most %d bytes", MaxPasswordBytes))
	}
	return nil
}
