package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/inkwell/account-service/internal/core/domain"
	"github.com/inkwell/account-service/internal/core/ports"
	"github.com/inkwell/account-service/internal/core/security"
)

type stubAccountRepo struct {
	mu       sync.Mutex
	accounts map[int64]*domain.Account
	nextID   int64
	updates  int
	// uniqueCodes rejects a confirmation code held by another account, like
	// the partial unique index in both stores.
	uniqueCodes bool
}

func newStubAccountRepo() *stubAccountRepo {
	return &stubAccountRepo{accounts: make(map[int64]*domain.Account)}
}

func (r *stubAccountRepo) Create(_ context.Context, acc *domain.Account) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == acc.Email {
			return nil, domain.ErrEmailTaken
		}
		if acc.Username != "" && a.Username == acc.Username {
			return nil, domain.ErrUsernameTaken
		}
	}
	if r.codeTaken(acc) {
		return nil, domain.ErrConfirmationCodeTaken
	}
	r.nextID++
	c := acc.Clone()
	c.ID = r.nextID
	r.accounts[c.ID] = c
	return c.Clone(), nil
}

func (r *stubAccountRepo) find(match func(*domain.Account) bool) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if match(a) {
			return a.Clone(), nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r *stubAccountRepo) FindByID(_ context.Context, id int64) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.ID == id })
}

func (r *stubAccountRepo) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.Email == email })
}

func (r *stubAccountRepo) FindByUsername(_ context.Context, username string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.Username == username })
}

func (r *stubAccountRepo) FindByConfirmationToken(_ context.Context, token string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.ConfirmationToken != "" && a.ConfirmationToken == token })
}

func (r *stubAccountRepo) Update(_ context.Context, acc *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[acc.ID]; !ok {
		return domain.ErrAccountNotFound
	}
	if r.codeTaken(acc) {
		return domain.ErrConfirmationCodeTaken
	}
	r.accounts[acc.ID] = acc.Clone()
	r.updates++
	return nil
}

func (r *stubAccountRepo) codeTaken(acc *domain.Account) bool {
	if !r.uniqueCodes || acc.ConfirmationToken == "" {
		return false
	}
	for _, a := range r.accounts {
		if a.ID != acc.ID && a.ConfirmationToken == acc.ConfirmationToken {
			return true
		}
	}
	return false
}

func (r *stubAccountRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[id]; !ok {
		return domain.ErrAccountNotFound
	}
	delete(r.accounts, id)
	return nil
}

func (r *stubAccountRepo) List(_ context.Context, f ports.ListAccountsFilter) ([]*domain.Account, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*domain.Account
	for _, a := range r.accounts {
		if f.Role != "" && a.Role != f.Role {
			continue
		}
		if f.Permission != "" && !containsString(a.Permissions, f.Permission) {
			continue
		}
		if f.Active != nil && a.Active != *f.Active {
			continue
		}
		matched = append(matched, a.Clone())
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := int64(len(matched))
	if f.Skip >= len(matched) {
		return []*domain.Account{}, total, nil
	}
	matched = matched[f.Skip:]
	if len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func (r *stubAccountRepo) stored(id int64) *domain.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id].Clone()
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

type sentMail struct {
	kind  string
	email string
	code  string
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *stubNotifier) SendConfirmation(_ context.Context, acc *domain.Account, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{kind: "confirmation", email: acc.Email, code: code})
	return n.err
}

func (n *stubNotifier) SendWelcome(_ context.Context, acc *domain.Account) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{kind: "welcome", email: acc.Email})
	return n.err
}

func (n *stubNotifier) last() sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return sentMail{}
	}
	return n.sent[len(n.sent)-1]
}

type seqCodes struct {
	mu sync.Mutex
	n  int
}

func (g *seqCodes) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return "CODE0" + string(rune('0'+g.n%10)), nil
}

// listCodes hands out codes in order and repeats the last one.
type listCodes struct {
	codes []string
	n     int
}

func (g *listCodes) Generate() (string, error) {
	code := g.codes[min(g.n, len(g.codes)-1)]
	g.n++
	return code, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc      *AccountService
	repo     *stubAccountRepo
	notifier *stubNotifier
	tokens   *security.TokenIssuer
	clock    *testClock
}

func newFixture(t *testing.T, model string, requireConfirmation bool) *fixture {
	t.Helper()
	policy, err := domain.NewPolicy(model)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	repo := newStubAccountRepo()
	notifier := &stubNotifier{}
	tokens := security.NewTokenIssuer("test-secret", 0).WithClock(clock.Now)
	svc := NewAccountService(
		repo,
		security.NewHasher(bcrypt.MinCost),
		tokens,
		&seqCodes{},
		notifier,
		policy,
		Options{RequireConfirmation: requireConfirmation},
		zerolog.Nop(),
	).WithClock(clock.Now)
	return &fixture{svc: svc, repo: repo, notifier: notifier, tokens: tokens, clock: clock}
}

func (f *fixture) register(t *testing.T, email, username string, grant domain.Grant) *domain.Account {
	t.Helper()
	acc, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Email:    email,
		Password: "secret1",
		Username: username,
		Grant:    grant,
	})
	if err != nil {
		t.Fatalf("Register(%s) returned error: %v", email, err)
	}
	return acc
}

func TestAccountService_Register_Success(t *testing.T) {
	f := newFixture(t, domain.ModelRole, true)

	acc, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Email:    "  Alice@Example.com ",
		Password: "secret1",
		Name:     " Alice ",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if acc.ID == 0 {
		t.Fatalf("expected id to be assigned")
	}
	if acc.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", acc.Email)
	}
	if acc.Name != "Alice" {
		t.Fatalf("expected trimmed name, got %q", acc.Name)
	}
	if acc.Role != domain.RoleClient {
		t.Fatalf("expected default role client, got %q", acc.Role)
	}
	if !acc.Active || acc.EmailConfirmed {
		t.Fatalf("expected active unconfirmed account, got active=%v confirmed=%v", acc.Active, acc.EmailConfirmed)
	}
	if acc.PasswordHash == "secret1" {
		t.Fatalf("expected password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte("secret1")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
	if acc.ConfirmationToken == "" || acc.ConfirmationSentAt == nil || acc.ConfirmationExpires == nil {
		t.Fatalf("expected confirmation artifacts to be set")
	}
	if got := acc.ConfirmationExpires.Sub(*acc.ConfirmationSentAt); got != 24*time.Hour {
		t.Fatalf("expected 24h confirmation window, got %s", got)
	}
	mail := f.notifier.last()
	if mail.kind != "confirmation" || mail.code != acc.ConfirmationToken {
		t.Fatalf("expected confirmation mail with the stored code, got %+v", mail)
	}
}

func TestAccountService_Register_WithoutConfirmation(t *testing.T) {
	f := newFixture(t, domain.ModelRole, false)

	acc := f.register(t, "bob@example.com", "", domain.Grant{})
	if !acc.EmailConfirmed || acc.ConfirmationToken != "" {
		t.Fatalf("expected account created confirmed without a code")
	}
	if len(f.notifier.sent) != 0 {
		t.Fatalf("expected no mail, got %d", len(f.notifier.sent))
	}
}

func TestAccountService_Register_Validation(t *testing.T) {
	f := newFixture(t, domain.ModelRole, true)
	ctx := context.Background()

	cases := []struct {
		name  string
		in    ports.RegisterInput
		field string
	}{
		{"bad email", ports.RegisterInput{Email: "not-an-email", Password: "secret1"}, "email"},
		{"short password", ports.RegisterInput{Email: "a@x.com", Password: "abc"}, "password"},
		{"long password", ports.RegisterInput{Email: "a@x.com", Password: strings.Repeat("p", 73)}, "password"},
		{"short username", ports.RegisterInput{Email: "a@x.com", Password: "secret1", Username: "ab"}, "username"},
		{"long name", ports.RegisterInput{Email: "a@x.com", Password: "secret1", Name: strings.Repeat("n", 51)}, "name"},
		{"unknown role", ports.RegisterInput{Email: "a@x.com", Password: "secret1", Grant: domain.Grant{Role: "superuser"}}, "role"},
		{"permissions in role model", ports.RegisterInput{Email: "a@x.com", Password: "secret1", Grant: domain.Grant{Permissions: []string{"user"}}}, "permissions"},
	}
	for _, tc := range cases {
		_, err := f.svc.Register(ctx, tc.in)
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
		if verr.Field != tc.field {
			t.Fatalf("%s: expected field %q, got %q", tc.name, tc.field, verr.Field)
		}
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: expected ErrValidation in chain", tc.name)
		}
	}
	if len(f.repo.accounts) != 0 {
		t.Fatalf("expected nothing stored, got %d accounts", len(f.repo.accounts))
	}
}

func TestAccountService_Register_UnknownRoleListsLegalValues(t *testing.T) {
	f := newFixture(t, domain.ModelRole, true)

	_, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Email: "a@x.com", Password: "secret1", Grant: domain.Grant{Role: "superuser"},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"superuser", "admin", "client", "artist"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in error %q", want, err.Error())
		}
	}
}

func TestAccountService_Register_Duplicates(t *testing.T) {
	f := newFixture(t, domain.ModelPermission, true)
	f.register(t, "a@x.com", "alice", domain.Grant{})

	_, err := f.svc.Register(context.Background(), ports.RegisterInput{Email: "A@X.com", Password: "secret1", Username: "other"})
	if !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	_, err = f.svc.Register(context.Background(), ports.RegisterInput{Email: "b@x.com", Password: "secret1", Username: "alice"})
	if !errors.Is(err, domain.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if !errors.Is(err, domain.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists in chain")
	}
}

func TestAccountService_Register_PermissionModel(t *testing.T) {
	f := newFixture(t, domain.ModelPermission, true)

	if _, err := f.svc.Register(context.Background(), ports.RegisterInput{Email: "a@x.com", Password: "secret1"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected username to be required, got %v", err)
	}

	acc := f.register(t, "a@x.com", "alice", domain.Grant{Permissions: []string{"user", "admin", "user"}})
	if len(acc.Permissions) != 2 || acc.Permissions[0] != "user" || acc.Permissions[1] != "admin" {
		t.Fatalf("expected deduplicated permissions, got %v", acc.Permissions)
	}
	if acc.Role != "" {
		t.Fatalf("expected empty role in permission model, got %q", acc.Role)
	}

	other := f.register(t, "b@x.com", "bob", domain.Grant{})
	if len(other.Permissions) != 1 || other.Permissions[0] != domain.PermissionUser {
		t.Fatalf("expected default [user], got %v", other.Permissions)
	}
}

func TestAccountService_Register_NotifierFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, domain.ModelRole, true)
	f.notifier.err = errors.New("smtp down")

	acc := f.register(t, "a@x.com", "", domain.Grant{})
	if f.repo.stored(acc.ID) == nil {
		t.Fatalf("expected account to be stored despite mail failure")
	}
}

func TestAccountService_ConfirmEmail(t *testing.T) {
	f := newFixture(t, domain.ModelRole, true)
	ctx := context.Background()
	acc := f.register(t, "a@x.com", "", domain.Grant{})

	if _, err := f.svc.ConfirmEmail(ctx, "WRONG1"); !errors.Is(err, domain.ErrInvalidConfirmationToken) {
		t.Fatalf("expected ErrInvalidConfirmationToken, got %v", err)
	}
	if _, err := f.svc.ConfirmEmail(ctx, ""); !errors.Is(err, domain.ErrInvalidConfirmationToken) {
		t.Fatalf("expected ErrInvalidConfirmationToken for empty token, got %v", err)
	}

	confirmed, err := f.svc.ConfirmEmail(ctx, acc.ConfirmationToken)
	if err != nil {
		t.Fatalf("ConfirmEmail returned error: %v", err)
	}
	if !confirmed.EmailConfirmed {
		t.Fatalf("expected account confirmed")
	}
	stored := f.repo.stored(acc.ID)
	if stored.ConfirmationToken != "" || stored.ConfirmationSentAt != nil || stored.ConfirmationExpires != nil {
		t.Fatalf("expected confirmation artifacts cleared, got %+v", stored)
	}
	if f.notifier.last().kind != "welcome" {
		t.Fatalf("expected welcome mail after confirmation")
	}

	// The code is single use.
	if _, err := f.svc.ConfirmEmail(ctx, acc.ConfirmationToken); !errors.Is(err, domain.ErrInvalidConfirmationToken) {
		t.Fatalf("expected reused code to be rejected, got %v", err)
	}
}

func TestAccountService_ConfirmEmail_Expired(t *testing.T) {
	f := newFixture(t, domain.ModelRole, true)
	ctx := context.Background()
	acc := f.register(t, "a@x.com", "", domain.Grant{})

	f.clock.Advance(24*time.Hour + time.Second)
	if _, err := f.svc.ConfirmEmail(ctx, acc.ConfirmationToken); !errors.Is(err, domain.ErrConfirmationExpired) {
		t.Fatalf("expected ErrConfirmationExpired, got %v", err)
	}
	stored := f.repo.stored(acc.ID)
	if stored.EmailConfirmed {
		t.Fatalf("expired code must not confirm the account")
	}
	if stored.ConfirmationToken != "" || stored.ConfirmationExpires != nil {
		t.Fatalf("expected expired code to be consumed")
	}
	if _, err := f.svc.ConfirmEmail(ctx, acc.ConfirmationToken); !errors.Is(err, domain.ErrInvalidConfirmationToken) {
		t.Fatalf("expected consumed code to be unknown, got %v", err)
	}

	if err := f.svc.ResendConfirmation(ctx, "a@x.com"); err != nil {
		t.Fatalf("ResendConfirmation returned error: %v", err)
	}
	code := f.notifier.last().code
	if _, err := f.svc.ConfirmEmail(ctx, code); err != nil {
		t.Fatalf("expected fresh code to confirm, got %v", err)
	}
}

func TestAccountService_ConfirmEmail_ExactlyAtExpiry(t *testing.T) {
	f := newFixture(t, domain.ModelRole, true)
	acc := f.register(t, "a@x.com", "", domain.Grant{})

	f.clock.Advance(24 * time.Hour)
	if _, err := f.svc.ConfirmEmail(context.Background(), acc.ConfirmationToken); err != nil {
		t.Fatalf("expected code to be valid at the expiry instant, got %v", err)
	}
}

func TestAccountService_ResendConfirmation(t *testing.T) {
	f := newFixture(t, domain.ModelRole, true)
	ctx := context.Background()
	acc := f.register(t, "a@x.com", "", domain.Grant{})

	if err := f.svc.ResendConfirmation(ctx, "a@x.com"); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited inside cooldown, got %v", err)
	}

	f.clock.Advance(2 * time.Minute)
	if err := f.svc.ResendConfirmation(ctx, "A@x.com"); err != nil {
		t.Fatalf("ResendConfirmation returned error: %v", err)
	}
	stored := f.repo.stored(acc.ID)
	if stored.ConfirmationToken == acc.ConfirmationToken {
		t.Fatalf("expected a new code")
	}
	if !stored.ConfirmationSentAt.Equal(f.clock.Now()) {
		t.Fatalf("expected sent-at refreshed")
	}
	if _, err := f.svc.ConfirmEmail(ctx, acc.ConfirmationToken); !errors.Is(err, domain.ErrInvalidConfirmationToken) {
		t.Fatalf("expected previous code to be replaced, got %v", err)
	}

	if err := f.svc.ResendConfirmation(ctx, "nobody@x.com"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	if _, err := f.svc.ConfirmEmail(ctx, stored.ConfirmationToken); err != nil {
		t.Fatalf("ConfirmEmail returned error: %v", err)
	}
	if err := f.svc.ResendConfirmation(ctx, "a@x.com"); !errors.Is(err, domain.ErrAlreadyConfirmed) {
		t.Fatalf("expected ErrAlreadyConfirmed, got %v", err)
	}
}

func TestAccountService_RegenerateCollidingCode(t *testing.T) {
	f := newFixture(t, domain.ModelRole, true)
	f.repo.uniqueCodes = true
	codes := &listCodes{codes: []string{"AAA111", "AAA111", "BBB222", "BBB222", "CCC333"}}
	f.svc.codes = codes
	ctx := context.Background()

	first := f.register(t, "a@x.com", "", domain.Grant{})
	second := f.register(t, "b@x.com", "", domain.Grant{})
	if first.ConfirmationToken != "AAA111" || second.ConfirmationToken != "BBB222" {
		t.Fatalf("expected colliding code to be replaced, got %q and %q", first.ConfirmationToken, second.ConfirmationToken)
	}
	if got := f.notifier.last().code; got != "BBB222" {
		t.Fatalf("expected mail to carry the stored code, got %q", got)
	}

	// Resend for a@x.com draws BBB222 first, which b@x.com still holds.
	codes.codes, codes.n = []string{"BBB222", "DDD444"}, 0
	f.clock.Advance(2 * time.Minute)
	if err := f.svc.ResendConfirmation(ctx, "a@x.com"); err != nil {
		t.Fatalf("ResendConfirmation returned error: %v", err)
	}
	if got := f.repo.stored(first.ID).ConfirmationToken; got != "DDD444" {
		t.Fatalf("expected regenerated code DDD444, got %q", got)
	}
	if got := f.notifier.last().code; got != "DDD444" {
		t.Fatalf("expected resend mail to carry DDD444, got %q", got)
	}
}

func TestAccountService_RegenerateCollidingCode_GivesUp(t *testing.T) {
	f := newFixture(t, domain.ModelRole, true)
	f.repo.uniqueCodes = true
	f.svc.codes = &listCodes{codes: []string{"AAA111"}}

	f.register(t, "a@x.com", "", domain.Grant{})
	_, err := f.svc.Register(context.Background(), ports.RegisterInput{Email: "b@x.com", Password: "secret1"})
	if !errors.Is(err, domain.ErrConfirmationCodeTaken) {
		t.Fatalf("expected ErrConfirmationCodeTaken after %d attempts, got %v", maxCodeAttempts, err)
	}
	if len(f.repo.accounts) != 1 {
		t.Fatalf("expected no second account, have %d", len(f.repo.accounts))
	}
	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected no mail for the failed registration, got %d", len(f.notifier.sent))
	}
}

func TestAccountService_Authenticate(t *testing.T) {
	f := newFixture(t, domain.ModelRole, false)
	ctx := context.Background()
	acc := f.register(t, "a@x.com", "", domain.Grant{Role: domain.RoleArtist})

	session, err := f.svc.Authenticate(ctx, "A@X.COM", "secret1")
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if session.ExpiresIn != int64((30 * 24 * time.Hour).Seconds()) {
		t.Fatalf("unexpected expires_in: %d", session.ExpiresIn)
	}
	claims, err := f.tokens.Verify(session.Token)
	if err != nil {
		t.Fatalf("token does not verify: %v", err)
	}
	if claims.Subject != "1" || claims.Role != domain.RoleArtist {
		t.Fatalf("unexpected claims: sub=%q role=%q", claims.Subject, claims.Role)
	}
	if stored := f.repo.stored(acc.ID); stored.LastLogin == nil {
		t.Fatalf("expected last login to be stamped")
	}

	if _, err := f.svc.Authenticate(ctx, "a@x.com", "wrong-password"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, "ghost@x.com", "secret1"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestAccountService_Authenticate_Gate(t *testing.T) {
	f := newFixture(t, domain.ModelRole, true)
	ctx := context.Background()
	acc := f.register(t, "a@x.com", "", domain.Grant{})

	if _, err := f.svc.Authenticate(ctx, "a@x.com", "secret1"); !errors.Is(err, domain.ErrEmailUnconfirmed) {
		t.Fatalf("expected ErrEmailUnconfirmed, got %v", err)
	}

	if _, err := f.svc.ConfirmEmail(ctx, acc.ConfirmationToken); err != nil {
		t.Fatalf("ConfirmEmail returned error: %v", err)
	}
	if _, err := f.svc.DeactivateAccount(ctx, acc.ID); err != nil {
		t.Fatalf("DeactivateAccount returned error: %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, "a@x.com", "secret1"); !errors.Is(err, domain.ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
	// The gate is checked before the password.
	if _, err := f.svc.Authenticate(ctx, "a@x.com", "wrong-password"); !errors.Is(err, domain.ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled for wrong password on disabled account, got %v", err)
	}
}

func TestAccountService_UpdatePassword(t *testing.T) {
	f := newFixture(t, domain.ModelRole, false)
	ctx := context.Background()
	acc := f.register(t, "a@x.com", "", domain.Grant{})

	if _, err := f.svc.UpdatePassword(ctx, acc.ID, "wrong", "newsecret"); !errors.Is(err, domain.ErrInvalidCurrentPassword) {
		t.Fatalf("expected ErrInvalidCurrentPassword, got %v", err)
	}
	if _, err := f.svc.UpdatePassword(ctx, acc.ID, "secret1", "abc"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for short password, got %v", err)
	}
	if _, err := f.svc.UpdatePassword(ctx, 999, "secret1", "newsecret"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	if _, err := f.svc.UpdatePassword(ctx, acc.ID, "secret1", "newsecret"); err != nil {
		t.Fatalf("UpdatePassword returned error: %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, "a@x.com", "secret1"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, "a@x.com", "newsecret"); err != nil {
		t.Fatalf("expected new password accepted, got %v", err)
	}
}

func TestAccountService_ChangeAuthorization(t *testing.T) {
	f := newFixture(t, domain.ModelRole, false)
	ctx := context.Background()
	acc := f.register(t, "a@x.com", "", domain.Grant{})

	updated, err := f.svc.ChangeAuthorization(ctx, acc.ID, domain.Grant{Role: domain.RoleArtist})
	if err != nil {
		t.Fatalf("ChangeAuthorization returned error: %v", err)
	}
	if updated.Role != domain.RoleArtist || f.repo.stored(acc.ID).Role != domain.RoleArtist {
		t.Fatalf("expected role artist to be stored")
	}
	if _, err := f.svc.ChangeAuthorization(ctx, acc.ID, domain.Grant{Role: "superuser"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := f.svc.ChangeAuthorization(ctx, acc.ID, domain.Grant{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty grant, got %v", err)
	}
	if _, err := f.svc.ChangeAuthorization(ctx, 999, domain.Grant{Role: domain.RoleClient}); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccountService_DeleteAccount(t *testing.T) {
	f := newFixture(t, domain.ModelRole, false)
	ctx := context.Background()
	acc := f.register(t, "a@x.com", "", domain.Grant{})

	if err := f.svc.DeleteAccount(ctx, acc.ID); err != nil {
		t.Fatalf("DeleteAccount returned error: %v", err)
	}
	if _, err := f.svc.GetAccount(ctx, acc.ID); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound after delete, got %v", err)
	}
	if err := f.svc.DeleteAccount(ctx, acc.ID); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound on second delete, got %v", err)
	}
	if _, err := f.svc.DeactivateAccount(ctx, acc.ID); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound on deactivate, got %v", err)
	}
}

func TestAccountService_ListAccounts(t *testing.T) {
	f := newFixture(t, domain.ModelRole, false)
	ctx := context.Background()
	f.register(t, "a@x.com", "", domain.Grant{Role: domain.RoleAdmin})
	b := f.register(t, "b@x.com", "", domain.Grant{})
	f.register(t, "c@x.com", "", domain.Grant{Role: domain.RoleArtist})
	if _, err := f.svc.DeactivateAccount(ctx, b.ID); err != nil {
		t.Fatalf("DeactivateAccount returned error: %v", err)
	}

	page, err := f.svc.ListAccounts(ctx, ports.ListAccountsInput{})
	if err != nil {
		t.Fatalf("ListAccounts returned error: %v", err)
	}
	if page.Total != 3 || len(page.Accounts) != 3 || page.Limit != DefaultListLimit {
		t.Fatalf("unexpected page: total=%d len=%d limit=%d", page.Total, len(page.Accounts), page.Limit)
	}

	page, err = f.svc.ListAccounts(ctx, ports.ListAccountsInput{Skip: 1, Limit: 1})
	if err != nil {
		t.Fatalf("ListAccounts returned error: %v", err)
	}
	if page.Total != 3 || len(page.Accounts) != 1 || page.Accounts[0].Email != "b@x.com" {
		t.Fatalf("unexpected paged result: %+v", page)
	}

	active := true
	page, err = f.svc.ListAccounts(ctx, ports.ListAccountsInput{Active: &active})
	if err != nil {
		t.Fatalf("ListAccounts returned error: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 active accounts, got %d", page.Total)
	}

	page, err = f.svc.ListAccounts(ctx, ports.ListAccountsInput{Role: domain.RoleArtist})
	if err != nil {
		t.Fatalf("ListAccounts returned error: %v", err)
	}
	if page.Total != 1 || page.Accounts[0].Email != "c@x.com" {
		t.Fatalf("unexpected role filter result: %+v", page)
	}

	bad := []ports.ListAccountsInput{
		{Skip: -1},
		{Limit: -5},
		{Limit: MaxListLimit + 1},
		{Role: "superuser"},
		{Permission: domain.PermissionUser},
	}
	for _, in := range bad {
		if _, err := f.svc.ListAccounts(ctx, in); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation for %+v, got %v", in, err)
		}
	}
}

func TestAccountService_EnsureAdmin(t *testing.T) {
	f := newFixture(t, domain.ModelPermission, true)
	ctx := context.Background()

	if err := f.svc.EnsureAdmin(ctx, "Root@x.com", "rootsecret"); err != nil {
		t.Fatalf("EnsureAdmin returned error: %v", err)
	}
	acc, err := f.repo.FindByEmail(ctx, "root@x.com")
	if err != nil {
		t.Fatalf("expected admin to exist: %v", err)
	}
	if !acc.CanAuthenticate() || !containsString(acc.Permissions, domain.PermissionAdmin) {
		t.Fatalf("expected confirmed admin, got %+v", acc)
	}

	if err := f.svc.EnsureAdmin(ctx, "root@x.com", "rootsecret"); err != nil {
		t.Fatalf("second EnsureAdmin returned error: %v", err)
	}
	if len(f.repo.accounts) != 1 {
		t.Fatalf("expected EnsureAdmin to be idempotent, got %d accounts", len(f.repo.accounts))
	}
}

// Register, confirm, authenticate, then exercise the admin surface.
func TestAccountService_Lifecycle(t *testing.T) {
	f := newFixture(t, domain.ModelRole, true)
	ctx := context.Background()

	acc := f.register(t, "a@x.com", "", domain.Grant{})
	if acc.Role != domain.RoleClient || acc.EmailConfirmed {
		t.Fatalf("unexpected registration state: %+v", acc)
	}
	code := f.notifier.last().code

	if _, err := f.svc.Authenticate(ctx, "a@x.com", "secret1"); !errors.Is(err, domain.ErrEmailUnconfirmed) {
		t.Fatalf("expected ErrEmailUnconfirmed before confirmation, got %v", err)
	}
	if _, err := f.svc.ConfirmEmail(ctx, code); err != nil {
		t.Fatalf("ConfirmEmail returned error: %v", err)
	}
	session, err := f.svc.Authenticate(ctx, "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	claims, err := f.tokens.Verify(session.Token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.Subject != "1" {
		t.Fatalf("expected subject \"1\", got %q", claims.Subject)
	}

	if err := f.svc.EnsureAdmin(ctx, "root@x.com", "rootsecret"); err != nil {
		t.Fatalf("EnsureAdmin returned error: %v", err)
	}
	if _, err := f.svc.DeactivateAccount(ctx, acc.ID); err != nil {
		t.Fatalf("DeactivateAccount returned error: %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, "a@x.com", "secret1"); !errors.Is(err, domain.ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}
