package domain

import (
	"strings"
	"time"
)

const (
	RoleAdmin  = "admin"
	RoleClient = "client"
	RoleArtist = "artist"

	PermissionUser  = "user"
	PermissionAdmin = "admin"
)

// Account models a registered identity and its lifecycle state.
//
// Exactly one of Role / Permissions is meaningful per deployment; which one is
// decided by the configured AuthorizationPolicy.
type Account struct {
	ID           int64
	Email        string
	Username     string
	Name         string
	LastName     string
	PasswordHash string

	Role        string
	Permissions []string

	Active         bool
	EmailConfirmed bool

	// Confirmation artifacts are set and cleared together.
	ConfirmationToken   string
	ConfirmationSentAt  *time.Time
	ConfirmationExpires *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	LastLogin *time.Time
}

// CanAuthenticate reports whether the lifecycle gate is open.
func (a *Account) CanAuthenticate() bool {
	return a.Active && a.EmailConfirmed
}

// SetConfirmation stores a freshly issued code and its validity window.
func (a *Account) SetConfirmation(code string, issuedAt time.Time, ttl time.Duration) {
	sent := issuedAt.UTC()
	expires := sent.Add(ttl)
	a.ConfirmationToken = code
	a.ConfirmationSentAt = &sent
	a.ConfirmationExpires = &expires
}

// ClearConfirmation drops the code, its issue time and its expiry.
func (a *Account) ClearConfirmation() {
	a.ConfirmationToken = ""
	a.ConfirmationSentAt = nil
	a.ConfirmationExpires = nil
}

// Grant is a requested authorization payload: a role or a permission set.
type Grant struct {
	Role        string
	Permissions []string
}

// IsZero reports whether nothing was requested.
func (g Grant) IsZero() bool {
	return g.Role == "" && len(g.Permissions) == 0
}

// NormalizeEmail lower-cases and trims an address for lookups and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.Permissions != nil {
		c.Permissions = append([]string(nil), a.Permissions...)
	}
	c.ConfirmationSentAt = cloneTime(a.ConfirmationSentAt)
	c.ConfirmationExpires = cloneTime(a.ConfirmationExpires)
	c.LastLogin = cloneTime(a.LastLogin)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
