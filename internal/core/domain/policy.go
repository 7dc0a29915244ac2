package domain

import (
	"fmt"
	"slices"
)

const (
	ModelRole       = "role"
	ModelPermission = "permission"
)

var (
	legalRoles       = []string{RoleAdmin, RoleClient, RoleArtist}
	legalPermissions = []string{PermissionUser, PermissionAdmin}
)

// AuthorizationPolicy decides whether an account satisfies a requirement and
// owns the legal values of the authorization payload stored on accounts.
type AuthorizationPolicy interface {
	Model() string
	// Allows reports whether acc satisfies required.
	Allows(acc *Account, required string) bool
	// Normalize validates a requested grant, applying the default when empty.
	Normalize(g Grant) (Grant, error)
	Apply(acc *Account, g Grant)
	GrantOf(acc *Account) Grant
	// Elevated reports whether g carries administrative rights.
	Elevated(g Grant) bool
	// ValidateFilter checks a list filter value against the legal set.
	ValidateFilter(value string) error
	Legal() []string
}

// NewPolicy returns the policy for the configured model.
func NewPolicy(model string) (AuthorizationPolicy, error) {
	switch model {
	case ModelRole:
		return RoleEquals{}, nil
	case ModelPermission:
		return PermissionIncludes{}, nil
	default:
		return nil, fmt.Errorf("unknown authorization model %q", model)
	}
}

// RoleEquals admits an account when its single role equals the requirement.
type RoleEquals struct{}

func (RoleEquals) Model() string { return ModelRole }

func (RoleEquals) Allows(acc *Account, required string) bool {
	return acc != nil && acc.Role == required
}

func (RoleEquals) Normalize(g Grant) (Grant, error) {
	if len(g.Permissions) > 0 {
		return Grant{}, InvalidField("permissions", "not supported by the role authorization model")
	}
	if g.Role == "" {
		return Grant{Role: RoleClient}, nil
	}
	if !slices.Contains(legalRoles, g.Role) {
		return Grant{}, InvalidValue("role", g.Role, legalRoles)
	}
	return Grant{Role: g.Role}, nil
}

func (RoleEquals) Apply(acc *Account, g Grant) {
	acc.Role = g.Role
	acc.Permissions = nil
}

func (RoleEquals) GrantOf(acc *Account) Grant { return Grant{Role: acc.Role} }

func (RoleEquals) Elevated(g Grant) bool { return g.Role == RoleAdmin }

func (RoleEquals) ValidateFilter(value string) error {
	if !slices.Contains(legalRoles, value) {
		return InvalidValue("role", value, legalRoles)
	}
	return nil
}

func (RoleEquals) Legal() []string { return slices.Clone(legalRoles) }

// PermissionIncludes admits an account whose permission set contains the
// requirement, or contains "admin".
type PermissionIncludes struct{}

func (PermissionIncludes) Model() string { return ModelPermission }

func (PermissionIncludes) Allows(acc *Account, required string) bool {
	if acc == nil {
		return false
	}
	return slices.Contains(acc.Permissions, required) || slices.Contains(acc.Permissions, PermissionAdmin)
}

func (PermissionIncludes) Normalize(g Grant) (Grant, error) {
	if g.Role != "" {
		return Grant{}, InvalidField("role", "not supported by the permission authorization model")
	}
	if len(g.Permissions) == 0 {
		return Grant{Permissions: []string{PermissionUser}}, nil
	}
	out := make([]string, 0, len(g.Permissions))
	for _, p := range g.Permissions {
		if !slices.Contains(legalPermissions, p) {
			return Grant{}, InvalidValue("permission", p, legalPermissions)
		}
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return Grant{Permissions: out}, nil
}

func (PermissionIncludes) Apply(acc *Account, g Grant) {
	acc.Role = ""
	acc.Permissions = slices.Clone(g.Permissions)
}

func (PermissionIncludes) GrantOf(acc *Account) Grant {
	return Grant{Permissions: slices.Clone(acc.Permissions)}
}

func (PermissionIncludes) Elevated(g Grant) bool {
	return slices.Contains(g.Permissions, PermissionAdmin)
}

func (PermissionIncludes) ValidateFilter(value string) error {
	if !slices.Contains(legalPermissions, value) {
		return InvalidValue("permission", value, legalPermissions)
	}
	return nil
}

func (PermissionIncludes) Legal() []string { return slices.Clone(legalPermissions) }

// Rule is a composable authorization check evaluated against a resolved
// account.
type Rule func(p AuthorizationPolicy, acc *Account) bool

// Require admits accounts the policy allows for required.
func Require(required string) Rule {
	return func(p AuthorizationPolicy, acc *Account) bool {
		return p.Allows(acc, required)
	}
}

// Self admits the account whose id equals targetID.
func Self(targetID int64) Rule {
	return func(_ AuthorizationPolicy, acc *Account) bool {
		return acc != nil && acc.ID == targetID
	}
}

// AnyOf admits an account when at least one rule does.
func AnyOf(rules ...Rule) Rule {
	return func(p AuthorizationPolicy, acc *Account) bool {
		for _, r := range rules {
			if r(p, acc) {
				return true
			}
		}
		return false
	}
}

// AdminOrSelf admits administrators and the target account itself.
func AdminOrSelf(targetID int64) Rule {
	return AnyOf(Require(RoleAdmin), Self(targetID))
}
