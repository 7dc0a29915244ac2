package middleware

import (
	"errors"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/inkwell/account-service/internal/core/domain"
)

func withAccount(c echo.Context, acc *domain.Account, id string) echo.Context {
	c.Set(AccountKey, acc)
	if id != "" {
		c.SetParamNames("id")
		c.SetParamValues(id)
	}
	return c
}

func TestRequire_RoleModel(t *testing.T) {
	access := newStubAccess(domain.ModelRole)
	mw := Require(access, domain.RoleAdmin)

	c, _ := newContext(http.MethodGet, "/", "")
	if err := mw(okHandler)(withAccount(c, &domain.Account{ID: 1, Role: domain.RoleAdmin}, "")); err != nil {
		t.Fatalf("expected admin allowed, got %v", err)
	}

	c, _ = newContext(http.MethodGet, "/", "")
	if err := mw(okHandler)(withAccount(c, &domain.Account{ID: 2, Role: domain.RoleArtist}, "")); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	c, _ = newContext(http.MethodGet, "/", "")
	if err := mw(okHandler)(c); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated without account, got %v", err)
	}
}

func TestRequire_PermissionModel(t *testing.T) {
	access := newStubAccess(domain.ModelPermission)
	mw := Require(access, domain.PermissionUser)

	c, _ := newContext(http.MethodGet, "/", "")
	if err := mw(okHandler)(withAccount(c, &domain.Account{ID: 1, Permissions: []string{domain.PermissionAdmin}}, "")); err != nil {
		t.Fatalf("expected admin permission to satisfy user, got %v", err)
	}
}

func TestAdminOrSelf(t *testing.T) {
	access := newStubAccess(domain.ModelRole)
	mw := AdminOrSelf(access, "id")
	client := &domain.Account{ID: 5, Role: domain.RoleClient}
	admin := &domain.Account{ID: 1, Role: domain.RoleAdmin}

	c, _ := newContext(http.MethodGet, "/", "")
	if err := mw(okHandler)(withAccount(c, client, "5")); err != nil {
		t.Fatalf("expected self allowed, got %v", err)
	}
	c, _ = newContext(http.MethodGet, "/", "")
	if err := mw(okHandler)(withAccount(c, client, "6")); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden on other id, got %v", err)
	}
	c, _ = newContext(http.MethodGet, "/", "")
	if err := mw(okHandler)(withAccount(c, admin, "6")); err != nil {
		t.Fatalf("expected admin allowed, got %v", err)
	}
	c, _ = newContext(http.MethodGet, "/", "")
	if err := mw(okHandler)(withAccount(c, admin, "abc")); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for bad id, got %v", err)
	}
}

func TestNotSelf(t *testing.T) {
	mw := NotSelf("id")
	admin := &domain.Account{ID: 1, Role: domain.RoleAdmin}

	c, _ := newContext(http.MethodDelete, "/", "")
	if err := mw(okHandler)(withAccount(c, admin, "1")); !errors.Is(err, domain.ErrSelfTarget) {
		t.Fatalf("expected ErrSelfTarget, got %v", err)
	}
	c, _ = newContext(http.MethodDelete, "/", "")
	if err := mw(okHandler)(withAccount(c, admin, "2")); err != nil {
		t.Fatalf("expected other id allowed, got %v", err)
	}
	c, _ = newContext(http.MethodDelete, "/", "")
	if err := mw(okHandler)(withAccount(c, admin, "0")); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for id 0, got %v", err)
	}
}
