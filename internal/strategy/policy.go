package strategy

import (
	"fmt"

	"codesmith/internal/logging"
)

// AuthState exposes whoever is authenticated, if anyone. The orchestrator's
// authentication manager implements it.
type AuthState interface {
	// CurrentUser returns the authenticated user name, or "".
	CurrentUser() string
}

// PermissionPolicy decides whether a permission scope may be exercised. The
// scope is always recorded on the step; only the grant decision varies.
type PermissionPolicy interface {
	Name() string
	Allow(perm ActionPermission, auth AuthState) error
}

// PermissivePolicy logs what would have been required. The
// permissive policy grants even without an authenticated user; this is a
// deliberate policy choice, switchable to strict via configuration.
type PermissivePolicy struct{}

func (PermissivePolicy) Name() string { return "permissive" }

func (PermissivePolicy) Allow(perm ActionPermission, auth AuthState) error {
	user := "nobody"
	if auth != nil && auth.CurrentUser() != "" {
		user = auth.CurrentUser()
	}
	logging.Strategy("permission %s granted to %s (permissive)", perm.Scope, user)
	return nil
}

// StrictPolicy denies any scope when no user is authenticated.
type StrictPolicy struct{}

func (StrictPolicy) Name() string { return "strict" }

func (StrictPolicy) Allow(perm ActionPermission, auth AuthState) error {
	if auth == nil || auth.CurrentUser() == "" {
		return fmt.Errorf("permission %s denied: no authenticated user", perm.Scope)
	}
	logging.Strategy("permission %s granted to %s (strict)", perm.Scope, auth.CurrentUser())
	return nil
}
