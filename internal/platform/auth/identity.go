package auth

import (
	"context"
	"slices"
	"strings"
)

// Roles recognised by the marketplace.
const (
	RoleCustomer = "customer"
	RoleVendor   = "vendor"
	RoleOperator = "operator"
)

// Identity is the authenticated caller extracted from a Firebase ID token.
type Identity struct {
	UID    string
	Email  string
	Name   string
	Locale string
	Roles  []string
	// StoreIDs lists the virtual and physical stores a vendor may act for.
	StoreIDs []string
}

// HasRole reports whether the identity carries role.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	return role != "" && slices.Contains(i.Roles, role)
}

// HasAnyRole reports whether the identity carries any of roles.
func (i *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// CanActForStore reports whether the caller operates storeID. Operators may act for any store.
func (i *Identity) CanActForStore(storeID string) bool {
	if i == nil {
		return false
	}
	if i.HasRole(RoleOperator) {
		return true
	}
	storeID = strings.TrimSpace(storeID)
	return storeID != "" && i.HasRole(RoleVendor) && slices.Contains(i.StoreIDs, storeID)
}

type identityKey struct{}

// WithIdentity stores the identity for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity stored by the middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
