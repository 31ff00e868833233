package rbac

import (
	"context"
	"strings"
)

// Checker resolves role permissions. Grants are exact names, a "prefix:*"
// family or "*" for everything.
type Checker struct {
	RolePermissions map[string][]string
}

func NewChecker(rp map[string][]string) *Checker {
	if rp == nil {
		rp = RolePermissions
	}
	return &Checker{RolePermissions: rp}
}

func (c *Checker) Has(role, perm string) bool {
	for _, p := range c.RolePermissions[role] {
		if grants(p, perm) {
			return true
		}
	}
	return false
}

// Unrestricted reports whether role holds the "*" grant. Services use it to
// skip per-record ownership checks.
func (c *Checker) Unrestricted(role string) bool {
	for _, p := range c.RolePermissions[role] {
		if p == "*" {
			return true
		}
	}
	return false
}

func grants(pattern, perm string) bool {
	if pattern == "*" || pattern == perm {
		return true
	}
	family, ok := strings.CutSuffix(pattern, "*")
	return ok && strings.HasPrefix(perm, family)
}

// ---- role in context ----

type roleKey struct{}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

func RoleFromContext(ctx context.Context) string {
	s, _ := ctx.Value(roleKey{}).(string)
	return s
}
