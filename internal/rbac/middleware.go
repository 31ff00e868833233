package rbac

import (
	"context"
	"encoding/json"
	"net/http"
)

var defaultChecker = NewChecker(nil)

// Unrestricted reports whether the role carried by ctx holds every permission.
func Unrestricted(ctx context.Context) bool {
	return defaultChecker.Unrestricted(RoleFromContext(ctx))
}

// Require enforces a single permission.
func Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if role == "" || !defaultChecker.Has(role, perm) {
				forbidden(w, perm)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forbidden(w http.ResponseWriter, perm string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": "forbidden", "message": "missing permission " + perm},
	})
}
