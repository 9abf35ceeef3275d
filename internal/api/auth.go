package api

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
)

// Role is the permission level attached to an API key.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleAuditor  Role = "auditor"
)

func validRole(r Role) bool {
	return r == RoleAdmin || r == RoleOperator || r == RoleAuditor
}

// Auth checks API keys against configured roles.
// With no keys configured every request passes.
type Auth struct {
	keys map[string]Role
}

// NewAuth parses "role=key" entries. Malformed entries and unknown roles
// are skipped with a warning.
func NewAuth(entries []string, logger *slog.Logger) *Auth {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Auth{keys: make(map[string]Role)}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		roleRaw, key, ok := strings.Cut(entry, "=")
		role := Role(strings.TrimSpace(roleRaw))
		key = strings.TrimSpace(key)
		if !ok || key == "" || !validRole(role) {
			logger.Warn("ignoring malformed api key entry", "role", roleRaw)
			continue
		}
		a.keys[key] = role
	}
	return a
}

// Enabled reports whether any key is configured.
func (a *Auth) Enabled() bool {
	return a != nil && len(a.keys) > 0
}

// Require allows the request when the caller's key carries one of roles.
// Admin keys pass every check.
func (a *Auth) Require(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFromRequest(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "Missing API key.")
				return
			}
			role, ok := a.keys[key]
			if !ok {
				writeError(w, http.StatusForbidden, "Invalid API key.")
				return
			}
			if role != RoleAdmin && !slices.Contains(roles, role) {
				writeError(w, http.StatusForbidden, "Insufficient role.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// keyFromRequest reads x-api-key, then an Authorization bearer token.
func keyFromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
