package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/permalink-studio/pos/pkg/logger"
)

// Identity headers set by the upstream auth proxy. They are trusted as-is.
const (
	TenantHeader   = "X-Tenant-ID"
	UserHeader     = "X-User-ID"
	TerminalHeader = "X-Terminal-ID"
)

// Identity is who is acting and for which business.
type Identity struct {
	TenantID   string
	UserID     string
	TerminalID string
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity placed by RequireIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// RequireIdentity rejects requests without tenant and user headers. The
// terminal header is optional and defaults to the user ID, giving each staff
// member one checkout session.
func RequireIdentity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := Identity{
				TenantID:   strings.TrimSpace(r.Header.Get(TenantHeader)),
				UserID:     strings.TrimSpace(r.Header.Get(UserHeader)),
				TerminalID: strings.TrimSpace(r.Header.Get(TerminalHeader)),
			}
			if id.TenantID == "" || id.UserID == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]string{
						"code":    "UNAUTHORIZED",
						"message": "missing " + TenantHeader + " or " + UserHeader + " header",
					},
				})
				return
			}
			if id.TerminalID == "" {
				id.TerminalID = id.UserID
			}

			ctx := WithIdentity(r.Context(), id)
			ctx = logger.WithTenantID(ctx, id.TenantID)
			ctx = logger.WithUserID(ctx, id.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
