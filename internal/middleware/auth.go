package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/brokerline/backend/internal/auth"
	"github.com/brokerline/backend/internal/httpx"
	"github.com/brokerline/backend/internal/models"
)

type contextKey string

const ctxMemberKey contextKey = "member"

// TokenValidator is the part of auth.Service the middleware needs.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (auth.Identity, error)
}

// MemberGetter reloads the member named by a token.
type MemberGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
}

// Authenticate verifies the Bearer JWT and loads the member it names into
// the request context. The member is re-read on every request so role and
// approval changes take effect before the token expires.
func Authenticate(tokens TokenValidator, members MemberGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				httpx.Error(w, http.StatusUnauthorized, "missing or malformed Authorization header")
				return
			}
			ident, err := tokens.ValidateToken(r.Context(), raw)
			if err != nil {
				httpx.Error(w, http.StatusUnauthorized, "invalid token")
				return
			}
			m, err := members.GetByID(r.Context(), ident.MemberID)
			if err != nil || m.ApprovalStatus != models.ApprovalApproved {
				httpx.Error(w, http.StatusUnauthorized, "unknown or inactive member")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithMember(r.Context(), m)))
		})
	}
}

// RequireRole rejects members whose role is not listed. It must run after Authenticate.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := MemberFromCtx(r.Context())
			if m == nil {
				httpx.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !allowed[m.Role] {
				httpx.Error(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MemberFromCtx returns the authenticated member or nil.
func MemberFromCtx(ctx context.Context) *models.Member {
	m, _ := ctx.Value(ctxMemberKey).(*models.Member)
	return m
}

// WithMember returns a context carrying the given member.
func WithMember(ctx context.Context, m *models.Member) context.Context {
	return context.WithValue(ctx, ctxMemberKey, m)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
