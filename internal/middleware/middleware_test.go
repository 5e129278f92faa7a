package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokerline/backend/internal/auth"
	"github.com/brokerline/backend/internal/models"
	"github.com/brokerline/backend/internal/validation"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubTokens struct {
	ident auth.Identity
	err   error
}

func (s *stubTokens) ValidateToken(_ context.Context, _ string) (auth.Identity, error) {
	return s.ident, s.err
}

type stubMembers map[uuid.UUID]*models.Member

func (s stubMembers) GetByID(_ context.Context, id uuid.UUID) (*models.Member, error) {
	m, ok := s[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return m, nil
}

// okHandler writes the member username so tests can see who was authenticated.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if m := MemberFromCtx(r.Context()); m != nil {
		w.Write([]byte(m.Username))
	}
})

func member(role string) *models.Member {
	return &models.Member{ID: uuid.New(), Username: "u-" + role, Role: role, ApprovalStatus: models.ApprovalApproved}
}

// ---------------------------------------------------------------------------
// Authenticate
// ---------------------------------------------------------------------------

func TestAuthenticate_ValidToken(t *testing.T) {
	m := member(models.RoleMember)
	h := Authenticate(&stubTokens{ident: auth.Identity{MemberID: m.ID}}, stubMembers{m.ID: m})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, m.Username, rec.Body.String())
}

func TestAuthenticate_Rejects(t *testing.T) {
	m := member(models.RoleMember)
	pending := member(models.RoleMember)
	pending.ApprovalStatus = models.ApprovalPending
	members := stubMembers{m.ID: m, pending.ID: pending}

	tests := []struct {
		name   string
		header string
		tokens *stubTokens
	}{
		{"missing header", "", &stubTokens{ident: auth.Identity{MemberID: m.ID}}},
		{"basic scheme", "Basic abc", &stubTokens{ident: auth.Identity{MemberID: m.ID}}},
		{"bad token", "Bearer x", &stubTokens{err: errors.New("bad")}},
		{"unknown member", "Bearer x", &stubTokens{ident: auth.Identity{MemberID: uuid.New()}}},
		{"pending member", "Bearer x", &stubTokens{ident: auth.Identity{MemberID: pending.ID}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Authenticate(tt.tokens, members)(okHandler)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

// ---------------------------------------------------------------------------
// RequireRole
// ---------------------------------------------------------------------------

func TestRequireRole(t *testing.T) {
	h := RequireRole(models.RoleAdmin, models.RolePartnerAdmin)(okHandler)

	for role, want := range map[string]int{
		models.RoleAdmin:        http.StatusOK,
		models.RolePartnerAdmin: http.StatusOK,
		models.RoleMember:       http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithMember(req.Context(), member(role)))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, role)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ---------------------------------------------------------------------------
// RateLimiter
// ---------------------------------------------------------------------------

func TestRateLimiter_PerKey(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, nil)
	h := rl.Handler(okHandler)

	do := func(m *models.Member) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if m != nil {
			req = req.WithContext(WithMember(req.Context(), m))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	a, b := member(models.RoleMember), member(models.RoleMember)
	assert.Equal(t, http.StatusOK, do(a))
	assert.Equal(t, http.StatusOK, do(a))
	assert.Equal(t, http.StatusTooManyRequests, do(a))
	assert.Equal(t, http.StatusOK, do(b), "buckets are per member")
	assert.Equal(t, http.StatusOK, do(nil))
}

// ---------------------------------------------------------------------------
// SchemaCheck
// ---------------------------------------------------------------------------

func TestSchemaCheck(t *testing.T) {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		w.Write(b)
	})
	h := SchemaCheck(validation.MustNew(), "deposit")(echo)

	body := `{"member_id":"7f1c5a0e-6f63-4bde-9a55-2b1a0e7c9d11","amount":100}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, rec.Body.String(), "body must be restored for the handler")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":-1}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
