package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestFromStore(t *testing.T) {
	assert.NoError(t, FromStore(nil))
	assert.ErrorIs(t, FromStore(pgx.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, FromStore(fmt.Errorf("query: %w", context.DeadlineExceeded)), ErrStoreUnavailable)
	assert.ErrorIs(t, FromStore(&pgconn.PgError{Code: "08006"}), ErrStoreUnavailable)

	other := errors.New("boom")
	assert.Equal(t, other, FromStore(other))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("23505")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		ErrInvalidAmount:          http.StatusBadRequest,
		ErrValidation:             http.StatusBadRequest,
		ErrInsufficientBalance:    http.StatusPaymentRequired,
		ErrInvalidTransition:      http.StatusConflict,
		ErrAlreadyConsumed:        http.StatusConflict,
		ErrNotFound:               http.StatusNotFound,
		ErrForbidden:              http.StatusForbidden,
		ErrDuplicateAccountNumber: http.StatusServiceUnavailable,
		ErrStoreUnavailable:       http.StatusServiceUnavailable,
		errors.New("other"):       http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(fmt.Errorf("wrapped: %w", err)), err.Error())
	}
}
